package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"ragchat/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("github.com/fsnotify/fsnotify.(*inotify).readEvents"),
		goleak.IgnoreAnyFunction("github.com/fsnotify/fsnotify.(*Watcher).readEvents"),
	)
}

type fakeUploader struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (f *fakeUploader) UploadBatch(ctx context.Context, files []types.FilePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(files))
	for i, p := range files {
		names[i] = p.Name
	}
	f.batches = append(f.batches, names)
	return f.err
}

func (f *fakeUploader) snapshot() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batches...)
}

func startWatcher(t *testing.T, dir string, up Uploader, opts ...Option) *Watcher {
	t.Helper()
	w, err := NewWatcher(dir, up, append([]Option{WithDebounce(30 * time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_UploadsMatchingDocuments(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{}
	startWatcher(t, dir, up)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.pdf"), []byte("%PDF"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("# a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte("png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("x"), 0o644))

	assert.Eventually(t, func() bool {
		var seen []string
		for _, b := range up.snapshot() {
			seen = append(seen, b...)
		}
		sort.Strings(seen)
		return assert.ObjectsAreEqual([]string{"a.md", "b.pdf"}, seen)
	}, 2*time.Second, 10*time.Millisecond)

	for _, b := range up.snapshot() {
		assert.NotContains(t, b, "image.png")
		assert.NotContains(t, b, ".hidden.txt")
	}
}

func TestWatcher_DebouncesRapidWrites(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{}
	w := startWatcher(t, dir, up)

	path := filepath.Join(dir, "notes.txt")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte{byte('a' + i)}, 0o644))
	}

	assert.Eventually(t, func() bool { return len(up.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Never(t, func() bool { return len(up.snapshot()) > 1 }, 150*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, []string{"notes.txt"}, up.snapshot()[0])
	assert.Eventually(t, func() bool { return w.Stats().Files == 1 }, time.Second, 10*time.Millisecond)
}

func TestWatcher_CustomExtensionsAndResults(t *testing.T) {
	dir := t.TempDir()
	up := &fakeUploader{err: errors.New("rejected")}

	results := make(chan Result, 4)
	w := startWatcher(t, dir, up,
		WithExtensions("CSV"),
		OnResult(func(r Result) { results <- r }))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Data.CSV"), []byte("a,b"), 0o644))

	select {
	case r := <-results:
		assert.Equal(t, []string{"Data.CSV"}, r.Files)
		assert.EqualError(t, r.Err, "rejected")
	case <-time.After(2 * time.Second):
		t.Fatal("no upload attempted")
	}
	assert.Equal(t, 1, w.Stats().Failed)
}

func TestNewWatcher_RejectsMissingDir(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "missing"), &fakeUploader{})
	assert.Error(t, err)
}
