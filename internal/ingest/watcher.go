// Package ingest uploads documents dropped into a watched folder.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"ragchat/internal/logging"
	"ragchat/internal/types"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultExtensions are the document types picked up when none are configured.
var DefaultExtensions = []string{".pdf", ".txt", ".md", ".docx"}

// Uploader receives debounced batches. readiness.Tracker satisfies it.
// A batch upload must not disturb a selection the user made by hand.
type Uploader interface {
	UploadBatch(ctx context.Context, files []types.FilePayload) error
}

// Result describes one upload attempt.
type Result struct {
	Files []string
	Err   error
}

// Stats counts watcher activity.
type Stats struct {
	Batches int
	Files   int
	Failed  int
	Errors  int
}

// Watcher watches one directory and uploads new or rewritten documents once
// they have been quiet for the debounce window.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	uploader    Uploader
	dir         string
	extensions  map[string]struct{}
	debounceDur time.Duration
	pendingAt   map[string]time.Time
	onResult    func(Result)
	logger      *zap.Logger
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       Stats
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithExtensions limits uploads to the given extensions (case-insensitive).
func WithExtensions(exts ...string) Option {
	return func(w *Watcher) {
		if len(exts) == 0 {
			return
		}
		w.extensions = extensionSet(exts)
	}
}

// WithDebounce sets the quiet period before a file is uploaded.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounceDur = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = logging.Named(l, logging.CategoryIngest) }
}

// OnResult registers a callback invoked after every upload attempt.
func OnResult(fn func(Result)) Option {
	return func(w *Watcher) { w.onResult = fn }
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, uploader Uploader, opts ...Option) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch dir: %s is not a directory", dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{
		watcher:     fw,
		uploader:    uploader,
		dir:         dir,
		extensions:  extensionSet(DefaultExtensions),
		debounceDur: 500 * time.Millisecond,
		pendingAt:   make(map[string]time.Time),
		logger:      zap.NewNop(),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func extensionSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	return set
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching folder", zap.String("dir", w.dir))

	go w.run(ctx)
	return nil
}

// Stop halts the event loop and releases the OS watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("closing watcher", zap.Error(err))
	}
}

// Stats returns a snapshot of watcher activity.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 5
	if tick <= 0 {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !w.accepts(event.Name) {
		return
	}
	w.logger.Debug("document event", zap.String("path", event.Name), zap.String("op", event.Op.String()))

	w.mu.Lock()
	w.pendingAt[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	_, ok := w.extensions[strings.ToLower(filepath.Ext(base))]
	return ok
}

// flush uploads every file whose last event is older than the debounce window.
func (w *Watcher) flush(ctx context.Context) {
	now := time.Now()
	var ready []string

	w.mu.Lock()
	for path, at := range w.pendingAt {
		if now.Sub(at) >= w.debounceDur {
			ready = append(ready, path)
			delete(w.pendingAt, path)
		}
	}
	w.mu.Unlock()

	if len(ready) == 0 {
		return
	}
	sort.Strings(ready)

	var payloads []types.FilePayload
	var names []string
	for _, path := range ready {
		p, err := types.PayloadFromPath(path)
		if err != nil {
			// Removed or renamed before the window closed.
			w.logger.Debug("skipping vanished file", zap.String("path", path), zap.Error(err))
			continue
		}
		payloads = append(payloads, p)
		names = append(names, p.Name)
	}
	if len(payloads) == 0 {
		return
	}

	err := w.uploader.UploadBatch(ctx, payloads)

	w.mu.Lock()
	w.stats.Batches++
	if err != nil {
		w.stats.Failed += len(payloads)
	} else {
		w.stats.Files += len(payloads)
	}
	w.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Warn("folder upload failed", zap.Strings("files", names), zap.Error(err))
	} else if err == nil {
		w.logger.Info("folder upload complete", zap.Strings("files", names))
	}
	if w.onResult != nil {
		w.onResult(Result{Files: names, Err: err})
	}
}
