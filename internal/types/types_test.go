package types

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("system").Valid())
	assert.False(t, Role("").Valid())
}

func TestMessageCloneDoesNotAlias(t *testing.T) {
	orig := Message{
		Role:    RoleAssistant,
		Content: "30 days",
		Sources: []Source{{DocumentName: "policy.pdf", Page: 2, Snippet: "..."}},
	}

	cp := orig.Clone()
	cp.Sources[0].Page = 9

	assert.Equal(t, 2, orig.Sources[0].Page)
	assert.Equal(t, 9, cp.Sources[0].Page)
}

func TestCloneMessagesKeepsNilSources(t *testing.T) {
	out := CloneMessages([]Message{{Role: RoleUser, Content: "hi"}})
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Sources)
}

func TestSourceString(t *testing.T) {
	s := Source{DocumentName: "policy.pdf", Page: 2}
	assert.Equal(t, "policy.pdf (page 2)", s.String())
}

func TestPayloadFromBytesReopens(t *testing.T) {
	p := PayloadFromBytes("a.txt", []byte("hello"))
	assert.Equal(t, int64(5), p.Size)

	for i := 0; i < 2; i++ {
		rc, err := p.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		assert.Equal(t, "hello", string(data))
	}
}

func TestPayloadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# notes"), 0o644))

	p, err := PayloadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "notes.md", p.Name)
	assert.Equal(t, int64(7), p.Size)

	_, err = PayloadFromPath(dir)
	assert.Error(t, err)

	_, err = PayloadFromPath(filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)
}

func TestZeroPayloadOpenFails(t *testing.T) {
	_, err := FilePayload{Name: "x"}.Open()
	assert.Error(t, err)
}

func TestStatusIsError(t *testing.T) {
	assert.True(t, Status{Kind: StatusError}.IsError())
	assert.False(t, Status{Kind: StatusSuccess}.IsError())
}
