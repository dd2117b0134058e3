// Package types provides the shared data model for ragchat packages.
// Types in this package are plain data with no behavior beyond copying and
// small formatting helpers, so every other package can import it freely.
package types

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// =============================================================================
// TRANSCRIPT TYPES
// =============================================================================

// Role identifies who authored a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Source is a citation pointing back at an indexed passage.
// Sources are produced only from backend payloads.
type Source struct {
	DocumentName string
	Page         int
	Snippet      string
}

// String renders the citation header, e.g. "policy.pdf (page 2)".
func (s Source) String() string {
	return fmt.Sprintf("%s (page %d)", s.DocumentName, s.Page)
}

// Message is one immutable transcript entry.
type Message struct {
	Role    Role
	Content string
	Sources []Source

	// Failed marks a locally generated apology for a question that got no
	// answer. It is never set on entries loaded from the backend.
	Failed bool
}

// Clone returns a deep copy so callers never alias a controller's log.
func (m Message) Clone() Message {
	out := Message{Role: m.Role, Content: m.Content, Failed: m.Failed}
	if len(m.Sources) > 0 {
		out.Sources = make([]Source, len(m.Sources))
		copy(out.Sources, m.Sources)
	}
	return out
}

// CloneMessages deep-copies a transcript.
func CloneMessages(in []Message) []Message {
	out := make([]Message, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}

// =============================================================================
// KNOWLEDGE BASE TYPES
// =============================================================================

// FileRecord is one ingested document as reported by the backend listing.
type FileRecord struct {
	ID        string
	Filename  string
	CreatedAt time.Time
}

// FilePayload is a client-local document selected for upload.
// It can be opened any number of times so a failed upload can be retried
// without selecting the files again.
type FilePayload struct {
	Name string
	Size int64

	open func() (io.ReadCloser, error)
}

// Open returns a fresh reader over the payload content.
func (p FilePayload) Open() (io.ReadCloser, error) {
	if p.open == nil {
		return nil, fmt.Errorf("payload %q has no content", p.Name)
	}
	return p.open()
}

// PayloadFromPath builds a payload backed by a file on disk.
func PayloadFromPath(path string) (FilePayload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FilePayload{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return FilePayload{}, fmt.Errorf("%s is a directory", path)
	}
	return FilePayload{
		Name: filepath.Base(path),
		Size: info.Size(),
		open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// PayloadFromBytes builds an in-memory payload.
func PayloadFromBytes(name string, data []byte) FilePayload {
	buf := append([]byte(nil), data...)
	return FilePayload{
		Name: name,
		Size: int64(len(buf)),
		open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(buf)), nil
		},
	}
}

// =============================================================================
// STATUS BANNER
// =============================================================================

// StatusKind classifies a file-path status banner.
type StatusKind string

const (
	StatusSuccess StatusKind = "success"
	StatusError   StatusKind = "error"
)

// Status is the human-readable outcome of the last file operation.
type Status struct {
	Kind    StatusKind
	Message string
}

// IsError reports whether the banner describes a failure.
func (s Status) IsError() bool { return s.Kind == StatusError }
