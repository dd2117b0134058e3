package chat

import (
	"context"
	"sync"
	"testing"

	"ragchat/internal/gateway"
	"ragchat/internal/session"
	"ragchat/internal/types"

	tea "github.com/charmbracelet/bubbletea"
)

// stubBackend is an in-memory backend for driving the model.
type stubBackend struct {
	mu      sync.Mutex
	history []types.Message
	files   []types.FileRecord
	answer  gateway.Answer
	askErr  error
	asks    []string
	deleted []string
	uploads []string
}

func (b *stubBackend) FetchHistory(ctx context.Context, token string) []types.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return types.CloneMessages(b.history)
}

func (b *stubBackend) SendQuery(ctx context.Context, token, text string) (gateway.Answer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.asks = append(b.asks, text)
	return b.answer, b.askErr
}

func (b *stubBackend) ListFiles(ctx context.Context, token string) []types.FileRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.FileRecord(nil), b.files...)
}

func (b *stubBackend) UploadFiles(ctx context.Context, token string, files []types.FilePayload) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range files {
		b.uploads = append(b.uploads, f.Name)
	}
	return nil
}

func (b *stubBackend) DeleteFile(ctx context.Context, token, fileID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, fileID)
	return nil
}

func (b *stubBackend) askCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.asks)
}

// TestModelOption configures the test model.
type TestModelOption func(*stubBackend)

// WithFiles seeds the knowledge base.
func WithFiles(files ...types.FileRecord) TestModelOption {
	return func(b *stubBackend) { b.files = files }
}

// WithAnswer sets the reply to every question.
func WithAnswer(a gateway.Answer) TestModelOption {
	return func(b *stubBackend) { b.answer = a }
}

// WithAskError makes every question fail.
func WithAskError(err error) TestModelOption {
	return func(b *stubBackend) { b.askErr = err }
}

// WithHistory seeds the stored transcript.
func WithHistory(msgs ...types.Message) TestModelOption {
	return func(b *stubBackend) { b.history = msgs }
}

// NewTestModel returns a started, sized model over a stub backend.
func NewTestModel(t *testing.T, opts ...TestModelOption) (Model, *stubBackend) {
	t.Helper()
	b := &stubBackend{}
	for _, opt := range opts {
		opt(b)
	}

	s := session.New(b, "test-token")
	m := New(s, Config{Markdown: false, Extensions: []string{".pdf", ".txt"}})
	t.Cleanup(m.Shutdown)

	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m = update(t, m, m.startSession()())
	return m, b
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

// typeAndSubmit puts text in the input and presses Enter.
func typeAndSubmit(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.textarea.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}
