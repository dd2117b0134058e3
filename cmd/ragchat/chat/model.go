// Package chat implements the interactive terminal chat for ragchat.
// The model is a thin presentation layer over session.Session: every
// transcript and file-list mutation happens in the session; the model
// only reacts to its change notifications.
package chat

import (
	"context"
	"sync"

	"ragchat/cmd/ragchat/ui"
	"ragchat/internal/citation"
	"ragchat/internal/logging"
	"ragchat/internal/session"
	"ragchat/internal/types"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"
)

// ViewMode determines which component is focused.
type ViewMode int

const (
	ChatView ViewMode = iota
	FilePickerView
)

// Config holds configuration for initializing the chat interface.
type Config struct {
	Theme      string   // "dark", "light" or "" for detection
	Markdown   bool     // render assistant replies with glamour
	Extensions []string // file types offered by /pick
	Logger     *zap.Logger
}

// =============================================================================
// MESSAGES
// =============================================================================

type (
	windowSizeMsg = tea.WindowSizeMsg

	// sessionStartedMsg reports completion of the initial loads.
	sessionStartedMsg struct{ err error }

	// replyMsg carries the outcome of one Complete call.
	replyMsg struct {
		reply types.Message
		err   error
	}

	// fileOpMsg reports a finished upload, delete or refresh.
	fileOpMsg struct {
		op  string
		err error
	}

	sessionChangedMsg struct{}
	sessionClosedMsg  struct{}
)

// Model is the bubbletea model for the chat view.
type Model struct {
	session *session.Session
	viewer  *citation.Viewer
	logger  *zap.Logger
	cfg     Config

	// UI components
	textarea   textarea.Model
	viewport   viewport.Model
	spinner    spinner.Model
	filepicker filepicker.Model
	renderer   *glamour.TermRenderer
	renderW    int
	mdCache    *ui.RenderCache
	styles     ui.Styles

	viewMode      ViewMode
	width, height int
	ready         bool

	// panel is transient command output shown above the input.
	panel      string
	panelIsErr bool

	// pendingDelete is the file id awaiting "--yes" confirmation.
	pendingDelete string

	shutdownOnce   *sync.Once
	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
}

// New creates the chat model. The model takes ownership of s and closes it
// on shutdown.
func New(s *session.Session, cfg Config) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask a question about your documents..."
	ta.ShowLineNumbers = false
	ta.Prompt = "┃ "
	ta.CharLimit = 4000
	ta.SetHeight(3)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	styles := ui.NewStyles(ui.ThemeByName(cfg.Theme))
	sp.Style = styles.Spinner

	ctx, cancel := context.WithCancel(context.Background())

	m := Model{
		session:        s,
		viewer:         &citation.Viewer{},
		logger:         logging.Named(cfg.Logger, logging.CategoryUI),
		cfg:            cfg,
		textarea:       ta,
		viewport:       viewport.New(80, 20),
		spinner:        sp,
		filepicker:     newFilePicker(cfg.Extensions),
		styles:         styles,
		viewMode:       ChatView,
		mdCache:        ui.NewRenderCache(256),
		shutdownOnce:   &sync.Once{},
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
	if cfg.Markdown {
		m.renderer, m.renderW = newRenderer(styles.Theme.IsDark, 80), 80
	}
	return m
}

func newRenderer(dark bool, width int) *glamour.TermRenderer {
	style := "light"
	if dark {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

func newFilePicker(exts []string) filepicker.Model {
	fp := filepicker.New()
	fp.AllowedTypes = exts
	fp.ShowHidden = false
	fp.AutoHeight = false
	fp.Height = 12
	return fp
}

// Init starts the initial loads and subscribes to session changes.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.startSession(),
		m.waitForChange(),
	)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Shutdown cancels in-flight requests and closes the session.
// Safe to call multiple times.
func (m *Model) Shutdown() {
	m.shutdownOnce.Do(func() {
		if m.shutdownCancel != nil {
			m.shutdownCancel()
		}
		if m.session != nil {
			m.session.Close()
		}
		m.logger.Debug("chat shut down")
	})
}

func (m Model) startSession() tea.Cmd {
	s := m.session
	ctx := m.shutdownCtx
	return func() tea.Msg {
		return sessionStartedMsg{err: s.Start(ctx)}
	}
}

// waitForChange blocks until the session signals a change.
func (m Model) waitForChange() tea.Cmd {
	ch := m.session.Changes()
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return sessionClosedMsg{}
		}
		return sessionChangedMsg{}
	}
}

func (m Model) complete(tk session.Ticket) tea.Cmd {
	c := m.session.Chat()
	ctx := m.shutdownCtx
	return func() tea.Msg {
		reply, err := c.Complete(ctx, tk)
		return replyMsg{reply: reply, err: err}
	}
}
