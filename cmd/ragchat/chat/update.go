package chat

import (
	"errors"
	"fmt"
	"strings"

	"ragchat/internal/gateway"
	"ragchat/internal/session"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// Update handles one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.Shutdown()
			return m, tea.Quit

		case tea.KeyEsc:
			if m.viewMode == FilePickerView {
				m.viewMode = ChatView
				return m, nil
			}
			if m.viewer.Open() {
				m.viewer.Clear()
				m.layout()
				return m, nil
			}
			if m.panel != "" {
				m.clearPanel()
				return m, nil
			}
			m.Shutdown()
			return m, tea.Quit
		}

		if m.viewMode == FilePickerView {
			return m.updateFilePicker(msg)
		}

		switch msg.Type {
		case tea.KeyEnter:
			// Alt+Enter and pasted newlines go to the textarea.
			if msg.Alt || msg.Paste {
				break
			}
			return m.handleSubmit()

		case tea.KeyPgUp, tea.KeyPgDown:
			m.viewport, vpCmd = m.viewport.Update(msg)
			return m, vpCmd
		}

		m.textarea, tiCmd = m.textarea.Update(msg)
		return m, tiCmd

	case windowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		if !m.ready {
			m.ready = true
		}
		if m.cfg.Markdown {
			m.renderW = m.contentWidth()
			m.renderer = newRenderer(m.styles.Theme.IsDark, m.renderW)
		}
		m.refreshTranscript()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case sessionStartedMsg:
		if msg.err != nil {
			if errors.Is(msg.err, gateway.ErrAuthMissing) {
				m.setPanel("Not signed in. Set RAGCHAT_TOKEN or auth.token in the config file.", true)
			} else {
				m.logger.Warn("session start", zap.Error(msg.err))
			}
		}
		m.refreshTranscript()
		return m, nil

	case sessionChangedMsg:
		m.refreshTranscript()
		return m, m.waitForChange()

	case sessionClosedMsg:
		return m, nil

	case replyMsg:
		if msg.err != nil && !errors.Is(msg.err, session.ErrClosed) {
			m.logger.Warn("answer failed", zap.Error(msg.err))
		}
		m.refreshTranscript()
		return m, nil

	case fileOpMsg:
		// Upload and delete outcomes show in the tracker banner.
		m.clearPanel()
		if msg.err != nil {
			m.logger.Debug("file operation failed", zap.String("op", msg.op), zap.Error(msg.err))
			if msg.op == "refresh" {
				m.setPanel(fmt.Sprintf("Refresh failed: %v", msg.err), true)
			}
		}
		m.refreshTranscript()
		return m, nil
	}

	if m.viewMode == FilePickerView {
		var cmd tea.Cmd
		m.filepicker, cmd = m.filepicker.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleSubmit routes slash commands and otherwise begins a submission.
// Begin appends the user message synchronously; the answer arrives later
// as a replyMsg.
func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	text := m.textarea.Value()
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return m, nil
	}
	if strings.HasPrefix(trimmed, "/") {
		m.textarea.Reset()
		return m.handleCommand(trimmed)
	}

	tk, err := m.session.Chat().Begin(text)
	if err != nil {
		m.setPanel(rejectionMessage(m.session.State(), err), true)
		return m, nil
	}

	m.textarea.Reset()
	m.clearPanel()
	m.viewer.Clear()
	m.refreshTranscript()
	return m, m.complete(tk)
}

func rejectionMessage(state session.State, err error) string {
	switch {
	case errors.Is(err, gateway.ErrAuthMissing):
		return "Not signed in."
	case state == session.StateLoading:
		return "Still loading your documents and history..."
	case state == session.StateEmpty:
		return "Upload at least one document before asking questions (/upload or /pick)."
	case state == session.StateSending:
		return "Wait for the current answer to finish."
	default:
		return fmt.Sprintf("Cannot send: %v", err)
	}
}

func (m Model) updateFilePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.filepicker, cmd = m.filepicker.Update(msg)

	if didSelect, path := m.filepicker.DidSelectFile(msg); didSelect {
		m.viewMode = ChatView
		m.filepicker = newFilePicker(m.cfg.Extensions)
		return m.uploadPaths([]string{path})
	}
	if didSelect, path := m.filepicker.DidSelectDisabledFile(msg); didSelect {
		m.setPanel(fmt.Sprintf("%s is not a supported document type.", path), true)
	}
	return m, cmd
}

// layout sizes the viewport and input for the current window.
func (m *Model) layout() {
	headerHeight := 2
	inputHeight := m.textarea.Height() + 2
	footerHeight := 2
	panelHeight := 0
	if m.viewer.Open() {
		panelHeight = 8
	}
	h := m.height - headerHeight - inputHeight - footerHeight - panelHeight
	if h < 3 {
		h = 3
	}
	m.viewport.Width = m.contentWidth()
	m.viewport.Height = h
	m.textarea.SetWidth(m.contentWidth())
	m.filepicker.Height = h
}

func (m Model) contentWidth() int {
	if m.width <= 4 {
		return 76
	}
	return m.width - 4
}

func (m *Model) refreshTranscript() {
	m.layout()
	atBottom := m.viewport.AtBottom() || m.viewport.TotalLineCount() == 0
	m.viewport.SetContent(m.renderHistory(m.session.Chat().Messages()))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) setPanel(text string, isErr bool) {
	m.panel = text
	m.panelIsErr = isErr
}

func (m *Model) clearPanel() {
	m.panel = ""
	m.panelIsErr = false
	m.pendingDelete = ""
}
