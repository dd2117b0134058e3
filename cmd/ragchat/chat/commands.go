package chat

import (
	"fmt"
	"os"
	"strings"

	"ragchat/internal/citation"
	"ragchat/internal/types"

	tea "github.com/charmbracelet/bubbletea"
)

const helpText = `Commands
  /files               list documents in the knowledge base
  /upload <path>...    upload one or more documents
  /pick                choose a document to upload
  /delete <id> --yes   delete a document (omit --yes to preview)
  /source N | M.N      show source N of the latest answer, or of message M
  /refresh             reload history and the document list
  /help                show this help
  /quit                exit

Keys: Enter send · Alt+Enter newline · PgUp/PgDn scroll · Esc close panel · Ctrl+C quit`

// handleCommand runs a slash command typed into the input.
func (m Model) handleCommand(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)
	name, args := fields[0], fields[1:]

	switch name {
	case "/help", "/?":
		m.setPanel(helpText, false)
		return m, nil

	case "/quit", "/exit":
		m.Shutdown()
		return m, tea.Quit

	case "/files":
		m.setPanel(m.renderFiles(), false)
		return m, nil

	case "/upload":
		if len(args) == 0 {
			m.setPanel("Usage: /upload <path>...", true)
			return m, nil
		}
		return m.uploadPaths(args)

	case "/pick":
		m.viewMode = FilePickerView
		m.filepicker = newFilePicker(m.cfg.Extensions)
		if wd, err := os.Getwd(); err == nil {
			m.filepicker.CurrentDirectory = wd
		}
		m.layout()
		return m, m.filepicker.Init()

	case "/delete":
		return m.deleteFile(args)

	case "/source":
		if len(args) != 1 {
			m.setPanel("Usage: /source N or /source M.N", true)
			return m, nil
		}
		src, err := citation.Pick(m.session.Chat().Messages(), args[0])
		if err != nil {
			m.setPanel(err.Error(), true)
			return m, nil
		}
		m.clearPanel()
		m.viewer.Select(src)
		m.layout()
		return m, nil

	case "/refresh":
		m.setPanel("Refreshing...", false)
		return m, m.refresh()

	default:
		m.setPanel(fmt.Sprintf("Unknown command %s. Type /help for a list.", name), true)
		return m, nil
	}
}

// uploadPaths selects the files and starts an upload. Unreadable paths are
// reported without touching the previous selection.
func (m Model) uploadPaths(paths []string) (tea.Model, tea.Cmd) {
	payloads := make([]types.FilePayload, 0, len(paths))
	for _, p := range paths {
		payload, err := types.PayloadFromPath(p)
		if err != nil {
			m.setPanel(fmt.Sprintf("Cannot read %s: %v", p, err), true)
			return m, nil
		}
		payloads = append(payloads, payload)
	}

	files := m.session.Files()
	files.Select(payloads...)
	m.setPanel(fmt.Sprintf("Uploading %d file(s)...", len(payloads)), false)

	ctx := m.shutdownCtx
	return m, func() tea.Msg {
		return fileOpMsg{op: "upload", err: files.Upload(ctx)}
	}
}

// deleteFile previews without --yes and deletes with it.
func (m Model) deleteFile(args []string) (tea.Model, tea.Cmd) {
	var id string
	confirmed := false
	for _, a := range args {
		if a == "--yes" || a == "-y" {
			confirmed = true
			continue
		}
		id = a
	}
	if id == "" && confirmed {
		id = m.pendingDelete
	}
	if id == "" {
		m.setPanel("Usage: /delete <id> --yes", true)
		return m, nil
	}

	var record *types.FileRecord
	for _, f := range m.session.Files().Files() {
		if f.ID == id {
			rec := f
			record = &rec
			break
		}
	}
	if record == nil {
		m.setPanel(fmt.Sprintf("No document with id %s. Use /files to list ids.", id), true)
		return m, nil
	}

	if !confirmed {
		m.setPanel(fmt.Sprintf("Delete %s (id %s)? Run /delete %s --yes to confirm.", record.Filename, id, id), false)
		m.pendingDelete = id
		return m, nil
	}

	m.clearPanel()
	files := m.session.Files()
	ctx := m.shutdownCtx
	return m, func() tea.Msg {
		return fileOpMsg{op: "delete", err: files.Delete(ctx, id)}
	}
}

// refresh reloads the document list and the stored transcript.
func (m Model) refresh() tea.Cmd {
	s := m.session
	ctx := m.shutdownCtx
	return func() tea.Msg {
		if err := s.Files().Refresh(ctx); err != nil {
			return fileOpMsg{op: "refresh", err: err}
		}
		return fileOpMsg{op: "refresh", err: s.Chat().Start(ctx)}
	}
}
