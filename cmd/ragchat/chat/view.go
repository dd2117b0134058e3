package chat

import (
	"fmt"
	"strings"

	"ragchat/cmd/ragchat/ui"
	"ragchat/internal/citation"
	"ragchat/internal/session"
	"ragchat/internal/types"

	"github.com/charmbracelet/lipgloss"
)

// View renders the whole screen.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())

	if m.viewMode == FilePickerView {
		sections = append(sections,
			m.styles.Title.Render("Pick a document to upload")+m.styles.Muted.Render("  (Esc to cancel)"),
			m.filepicker.View())
		return lipgloss.JoinVertical(lipgloss.Left, sections...)
	}

	sections = append(sections, m.viewport.View())
	if src, ok := m.viewer.Selected(); ok {
		sections = append(sections, m.renderCitation(src))
	}
	if banner := m.renderBanner(); banner != "" {
		sections = append(sections, banner)
	}
	if m.panel != "" {
		style := m.styles.Info
		if m.panelIsErr {
			style = m.styles.Error
		}
		sections = append(sections, style.Render(m.panel))
	}
	sections = append(sections, m.renderInput(), m.renderFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderHeader() string {
	state := m.session.State()
	files := m.session.Files()

	title := m.styles.Header.Render("ragchat")
	badge := m.styles.Badge.Render(state.String())
	docs := m.styles.Muted.Render("documents: …")
	if files.Loaded() {
		docs = m.styles.Muted.Render(fmt.Sprintf("documents: %d", len(files.Files())))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, title, " ", badge, "  ", docs) + "\n" +
		m.styles.RenderDivider(m.contentWidth())
}

// renderHistory renders the transcript. Sources are numbered so they can be
// opened with /source.
func (m Model) renderHistory(messages []types.Message) string {
	if len(messages) == 0 {
		return m.styles.Muted.Render("No messages yet.")
	}

	var sb strings.Builder
	for i, msg := range messages {
		switch msg.Role {
		case types.RoleUser:
			sb.WriteString(m.styles.UserLabel.Render("You") + "\n")
			sb.WriteString(m.styles.UserInput.Render(msg.Content))
			sb.WriteString("\n\n")

		default:
			sb.WriteString(m.styles.AssistantLabel.Render("Assistant") + "\n")
			if msg.Failed {
				sb.WriteString(m.styles.Error.Render(msg.Content))
			} else {
				sb.WriteString(m.safeRenderMarkdown(msg.Content))
			}
			sb.WriteString("\n")
			for j, src := range msg.Sources {
				ref := fmt.Sprintf("  [%d.%d] %s", i+1, j+1, src.String())
				sb.WriteString(m.styles.SourceRef.Render(ref) + "\n")
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// safeRenderMarkdown renders markdown with panic recovery
func (m Model) safeRenderMarkdown(content string) (result string) {
	defer func() {
		if r := recover(); r != nil {
			result = content
		}
	}()

	if m.renderer == nil || content == "" {
		return m.styles.AgentResponse.Render(content)
	}
	key := ui.ComputeKey(content, m.renderW, m.styles.Theme.IsDark)
	return m.mdCache.GetOrCompute(key, func() string {
		rendered, err := m.renderer.Render(content)
		if err != nil {
			return m.styles.AgentResponse.Render(content)
		}
		return strings.TrimRight(rendered, "\n")
	})
}

func (m Model) renderCitation(src types.Source) string {
	body := citation.Format(src)
	return m.styles.Citation.Width(m.contentWidth() - 4).Render(body)
}

func (m Model) renderBanner() string {
	st, ok := m.session.Files().Status()
	if !ok {
		return ""
	}
	if st.IsError() {
		return m.styles.Error.Render("✗ " + st.Message)
	}
	return m.styles.Success.Render("✓ " + st.Message)
}

func (m Model) renderInput() string {
	switch m.session.State() {
	case session.StateSending:
		return m.spinner.View() + m.styles.Muted.Render(" Answering...")
	case session.StateLoading:
		return m.spinner.View() + m.styles.Muted.Render(" Loading history and documents...")
	case session.StateUninitialized:
		return m.styles.Warning.Render("Not signed in.") + "\n" + m.textarea.View()
	case session.StateEmpty:
		hint := "Chat is disabled until a document is uploaded. Try /upload <path> or /pick."
		if m.session.Files().Uploading() {
			hint = "Uploading..."
		}
		return m.styles.Warning.Render(hint) + "\n" + m.textarea.View()
	}
	return m.textarea.View()
}

func (m Model) renderFooter() string {
	return m.styles.Footer.Render("Enter send · /help commands · Esc close · Ctrl+C quit")
}

// renderFiles lists the knowledge base for /files.
func (m Model) renderFiles() string {
	files := m.session.Files()
	if !files.Loaded() {
		return "Document list is still loading."
	}
	list := files.Files()
	if len(list) == 0 {
		return "No documents uploaded yet."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d document(s):\n", len(list)))
	for _, f := range list {
		created := "-"
		if !f.CreatedAt.IsZero() {
			created = f.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		sb.WriteString(fmt.Sprintf("  %-8s %-40s %s\n", f.ID, f.Filename, created))
	}
	return strings.TrimRight(sb.String(), "\n")
}
