package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Bigsy/mcpherd/internal/tui/theme"
)

// maxLogEntries bounds the activity panel history.
const maxLogEntries = 1000

// LogEntry is one line in the activity panel: a server stderr line, a
// notification, or a progress update.
type LogEntry struct {
	Server    string
	Line      string
	Timestamp time.Time
	Warn      bool
}

// LogPanelModel displays server logs and runtime activity.
type LogPanelModel struct {
	theme    theme.Theme
	viewport viewport.Model
	entries  []LogEntry
	follow   bool
	visible  bool
	width    int
	height   int
	focused  bool
}

// NewLogPanel creates a log panel.
func NewLogPanel(th theme.Theme) LogPanelModel {
	return LogPanelModel{
		theme:    th,
		viewport: viewport.New(0, 0),
		entries:  make([]LogEntry, 0, maxLogEntries),
		follow:   true,
	}
}

// SetSize sets the panel dimensions.
func (m *LogPanelModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width - 4
	m.viewport.Height = height - 3
	if m.viewport.Width < 10 {
		m.viewport.Width = 10
	}
	if m.viewport.Height < 1 {
		m.viewport.Height = 1
	}
	m.updateContent()
}

// SetVisible toggles panel visibility.
func (m *LogPanelModel) SetVisible(visible bool) { m.visible = visible }

// IsVisible reports whether the panel is shown.
func (m LogPanelModel) IsVisible() bool { return m.visible }

// SetFocused marks the panel focused for key routing.
func (m *LogPanelModel) SetFocused(focused bool) { m.focused = focused }

// IsFocused reports whether the panel has focus.
func (m LogPanelModel) IsFocused() bool { return m.focused }

// ToggleFollow toggles tail-follow mode.
func (m *LogPanelModel) ToggleFollow() {
	m.follow = !m.follow
	if m.follow {
		m.viewport.GotoBottom()
	}
}

// IsFollowing reports whether tail-follow is on.
func (m LogPanelModel) IsFollowing() bool { return m.follow }

// Append adds an entry to the panel.
func (m *LogPanelModel) Append(entry LogEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	m.entries = append(m.entries, entry)
	if len(m.entries) > maxLogEntries {
		m.entries = m.entries[len(m.entries)-maxLogEntries:]
	}
	m.updateContent()
	if m.follow {
		m.viewport.GotoBottom()
	}
}

// Clear drops all entries.
func (m *LogPanelModel) Clear() {
	m.entries = m.entries[:0]
	m.updateContent()
}

func (m *LogPanelModel) updateContent() {
	if len(m.entries) == 0 {
		m.viewport.SetContent(m.theme.Faint.Render("No activity yet..."))
		return
	}

	var content strings.Builder
	for i, entry := range m.entries {
		if i > 0 {
			content.WriteString("\n")
		}
		content.WriteString(m.theme.Faint.Render(entry.Timestamp.Format("15:04:05")))
		content.WriteString(" ")
		content.WriteString(m.theme.Primary.Render(fmt.Sprintf("[%s]", entry.Server)))
		content.WriteString(" ")

		lower := strings.ToLower(entry.Line)
		switch {
		case strings.Contains(lower, "error") || strings.Contains(lower, "err:"):
			content.WriteString(m.theme.Danger.Render(entry.Line))
		case entry.Warn || strings.Contains(lower, "warn"):
			content.WriteString(m.theme.Warn.Render(entry.Line))
		default:
			content.WriteString(m.theme.Base.Render(entry.Line))
		}
	}
	m.viewport.SetContent(content.String())
}

// Init implements tea.Model.
func (m LogPanelModel) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m LogPanelModel) Update(msg tea.Msg) (LogPanelModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m LogPanelModel) View() string {
	if !m.visible {
		return ""
	}

	style := m.theme.Pane
	if m.focused {
		style = m.theme.PaneFocused
	}

	title := "Activity"
	if m.follow {
		title += " " + m.theme.Success.Render("[f]ollow")
	} else {
		title += " " + m.theme.Faint.Render("[f]ollow")
	}

	header := m.theme.Title.Render(title) + "\n"
	return style.Width(m.width - 2).Render(header + m.viewport.View())
}
