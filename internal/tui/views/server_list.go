package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Bigsy/mcpherd/internal/events"
	"github.com/Bigsy/mcpherd/internal/tui/theme"
)

// ServerRow is one row of the server list.
type ServerRow struct {
	Status    events.ServerStatus
	DependsOn []string
}

// ServerListModel renders the supervised servers with their states.
type ServerListModel struct {
	theme    theme.Theme
	rows     []ServerRow
	selected int
	width    int
	focused  bool
}

// NewServerList creates a server list view.
func NewServerList(th theme.Theme) ServerListModel {
	return ServerListModel{theme: th, focused: true}
}

// SetRows replaces the rows, clamping the selection.
func (m *ServerListModel) SetRows(rows []ServerRow) {
	m.rows = rows
	if m.selected >= len(rows) {
		m.selected = len(rows) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

// SetWidth sets the render width.
func (m *ServerListModel) SetWidth(width int) { m.width = width }

// SetFocused marks the list focused for key routing.
func (m *ServerListModel) SetFocused(focused bool) { m.focused = focused }

// Selected returns the selected server name, or "" when the list is empty.
func (m ServerListModel) Selected() string {
	if len(m.rows) == 0 {
		return ""
	}
	return m.rows[m.selected].Status.Name
}

// MoveUp moves the selection up one row.
func (m *ServerListModel) MoveUp() {
	if m.selected > 0 {
		m.selected--
	}
}

// MoveDown moves the selection down one row.
func (m *ServerListModel) MoveDown() {
	if m.selected < len(m.rows)-1 {
		m.selected++
	}
}

// GotoTop moves the selection to the first row.
func (m *ServerListModel) GotoTop() { m.selected = 0 }

// GotoBottom moves the selection to the last row.
func (m *ServerListModel) GotoBottom() {
	if len(m.rows) > 0 {
		m.selected = len(m.rows) - 1
	}
}

// View renders the list, using spinnerFrame for transitional states.
func (m ServerListModel) View(spinnerFrame string) string {
	if len(m.rows) == 0 {
		return m.theme.Faint.Render("No servers configured. Press 'a' to add one.")
	}

	var b strings.Builder
	for i, row := range m.rows {
		if i > 0 {
			b.WriteString("\n")
		}

		cursor := "  "
		nameStyle := m.theme.Item
		if i == m.selected && m.focused {
			cursor = m.theme.Primary.Render("▸ ")
			nameStyle = m.theme.ItemSelected
		}

		st := row.Status
		pill := m.theme.StatusPillAnimated(st.State.String(), spinnerFrame)
		line := cursor + pill + " " + nameStyle.Render(st.Name)

		var extras []string
		if st.PID > 0 {
			extras = append(extras, fmt.Sprintf("pid %d", st.PID))
		}
		if st.RestartCount > 0 {
			extras = append(extras, fmt.Sprintf("restarts %d", st.RestartCount))
		}
		if len(row.DependsOn) > 0 {
			extras = append(extras, "after "+strings.Join(row.DependsOn, ","))
		}
		if st.Error != "" {
			extras = append(extras, st.Error)
		}
		if len(extras) > 0 {
			line += " " + m.theme.Faint.Render(strings.Join(extras, " · "))
		}

		if m.width > 0 {
			line = lipgloss.NewStyle().MaxWidth(m.width).Render(line)
		}
		b.WriteString(line)
	}
	return b.String()
}
