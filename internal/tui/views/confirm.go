package views

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Bigsy/mcpherd/internal/tui/theme"
)

// ConfirmResult is sent when the user answers the confirmation dialog.
type ConfirmResult struct {
	Confirmed bool
	Tag       string // identifies which action was confirmed
}

// ConfirmModel is a reusable confirmation dialog.
type ConfirmModel struct {
	theme   theme.Theme
	visible bool
	title   string
	message string
	tag     string
	width   int
	height  int

	yesKey key.Binding
	noKey  key.Binding
	escKey key.Binding
}

// NewConfirm creates a confirmation dialog.
func NewConfirm(th theme.Theme) ConfirmModel {
	return ConfirmModel{
		theme: th,
		yesKey: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "yes"),
		),
		noKey: key.NewBinding(
			key.WithKeys("n", "N"),
			key.WithHelp("n", "no"),
		),
		escKey: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
	}
}

// Show displays the dialog.
func (m *ConfirmModel) Show(title, message, tag string) {
	m.visible = true
	m.title = title
	m.message = message
	m.tag = tag
}

// Hide hides the dialog.
func (m *ConfirmModel) Hide() { m.visible = false }

// IsVisible reports whether the dialog is shown.
func (m ConfirmModel) IsVisible() bool { return m.visible }

// SetSize sets the size used for centering.
func (m *ConfirmModel) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Update handles key events.
func (m ConfirmModel) Update(msg tea.Msg) (ConfirmModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, m.yesKey):
			m.visible = false
			return m, func() tea.Msg { return ConfirmResult{Confirmed: true, Tag: m.tag} }
		case key.Matches(keyMsg, m.noKey), key.Matches(keyMsg, m.escKey):
			m.visible = false
			return m, func() tea.Msg { return ConfirmResult{Confirmed: false, Tag: m.tag} }
		}
	}
	return m, nil
}

// View renders the dialog.
func (m ConfirmModel) View() string {
	if !m.visible {
		return ""
	}

	dialogWidth := 50
	if m.width > 0 && m.width < 60 {
		dialogWidth = m.width - 10
	}

	title := m.title
	if title == "" {
		title = "Confirm"
	}

	content := m.theme.Danger.Bold(true).Render(title) + "\n\n" +
		m.message + "\n\n" +
		m.theme.Muted.Render("[y]es  [n]o")

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.theme.Danger.GetForeground()).
		Padding(1, 2).
		Width(dialogWidth).
		Render(content)
}

// RenderOverlay centers the dialog on top of the base content.
func (m ConfirmModel) RenderOverlay(base string, width, height int) string {
	if !m.visible {
		return base
	}
	return lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		m.View(),
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.AdaptiveColor{Light: "#E5E7EB", Dark: "#1F2937"}),
	)
}
