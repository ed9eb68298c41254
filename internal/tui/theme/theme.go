// Package theme provides the visual theme for the TUI.
package theme

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme holds the styles used in the TUI.
type Theme struct {
	Base  lipgloss.Style
	Muted lipgloss.Style
	Faint lipgloss.Style
	Title lipgloss.Style

	Primary lipgloss.Style
	Success lipgloss.Style
	Warn    lipgloss.Style
	Danger  lipgloss.Style

	App         lipgloss.Style
	Pane        lipgloss.Style
	PaneFocused lipgloss.Style

	Item         lipgloss.Style
	ItemSelected lipgloss.Style
	ItemDim      lipgloss.Style

	StatusBar lipgloss.Style
}

// New creates the default theme (teal accent).
func New() Theme {
	primary := lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#2DD4BF"}
	success := lipgloss.AdaptiveColor{Light: "#0F7B0F", Dark: "#9ECE6A"}
	warn := lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}
	danger := lipgloss.AdaptiveColor{Light: "#B00020", Dark: "#F7768E"}
	border := lipgloss.AdaptiveColor{Light: "#D0D7DE", Dark: "#3B4261"}
	muted := lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#A9B1D6"}
	faint := lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#565F89"}

	return Theme{
		Base:  lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#111827", Dark: "#C0CAF5"}),
		Muted: lipgloss.NewStyle().Foreground(muted),
		Faint: lipgloss.NewStyle().Foreground(faint),
		Title: lipgloss.NewStyle().Bold(true),

		Primary: lipgloss.NewStyle().Foreground(primary),
		Success: lipgloss.NewStyle().Foreground(success),
		Warn:    lipgloss.NewStyle().Foreground(warn),
		Danger:  lipgloss.NewStyle().Foreground(danger),

		App: lipgloss.NewStyle().Padding(0, 1),

		Pane: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1),

		PaneFocused: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(primary).
			Padding(0, 1),

		Item:         lipgloss.NewStyle().Padding(0, 1),
		ItemSelected: lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(primary),
		ItemDim:      lipgloss.NewStyle().Padding(0, 1).Foreground(faint),

		StatusBar: lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(muted),
	}
}

// StatusPill renders a colored pill for a server state.
func (t Theme) StatusPill(state string) string {
	pill := lipgloss.NewStyle().Padding(0, 1).Bold(true)
	switch state {
	case "running":
		return pill.Background(lipgloss.Color("#14532D")).
			Foreground(lipgloss.Color("#DCFCE7")).Render("● RUN")
	case "stopped":
		return pill.Background(lipgloss.Color("#374151")).
			Foreground(lipgloss.Color("#E5E7EB")).Render("○ STOP")
	case "starting", "stopping":
		return pill.Background(lipgloss.Color("#713F12")).
			Foreground(lipgloss.Color("#FEF3C7")).Render("◐ ...")
	case "error":
		return pill.Background(lipgloss.Color("#7F1D1D")).
			Foreground(lipgloss.Color("#FEE2E2")).Render("✖ ERR")
	case "crashed":
		return pill.Background(lipgloss.Color("#7F1D1D")).
			Foreground(lipgloss.Color("#FEE2E2")).Render("✖ CRASH")
	default:
		return pill.Background(lipgloss.Color("#374151")).
			Foreground(lipgloss.Color("#E5E7EB")).Render("○ " + state)
	}
}

// StatusPillAnimated swaps the pill glyph for a spinner frame in
// transitional states.
func (t Theme) StatusPillAnimated(state, spinnerFrame string) string {
	pill := lipgloss.NewStyle().Padding(0, 1).Bold(true)
	switch state {
	case "starting", "stopping":
		return pill.Background(lipgloss.Color("#713F12")).
			Foreground(lipgloss.Color("#FEF3C7")).Render(spinnerFrame + " ...")
	default:
		return t.StatusPill(state)
	}
}

// RenderPane renders content in a bordered pane with the title embedded in
// the top border:
//
//	╭─┤ Servers ├──────────────────────────────╮
//	│ content here                             │
//	╰──────────────────────────────────────────╯
func (t Theme) RenderPane(title, content string, width int, focused bool) string {
	if width < 10 {
		width = 10
	}

	borderColor := lipgloss.AdaptiveColor{Light: "#D0D7DE", Dark: "#3B4261"}
	if focused {
		borderColor = lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#2DD4BF"}
	}

	borderStyle := lipgloss.NewStyle().Foreground(borderColor)
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(borderColor)

	contentWidth := width - 4
	if contentWidth < 1 {
		contentWidth = 1
	}

	titleText := titleStyle.Render(title)
	restWidth := width - lipgloss.Width(titleText) - 7
	if restWidth < 0 {
		restWidth = 0
	}
	header := borderStyle.Render("╭─┤ ") + titleText + borderStyle.Render(" ├"+strings.Repeat("─", restWidth)+"╮")

	var body strings.Builder
	for _, line := range strings.Split(content, "\n") {
		padding := contentWidth - lipgloss.Width(line)
		if padding < 0 {
			padding = 0
		}
		body.WriteString(borderStyle.Render("│ "))
		body.WriteString(line)
		body.WriteString(strings.Repeat(" ", padding))
		body.WriteString(borderStyle.Render(" │"))
		body.WriteString("\n")
	}

	footerWidth := width - 2
	if footerWidth < 0 {
		footerWidth = 0
	}
	footer := borderStyle.Render("╰" + strings.Repeat("─", footerWidth) + "╯")

	return header + "\n" + body.String() + footer
}
