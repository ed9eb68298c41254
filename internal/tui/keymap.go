package tui

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyBindings holds the dashboard keybindings.
type KeyBindings struct {
	Quit   key.Binding
	Help   key.Binding
	Escape key.Binding
	CtrlC  key.Binding

	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding

	Start    key.Binding
	Stop     key.Binding
	Restart  key.Binding
	StartAll key.Binding
	StopAll  key.Binding
	Cancel   key.Binding

	Add    key.Binding
	Delete key.Binding

	ToggleLogs key.Binding
	FollowLogs key.Binding

	Yes key.Binding
	No  key.Binding
}

// NewKeyBindings creates the default keybindings.
func NewKeyBindings() KeyBindings {
	return KeyBindings{
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back/close"),
		),
		CtrlC: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "force quit"),
		),

		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g"),
			key.WithHelp("g", "top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G"),
			key.WithHelp("G", "bottom"),
		),

		Start: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "start"),
		),
		Stop: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "stop"),
		),
		Restart: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "restart"),
		),
		StartAll: key.NewBinding(
			key.WithKeys("S"),
			key.WithHelp("S", "start all"),
		),
		StopAll: key.NewBinding(
			key.WithKeys("X"),
			key.WithHelp("X", "stop all"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "cancel requests"),
		),

		Add: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "add"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d", "delete"),
		),

		ToggleLogs: key.NewBinding(
			key.WithKeys("l"),
			key.WithHelp("l", "logs"),
		),
		FollowLogs: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "follow"),
		),

		Yes: key.NewBinding(
			key.WithKeys("y", "Y"),
			key.WithHelp("y", "yes"),
		),
		No: key.NewBinding(
			key.WithKeys("n", "N"),
			key.WithHelp("n", "no"),
		),
	}
}

// ShortHelp returns keybindings for the status bar.
func (k KeyBindings) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.Restart, k.Add, k.ToggleLogs, k.Quit}
}

// FullHelp returns keybindings for the full help view.
func (k KeyBindings) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Top, k.Bottom, k.Escape},
		{k.Start, k.Stop, k.Restart, k.StartAll, k.StopAll, k.Cancel},
		{k.Add, k.Delete, k.ToggleLogs, k.FollowLogs},
		{k.Help, k.Quit, k.CtrlC},
	}
}
