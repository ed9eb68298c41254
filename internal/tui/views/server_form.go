package views

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/Bigsy/mcpherd/internal/config"
	"github.com/Bigsy/mcpherd/internal/tui/theme"
)

// ServerFormResult is sent when the user completes or cancels the form.
type ServerFormResult struct {
	Server    config.ServerConfig
	Submitted bool
}

// ServerFormModel is the add-server form.
type ServerFormModel struct {
	theme   theme.Theme
	visible bool
	width   int
	height  int

	form *huh.Form

	name      string
	command   string
	args      string
	cwd       string
	env       string
	dependsOn string
	autostart bool

	escKey key.Binding
}

// NewServerForm creates a server form.
func NewServerForm(th theme.Theme) ServerFormModel {
	return ServerFormModel{
		theme: th,
		escKey: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
	}
}

// Show displays the form for adding a new server and returns the command
// that initializes it.
func (m *ServerFormModel) Show() tea.Cmd {
	m.visible = true
	m.name = ""
	m.command = ""
	m.args = ""
	m.cwd = ""
	m.env = ""
	m.dependsOn = ""
	m.autostart = false
	m.buildForm()
	return m.form.Init()
}

func (m *ServerFormModel) buildForm() {
	keymap := huh.NewDefaultKeyMap()
	keymap.Input.Prev.SetKeys("up", "shift+tab")
	keymap.Input.Next.SetKeys("down", "tab")
	keymap.Text.Prev.SetKeys("up", "shift+tab")
	keymap.Text.Next.SetKeys("down", "tab")
	keymap.Confirm.Prev.SetKeys("up", "shift+tab")
	keymap.Confirm.Next.SetKeys("down", "tab")

	formTheme := huh.ThemeBase16()
	accent := lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#2DD4BF"}
	formTheme.Focused.Title = formTheme.Focused.Title.Foreground(accent)
	formTheme.Blurred.Title = formTheme.Blurred.Title.Foreground(accent)

	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Description("Unique server name").
				Value(&m.name).
				Validate(huh.ValidateNotEmpty()),

			huh.NewInput().
				Title("Command").
				Description("Executable that speaks MCP on stdio").
				Value(&m.command).
				Validate(huh.ValidateNotEmpty()),

			huh.NewInput().
				Title("Arguments").
				Description("Space-separated, quotes respected").
				Value(&m.args),

			huh.NewInput().
				Title("Working Directory").
				Value(&m.cwd),

			huh.NewText().
				Title("Environment Variables").
				Description("One per line: KEY=value").
				Value(&m.env).
				CharLimit(1000).
				Lines(2),

			huh.NewInput().
				Title("Depends On").
				Description("Comma-separated server names started first").
				Value(&m.dependsOn),

			huh.NewConfirm().
				Title("Autostart").
				Description("Start with the dashboard").
				Value(&m.autostart),
		),
	).WithTheme(formTheme).
		WithWidth(60).
		WithShowHelp(true).
		WithShowErrors(true).
		WithKeyMap(keymap)
}

// Hide hides the form.
func (m *ServerFormModel) Hide() {
	m.visible = false
	m.form = nil
}

// IsVisible reports whether the form is shown.
func (m ServerFormModel) IsVisible() bool { return m.visible }

// SetSize sets the available size.
func (m *ServerFormModel) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Update handles messages. Pointer receiver: the huh form holds pointers to
// the field values.
func (m *ServerFormModel) Update(msg tea.Msg) tea.Cmd {
	if !m.visible || m.form == nil {
		return nil
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok && key.Matches(keyMsg, m.escKey) {
		m.visible = false
		return func() tea.Msg { return ServerFormResult{Submitted: false} }
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.visible = false
		srv := m.buildServerConfig()
		return func() tea.Msg { return ServerFormResult{Server: srv, Submitted: true} }
	}
	if m.form.State == huh.StateAborted {
		m.visible = false
		return func() tea.Msg { return ServerFormResult{Submitted: false} }
	}
	return cmd
}

func (m ServerFormModel) buildServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Name:      strings.TrimSpace(m.name),
		Kind:      config.TransportStdio,
		Command:   strings.TrimSpace(m.command),
		Args:      parseArgs(m.args),
		Cwd:       strings.TrimSpace(m.cwd),
		Env:       parseEnvVars(m.env),
		DependsOn: parseList(m.dependsOn),
		Autostart: m.autostart,
	}
}

// View renders the form centered.
func (m ServerFormModel) View() string {
	if !m.visible || m.form == nil {
		return ""
	}
	title := m.theme.Title.Render("Add Server")
	body := title + "\n\n" + m.form.View()
	pane := m.theme.PaneFocused.Render(body)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, pane)
}

// parseArgs splits a space-separated argument string, honoring single and
// double quotes.
func parseArgs(s string) []string {
	var args []string
	var cur strings.Builder
	var quote rune
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
		case r == ' ' || r == '\t':
			if cur.Len() > 0 {
				args = append(args, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		args = append(args, cur.String())
	}
	return args
}

// parseEnvVars parses KEY=value lines into a map. Lines without '=' are
// skipped.
func parseEnvVars(s string) map[string]string {
	env := make(map[string]string)
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok || k == "" {
			continue
		}
		env[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if len(env) == 0 {
		return nil
	}
	return env
}

// parseList splits a comma-separated list, dropping empties.
func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
