// Package tui implements the interactive dashboard: supervised servers with
// live states, an activity panel fed by the event bus, and an add-server
// form.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Bigsy/mcpherd/internal/cancel"
	"github.com/Bigsy/mcpherd/internal/config"
	"github.com/Bigsy/mcpherd/internal/events"
	"github.com/Bigsy/mcpherd/internal/lifecycle"
	"github.com/Bigsy/mcpherd/internal/notify"
	"github.com/Bigsy/mcpherd/internal/tui/theme"
	"github.com/Bigsy/mcpherd/internal/tui/views"
)

// opTimeout bounds one start/stop/restart issued from the dashboard.
const opTimeout = 60 * time.Second

// actionErrorMsg reports a failed server operation back to the model.
type actionErrorMsg struct {
	server string
	err    error
}

// Model is the dashboard root model.
type Model struct {
	cfg      *config.Config
	cfgPath  string
	manager  *lifecycle.Manager
	registry *cancel.Registry
	notifier *notify.Manager
	bus      *events.Bus

	eventCh     <-chan events.Event
	unsubscribe func()

	theme   theme.Theme
	keys    KeyBindings
	help    help.Model
	spinner spinner.Model

	serverList views.ServerListModel
	logPanel   views.LogPanelModel
	serverForm *views.ServerFormModel
	confirmDlg views.ConfirmModel

	width    int
	height   int
	showHelp bool
}

// NewModel creates the dashboard model. cfgPath may be empty to use the
// default config location.
func NewModel(cfg *config.Config, cfgPath string, manager *lifecycle.Manager, bus *events.Bus, registry *cancel.Registry, notifier *notify.Manager) Model {
	th := theme.New()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = th.Warn

	eventCh, unsubscribe := bus.SubscribeChan(256)

	form := views.NewServerForm(th)
	m := Model{
		cfg:         cfg,
		cfgPath:     cfgPath,
		manager:     manager,
		registry:    registry,
		notifier:    notifier,
		bus:         bus,
		eventCh:     eventCh,
		unsubscribe: unsubscribe,
		theme:       th,
		keys:        NewKeyBindings(),
		help:        help.New(),
		spinner:     sp,
		serverList:  views.NewServerList(th),
		logPanel:    views.NewLogPanel(th),
		serverForm:  &form,
		confirmDlg:  views.NewConfirm(th),
	}
	m.refreshServerList()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForEvent(),
		m.startAutostart(),
	)
}

func (m Model) startAutostart() tea.Cmd {
	return func() tea.Msg {
		ctx, cancelOp := context.WithTimeout(context.Background(), opTimeout)
		defer cancelOp()
		if err := m.manager.StartAutostart(ctx); err != nil {
			return actionErrorMsg{err: err}
		}
		return nil
	}
}

// waitForEvent blocks on the next bus event.
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.eventCh
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	// The form needs every message while visible.
	if m.serverForm.IsVisible() {
		return m.updateWithServerForm(msg)
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.CtrlC) {
			return m.quit()
		}
		if m.confirmDlg.IsVisible() {
			var cmd tea.Cmd
			m.confirmDlg, cmd = m.confirmDlg.Update(msg)
			return m, cmd
		}
		if m.showHelp {
			if key.Matches(msg, m.keys.Help) || key.Matches(msg, m.keys.Escape) {
				m.showHelp = false
			}
			return m, nil
		}
		if handled, model, cmd := m.handleKey(msg); handled {
			return model, cmd
		}

	case views.ServerFormResult:
		return m.handleServerFormResult(msg)

	case views.ConfirmResult:
		return m.handleConfirmResult(msg)

	case actionErrorMsg:
		if msg.err != nil {
			m.logPanel.Append(views.LogEntry{Server: orRuntime(msg.server), Line: msg.err.Error(), Warn: true})
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case events.Event:
		m.handleEvent(msg)
		cmds = append(cmds, m.waitForEvent())
	}

	if m.logPanel.IsVisible() {
		var cmd tea.Cmd
		m.logPanel, cmd = m.logPanel.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func orRuntime(server string) string {
	if server == "" {
		return "runtime"
	}
	return server
}

// handleEvent folds one bus event into the view state.
func (m *Model) handleEvent(e events.Event) {
	switch evt := e.(type) {
	case events.StatusChangedEvent:
		m.refreshServerList()
	case events.LogReceivedEvent:
		m.logPanel.Append(views.LogEntry{Server: evt.Server(), Line: evt.Line, Timestamp: evt.Timestamp()})
	case events.HealthCheckFailedEvent:
		m.logPanel.Append(views.LogEntry{
			Server:    evt.Server(),
			Line:      fmt.Sprintf("health check failed (%d): %v", evt.ConsecutiveFailures, evt.Err),
			Timestamp: evt.Timestamp(),
			Warn:      true,
		})
	case events.NotificationEvent:
		m.logPanel.Append(views.LogEntry{
			Server:    evt.Server(),
			Line:      "notification " + evt.Method,
			Timestamp: evt.Timestamp(),
		})
	case events.ProgressUpdatedEvent:
		line := fmt.Sprintf("progress %s: %.0f", evt.ProgressToken, evt.Progress)
		if evt.Total > 0 {
			line = fmt.Sprintf("progress %s: %.0f/%.0f", evt.ProgressToken, evt.Progress, evt.Total)
		}
		m.logPanel.Append(views.LogEntry{Server: evt.Server(), Line: line, Timestamp: evt.Timestamp()})
	case events.ProgressCompletedEvent:
		m.logPanel.Append(views.LogEntry{
			Server:    evt.Server(),
			Line:      fmt.Sprintf("progress %s complete after %s", evt.ProgressToken, evt.Elapsed.Round(time.Millisecond)),
			Timestamp: evt.Timestamp(),
		})
	case events.RequestCancelledEvent:
		m.logPanel.Append(views.LogEntry{
			Server:    evt.Server(),
			Line:      fmt.Sprintf("request %s cancelled: %s", evt.RequestID, evt.Reason),
			Timestamp: evt.Timestamp(),
			Warn:      true,
		})
	case events.ErrorEvent:
		m.logPanel.Append(views.LogEntry{Server: evt.Server(), Line: evt.Message + ": " + evt.Err.Error(), Warn: true})
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) (bool, tea.Model, tea.Cmd) {
	k := m.keys
	switch {
	case key.Matches(msg, k.Quit), key.Matches(msg, k.Escape):
		model, cmd := m.quit()
		return true, model, cmd
	case key.Matches(msg, k.Help):
		m.showHelp = true
		return true, m, nil
	case key.Matches(msg, k.Up):
		m.serverList.MoveUp()
		return true, m, nil
	case key.Matches(msg, k.Down):
		m.serverList.MoveDown()
		return true, m, nil
	case key.Matches(msg, k.Top):
		m.serverList.GotoTop()
		return true, m, nil
	case key.Matches(msg, k.Bottom):
		m.serverList.GotoBottom()
		return true, m, nil
	case key.Matches(msg, k.Start):
		return true, m, m.serverOp("start", m.manager.Start)
	case key.Matches(msg, k.Stop):
		return true, m, m.serverOp("stop", m.manager.Stop)
	case key.Matches(msg, k.Restart):
		return true, m, m.serverOp("restart", m.manager.Restart)
	case key.Matches(msg, k.StartAll):
		return true, m, m.runtimeOp(m.manager.StartAll)
	case key.Matches(msg, k.StopAll):
		return true, m, m.runtimeOp(m.manager.StopAll)
	case key.Matches(msg, k.Cancel):
		name := m.serverList.Selected()
		if name != "" && m.registry != nil {
			results := m.registry.CancelServer(name, "cancelled from dashboard")
			m.logPanel.Append(views.LogEntry{
				Server: name,
				Line:   fmt.Sprintf("cancelled %d in-flight requests", len(results)),
				Warn:   true,
			})
		}
		return true, m, nil
	case key.Matches(msg, k.Add):
		cmd := m.serverForm.Show()
		return true, m, cmd
	case key.Matches(msg, k.Delete):
		name := m.serverList.Selected()
		if name != "" {
			m.confirmDlg.Show("Delete Server", fmt.Sprintf("Delete %q and its config entry?", name), "delete:"+name)
		}
		return true, m, nil
	case key.Matches(msg, k.ToggleLogs):
		m.logPanel.SetVisible(!m.logPanel.IsVisible())
		m.updateLayout()
		return true, m, nil
	case key.Matches(msg, k.FollowLogs):
		if m.logPanel.IsVisible() {
			m.logPanel.ToggleFollow()
		}
		return true, m, nil
	}
	return false, m, nil
}

// serverOp runs one lifecycle operation on the selected server off the UI
// goroutine.
func (m Model) serverOp(verb string, op func(context.Context, string) error) tea.Cmd {
	name := m.serverList.Selected()
	if name == "" {
		return nil
	}
	return func() tea.Msg {
		ctx, cancelOp := context.WithTimeout(context.Background(), opTimeout)
		defer cancelOp()
		if err := op(ctx, name); err != nil {
			return actionErrorMsg{server: name, err: fmt.Errorf("%s: %w", verb, err)}
		}
		return nil
	}
}

func (m Model) runtimeOp(op func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancelOp := context.WithTimeout(context.Background(), opTimeout)
		defer cancelOp()
		if err := op(ctx); err != nil {
			return actionErrorMsg{err: err}
		}
		return nil
	}
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return m, tea.Quit
}

func (m Model) updateWithServerForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()
	case views.ServerFormResult:
		return m.handleServerFormResult(msg)
	case events.Event:
		m.handleEvent(msg)
		cmds = append(cmds, m.waitForEvent())
		return m, tea.Batch(cmds...)
	}

	if cmd := m.serverForm.Update(msg); cmd != nil {
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleServerFormResult(result views.ServerFormResult) (tea.Model, tea.Cmd) {
	m.serverForm.Hide()
	if !result.Submitted {
		return m, nil
	}

	srv := result.Server
	if err := m.cfg.AddServer(srv); err != nil {
		m.logPanel.Append(views.LogEntry{Server: srv.Name, Line: err.Error(), Warn: true})
		return m, nil
	}
	if err := m.saveConfig(); err != nil {
		m.logPanel.Append(views.LogEntry{Server: srv.Name, Line: err.Error(), Warn: true})
	}
	if err := m.manager.Register(srv); err != nil {
		m.logPanel.Append(views.LogEntry{Server: srv.Name, Line: err.Error(), Warn: true})
	}
	m.refreshServerList()
	return m, nil
}

func (m Model) handleConfirmResult(result views.ConfirmResult) (tea.Model, tea.Cmd) {
	if !result.Confirmed {
		return m, nil
	}
	name, ok := strings.CutPrefix(result.Tag, "delete:")
	if !ok {
		return m, nil
	}

	manager := m.manager
	cfg := m.cfg
	save := m.saveConfig
	return m, func() tea.Msg {
		ctx, cancelOp := context.WithTimeout(context.Background(), opTimeout)
		defer cancelOp()
		if err := manager.Unregister(ctx, name); err != nil {
			return actionErrorMsg{server: name, err: err}
		}
		if err := cfg.DeleteServer(name); err != nil {
			return actionErrorMsg{server: name, err: err}
		}
		if err := save(); err != nil {
			return actionErrorMsg{server: name, err: err}
		}
		return nil
	}
}

func (m Model) saveConfig() error {
	if m.cfgPath != "" {
		return config.SaveTo(m.cfg, m.cfgPath)
	}
	return config.Save(m.cfg)
}

func (m *Model) refreshServerList() {
	statuses := m.manager.Statuses()
	rows := make([]views.ServerRow, 0, len(statuses))
	for _, st := range statuses {
		row := views.ServerRow{Status: st}
		if srv := m.cfg.GetServer(st.Name); srv != nil {
			row.DependsOn = srv.DependsOn
		}
		rows = append(rows, row)
	}
	m.serverList.SetRows(rows)
}

func (m *Model) updateLayout() {
	contentWidth := m.width - 2
	m.serverList.SetWidth(contentWidth - 4)
	m.serverForm.SetSize(m.width, m.height)
	m.confirmDlg.SetSize(m.width, m.height)
	m.help.Width = m.width

	if m.logPanel.IsVisible() {
		logHeight := m.height / 3
		if logHeight < 6 {
			logHeight = 6
		}
		m.logPanel.SetSize(contentWidth, logHeight)
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	if m.serverForm.IsVisible() {
		return m.serverForm.View()
	}

	var sections []string
	sections = append(sections, m.renderHeader())

	list := m.theme.RenderPane("Servers", m.serverList.View(m.spinner.View()), m.width-2, !m.logPanel.IsFocused())
	sections = append(sections, list)

	if m.logPanel.IsVisible() {
		sections = append(sections, m.logPanel.View())
	}

	if m.showHelp {
		sections = append(sections, m.help.FullHelpView(m.keys.FullHelp()))
	} else {
		sections = append(sections, m.theme.StatusBar.Render(m.help.ShortHelpView(m.keys.ShortHelp())))
	}

	base := m.theme.App.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
	if m.confirmDlg.IsVisible() {
		return m.confirmDlg.RenderOverlay(base, m.width, m.height)
	}
	return base
}

func (m Model) renderHeader() string {
	running := 0
	total := 0
	for _, st := range m.manager.Statuses() {
		total++
		if st.State == events.StateRunning {
			running++
		}
	}

	title := m.theme.Title.Render("mcpherd")
	counts := m.theme.Muted.Render(fmt.Sprintf("%d/%d running", running, total))

	extras := []string{counts}
	if m.notifier != nil {
		if active := m.notifier.ActiveProgress(); len(active) > 0 {
			extras = append(extras, m.theme.Warn.Render(fmt.Sprintf("%d in progress", len(active))))
		}
	}
	if m.registry != nil {
		if n := m.registry.Count(); n > 0 {
			extras = append(extras, m.theme.Muted.Render(fmt.Sprintf("%d in-flight", n)))
		}
	}

	return title + "  " + strings.Join(extras, "  ")
}
