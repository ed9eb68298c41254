// Package lifecycle supervises MCP server processes: registration, start and
// stop with dependency ordering, crash recovery with capped backoff, and
// periodic health checks.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Bigsy/mcpherd/internal/cancel"
	"github.com/Bigsy/mcpherd/internal/config"
	"github.com/Bigsy/mcpherd/internal/events"
	"github.com/Bigsy/mcpherd/internal/mcp"
	"github.com/Bigsy/mcpherd/internal/notify"
	"github.com/Bigsy/mcpherd/internal/protocol"
)

// Options tune the supervisor. Zero values fall back to defaults.
type Options struct {
	StartupTimeout         time.Duration
	ShutdownTimeout        time.Duration
	MaxRestarts            int
	RestartDelay           time.Duration
	HealthInterval         time.Duration
	MaxConsecutiveFailures int
}

// DefaultOptions returns the supervisor defaults.
func DefaultOptions() Options {
	return Options{
		StartupTimeout:         30 * time.Second,
		ShutdownTimeout:        10 * time.Second,
		MaxRestarts:            3,
		RestartDelay:           time.Second,
		HealthInterval:         30 * time.Second,
		MaxConsecutiveFailures: 3,
	}
}

// OptionsFromConfig builds Options from the runtime section of the config,
// filling gaps with defaults.
func OptionsFromConfig(rc config.RuntimeConfig) Options {
	def := DefaultOptions()
	opts := Options{
		StartupTimeout:         rc.StartupTimeout.Or(def.StartupTimeout),
		ShutdownTimeout:        rc.ShutdownTimeout.Or(def.ShutdownTimeout),
		RestartDelay:           rc.RestartDelay.Or(def.RestartDelay),
		HealthInterval:         rc.HealthInterval.Or(def.HealthInterval),
		MaxRestarts:            rc.MaxRestarts,
		MaxConsecutiveFailures: rc.MaxConsecutiveFailures,
	}
	if opts.MaxRestarts <= 0 {
		opts.MaxRestarts = def.MaxRestarts
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	return opts
}

// TransportFactory creates a transport for a server config. Tests substitute
// in-memory transports through it.
type TransportFactory func(cfg config.ServerConfig, logger *slog.Logger) (mcp.Transport, error)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTransportFactory overrides how transports are built.
func WithTransportFactory(f TransportFactory) ManagerOption {
	return func(m *Manager) { m.factory = f }
}

// WithLogger sets the supervisor logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// WithPIDTracker records supervised PIDs so later invocations can clean up
// orphans.
func WithPIDTracker(pt *PIDTracker) ManagerOption {
	return func(m *Manager) { m.pids = pt }
}

// server is the supervisor's bookkeeping for one registered server.
type server struct {
	cfg   config.ServerConfig
	state events.ServerState

	transport mcp.Transport
	client    *mcp.Client
	runCancel context.CancelFunc
	runDone   chan struct{}

	// gen invalidates goroutines from superseded connections.
	gen      int
	stopping bool

	restartCount        int
	consecutiveFailures int
	lastExit            *events.LastExit
	lastErr             string
	startedAt           *time.Time
	stoppedAt           *time.Time
}

// Manager is the lifecycle supervisor.
type Manager struct {
	mu      sync.Mutex
	servers map[string]*server
	closed  bool

	opts     Options
	bus      *events.Bus
	registry *cancel.Registry
	notifier *notify.Manager
	logger   *slog.Logger
	factory  TransportFactory
	pids     *PIDTracker
	closedCh chan struct{}
}

// NewManager creates a supervisor. bus, registry and notifier may be nil when
// the corresponding integration is unwanted.
func NewManager(opts Options, bus *events.Bus, registry *cancel.Registry, notifier *notify.Manager, options ...ManagerOption) *Manager {
	m := &Manager{
		servers:  make(map[string]*server),
		opts:     opts,
		bus:      bus,
		registry: registry,
		notifier: notifier,
		logger:   slog.Default(),
		factory: func(cfg config.ServerConfig, logger *slog.Logger) (mcp.Transport, error) {
			return mcp.New(cfg, logger)
		},
		closedCh: make(chan struct{}),
	}
	for _, opt := range options {
		opt(m)
	}
	m.logger = m.logger.With("component", "lifecycle")
	return m
}

// Register upserts a server. A new name starts out Stopped with zeroed
// counters; re-registering replaces the stored config and keeps the current
// state and counters. Config changes for an active server take effect on
// the next start.
func (m *Manager) Register(cfg config.ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return protocol.LifecycleError("supervisor closed")
	}
	if s, ok := m.servers[cfg.Name]; ok {
		s.cfg = cfg
		m.logger.Debug("re-registered", "server", cfg.Name)
		return nil
	}
	m.servers[cfg.Name] = &server{cfg: cfg, state: events.StateStopped}
	m.logger.Debug("registered", "server", cfg.Name)
	return nil
}

// Unregister stops the server if active and removes it. In-flight requests
// for the server are cancelled.
func (m *Manager) Unregister(ctx context.Context, name string) error {
	m.mu.Lock()
	s, ok := m.servers[name]
	active := ok && s.state.IsActive()
	m.mu.Unlock()
	if !ok {
		return protocol.LifecycleError("unknown server %q", name)
	}
	if active {
		if err := m.Stop(ctx, name); err != nil {
			return err
		}
	}
	if m.registry != nil {
		m.registry.CancelServer(name, "server unregistered")
	}
	m.mu.Lock()
	delete(m.servers, name)
	m.mu.Unlock()
	return nil
}

// SetDependencies replaces a server's dependency list. The resulting graph
// must stay acyclic and reference only registered servers.
func (m *Manager) SetDependencies(name string, deps []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.servers[name]
	if !ok {
		return protocol.LifecycleError("unknown server %q", name)
	}

	graph := m.graphLocked()
	graph[name] = deps
	if _, err := startOrder(graph); err != nil {
		return err
	}
	s.cfg.DependsOn = append([]string(nil), deps...)
	return nil
}

// graphLocked snapshots the dependency graph. Caller holds mu.
func (m *Manager) graphLocked() map[string][]string {
	graph := make(map[string][]string, len(m.servers))
	for name, s := range m.servers {
		graph[name] = append([]string(nil), s.cfg.DependsOn...)
	}
	return graph
}

// Start brings one server up. Starting a running server is a no-op; starting
// while a transition is in flight is an error, as is starting before the
// server's dependencies are running.
func (m *Manager) Start(ctx context.Context, name string) error {
	m.mu.Lock()
	s, ok := m.servers[name]
	if !ok {
		m.mu.Unlock()
		return protocol.LifecycleError("unknown server %q", name)
	}
	switch s.state {
	case events.StateRunning:
		m.mu.Unlock()
		return nil
	case events.StateStarting, events.StateStopping:
		m.mu.Unlock()
		return protocol.LifecycleError("server %q is %s", name, s.state)
	}
	for _, dep := range s.cfg.DependsOn {
		d, ok := m.servers[dep]
		if !ok {
			m.mu.Unlock()
			return protocol.ConfigError("server %q depends on unknown server %q", name, dep)
		}
		if d.state != events.StateRunning {
			m.mu.Unlock()
			return protocol.LifecycleError("dependency %q of %q is not running", dep, name)
		}
	}
	s.stopping = false
	s.lastErr = ""
	s.gen++
	gen := s.gen
	cfg := s.cfg
	m.setStateLocked(s, events.StateStarting)
	m.mu.Unlock()

	if err := m.launch(ctx, name, gen, cfg); err != nil {
		m.mu.Lock()
		if s, ok := m.servers[name]; ok && s.gen == gen {
			s.lastErr = err.Error()
			m.setStateLocked(s, events.StateError)
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// launch connects, handshakes and commits one connection attempt.
func (m *Manager) launch(ctx context.Context, name string, gen int, cfg config.ServerConfig) error {
	transport, err := m.factory(cfg, m.logger)
	if err != nil {
		return err
	}

	startCtx, cancelStart := context.WithTimeout(ctx, m.opts.StartupTimeout)
	defer cancelStart()

	if err := transport.Connect(startCtx); err != nil {
		return err
	}

	opts := []mcp.ClientOption{
		mcp.WithLogger(m.logger),
		mcp.WithRequestTimeout(cfg.RequestTimeout.Or(mcp.DefaultRequestTimeout)),
		mcp.WithNotificationHandler(m.notificationHandler(name)),
	}
	if m.registry != nil {
		opts = append(opts, mcp.WithCancelRegistry(m.registry))
	}
	client := mcp.NewClient(name, transport, opts...)

	if err := client.Initialize(startCtx); err != nil {
		_ = transport.Disconnect()
		return err
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})

	m.mu.Lock()
	s, ok := m.servers[name]
	if !ok || s.gen != gen || s.stopping {
		m.mu.Unlock()
		runCancel()
		close(runDone)
		_ = transport.Disconnect()
		return protocol.LifecycleError("start of %q superseded", name)
	}
	now := time.Now()
	s.transport = transport
	s.client = client
	s.runCancel = runCancel
	s.runDone = runDone
	s.startedAt = &now
	s.stoppedAt = nil
	s.consecutiveFailures = 0
	m.setStateLocked(s, events.StateRunning)
	m.mu.Unlock()

	if pid := pidOf(transport); pid > 0 && m.pids != nil {
		if err := m.pids.Track(name, pid); err != nil {
			m.logger.Warn("tracking pid", "server", name, "err", err)
		}
	}
	m.logger.Info("server running", "server", name, "pid", pidOf(transport))

	go m.monitor(name, gen, transport, client, runCtx, runDone)
	go m.healthLoop(name, gen, transport, client, runCtx)
	return nil
}

// notificationHandler feeds inbound notifications into the notification
// manager and reflects remote cancellations into the cancel registry.
func (m *Manager) notificationHandler(name string) mcp.NotificationHandler {
	return func(method string, params json.RawMessage) {
		if m.notifier != nil {
			m.notifier.HandleNotification(name, method, params)
		}
		if method == protocol.MethodNotificationCancelled && m.registry != nil {
			var cp protocol.CancelledParams
			if err := json.Unmarshal(params, &cp); err == nil && cp.RequestID != "" {
				reason := cp.Reason
				if reason == "" {
					reason = "cancelled by server"
				}
				m.registry.Cancel(string(cp.RequestID), reason)
			}
		}
	}
}

// monitor pumps the client until its connection ends, forwarding stderr lines
// to the event bus, then runs the exit path.
func (m *Manager) monitor(name string, gen int, transport mcp.Transport, client *mcp.Client, runCtx context.Context, runDone chan struct{}) {
	defer close(runDone)

	clientDone := make(chan struct{})
	go func() {
		client.Run(runCtx)
		close(clientDone)
	}()

	sub, unsub := transport.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-clientDone:
			m.handleExit(name, gen, transport)
			return
		case ev := <-sub:
			if ev.Kind == mcp.EventStderr {
				m.publish(events.NewLogReceivedEvent(name, ev.Line))
			}
		}
	}
}

// handleExit records how a connection ended. Intentional stops land in
// Stopped; crashes enter the restart path.
func (m *Manager) handleExit(name string, gen int, transport mcp.Transport) {
	now := time.Now()
	exit := &events.LastExit{Code: exitCodeOf(transport), Timestamp: now}

	m.mu.Lock()
	s, ok := m.servers[name]
	if !ok || s.gen != gen {
		m.mu.Unlock()
		return
	}
	s.lastExit = exit
	s.stoppedAt = &now
	if m.pids != nil {
		_ = m.pids.Untrack(name)
	}
	s.transport = nil
	s.client = nil
	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}

	if s.stopping || m.closed {
		m.setStateLocked(s, events.StateStopped)
		m.mu.Unlock()
		return
	}

	// Crash.
	s.restartCount++
	attempt := s.restartCount
	if attempt > m.opts.MaxRestarts {
		s.lastErr = "restart limit reached"
		m.setStateLocked(s, events.StateCrashed)
		m.mu.Unlock()
		m.publish(events.NewErrorEvent(name, protocol.LifecycleError("server %q exceeded %d restarts", name, m.opts.MaxRestarts), "giving up"))
		return
	}
	m.setStateLocked(s, events.StateStarting)
	m.mu.Unlock()

	m.logger.Warn("server crashed, scheduling restart", "server", name, "attempt", attempt, "exitCode", exit.Code)
	go m.restartLoop(name, gen)
}

// restartLoop retries the connection with exponential backoff until it comes
// up, the restart budget runs out, or the attempt is superseded.
func (m *Manager) restartLoop(name string, gen int) {
	for {
		m.mu.Lock()
		s, ok := m.servers[name]
		if !ok || s.gen != gen || s.stopping || m.closed {
			m.mu.Unlock()
			return
		}
		delay := restartDelay(m.opts.RestartDelay, s.restartCount)
		m.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-m.closedCh:
			timer.Stop()
			return
		}

		m.mu.Lock()
		s, ok = m.servers[name]
		if !ok || s.gen != gen || s.stopping || m.closed {
			m.mu.Unlock()
			return
		}
		s.gen++
		gen = s.gen
		cfg := s.cfg
		m.mu.Unlock()

		err := m.launch(context.Background(), name, gen, cfg)
		if err == nil {
			return
		}

		m.mu.Lock()
		s, ok = m.servers[name]
		if !ok || s.gen != gen || s.stopping || m.closed {
			m.mu.Unlock()
			return
		}
		s.restartCount++
		s.lastErr = err.Error()
		if s.restartCount > m.opts.MaxRestarts {
			m.setStateLocked(s, events.StateCrashed)
			m.mu.Unlock()
			m.publish(events.NewErrorEvent(name, err, "giving up after restart limit"))
			return
		}
		m.mu.Unlock()
		m.logger.Warn("restart attempt failed", "server", name, "err", err)
	}
}

// Stop shuts one server down gracefully. Stopping a stopped server is a
// no-op. In-flight requests to the server are cancelled.
func (m *Manager) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	s, ok := m.servers[name]
	if !ok {
		m.mu.Unlock()
		return protocol.LifecycleError("unknown server %q", name)
	}
	switch s.state {
	case events.StateStopped, events.StateCrashed, events.StateError:
		// Invalidate any pending restart before returning.
		s.stopping = true
		s.gen++
		if s.state != events.StateStopped {
			m.setStateLocked(s, events.StateStopped)
		}
		m.mu.Unlock()
		return nil
	}
	s.stopping = true
	transport := s.transport
	runDone := s.runDone
	m.setStateLocked(s, events.StateStopping)
	m.mu.Unlock()

	if m.registry != nil {
		m.registry.CancelServer(name, "server stopping")
	}

	if transport != nil {
		if term, ok := transport.(interface{ Terminate(time.Duration) error }); ok {
			_ = term.Terminate(m.opts.ShutdownTimeout)
		} else {
			_ = transport.Disconnect()
		}
	}

	if runDone != nil {
		select {
		case <-runDone:
		case <-ctx.Done():
			return protocol.TimeoutError("stop of %q: %v", name, ctx.Err())
		}
		return nil
	}

	// Nothing was running (start still in flight); land in Stopped directly.
	m.mu.Lock()
	if s, ok := m.servers[name]; ok && s.stopping {
		now := time.Now()
		s.stoppedAt = &now
		m.setStateLocked(s, events.StateStopped)
	}
	m.mu.Unlock()
	return nil
}

// Restart stops and starts one server, resetting its failure counters. It is
// the way out of the Crashed state.
func (m *Manager) Restart(ctx context.Context, name string) error {
	if err := m.Stop(ctx, name); err != nil {
		return err
	}
	m.mu.Lock()
	if s, ok := m.servers[name]; ok {
		s.restartCount = 0
		s.consecutiveFailures = 0
		s.lastErr = ""
	}
	m.mu.Unlock()
	return m.Start(ctx, name)
}

// StartAll starts every enabled server in dependency order. Errors are
// collected; servers whose dependencies failed are skipped.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	graph := make(map[string][]string)
	for name, s := range m.servers {
		if s.cfg.IsEnabled() {
			graph[name] = append([]string(nil), s.cfg.DependsOn...)
		}
	}
	m.mu.Unlock()

	order, err := startOrder(graph)
	if err != nil {
		return err
	}

	var errs []error
	failed := make(map[string]bool)
	for _, name := range order {
		skip := false
		for _, dep := range graph[name] {
			if failed[dep] {
				skip = true
				break
			}
		}
		if skip {
			failed[name] = true
			errs = append(errs, protocol.LifecycleError("skipping %q: dependency failed", name))
			continue
		}
		if err := m.Start(ctx, name); err != nil {
			failed[name] = true
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartAutostart starts the enabled autostart servers in dependency order.
// A dependency of an autostart server is started too, even without the
// autostart flag.
func (m *Manager) StartAutostart(ctx context.Context) error {
	m.mu.Lock()
	wanted := make(map[string]bool)
	var mark func(name string)
	mark = func(name string) {
		if wanted[name] {
			return
		}
		s, ok := m.servers[name]
		if !ok || !s.cfg.IsEnabled() {
			return
		}
		wanted[name] = true
		for _, dep := range s.cfg.DependsOn {
			mark(dep)
		}
	}
	for name, s := range m.servers {
		if s.cfg.Autostart && s.cfg.IsEnabled() {
			mark(name)
		}
	}
	graph := make(map[string][]string, len(wanted))
	for name := range wanted {
		var deps []string
		for _, dep := range m.servers[name].cfg.DependsOn {
			if wanted[dep] {
				deps = append(deps, dep)
			}
		}
		graph[name] = deps
	}
	m.mu.Unlock()

	order, err := startOrder(graph)
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range order {
		if err := m.Start(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopAll stops every active server in reverse dependency order.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	graph := m.graphLocked()
	m.mu.Unlock()

	order, err := stopOrder(graph)
	if err != nil {
		// A broken graph must not block shutdown; fall back to name order.
		order = order[:0]
		for name := range graph {
			order = append(order, name)
		}
		sort.Strings(order)
	}

	var errs []error
	for _, name := range order {
		m.mu.Lock()
		s, ok := m.servers[name]
		active := ok && s.state.IsActive()
		m.mu.Unlock()
		if !active {
			continue
		}
		if err := m.Stop(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Status returns a snapshot of one server.
func (m *Manager) Status(name string) (events.ServerStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.servers[name]
	if !ok {
		return events.ServerStatus{}, protocol.LifecycleError("unknown server %q", name)
	}
	return m.statusLocked(s), nil
}

// Statuses returns snapshots of all servers sorted by name.
func (m *Manager) Statuses() []events.ServerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.ServerStatus, 0, len(m.servers))
	for _, s := range m.servers {
		out = append(out, m.statusLocked(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Client returns the protocol client for a running server.
func (m *Manager) Client(name string) (*mcp.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.servers[name]
	if !ok {
		return nil, protocol.LifecycleError("unknown server %q", name)
	}
	if s.state != events.StateRunning || s.client == nil {
		return nil, protocol.LifecycleError("server %q is %s", name, s.state)
	}
	return s.client, nil
}

// Close stops all servers and shuts the supervisor down.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.closedCh)
	m.mu.Unlock()

	ctx, cancelStop := context.WithTimeout(context.Background(), m.opts.ShutdownTimeout+time.Second)
	defer cancelStop()
	return m.StopAll(ctx)
}

// statusLocked snapshots one server. Caller holds mu.
func (m *Manager) statusLocked(s *server) events.ServerStatus {
	st := events.ServerStatus{
		Name:                s.cfg.Name,
		State:               s.state,
		RestartCount:        s.restartCount,
		ConsecutiveFailures: s.consecutiveFailures,
		LastExit:            s.lastExit,
		Error:               s.lastErr,
		StartedAt:           s.startedAt,
		StoppedAt:           s.stoppedAt,
	}
	if s.transport != nil {
		st.PID = pidOf(s.transport)
	}
	return st
}

// setStateLocked transitions a server's state and publishes the change.
// Caller holds mu; Publish never blocks.
func (m *Manager) setStateLocked(s *server, state events.ServerState) {
	old := s.state
	if old == state {
		return
	}
	s.state = state
	m.publish(events.NewStatusChangedEvent(s.cfg.Name, old, state, m.statusLocked(s)))
}

func (m *Manager) publish(ev events.Event) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}

func pidOf(t mcp.Transport) int {
	if p, ok := t.(interface{ PID() int }); ok {
		return p.PID()
	}
	return 0
}

func exitCodeOf(t mcp.Transport) int {
	if e, ok := t.(interface{ ExitCode() int }); ok {
		return e.ExitCode()
	}
	return -1
}
