package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Bigsy/mcpherd/internal/cancel"
	"github.com/Bigsy/mcpherd/internal/config"
	"github.com/Bigsy/mcpherd/internal/events"
	"github.com/Bigsy/mcpherd/internal/mcp"
	"github.com/Bigsy/mcpherd/internal/notify"
	"github.com/Bigsy/mcpherd/internal/protocol"
	"github.com/Bigsy/mcpherd/internal/testutil"
)

// fakeTransport is an in-memory mcp.Transport that answers the handshake and
// ping, and can be crashed on demand.
type fakeTransport struct {
	mu          sync.Mutex
	name        string
	state       mcp.State
	failConnect bool
	pingErr     error
	exitCode    int
	subs        map[int]chan mcp.Event
	nextSub     int
	onStop      func(name string)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		state:    mcp.StateDisconnected,
		exitCode: -1,
		subs:     make(map[int]chan mcp.Event),
	}
}

func (t *fakeTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failConnect {
		return protocol.ConnectionError("simulated connect failure")
	}
	t.state = mcp.StateConnected
	return nil
}

func (t *fakeTransport) Disconnect() error {
	t.mu.Lock()
	if t.state == mcp.StateDisconnected {
		t.mu.Unlock()
		return nil
	}
	t.state = mcp.StateDisconnected
	onStop, name := t.onStop, t.name
	t.mu.Unlock()
	if onStop != nil {
		onStop(name)
	}
	t.emit(mcp.Event{Kind: mcp.EventDisconnected})
	return nil
}

// crash simulates the server process dying with the given exit code.
func (t *fakeTransport) crash(code int) {
	t.mu.Lock()
	t.exitCode = code
	t.mu.Unlock()
	_ = t.Disconnect()
}

func (t *fakeTransport) Send(ctx context.Context, msg protocol.Message) error {
	if !t.Connected() {
		return protocol.ErrDisconnected
	}
	return nil
}

func (t *fakeTransport) SendRequest(ctx context.Context, msg protocol.Message, timeout time.Duration) (protocol.Message, error) {
	if !t.Connected() {
		return protocol.Message{}, protocol.ErrDisconnected
	}
	switch msg.Method {
	case "initialize":
		var p struct {
			ProtocolVersion string `json:"protocolVersion"`
		}
		_ = json.Unmarshal(msg.Params, &p)
		return protocol.NewResponse(msg.ID, map[string]any{
			"protocolVersion": p.ProtocolVersion,
			"capabilities":    map[string]any{},
			"serverInfo":      map[string]any{"name": "fake", "version": "0.0.1"},
		})
	case protocol.MethodPing:
		t.mu.Lock()
		pingErr := t.pingErr
		t.mu.Unlock()
		if pingErr != nil {
			return protocol.Message{}, pingErr
		}
		return protocol.NewResponse(msg.ID, map[string]any{})
	default:
		return protocol.NewResponse(msg.ID, map[string]any{})
	}
}

func (t *fakeTransport) Subscribe(buffer int) (<-chan mcp.Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan mcp.Event, buffer)
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	t.mu.Unlock()
	println("DEBUG subscribe", id, "buffer", buffer)
	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}

func (t *fakeTransport) emit(ev mcp.Event) {
	t.mu.Lock()
	chans := make([]chan mcp.Event, 0, len(t.subs))
	for _, ch := range t.subs {
		chans = append(chans, ch)
	}
	t.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (t *fakeTransport) State() mcp.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *fakeTransport) Connected() bool {
	return t.State() == mcp.StateConnected
}

func (t *fakeTransport) ExitCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitCode
}

// fakeFactory builds fakeTransports, remembers them per server, and records
// the order servers were spawned and disconnected in.
type fakeFactory struct {
	mu          sync.Mutex
	created     map[string][]*fakeTransport
	failConnect map[string]bool
	pingErr     map[string]error
	spawns      []string
	stops       []string
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		created:     make(map[string][]*fakeTransport),
		failConnect: make(map[string]bool),
		pingErr:     make(map[string]error),
	}
}

func (f *fakeFactory) transport(cfg config.ServerConfig, logger *slog.Logger) (mcp.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := newFakeTransport()
	t.name = cfg.Name
	t.failConnect = f.failConnect[cfg.Name]
	t.pingErr = f.pingErr[cfg.Name]
	t.onStop = f.recordStop
	f.created[cfg.Name] = append(f.created[cfg.Name], t)
	f.spawns = append(f.spawns, cfg.Name)
	return t, nil
}

func (f *fakeFactory) recordStop(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, name)
}

func (f *fakeFactory) spawnOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spawns...)
}

func (f *fakeFactory) stopOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.stops...)
}

// last returns the most recently created transport for a server.
func (f *fakeFactory) last(name string) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts := f.created[name]
	if len(ts) == 0 {
		return nil
	}
	return ts[len(ts)-1]
}

func (f *fakeFactory) createdCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created[name])
}

func testOptions() Options {
	return Options{
		StartupTimeout:         2 * time.Second,
		ShutdownTimeout:        2 * time.Second,
		MaxRestarts:            2,
		RestartDelay:           10 * time.Millisecond,
		HealthInterval:         0, // individual tests opt in
		MaxConsecutiveFailures: 2,
	}
}

func newTestManager(t *testing.T, opts Options, f *fakeFactory) (*Manager, *cancel.Registry, *testutil.EventCollector) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus := events.NewBus()
	collector := testutil.NewEventCollector()
	bus.Subscribe(collector.Handler)

	registry := cancel.NewRegistry(bus, logger)
	notifier := notify.NewManager(bus, logger)
	m := NewManager(opts, bus, registry, notifier,
		WithTransportFactory(f.transport),
		WithLogger(logger),
	)
	t.Cleanup(func() {
		_ = m.Close()
		bus.Close()
	})
	return m, registry, collector
}

func stdioServer(name string, deps ...string) config.ServerConfig {
	return config.ServerConfig{
		Name:      name,
		Kind:      config.TransportStdio,
		Command:   "fake-server",
		DependsOn: deps,
	}
}

func TestManager_RegisterDefaults(t *testing.T) {
	m, _, _ := newTestManager(t, testOptions(), newFakeFactory())

	if err := m.Register(stdioServer("a")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	st, err := m.Status("a")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != events.StateStopped {
		t.Errorf("expected stopped, got %v", st.State)
	}
	if st.RestartCount != 0 || st.ConsecutiveFailures != 0 {
		t.Errorf("expected zeroed counters, got %+v", st)
	}
	if st.LastExit != nil {
		t.Errorf("expected no last exit, got %+v", st.LastExit)
	}
}

func TestManager_RegisterUpsertsExistingServer(t *testing.T) {
	f := newFakeFactory()
	m, _, collector := newTestManager(t, testOptions(), f)
	ctx := context.Background()

	if err := m.Register(stdioServer("a")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(stdioServer("a")); err != nil {
		t.Errorf("identical re-registration: %v", err)
	}

	updated := stdioServer("a")
	updated.Command = "replacement"
	if err := m.Register(updated); err != nil {
		t.Errorf("re-registration with changed config: %v", err)
	}
	st, err := m.Status("a")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.State != events.StateStopped || st.RestartCount != 0 {
		t.Errorf("expected upsert to keep stopped state and counters, got %+v", st)
	}

	// State survives an upsert while the server is running.
	if err := m.Start(ctx, "a"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !collector.WaitForState("a", events.StateRunning, time.Second) {
		t.Fatal("never saw running")
	}
	if err := m.Register(updated); err != nil {
		t.Errorf("re-registration while running: %v", err)
	}
	st, _ = m.Status("a")
	if st.State != events.StateRunning {
		t.Errorf("expected upsert to leave server running, got %v", st.State)
	}
}

func TestManager_RegisterRejectsInvalidConfig(t *testing.T) {
	m, _, _ := newTestManager(t, testOptions(), newFakeFactory())

	if err := m.Register(config.ServerConfig{Name: "bad", Kind: config.TransportStdio}); err == nil {
		t.Error("expected invalid config to fail")
	}
}

func TestManager_StartStopTransitions(t *testing.T) {
	f := newFakeFactory()
	m, _, collector := newTestManager(t, testOptions(), f)
	ctx := context.Background()

	if err := m.Register(stdioServer("a")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Start(ctx, "a"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !collector.WaitForState("a", events.StateRunning, time.Second) {
		t.Fatal("never saw running")
	}

	st, _ := m.Status("a")
	if st.State != events.StateRunning {
		t.Errorf("expected running, got %v", st.State)
	}
	if st.StartedAt == nil {
		t.Error("expected startedAt set")
	}

	// Starting a running server is a no-op.
	if err := m.Start(ctx, "a"); err != nil {
		t.Errorf("Start on running server: %v", err)
	}
	if f.createdCount("a") != 1 {
		t.Errorf("no-op start must not build a new transport, got %d", f.createdCount("a"))
	}

	if err := m.Stop(ctx, "a"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !collector.WaitForState("a", events.StateStopped, time.Second) {
		t.Fatal("never saw stopped")
	}

	want := []events.ServerState{
		events.StateStarting,
		events.StateRunning,
		events.StateStopping,
		events.StateStopped,
	}
	if got := collector.StatesFor("a"); !testutil.StatesContainSequence(got, want) {
		t.Errorf("expected sequence %v within %v", want, got)
	}

	// Stopping again is a no-op.
	if err := m.Stop(ctx, "a"); err != nil {
		t.Errorf("Stop on stopped server: %v", err)
	}
}

func TestManager_StartUnknownServer(t *testing.T) {
	m, _, _ := newTestManager(t, testOptions(), newFakeFactory())
	if err := m.Start(context.Background(), "ghost"); err == nil {
		t.Error("expected error for unknown server")
	}
}

func TestManager_StartRequiresRunningDependencies(t *testing.T) {
	f := newFakeFactory()
	m, _, collector := newTestManager(t, testOptions(), f)
	ctx := context.Background()

	if err := m.Register(stdioServer("db")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(stdioServer("api", "db")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	err := m.Start(ctx, "api")
	if err == nil {
		t.Fatal("expected start to fail with stopped dependency")
	}
	var pe *protocol.Error
	if !errors.As(err, &pe) || pe.Code != protocol.CodeLifecycleError {
		t.Errorf("expected lifecycle error, got %v", err)
	}

	if err := m.Start(ctx, "db"); err != nil {
		t.Fatalf("Start db: %v", err)
	}
	if !collector.WaitForState("db", events.StateRunning, time.Second) {
		t.Fatal("db never ran")
	}
	if err := m.Start(ctx, "api"); err != nil {
		t.Fatalf("Start api with running dependency: %v", err)
	}
}

func TestManager_CrashTriggersRestart(t *testing.T) {
	f := newFakeFactory()
	m, _, collector := newTestManager(t, testOptions(), f)
	ctx := context.Background()

	if err := m.Register(stdioServer("a")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Start(ctx, "a"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !collector.WaitForState("a", events.StateRunning, time.Second) {
		t.Fatal("never saw running")
	}

	collector.Clear()
	f.last("a").crash(3)

	if !collector.WaitForState("a", events.StateRunning, 2*time.Second) {
		t.Fatal("server did not come back after crash")
	}
	st, _ := m.Status("a")
	if st.RestartCount != 1 {
		t.Errorf("expected restartCount 1, got %d", st.RestartCount)
	}
	if st.LastExit == nil || st.LastExit.Code != 3 {
		t.Errorf("expected last exit code 3, got %+v", st.LastExit)
	}
	if f.createdCount("a") != 2 {
		t.Errorf("expected a second transport, got %d", f.createdCount("a"))
	}
}

func TestManager_RestartLimitLandsInCrashed(t *testing.T) {
	f := newFakeFactory()
	opts := testOptions()
	opts.MaxRestarts = 1
	m, _, collector := newTestManager(t, opts, f)
	ctx := context.Background()

	if err := m.Register(stdioServer("a")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Start(ctx, "a"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !collector.WaitForState("a", events.StateRunning, time.Second) {
		t.Fatal("never saw running")
	}

	// Make every reconnect fail, then kill the live connection.
	f.mu.Lock()
	f.failConnect["a"] = true
	f.mu.Unlock()
	f.last("a").crash(1)

	if !collector.WaitForState("a", events.StateCrashed, 3*time.Second) {
		t.Fatalf("expected crashed, states: %v", collector.StatesFor("a"))
	}
	if !collector.WaitForEvent(events.EventError, time.Second) {
		t.Error("expected an error event when giving up")
	}
	st, _ := m.Status("a")
	if st.Error == "" {
		t.Error("expected error message in status")
	}

	// Manual stop from Crashed is a clean no-op landing in Stopped.
	if err := m.Stop(ctx, "a"); err != nil {
		t.Errorf("Stop from crashed: %v", err)
	}
}

func TestManager_RestartResetsCounters(t *testing.T) {
	f := newFakeFactory()
	m, _, collector := newTestManager(t, testOptions(), f)
	ctx := context.Background()

	if err := m.Register(stdioServer("a")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Start(ctx, "a"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !collector.WaitForState("a", events.StateRunning, time.Second) {
		t.Fatal("never saw running")
	}

	collector.Clear()
	f.last("a").crash(1)
	if !collector.WaitForState("a", events.StateRunning, 2*time.Second) {
		t.Fatal("server did not come back")
	}

	if err := m.Restart(ctx, "a"); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	st, _ := m.Status("a")
	if st.State != events.StateRunning {
		t.Errorf("expected running after restart, got %v", st.State)
	}
	if st.RestartCount != 0 {
		t.Errorf("expected counters reset, got %d", st.RestartCount)
	}
}

func TestManager_StartAllSkipsDependentsOfFailures(t *testing.T) {
	f := newFakeFactory()
	f.failConnect["db"] = true
	m, _, collector := newTestManager(t, testOptions(), f)
	ctx := context.Background()

	if err := m.Register(stdioServer("db")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(stdioServer("api", "db")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(stdioServer("solo")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	err := m.StartAll(ctx)
	if err == nil {
		t.Fatal("expected aggregate error")
	}
	if !collector.WaitForState("solo", events.StateRunning, time.Second) {
		t.Fatal("independent server should still start")
	}
	if st, _ := m.Status("api"); st.State != events.StateStopped {
		t.Errorf("api should be skipped and stay stopped, got %v", st.State)
	}
	if st, _ := m.Status("db"); st.State != events.StateError {
		t.Errorf("db should be in error, got %v", st.State)
	}
	if f.createdCount("api") != 0 {
		t.Errorf("api must never be launched, got %d transports", f.createdCount("api"))
	}
}

func TestManager_StartAutostart(t *testing.T) {
	f := newFakeFactory()
	m, _, collector := newTestManager(t, testOptions(), f)
	ctx := context.Background()

	// dep is not flagged autostart but is required by auto.
	if err := m.Register(stdioServer("dep")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	auto := stdioServer("auto", "dep")
	auto.Autostart = true
	if err := m.Register(auto); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(stdioServer("bystander")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := m.StartAutostart(ctx); err != nil {
		t.Fatalf("StartAutostart: %v", err)
	}
	if !collector.WaitForState("auto", events.StateRunning, time.Second) {
		t.Fatal("auto never ran")
	}
	if st, _ := m.Status("dep"); st.State != events.StateRunning {
		t.Errorf("dependency should be pulled up, got %v", st.State)
	}
	if st, _ := m.Status("bystander"); st.State != events.StateStopped {
		t.Errorf("bystander should stay stopped, got %v", st.State)
	}
}

func TestManager_StopAll(t *testing.T) {
	f := newFakeFactory()
	m, _, collector := newTestManager(t, testOptions(), f)
	ctx := context.Background()

	// front depends on api depends on db.
	if err := m.Register(stdioServer("db")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(stdioServer("api", "db")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(stdioServer("front", "api")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	if !collector.WaitForState("front", events.StateRunning, time.Second) {
		t.Fatal("front never ran")
	}
	assertOrder(t, "start", f.spawnOrder(), []string{"db", "api", "front"})

	if err := m.StopAll(ctx); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	for _, name := range []string{"db", "api", "front"} {
		if st, _ := m.Status(name); st.State != events.StateStopped {
			t.Errorf("%s should be stopped, got %v", name, st.State)
		}
	}
	assertOrder(t, "stop", f.stopOrder(), []string{"front", "api", "db"})
}

func assertOrder(t *testing.T, what string, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("observed %s order %v, want %v", what, got, want)
		return
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("observed %s order %v, want %v", what, got, want)
			return
		}
	}
}

func TestManager_StopCancelsInFlightRequests(t *testing.T) {
	f := newFakeFactory()
	m, registry, collector := newTestManager(t, testOptions(), f)
	ctx := context.Background()

	if err := m.Register(stdioServer("a")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Start(ctx, "a"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !collector.WaitForState("a", events.StateRunning, time.Second) {
		t.Fatal("never saw running")
	}

	token := registry.Register("req-1", "a", "tools/call", 0)
	if err := m.Stop(ctx, "a"); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !token.Cancelled() {
		t.Error("stopping a server must cancel its in-flight requests")
	}
	if token.Reason() != "server stopping" {
		t.Errorf("unexpected reason %q", token.Reason())
	}
}

func TestManager_UnregisterStopsAndCancels(t *testing.T) {
	f := newFakeFactory()
	m, registry, collector := newTestManager(t, testOptions(), f)
	ctx := context.Background()

	if err := m.Register(stdioServer("a")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Start(ctx, "a"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !collector.WaitForState("a", events.StateRunning, time.Second) {
		t.Fatal("never saw running")
	}

	registry.Register("req-1", "a", "tools/call", 0)
	if err := m.Unregister(ctx, "a"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if _, err := m.Status("a"); err == nil {
		t.Error("expected unknown server after unregister")
	}
	if registry.Count() != 0 {
		t.Errorf("expected registry drained, got %d", registry.Count())
	}
}

func TestManager_SetDependenciesRejectsCycle(t *testing.T) {
	m, _, _ := newTestManager(t, testOptions(), newFakeFactory())

	if err := m.Register(stdioServer("a")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(stdioServer("b", "a")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	err := m.SetDependencies("a", []string{"b"})
	if err == nil {
		t.Fatal("expected cycle to be rejected")
	}
	var pe *protocol.Error
	if !errors.As(err, &pe) || pe.Code != protocol.CodeConfigError {
		t.Errorf("expected config error, got %v", err)
	}

	if err := m.SetDependencies("a", nil); err != nil {
		t.Errorf("clearing dependencies should work: %v", err)
	}
}

func TestManager_HealthCheckFailuresForceRestart(t *testing.T) {
	f := newFakeFactory()
	opts := testOptions()
	opts.HealthInterval = 20 * time.Millisecond
	opts.MaxConsecutiveFailures = 2
	m, _, collector := newTestManager(t, opts, f)
	ctx := context.Background()

	if err := m.Register(stdioServer("a")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Start(ctx, "a"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !collector.WaitForState("a", events.StateRunning, time.Second) {
		t.Fatal("never saw running")
	}

	// Make this connection's pings fail; the replacement connection is
	// healthy again.
	f.last("a").mu.Lock()
	f.last("a").pingErr = protocol.TimeoutError("ping timed out")
	f.last("a").mu.Unlock()

	if !collector.WaitForEvent(events.EventHealthCheckFailed, 2*time.Second) {
		t.Fatal("expected health check failure events")
	}

	// The threshold forces a disconnect, which routes through the crash
	// restart path onto a healthy replacement connection.
	deadline := time.Now().Add(3 * time.Second)
	for {
		st, err := m.Status("a")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if st.RestartCount >= 1 && st.State == events.StateRunning {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected recovery via restart, status: %+v", st)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestManager_CloseStopsEverything(t *testing.T) {
	f := newFakeFactory()
	m, _, collector := newTestManager(t, testOptions(), f)
	ctx := context.Background()

	if err := m.Register(stdioServer("a")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Start(ctx, "a"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !collector.WaitForState("a", events.StateRunning, time.Second) {
		t.Fatal("never saw running")
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if st, _ := m.Status("a"); st.State != events.StateStopped {
		t.Errorf("expected stopped after close, got %v", st.State)
	}
	if err := m.Register(stdioServer("late")); err == nil {
		t.Error("registering after close should fail")
	}
}
