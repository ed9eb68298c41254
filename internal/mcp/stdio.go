package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Bigsy/mcpherd/internal/config"
	"github.com/Bigsy/mcpherd/internal/protocol"
)

// stderrRingSize bounds the captured stderr history per connection.
const stderrRingSize = 1000

// StdioTransport runs an MCP server as a child process and frames JSON-RPC
// messages as newline-delimited JSON over its stdin/stdout. A writer loop
// serializes outbound messages; a reader loop correlates responses by id and
// forwards notifications and server-initiated requests to subscribers.
type StdioTransport struct {
	cfg    config.ServerConfig
	logger *slog.Logger
	subs   *subscribers

	mu      sync.Mutex
	state   State
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	pending *pendingRequests
	writeCh chan writeReq
	done    chan struct{} // closed once per connection when it ends
	exited  chan struct{} // closed when the child has been reaped
	exit    int           // last exit code, -1 while running or never started

	logsMu sync.RWMutex
	logs   []string
}

type writeReq struct {
	data []byte
	errs chan error
}

// NewStdioTransport creates a stdio transport for the given server config.
// The command is not spawned until Connect.
func NewStdioTransport(cfg config.ServerConfig, logger *slog.Logger) *StdioTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &StdioTransport{
		cfg:     cfg,
		logger:  logger.With("server", cfg.Name, "transport", "stdio"),
		subs:    newSubscribers(),
		pending: newPendingRequests(),
		exit:    -1,
	}
}

// Connect spawns the configured command and starts the reader and writer
// loops. It fails with a connection error if the process cannot be spawned
// or any pipe cannot be captured.
func (t *StdioTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.state == StateConnected || t.state == StateConnecting {
		t.mu.Unlock()
		return protocol.ConnectionError("server %q already connected", t.cfg.Name)
	}
	t.setStateLocked(StateConnecting)
	t.mu.Unlock()

	cmd := exec.Command(t.cfg.Command, t.cfg.Args...)
	if t.cfg.Cwd != "" {
		cmd.Dir = t.cfg.Cwd
	}
	cmd.Env = buildEnv(t.cfg.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return t.connectFailed("stdin pipe: %v", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return t.connectFailed("stdout pipe: %v", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return t.connectFailed("stderr pipe: %v", err)
	}

	if err := cmd.Start(); err != nil {
		return t.connectFailed("spawn %q: %v", t.cfg.Command, err)
	}

	t.mu.Lock()
	t.cmd = cmd
	t.stdin = stdin
	t.writeCh = make(chan writeReq)
	t.done = make(chan struct{})
	t.exited = make(chan struct{})
	t.exit = -1
	done, writeCh, exited := t.done, t.writeCh, t.exited
	t.setStateLocked(StateConnected)
	t.mu.Unlock()

	t.logger.Debug("connected", "pid", cmd.Process.Pid)

	go t.writeLoop(stdin, writeCh, done)
	go t.readLoop(stdout, done)
	go t.readStderr(stderr)
	go t.reap(cmd, done, exited)

	return nil
}

func (t *StdioTransport) connectFailed(format string, args ...any) error {
	err := protocol.ConnectionError(format, args...)
	t.mu.Lock()
	t.setStateLocked(StateError)
	t.mu.Unlock()
	return err
}

// Disconnect stops both loops, kills the child if still alive, and resolves
// every outstanding request with a cancellation error.
func (t *StdioTransport) Disconnect() error {
	err := protocol.CancelledError("cancelled: transport disconnected")
	t.shutdown(StateDisconnected, err, true)
	return nil
}

// Terminate asks the child to exit with SIGTERM, waits up to grace for it,
// then tears the connection down (escalating to SIGKILL if still alive).
func (t *StdioTransport) Terminate(grace time.Duration) error {
	t.mu.Lock()
	cmd := t.cmd
	exited := t.exited
	running := t.done != nil
	t.mu.Unlock()

	if running && cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
		if exited != nil && grace > 0 {
			timer := time.NewTimer(grace)
			select {
			case <-exited:
				timer.Stop()
			case <-timer.C:
			}
		}
	}
	return t.Disconnect()
}

// shutdown tears down the current connection exactly once. finalState is the
// state to land in, pendingErr resolves outstanding requests, and kill
// controls whether the child is terminated (false when it already exited).
func (t *StdioTransport) shutdown(finalState State, pendingErr error, kill bool) {
	t.mu.Lock()
	if t.state == StateDisconnected || t.state == StateError || t.done == nil {
		// Already torn down (or never connected); just record the state.
		if t.state != finalState && t.state != StateDisconnected {
			t.setStateLocked(finalState)
		}
		t.mu.Unlock()
		return
	}
	t.setStateLocked(StateClosing)
	done := t.done
	exited := t.exited
	cmd := t.cmd
	stdin := t.stdin
	t.done = nil
	t.mu.Unlock()

	close(done)
	if stdin != nil {
		stdin.Close()
	}

	if kill && cmd != nil && cmd.Process != nil {
		select {
		case <-exited:
			// Child already gone.
		default:
			_ = cmd.Process.Kill()
		}
	}
	if exited != nil {
		<-exited
	}

	resolved := t.pending.failAll(pendingErr)
	if resolved > 0 {
		t.logger.Debug("resolved pending requests on disconnect", "count", resolved)
	}

	t.mu.Lock()
	t.setStateLocked(finalState)
	t.mu.Unlock()

	t.subs.emit(Event{Kind: EventDisconnected, State: finalState, Err: pendingErr})
}

// Send queues a message for the writer loop and waits for the write result.
func (t *StdioTransport) Send(ctx context.Context, msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return protocol.NewError(protocol.CodeInternalError, "marshal message: %v", err)
	}

	t.mu.Lock()
	if t.state != StateConnected {
		t.mu.Unlock()
		return protocol.ErrDisconnected
	}
	writeCh, done := t.writeCh, t.done
	t.mu.Unlock()

	req := writeReq{data: data, errs: make(chan error, 1)}
	select {
	case writeCh <- req:
	case <-done:
		return protocol.ErrDisconnected
	case <-ctx.Done():
		return protocol.CancelledError("send cancelled: %v", ctx.Err())
	}

	select {
	case err := <-req.errs:
		if err != nil {
			return protocol.TransportError("write: %v", err)
		}
		return nil
	case <-done:
		return protocol.ErrDisconnected
	case <-ctx.Done():
		return protocol.CancelledError("send cancelled: %v", ctx.Err())
	}
}

// SendRequest sends a request and blocks until the matching response arrives,
// the timeout elapses, ctx is cancelled, or the transport disconnects. All
// bookkeeping for the id is discarded on any failure path.
func (t *StdioTransport) SendRequest(ctx context.Context, msg protocol.Message, timeout time.Duration) (protocol.Message, error) {
	if msg.ID == "" {
		return protocol.Message{}, protocol.NewError(protocol.CodeValidationError, "request id is required")
	}
	if timeout <= 0 {
		timeout = t.cfg.RequestTimeout.Or(DefaultRequestTimeout)
	}

	resCh, err := t.pending.add(msg.ID)
	if err != nil {
		return protocol.Message{}, err
	}

	if err := t.Send(ctx, msg); err != nil {
		t.pending.remove(msg.ID)
		return protocol.Message{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-resCh:
		if res.err != nil {
			return protocol.Message{}, res.err
		}
		return res.msg, nil
	case <-timer.C:
		t.pending.remove(msg.ID)
		// A response may have been resolved in the same instant; prefer it.
		select {
		case res := <-resCh:
			if res.err != nil {
				return protocol.Message{}, res.err
			}
			return res.msg, nil
		default:
		}
		return protocol.Message{}, protocol.TimeoutError("request %s timed out after %s", msg.ID, timeout)
	case <-ctx.Done():
		t.pending.remove(msg.ID)
		return protocol.Message{}, protocol.CancelledError("request %s cancelled: %v", msg.ID, ctx.Err())
	}
}

// Subscribe registers an event subscriber.
func (t *StdioTransport) Subscribe(buffer int) (<-chan Event, func()) {
	return t.subs.add(buffer)
}

// State returns the current connection state.
func (t *StdioTransport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connected reports whether the transport is connected.
func (t *StdioTransport) Connected() bool {
	return t.State() == StateConnected
}

// PID returns the child process id, or 0 if not running.
func (t *StdioTransport) PID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd == nil || t.cmd.Process == nil {
		return 0
	}
	return t.cmd.Process.Pid
}

// ExitCode returns the child's last exit code, or -1 if the process is still
// running or never started.
func (t *StdioTransport) ExitCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exit
}

// Logs returns a copy of the captured stderr lines.
func (t *StdioTransport) Logs() []string {
	t.logsMu.RLock()
	defer t.logsMu.RUnlock()
	logs := make([]string, len(t.logs))
	copy(logs, t.logs)
	return logs
}

// PendingCount returns the number of in-flight requests.
func (t *StdioTransport) PendingCount() int {
	return t.pending.len()
}

// setStateLocked transitions the state and emits a state event. Caller holds mu.
func (t *StdioTransport) setStateLocked(s State) {
	if t.state == s {
		return
	}
	t.state = s
	// Emission is non-blocking, safe under the lock.
	t.subs.emit(Event{Kind: EventStateChanged, State: s})
}

// writeLoop serializes outbound messages, one line of JSON per message,
// flushing after each write.
func (t *StdioTransport) writeLoop(stdin io.WriteCloser, writeCh chan writeReq, done chan struct{}) {
	w := bufio.NewWriter(stdin)
	for {
		var req writeReq
		select {
		case <-done:
			return
		case req = <-writeCh:
		}

		_, err := w.Write(append(req.data, '\n'))
		if err == nil {
			err = w.Flush()
		}
		req.errs <- err
		if err != nil {
			// A broken stdin pipe invalidates the connection, not just
			// this one message.
			t.logger.Warn("stdin write error", "err", err)
			t.shutdown(StateError, protocol.TransportError("write: %v", err), true)
			return
		}
	}
}

// readLoop reads stdout line by line, matching responses against the pending
// map and forwarding notifications and server-initiated requests to
// subscribers. Unparseable lines are dropped.
func (t *StdioTransport) readLoop(stdout io.ReadCloser, done chan struct{}) {
	reader := bufio.NewReader(stdout)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			t.handleLine(bytes.TrimSpace(line))
		}
		if err != nil {
			select {
			case <-done:
				// Shutdown already in progress.
				return
			default:
			}
			if errors.Is(err, io.EOF) {
				t.logger.Debug("stdout closed")
				t.shutdown(StateDisconnected, protocol.ErrDisconnected, true)
			} else {
				t.logger.Warn("stdout read error", "err", err)
				t.shutdown(StateError, protocol.TransportError("read: %v", err), true)
			}
			return
		}
	}
}

func (t *StdioTransport) handleLine(line []byte) {
	if len(line) == 0 {
		return
	}
	var msg protocol.Message
	if err := json.Unmarshal(line, &msg); err != nil {
		// Protocol tolerance: servers may emit stray output on stdout.
		t.logger.Debug("dropping unparseable line", "err", err)
		return
	}

	switch {
	case msg.IsResponse():
		if !t.pending.resolve(msg.ID, msg) {
			t.logger.Debug("response for unknown request", "id", msg.ID)
		}
	case msg.IsNotification():
		t.subs.emit(Event{Kind: EventNotification, Message: msg})
	case msg.IsRequest():
		t.subs.emit(Event{Kind: EventRequest, Message: msg})
	default:
		t.logger.Debug("dropping unclassifiable message")
	}
}

// readStderr captures the child's stderr into a bounded ring and forwards
// each line as an event.
func (t *StdioTransport) readStderr(stderr io.ReadCloser) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()

		t.logsMu.Lock()
		t.logs = append(t.logs, line)
		if len(t.logs) > stderrRingSize {
			t.logs = t.logs[len(t.logs)-stderrRingSize:]
		}
		t.logsMu.Unlock()

		t.subs.emit(Event{Kind: EventStderr, Line: line})
	}
}

// reap waits for the child to exit and tears the connection down if the exit
// was not initiated by Disconnect.
func (t *StdioTransport) reap(cmd *exec.Cmd, done, exited chan struct{}) {
	err := cmd.Wait()
	t.mu.Lock()
	if cmd.ProcessState != nil {
		t.exit = cmd.ProcessState.ExitCode()
	}
	t.mu.Unlock()
	close(exited)

	select {
	case <-done:
		// Disconnect initiated the exit; shutdown handles the rest.
		return
	default:
	}
	if err != nil {
		t.logger.Debug("process exited", "err", err)
	}
	t.shutdown(StateDisconnected, protocol.ErrDisconnected, false)
}

// buildEnv creates the child environment, overlaying custom variables on the
// current environment.
func buildEnv(customEnv map[string]string) []string {
	env := os.Environ()
	for k, v := range customEnv {
		found := false
		prefix := k + "="
		for i, e := range env {
			if strings.HasPrefix(e, prefix) {
				env[i] = k + "=" + v
				found = true
				break
			}
		}
		if !found {
			env = append(env, k+"="+v)
		}
	}
	return env
}
