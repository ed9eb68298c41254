// Package mcp provides the MCP client runtime: the transport contract, its
// stdio implementation, and the protocol client built on top of them.
package mcp

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Bigsy/mcpherd/internal/config"
	"github.com/Bigsy/mcpherd/internal/protocol"
)

// DefaultRequestTimeout applies when neither the call site nor the server
// config specifies a timeout.
const DefaultRequestTimeout = 30 * time.Second

// State represents the connection state of a transport.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosing
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// EventKind identifies the kind of transport event.
type EventKind int

const (
	// EventStateChanged reports a connection state transition.
	EventStateChanged EventKind = iota
	// EventNotification carries an inbound notification message.
	EventNotification
	// EventRequest carries an inbound server-initiated request.
	EventRequest
	// EventDisconnected reports that the connection ended.
	EventDisconnected
	// EventStderr carries one line of the child process's stderr.
	EventStderr
)

// Event is delivered to transport subscribers.
type Event struct {
	Kind    EventKind
	State   State
	Message protocol.Message
	Line    string
	Err     error
}

// Transport is the connection mechanism carrying protocol messages to one
// server. Implementations exist per wire format; selection happens in New.
type Transport interface {
	// Connect establishes the connection.
	Connect(ctx context.Context) error
	// Disconnect tears the connection down. Every outstanding SendRequest
	// resolves with a cancellation error; no caller blocks past disconnect.
	Disconnect() error
	// Send transmits a message without waiting for a response.
	Send(ctx context.Context, msg protocol.Message) error
	// SendRequest transmits a request and blocks until the matching response
	// arrives, the timeout elapses, ctx is cancelled, or the transport
	// disconnects. A non-positive timeout falls back to the configured
	// per-server timeout. Reusing an id with an unresolved request is a
	// caller error.
	SendRequest(ctx context.Context, msg protocol.Message, timeout time.Duration) (protocol.Message, error)
	// Subscribe registers a buffered event subscriber. Slow subscribers miss
	// events rather than blocking transport I/O.
	Subscribe(buffer int) (<-chan Event, func())
	// State returns the current connection state.
	State() State
	// Connected reports whether the transport is connected.
	Connected() bool
}

// New creates a transport for the configured wire format. Only stdio servers
// are constructible here; network transports live behind the same contract
// but are provided by other packages.
func New(cfg config.ServerConfig, logger *slog.Logger) (Transport, error) {
	switch cfg.GetKind() {
	case config.TransportStdio:
		return NewStdioTransport(cfg, logger), nil
	default:
		return nil, protocol.ConfigError("unsupported transport kind %q for server %q", cfg.GetKind(), cfg.Name)
	}
}

// subscribers is a small fan-out helper shared by transport implementations.
type subscribers struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func newSubscribers() *subscribers {
	return &subscribers{subs: make(map[int]chan Event)}
}

func (s *subscribers) add(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *subscribers) emit(ev Event) {
	s.mu.Lock()
	chans := make([]chan Event, 0, len(s.subs))
	for _, ch := range s.subs {
		chans = append(chans, ch)
	}
	s.mu.Unlock()
	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
			// Subscriber buffer full; drop rather than block the reader loop.
		}
	}
}
