package cancel

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Bigsy/mcpherd/internal/events"
)

// Request describes one tracked in-flight request.
type Request struct {
	ID        string
	Server    string
	Method    string
	StartedAt time.Time
	Timeout   time.Duration
}

// Result reports the outcome of one cancellation.
type Result struct {
	ID        string
	Server    string
	Cancelled bool
	Elapsed   time.Duration
}

type entry struct {
	req   Request
	token *Token
}

// Registry is the cancellation manager: it owns the set of in-flight
// requests and their tokens. Completion (Unregister) and cancellation are
// mutually exclusive terminal events for an entry.
type Registry struct {
	mu       sync.RWMutex
	requests map[string]*entry
	bus      *events.Bus
	logger   *slog.Logger
}

// NewRegistry creates a cancellation registry. The bus may be nil when no
// observers are interested.
func NewRegistry(bus *events.Bus, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		requests: make(map[string]*entry),
		bus:      bus,
		logger:   logger.With("component", "cancel"),
	}
}

// Register tracks a request and returns its token. Registering an id that is
// already live returns the existing token, preserving the one-live-pair
// invariant.
func (r *Registry) Register(id, server, method string, timeout time.Duration) *Token {
	r.mu.Lock()
	if e, exists := r.requests[id]; exists {
		r.mu.Unlock()
		return e.token
	}
	e := &entry{
		req: Request{
			ID:        id,
			Server:    server,
			Method:    method,
			StartedAt: time.Now(),
			Timeout:   timeout,
		},
		token: newToken(),
	}
	r.requests[id] = e
	r.mu.Unlock()

	r.publish(events.NewRequestRegisteredEvent(server, id, method))
	return e.token
}

// Unregister removes a completed request without cancelling it. Returns
// false for unknown ids.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	_, exists := r.requests[id]
	delete(r.requests, id)
	r.mu.Unlock()
	return exists
}

// Cancel cancels one request by id. Unknown ids return nil; cancelling the
// same id twice returns a result only once.
func (r *Registry) Cancel(id, reason string) *Result {
	r.mu.Lock()
	e, exists := r.requests[id]
	if exists {
		delete(r.requests, id)
	}
	r.mu.Unlock()

	if !exists {
		return nil
	}

	res := r.cancelEntry(e, reason)
	r.publish(events.NewRequestCancelledEvent(e.req.Server, id, reason, res.Elapsed))
	return &res
}

// CancelServer cancels every in-flight request for one server, returning a
// result per request.
func (r *Registry) CancelServer(server, reason string) []Result {
	r.mu.Lock()
	matched := make([]*entry, 0)
	for id, e := range r.requests {
		if e.req.Server == server {
			matched = append(matched, e)
			delete(r.requests, id)
		}
	}
	r.mu.Unlock()

	results := r.cancelEntries(matched, reason)
	r.publish(events.NewServerCancelledEvent(server, len(results), reason))
	return results
}

// CancelAll cancels every in-flight request globally.
func (r *Registry) CancelAll(reason string) []Result {
	r.mu.Lock()
	matched := make([]*entry, 0, len(r.requests))
	for _, e := range r.requests {
		matched = append(matched, e)
	}
	r.requests = make(map[string]*entry)
	r.mu.Unlock()

	results := r.cancelEntries(matched, reason)
	r.publish(events.NewAllCancelledEvent(len(results), reason))
	return results
}

func (r *Registry) cancelEntry(e *entry, reason string) Result {
	cancelled := e.token.Cancel(reason)
	elapsed := time.Since(e.req.StartedAt)
	if cancelled {
		r.logger.Debug("request cancelled",
			"id", e.req.ID, "server", e.req.Server, "method", e.req.Method,
			"reason", reason, "elapsed", elapsed)
	}
	return Result{ID: e.req.ID, Server: e.req.Server, Cancelled: cancelled, Elapsed: elapsed}
}

func (r *Registry) cancelEntries(entries []*entry, reason string) []Result {
	results := make([]Result, 0, len(entries))
	for _, e := range entries {
		results = append(results, r.cancelEntry(e, reason))
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results
}

// Get returns a snapshot of one tracked request.
func (r *Registry) Get(id string) (Request, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.requests[id]; ok {
		return e.req, true
	}
	return Request{}, false
}

// Count returns the number of tracked requests.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.requests)
}

// FindLongRunning returns requests older than threshold, oldest first.
// External watchdogs use this to decide what to cancel.
func (r *Registry) FindLongRunning(threshold time.Duration) []Request {
	now := time.Now()

	r.mu.RLock()
	var out []Request
	for _, e := range r.requests {
		if now.Sub(e.req.StartedAt) >= threshold {
			out = append(out, e.req)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (r *Registry) publish(ev events.Event) {
	if r.bus != nil {
		r.bus.Publish(ev)
	}
}
