package mcp

import (
	"sync"

	"github.com/Bigsy/mcpherd/internal/protocol"
)

// ErrDuplicateID reports an attempt to register a request id that already has
// a live pending entry.
var ErrDuplicateID = protocol.NewError(protocol.CodeValidationError, "request id already in flight")

// requestResult is the terminal outcome of a pending request: exactly one of
// msg or err is meaningful.
type requestResult struct {
	msg protocol.Message
	err error
}

// pendingRequests correlates request ids with one-shot completion slots.
// Each slot resolves at most once; resolving an id that was already removed
// is a no-op, which tolerates races between response arrival and
// timeout/disconnect.
type pendingRequests struct {
	mu    sync.Mutex
	slots map[protocol.ID]chan requestResult
}

func newPendingRequests() *pendingRequests {
	return &pendingRequests{slots: make(map[protocol.ID]chan requestResult)}
}

// add registers a new pending request and returns its completion channel.
func (p *pendingRequests) add(id protocol.ID) (<-chan requestResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.slots[id]; exists {
		return nil, ErrDuplicateID
	}
	ch := make(chan requestResult, 1)
	p.slots[id] = ch
	return ch, nil
}

// resolve fulfills the slot for id with a response and removes the entry.
// Returns false if no live entry exists (already resolved or never added).
func (p *pendingRequests) resolve(id protocol.ID, msg protocol.Message) bool {
	p.mu.Lock()
	ch, ok := p.slots[id]
	if ok {
		delete(p.slots, id)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- requestResult{msg: msg}
	return true
}

// fail fulfills the slot for id with an error and removes the entry.
func (p *pendingRequests) fail(id protocol.ID, err error) bool {
	p.mu.Lock()
	ch, ok := p.slots[id]
	if ok {
		delete(p.slots, id)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- requestResult{err: err}
	return true
}

// remove discards the entry for id without fulfilling it. Used by the caller
// after it stops waiting (timeout, context cancellation). Idempotent.
func (p *pendingRequests) remove(id protocol.ID) {
	p.mu.Lock()
	delete(p.slots, id)
	p.mu.Unlock()
}

// failAll fulfills every outstanding slot with err and empties the map.
// Returns the number of requests resolved.
func (p *pendingRequests) failAll(err error) int {
	p.mu.Lock()
	slots := p.slots
	p.slots = make(map[protocol.ID]chan requestResult)
	p.mu.Unlock()

	for _, ch := range slots {
		ch <- requestResult{err: err}
	}
	return len(slots)
}

// len returns the number of outstanding requests.
func (p *pendingRequests) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}
