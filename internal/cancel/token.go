// Package cancel tracks in-flight requests and provides cooperative
// cancellation: one request, all requests for a server, or everything.
// Cancellation resolves the client-side wait; it never interrupts work the
// server is already doing.
package cancel

import (
	"sync"
)

// Token is a shared handle with exactly one terminal write. Observers wait
// on Done; cancelling an already-cancelled token is a no-op.
type Token struct {
	mu        sync.Mutex
	done      chan struct{}
	cancelled bool
	reason    string
}

func newToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel marks the token cancelled with the given reason and wakes all
// observers. Returns false if the token was already cancelled.
func (t *Token) Cancel(reason string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelled {
		return false
	}
	t.cancelled = true
	t.reason = reason
	close(t.done)
	return true
}

// Done returns a channel closed when the token is cancelled.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Cancelled reports whether the token has been cancelled.
func (t *Token) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Reason returns the cancellation reason, or "" if not cancelled.
func (t *Token) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}
