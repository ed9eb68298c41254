// Package testutil provides common test utilities.
package testutil

import (
	"sync"
	"time"

	"github.com/Bigsy/mcpherd/internal/events"
)

// EventCollector records bus events for test assertions. Subscribe its
// Handler to an event bus and query the collected events afterwards.
type EventCollector struct {
	mu     sync.Mutex
	events []events.Event
	states map[string][]events.ServerState
	cond   *sync.Cond
}

// NewEventCollector creates an EventCollector.
func NewEventCollector() *EventCollector {
	c := &EventCollector{
		states: make(map[string][]events.ServerState),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Handler is a function suitable for bus.Subscribe.
func (c *EventCollector) Handler(e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, e)
	if evt, ok := e.(events.StatusChangedEvent); ok {
		c.states[evt.Server()] = append(c.states[evt.Server()], evt.NewState)
	}
	c.cond.Broadcast()
}

// Events returns all collected events.
func (c *EventCollector) Events() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Event, len(c.events))
	copy(out, c.events)
	return out
}

// EventsOf returns the collected events of one type.
func (c *EventCollector) EventsOf(typ events.EventType) []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []events.Event
	for _, e := range c.events {
		if e.Type() == typ {
			out = append(out, e)
		}
	}
	return out
}

// StatesFor returns all states observed for a server, in order.
func (c *EventCollector) StatesFor(server string) []events.ServerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.ServerState, len(c.states[server]))
	copy(out, c.states[server])
	return out
}

// LastStateFor returns the most recent state observed for a server, or
// StateStopped if none was observed.
func (c *EventCollector) LastStateFor(server string) events.ServerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	states := c.states[server]
	if len(states) == 0 {
		return events.StateStopped
	}
	return states[len(states)-1]
}

// WaitForState blocks until the state is observed for the server or the
// timeout expires.
func (c *EventCollector) WaitForState(server string, state events.ServerState, timeout time.Duration) bool {
	return c.wait(timeout, func() bool {
		for _, s := range c.states[server] {
			if s == state {
				return true
			}
		}
		return false
	})
}

// WaitForEvent blocks until an event of the given type is observed or the
// timeout expires.
func (c *EventCollector) WaitForEvent(typ events.EventType, timeout time.Duration) bool {
	return c.wait(timeout, func() bool {
		for _, e := range c.events {
			if e.Type() == typ {
				return true
			}
		}
		return false
	})
}

// wait blocks until pred holds (under the lock) or the timeout expires.
func (c *EventCollector) wait(timeout time.Duration, pred func() bool) bool {
	deadline := time.Now().Add(timeout)

	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if pred() {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}

		done := make(chan struct{})
		go func() {
			time.Sleep(remaining)
			c.cond.Broadcast()
			close(done)
		}()

		c.cond.Wait()

		select {
		case <-done:
			return pred()
		default:
		}
	}
}

// Clear resets the collector.
func (c *EventCollector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
	c.states = make(map[string][]events.ServerState)
}

// StatesContainSequence reports whether observed contains expected as a
// subsequence, not necessarily contiguous.
func StatesContainSequence(observed, expected []events.ServerState) bool {
	if len(expected) == 0 {
		return true
	}
	i := 0
	for _, s := range observed {
		if s == expected[i] {
			i++
			if i == len(expected) {
				return true
			}
		}
	}
	return false
}
