package events

import (
	"sync"
)

// Handler is a function that handles events.
type Handler func(Event)

// Bus is a goroutine-safe broadcast bus. Events fan out to registered handler
// functions and to channel subscribers. Publishing never blocks: a subscriber
// whose channel is full misses the event.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	subs     map[int]chan Event
	nextSub  int
	ch       chan Event
	done     chan struct{}
	closed   bool
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	b := &Bus{
		handlers: make([]Handler, 0),
		subs:     make(map[int]chan Event),
		ch:       make(chan Event, 100), // Buffer to prevent blocking publishers
		done:     make(chan struct{}),
	}
	go b.run()
	return b
}

// run dispatches events from the publish channel.
func (b *Bus) run() {
	for {
		select {
		case event := <-b.ch:
			b.dispatch(event)
		case <-b.done:
			return
		}
	}
}

// dispatch sends an event to all registered handlers and subscribers.
func (b *Bus) dispatch(event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	subs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		subs = append(subs, ch)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		if h != nil {
			h(event)
		}
	}
	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			// Subscriber is slow; drop rather than block the bus.
		}
	}
}

// Subscribe registers a handler to receive events.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	idx := len(b.handlers) - 1
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		// Mark as nil rather than removing to preserve indices
		if idx < len(b.handlers) {
			b.handlers[idx] = nil
		}
	}
}

// SubscribeChan registers a buffered channel subscriber. The returned cancel
// function removes the subscription; the channel is not closed, so a receive
// loop should also select on its own done signal.
func (b *Bus) SubscribeChan(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish sends an event to all subscribers.
// This is non-blocking due to the buffered channel.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}
	select {
	case b.ch <- event:
	default:
		// Channel full, drop event (should be rare with buffer)
	}
}

// Close shuts down the event bus.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	close(b.done)
}
