package events

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBus_BasicPublishSubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	received := make(chan Event, 1)
	bus.Subscribe(func(e Event) {
		received <- e
	})

	bus.Publish(NewLogReceivedEvent("server-1", "hello"))

	select {
	case got := <-received:
		le := got.(LogReceivedEvent)
		if le.Server() != "server-1" || le.Line != "hello" {
			t.Errorf("unexpected event: %+v", le)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(1)
		bus.Subscribe(func(e Event) {
			count.Add(1)
			wg.Done()
		})
	}

	bus.Publish(NewLogReceivedEvent("server-1", "line"))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if count.Load() != 3 {
			t.Errorf("expected 3 handlers called, got %d", count.Load())
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for handlers")
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var count atomic.Int32
	unsubscribe := bus.Subscribe(func(e Event) {
		count.Add(1)
	})

	received := make(chan struct{}, 4)
	bus.Subscribe(func(e Event) {
		received <- struct{}{}
	})

	bus.Publish(NewLogReceivedEvent("s", "one"))
	<-received

	unsubscribe()

	bus.Publish(NewLogReceivedEvent("s", "two"))
	<-received

	if count.Load() != 1 {
		t.Errorf("expected 1 event after unsubscribe, got %d", count.Load())
	}
}

func TestBus_SubscribeChan(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ch, cancel := bus.SubscribeChan(8)
	defer cancel()

	bus.Publish(NewStatusChangedEvent("db", StateStopped, StateStarting, ServerStatus{Name: "db", State: StateStarting}))

	select {
	case got := <-ch:
		sc := got.(StatusChangedEvent)
		if sc.NewState != StateStarting {
			t.Errorf("expected starting, got %v", sc.NewState)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel event")
	}
}

func TestBus_SubscribeChanDropsWhenFull(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	// Buffer of 1 and no receiver: subsequent events must be dropped, and
	// publishing must not block.
	ch, cancel := bus.SubscribeChan(1)
	defer cancel()

	witness := make(chan struct{}, 16)
	bus.Subscribe(func(e Event) {
		witness <- struct{}{}
	})

	for i := 0; i < 10; i++ {
		bus.Publish(NewLogReceivedEvent("s", "line"))
	}
	for i := 0; i < 10; i++ {
		select {
		case <-witness:
		case <-time.After(time.Second):
			t.Fatal("publish appears to have blocked")
		}
	}

	if got := len(ch); got != 1 {
		t.Errorf("expected 1 buffered event, got %d", got)
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := NewBus()
	bus.Close()
	bus.Close() // idempotent

	// Must not panic or block.
	bus.Publish(NewLogReceivedEvent("s", "late"))
}
