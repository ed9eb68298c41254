package cancel

import (
	"testing"
	"time"
)

func TestRegistry_RegisterAndCancel(t *testing.T) {
	r := NewRegistry(nil, nil)

	token := r.Register("req-1", "db", "tools/call", 30*time.Second)
	if r.Count() != 1 {
		t.Fatalf("expected 1 tracked request, got %d", r.Count())
	}

	res := r.Cancel("req-1", "user pressed c")
	if res == nil || !res.Cancelled {
		t.Fatalf("expected cancellation, got %+v", res)
	}
	if !token.Cancelled() {
		t.Error("token should be cancelled")
	}
	if token.Reason() != "user pressed c" {
		t.Errorf("expected reason preserved, got %q", token.Reason())
	}
	if r.Count() != 0 {
		t.Errorf("expected registry emptied, got %d", r.Count())
	}

	select {
	case <-token.Done():
	default:
		t.Error("Done channel should be closed after cancel")
	}
}

func TestRegistry_CancelUnknownID(t *testing.T) {
	r := NewRegistry(nil, nil)
	if res := r.Cancel("absent", "whatever"); res != nil {
		t.Errorf("expected nil for unknown id, got %+v", res)
	}
}

func TestRegistry_SecondCancelIsNoOp(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Register("req-1", "db", "ping", 0)

	first := r.Cancel("req-1", "first")
	if first == nil || !first.Cancelled {
		t.Fatalf("first cancel should succeed, got %+v", first)
	}
	if second := r.Cancel("req-1", "second"); second != nil {
		t.Errorf("second cancel should return nil, got %+v", second)
	}
}

func TestRegistry_RegisterSameIDReturnsExistingToken(t *testing.T) {
	r := NewRegistry(nil, nil)
	t1 := r.Register("req-1", "db", "ping", 0)
	t2 := r.Register("req-1", "db", "ping", 0)
	if t1 != t2 {
		t.Error("re-registering a live id should return the existing token")
	}
	if r.Count() != 1 {
		t.Errorf("expected 1 tracked request, got %d", r.Count())
	}
}

func TestRegistry_UnregisterExcludesCancellation(t *testing.T) {
	r := NewRegistry(nil, nil)
	token := r.Register("req-1", "db", "tools/call", 0)

	if !r.Unregister("req-1") {
		t.Fatal("expected unregister to find the request")
	}
	if r.Unregister("req-1") {
		t.Error("second unregister should report unknown")
	}

	// A completed request can no longer be cancelled.
	if res := r.Cancel("req-1", "too late"); res != nil {
		t.Errorf("expected nil after completion, got %+v", res)
	}
	if token.Cancelled() {
		t.Error("completed request's token must stay uncancelled")
	}
}

func TestRegistry_CancelServer(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Register("a-1", "alpha", "tools/call", 0)
	r.Register("a-2", "alpha", "resources/read", 0)
	r.Register("b-1", "beta", "tools/call", 0)

	results := r.CancelServer("alpha", "server stopping")
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a-1" || results[1].ID != "a-2" {
		t.Errorf("expected results sorted by id, got %+v", results)
	}
	if r.Count() != 1 {
		t.Errorf("beta's request should survive, count = %d", r.Count())
	}
	if _, ok := r.Get("b-1"); !ok {
		t.Error("b-1 should still be tracked")
	}
}

func TestRegistry_CancelAll(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Register("a-1", "alpha", "ping", 0)
	r.Register("b-1", "beta", "ping", 0)

	results := r.CancelAll("shutting down")
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	for _, res := range results {
		if !res.Cancelled {
			t.Errorf("expected %s cancelled", res.ID)
		}
	}
	if r.Count() != 0 {
		t.Errorf("expected empty registry, got %d", r.Count())
	}
}

func TestRegistry_FindLongRunning(t *testing.T) {
	r := NewRegistry(nil, nil)
	r.Register("old", "db", "tools/call", 0)
	time.Sleep(20 * time.Millisecond)
	r.Register("new", "db", "ping", 0)

	long := r.FindLongRunning(10 * time.Millisecond)
	if len(long) != 1 || long[0].ID != "old" {
		t.Fatalf("expected only the old request, got %+v", long)
	}

	all := r.FindLongRunning(0)
	if len(all) != 2 {
		t.Fatalf("expected both requests, got %d", len(all))
	}
	if !all[0].StartedAt.Before(all[1].StartedAt) {
		t.Error("expected oldest first")
	}
}

func TestToken_CancelOnce(t *testing.T) {
	tok := newToken()
	if !tok.Cancel("first") {
		t.Fatal("first cancel should return true")
	}
	if tok.Cancel("second") {
		t.Error("second cancel should return false")
	}
	if tok.Reason() != "first" {
		t.Errorf("reason should be from the first cancel, got %q", tok.Reason())
	}
}
