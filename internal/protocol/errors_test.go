package protocol

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := TimeoutError("request %s timed out after 30s", "tools/list")
	if !errors.Is(err, ErrTimeout) {
		t.Error("timeout error should match ErrTimeout")
	}
	if errors.Is(err, ErrCancelled) {
		t.Error("timeout error should not match ErrCancelled")
	}
}

func TestError_IsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("call failed: %w", CancelledError("cancelled by user"))
	if !IsCancelled(err) {
		t.Error("wrapped cancellation should match ErrCancelled")
	}
	if IsTimeout(err) {
		t.Error("wrapped cancellation should not match ErrTimeout")
	}
}

func TestError_Message(t *testing.T) {
	err := NewError(CodeMethodNotFound, "method %q not found", "bogus/method")
	want := `rpc error -32601: method "bogus/method" not found`
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestIsDisconnected(t *testing.T) {
	err := ConnectionError("transport disconnected: %v", errors.New("EOF"))
	if !IsDisconnected(err) {
		t.Error("connection error should match ErrDisconnected")
	}
}
