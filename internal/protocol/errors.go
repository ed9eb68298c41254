package protocol

import (
	"errors"
	"fmt"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// MCP extension error codes (-32000..-32010).
const (
	CodeConnectionError  = -32000
	CodeTransportError   = -32001
	CodeProtocolError    = -32002
	CodeTimeout          = -32003
	CodeCancelled        = -32004
	CodeValidationError  = -32005
	CodeConfigError      = -32006
	CodeLifecycleError   = -32007
	CodeToolError        = -32008
	CodeResourceError    = -32009
	CodePermissionDenied = -32010
)

// Error is a coded error matching the wire error shape. It is used both for
// errors returned by the remote peer and for errors the runtime raises
// locally (timeouts, cancellation, lifecycle failures).
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Is allows errors.Is comparison against the code sentinels below.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

// Sentinel errors for the failure modes callers branch on. All are *Error
// values, so they carry the matching wire code and satisfy errors.Is against
// richer instances built with the constructors.
var (
	ErrTimeout      = &Error{Code: CodeTimeout, Message: "request timed out"}
	ErrCancelled    = &Error{Code: CodeCancelled, Message: "request cancelled"}
	ErrDisconnected = &Error{Code: CodeConnectionError, Message: "transport disconnected"}
)

// NewError builds a coded error with a formatted message.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ConnectionError wraps a connect/spawn failure.
func ConnectionError(format string, args ...any) *Error {
	return NewError(CodeConnectionError, format, args...)
}

// TransportError wraps an I/O failure on an established connection.
func TransportError(format string, args ...any) *Error {
	return NewError(CodeTransportError, format, args...)
}

// TimeoutError reports a request that exceeded its deadline.
func TimeoutError(format string, args ...any) *Error {
	return NewError(CodeTimeout, format, args...)
}

// CancelledError reports a request resolved by cancellation, with the reason.
func CancelledError(format string, args ...any) *Error {
	return NewError(CodeCancelled, format, args...)
}

// ConfigError reports invalid configuration (unknown transport kind,
// dependency cycles).
func ConfigError(format string, args ...any) *Error {
	return NewError(CodeConfigError, format, args...)
}

// LifecycleError reports a supervision failure (failed start, exhausted
// restart budget).
func LifecycleError(format string, args ...any) *Error {
	return NewError(CodeLifecycleError, format, args...)
}

// IsTimeout reports whether err resolves to a timeout error.
func IsTimeout(err error) bool { return errors.Is(err, ErrTimeout) }

// IsCancelled reports whether err resolves to a cancellation error.
func IsCancelled(err error) bool { return errors.Is(err, ErrCancelled) }

// IsDisconnected reports whether err resolves to a disconnect error.
func IsDisconnected(err error) bool { return errors.Is(err, ErrDisconnected) }
