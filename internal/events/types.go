// Package events provides the broadcast event system shared by the runtime's
// managers. Telemetry and other host collaborators subscribe here as
// read-only observers.
package events

import (
	"time"
)

// ServerState represents the supervision state of a registered server.
type ServerState int

const (
	StateStopped ServerState = iota
	StateStarting
	StateRunning
	StateStopping
	StateError
	StateCrashed
)

func (s ServerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// IsActive returns true if the server is running or transitioning.
func (s ServerState) IsActive() bool {
	return s == StateStarting || s == StateRunning || s == StateStopping
}

// LastExit records how a server process last exited.
type LastExit struct {
	Code      int       `json:"code"`
	Signal    string    `json:"signal,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ServerStatus is a point-in-time snapshot of a supervised server.
type ServerStatus struct {
	Name                string      `json:"name"`
	State               ServerState `json:"state"`
	PID                 int         `json:"pid,omitempty"`
	RestartCount        int         `json:"restartCount"`
	ConsecutiveFailures int         `json:"consecutiveFailures"`
	LastExit            *LastExit   `json:"lastExit,omitempty"`
	Error               string      `json:"error,omitempty"`
	StartedAt           *time.Time  `json:"startedAt,omitempty"`
	StoppedAt           *time.Time  `json:"stoppedAt,omitempty"`
}

// EventType identifies the kind of event.
type EventType int

const (
	EventStatusChanged EventType = iota
	EventLogReceived
	EventHealthCheckFailed
	EventRequestRegistered
	EventRequestCancelled
	EventServerCancelled
	EventAllCancelled
	EventNotification
	EventProgressUpdated
	EventProgressCompleted
	EventError
)

func (e EventType) String() string {
	switch e {
	case EventStatusChanged:
		return "status_changed"
	case EventLogReceived:
		return "log_received"
	case EventHealthCheckFailed:
		return "health_check_failed"
	case EventRequestRegistered:
		return "request_registered"
	case EventRequestCancelled:
		return "request_cancelled"
	case EventServerCancelled:
		return "server_cancelled"
	case EventAllCancelled:
		return "all_cancelled"
	case EventNotification:
		return "notification"
	case EventProgressUpdated:
		return "progress_updated"
	case EventProgressCompleted:
		return "progress_completed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Server() string
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
type baseEvent struct {
	server    string
	timestamp time.Time
}

func newBase(server string) baseEvent {
	return baseEvent{server: server, timestamp: time.Now()}
}

func (e baseEvent) Server() string       { return e.server }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// StatusChangedEvent is emitted when a server's supervision state changes.
type StatusChangedEvent struct {
	baseEvent
	OldState ServerState
	NewState ServerState
	Status   ServerStatus
}

func (e StatusChangedEvent) Type() EventType { return EventStatusChanged }

// NewStatusChangedEvent creates a new status changed event.
func NewStatusChangedEvent(server string, oldState, newState ServerState, status ServerStatus) StatusChangedEvent {
	return StatusChangedEvent{
		baseEvent: newBase(server),
		OldState:  oldState,
		NewState:  newState,
		Status:    status,
	}
}

// LogReceivedEvent is emitted for each stderr line read from a server process.
type LogReceivedEvent struct {
	baseEvent
	Line string
}

func (e LogReceivedEvent) Type() EventType { return EventLogReceived }

// NewLogReceivedEvent creates a new log received event.
func NewLogReceivedEvent(server, line string) LogReceivedEvent {
	return LogReceivedEvent{baseEvent: newBase(server), Line: line}
}

// HealthCheckFailedEvent is emitted when a periodic health probe fails.
type HealthCheckFailedEvent struct {
	baseEvent
	ConsecutiveFailures int
	Err                 error
}

func (e HealthCheckFailedEvent) Type() EventType { return EventHealthCheckFailed }

// NewHealthCheckFailedEvent creates a new health check failed event.
func NewHealthCheckFailedEvent(server string, failures int, err error) HealthCheckFailedEvent {
	return HealthCheckFailedEvent{baseEvent: newBase(server), ConsecutiveFailures: failures, Err: err}
}

// RequestRegisteredEvent is emitted when a request is registered for
// cancellation tracking.
type RequestRegisteredEvent struct {
	baseEvent
	RequestID string
	Method    string
}

func (e RequestRegisteredEvent) Type() EventType { return EventRequestRegistered }

// NewRequestRegisteredEvent creates a new request registered event.
func NewRequestRegisteredEvent(server, requestID, method string) RequestRegisteredEvent {
	return RequestRegisteredEvent{baseEvent: newBase(server), RequestID: requestID, Method: method}
}

// RequestCancelledEvent is emitted when a single request is cancelled.
type RequestCancelledEvent struct {
	baseEvent
	RequestID string
	Reason    string
	Elapsed   time.Duration
}

func (e RequestCancelledEvent) Type() EventType { return EventRequestCancelled }

// NewRequestCancelledEvent creates a new request cancelled event.
func NewRequestCancelledEvent(server, requestID, reason string, elapsed time.Duration) RequestCancelledEvent {
	return RequestCancelledEvent{baseEvent: newBase(server), RequestID: requestID, Reason: reason, Elapsed: elapsed}
}

// ServerCancelledEvent is emitted when all requests for one server are cancelled.
type ServerCancelledEvent struct {
	baseEvent
	Count  int
	Reason string
}

func (e ServerCancelledEvent) Type() EventType { return EventServerCancelled }

// NewServerCancelledEvent creates a new server cancelled event.
func NewServerCancelledEvent(server string, count int, reason string) ServerCancelledEvent {
	return ServerCancelledEvent{baseEvent: newBase(server), Count: count, Reason: reason}
}

// AllCancelledEvent is emitted when every in-flight request is cancelled.
type AllCancelledEvent struct {
	baseEvent
	Count  int
	Reason string
}

func (e AllCancelledEvent) Type() EventType { return EventAllCancelled }

// NewAllCancelledEvent creates a new all cancelled event.
func NewAllCancelledEvent(count int, reason string) AllCancelledEvent {
	return AllCancelledEvent{baseEvent: newBase(""), Count: count, Reason: reason}
}

// NotificationEvent is emitted for each classified server notification.
type NotificationEvent struct {
	baseEvent
	Method string
	Kind   string
}

func (e NotificationEvent) Type() EventType { return EventNotification }

// NewNotificationEvent creates a new notification event.
func NewNotificationEvent(server, method, kind string) NotificationEvent {
	return NotificationEvent{baseEvent: newBase(server), Method: method, Kind: kind}
}

// ProgressUpdatedEvent is emitted when a progress notification updates a token.
type ProgressUpdatedEvent struct {
	baseEvent
	ProgressToken string
	Progress      float64
	Total         float64
}

func (e ProgressUpdatedEvent) Type() EventType { return EventProgressUpdated }

// NewProgressUpdatedEvent creates a new progress updated event.
func NewProgressUpdatedEvent(server, token string, progress, total float64) ProgressUpdatedEvent {
	return ProgressUpdatedEvent{baseEvent: newBase(server), ProgressToken: token, Progress: progress, Total: total}
}

// ProgressCompletedEvent is emitted exactly once when a token's operation
// reaches completion.
type ProgressCompletedEvent struct {
	baseEvent
	ProgressToken string
	Elapsed       time.Duration
}

func (e ProgressCompletedEvent) Type() EventType { return EventProgressCompleted }

// NewProgressCompletedEvent creates a new progress completed event.
func NewProgressCompletedEvent(server, token string, elapsed time.Duration) ProgressCompletedEvent {
	return ProgressCompletedEvent{baseEvent: newBase(server), ProgressToken: token, Elapsed: elapsed}
}

// ErrorEvent is emitted when a non-fatal error occurs.
type ErrorEvent struct {
	baseEvent
	Err     error
	Message string
}

func (e ErrorEvent) Type() EventType { return EventError }

// NewErrorEvent creates a new error event.
func NewErrorEvent(server string, err error, message string) ErrorEvent {
	return ErrorEvent{baseEvent: newBase(server), Err: err, Message: message}
}
