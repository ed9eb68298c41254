// Package notify classifies server-initiated notifications, keeps a bounded
// history, and tracks active progress per (server, progress token).
package notify

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Bigsy/mcpherd/internal/events"
	"github.com/Bigsy/mcpherd/internal/protocol"
)

// DefaultHistoryLimit bounds the notification history ring.
const DefaultHistoryLimit = 500

// Kind classifies a notification method.
type Kind string

const (
	KindProgress         Kind = "progress"
	KindCancelled        Kind = "cancelled"
	KindToolsChanged     Kind = "tools_list_changed"
	KindPromptsChanged   Kind = "prompts_list_changed"
	KindResourcesChanged Kind = "resources_list_changed"
	KindRootsChanged     Kind = "roots_list_changed"
	KindResourceUpdated  Kind = "resource_updated"
	KindLogMessage       Kind = "log_message"
	KindCustom           Kind = "custom"
)

// Classify maps a notification method onto the fixed taxonomy.
func Classify(method string) Kind {
	switch method {
	case protocol.MethodNotificationProgress:
		return KindProgress
	case protocol.MethodNotificationCancelled:
		return KindCancelled
	case protocol.MethodNotificationToolsChanged:
		return KindToolsChanged
	case protocol.MethodNotificationPromptsChanged:
		return KindPromptsChanged
	case protocol.MethodNotificationResourcesChanged:
		return KindResourcesChanged
	case protocol.MethodNotificationRootsChanged:
		return KindRootsChanged
	case protocol.MethodNotificationResourceUpdated:
		return KindResourceUpdated
	case protocol.MethodNotificationMessage:
		return KindLogMessage
	default:
		return KindCustom
	}
}

// Notification is one recorded inbound notification.
type Notification struct {
	Kind      Kind            `json:"kind"`
	Server    string          `json:"server"`
	Method    string          `json:"method"`
	Timestamp time.Time       `json:"timestamp"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// ProgressState tracks one in-flight long-running operation.
type ProgressState struct {
	Server        string    `json:"server"`
	ProgressToken string    `json:"progressToken"`
	Progress      float64   `json:"progress"`
	Total         float64   `json:"total,omitempty"`
	Message       string    `json:"message,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Percent returns completion as 0-100, using Total when known.
func (p ProgressState) Percent() float64 {
	if p.Total > 0 {
		return p.Progress / p.Total * 100
	}
	return p.Progress
}

type progressKey struct {
	server string
	token  string
}

// Filter selects history entries. Zero values match everything.
type Filter struct {
	Server string
	Kind   Kind
	Since  time.Time
	Limit  int
}

// Manager is the notification manager.
type Manager struct {
	mu      sync.RWMutex
	history []Notification
	active  map[progressKey]*ProgressState
	limit   int

	bus    *events.Bus
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithHistoryLimit overrides the history ring capacity.
func WithHistoryLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.limit = n
		}
	}
}

// NewManager creates a notification manager publishing on bus (which may be
// nil for observer-less use).
func NewManager(bus *events.Bus, logger *slog.Logger, options ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		active: make(map[progressKey]*ProgressState),
		limit:  DefaultHistoryLimit,
		bus:    bus,
		logger: logger.With("component", "notify"),
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// HandleNotification classifies and records one inbound notification.
func (m *Manager) HandleNotification(server, method string, params json.RawMessage) {
	kind := Classify(method)
	n := Notification{
		Kind:      kind,
		Server:    server,
		Method:    method,
		Timestamp: time.Now(),
		Params:    params,
	}

	m.mu.Lock()
	m.history = append(m.history, n)
	if len(m.history) > m.limit {
		m.history = m.history[len(m.history)-m.limit:]
	}
	m.mu.Unlock()

	switch kind {
	case KindProgress:
		m.handleProgress(server, params)
	case KindCancelled:
		var cp protocol.CancelledParams
		if err := json.Unmarshal(params, &cp); err != nil {
			m.logger.Debug("bad cancelled params", "server", server, "err", err)
		}
		// Informational only: the cancellation manager owns actual cancels.
		m.publish(events.NewNotificationEvent(server, method, string(kind)))
	default:
		m.publish(events.NewNotificationEvent(server, method, string(kind)))
	}
}

// handleProgress updates the per-token state and removes it on completion,
// emitting exactly one completion event.
func (m *Manager) handleProgress(server string, params json.RawMessage) {
	var pp protocol.ProgressParams
	if err := json.Unmarshal(params, &pp); err != nil {
		m.logger.Debug("bad progress params", "server", server, "err", err)
		return
	}
	if pp.ProgressToken == "" {
		return
	}

	key := progressKey{server: server, token: pp.ProgressToken}
	now := time.Now()
	complete := (pp.Total > 0 && pp.Progress >= pp.Total) || (pp.Total == 0 && pp.Progress >= 100)

	m.mu.Lock()
	st, ok := m.active[key]
	if !ok {
		st = &ProgressState{
			Server:        server,
			ProgressToken: pp.ProgressToken,
			StartedAt:     now,
		}
		m.active[key] = st
	}
	st.Progress = pp.Progress
	st.Total = pp.Total
	st.Message = pp.Message
	st.UpdatedAt = now
	started := st.StartedAt
	if complete {
		delete(m.active, key)
	}
	m.mu.Unlock()

	m.publish(events.NewProgressUpdatedEvent(server, pp.ProgressToken, pp.Progress, pp.Total))
	if complete {
		m.publish(events.NewProgressCompletedEvent(server, pp.ProgressToken, now.Sub(started)))
	}
}

// GetHistory returns recorded notifications matching the filter, oldest
// first. When Limit truncates, the most recent entries are kept.
func (m *Manager) GetHistory(f Filter) []Notification {
	m.mu.RLock()
	matched := make([]Notification, 0, len(m.history))
	for _, n := range m.history {
		if f.Server != "" && n.Server != f.Server {
			continue
		}
		if f.Kind != "" && n.Kind != f.Kind {
			continue
		}
		if !f.Since.IsZero() && n.Timestamp.Before(f.Since) {
			continue
		}
		matched = append(matched, n)
	}
	m.mu.RUnlock()

	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[len(matched)-f.Limit:]
	}
	return matched
}

// ActiveProgress returns a snapshot of all in-flight progress states.
func (m *Manager) ActiveProgress() []ProgressState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ProgressState, 0, len(m.active))
	for _, st := range m.active {
		out = append(out, *st)
	}
	return out
}

// GetProgress returns the progress state for one (server, token) pair.
func (m *Manager) GetProgress(server, token string) (ProgressState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if st, ok := m.active[progressKey{server: server, token: token}]; ok {
		return *st, true
	}
	return ProgressState{}, false
}

// ClearHistory drops all recorded notifications.
func (m *Manager) ClearHistory() {
	m.mu.Lock()
	m.history = nil
	m.mu.Unlock()
}

func (m *Manager) publish(ev events.Event) {
	if m.bus != nil {
		m.bus.Publish(ev)
	}
}
