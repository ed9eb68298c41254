package lifecycle

import (
	"context"
	"time"

	"github.com/Bigsy/mcpherd/internal/events"
	"github.com/Bigsy/mcpherd/internal/mcp"
)

// healthPingTimeout bounds one health-check ping.
const healthPingTimeout = 5 * time.Second

// healthLoop pings the server at the configured interval. Consecutive
// failures past the threshold force a disconnect, which routes the server
// through the normal crash-restart path.
func (m *Manager) healthLoop(name string, gen int, transport mcp.Transport, client *mcp.Client, runCtx context.Context) {
	if m.opts.HealthInterval <= 0 {
		return
	}
	ticker := time.NewTicker(m.opts.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
		}

		if !transport.Connected() {
			return
		}

		pingCtx, cancelPing := context.WithTimeout(runCtx, healthPingTimeout)
		err := client.Ping(pingCtx)
		cancelPing()

		m.mu.Lock()
		s, ok := m.servers[name]
		if !ok || s.gen != gen {
			m.mu.Unlock()
			return
		}
		if err == nil {
			s.consecutiveFailures = 0
			m.mu.Unlock()
			continue
		}
		s.consecutiveFailures++
		failures := s.consecutiveFailures
		m.mu.Unlock()

		m.logger.Warn("health check failed", "server", name, "failures", failures, "err", err)
		m.publish(events.NewHealthCheckFailedEvent(name, failures, err))

		if failures >= m.opts.MaxConsecutiveFailures {
			// Force the connection down; the monitor restarts it.
			_ = transport.Disconnect()
			return
		}
	}
}
