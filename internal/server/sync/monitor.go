package sync

import (
	"log/slog"
	"sync"
	"time"

	"github.com/stocklinehq/stockline/pkg/api"
)

// Monitor owns the two liveness timers: periodic heartbeats to every
// connection and the inactivity sweep that evicts abandoned ones. Both run
// as background goroutines tied to the service lifecycle; heartbeatOnce
// and sweepOnce carry the actual logic so tests drive them directly
// instead of waiting on wall clocks.
type Monitor struct {
	registry *Registry
	logger   *slog.Logger
	settings *Settings

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a monitor over the given registry.
func NewMonitor(logger *slog.Logger, registry *Registry, settings *Settings) *Monitor {
	return &Monitor{
		registry: registry,
		logger:   logger,
		settings: settings,
		stop:     make(chan struct{}),
	}
}

// Start launches the heartbeat and sweep loops.
func (m *Monitor) Start() {
	m.wg.Add(2)
	go m.heartbeatLoop()
	go m.sweepLoop()
}

// Stop terminates both loops and waits for them to exit.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.wg.Wait()
}

func (m *Monitor) heartbeatLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.settings.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			m.heartbeatOnce(now.UTC())
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) sweepLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.settings.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			m.sweepOnce(now.UTC())
		case <-m.stop:
			return
		}
	}
}

// heartbeatOnce sends HEARTBEAT to every connection and bumps its activity
// clock. A failed send is not an error path of its own: the connection is
// already closing and normal close handling cleans it up.
func (m *Monitor) heartbeatOnce(now time.Time) {
	for _, c := range m.registry.All() {
		if err := c.Send(api.KindHeartbeat, api.HeartbeatPayload{Timestamp: now}); err != nil {
			m.logger.Debug("heartbeat skipped", "connection_id", c.ID, "error", err)
			continue
		}
		c.touch()
	}
}

// sweepOnce force-closes and deregisters every connection idle for longer
// than the inactivity threshold.
func (m *Monitor) sweepOnce(now time.Time) {
	for _, c := range m.registry.All() {
		idle := now.Sub(c.LastActivity())
		if idle <= m.settings.IdleTimeout {
			continue
		}
		m.logger.Warn("evicting inactive connection",
			"connection_id", c.ID, "user", c.User, "idle", idle)
		c.Close("inactivity timeout")
		m.registry.Remove(c.ID)
	}
}
