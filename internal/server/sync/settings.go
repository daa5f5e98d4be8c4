package sync

import "time"

// Settings tunes the sync service. Tests shrink the intervals; production
// uses DefaultSettings.
type Settings struct {
	// HeartbeatInterval is how often HEARTBEAT is sent to every connection.
	HeartbeatInterval time.Duration
	// SweepInterval is how often the inactivity sweep runs.
	SweepInterval time.Duration
	// IdleTimeout is the inactivity threshold after which a connection is
	// evicted by the sweep.
	IdleTimeout time.Duration
	// DatasetPacing is the delay inserted between dataset responses of one
	// sync stream, so a slow client is not saturated.
	DatasetPacing time.Duration
	// WriteTimeout bounds a single WebSocket write.
	WriteTimeout time.Duration
	// CompressionThreshold is the serialized payload size in bytes above
	// which compression kicks in for capable connections.
	CompressionThreshold int
	// SendQueueSize is the per-connection outbound buffer. A connection
	// that overflows it is considered dead.
	SendQueueSize int
}

// DefaultSettings returns the production configuration.
func DefaultSettings() *Settings {
	return &Settings{
		HeartbeatInterval:    30 * time.Second,
		SweepInterval:        5 * time.Minute,
		IdleTimeout:          10 * time.Minute,
		DatasetPacing:        100 * time.Millisecond,
		WriteTimeout:         10 * time.Second,
		CompressionThreshold: 1024,
		SendQueueSize:        64,
	}
}
