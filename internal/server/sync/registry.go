package sync

import (
	"log/slog"
	"sync"

	"github.com/stocklinehq/stockline/pkg/api"
)

// Registry is the single authoritative map of live connections. Every
// other component reads or mutates connection membership only through it.
// Mutations are atomic under one mutex; readers get a snapshot, so a
// connection closing mid-broadcast is skipped by the failed send rather
// than invalidating iteration.
type Registry struct {
	logger *slog.Logger

	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger,
		conns:  make(map[string]*Conn),
	}
}

// Register admits a connection.
func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	r.conns[c.ID] = c
	n := len(r.conns)
	r.mu.Unlock()

	r.logger.Info("connection registered", "connection_id", c.ID, "user", c.User, "connections", n)
}

// Remove deregisters a connection. Idempotent: removing an absent id is a
// no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	n := len(r.conns)
	r.mu.Unlock()

	if ok {
		r.logger.Info("connection removed", "connection_id", id, "connections", n)
	}
}

// Get looks up a connection by id.
func (r *Registry) Get(id string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// All returns a snapshot of the live connections, safe to iterate while
// others register and remove concurrently.
func (r *Registry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Summaries returns the redacted per-connection view for introspection.
func (r *Registry) Summaries() []api.ClientSummary {
	conns := r.All()
	summaries := make([]api.ClientSummary, 0, len(conns))
	for _, c := range conns {
		summaries = append(summaries, c.Summary())
	}
	return summaries
}
