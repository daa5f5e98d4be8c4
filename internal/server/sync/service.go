// Package sync implements the real-time synchronization service: a
// WebSocket hub that keeps independently running client instances
// consistent with the shared dataset. It owns connection lifecycle, the
// typed message protocol, full-dataset sync streams, change broadcast,
// capability negotiation, and liveness monitoring. Business data lives
// behind the storage collaborator; the service never caches it.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stocklinehq/stockline/internal/server/handlers"
	"github.com/stocklinehq/stockline/pkg/api"
)

// Store is the full storage collaborator surface the service consumes.
type Store interface {
	DatasetStore
	MutationStore
}

// Service wires the registry, monitor, orchestrator and router behind one
// WebSocket endpoint.
type Service struct {
	logger   *slog.Logger
	settings *Settings

	registry     *Registry
	monitor      *Monitor
	orchestrator *Orchestrator
	router       *Router

	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates the sync service. A nil settings uses DefaultSettings.
func New(logger *slog.Logger, store Store, settings *Settings) *Service {
	if settings == nil {
		settings = DefaultSettings()
	}

	registry := NewRegistry(logger)
	ctx, cancel := context.WithCancel(context.Background())

	return &Service{
		logger:       logger,
		settings:     settings,
		registry:     registry,
		monitor:      NewMonitor(logger, registry, settings),
		orchestrator: NewOrchestrator(logger, store, settings),
		router:       NewRouter(logger, registry, store),
		upgrader: websocket.Upgrader{
			// The desktop and Electron clients connect from app origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the liveness monitor.
func (s *Service) Start() {
	s.monitor.Start()
}

// Shutdown stops the monitor and closes every connection.
func (s *Service) Shutdown() {
	s.cancel()
	s.monitor.Stop()
	for _, c := range s.registry.All() {
		c.Close("server shutting down")
		s.registry.Remove(c.ID)
	}
}

// NotifyDataChange lets non-connection code paths (batch jobs, other
// services) trigger a broadcast to all connected clients.
func (s *Service) NotifyDataChange(entity string, action api.ChangeAction, data json.RawMessage) {
	s.router.NotifyDataChange(entity, action, data)
}

// Count returns the number of connected clients.
func (s *Service) Count() int {
	return s.registry.Count()
}

// Clients returns the redacted per-client summaries.
func (s *Service) Clients() []api.ClientSummary {
	return s.registry.Summaries()
}

// HandleSync upgrades the request and runs the connection until it closes.
// Auth middleware has already validated the token and put the username in
// the context.
func (s *Service) HandleSync(w http.ResponseWriter, r *http.Request) {
	user, _ := handlers.GetUsername(r.Context())

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	id := uuid.NewString()
	c := newConn(id, user, ws, s.logger.With("connection_id", id), s.settings)

	s.registry.Register(c)
	go c.writeLoop()

	// Greet with the assigned id, server time and supported features.
	_ = c.Send(api.KindConnectionInfo, api.ConnectionInfoPayload{
		ConnectionID: id,
		ServerTime:   time.Now().UTC(),
		Features: []string{
			api.FeatureCompression,
			api.FeaturePartialSync,
			api.FeatureDeltaUpdates,
		},
	})

	s.readLoop(c)

	s.registry.Remove(id)
	c.Close("")
}

// readLoop is the per-connection receive loop. Protocol errors keep the
// connection open; only transport errors end it.
func (s *Service) readLoop(c *Conn) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			s.logger.Debug("connection closed", "connection_id", c.ID, "error", err)
			return
		}
		c.touch()

		var msg api.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = c.Send(api.KindSyncError, api.SyncErrorPayload{
				Error:   "malformed_message",
				Message: "frame is not a valid message",
			})
			continue
		}
		if !msg.Kind.Valid() {
			_ = c.Send(api.KindSyncError, api.SyncErrorPayload{
				Error:   "unknown_kind",
				Message: fmt.Sprintf("unknown message kind %q", msg.Kind),
			})
			continue
		}

		s.dispatch(c, &msg)
	}
}

func (s *Service) dispatch(c *Conn, msg *api.Message) {
	switch msg.Kind {
	case api.KindSyncRequest:
		var p api.SyncRequestPayload
		if err := msg.DecodePayload(&p); err != nil {
			s.sendPayloadError(c, msg.Kind, err)
			return
		}
		s.orchestrator.Serve(s.ctx, c, p)

	case api.KindCapabilities:
		var p api.Capabilities
		if err := msg.DecodePayload(&p); err != nil {
			s.sendPayloadError(c, msg.Kind, err)
			return
		}
		c.SetCapabilities(p)
		s.logger.Info("capabilities declared",
			"connection_id", c.ID,
			"compression", p.SupportsCompression,
			"electron", p.IsElectronHost)
		// Acknowledgment echo; declaring twice is idempotent.
		_ = c.Send(api.KindCapabilities, p)

	case api.KindDataChange:
		var p api.DataChangePayload
		if err := msg.DecodePayload(&p); err != nil {
			s.sendPayloadError(c, msg.Kind, err)
			return
		}
		s.router.HandleDataChange(s.ctx, c, p)

	case api.KindHeartbeat:
		// Client-initiated keepalive; the activity clock is already bumped.

	default:
		_ = c.Send(api.KindSyncError, api.SyncErrorPayload{
			Error:   "unexpected_kind",
			Message: fmt.Sprintf("%s is not a client message", msg.Kind),
		})
	}
}

func (s *Service) sendPayloadError(c *Conn, kind api.MessageKind, err error) {
	s.logger.Warn("malformed payload", "connection_id", c.ID, "kind", kind, "error", err)
	_ = c.Send(api.KindSyncError, api.SyncErrorPayload{
		Error:   "malformed_payload",
		Message: fmt.Sprintf("invalid %s payload", kind),
	})
}
