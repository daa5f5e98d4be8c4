package sync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/stocklinehq/stockline/internal/server/storage"
	"github.com/stocklinehq/stockline/pkg/api"
)

// MutationStore is the write side of the storage collaborator.
type MutationStore interface {
	ApplyChange(ctx context.Context, entity string, action api.ChangeAction, id int64, data json.RawMessage) (int64, error)
}

// Router propagates DATA_CHANGE events. A client-originated change is
// applied to storage exactly once, acknowledged to the origin, and fanned
// out to every other live connection with a fresh per-recipient sequence
// number and compression decision.
type Router struct {
	logger   *slog.Logger
	registry *Registry
	store    MutationStore
}

// NewRouter creates a broadcast router.
func NewRouter(logger *slog.Logger, registry *Registry, store MutationStore) *Router {
	return &Router{
		logger:   logger,
		registry: registry,
		store:    store,
	}
}

// HandleDataChange processes a DATA_CHANGE received from origin.
func (r *Router) HandleDataChange(ctx context.Context, origin *Conn, p api.DataChangePayload) {
	if p.Entity == "" || !p.Action.Valid() {
		_ = origin.Send(api.KindSyncError, api.SyncErrorPayload{
			Error:   "invalid_change",
			Message: "entity and a valid action are required",
		})
		return
	}

	id, err := r.store.ApplyChange(ctx, p.Entity, p.Action, p.ID, p.Data)
	if err != nil {
		r.logger.Error("data change failed",
			"connection_id", origin.ID, "entity", p.Entity, "action", p.Action, "error", err)
		_ = origin.Send(api.KindSyncError, api.SyncErrorPayload{
			Error:   "storage_error",
			Message: changeErrorMessage(err),
		})
		return
	}

	// The origin is excluded from the broadcast; this ack is how it learns
	// its write succeeded.
	_ = origin.Send(api.KindDataChange, api.DataChangePayload{
		Entity:  p.Entity,
		Action:  p.Action,
		ID:      id,
		Ack:     true,
		Success: true,
	})

	r.broadcast(p.Entity, p.Action, id, p.Data, origin.ID)
}

// NotifyDataChange broadcasts a mutation that originated outside any
// connection (batch jobs, other services). The caller has already applied
// the change; with no origin to exclude, every connection receives it.
func (r *Router) NotifyDataChange(entity string, action api.ChangeAction, data json.RawMessage) {
	r.broadcast(entity, action, 0, data, "")
}

func (r *Router) broadcast(entity string, action api.ChangeAction, id int64, data json.RawMessage, originID string) {
	payload := api.DataChangePayload{
		Entity: entity,
		Action: action,
		ID:     id,
		Data:   data,
	}

	recipients := 0
	for _, c := range r.registry.All() {
		if c.ID == originID {
			continue
		}
		if err := c.SendFrom(originID, api.KindDataChange, payload); err != nil {
			// One closed recipient never aborts delivery to the rest.
			r.logger.Debug("broadcast recipient skipped", "connection_id", c.ID, "error", err)
			continue
		}
		recipients++
	}

	r.logger.Info("data change broadcast",
		"entity", entity, "action", action, "id", id,
		"origin", originID, "recipients", recipients)
}

// changeErrorMessage maps storage failures to client-safe text; internals
// are logged, never sent.
func changeErrorMessage(err error) string {
	switch {
	case errors.Is(err, storage.ErrUnknownEntity):
		return "unknown entity"
	case errors.Is(err, storage.ErrUnknownAction):
		return "unknown action"
	case errors.Is(err, storage.ErrNotFound):
		return "record not found"
	default:
		return "storage operation failed"
	}
}
