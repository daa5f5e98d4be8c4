// Package storage defines the persistence interfaces the sync service and
// HTTP handlers consume. Implementations live in subpackages (sqlite).
package storage

import (
	"context"
	"encoding/json"

	"github.com/stocklinehq/stockline/internal/models"
	"github.com/stocklinehq/stockline/pkg/api"
)

// DatasetStore exposes the full-collection reads the sync orchestrator
// streams. Every call is fallible and context-bound; results are fresh
// reads, never cached by the caller.
type DatasetStore interface {
	ListInventory(ctx context.Context) ([]models.Item, error)
	ListWarehouses(ctx context.Context) ([]models.Warehouse, error)
	ListSuppliers(ctx context.Context) ([]models.Supplier, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	ListUnits(ctx context.Context) ([]models.Unit, error)
}

// MutationStore applies one entity mutation keyed by {entity, action}.
// ApplyChange returns the id of the affected row (the new id for creates).
// The broadcast router calls this exactly once per DATA_CHANGE, regardless
// of fan-out size.
type MutationStore interface {
	ApplyChange(ctx context.Context, entity string, action api.ChangeAction, id int64, data json.RawMessage) (int64, error)
}

// UserStore looks up accounts for authentication.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// Store is the full collaborator surface the server wires together.
type Store interface {
	DatasetStore
	MutationStore
	UserStore
}
