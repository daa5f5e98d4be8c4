package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stocklinehq/stockline/internal/models"
	"github.com/stocklinehq/stockline/internal/server/storage"
	"github.com/stocklinehq/stockline/pkg/api"
)

// ApplyChange dispatches one DATA_CHANGE mutation to the entity-specific
// CRUD call. Entity names match the dataset names on the wire. Returns the
// id of the affected row.
func (s *Storage) ApplyChange(ctx context.Context, entity string, action api.ChangeAction, id int64, data json.RawMessage) (int64, error) {
	if !action.Valid() {
		return 0, fmt.Errorf("%w: %q", storage.ErrUnknownAction, action)
	}

	switch entity {
	case api.DatasetInventory:
		return s.applyItemChange(ctx, action, id, data)
	case api.DatasetWarehouses:
		return s.applyWarehouseChange(ctx, action, id, data)
	case api.DatasetSuppliers:
		return s.applySupplierChange(ctx, action, id, data)
	case api.DatasetCategories:
		return s.applyCategoryChange(ctx, action, id, data)
	case api.DatasetUnits:
		return s.applyUnitChange(ctx, action, id, data)
	default:
		return 0, fmt.Errorf("%w: %q", storage.ErrUnknownEntity, entity)
	}
}

func (s *Storage) applyItemChange(ctx context.Context, action api.ChangeAction, id int64, data json.RawMessage) (int64, error) {
	if action == api.ActionDelete {
		return id, s.DeleteItem(ctx, id)
	}

	var item models.Item
	if err := json.Unmarshal(data, &item); err != nil {
		return 0, fmt.Errorf("failed to decode item: %w", err)
	}

	if action == api.ActionCreate {
		return s.CreateItem(ctx, &item)
	}
	if item.ID == 0 {
		item.ID = id
	}
	return item.ID, s.UpdateItem(ctx, &item)
}

func (s *Storage) applyWarehouseChange(ctx context.Context, action api.ChangeAction, id int64, data json.RawMessage) (int64, error) {
	if action == api.ActionDelete {
		return id, s.DeleteWarehouse(ctx, id)
	}

	var w models.Warehouse
	if err := json.Unmarshal(data, &w); err != nil {
		return 0, fmt.Errorf("failed to decode warehouse: %w", err)
	}

	if action == api.ActionCreate {
		return s.CreateWarehouse(ctx, &w)
	}
	if w.ID == 0 {
		w.ID = id
	}
	return w.ID, s.UpdateWarehouse(ctx, &w)
}

func (s *Storage) applySupplierChange(ctx context.Context, action api.ChangeAction, id int64, data json.RawMessage) (int64, error) {
	if action == api.ActionDelete {
		return id, s.DeleteSupplier(ctx, id)
	}

	var sup models.Supplier
	if err := json.Unmarshal(data, &sup); err != nil {
		return 0, fmt.Errorf("failed to decode supplier: %w", err)
	}

	if action == api.ActionCreate {
		return s.CreateSupplier(ctx, &sup)
	}
	if sup.ID == 0 {
		sup.ID = id
	}
	return sup.ID, s.UpdateSupplier(ctx, &sup)
}

func (s *Storage) applyCategoryChange(ctx context.Context, action api.ChangeAction, id int64, data json.RawMessage) (int64, error) {
	if action == api.ActionDelete {
		return id, s.DeleteCategory(ctx, id)
	}

	var c models.Category
	if err := json.Unmarshal(data, &c); err != nil {
		return 0, fmt.Errorf("failed to decode category: %w", err)
	}

	if action == api.ActionCreate {
		return s.CreateCategory(ctx, &c)
	}
	if c.ID == 0 {
		c.ID = id
	}
	return c.ID, s.UpdateCategory(ctx, &c)
}

func (s *Storage) applyUnitChange(ctx context.Context, action api.ChangeAction, id int64, data json.RawMessage) (int64, error) {
	if action == api.ActionDelete {
		return id, s.DeleteUnit(ctx, id)
	}

	var u models.Unit
	if err := json.Unmarshal(data, &u); err != nil {
		return 0, fmt.Errorf("failed to decode unit: %w", err)
	}

	if action == api.ActionCreate {
		return s.CreateUnit(ctx, &u)
	}
	if u.ID == 0 {
		u.ID = id
	}
	return u.ID, s.UpdateUnit(ctx, &u)
}
