package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stocklinehq/stockline/internal/models"
	"github.com/stocklinehq/stockline/internal/server/storage"
)

// ListInventory returns all stocked items.
func (s *Storage) ListInventory(ctx context.Context) ([]models.Item, error) {
	query := `
		SELECT id, sku, name, category_id, unit_id, warehouse_id, supplier_id,
		       quantity, price, created_at, updated_at
		FROM items
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := []models.Item{}
	for rows.Next() {
		var item models.Item
		var categoryID, unitID, warehouseID, supplierID sql.NullInt64
		var createdAt, updatedAt int64

		if err := rows.Scan(
			&item.ID, &item.SKU, &item.Name,
			&categoryID, &unitID, &warehouseID, &supplierID,
			&item.Quantity, &item.Price, &createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}

		item.CategoryID = categoryID.Int64
		item.UnitID = unitID.Int64
		item.WarehouseID = warehouseID.Int64
		item.SupplierID = supplierID.Int64
		item.CreatedAt = time.Unix(createdAt, 0).UTC()
		item.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

// CreateItem inserts a new item and returns its id.
func (s *Storage) CreateItem(ctx context.Context, item *models.Item) (int64, error) {
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	query := `
		INSERT INTO items (sku, name, category_id, unit_id, warehouse_id, supplier_id,
		                   quantity, price, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		item.SKU, item.Name,
		nullID(item.CategoryID), nullID(item.UnitID),
		nullID(item.WarehouseID), nullID(item.SupplierID),
		item.Quantity, item.Price,
		item.CreatedAt.Unix(), item.UpdatedAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get item id: %w", err)
	}
	item.ID = id
	return id, nil
}

// UpdateItem rewrites an existing item.
// Returns storage.ErrNotFound if the id does not exist.
func (s *Storage) UpdateItem(ctx context.Context, item *models.Item) error {
	item.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE items
		SET sku = ?, name = ?, category_id = ?, unit_id = ?, warehouse_id = ?,
		    supplier_id = ?, quantity = ?, price = ?, updated_at = ?
		WHERE id = ?
	`

	res, err := s.db.ExecContext(ctx, query,
		item.SKU, item.Name,
		nullID(item.CategoryID), nullID(item.UnitID),
		nullID(item.WarehouseID), nullID(item.SupplierID),
		item.Quantity, item.Price, item.UpdatedAt.Unix(),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	return checkAffected(res)
}

// DeleteItem removes an item by id.
func (s *Storage) DeleteItem(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return checkAffected(res)
}

// ListWarehouses returns all warehouses.
func (s *Storage) ListWarehouses(ctx context.Context) ([]models.Warehouse, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, location FROM warehouses ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query warehouses: %w", err)
	}
	defer rows.Close()

	warehouses := []models.Warehouse{}
	for rows.Next() {
		var w models.Warehouse
		if err := rows.Scan(&w.ID, &w.Name, &w.Location); err != nil {
			return nil, fmt.Errorf("failed to scan warehouse: %w", err)
		}
		warehouses = append(warehouses, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate warehouses: %w", err)
	}
	return warehouses, nil
}

// CreateWarehouse inserts a new warehouse and returns its id.
func (s *Storage) CreateWarehouse(ctx context.Context, w *models.Warehouse) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO warehouses (name, location) VALUES (?, ?)`, w.Name, w.Location)
	if err != nil {
		return 0, fmt.Errorf("failed to insert warehouse: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get warehouse id: %w", err)
	}
	w.ID = id
	return id, nil
}

// UpdateWarehouse rewrites an existing warehouse.
func (s *Storage) UpdateWarehouse(ctx context.Context, w *models.Warehouse) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE warehouses SET name = ?, location = ? WHERE id = ?`, w.Name, w.Location, w.ID)
	if err != nil {
		return fmt.Errorf("failed to update warehouse: %w", err)
	}
	return checkAffected(res)
}

// DeleteWarehouse removes a warehouse by id.
func (s *Storage) DeleteWarehouse(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM warehouses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete warehouse: %w", err)
	}
	return checkAffected(res)
}

// ListSuppliers returns all suppliers.
func (s *Storage) ListSuppliers(ctx context.Context) ([]models.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email, phone FROM suppliers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query suppliers: %w", err)
	}
	defer rows.Close()

	suppliers := []models.Supplier{}
	for rows.Next() {
		var sup models.Supplier
		if err := rows.Scan(&sup.ID, &sup.Name, &sup.Email, &sup.Phone); err != nil {
			return nil, fmt.Errorf("failed to scan supplier: %w", err)
		}
		suppliers = append(suppliers, sup)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate suppliers: %w", err)
	}
	return suppliers, nil
}

// CreateSupplier inserts a new supplier and returns its id.
func (s *Storage) CreateSupplier(ctx context.Context, sup *models.Supplier) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO suppliers (name, email, phone) VALUES (?, ?, ?)`, sup.Name, sup.Email, sup.Phone)
	if err != nil {
		return 0, fmt.Errorf("failed to insert supplier: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get supplier id: %w", err)
	}
	sup.ID = id
	return id, nil
}

// UpdateSupplier rewrites an existing supplier.
func (s *Storage) UpdateSupplier(ctx context.Context, sup *models.Supplier) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE suppliers SET name = ?, email = ?, phone = ? WHERE id = ?`,
		sup.Name, sup.Email, sup.Phone, sup.ID)
	if err != nil {
		return fmt.Errorf("failed to update supplier: %w", err)
	}
	return checkAffected(res)
}

// DeleteSupplier removes a supplier by id.
func (s *Storage) DeleteSupplier(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM suppliers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete supplier: %w", err)
	}
	return checkAffected(res)
}

// ListCategories returns all categories.
func (s *Storage) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

// CreateCategory inserts a new category and returns its id.
func (s *Storage) CreateCategory(ctx context.Context, c *models.Category) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO categories (name) VALUES (?)`, c.Name)
	if err != nil {
		return 0, fmt.Errorf("failed to insert category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get category id: %w", err)
	}
	c.ID = id
	return id, nil
}

// UpdateCategory rewrites an existing category.
func (s *Storage) UpdateCategory(ctx context.Context, c *models.Category) error {
	res, err := s.db.ExecContext(ctx, `UPDATE categories SET name = ? WHERE id = ?`, c.Name, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	return checkAffected(res)
}

// DeleteCategory removes a category by id.
func (s *Storage) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return checkAffected(res)
}

// ListUnits returns all measurement units.
func (s *Storage) ListUnits(ctx context.Context) ([]models.Unit, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, abbreviation FROM units ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer rows.Close()

	units := []models.Unit{}
	for rows.Next() {
		var u models.Unit
		if err := rows.Scan(&u.ID, &u.Name, &u.Abbreviation); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate units: %w", err)
	}
	return units, nil
}

// CreateUnit inserts a new unit and returns its id.
func (s *Storage) CreateUnit(ctx context.Context, u *models.Unit) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO units (name, abbreviation) VALUES (?, ?)`, u.Name, u.Abbreviation)
	if err != nil {
		return 0, fmt.Errorf("failed to insert unit: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get unit id: %w", err)
	}
	u.ID = id
	return id, nil
}

// UpdateUnit rewrites an existing unit.
func (s *Storage) UpdateUnit(ctx context.Context, u *models.Unit) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE units SET name = ?, abbreviation = ? WHERE id = ?`, u.Name, u.Abbreviation, u.ID)
	if err != nil {
		return fmt.Errorf("failed to update unit: %w", err)
	}
	return checkAffected(res)
}

// DeleteUnit removes a unit by id.
func (s *Storage) DeleteUnit(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM units WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete unit: %w", err)
	}
	return checkAffected(res)
}

// nullID converts 0 (unset foreign key) to NULL.
func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

// checkAffected maps "no rows touched" to storage.ErrNotFound.
func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
