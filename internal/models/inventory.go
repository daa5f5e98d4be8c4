// Package models holds the business entities the sync service streams and
// mutates. These structs map 1:1 to storage rows and to the JSON rows
// carried inside SYNC_RESPONSE and DATA_CHANGE payloads.
package models

import "time"

// Item is one stocked article. Quantity is a float because bulk goods are
// tracked in fractional units (kg, liters).
type Item struct {
	ID          int64     `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	CategoryID  int64     `json:"categoryId,omitempty"`
	UnitID      int64     `json:"unitId,omitempty"`
	WarehouseID int64     `json:"warehouseId,omitempty"`
	SupplierID  int64     `json:"supplierId,omitempty"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Warehouse is a physical stock location.
type Warehouse struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
}

// Supplier is a purchasing counterparty.
type Supplier struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Category groups items for reporting and navigation.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Unit is a measurement unit (piece, kg, liter).
type Unit struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation,omitempty"`
}
