package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/ewaste-marketplace/internal/model"
)

const inventoryColumns = "id,item_name,qty,price_per_unit,source_request_id,created_at,updated_at"

// InventoryRepo stores sellable stock.
type InventoryRepo struct{ DB *sqlx.DB }

func NewInventoryRepo(db *sqlx.DB) *InventoryRepo { return &InventoryRepo{DB: db} }

// Create inserts an item and returns the stored row.
func (r *InventoryRepo) Create(ctx context.Context, item model.InventoryItem) (model.InventoryItem, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO inventory (item_name, qty, price_per_unit, source_request_id) VALUES (?,?,?,?)",
		item.ItemName, item.Qty, item.PricePerUnit, item.SourceRequestID)
	if err != nil {
		return model.InventoryItem{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.InventoryItem{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByID loads one item.
func (r *InventoryRepo) GetByID(ctx context.Context, id uint64) (model.InventoryItem, error) {
	var it model.InventoryItem
	err := r.DB.GetContext(ctx, &it, "SELECT "+inventoryColumns+" FROM inventory WHERE id=?", id)
	return it, notFound(err)
}

// List returns every item newest first, including sold-out ones.
func (r *InventoryRepo) List(ctx context.Context) ([]model.InventoryItem, error) {
	out := []model.InventoryItem{}
	err := r.DB.SelectContext(ctx, &out,
		"SELECT "+inventoryColumns+" FROM inventory ORDER BY created_at DESC, id DESC")
	return out, err
}

// ListAvailable returns the marketplace listing: items with qty > 0.
func (r *InventoryRepo) ListAvailable(ctx context.Context) ([]model.InventoryItem, error) {
	out := []model.InventoryItem{}
	err := r.DB.SelectContext(ctx, &out,
		"SELECT "+inventoryColumns+" FROM inventory WHERE qty > 0 ORDER BY created_at DESC, id DESC")
	return out, err
}

// CountAvailable counts items with qty > 0.
func (r *InventoryRepo) CountAvailable(ctx context.Context) (int, error) {
	var n int
	err := r.DB.GetContext(ctx, &n, "SELECT COUNT(*) FROM inventory WHERE qty > 0")
	return n, err
}

// UpdatePrice sets the unit price.  Existing orders keep their price.
func (r *InventoryRepo) UpdatePrice(ctx context.Context, id uint64, price decimal.Decimal) error {
	return requireAffected(r.DB.ExecContext(ctx, "UPDATE inventory SET price_per_unit=? WHERE id=?", price, id))
}

// Delete removes an item.  Orders referencing it are kept.
func (r *InventoryRepo) Delete(ctx context.Context, id uint64) error {
	return requireAffected(r.DB.ExecContext(ctx, "DELETE FROM inventory WHERE id=?", id))
}
