package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/ewaste-marketplace/internal/model"
)

const orderDetailSelect = `
	SELECT o.id, o.order_code, o.company_id, o.inventory_id, o.qty, o.price_per_unit,
	       o.total_price, o.status, o.created_at,
	       i.item_name AS item_name,
	       COALESCE(p.company_name, p.full_name) AS company_name, p.email AS company_email
	FROM company_orders o
	LEFT JOIN inventory i ON i.id = o.inventory_id
	LEFT JOIN profiles p ON p.id = o.company_id`

// OrderRepo stores company purchases.
type OrderRepo struct{ DB *sqlx.DB }

func NewOrderRepo(db *sqlx.DB) *OrderRepo { return &OrderRepo{DB: db} }

// CreateWithStockDecrement takes o.Qty units off the item and inserts the
// order in one transaction.  The decrement is conditional on enough stock
// being left, so of two buyers racing for the last unit exactly one wins
// and the other gets ErrOutOfStock with nothing written.  A duplicate
// order code is ErrConflict.  On success o carries its id and timestamp.
func (r *OrderRepo) CreateWithStockDecrement(ctx context.Context, o *model.Order) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		"UPDATE inventory SET qty = qty - ? WHERE id = ? AND qty >= ?", o.Qty, o.InventoryID, o.Qty)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrOutOfStock
	}

	res, err = tx.ExecContext(ctx, `
		INSERT INTO company_orders (order_code, company_id, inventory_id, qty, price_per_unit, total_price, status)
		VALUES (?,?,?,?,?,?,?)`,
		o.OrderCode, o.CompanyID, o.InventoryID, o.Qty, o.PricePerUnit, o.TotalPrice, o.Status)
	if err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	if err := tx.GetContext(ctx, &o.CreatedAt, "SELECT created_at FROM company_orders WHERE id=?", id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	o.ID = uint64(id)
	return nil
}

// ListByCompany returns a company's own orders with item names, newest first.
func (r *OrderRepo) ListByCompany(ctx context.Context, companyID string) ([]model.OrderDetail, error) {
	out := []model.OrderDetail{}
	err := r.DB.SelectContext(ctx, &out,
		orderDetailSelect+" WHERE o.company_id=? ORDER BY o.created_at DESC, o.id DESC", companyID)
	return out, err
}

// ListAll returns every order with the buying company and item name.
func (r *OrderRepo) ListAll(ctx context.Context) ([]model.OrderDetail, error) {
	out := []model.OrderDetail{}
	err := r.DB.SelectContext(ctx, &out, orderDetailSelect+" ORDER BY o.created_at DESC, o.id DESC")
	return out, err
}

// CountByCompany counts a company's orders.
func (r *OrderRepo) CountByCompany(ctx context.Context, companyID string) (int, error) {
	var n int
	err := r.DB.GetContext(ctx, &n, "SELECT COUNT(*) FROM company_orders WHERE company_id=?", companyID)
	return n, err
}
