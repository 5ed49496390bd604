package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/ewaste-marketplace/internal/model"
	"github.com/iliyamo/ewaste-marketplace/internal/queue"
	"github.com/iliyamo/ewaste-marketplace/internal/relay"
)

// AddInventoryItem adds stock that did not come from a pickup request.
func (c *Coordinator) AddInventoryItem(ctx context.Context, s Session, name string, qty int, price decimal.Decimal) (model.InventoryItem, error) {
	if err := authorize(s, model.RoleAdmin); err != nil {
		return model.InventoryItem{}, err
	}
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return model.InventoryItem{}, invalid("item_name", "required")
	case qty < 0:
		return model.InventoryItem{}, invalid("qty", "must not be negative")
	case price.IsNegative():
		return model.InventoryItem{}, invalid("price_per_unit", "must not be negative")
	}
	item, err := c.Inventory.Create(ctx, model.InventoryItem{
		ItemName:     name,
		Qty:          qty,
		PricePerUnit: price.Round(2),
	})
	if err != nil {
		return model.InventoryItem{}, err
	}
	c.Log.Info("inventory added", zap.Uint64("inventory_id", item.ID), zap.String("item_name", item.ItemName))
	c.notify(ctx, "inventory", relay.OpInsert, map[string]string{"id": idStr(item.ID)})
	c.emit(ctx, s, queue.WorkflowEvent{
		Type:        queue.EventInventoryCreated,
		InventoryID: item.ID,
		ItemName:    item.ItemName,
	})
	return item, nil
}

// UpdatePrice overwrites an item's unit price.  Existing orders keep the
// price they were placed at.
func (c *Coordinator) UpdatePrice(ctx context.Context, s Session, id uint64, price decimal.Decimal) error {
	if err := authorize(s, model.RoleAdmin); err != nil {
		return err
	}
	if price.IsNegative() {
		return invalid("price_per_unit", "must not be negative")
	}
	if err := c.Inventory.UpdatePrice(ctx, id, price.Round(2)); err != nil {
		return err
	}
	c.Log.Info("price updated", zap.Uint64("inventory_id", id), zap.String("price", price.StringFixed(2)))
	c.notify(ctx, "inventory", relay.OpUpdate, map[string]string{"id": idStr(id)})
	return nil
}

// ListInventory is the admin view of all stock, sold out included.
func (c *Coordinator) ListInventory(ctx context.Context, s Session) ([]model.InventoryItem, error) {
	if err := authorize(s, model.RoleAdmin); err != nil {
		return nil, err
	}
	return c.Inventory.List(ctx)
}

// ListMarketplace returns the items a company can order (qty > 0).
func (c *Coordinator) ListMarketplace(ctx context.Context, s Session) ([]model.InventoryItem, error) {
	if err := authorize(s, model.RoleCompany); err != nil {
		return nil, err
	}
	return c.Inventory.ListAvailable(ctx)
}

// PlaceOrder buys one unit of an item for the calling company.  The stock
// decrement and the order insert commit together and the decrement only
// applies while qty > 0, so of two buyers racing for the last unit exactly
// one succeeds and the other gets ErrOutOfStock.
func (c *Coordinator) PlaceOrder(ctx context.Context, s Session, inventoryID uint64) (model.Order, error) {
	if err := authorize(s, model.RoleCompany); err != nil {
		return model.Order{}, err
	}
	item, err := c.Inventory.GetByID(ctx, inventoryID)
	if err != nil {
		return model.Order{}, err
	}
	if !item.Available() {
		return model.Order{}, ErrOutOfStock
	}
	const qty = 1
	now := c.Now()
	o := model.Order{
		OrderCode:    c.NewOrderCode(now),
		CompanyID:    s.ProfileID,
		InventoryID:  item.ID,
		Qty:          qty,
		PricePerUnit: item.PricePerUnit,
		TotalPrice:   item.PricePerUnit.Mul(decimal.NewFromInt(qty)),
		Status:       model.OrderRequested,
	}
	err = c.Orders.CreateWithStockDecrement(ctx, &o)
	for attempt := 1; errors.Is(err, ErrConflict) && attempt < codeAttempts; attempt++ {
		// Order codes derive from the clock, so shift it to get a new one.
		o.OrderCode = c.NewOrderCode(now.Add(time.Duration(attempt) * time.Millisecond))
		err = c.Orders.CreateWithStockDecrement(ctx, &o)
	}
	if err != nil {
		return model.Order{}, err
	}
	c.Log.Info("order placed",
		zap.String("order_id", o.OrderCode),
		zap.String("company_id", o.CompanyID),
		zap.Uint64("inventory_id", o.InventoryID),
		zap.String("total_price", o.TotalPrice.StringFixed(2)))
	c.notify(ctx, "company_orders", relay.OpInsert, map[string]string{"id": idStr(o.ID), "company_id": o.CompanyID})
	c.notify(ctx, "inventory", relay.OpUpdate, map[string]string{"id": idStr(o.InventoryID)})
	c.emit(ctx, s, queue.WorkflowEvent{
		Type:        queue.EventOrderPlaced,
		InventoryID: o.InventoryID,
		ItemName:    item.ItemName,
		OrderCode:   o.OrderCode,
		CompanyID:   o.CompanyID,
		TotalPrice:  o.TotalPrice.StringFixed(2),
	})
	return o, nil
}

// ListMyOrders returns the calling company's orders with item names.
func (c *Coordinator) ListMyOrders(ctx context.Context, s Session) ([]model.OrderDetail, error) {
	if err := authorize(s, model.RoleCompany); err != nil {
		return nil, err
	}
	return c.Orders.ListByCompany(ctx, s.ProfileID)
}

// ListSales is the admin sales report: every order with its buyer.
func (c *Coordinator) ListSales(ctx context.Context, s Session) ([]model.OrderDetail, error) {
	if err := authorize(s, model.RoleAdmin); err != nil {
		return nil, err
	}
	return c.Orders.ListAll(ctx)
}

// CompanyStats are the company dashboard counters.
type CompanyStats struct {
	AvailableItems int `json:"available_items"`
	MyOrders       int `json:"my_orders"`
}

func (c *Coordinator) CompanyStats(ctx context.Context, s Session) (CompanyStats, error) {
	if err := authorize(s, model.RoleCompany); err != nil {
		return CompanyStats{}, err
	}
	avail, err := c.Inventory.CountAvailable(ctx)
	if err != nil {
		return CompanyStats{}, err
	}
	mine, err := c.Orders.CountByCompany(ctx, s.ProfileID)
	if err != nil {
		return CompanyStats{}, err
	}
	return CompanyStats{AvailableItems: avail, MyOrders: mine}, nil
}
