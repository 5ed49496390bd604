package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// OrderStatus is the state of a company purchase.  Nothing in the system
// moves an order past Requested.
type OrderStatus string

const (
    OrderRequested OrderStatus = "Requested"
    OrderApproved  OrderStatus = "Approved"
)

// Order is a company's purchase of one inventory unit (`company_orders`).
// TotalPrice is Qty × PricePerUnit at creation time and is not
// recalculated when the item's price changes later.
type Order struct {
    ID           uint64          `db:"id" json:"id"`
    OrderCode    string          `db:"order_code" json:"order_id"`
    CompanyID    string          `db:"company_id" json:"company_id"`
    InventoryID  uint64          `db:"inventory_id" json:"inventory_id"`
    Qty          int             `db:"qty" json:"qty"`
    PricePerUnit decimal.Decimal `db:"price_per_unit" json:"price_per_unit"`
    TotalPrice   decimal.Decimal `db:"total_price" json:"total_price"`
    Status       OrderStatus     `db:"status" json:"status"`
    CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// OrderDetail joins an order with the purchased item name and the buying
// company, for the company order list and the admin sales report.
type OrderDetail struct {
    Order
    ItemName     *string `db:"item_name" json:"item_name"`
    CompanyName  *string `db:"company_name" json:"company_name,omitempty"`
    CompanyEmail *string `db:"company_email" json:"company_email,omitempty"`
}
