package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// InventoryItem is a unit of sellable stock (`inventory` table).  Items
// come from collected pickup requests (SourceRequestID set) or are added
// manually by an administrator (SourceRequestID nil).
type InventoryItem struct {
    ID              uint64          `db:"id" json:"id"`
    ItemName        string          `db:"item_name" json:"item_name"`
    Qty             int             `db:"qty" json:"qty"`
    PricePerUnit    decimal.Decimal `db:"price_per_unit" json:"price_per_unit"`
    SourceRequestID *uint64         `db:"source_request_id" json:"source_request_id"`
    CreatedAt       time.Time       `db:"created_at" json:"created_at"`
    UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Available reports whether at least one unit can be ordered.
func (i InventoryItem) Available() bool { return i.Qty > 0 }
