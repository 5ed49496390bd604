// Package queue defines message payloads exchanged over the message broker
// and the consumer that records them.
package queue

import "time"

// ActivityQueueName is the durable queue carrying workflow events.
const ActivityQueueName = "ewaste.activity"

// Event types.
const (
    EventRequestSubmitted     = "request.submitted"
    EventRequestStatusChanged = "request.status_changed"
    EventInventoryCreated     = "inventory.created"
    EventOrderPlaced          = "order.placed"
)

// WorkflowEvent is published after a workflow mutation commits.  It carries
// enough context for downstream consumers to log, notify or feed analytics
// without querying the primary database.  Fields that do not apply to an
// event type are left empty.
type WorkflowEvent struct {
    Type        string    `json:"type"`
    ActorID     string    `json:"actor_id"`
    ActorRole   string    `json:"actor_role"`
    RequestID   uint64    `json:"request_id,omitempty"`
    RequestCode string    `json:"request_code,omitempty"`
    Status      string    `json:"status,omitempty"`
    InventoryID uint64    `json:"inventory_id,omitempty"`
    ItemName    string    `json:"item_name,omitempty"`
    OrderCode   string    `json:"order_code,omitempty"`
    CompanyID   string    `json:"company_id,omitempty"`
    TotalPrice  string    `json:"total_price,omitempty"`
    OccurredAt  time.Time `json:"occurred_at"`
}
