package model

import "time"

// RequestStatus is the lifecycle state of a pickup request.
type RequestStatus string

const (
    StatusPending   RequestStatus = "Pending"
    StatusAccepted  RequestStatus = "Accepted"
    StatusRejected  RequestStatus = "Rejected"
    StatusCollected RequestStatus = "Collected"
    StatusCompleted RequestStatus = "Completed"
)

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
    switch s {
    case StatusPending, StatusAccepted, StatusRejected, StatusCollected, StatusCompleted:
        return true
    }
    return false
}

// CanTransition reports whether an administrator may move a request from
// s to next.  Rejected and Collected are terminal for the admin workflow;
// nothing in the system moves a request to Completed.
func (s RequestStatus) CanTransition(next RequestStatus) bool {
    switch s {
    case StatusPending:
        return next == StatusAccepted || next == StatusRejected
    case StatusAccepted:
        return next == StatusCollected
    }
    return false
}

// PickupRequest is a customer's request to have e-waste collected
// (`pickup_requests` table).
//
// Fields:
//  ID            – surrogate key.
//  RequestCode   – human-readable code, EW-YYYYMMDD-NNNN.
//  UserID        – owning customer profile.
//  EwasteType    – category label chosen by the customer.
//  Qty           – number of items, at least 1.
//  Description   – optional free text.
//  PickupAddress – where to collect.
//  PickupDate    – YYYY-MM-DD.
//  PickupTime    – collection slot label, e.g. "Morning (9AM-12PM)".
//  ImageURL      – public URL of the uploaded photo, if any.
//  Status        – lifecycle state.
type PickupRequest struct {
    ID            uint64        `db:"id" json:"id"`
    RequestCode   string        `db:"request_code" json:"request_id"`
    UserID        string        `db:"user_id" json:"user_id"`
    EwasteType    string        `db:"ewaste_type" json:"ewaste_type"`
    Qty           int           `db:"qty" json:"qty"`
    Description   *string       `db:"description" json:"description,omitempty"`
    PickupAddress string        `db:"pickup_address" json:"pickup_address"`
    PickupDate    string        `db:"pickup_date" json:"pickup_date"`
    PickupTime    string        `db:"pickup_time" json:"pickup_time"`
    ImageURL      *string       `db:"image_url" json:"image_url,omitempty"`
    Status        RequestStatus `db:"status" json:"status"`
    CreatedAt     time.Time     `db:"created_at" json:"created_at"`
    UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// PickupRequestWithCustomer is the admin listing row: the request plus
// the submitting customer's name and email.
type PickupRequestWithCustomer struct {
    PickupRequest
    CustomerName  *string `db:"customer_name" json:"customer_name"`
    CustomerEmail *string `db:"customer_email" json:"customer_email"`
}

// StatusHistoryEntry is one append-only row of `request_status_history`.
type StatusHistoryEntry struct {
    ID        uint64        `db:"id" json:"id"`
    RequestID uint64        `db:"request_id" json:"request_id"`
    Status    RequestStatus `db:"status" json:"status"`
    UpdatedBy string        `db:"updated_by" json:"updated_by"`
    CreatedAt time.Time     `db:"created_at" json:"created_at"`
}

// PickupSlots are the collection windows a customer can choose from.
var PickupSlots = []string{
    "Morning (9AM-12PM)",
    "Afternoon (12PM-4PM)",
    "Evening (4PM-7PM)",
}

// ValidPickupSlot reports whether s is one of PickupSlots.
func ValidPickupSlot(s string) bool {
    for _, slot := range PickupSlots {
        if s == slot {
            return true
        }
    }
    return false
}
