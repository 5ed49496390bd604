package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/ewaste-marketplace/internal/model"
	"github.com/iliyamo/ewaste-marketplace/internal/queue"
	"github.com/iliyamo/ewaste-marketplace/internal/relay"
	"github.com/iliyamo/ewaste-marketplace/internal/utils"
)

// DefaultItemName names inventory created from a request without a type.
const DefaultItemName = "Collected Item"

// SubmitRequestInput is the customer's pickup form.  Image is optional.
type SubmitRequestInput struct {
	EwasteType    string
	Qty           int
	Description   string
	PickupAddress string
	PickupDate    string
	PickupTime    string
	Image         io.Reader
	ImageName     string
}

func (in *SubmitRequestInput) validate() error {
	in.EwasteType = strings.TrimSpace(in.EwasteType)
	in.PickupAddress = strings.TrimSpace(in.PickupAddress)
	in.PickupDate = strings.TrimSpace(in.PickupDate)
	in.PickupTime = strings.TrimSpace(in.PickupTime)
	switch {
	case in.EwasteType == "":
		return invalid("ewaste_type", "required")
	case in.Qty < 1:
		return invalid("qty", "must be at least 1")
	case in.PickupAddress == "":
		return invalid("pickup_address", "required")
	case in.PickupDate == "":
		return invalid("pickup_date", "required")
	case !model.ValidPickupSlot(in.PickupTime):
		return invalid("pickup_time", "must be one of "+strings.Join(model.PickupSlots, ", "))
	}
	if _, err := time.Parse("2006-01-02", in.PickupDate); err != nil {
		return invalid("pickup_date", "must be YYYY-MM-DD")
	}
	return nil
}

// SubmitRequest stores a new Pending request for the calling customer,
// uploading the photo first when one is attached.
func (c *Coordinator) SubmitRequest(ctx context.Context, s Session, in SubmitRequestInput) (model.PickupRequest, error) {
	if err := authorize(s, model.RoleCustomer); err != nil {
		return model.PickupRequest{}, err
	}
	if err := in.validate(); err != nil {
		return model.PickupRequest{}, err
	}
	now := c.Now()
	req := model.PickupRequest{
		RequestCode:   c.NewRequestCode(now),
		UserID:        s.ProfileID,
		EwasteType:    in.EwasteType,
		Qty:           in.Qty,
		PickupAddress: in.PickupAddress,
		PickupDate:    in.PickupDate,
		PickupTime:    in.PickupTime,
		Status:        model.StatusPending,
	}
	if d := strings.TrimSpace(in.Description); d != "" {
		req.Description = &d
	}
	if in.Image != nil {
		if c.Objects == nil {
			return model.PickupRequest{}, errors.New("image upload is not configured")
		}
		objectPath := utils.UploadObjectPath(s.ProfileID, in.ImageName, now)
		if err := c.Objects.Upload(ctx, UploadBucket, objectPath, in.Image); err != nil {
			return model.PickupRequest{}, fmt.Errorf("upload image: %w", err)
		}
		url := c.Objects.PublicURLFor(UploadBucket, objectPath)
		req.ImageURL = &url
	}
	created, err := c.Requests.Create(ctx, req)
	for attempt := 1; errors.Is(err, ErrConflict) && attempt < codeAttempts; attempt++ {
		req.RequestCode = c.NewRequestCode(now)
		created, err = c.Requests.Create(ctx, req)
	}
	if err != nil {
		return model.PickupRequest{}, err
	}
	c.Log.Info("request submitted", zap.String("request_id", created.RequestCode), zap.String("user_id", s.ProfileID))
	c.notify(ctx, "pickup_requests", relay.OpInsert, requestFields(created))
	c.emit(ctx, s, queue.WorkflowEvent{
		Type:        queue.EventRequestSubmitted,
		RequestID:   created.ID,
		RequestCode: created.RequestCode,
		Status:      string(created.Status),
	})
	return created, nil
}

// ListMyRequests returns the caller's requests, newest first.
func (c *Coordinator) ListMyRequests(ctx context.Context, s Session) ([]model.PickupRequest, error) {
	if err := authorize(s, model.RoleCustomer); err != nil {
		return nil, err
	}
	return c.Requests.ListByUser(ctx, s.ProfileID)
}

// TrackRequest finds one of the caller's requests by its human code.
func (c *Coordinator) TrackRequest(ctx context.Context, s Session, code string) (model.PickupRequest, error) {
	if err := authorize(s, model.RoleCustomer); err != nil {
		return model.PickupRequest{}, err
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return model.PickupRequest{}, invalid("request_id", "required")
	}
	return c.Requests.GetByCodeForUser(ctx, code, s.ProfileID)
}

// RequestHistory returns the status log of a request.  Customers only see
// their own requests; admins see any.
func (c *Coordinator) RequestHistory(ctx context.Context, s Session, id uint64) ([]model.StatusHistoryEntry, error) {
	if err := authorize(s, model.RoleCustomer, model.RoleAdmin); err != nil {
		return nil, err
	}
	req, err := c.Requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Role == model.RoleCustomer && req.UserID != s.ProfileID {
		return nil, ErrNotFound
	}
	return c.Requests.History(ctx, id)
}

// ListRequests is the admin view of every request with its customer.
func (c *Coordinator) ListRequests(ctx context.Context, s Session) ([]model.PickupRequestWithCustomer, error) {
	if err := authorize(s, model.RoleAdmin); err != nil {
		return nil, err
	}
	return c.Requests.ListWithCustomer(ctx)
}

// AdvanceResult is what AdvanceRequest changed.  Item is set only when
// the request was collected and its inventory row was created.
type AdvanceResult struct {
	Request model.PickupRequest
	Item    *model.InventoryItem
}

// AdvanceRequest moves a request to next.  The status write and its
// history entry commit together, conditioned on the status read here, so
// a concurrent admin gets ErrConflict.  Collecting a request also creates
// its inventory item; if that insert fails the request stays Collected and
// the returned error wraps ErrInventorySync.
func (c *Coordinator) AdvanceRequest(ctx context.Context, s Session, id uint64, next model.RequestStatus) (AdvanceResult, error) {
	if err := authorize(s, model.RoleAdmin); err != nil {
		return AdvanceResult{}, err
	}
	if !next.Valid() {
		return AdvanceResult{}, invalid("status", fmt.Sprintf("unknown status %q", next))
	}
	cur, err := c.Requests.GetByID(ctx, id)
	if err != nil {
		return AdvanceResult{}, err
	}
	if !cur.Status.CanTransition(next) {
		return AdvanceResult{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, next)
	}
	updated, err := c.Requests.TransitionStatus(ctx, id, cur.Status, next, string(s.Role))
	if err != nil {
		return AdvanceResult{}, err
	}
	res := AdvanceResult{Request: updated}
	c.Log.Info("request advanced",
		zap.String("request_id", updated.RequestCode),
		zap.String("from", string(cur.Status)),
		zap.String("status", string(next)))
	c.notify(ctx, "pickup_requests", relay.OpUpdate, requestFields(updated))
	c.notify(ctx, "request_status_history", relay.OpInsert, map[string]string{"request_id": idStr(id)})
	c.emit(ctx, s, queue.WorkflowEvent{
		Type:        queue.EventRequestStatusChanged,
		RequestID:   updated.ID,
		RequestCode: updated.RequestCode,
		Status:      string(next),
	})

	if next != model.StatusCollected {
		return res, nil
	}
	item, err := c.Inventory.Create(ctx, collectedItem(updated))
	if err != nil {
		c.Log.Error("inventory item for collected request not created",
			zap.String("request_id", updated.RequestCode), zap.Error(err))
		return res, fmt.Errorf("%w: request %s: %v", ErrInventorySync, updated.RequestCode, err)
	}
	res.Item = &item
	c.notify(ctx, "inventory", relay.OpInsert, map[string]string{"id": idStr(item.ID)})
	c.emit(ctx, s, queue.WorkflowEvent{
		Type:        queue.EventInventoryCreated,
		RequestID:   updated.ID,
		RequestCode: updated.RequestCode,
		InventoryID: item.ID,
		ItemName:    item.ItemName,
	})
	return res, nil
}

func collectedItem(req model.PickupRequest) model.InventoryItem {
	name := strings.TrimSpace(req.EwasteType)
	if name == "" {
		name = DefaultItemName
	}
	qty := req.Qty
	if qty <= 0 {
		qty = 1
	}
	src := req.ID
	return model.InventoryItem{
		ItemName:        name,
		Qty:             qty,
		PricePerUnit:    decimal.Zero,
		SourceRequestID: &src,
	}
}

func requestFields(r model.PickupRequest) map[string]string {
	return map[string]string{
		"id":      idStr(r.ID),
		"user_id": r.UserID,
		"status":  string(r.Status),
	}
}

// Deletable tables for DeleteRow.
const (
	TablePickupRequests = "pickup_requests"
	TableInventory      = "inventory"
)

// DeleteRow removes a request or inventory item regardless of its state.
// Nothing cascades: a deleted request keeps its history and inventory.
func (c *Coordinator) DeleteRow(ctx context.Context, s Session, table string, id uint64) error {
	if err := authorize(s, model.RoleAdmin); err != nil {
		return err
	}
	var err error
	switch table {
	case TablePickupRequests:
		err = c.Requests.Delete(ctx, id)
	case TableInventory:
		err = c.Inventory.Delete(ctx, id)
	default:
		return invalid("table", fmt.Sprintf("cannot delete from %q", table))
	}
	if err != nil {
		return err
	}
	c.Log.Info("row deleted", zap.String("table", table), zap.Uint64("id", id))
	c.notify(ctx, table, relay.OpDelete, map[string]string{"id": idStr(id)})
	return nil
}
