// Package workflow is the single coordinator behind every role's screens.
// Handlers stay thin: they decode input, build a Session from the resolved
// profile and call one Coordinator method.  Every successful mutation is
// announced on the change relay and, best effort, on the activity queue.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/iliyamo/ewaste-marketplace/internal/model"
	"github.com/iliyamo/ewaste-marketplace/internal/queue"
	"github.com/iliyamo/ewaste-marketplace/internal/relay"
	"github.com/iliyamo/ewaste-marketplace/internal/repository"
	"github.com/iliyamo/ewaste-marketplace/internal/utils"
)

var (
	ErrNotFound   = repository.ErrNotFound
	ErrConflict   = repository.ErrConflict
	ErrOutOfStock = repository.ErrOutOfStock
	ErrForbidden  = repository.ErrForbidden

	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInventorySync means the request reached Collected but its
	// inventory item could not be created.  The status change stands.
	ErrInventorySync = errors.New("inventory item not created")
)

// ValidationError reports bad caller input on a single field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Msg }

func invalid(field, msg string) error { return &ValidationError{Field: field, Msg: msg} }

// Session is the authenticated caller.  Role comes from the profile row.
type Session struct {
	ProfileID string
	Role      model.Role
}

// RequestStore persists pickup requests and their status log.
type RequestStore interface {
	Create(ctx context.Context, req model.PickupRequest) (model.PickupRequest, error)
	GetByID(ctx context.Context, id uint64) (model.PickupRequest, error)
	GetByCodeForUser(ctx context.Context, code, userID string) (model.PickupRequest, error)
	ListByUser(ctx context.Context, userID string) ([]model.PickupRequest, error)
	ListWithCustomer(ctx context.Context) ([]model.PickupRequestWithCustomer, error)
	Count(ctx context.Context) (int, error)
	TransitionStatus(ctx context.Context, id uint64, from, to model.RequestStatus, updatedBy string) (model.PickupRequest, error)
	History(ctx context.Context, requestID uint64) ([]model.StatusHistoryEntry, error)
	Delete(ctx context.Context, id uint64) error
}

// InventoryStore persists sellable stock.
type InventoryStore interface {
	Create(ctx context.Context, item model.InventoryItem) (model.InventoryItem, error)
	GetByID(ctx context.Context, id uint64) (model.InventoryItem, error)
	List(ctx context.Context) ([]model.InventoryItem, error)
	ListAvailable(ctx context.Context) ([]model.InventoryItem, error)
	CountAvailable(ctx context.Context) (int, error)
	UpdatePrice(ctx context.Context, id uint64, price decimal.Decimal) error
	Delete(ctx context.Context, id uint64) error
}

// OrderStore persists company orders.  CreateWithStockDecrement must
// decrement stock and insert the order atomically.
type OrderStore interface {
	CreateWithStockDecrement(ctx context.Context, o *model.Order) error
	ListByCompany(ctx context.Context, companyID string) ([]model.OrderDetail, error)
	ListAll(ctx context.Context) ([]model.OrderDetail, error)
	CountByCompany(ctx context.Context, companyID string) (int, error)
}

// ProfileStore reads and edits participant profiles.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (model.Profile, error)
	List(ctx context.Context, role model.Role) ([]model.Profile, error)
	CountByRole(ctx context.Context, role model.Role) (int, error)
	Update(ctx context.Context, id string, u model.ProfileUpdate) error
	DeleteWithRequests(ctx context.Context, id string) error
}

// MessageStore persists the contact inbox.
type MessageStore interface {
	Create(ctx context.Context, m model.ContactMessage) (model.ContactMessage, error)
	GetByID(ctx context.Context, id uint64) (model.ContactMessage, error)
	List(ctx context.Context, status model.MessageStatus) ([]model.ContactMessage, error)
	MarkRead(ctx context.Context, id uint64, readBy string, at time.Time) error
	Archive(ctx context.Context, id uint64) error
	Delete(ctx context.Context, id uint64) error
}

// ObjectStore holds uploaded images.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, objectPath string, r io.Reader) error
	PublicURLFor(bucket, objectPath string) string
}

// EventSink receives domain events for the activity queue.
type EventSink interface {
	PublishEvent(ctx context.Context, ev queue.WorkflowEvent) error
}

// Deps wires a Coordinator.  Objects, Events and Relay are optional.
type Deps struct {
	Requests  RequestStore
	Inventory InventoryStore
	Orders    OrderStore
	Profiles  ProfileStore
	Messages  MessageStore
	Objects   ObjectStore
	Events    EventSink
	Relay     relay.Publisher
	Log       *zap.Logger

	Now            func() time.Time
	NewOrderCode   func(time.Time) string
	NewRequestCode func(time.Time) string
}

// Coordinator implements every workflow operation.
type Coordinator struct {
	Deps
	wg sync.WaitGroup
}

// UploadBucket is the bucket request photos are stored in.
const UploadBucket = "uploads"

// codeAttempts bounds how often a colliding request or order code is
// regenerated before the conflict is returned.
const codeAttempts = 5

func New(d Deps) *Coordinator {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewOrderCode == nil {
		d.NewOrderCode = utils.NewOrderCode
	}
	if d.NewRequestCode == nil {
		d.NewRequestCode = utils.NewRequestCode
	}
	return &Coordinator{Deps: d}
}

// Wait blocks until queued domain events have been handed to the sink.
func (c *Coordinator) Wait() { c.wg.Wait() }

func authorize(s Session, roles ...model.Role) error {
	if s.ProfileID == "" {
		return fmt.Errorf("%w: no session", ErrForbidden)
	}
	for _, r := range roles {
		if s.Role == r {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q", ErrForbidden, s.Role)
}

func (c *Coordinator) notify(ctx context.Context, table string, op relay.Op, fields map[string]string) {
	if c.Relay == nil {
		return
	}
	c.Relay.Publish(ctx, relay.Event{Table: table, Op: op, Fields: fields})
}

// emit hands ev to the event sink on a background goroutine.  The request
// that caused it has already committed, so failures are only logged.
func (c *Coordinator) emit(ctx context.Context, s Session, ev queue.WorkflowEvent) {
	if c.Events == nil {
		return
	}
	ev.ActorID = s.ProfileID
	ev.ActorRole = string(s.Role)
	ev.OccurredAt = c.Now()
	ctx = context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.Events.PublishEvent(ctx, ev); err != nil {
			c.Log.Warn("workflow: domain event not published", zap.String("type", ev.Type), zap.Error(err))
		}
	}()
}

func idStr(id uint64) string { return strconv.FormatUint(id, 10) }
