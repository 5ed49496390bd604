package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ewaste-marketplace/internal/memstore"
	"github.com/iliyamo/ewaste-marketplace/internal/model"
	"github.com/iliyamo/ewaste-marketplace/internal/queue"
	"github.com/iliyamo/ewaste-marketplace/internal/relay"
	"github.com/iliyamo/ewaste-marketplace/internal/repository"
	"github.com/iliyamo/ewaste-marketplace/internal/storage"
	"github.com/iliyamo/ewaste-marketplace/internal/utils"
)

type recorder struct {
	mu     sync.Mutex
	events []relay.Event
}

func (r *recorder) Publish(_ context.Context, e relay.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) tables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Table+":"+string(e.Op))
	}
	return out
}

type sink struct {
	mu     sync.Mutex
	events []queue.WorkflowEvent
	err    error
}

func (s *sink) PublishEvent(_ context.Context, ev queue.WorkflowEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *sink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixture struct {
	c    *Coordinator
	db   *memstore.DB
	rec  *recorder
	sink *sink
	dir  string
}

var (
	admin    = Session{ProfileID: "admin-1", Role: model.RoleAdmin}
	customer = Session{ProfileID: "cust-1", Role: model.RoleCustomer}
	company  = Session{ProfileID: "comp-1", Role: model.RoleCompany}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := memstore.New()
	rec := &recorder{}
	sk := &sink{}
	dir := t.TempDir()
	var seq atomic.Int64
	c := New(Deps{
		Requests:  db.Requests(),
		Inventory: db.Inventory(),
		Orders:    db.Orders(),
		Profiles:  db.Profiles(),
		Messages:  db.Messages(),
		Objects:   storage.NewLocalStore(dir, "http://localhost:8080/uploads"),
		Events:    sk,
		Relay:     rec,
		Now:       func() time.Time { return time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC) },
		NewOrderCode: func(time.Time) string {
			return fmt.Sprintf("ORD-%06d", seq.Add(1))
		},
	})
	ctx := context.Background()
	for _, p := range []model.Profile{
		{ID: admin.ProfileID, Email: "admin@x.io", FullName: "Admin", Role: model.RoleAdmin},
		{ID: customer.ProfileID, Email: "cust@x.io", FullName: "Cust", Role: model.RoleCustomer},
		{ID: company.ProfileID, Email: "comp@x.io", FullName: "Comp", Role: model.RoleCompany},
	} {
		require.NoError(t, db.Profiles().Upsert(ctx, p))
	}
	return &fixture{c: c, db: db, rec: rec, sink: sk, dir: dir}
}

func (f *fixture) submit(t *testing.T, kind string, qty int) model.PickupRequest {
	t.Helper()
	req, err := f.c.SubmitRequest(context.Background(), customer, SubmitRequestInput{
		EwasteType:    kind,
		Qty:           qty,
		PickupAddress: "12 MG Road",
		PickupDate:    "2026-10-20",
		PickupTime:    "Morning (9AM-12PM)",
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) addItem(t *testing.T, qty int, price int64) model.InventoryItem {
	t.Helper()
	item, err := f.c.AddInventoryItem(context.Background(), admin, "Copper wire", qty, decimal.NewFromInt(price))
	require.NoError(t, err)
	return item
}

func TestCollectCreatesExactlyOneInventoryItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, "Mobile/Tablet", 3)

	_, err := f.c.AdvanceRequest(ctx, admin, req.ID, model.StatusAccepted)
	require.NoError(t, err)
	res, err := f.c.AdvanceRequest(ctx, admin, req.ID, model.StatusCollected)
	require.NoError(t, err)

	require.NotNil(t, res.Item)
	assert.Equal(t, model.StatusCollected, res.Request.Status)

	items, err := f.db.Inventory().List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Mobile/Tablet", items[0].ItemName)
	assert.Equal(t, 3, items[0].Qty)
	assert.True(t, items[0].PricePerUnit.IsZero())
	require.NotNil(t, items[0].SourceRequestID)
	assert.Equal(t, req.ID, *items[0].SourceRequestID)
}

func TestCollectInventoryFailureKeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, "Other", 1)
	_, err := f.c.AdvanceRequest(ctx, admin, req.ID, model.StatusAccepted)
	require.NoError(t, err)

	f.db.FailOn(memstore.OpInventoryCreate, errors.New("disk full"))
	res, err := f.c.AdvanceRequest(ctx, admin, req.ID, model.StatusCollected)
	require.ErrorIs(t, err, ErrInventorySync)
	assert.Nil(t, res.Item)

	got, err := f.db.Requests().GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCollected, got.Status)

	items, err := f.db.Inventory().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCollectedItemDefaults(t *testing.T) {
	item := collectedItem(model.PickupRequest{ID: 7, EwasteType: "  ", Qty: 0})
	assert.Equal(t, DefaultItemName, item.ItemName)
	assert.Equal(t, 1, item.Qty)
	require.NotNil(t, item.SourceRequestID)
	assert.Equal(t, uint64(7), *item.SourceRequestID)
}

func TestAdvanceRejectsIllegalTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, "Other", 1)

	for _, next := range []model.RequestStatus{model.StatusCollected, model.StatusCompleted, model.StatusPending} {
		_, err := f.c.AdvanceRequest(ctx, admin, req.ID, next)
		assert.ErrorIs(t, err, ErrInvalidTransition, string(next))
	}

	_, err := f.c.AdvanceRequest(ctx, admin, req.ID, model.StatusRejected)
	require.NoError(t, err)
	_, err = f.c.AdvanceRequest(ctx, admin, req.ID, model.StatusAccepted)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.c.AdvanceRequest(ctx, admin, req.ID, "Lost")
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = f.c.AdvanceRequest(ctx, admin, 999, model.StatusAccepted)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.c.AdvanceRequest(ctx, customer, req.ID, model.StatusAccepted)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAdvanceConflictWritesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, "Other", 1)

	f.db.FailOn(memstore.OpRequestTransition, ErrConflict)
	_, err := f.c.AdvanceRequest(ctx, admin, req.ID, model.StatusAccepted)
	require.ErrorIs(t, err, ErrConflict)

	hist, err := f.c.RequestHistory(ctx, admin, req.ID)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestOneHistoryEntryPerTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, "Accessories", 2)

	_, err := f.c.AdvanceRequest(ctx, admin, req.ID, model.StatusAccepted)
	require.NoError(t, err)
	_, err = f.c.AdvanceRequest(ctx, admin, req.ID, model.StatusRejected)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.c.AdvanceRequest(ctx, admin, req.ID, model.StatusCollected)
	require.NoError(t, err)

	hist, err := f.c.RequestHistory(ctx, customer, req.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, model.StatusAccepted, hist[0].Status)
	assert.Equal(t, model.StatusCollected, hist[1].Status)
	for _, h := range hist {
		assert.Equal(t, "admin", h.UpdatedBy)
	}

	other := Session{ProfileID: "cust-2", Role: model.RoleCustomer}
	_, err = f.c.RequestHistory(ctx, other, req.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarketplaceExcludesSoldOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addItem(t, 0, 10)
	inStock := f.addItem(t, 2, 10)

	items, err := f.c.ListMarketplace(ctx, company)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, inStock.ID, items[0].ID)

	all, err := f.c.ListInventory(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPlaceOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.addItem(t, 5, 10)

	o, err := f.c.PlaceOrder(ctx, company, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, o.Qty)
	assert.True(t, o.TotalPrice.Equal(decimal.NewFromInt(10)), o.TotalPrice.String())
	assert.True(t, o.PricePerUnit.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, model.OrderRequested, o.Status)
	assert.Equal(t, company.ProfileID, o.CompanyID)

	got, err := f.db.Inventory().GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Qty)

	orders, err := f.c.ListMyOrders(ctx, company)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.NotNil(t, orders[0].ItemName)
	assert.Equal(t, "Copper wire", *orders[0].ItemName)

	_, err = f.c.PlaceOrder(ctx, customer, item.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.c.PlaceOrder(ctx, company, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPlaceOrderSoldOut(t *testing.T) {
	f := newFixture(t)
	item := f.addItem(t, 0, 10)
	_, err := f.c.PlaceOrder(context.Background(), company, item.ID)
	assert.ErrorIs(t, err, ErrOutOfStock)
}

func TestConcurrentOrdersForLastUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.addItem(t, 1, 10)

	const buyers = 8
	var wg sync.WaitGroup
	var ok, sold atomic.Int32
	start := make(chan struct{})
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			s := Session{ProfileID: fmt.Sprintf("comp-%d", i), Role: model.RoleCompany}
			_, err := f.c.PlaceOrder(ctx, s, item.ID)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrOutOfStock):
				sold.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, buyers-1, sold.Load())
	got, err := f.db.Inventory().GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Qty)
	sales, err := f.c.ListSales(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, sales, 1)
}

func TestInventoryValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ve *ValidationError

	_, err := f.c.AddInventoryItem(ctx, admin, " ", 1, decimal.NewFromInt(1))
	assert.ErrorAs(t, err, &ve)
	_, err = f.c.AddInventoryItem(ctx, admin, "x", -1, decimal.NewFromInt(1))
	assert.ErrorAs(t, err, &ve)
	_, err = f.c.AddInventoryItem(ctx, admin, "x", 1, decimal.NewFromInt(-1))
	assert.ErrorAs(t, err, &ve)
	_, err = f.c.AddInventoryItem(ctx, company, "x", 1, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrForbidden)

	item := f.addItem(t, 1, 1)
	assert.ErrorAs(t, f.c.UpdatePrice(ctx, admin, item.ID, decimal.NewFromInt(-5)), &ve)
	assert.ErrorIs(t, f.c.UpdatePrice(ctx, admin, 404, decimal.NewFromInt(5)), ErrNotFound)
	require.NoError(t, f.c.UpdatePrice(ctx, admin, item.ID, decimal.RequireFromString("12.345")))
	got, err := f.db.Inventory().GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "12.35", got.PricePerUnit.StringFixed(2))
}

func TestDeleteRowDoesNotCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, "Other", 1)
	_, err := f.c.AdvanceRequest(ctx, admin, req.ID, model.StatusAccepted)
	require.NoError(t, err)
	res, err := f.c.AdvanceRequest(ctx, admin, req.ID, model.StatusCollected)
	require.NoError(t, err)

	require.NoError(t, f.c.DeleteRow(ctx, admin, TablePickupRequests, req.ID))
	_, err = f.db.Inventory().GetByID(ctx, res.Item.ID)
	assert.NoError(t, err)
	hist, err := f.db.Requests().History(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, hist, 2)

	require.NoError(t, f.c.DeleteRow(ctx, admin, TableInventory, res.Item.ID))
	assert.ErrorIs(t, f.c.DeleteRow(ctx, admin, TableInventory, res.Item.ID), ErrNotFound)

	var ve *ValidationError
	assert.ErrorAs(t, f.c.DeleteRow(ctx, admin, "profiles", 1), &ve)
}

func TestSubmitRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.c.SubmitRequest(ctx, customer, SubmitRequestInput{
		EwasteType:    "Laptop/Computer",
		Qty:           1,
		Description:   " old ThinkPad ",
		PickupAddress: "12 MG Road",
		PickupDate:    "2026-10-21",
		PickupTime:    "Evening (4PM-7PM)",
		Image:         strings.NewReader("jpeg-bytes"),
		ImageName:     "laptop.JPG",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, req.Status)
	assert.Regexp(t, `^EW-20261018-\d{4}$`, req.RequestCode)
	require.NotNil(t, req.Description)
	assert.Equal(t, "old ThinkPad", *req.Description)

	objectPath := fmt.Sprintf("%s/%d.jpg", customer.ProfileID, f.c.Now().UnixMilli())
	require.NotNil(t, req.ImageURL)
	assert.Equal(t, "http://localhost:8080/uploads/uploads/"+objectPath, *req.ImageURL)
	body, err := os.ReadFile(filepath.Join(f.dir, "uploads", filepath.FromSlash(objectPath)))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(body))

	tracked, err := f.c.TrackRequest(ctx, customer, strings.ToLower(req.RequestCode))
	require.NoError(t, err)
	assert.Equal(t, req.ID, tracked.ID)
	_, err = f.c.TrackRequest(ctx, Session{ProfileID: "cust-2", Role: model.RoleCustomer}, req.RequestCode)
	assert.ErrorIs(t, err, ErrNotFound)

	mine, err := f.c.ListMyRequests(ctx, customer)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	all, err := f.c.ListRequests(ctx, admin)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].CustomerName)
	assert.Equal(t, "Cust", *all[0].CustomerName)
}

func TestSubmitRequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	valid := SubmitRequestInput{
		EwasteType: "Other", Qty: 1, PickupAddress: "x",
		PickupDate: "2026-10-20", PickupTime: "Afternoon (12PM-4PM)",
	}
	cases := map[string]func(in *SubmitRequestInput){
		"ewaste_type":    func(in *SubmitRequestInput) { in.EwasteType = "" },
		"qty":            func(in *SubmitRequestInput) { in.Qty = 0 },
		"pickup_address": func(in *SubmitRequestInput) { in.PickupAddress = " " },
		"pickup_time":    func(in *SubmitRequestInput) { in.PickupTime = "10:00" },
		"pickup_date":    func(in *SubmitRequestInput) { in.PickupDate = "20/10/2026" },
	}
	for field, mutate := range cases {
		in := valid
		mutate(&in)
		_, err := f.c.SubmitRequest(ctx, customer, in)
		var ve *ValidationError
		if assert.ErrorAs(t, err, &ve, field) {
			assert.Equal(t, field, ve.Field)
		}
	}
	_, err := f.c.SubmitRequest(ctx, company, valid)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, "Other", 1)
	item := f.addItem(t, 2, 3)
	f.addItem(t, 0, 3)
	_, err := f.c.PlaceOrder(ctx, company, item.ID)
	require.NoError(t, err)

	st, err := f.c.AdminStats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, AdminStats{Customers: 1, Companies: 1, Requests: 1}, st)

	cs, err := f.c.CompanyStats(ctx, company)
	require.NoError(t, err)
	assert.Equal(t, CompanyStats{AvailableItems: 1, MyOrders: 1}, cs)

	_, err = f.c.AdminStats(ctx, company)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.submit(t, "Other", 1)

	var ve *ValidationError
	assert.ErrorAs(t, f.c.DeleteUser(ctx, admin, admin.ProfileID), &ve)
	require.NoError(t, f.c.DeleteUser(ctx, admin, customer.ProfileID))
	assert.ErrorIs(t, f.c.DeleteUser(ctx, admin, customer.ProfileID), ErrNotFound)

	n, err := f.db.Requests().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	companies, err := f.c.ListCompanies(ctx, admin)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, company.ProfileID, companies[0].ID)
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	phone := " +91 98765 43210 "
	p, err := f.c.UpdateProfile(ctx, company, model.ProfileUpdate{Phone: &phone})
	require.NoError(t, err)
	require.NotNil(t, p.Phone)
	assert.Equal(t, "+91 98765 43210", *p.Phone)
	assert.Equal(t, model.RoleCompany, p.Role)

	blank := ""
	_, err = f.c.UpdateProfile(ctx, company, model.ProfileUpdate{FullName: &blank})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = f.c.GetProfile(ctx, Session{})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestContactInbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.c.SubmitContactMessage(ctx, ContactInput{Name: "A", Email: "not-an-email", Phone: "1", Message: "hi"})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "email", ve.Field)

	msg, err := f.c.SubmitContactMessage(ctx, ContactInput{Name: "A", Email: "a@x.io", Phone: "1", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, model.MessageUnread, msg.Status)

	read, err := f.c.MarkMessageRead(ctx, admin, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageRead, read.Status)
	require.NotNil(t, read.ReadBy)
	assert.Equal(t, admin.ProfileID, *read.ReadBy)
	_, err = f.c.MarkMessageRead(ctx, admin, msg.ID)
	assert.ErrorIs(t, err, ErrConflict)

	unread, err := f.c.ListMessages(ctx, admin, model.MessageUnread)
	require.NoError(t, err)
	assert.Empty(t, unread)

	archived, err := f.c.ArchiveMessage(ctx, admin, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageArchived, archived.Status)
	_, err = f.c.ArchiveMessage(ctx, admin, msg.ID)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.c.ListMessages(ctx, admin, "spam")
	assert.ErrorAs(t, err, &ve)
	require.NoError(t, f.c.DeleteMessage(ctx, admin, msg.ID))
	assert.ErrorIs(t, f.c.DeleteMessage(ctx, admin, msg.ID), ErrNotFound)
	_, err = f.c.ListMessages(ctx, company, "")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestEventsPublishedAfterMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := f.submit(t, "Other", 1)
	_, err := f.c.AdvanceRequest(ctx, admin, req.ID, model.StatusAccepted)
	require.NoError(t, err)
	_, err = f.c.AdvanceRequest(ctx, admin, req.ID, model.StatusCollected)
	require.NoError(t, err)
	item := f.addItem(t, 1, 5)
	_, err = f.c.PlaceOrder(ctx, company, item.ID)
	require.NoError(t, err)
	f.c.Wait()

	assert.Equal(t, []string{
		"pickup_requests:INSERT",
		"pickup_requests:UPDATE",
		"request_status_history:INSERT",
		"pickup_requests:UPDATE",
		"request_status_history:INSERT",
		"inventory:INSERT",
		"inventory:INSERT",
		"company_orders:INSERT",
		"inventory:UPDATE",
	}, f.rec.tables())

	assert.ElementsMatch(t, []string{
		queue.EventRequestSubmitted,
		queue.EventRequestStatusChanged,
		queue.EventRequestStatusChanged,
		queue.EventInventoryCreated,
		queue.EventInventoryCreated,
		queue.EventOrderPlaced,
	}, f.sink.types())

	f.rec.mu.Lock()
	last := f.rec.events[len(f.rec.events)-2]
	f.rec.mu.Unlock()
	assert.Equal(t, company.ProfileID, last.Fields["company_id"])
}

func TestDomainEventFailureDoesNotFailMutation(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("broker down")
	f.submit(t, "Other", 1)
	f.c.Wait()
	assert.Equal(t, []string{queue.EventRequestSubmitted}, f.sink.types())
}

// A customer's laptop goes from request to a company's order.
func TestPickupToSaleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.submit(t, "Laptop/Computer", 2)
	_, err := f.c.AdvanceRequest(ctx, admin, req.ID, model.StatusAccepted)
	require.NoError(t, err)
	res, err := f.c.AdvanceRequest(ctx, admin, req.ID, model.StatusCollected)
	require.NoError(t, err)
	require.NotNil(t, res.Item)
	assert.Equal(t, "Laptop/Computer", res.Item.ItemName)
	assert.Equal(t, 2, res.Item.Qty)
	assert.True(t, res.Item.PricePerUnit.IsZero())
	assert.Equal(t, req.ID, *res.Item.SourceRequestID)

	require.NoError(t, f.c.UpdatePrice(ctx, admin, res.Item.ID, decimal.NewFromInt(500)))

	market, err := f.c.ListMarketplace(ctx, company)
	require.NoError(t, err)
	require.Len(t, market, 1)
	assert.True(t, market[0].PricePerUnit.Equal(decimal.NewFromInt(500)))

	o, err := f.c.PlaceOrder(ctx, company, market[0].ID)
	require.NoError(t, err)
	assert.True(t, o.TotalPrice.Equal(decimal.NewFromInt(500)))

	item, err := f.db.Inventory().GetByID(ctx, res.Item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, item.Qty)
}

func TestSubmitRequestRegeneratesCollidingCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	codes := []string{"EW-20261018-1111", "EW-20261018-1111", "EW-20261018-1111", "EW-20261018-2222"}
	var mu sync.Mutex
	f.c.NewRequestCode = func(time.Time) string {
		mu.Lock()
		defer mu.Unlock()
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return code
	}

	first := f.submit(t, "Other", 1)
	assert.Equal(t, "EW-20261018-1111", first.RequestCode)
	second := f.submit(t, "Other", 1)
	assert.Equal(t, "EW-20261018-2222", second.RequestCode)

	mine, err := f.c.ListMyRequests(ctx, customer)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestSubmitRequestGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var calls atomic.Int32
	f.c.NewRequestCode = func(time.Time) string {
		calls.Add(1)
		return "EW-20261018-1111"
	}
	f.submit(t, "Other", 1)
	calls.Store(0)

	_, err := f.c.SubmitRequest(ctx, customer, SubmitRequestInput{
		EwasteType: "Other", Qty: 1, PickupAddress: "x",
		PickupDate: "2026-10-20", PickupTime: "Morning (9AM-12PM)",
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.EqualValues(t, codeAttempts, calls.Load())
}

func TestPlaceOrderRegeneratesClockDerivedCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// The fixture clock is frozen, so the real generator repeats itself.
	f.c.NewOrderCode = utils.NewOrderCode
	item := f.addItem(t, 3, 10)

	a, err := f.c.PlaceOrder(ctx, company, item.ID)
	require.NoError(t, err)
	b, err := f.c.PlaceOrder(ctx, company, item.ID)
	require.NoError(t, err)
	assert.NotEqual(t, a.OrderCode, b.OrderCode)
	assert.Regexp(t, `^ORD-\d{6}$`, b.OrderCode)

	got, err := f.db.Inventory().GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Qty)
}

func TestForbiddenMatchesRepositorySentinel(t *testing.T) {
	f := newFixture(t)
	_, err := f.c.ListSales(context.Background(), customer)
	assert.ErrorIs(t, err, repository.ErrForbidden)
}
