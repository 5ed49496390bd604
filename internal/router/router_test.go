package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ewaste-marketplace/internal/handler"
	"github.com/iliyamo/ewaste-marketplace/internal/identity"
	"github.com/iliyamo/ewaste-marketplace/internal/memstore"
	"github.com/iliyamo/ewaste-marketplace/internal/model"
	"github.com/iliyamo/ewaste-marketplace/internal/relay"
	"github.com/iliyamo/ewaste-marketplace/internal/storage"
	"github.com/iliyamo/ewaste-marketplace/internal/workflow"
)

type testApp struct {
	e   *echo.Echo
	ids *identity.Service
	db  *memstore.DB
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db := memstore.New()
	ids := identity.NewService(db.Accounts(), db.Profiles(), db.Tokens(), identity.Config{
		JWTSecret:      "router-test",
		AccessTTLMin:   15,
		RefreshTTLDays: 7,
		BcryptCost:     4,
	}, nil)
	hub := relay.NewHub(nil)
	t.Cleanup(hub.Close)
	dir := t.TempDir()
	wf := workflow.New(workflow.Deps{
		Requests:  db.Requests(),
		Inventory: db.Inventory(),
		Orders:    db.Orders(),
		Profiles:  db.Profiles(),
		Messages:  db.Messages(),
		Objects:   storage.NewLocalStore(dir, "/uploads"),
		Relay:     hub,
	})

	e := echo.New()
	guard := Guard{Tokens: ids, Profiles: ids}
	RegisterRoutes(e, nil, dir)
	RegisterAuth(e, handler.NewAuthHandler(ids, nil), guard)
	RegisterAccount(e, handler.NewProfileHandler(wf, nil), handler.NewRealtimeHandler(hub, nil), guard)
	RegisterCustomer(e, handler.NewCustomerHandler(wf, nil), guard)
	RegisterCompany(e, handler.NewCompanyHandler(wf, nil), guard, nil)
	RegisterAdmin(e, handler.NewAdminHandler(wf, nil), guard)
	return &testApp{e: e, ids: ids, db: db}
}

func (a *testApp) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func u64(id uint64) string { return strconv.FormatUint(id, 10) }

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type authBody struct {
	User   model.Profile `json:"user"`
	Access struct {
		Token string `json:"token"`
	} `json:"access"`
	Refresh struct {
		Token string `json:"token"`
	} `json:"refresh"`
}

func (a *testApp) signup(t *testing.T, email string, role model.Role) authBody {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/auth/signup", "", echo.Map{
		"email": email, "password": "pw", "full_name": email, "role": string(role),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[authBody](t, rec)
}

func (a *testApp) adminToken(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	_, err := a.ids.CreateUser(ctx, identity.CreateUserInput{
		Email: "root@x.io", Password: "pw", FullName: "Root", Role: model.RoleAdmin,
	})
	require.NoError(t, err)
	sess, err := a.ids.SignIn(ctx, "root@x.io", "pw")
	require.NoError(t, err)
	return sess.Access.Token
}

func TestHealthz(t *testing.T) {
	a := newTestApp(t)
	rec := a.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRoleGating(t *testing.T) {
	a := newTestApp(t)
	cust := a.signup(t, "c@x.io", model.RoleCustomer).Access.Token
	comp := a.signup(t, "co@x.io", model.RoleCompany).Access.Token
	admin := a.adminToken(t)

	tests := []struct {
		name  string
		token string
		path  string
		want  int
	}{
		{"anonymous admin", "", "/v1/admin/stats", http.StatusUnauthorized},
		{"bad token", "garbage", "/v1/admin/stats", http.StatusUnauthorized},
		{"customer on admin", cust, "/v1/admin/stats", http.StatusForbidden},
		{"customer on company", cust, "/v1/company/marketplace", http.StatusForbidden},
		{"company on customer", comp, "/v1/customer/requests", http.StatusForbidden},
		{"company on admin", comp, "/v1/admin/requests", http.StatusForbidden},
		{"admin on admin", admin, "/v1/admin/stats", http.StatusOK},
		{"company on company", comp, "/v1/company/stats", http.StatusOK},
		{"customer on customer", cust, "/v1/customer/requests", http.StatusOK},
		{"any role on profile", comp, "/v1/profile", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(t, http.MethodGet, tt.path, tt.token, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestRoleComesFromProfile(t *testing.T) {
	a := newTestApp(t)
	cust := a.signup(t, "c@x.io", model.RoleCustomer)

	// Promote the profile behind an already issued token.
	p := cust.User
	p.Role = model.RoleAdmin
	require.NoError(t, a.db.Profiles().Upsert(context.Background(), p))

	rec := a.do(t, http.MethodGet, "/v1/admin/stats", cust.Access.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthSessionLifecycle(t *testing.T) {
	a := newTestApp(t)
	s := a.signup(t, "Flow@X.io", model.RoleCustomer)
	assert.Equal(t, "flow@x.io", s.User.Email)

	rec := a.do(t, http.MethodGet, "/v1/auth/session", s.Access.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"role":"customer"`)

	rec = a.do(t, http.MethodPost, "/v1/auth/login", "", echo.Map{"email": "flow@x.io", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": s.Refresh.Token})
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := decode[authBody](t, rec)
	assert.NotEqual(t, s.Refresh.Token, rotated.Refresh.Token)

	rec = a.do(t, http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": s.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/auth/logout", "", echo.Map{"refresh_token": rotated.Refresh.Token})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/auth/refresh", "", echo.Map{"refresh_token": rotated.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/auth/signup", "", echo.Map{
		"email": "flow@x.io", "password": "pw", "full_name": "Dup", "role": "customer",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPost, "/v1/auth/signup", "", echo.Map{
		"email": "boss@x.io", "password": "pw", "full_name": "Boss", "role": "admin",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateUserEndpoint(t *testing.T) {
	a := newTestApp(t)
	admin := a.adminToken(t)
	cust := a.signup(t, "c@x.io", model.RoleCustomer).Access.Token

	rec := a.do(t, http.MethodPost, "/api/admin/users", admin, echo.Map{"email": "new@x.io"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing required fields"}`, rec.Body.String())

	body := echo.Map{"email": "recycler@x.io", "password": "pw", "fullName": "Recycler", "role": "company"}
	rec = a.do(t, http.MethodPost, "/api/admin/users", cust, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/admin/users", admin, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode[struct {
		Success bool          `json:"success"`
		User    model.Profile `json:"user"`
	}](t, rec)
	assert.True(t, out.Success)
	assert.Equal(t, model.RoleCompany, out.User.Role)
	assert.Equal(t, "Recycler", out.User.FullName)

	rec = a.do(t, http.MethodPost, "/v1/auth/login", "", echo.Map{"email": "recycler@x.io", "password": "pw"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/admin/users", admin, body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPickupToSaleOverHTTP(t *testing.T) {
	a := newTestApp(t)
	cust := a.signup(t, "c@x.io", model.RoleCustomer).Access.Token
	comp := a.signup(t, "co@x.io", model.RoleCompany).Access.Token
	admin := a.adminToken(t)

	rec := a.do(t, http.MethodPost, "/v1/customer/requests", cust, echo.Map{
		"ewaste_type":    "Laptop/Computer",
		"qty":            1,
		"pickup_address": "12 Green St",
		"pickup_date":    "2026-10-20",
		"pickup_time":    "Morning (9AM-12PM)",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	req := decode[model.PickupRequest](t, rec)
	assert.Equal(t, model.StatusPending, req.Status)

	rec = a.do(t, http.MethodGet, "/v1/customer/requests/track/"+req.RequestCode, cust, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	advance := func(status string) *httptest.ResponseRecorder {
		return a.do(t, http.MethodPatch, "/v1/admin/requests/"+u64(req.ID)+"/status", admin, echo.Map{"status": status})
	}
	assert.Equal(t, http.StatusConflict, advance("Collected").Code)
	require.Equal(t, http.StatusOK, advance("Accepted").Code)
	rec = advance("Collected")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	adv := decode[struct {
		Request model.PickupRequest  `json:"request"`
		Item    *model.InventoryItem `json:"inventory_item"`
	}](t, rec)
	require.NotNil(t, adv.Item)
	assert.Equal(t, "Laptop/Computer", adv.Item.ItemName)
	assert.Equal(t, model.StatusCollected, adv.Request.Status)

	rec = a.do(t, http.MethodGet, "/v1/customer/requests/"+u64(req.ID)+"/history", cust, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.StatusHistoryEntry](t, rec), 2)

	rec = a.do(t, http.MethodPatch, "/v1/admin/inventory/"+u64(adv.Item.ID)+"/price", admin, echo.Map{"price_per_unit": 120.5})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodGet, "/v1/company/marketplace", comp, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.InventoryItem](t, rec), 1)

	orderPath := "/v1/company/marketplace/" + u64(adv.Item.ID) + "/order"
	rec = a.do(t, http.MethodPost, orderPath, comp, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	o := decode[model.Order](t, rec)
	assert.True(t, o.TotalPrice.Equal(decimal.RequireFromString("120.5")))
	assert.Equal(t, model.OrderRequested, o.Status)

	rec = a.do(t, http.MethodPost, orderPath, comp, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodGet, "/v1/company/marketplace", comp, nil)
	assert.Empty(t, decode[[]model.InventoryItem](t, rec))

	rec = a.do(t, http.MethodGet, "/v1/admin/sales", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sales := decode[struct {
		Orders       []model.OrderDetail `json:"orders"`
		TotalRevenue decimal.Decimal     `json:"total_revenue"`
	}](t, rec)
	assert.Len(t, sales.Orders, 1)
	assert.True(t, sales.TotalRevenue.Equal(decimal.RequireFromString("120.5")))
}

func TestCollectReportsInventoryFailureAsMultiStatus(t *testing.T) {
	a := newTestApp(t)
	cust := a.signup(t, "c@x.io", model.RoleCustomer).Access.Token
	admin := a.adminToken(t)

	rec := a.do(t, http.MethodPost, "/v1/customer/requests", cust, echo.Map{
		"ewaste_type":    "Battery",
		"qty":            2,
		"pickup_address": "12 Green St",
		"pickup_date":    "2026-10-20",
		"pickup_time":    "Morning (9AM-12PM)",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	req := decode[model.PickupRequest](t, rec)
	path := "/v1/admin/requests/" + u64(req.ID) + "/status"

	require.Equal(t, http.StatusOK, a.do(t, http.MethodPatch, path, admin, echo.Map{"status": "Accepted"}).Code)
	a.db.FailOn(memstore.OpInventoryCreate, errors.New("disk full"))
	rec = a.do(t, http.MethodPatch, path, admin, echo.Map{"status": "Collected"})
	require.Equal(t, http.StatusMultiStatus, rec.Code, rec.Body.String())
	body := decode[struct {
		Request model.PickupRequest `json:"request"`
		Error   string              `json:"error"`
	}](t, rec)
	assert.Equal(t, model.StatusCollected, body.Request.Status)
	assert.Equal(t, req.ID, body.Request.ID)
	assert.NotEmpty(t, body.Error)
	assert.NotContains(t, rec.Body.String(), "disk full")

	rec = a.do(t, http.MethodGet, "/v1/admin/inventory", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]model.InventoryItem](t, rec))

	rec = a.do(t, http.MethodGet, "/v1/customer/requests/track/"+req.RequestCode, cust, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusCollected, decode[model.PickupRequest](t, rec).Status)
}

func TestAdminErrorMapping(t *testing.T) {
	a := newTestApp(t)
	admin := a.adminToken(t)

	rec := a.do(t, http.MethodPatch, "/v1/admin/requests/abc/status", admin, echo.Map{"status": "Accepted"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPatch, "/v1/admin/requests/999/status", admin, echo.Map{"status": "Accepted"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = a.do(t, http.MethodPatch, "/v1/admin/requests/1/status", admin, echo.Map{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPatch, "/v1/admin/inventory/1/price", admin, echo.Map{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/admin/inventory", admin, echo.Map{"item_name": "", "qty": 1, "price_per_unit": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodGet, "/v1/admin/users?role=wizard", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileAndContactInbox(t *testing.T) {
	a := newTestApp(t)
	cust := a.signup(t, "c@x.io", model.RoleCustomer).Access.Token
	admin := a.adminToken(t)

	rec := a.do(t, http.MethodPatch, "/v1/profile", cust, echo.Map{"full_name": "Casey", "phone": "555-0100"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[model.Profile](t, rec)
	assert.Equal(t, "Casey", p.FullName)
	require.NotNil(t, p.Phone)
	assert.Equal(t, "555-0100", *p.Phone)

	rec = a.do(t, http.MethodPost, "/v1/contact", "", echo.Map{"name": "Vis", "email": "not-an-email", "phone": "1", "message": "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/contact", "", echo.Map{"name": "Vis", "email": "v@x.io", "phone": "1", "message": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[struct {
		ID uint64 `json:"id"`
	}](t, rec).ID

	rec = a.do(t, http.MethodGet, "/v1/admin/messages?status=unread", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.ContactMessage](t, rec), 1)

	rec = a.do(t, http.MethodPatch, "/v1/admin/messages/"+u64(id)+"/read", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.MessageRead, decode[model.ContactMessage](t, rec).Status)

	rec = a.do(t, http.MethodGet, "/v1/admin/messages?status=unread", admin, nil)
	assert.Empty(t, decode[[]model.ContactMessage](t, rec))

	rec = a.do(t, http.MethodDelete, "/v1/admin/messages/"+u64(id), admin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(t, http.MethodGet, "/v1/admin/messages", admin, nil)
	assert.Empty(t, decode[[]model.ContactMessage](t, rec))
}
