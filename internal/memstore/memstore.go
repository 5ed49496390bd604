// Package memstore is an in-memory implementation of every store the
// workflow and identity layers depend on.  It follows the same error
// contract as package repository (ErrNotFound, ErrConflict, ErrOutOfStock,
// ErrEmailExists) and is used by tests across the module.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/ewaste-marketplace/internal/model"
	"github.com/iliyamo/ewaste-marketplace/internal/repository"
	"github.com/iliyamo/ewaste-marketplace/internal/utils"
)

// Operation names accepted by FailOn.
const (
	OpProfileUpsert     = "profiles.upsert"
	OpRequestCreate     = "requests.create"
	OpRequestTransition = "requests.transition"
	OpInventoryCreate   = "inventory.create"
	OpOrderCreate       = "orders.create"
)

// DB holds all tables behind one mutex.
type DB struct {
	mu sync.Mutex

	now func() time.Time

	accounts map[string]model.Account
	tokens   map[string]model.RefreshToken
	profiles map[string]model.Profile
	requests map[uint64]model.PickupRequest
	history  []model.StatusHistoryEntry
	items    map[uint64]model.InventoryItem
	orders   map[uint64]model.Order
	messages map[uint64]model.ContactMessage
	seq      uint64

	failures map[string]error
}

// New returns an empty database.
func New() *DB {
	return &DB{
		now:      func() time.Time { return time.Now().UTC() },
		accounts: map[string]model.Account{},
		tokens:   map[string]model.RefreshToken{},
		profiles: map[string]model.Profile{},
		requests: map[uint64]model.PickupRequest{},
		items:    map[uint64]model.InventoryItem{},
		orders:   map[uint64]model.Order{},
		messages: map[uint64]model.ContactMessage{},
		failures: map[string]error{},
	}
}

// FailOn makes the next call of op return err.
func (db *DB) FailOn(op string, err error) {
	db.mu.Lock()
	db.failures[op] = err
	db.mu.Unlock()
}

func (db *DB) fail(op string) error {
	if err, ok := db.failures[op]; ok {
		delete(db.failures, op)
		return err
	}
	return nil
}

func (db *DB) nextID() uint64 {
	db.seq++
	return db.seq
}

// Typed views.
func (db *DB) Accounts() *Accounts   { return &Accounts{db} }
func (db *DB) Tokens() *Tokens       { return &Tokens{db} }
func (db *DB) Profiles() *Profiles   { return &Profiles{db} }
func (db *DB) Requests() *Requests   { return &Requests{db} }
func (db *DB) Inventory() *Inventory { return &Inventory{db} }
func (db *DB) Orders() *Orders       { return &Orders{db} }
func (db *DB) Messages() *Messages   { return &Messages{db} }

// Accounts mirrors repository.AccountRepo.
type Accounts struct{ db *DB }

func (a *Accounts) Create(_ context.Context, email, password string, cost int, confirmed bool) (model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return model.Account{}, err
	}
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	for _, acc := range a.db.accounts {
		if acc.Email == email {
			return model.Account{}, repository.ErrEmailExists
		}
	}
	now := a.db.now()
	acc := model.Account{ID: uuid.NewString(), Email: email, PasswordHash: hash, CreatedAt: now, UpdatedAt: now}
	if confirmed {
		acc.EmailConfirmedAt = &now
	}
	a.db.accounts[acc.ID] = acc
	return acc, nil
}

func (a *Accounts) GetByEmail(_ context.Context, email string) (model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	for _, acc := range a.db.accounts {
		if acc.Email == email {
			return acc, nil
		}
	}
	return model.Account{}, repository.ErrNotFound
}

// Exists reports whether an account with id is stored.
func (a *Accounts) Exists(id string) bool {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	_, ok := a.db.accounts[id]
	return ok
}

func (a *Accounts) Delete(_ context.Context, id string) error {
	a.db.mu.Lock()
	defer a.db.mu.Unlock()
	if _, ok := a.db.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(a.db.accounts, id)
	for h, t := range a.db.tokens {
		if t.UserID == id {
			delete(a.db.tokens, h)
		}
	}
	return nil
}

// Tokens mirrors repository.TokenRepo.
type Tokens struct{ db *DB }

func (t *Tokens) StoreRefresh(_ context.Context, userID, tokenHash string, exp time.Time) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.tokens[tokenHash] = model.RefreshToken{UserID: userID, TokenHash: tokenHash, ExpiresAt: exp, CreatedAt: t.db.now()}
	return nil
}

func (t *Tokens) ValidateRefresh(_ context.Context, tokenHash string) (string, error) {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	tok, ok := t.db.tokens[tokenHash]
	if !ok || tok.RevokedAt != nil || t.db.now().After(tok.ExpiresAt) {
		return "", repository.ErrNotFound
	}
	return tok.UserID, nil
}

func (t *Tokens) RevokeByHash(_ context.Context, tokenHash string) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if tok, ok := t.db.tokens[tokenHash]; ok && tok.RevokedAt == nil {
		now := t.db.now()
		tok.RevokedAt = &now
		t.db.tokens[tokenHash] = tok
	}
	return nil
}

func (t *Tokens) RevokeAllForUser(_ context.Context, userID string) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	now := t.db.now()
	for h, tok := range t.db.tokens {
		if tok.UserID == userID && tok.RevokedAt == nil {
			tok.RevokedAt = &now
			t.db.tokens[h] = tok
		}
	}
	return nil
}

// Profiles mirrors repository.ProfileRepo.
type Profiles struct{ db *DB }

func (p *Profiles) Upsert(_ context.Context, prof model.Profile) error {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	if err := p.db.fail(OpProfileUpsert); err != nil {
		return err
	}
	now := p.db.now()
	if cur, ok := p.db.profiles[prof.ID]; ok {
		cur.Email, cur.FullName, cur.Role, cur.UpdatedAt = prof.Email, prof.FullName, prof.Role, now
		p.db.profiles[prof.ID] = cur
		return nil
	}
	prof.CreatedAt, prof.UpdatedAt = now, now
	p.db.profiles[prof.ID] = prof
	return nil
}

func (p *Profiles) GetByID(_ context.Context, id string) (model.Profile, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	prof, ok := p.db.profiles[id]
	if !ok {
		return model.Profile{}, repository.ErrNotFound
	}
	return prof, nil
}

func (p *Profiles) List(_ context.Context, role model.Role) ([]model.Profile, error) {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	out := []model.Profile{}
	for _, prof := range p.db.profiles {
		if role == "" || prof.Role == role {
			out = append(out, prof)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (p *Profiles) CountByRole(ctx context.Context, role model.Role) (int, error) {
	l, err := p.List(ctx, role)
	return len(l), err
}

func (p *Profiles) Update(_ context.Context, id string, u model.ProfileUpdate) error {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	prof, ok := p.db.profiles[id]
	if !ok {
		return repository.ErrNotFound
	}
	set := func(dst **string, v *string) {
		if v != nil {
			s := strings.TrimSpace(*v)
			*dst = &s
		}
	}
	if u.FullName != nil {
		prof.FullName = strings.TrimSpace(*u.FullName)
	}
	set(&prof.Phone, u.Phone)
	set(&prof.Address, u.Address)
	set(&prof.CompanyName, u.CompanyName)
	set(&prof.IndustryType, u.IndustryType)
	prof.UpdatedAt = p.db.now()
	p.db.profiles[id] = prof
	return nil
}

func (p *Profiles) DeleteWithRequests(_ context.Context, id string) error {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	if _, ok := p.db.profiles[id]; !ok {
		return repository.ErrNotFound
	}
	for rid, r := range p.db.requests {
		if r.UserID == id {
			delete(p.db.requests, rid)
		}
	}
	delete(p.db.profiles, id)
	delete(p.db.accounts, id)
	return nil
}

// Requests mirrors repository.PickupRequestRepo.
type Requests struct{ db *DB }

func (r *Requests) Create(_ context.Context, req model.PickupRequest) (model.PickupRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail(OpRequestCreate); err != nil {
		return model.PickupRequest{}, err
	}
	for _, cur := range r.db.requests {
		if cur.RequestCode == req.RequestCode {
			return model.PickupRequest{}, repository.ErrConflict
		}
	}
	if req.Status == "" {
		req.Status = model.StatusPending
	}
	req.ID = r.db.nextID()
	req.CreatedAt = r.db.now()
	req.UpdatedAt = req.CreatedAt
	r.db.requests[req.ID] = req
	return req, nil
}

func (r *Requests) GetByID(_ context.Context, id uint64) (model.PickupRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	req, ok := r.db.requests[id]
	if !ok {
		return model.PickupRequest{}, repository.ErrNotFound
	}
	return req, nil
}

func (r *Requests) GetByCodeForUser(_ context.Context, code, userID string) (model.PickupRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, req := range r.db.requests {
		if req.RequestCode == code && req.UserID == userID {
			return req, nil
		}
	}
	return model.PickupRequest{}, repository.ErrNotFound
}

func (r *Requests) ListByUser(_ context.Context, userID string) ([]model.PickupRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []model.PickupRequest{}
	for _, req := range r.db.requests {
		if req.UserID == userID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *Requests) ListWithCustomer(_ context.Context) ([]model.PickupRequestWithCustomer, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []model.PickupRequestWithCustomer{}
	for _, req := range r.db.requests {
		row := model.PickupRequestWithCustomer{PickupRequest: req}
		if p, ok := r.db.profiles[req.UserID]; ok {
			name, email := p.FullName, p.Email
			row.CustomerName, row.CustomerEmail = &name, &email
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *Requests) Count(_ context.Context) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return len(r.db.requests), nil
}

func (r *Requests) TransitionStatus(_ context.Context, id uint64, from, to model.RequestStatus, updatedBy string) (model.PickupRequest, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.fail(OpRequestTransition); err != nil {
		return model.PickupRequest{}, err
	}
	req, ok := r.db.requests[id]
	if !ok {
		return model.PickupRequest{}, repository.ErrNotFound
	}
	if req.Status != from {
		return model.PickupRequest{}, repository.ErrConflict
	}
	req.Status = to
	req.UpdatedAt = r.db.now()
	r.db.requests[id] = req
	r.db.history = append(r.db.history, model.StatusHistoryEntry{
		ID: r.db.nextID(), RequestID: id, Status: to, UpdatedBy: updatedBy, CreatedAt: req.UpdatedAt,
	})
	return req, nil
}

func (r *Requests) History(_ context.Context, requestID uint64) ([]model.StatusHistoryEntry, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := []model.StatusHistoryEntry{}
	for _, h := range r.db.history {
		if h.RequestID == requestID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *Requests) Delete(_ context.Context, id uint64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.requests[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.requests, id)
	return nil
}

// Inventory mirrors repository.InventoryRepo.
type Inventory struct{ db *DB }

func (i *Inventory) Create(_ context.Context, item model.InventoryItem) (model.InventoryItem, error) {
	i.db.mu.Lock()
	defer i.db.mu.Unlock()
	if err := i.db.fail(OpInventoryCreate); err != nil {
		return model.InventoryItem{}, err
	}
	item.ID = i.db.nextID()
	item.CreatedAt = i.db.now()
	item.UpdatedAt = item.CreatedAt
	i.db.items[item.ID] = item
	return item, nil
}

func (i *Inventory) GetByID(_ context.Context, id uint64) (model.InventoryItem, error) {
	i.db.mu.Lock()
	defer i.db.mu.Unlock()
	item, ok := i.db.items[id]
	if !ok {
		return model.InventoryItem{}, repository.ErrNotFound
	}
	return item, nil
}

func (i *Inventory) list(available bool) []model.InventoryItem {
	out := []model.InventoryItem{}
	for _, item := range i.db.items {
		if !available || item.Qty > 0 {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID > out[b].ID })
	return out
}

func (i *Inventory) List(_ context.Context) ([]model.InventoryItem, error) {
	i.db.mu.Lock()
	defer i.db.mu.Unlock()
	return i.list(false), nil
}

func (i *Inventory) ListAvailable(_ context.Context) ([]model.InventoryItem, error) {
	i.db.mu.Lock()
	defer i.db.mu.Unlock()
	return i.list(true), nil
}

func (i *Inventory) CountAvailable(_ context.Context) (int, error) {
	i.db.mu.Lock()
	defer i.db.mu.Unlock()
	return len(i.list(true)), nil
}

func (i *Inventory) UpdatePrice(_ context.Context, id uint64, price decimal.Decimal) error {
	i.db.mu.Lock()
	defer i.db.mu.Unlock()
	item, ok := i.db.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	item.PricePerUnit = price
	item.UpdatedAt = i.db.now()
	i.db.items[id] = item
	return nil
}

func (i *Inventory) Delete(_ context.Context, id uint64) error {
	i.db.mu.Lock()
	defer i.db.mu.Unlock()
	if _, ok := i.db.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(i.db.items, id)
	return nil
}

// Orders mirrors repository.OrderRepo.
type Orders struct{ db *DB }

func (o *Orders) CreateWithStockDecrement(_ context.Context, ord *model.Order) error {
	o.db.mu.Lock()
	defer o.db.mu.Unlock()
	if err := o.db.fail(OpOrderCreate); err != nil {
		return err
	}
	item, ok := o.db.items[ord.InventoryID]
	if !ok || item.Qty < ord.Qty {
		return repository.ErrOutOfStock
	}
	for _, cur := range o.db.orders {
		if cur.OrderCode == ord.OrderCode {
			return repository.ErrConflict
		}
	}
	item.Qty -= ord.Qty
	o.db.items[item.ID] = item
	ord.ID = o.db.nextID()
	ord.CreatedAt = o.db.now()
	o.db.orders[ord.ID] = *ord
	return nil
}

func (o *Orders) details(filter func(model.Order) bool) []model.OrderDetail {
	out := []model.OrderDetail{}
	for _, ord := range o.db.orders {
		if !filter(ord) {
			continue
		}
		d := model.OrderDetail{Order: ord}
		if item, ok := o.db.items[ord.InventoryID]; ok {
			name := item.ItemName
			d.ItemName = &name
		}
		if p, ok := o.db.profiles[ord.CompanyID]; ok {
			name := p.FullName
			if p.CompanyName != nil {
				name = *p.CompanyName
			}
			email := p.Email
			d.CompanyName, d.CompanyEmail = &name, &email
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (o *Orders) ListByCompany(_ context.Context, companyID string) ([]model.OrderDetail, error) {
	o.db.mu.Lock()
	defer o.db.mu.Unlock()
	return o.details(func(ord model.Order) bool { return ord.CompanyID == companyID }), nil
}

func (o *Orders) ListAll(_ context.Context) ([]model.OrderDetail, error) {
	o.db.mu.Lock()
	defer o.db.mu.Unlock()
	return o.details(func(model.Order) bool { return true }), nil
}

func (o *Orders) CountByCompany(ctx context.Context, companyID string) (int, error) {
	l, err := o.ListByCompany(ctx, companyID)
	return len(l), err
}

// Messages mirrors repository.ContactMessageRepo.
type Messages struct{ db *DB }

func (m *Messages) Create(_ context.Context, msg model.ContactMessage) (model.ContactMessage, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	msg.ID = m.db.nextID()
	msg.Status = model.MessageUnread
	msg.CreatedAt = m.db.now()
	m.db.messages[msg.ID] = msg
	return msg, nil
}

func (m *Messages) GetByID(_ context.Context, id uint64) (model.ContactMessage, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	msg, ok := m.db.messages[id]
	if !ok {
		return model.ContactMessage{}, repository.ErrNotFound
	}
	return msg, nil
}

func (m *Messages) List(_ context.Context, status model.MessageStatus) ([]model.ContactMessage, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	out := []model.ContactMessage{}
	for _, msg := range m.db.messages {
		if status == "" || msg.Status == status {
			out = append(out, msg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *Messages) MarkRead(_ context.Context, id uint64, readBy string, at time.Time) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	msg, ok := m.db.messages[id]
	if !ok {
		return repository.ErrNotFound
	}
	if msg.Status != model.MessageUnread {
		return repository.ErrConflict
	}
	msg.Status, msg.ReadAt, msg.ReadBy = model.MessageRead, &at, &readBy
	m.db.messages[id] = msg
	return nil
}

func (m *Messages) Archive(_ context.Context, id uint64) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	msg, ok := m.db.messages[id]
	if !ok {
		return repository.ErrNotFound
	}
	if msg.Status == model.MessageArchived {
		return repository.ErrConflict
	}
	msg.Status = model.MessageArchived
	m.db.messages[id] = msg
	return nil
}

func (m *Messages) Delete(_ context.Context, id uint64) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.messages[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.db.messages, id)
	return nil
}
