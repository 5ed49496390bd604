package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/ewaste-marketplace/internal/model"
)

const requestColumns = "id,request_code,user_id,ewaste_type,qty,description,pickup_address,pickup_date,pickup_time,image_url,status,created_at,updated_at"

// PickupRequestRepo stores customer pickup requests and, together with
// them, the append-only status history.
type PickupRequestRepo struct{ DB *sqlx.DB }

func NewPickupRequestRepo(db *sqlx.DB) *PickupRequestRepo { return &PickupRequestRepo{DB: db} }

// Create inserts a request and returns the stored row with its generated
// id and timestamps.  A request_code collision is ErrConflict.
func (r *PickupRequestRepo) Create(ctx context.Context, req model.PickupRequest) (model.PickupRequest, error) {
	if req.Status == "" {
		req.Status = model.StatusPending
	}
	res, err := r.DB.NamedExecContext(ctx, `
		INSERT INTO pickup_requests
		  (request_code, user_id, ewaste_type, qty, description, pickup_address, pickup_date, pickup_time, image_url, status)
		VALUES
		  (:request_code, :user_id, :ewaste_type, :qty, :description, :pickup_address, :pickup_date, :pickup_time, :image_url, :status)`, req)
	if err != nil {
		if isDuplicate(err) {
			return model.PickupRequest{}, ErrConflict
		}
		return model.PickupRequest{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.PickupRequest{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByID loads one request.
func (r *PickupRequestRepo) GetByID(ctx context.Context, id uint64) (model.PickupRequest, error) {
	var pr model.PickupRequest
	err := r.DB.GetContext(ctx, &pr, "SELECT "+requestColumns+" FROM pickup_requests WHERE id=?", id)
	return pr, notFound(err)
}

// GetByCodeForUser loads a request by its human-readable code, restricted
// to the owning customer.  Someone else's code is ErrNotFound.
func (r *PickupRequestRepo) GetByCodeForUser(ctx context.Context, code, userID string) (model.PickupRequest, error) {
	var pr model.PickupRequest
	err := r.DB.GetContext(ctx, &pr,
		"SELECT "+requestColumns+" FROM pickup_requests WHERE request_code=? AND user_id=?", code, userID)
	return pr, notFound(err)
}

// ListByUser returns a customer's requests newest first.
func (r *PickupRequestRepo) ListByUser(ctx context.Context, userID string) ([]model.PickupRequest, error) {
	out := []model.PickupRequest{}
	err := r.DB.SelectContext(ctx, &out,
		"SELECT "+requestColumns+" FROM pickup_requests WHERE user_id=? ORDER BY created_at DESC, id DESC", userID)
	return out, err
}

// ListWithCustomer returns every request joined with the submitting
// customer's name and email, newest first.
func (r *PickupRequestRepo) ListWithCustomer(ctx context.Context) ([]model.PickupRequestWithCustomer, error) {
	out := []model.PickupRequestWithCustomer{}
	err := r.DB.SelectContext(ctx, &out, `
		SELECT pr.id, pr.request_code, pr.user_id, pr.ewaste_type, pr.qty, pr.description,
		       pr.pickup_address, pr.pickup_date, pr.pickup_time, pr.image_url, pr.status,
		       pr.created_at, pr.updated_at,
		       p.full_name AS customer_name, p.email AS customer_email
		FROM pickup_requests pr
		LEFT JOIN profiles p ON p.id = pr.user_id
		ORDER BY pr.created_at DESC, pr.id DESC`)
	return out, err
}

// Count returns the total number of requests.
func (r *PickupRequestRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.DB.GetContext(ctx, &n, "SELECT COUNT(*) FROM pickup_requests")
	return n, err
}

// TransitionStatus moves a request from one status to another and appends
// the matching history row in a single transaction.  The update only
// applies while the row still holds from; otherwise nothing is written
// and ErrConflict is returned.  A missing request is ErrNotFound.
func (r *PickupRequestRepo) TransitionStatus(ctx context.Context, id uint64, from, to model.RequestStatus, updatedBy string) (model.PickupRequest, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return model.PickupRequest{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		"UPDATE pickup_requests SET status=? WHERE id=? AND status=?", to, id, from)
	if err != nil {
		return model.PickupRequest{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.PickupRequest{}, err
	}
	if n == 0 {
		var exists int
		if err := tx.GetContext(ctx, &exists, "SELECT COUNT(*) FROM pickup_requests WHERE id=?", id); err != nil {
			return model.PickupRequest{}, err
		}
		if exists == 0 {
			return model.PickupRequest{}, ErrNotFound
		}
		return model.PickupRequest{}, ErrConflict
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO request_status_history (request_id, status, updated_by) VALUES (?,?,?)",
		id, to, updatedBy); err != nil {
		return model.PickupRequest{}, err
	}

	var pr model.PickupRequest
	if err := tx.GetContext(ctx, &pr, "SELECT "+requestColumns+" FROM pickup_requests WHERE id=?", id); err != nil {
		return model.PickupRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.PickupRequest{}, err
	}
	committed = true
	return pr, nil
}

// History returns the status log of a request in insertion order.
func (r *PickupRequestRepo) History(ctx context.Context, requestID uint64) ([]model.StatusHistoryEntry, error) {
	out := []model.StatusHistoryEntry{}
	err := r.DB.SelectContext(ctx, &out,
		"SELECT id, request_id, status, updated_by, created_at FROM request_status_history WHERE request_id=? ORDER BY id",
		requestID)
	return out, err
}

// Delete removes a request regardless of its state.  Inventory items that
// reference it and its history rows are kept.
func (r *PickupRequestRepo) Delete(ctx context.Context, id uint64) error {
	return requireAffected(r.DB.ExecContext(ctx, "DELETE FROM pickup_requests WHERE id=?", id))
}
