package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/ewaste-marketplace/internal/model"
)

const messageColumns = "id,name,email,phone,message,status,read_at,read_by,created_at"

// ContactMessageRepo is the admin inbox behind the public contact form.
type ContactMessageRepo struct{ DB *sqlx.DB }

func NewContactMessageRepo(db *sqlx.DB) *ContactMessageRepo { return &ContactMessageRepo{DB: db} }

// Create stores a new unread message.
func (r *ContactMessageRepo) Create(ctx context.Context, m model.ContactMessage) (model.ContactMessage, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO contact_messages (name, email, phone, message, status) VALUES (?,?,?,?,?)",
		m.Name, m.Email, m.Phone, m.Message, model.MessageUnread)
	if err != nil {
		return model.ContactMessage{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.ContactMessage{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByID loads one message.
func (r *ContactMessageRepo) GetByID(ctx context.Context, id uint64) (model.ContactMessage, error) {
	var m model.ContactMessage
	err := r.DB.GetContext(ctx, &m, "SELECT "+messageColumns+" FROM contact_messages WHERE id=?", id)
	return m, notFound(err)
}

// List returns messages newest first.  An empty status returns all.
func (r *ContactMessageRepo) List(ctx context.Context, status model.MessageStatus) ([]model.ContactMessage, error) {
	q := "SELECT " + messageColumns + " FROM contact_messages"
	var args []any
	if status != "" {
		q += " WHERE status=?"
		args = append(args, status)
	}
	q += " ORDER BY created_at DESC, id DESC"
	out := []model.ContactMessage{}
	err := r.DB.SelectContext(ctx, &out, q, args...)
	return out, err
}

// MarkRead moves an unread message to read and records who read it.
// A message that is not unread any more is ErrConflict.
func (r *ContactMessageRepo) MarkRead(ctx context.Context, id uint64, readBy string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE contact_messages SET status=?, read_at=?, read_by=? WHERE id=? AND status=?",
		model.MessageRead, at, readBy, id, model.MessageUnread)
	return r.conditional(ctx, id, res, err)
}

// Archive moves an unread or read message to archived.
func (r *ContactMessageRepo) Archive(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE contact_messages SET status=? WHERE id=? AND status IN (?,?)",
		model.MessageArchived, id, model.MessageUnread, model.MessageRead)
	return r.conditional(ctx, id, res, err)
}

// Delete removes a message.
func (r *ContactMessageRepo) Delete(ctx context.Context, id uint64) error {
	return requireAffected(r.DB.ExecContext(ctx, "DELETE FROM contact_messages WHERE id=?", id))
}

// conditional distinguishes a missing row from one in the wrong state
// after a guarded update touched nothing.
func (r *ContactMessageRepo) conditional(ctx context.Context, id uint64, res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrConflict
}
