package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/ewaste-marketplace/internal/model"
)

const profileColumns = "id,email,full_name,role,phone,address,company_name,industry_type,created_at,updated_at"

// ProfileRepo reads and writes the 'profiles' table.
type ProfileRepo struct{ DB *sqlx.DB }

func NewProfileRepo(db *sqlx.DB) *ProfileRepo { return &ProfileRepo{DB: db} }

// Upsert inserts the profile or, when a row with the same id exists,
// overwrites its email, name and role.
func (r *ProfileRepo) Upsert(ctx context.Context, p model.Profile) error {
	_, err := r.DB.NamedExecContext(ctx, `
		INSERT INTO profiles (id, email, full_name, role, phone, address, company_name, industry_type)
		VALUES (:id, :email, :full_name, :role, :phone, :address, :company_name, :industry_type)
		ON DUPLICATE KEY UPDATE email=VALUES(email), full_name=VALUES(full_name), role=VALUES(role)`, p)
	return err
}

// GetByID returns the profile for a principal.
func (r *ProfileRepo) GetByID(ctx context.Context, id string) (model.Profile, error) {
	var p model.Profile
	err := r.DB.GetContext(ctx, &p, "SELECT "+profileColumns+" FROM profiles WHERE id=? LIMIT 1", id)
	return p, notFound(err)
}

// List returns profiles newest first, optionally restricted to one role.
func (r *ProfileRepo) List(ctx context.Context, role model.Role) ([]model.Profile, error) {
	q := "SELECT " + profileColumns + " FROM profiles"
	var args []any
	if role != "" {
		q += " WHERE role=?"
		args = append(args, role)
	}
	q += " ORDER BY created_at DESC"
	out := []model.Profile{}
	err := r.DB.SelectContext(ctx, &out, q, args...)
	return out, err
}

// CountByRole counts profiles with the given role.
func (r *ProfileRepo) CountByRole(ctx context.Context, role model.Role) (int, error) {
	var n int
	err := r.DB.GetContext(ctx, &n, "SELECT COUNT(*) FROM profiles WHERE role=?", role)
	return n, err
}

// Update applies the non-nil fields of u.  Role and email are never
// touched.
func (r *ProfileRepo) Update(ctx context.Context, id string, u model.ProfileUpdate) error {
	var (
		sets []string
		args []any
	)
	add := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+"=?")
			args = append(args, strings.TrimSpace(*v))
		}
	}
	add("full_name", u.FullName)
	add("phone", u.Phone)
	add("address", u.Address)
	add("company_name", u.CompanyName)
	add("industry_type", u.IndustryType)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	return requireAffected(r.DB.ExecContext(ctx,
		"UPDATE profiles SET "+strings.Join(sets, ", ")+" WHERE id=?", args...))
}

// DeleteWithRequests removes a participant: their pickup requests first,
// then the profile and the identity account, in one transaction.  Orders,
// inventory and history rows are left untouched.
func (r *ProfileRepo) DeleteWithRequests(ctx context.Context, id string) (err error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM pickup_requests WHERE user_id=?", id); err != nil {
		return err
	}
	if err = requireAffected(tx.ExecContext(ctx, "DELETE FROM profiles WHERE id=?", id)); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM auth_accounts WHERE id=?", id); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
