package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/ewaste-marketplace/internal/model"
	"github.com/iliyamo/ewaste-marketplace/internal/utils"
)

const accountColumns = "id,email,password_hash,email_confirmed_at,created_at,updated_at"

// AccountRepo persists identity principals in 'auth_accounts'.
type AccountRepo struct{ DB *sqlx.DB }

func NewAccountRepo(db *sqlx.DB) *AccountRepo { return &AccountRepo{DB: db} }

// Create hashes password, inserts the account under a fresh UUID and
// returns it.  confirmed pre-confirms the email address.
func (r *AccountRepo) Create(ctx context.Context, email, password string, cost int, confirmed bool) (model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return model.Account{}, err
	}
	acc := model.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
	}
	if confirmed {
		now := time.Now().UTC()
		acc.EmailConfirmedAt = &now
	}
	_, err = r.DB.ExecContext(ctx,
		"INSERT INTO auth_accounts (id, email, password_hash, email_confirmed_at) VALUES (?,?,?,?)",
		acc.ID, acc.Email, acc.PasswordHash, acc.EmailConfirmedAt)
	if err != nil {
		if isDuplicate(err) {
			return model.Account{}, ErrEmailExists
		}
		return model.Account{}, err
	}
	return acc, nil
}

// GetByEmail fetches an account by normalized email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var a model.Account
	err := r.DB.GetContext(ctx, &a,
		"SELECT "+accountColumns+" FROM auth_accounts WHERE email=? LIMIT 1", email)
	return a, notFound(err)
}

// Delete removes an account.  Its refresh tokens go with it (FK cascade).
func (r *AccountRepo) Delete(ctx context.Context, id string) error {
	return requireAffected(r.DB.ExecContext(ctx, "DELETE FROM auth_accounts WHERE id=?", id))
}
