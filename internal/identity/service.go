// Package identity is the identity provider: accounts with bcrypt
// passwords, short-lived JWT access tokens and rotating refresh tokens
// stored only as hashes.  Every principal has a Profile with the same id;
// the profile's role is the only source of authorisation.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/ewaste-marketplace/internal/model"
	"github.com/iliyamo/ewaste-marketplace/internal/repository"
	"github.com/iliyamo/ewaste-marketplace/internal/utils"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRefresh     = errors.New("invalid refresh token")
	ErrEmailExists        = repository.ErrEmailExists
	// ErrProfileCreate reports that the account was created but its profile
	// could not be written.  The account has been removed again.
	ErrProfileCreate = errors.New("profile creation failed")
)

// AccountStore persists identity principals.
type AccountStore interface {
	Create(ctx context.Context, email, password string, cost int, confirmed bool) (model.Account, error)
	GetByEmail(ctx context.Context, email string) (model.Account, error)
	Delete(ctx context.Context, id string) error
}

// ProfileStore is the part of the profile table identity needs.
type ProfileStore interface {
	Upsert(ctx context.Context, p model.Profile) error
	GetByID(ctx context.Context, id string) (model.Profile, error)
}

// TokenStore persists refresh token hashes.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (string, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

// Config carries the token and hashing parameters.
type Config struct {
	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int
}

// Service implements sign-up, sign-in, refresh, sign-out and privileged
// user creation.
type Service struct {
	accounts AccountStore
	profiles ProfileStore
	tokens   TokenStore
	cfg      Config
	log      *zap.Logger
}

func NewService(accounts AccountStore, profiles ProfileStore, tokens TokenStore, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{accounts: accounts, profiles: profiles, tokens: tokens, cfg: cfg, log: log}
}

// Session is what a successful sign-in returns to the client.
type Session struct {
	Profile model.Profile
	Access  utils.AccessToken
	Refresh utils.RefreshToken
}

// SignUpInput is the self-registration form.
type SignUpInput struct {
	Email        string
	Password     string
	FullName     string
	Role         model.Role
	Phone        string
	Address      string
	CompanyName  string
	IndustryType string
}

// SignUp registers a customer or company and signs it in.  Administrators
// cannot self-register.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (Session, error) {
	in.Email = normalizeEmail(in.Email)
	if in.Email == "" || in.Password == "" {
		return Session{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	if in.Role == "" {
		in.Role = model.RoleCustomer
	}
	if in.Role != model.RoleCustomer && in.Role != model.RoleCompany {
		return Session{}, fmt.Errorf("%w: role must be customer or company", ErrInvalidInput)
	}
	p := model.Profile{
		Email:        in.Email,
		FullName:     strings.TrimSpace(in.FullName),
		Role:         in.Role,
		Phone:        optional(in.Phone),
		Address:      optional(in.Address),
		CompanyName:  optional(in.CompanyName),
		IndustryType: optional(in.IndustryType),
	}
	prof, err := s.createWithProfile(ctx, in.Email, in.Password, false, p)
	if err != nil {
		return Session{}, err
	}
	return s.issue(ctx, prof)
}

// CreateUserInput is the privileged user creation form.
type CreateUserInput struct {
	Email    string
	Password string
	FullName string
	Role     model.Role
}

// CreateUser creates an account with the email pre-confirmed and upserts
// its profile.  If the profile cannot be written the account is deleted
// again and ErrProfileCreate is returned.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (model.Profile, error) {
	in.Email = normalizeEmail(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Email == "" || in.Password == "" || in.FullName == "" || in.Role == "" {
		return model.Profile{}, fmt.Errorf("%w: missing required fields", ErrInvalidInput)
	}
	if !in.Role.Valid() {
		return model.Profile{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
	}
	return s.createWithProfile(ctx, in.Email, in.Password, true, model.Profile{
		Email:    in.Email,
		FullName: in.FullName,
		Role:     in.Role,
	})
}

func (s *Service) createWithProfile(ctx context.Context, email, password string, confirmed bool, p model.Profile) (model.Profile, error) {
	acc, err := s.accounts.Create(ctx, email, password, s.cfg.BcryptCost, confirmed)
	if err != nil {
		return model.Profile{}, err
	}
	p.ID = acc.ID
	if err := s.profiles.Upsert(ctx, p); err != nil {
		if derr := s.accounts.Delete(ctx, acc.ID); derr != nil {
			s.log.Error("identity: compensating account delete failed",
				zap.String("user_id", acc.ID), zap.Error(derr))
		}
		return model.Profile{}, fmt.Errorf("%w: %v", ErrProfileCreate, err)
	}
	prof, err := s.profiles.GetByID(ctx, acc.ID)
	if err != nil {
		// The row exists; fall back to what was written.
		return p, nil
	}
	return prof, nil
}

// SignIn verifies email and password and issues a new token pair.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if !utils.VerifyPassword(acc.PasswordHash, password) {
		return Session{}, ErrInvalidCredentials
	}
	prof, err := s.profiles.GetByID(ctx, acc.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	return s.issue(ctx, prof)
}

// Refresh validates a refresh token, revokes it and issues a new pair.
func (s *Service) Refresh(ctx context.Context, raw string) (Session, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Session{}, fmt.Errorf("%w: refresh_token required", ErrInvalidInput)
	}
	hash := utils.HashRefreshRaw(raw)
	userID, err := s.tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, ErrInvalidRefresh
		}
		return Session{}, err
	}
	if err := s.tokens.RevokeByHash(ctx, hash); err != nil {
		return Session{}, err
	}
	prof, err := s.profiles.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Session{}, ErrInvalidRefresh
		}
		return Session{}, err
	}
	return s.issue(ctx, prof)
}

// SignOut revokes one refresh token when raw is given, otherwise every
// token of userID.
func (s *Service) SignOut(ctx context.Context, userID, raw string) error {
	raw = strings.TrimSpace(raw)
	switch {
	case raw != "":
		hash := utils.HashRefreshRaw(raw)
		if _, err := s.tokens.ValidateRefresh(ctx, hash); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return err
		}
		return s.tokens.RevokeByHash(ctx, hash)
	case userID != "":
		return s.tokens.RevokeAllForUser(ctx, userID)
	}
	return fmt.Errorf("%w: provide Authorization header or refresh_token", ErrInvalidInput)
}

// ResolveProfile returns the profile of an authenticated principal.
func (s *Service) ResolveProfile(ctx context.Context, userID string) (model.Profile, error) {
	return s.profiles.GetByID(ctx, userID)
}

// ParseAccessToken returns the principal id of a valid access token.
func (s *Service) ParseAccessToken(raw string) (string, error) {
	return utils.ParseAccessToken(s.cfg.JWTSecret, raw)
}

func (s *Service) issue(ctx context.Context, prof model.Profile) (Session, error) {
	access, err := utils.NewAccessToken(s.cfg.JWTSecret, prof.ID, s.cfg.AccessTTLMin)
	if err != nil {
		return Session{}, fmt.Errorf("issue access: %w", err)
	}
	refresh, err := utils.NewRefreshToken(s.cfg.RefreshTTLDays)
	if err != nil {
		return Session{}, fmt.Errorf("issue refresh: %w", err)
	}
	if err := s.tokens.StoreRefresh(ctx, prof.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return Session{}, fmt.Errorf("save refresh: %w", err)
	}
	return Session{Profile: prof, Access: access, Refresh: refresh}, nil
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
