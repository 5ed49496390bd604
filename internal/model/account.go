package model

import "time"

// Account is an identity principal as stored in the `auth_accounts`
// table.  The id doubles as the primary key of the matching Profile.
// The password is never stored, only its bcrypt hash.
//
// Fields:
//  ID               – UUID of the principal.
//  Email            – unique, lower-cased email address.
//  PasswordHash     – bcrypt hash.
//  EmailConfirmedAt – set when the address is confirmed (or pre-confirmed
//                     by an administrator).
type Account struct {
    ID               string     `db:"id"`
    Email            string     `db:"email"`
    PasswordHash     string     `db:"password_hash"`
    EmailConfirmedAt *time.Time `db:"email_confirmed_at"`
    CreatedAt        time.Time  `db:"created_at"`
    UpdatedAt        time.Time  `db:"updated_at"`
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA‑256 hash of the token value is persisted.
type RefreshToken struct {
    ID        uint64     `db:"id"`
    UserID    string     `db:"user_id"`
    TokenHash string     `db:"token_hash"`
    ExpiresAt time.Time  `db:"expires_at"`
    RevokedAt *time.Time `db:"revoked_at"`
    CreatedAt time.Time  `db:"created_at"`
}
