package model

import "time"

// Role is the closed set of participant kinds.  It is read from the
// profile row on every request, never from a token claim.
type Role string

const (
    RoleCustomer Role = "customer"
    RoleCompany  Role = "company"
    RoleAdmin    Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
    switch r {
    case RoleCustomer, RoleCompany, RoleAdmin:
        return true
    }
    return false
}

// Profile is the application-level record of a participant (`profiles`
// table).  ID equals the identity principal id.  Role and Email are fixed
// at creation; the remaining contact fields are editable by the owner.
type Profile struct {
    ID           string    `db:"id" json:"id"`
    Email        string    `db:"email" json:"email"`
    FullName     string    `db:"full_name" json:"full_name"`
    Role         Role      `db:"role" json:"role"`
    Phone        *string   `db:"phone" json:"phone,omitempty"`
    Address      *string   `db:"address" json:"address,omitempty"`
    CompanyName  *string   `db:"company_name" json:"company_name,omitempty"`
    IndustryType *string   `db:"industry_type" json:"industry_type,omitempty"`
    CreatedAt    time.Time `db:"created_at" json:"created_at"`
    UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ProfileUpdate carries the editable profile fields.  Nil pointers leave
// the stored value unchanged.
type ProfileUpdate struct {
    FullName     *string `json:"full_name"`
    Phone        *string `json:"phone"`
    Address      *string `json:"address"`
    CompanyName  *string `json:"company_name"`
    IndustryType *string `json:"industry_type"`
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
    return u.FullName == nil && u.Phone == nil && u.Address == nil && u.CompanyName == nil && u.IndustryType == nil
}
