package models

import (
	"time"
)

// Admin is the single administrator account owning an organization.
type Admin struct {
	ID             ID
	Email          string // globally unique across all admins
	PasswordHash   string // bcrypt digest, never the plaintext
	OrganizationID ID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AdminUpdate is a field-level patch for an admin.
type AdminUpdate struct {
	Email        *string
	PasswordHash *string
}

// IsEmpty returns true if the patch changes nothing but the timestamp.
func (u AdminUpdate) IsEmpty() bool {
	return u.Email == nil && u.PasswordHash == nil
}
