package models

import (
	"time"
)

// Organization represents a tenant in the system.
// Each organization has exactly one admin and one dedicated data collection.
type Organization struct {
	ID             ID
	Name           string // globally unique, case-sensitive
	CollectionName string // derived from Name, globally unique
	AdminUserID    ID     // zero until the admin back-link is written
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrganizationUpdate is a field-level patch for an organization.
// Nil fields are left untouched; UpdatedAt is always refreshed.
type OrganizationUpdate struct {
	Name           *string
	CollectionName *string
	AdminUserID    *ID
}

// IsEmpty returns true if the patch changes nothing but the timestamp.
func (u OrganizationUpdate) IsEmpty() bool {
	return u.Name == nil && u.CollectionName == nil && u.AdminUserID == nil
}
