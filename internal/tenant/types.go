package tenant

import (
	"time"

	"github.com/wolfeidau/orgd/internal/models"
)

// CreateRequest registers a new organization and its admin.
type CreateRequest struct {
	OrganizationName string `json:"organization_name" validate:"required,min=3,max=100"`
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,min=6,max=72"`
}

// LoginRequest exchanges admin credentials for an access token.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// GetRequest looks up an organization by name.
type GetRequest struct {
	OrganizationName string `json:"organization_name" validate:"required"`
}

// UpdateRequest renames an organization and optionally changes the admin's
// credentials. A nil Email or Password leaves that field untouched.
type UpdateRequest struct {
	OldOrganizationName string  `json:"old_organization_name" validate:"required"`
	NewOrganizationName string  `json:"new_organization_name" validate:"required,min=3,max=100"`
	Email               *string `json:"email" validate:"omitnil,email"`
	Password            *string `json:"password" validate:"omitnil,min=6,max=72"`
}

// DeleteRequest removes an organization.
type DeleteRequest struct {
	OrganizationName string `json:"organization_name" validate:"required"`
}

// OrganizationView is the public view of an organization.
type OrganizationView struct {
	ID               models.ID `json:"id"`
	OrganizationName string    `json:"organization_name"`
	CollectionName   string    `json:"collection_name"`
	AdminEmail       string    `json:"admin_email"`
	CreatedAt        time.Time `json:"created_at"`
}

// LoginResult carries the issued access token.
type LoginResult struct {
	AccessToken      string
	TokenType        string
	AdminID          models.ID
	OrganizationName string
	Email            string
	ExpiresAt        time.Time
}

// UpdateResult summarises what an update changed.
type UpdateResult struct {
	Message          string
	OrganizationName string
	CollectionName   string
	NameChanged      bool
	EmailUpdated     bool
	PasswordUpdated  bool
}

// DeleteResult names the organization and collection that were removed.
type DeleteResult struct {
	Message           string
	OrganizationName  string
	CollectionDeleted string
}
