package store

import (
	"context"
	"errors"

	"github.com/wolfeidau/orgd/internal/models"
)

// Sentinel errors for tenant store operations
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
	ErrCollectionNameTaken       = errors.New("collection name already in use")
	ErrAdminNotFound             = errors.New("admin not found")
	ErrEmailAlreadyExists        = errors.New("admin email already exists")
	ErrCollectionExists          = errors.New("collection already exists")
	ErrCollectionNotFound        = errors.New("collection not found")
	ErrUnavailable               = errors.New("store unavailable")
)

// TenantStore owns the organization and admin records.
// Every method is atomic per call; multi-record workflows are coordinated by the caller.
type TenantStore interface {
	// FindOrganizationByName looks up an organization by its exact (case-sensitive) name.
	// Returns ErrOrganizationNotFound if there is no match.
	FindOrganizationByName(ctx context.Context, name string) (*models.Organization, error)

	// FindOrganizationByCollection looks up the organization owning a collection name.
	// Returns ErrOrganizationNotFound if there is no match.
	FindOrganizationByCollection(ctx context.Context, collectionName string) (*models.Organization, error)

	// GetOrganization retrieves an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	GetOrganization(ctx context.Context, id models.ID) (*models.Organization, error)

	// FindAdminByEmail looks up an admin by email.
	// Returns ErrAdminNotFound if there is no match.
	FindAdminByEmail(ctx context.Context, email string) (*models.Admin, error)

	// GetAdmin retrieves an admin by ID.
	// Returns ErrAdminNotFound if the admin doesn't exist.
	GetAdmin(ctx context.Context, id models.ID) (*models.Admin, error)

	// CreateOrganizationAndAdmin writes the organization (with no admin link), then the
	// admin referencing it, then patches the organization's AdminUserID.
	// IDs and timestamps are assigned into org and admin.
	// Returns ErrOrganizationAlreadyExists, ErrCollectionNameTaken or ErrEmailAlreadyExists
	// when a uniqueness constraint rejects the first write.
	CreateOrganizationAndAdmin(ctx context.Context, org *models.Organization, admin *models.Admin) error

	// UpdateOrganization applies a field-level patch and refreshes UpdatedAt.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	UpdateOrganization(ctx context.Context, id models.ID, update models.OrganizationUpdate) error

	// UpdateAdmin applies a field-level patch and refreshes UpdatedAt.
	// Returns ErrAdminNotFound if the admin doesn't exist.
	UpdateAdmin(ctx context.Context, id models.ID, update models.AdminUpdate) error

	// DeleteOrganization deletes an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	DeleteOrganization(ctx context.Context, id models.ID) error

	// DeleteAdmin deletes an admin by ID.
	// Returns ErrAdminNotFound if the admin doesn't exist.
	DeleteAdmin(ctx context.Context, id models.ID) error
}

// CollectionStore manages the per-tenant data collections.
type CollectionStore interface {
	// CreateCollection creates an empty collection with a created_at index.
	// Returns ErrCollectionExists if it already exists.
	CreateCollection(ctx context.Context, name string) error

	// DropCollection removes a collection and all its documents.
	// Dropping a collection that does not exist is not an error.
	DropCollection(ctx context.Context, name string) error

	// MigrateCollection creates newName, copies every document from oldName verbatim
	// and then drops oldName. If the copy fails oldName is left untouched.
	// Returns ErrCollectionNotFound if oldName is missing and ErrCollectionExists if
	// newName is already present.
	MigrateCollection(ctx context.Context, oldName, newName string) (int, error)

	// CollectionExists reports whether the named collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// InsertDocument adds a document to a collection, assigning an ID and CreatedAt
	// when they are unset. Returns ErrCollectionNotFound if the collection is missing.
	InsertDocument(ctx context.Context, name string, doc *models.Document) error

	// ListDocuments returns every document in a collection ordered by creation time.
	// Returns ErrCollectionNotFound if the collection is missing.
	ListDocuments(ctx context.Context, name string) ([]*models.Document, error)
}

// Pinger reports whether the underlying store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store is the full storage surface used by the service.
type Store interface {
	TenantStore
	CollectionStore
	Pinger

	Close(ctx context.Context) error
}
