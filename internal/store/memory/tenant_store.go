package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/orgd/internal/models"
	"github.com/wolfeidau/orgd/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store using in-memory storage.
// This implementation is for testing and local development - data is lost on restart.
type Store struct {
	mu sync.RWMutex

	organizations map[models.ID]*models.Organization // org_id -> Organization
	admins        map[models.ID]*models.Admin        // admin_id -> Admin
	collections   map[string]*collection             // collection_name -> documents

	now func() time.Time
}

type collection struct {
	docs []*models.Document
}

// NewStore creates a new in-memory tenant store.
func NewStore() *Store {
	return &Store{
		organizations: make(map[models.ID]*models.Organization),
		admins:        make(map[models.ID]*models.Admin),
		collections:   make(map[string]*collection),
		now:           time.Now,
	}
}

func newID() (models.ID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return models.ID(id.String()), nil
}

// FindOrganizationByName looks up an organization by exact name.
func (s *Store) FindOrganizationByName(ctx context.Context, name string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, org := range s.organizations {
		if org.Name == name {
			clone := *org
			return &clone, nil
		}
	}

	return nil, store.ErrOrganizationNotFound
}

// FindOrganizationByCollection looks up the organization owning a collection.
func (s *Store) FindOrganizationByCollection(ctx context.Context, collectionName string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, org := range s.organizations {
		if org.CollectionName == collectionName {
			clone := *org
			return &clone, nil
		}
	}

	return nil, store.ErrOrganizationNotFound
}

// GetOrganization retrieves an organization by ID.
func (s *Store) GetOrganization(ctx context.Context, id models.ID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.organizations[id]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	// Clone to avoid external modifications
	clone := *org
	return &clone, nil
}

// FindAdminByEmail looks up an admin by email.
func (s *Store) FindAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, admin := range s.admins {
		if admin.Email == email {
			clone := *admin
			return &clone, nil
		}
	}

	return nil, store.ErrAdminNotFound
}

// GetAdmin retrieves an admin by ID.
func (s *Store) GetAdmin(ctx context.Context, id models.ID) (*models.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	admin, exists := s.admins[id]
	if !exists {
		return nil, store.ErrAdminNotFound
	}

	clone := *admin
	return &clone, nil
}

// CreateOrganizationAndAdmin performs the organization insert, admin insert and
// back-link patch while holding the write lock.
func (s *Store) CreateOrganizationAndAdmin(ctx context.Context, org *models.Organization, admin *models.Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Emulate the unique indexes a real backend enforces
	for _, existing := range s.organizations {
		if existing.Name == org.Name {
			return store.ErrOrganizationAlreadyExists
		}
		if existing.CollectionName == org.CollectionName {
			return store.ErrCollectionNameTaken
		}
	}
	for _, existing := range s.admins {
		if existing.Email == admin.Email {
			return store.ErrEmailAlreadyExists
		}
	}

	orgID, err := newID()
	if err != nil {
		return err
	}
	adminID, err := newID()
	if err != nil {
		return err
	}

	now := s.now().UTC()

	org.ID = orgID
	org.AdminUserID = ""
	org.CreatedAt = now
	org.UpdatedAt = now
	orgClone := *org
	s.organizations[orgID] = &orgClone

	admin.ID = adminID
	admin.OrganizationID = orgID
	admin.CreatedAt = now
	admin.UpdatedAt = now
	adminClone := *admin
	s.admins[adminID] = &adminClone

	orgClone.AdminUserID = adminID
	org.AdminUserID = adminID

	return nil
}

// UpdateOrganization applies a field-level patch to an organization.
func (s *Store) UpdateOrganization(ctx context.Context, id models.ID, update models.OrganizationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	org, exists := s.organizations[id]
	if !exists {
		return store.ErrOrganizationNotFound
	}

	for otherID, other := range s.organizations {
		if otherID == id {
			continue
		}
		if update.Name != nil && other.Name == *update.Name {
			return store.ErrOrganizationAlreadyExists
		}
		if update.CollectionName != nil && other.CollectionName == *update.CollectionName {
			return store.ErrCollectionNameTaken
		}
	}

	clone := *org
	if update.Name != nil {
		clone.Name = *update.Name
	}
	if update.CollectionName != nil {
		clone.CollectionName = *update.CollectionName
	}
	if update.AdminUserID != nil {
		clone.AdminUserID = *update.AdminUserID
	}
	clone.UpdatedAt = s.now().UTC()
	s.organizations[id] = &clone

	return nil
}

// UpdateAdmin applies a field-level patch to an admin.
func (s *Store) UpdateAdmin(ctx context.Context, id models.ID, update models.AdminUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	admin, exists := s.admins[id]
	if !exists {
		return store.ErrAdminNotFound
	}

	if update.Email != nil {
		for otherID, other := range s.admins {
			if otherID != id && other.Email == *update.Email {
				return store.ErrEmailAlreadyExists
			}
		}
	}

	clone := *admin
	if update.Email != nil {
		clone.Email = *update.Email
	}
	if update.PasswordHash != nil {
		clone.PasswordHash = *update.PasswordHash
	}
	clone.UpdatedAt = s.now().UTC()
	s.admins[id] = &clone

	return nil
}

// DeleteOrganization deletes an organization by ID.
func (s *Store) DeleteOrganization(ctx context.Context, id models.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.organizations[id]; !exists {
		return store.ErrOrganizationNotFound
	}

	delete(s.organizations, id)

	return nil
}

// DeleteAdmin deletes an admin by ID.
func (s *Store) DeleteAdmin(ctx context.Context, id models.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.admins[id]; !exists {
		return store.ErrAdminNotFound
	}

	delete(s.admins, id)

	return nil
}

// CreateCollection creates an empty tenant collection.
func (s *Store) CreateCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.collections[name]; exists {
		return store.ErrCollectionExists
	}

	s.collections[name] = &collection{}

	return nil
}

// DropCollection removes a tenant collection if present.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, name)

	return nil
}

// MigrateCollection copies every document from oldName into a new collection and
// drops oldName. The whole operation happens under the write lock so it is never
// observed half done.
func (s *Store) MigrateCollection(ctx context.Context, oldName, newName string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, exists := s.collections[oldName]
	if !exists {
		return 0, store.ErrCollectionNotFound
	}
	if _, exists := s.collections[newName]; exists {
		return 0, store.ErrCollectionExists
	}

	dst := &collection{docs: make([]*models.Document, 0, len(src.docs))}
	for _, doc := range src.docs {
		dst.docs = append(dst.docs, cloneDocument(doc))
	}

	s.collections[newName] = dst
	delete(s.collections, oldName)

	return len(dst.docs), nil
}

// CollectionExists reports whether a collection exists.
func (s *Store) CollectionExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.collections[name]
	return exists, nil
}

// InsertDocument appends a document to a collection.
func (s *Store) InsertDocument(ctx context.Context, name string, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, exists := s.collections[name]
	if !exists {
		return store.ErrCollectionNotFound
	}

	if doc.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		doc.ID = id.String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now().UTC()
	}

	coll.docs = append(coll.docs, cloneDocument(doc))

	return nil
}

// ListDocuments returns copies of every document in a collection.
func (s *Store) ListDocuments(ctx context.Context, name string) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, exists := s.collections[name]
	if !exists {
		return nil, store.ErrCollectionNotFound
	}

	result := make([]*models.Document, 0, len(coll.docs))
	for _, doc := range coll.docs {
		result = append(result, cloneDocument(doc))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	return result, nil
}

// Ping always succeeds for the in-memory store.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close(ctx context.Context) error {
	return nil
}

func cloneDocument(doc *models.Document) *models.Document {
	clone := *doc
	clone.Data = append([]byte(nil), doc.Data...)
	return &clone
}
