package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/orgd/internal/auth"
	"github.com/wolfeidau/orgd/internal/models"
	"github.com/wolfeidau/orgd/internal/store"
	"github.com/wolfeidau/orgd/internal/telemetry"
	"go.opentelemetry.io/otel/metric"
)

const (
	// MissingAdminEmail is shown by Get when an organization has no admin record.
	MissingAdminEmail = "N/A"

	tokenTypeBearer = "bearer"
)

// Service runs the organization lifecycle: create, login, get, update and delete.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	store    store.Store
	hasher   *auth.PasswordHasher
	tokens   *auth.TokenIssuer
	metrics  *telemetry.Metrics
	validate *validator.Validate
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics replaces the global metric instruments.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock replaces the clock used to time migrations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates the lifecycle service.
func NewService(st store.Store, hasher *auth.PasswordHasher, tokens *auth.TokenIssuer, opts ...Option) *Service {
	s := &Service{
		store:    st,
		hasher:   hasher,
		tokens:   tokens,
		metrics:  telemetry.GetMetrics(),
		validate: newValidator(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers an organization, its admin and its data collection. Every
// uniqueness check runs before the first write.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*OrganizationView, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, validationError(err)
	}

	collectionName, err := CollectionName(req.OrganizationName)
	if err != nil {
		return nil, err
	}

	if err := s.ensureNameFree(ctx, req.OrganizationName, ""); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, req.Email, ""); err != nil {
		return nil, err
	}
	if err := s.ensureCollectionFree(ctx, collectionName, ""); err != nil {
		return nil, err
	}

	digest, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	org := &models.Organization{Name: req.OrganizationName, CollectionName: collectionName}
	admin := &models.Admin{Email: req.Email, PasswordHash: digest}

	if err := s.store.CreateOrganizationAndAdmin(ctx, org, admin); err != nil {
		return nil, storeError("create organization", err)
	}

	if err := s.store.CreateCollection(ctx, collectionName); err != nil {
		s.removeTenant(ctx, org, admin)
		return nil, storeError("create collection", err)
	}

	s.metrics.OrganizationsCreatedTotal.Add(ctx, 1)

	zerolog.Ctx(ctx).Info().
		Str("org_id", org.ID.String()).
		Str("organization_name", org.Name).
		Str("collection", collectionName).
		Msg("Organization created")

	return &OrganizationView{
		ID:               org.ID,
		OrganizationName: org.Name,
		CollectionName:   org.CollectionName,
		AdminEmail:       admin.Email,
		CreatedAt:        org.CreatedAt,
	}, nil
}

// removeTenant undoes a create whose collection could not be made.
func (s *Service) removeTenant(ctx context.Context, org *models.Organization, admin *models.Admin) {
	ctx = context.WithoutCancel(ctx)
	logger := zerolog.Ctx(ctx)

	if err := s.store.DeleteAdmin(ctx, admin.ID); err != nil {
		logger.Error().Err(err).Str("admin_id", admin.ID.String()).Msg("Failed to remove admin after failed create")
	}
	if err := s.store.DeleteOrganization(ctx, org.ID); err != nil {
		logger.Error().Err(err).Str("org_id", org.ID.String()).Msg("Failed to remove organization after failed create")
	}
}

// Login exchanges admin credentials for an access token. Unknown emails and wrong
// passwords fail identically.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, validationError(err)
	}

	admin, err := s.store.FindAdminByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrAdminNotFound) {
			s.hasher.VerifyDummy(req.Password)
			s.recordLogin(ctx, telemetry.LoginInvalidCredentials)
			return nil, ErrInvalidCredentials
		}
		s.recordLogin(ctx, telemetry.LoginFailed)
		return nil, fmt.Errorf("failed to find admin: %w", err)
	}

	if !s.hasher.Verify(req.Password, admin.PasswordHash) {
		s.recordLogin(ctx, telemetry.LoginInvalidCredentials)
		return nil, ErrInvalidCredentials
	}

	org, err := s.store.GetOrganization(ctx, admin.OrganizationID)
	if err != nil {
		s.recordLogin(ctx, telemetry.LoginFailed)
		if errors.Is(err, store.ErrOrganizationNotFound) {
			zerolog.Ctx(ctx).Error().
				Str("admin_id", admin.ID.String()).
				Str("org_id", admin.OrganizationID.String()).
				Msg("Admin references missing organization")
			return nil, fmt.Errorf("%w: %w", ErrIntegrityFault, ErrOrgNotFound)
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	token, expiresAt, err := s.tokens.Issue(auth.Claims{
		AdminID:        admin.ID,
		OrganizationID: org.ID,
		Email:          admin.Email,
	})
	if err != nil {
		s.recordLogin(ctx, telemetry.LoginFailed)
		return nil, err
	}

	s.recordLogin(ctx, telemetry.LoginSucceeded)

	return &LoginResult{
		AccessToken:      token,
		TokenType:        tokenTypeBearer,
		AdminID:          admin.ID,
		OrganizationName: org.Name,
		Email:            admin.Email,
		ExpiresAt:        expiresAt,
	}, nil
}

func (s *Service) recordLogin(ctx context.Context, outcome string) {
	s.metrics.LoginAttemptsTotal.Add(ctx, 1, metric.WithAttributes(telemetry.OutcomeKey.String(outcome)))
}

// Get returns the public view of an organization. A missing admin is shown as
// MissingAdminEmail rather than failing the read.
func (s *Service) Get(ctx context.Context, req GetRequest) (*OrganizationView, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, validationError(err)
	}

	org, err := s.store.FindOrganizationByName(ctx, req.OrganizationName)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrOrgNotFound, req.OrganizationName)
		}
		return nil, fmt.Errorf("failed to find organization: %w", err)
	}

	email := MissingAdminEmail
	if !org.AdminUserID.IsZero() {
		admin, err := s.store.GetAdmin(ctx, org.AdminUserID)
		switch {
		case err == nil:
			email = admin.Email
		case errors.Is(err, store.ErrAdminNotFound):
			zerolog.Ctx(ctx).Warn().Str("org_id", org.ID.String()).Msg("Organization references missing admin")
		default:
			return nil, fmt.Errorf("failed to get admin: %w", err)
		}
	}

	return &OrganizationView{
		ID:               org.ID,
		OrganizationName: org.Name,
		CollectionName:   org.CollectionName,
		AdminEmail:       email,
		CreatedAt:        org.CreatedAt,
	}, nil
}

// Update renames the caller's organization, migrating its collection when the
// derived name changes, and patches the admin's email and password. All
// uniqueness checks complete before the first write. The admin patch is applied
// first and restored if the rename fails, so a failed Update leaves both records
// as they were unless the process dies in between. Concurrent updates of the same
// organization are not serialized.
func (s *Service) Update(ctx context.Context, caller *auth.Identity, req UpdateRequest) (*UpdateResult, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, validationError(err)
	}
	if caller.OrganizationName != req.OldOrganizationName {
		return nil, fmt.Errorf("%w: you don't have permission to update this organization", ErrForbidden)
	}

	org, err := s.store.GetOrganization(ctx, caller.OrganizationID)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return nil, ErrOrgNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	nameChanged := req.NewOrganizationName != org.Name
	newCollection := org.CollectionName

	if nameChanged {
		if err := s.ensureNameFree(ctx, req.NewOrganizationName, org.ID); err != nil {
			return nil, err
		}
		if newCollection, err = CollectionName(req.NewOrganizationName); err != nil {
			return nil, err
		}
		if newCollection != org.CollectionName {
			if err := s.ensureCollectionFree(ctx, newCollection, org.ID); err != nil {
				return nil, err
			}
		}
	}

	var adminUpdate models.AdminUpdate
	if req.Email != nil {
		if err := s.ensureEmailFree(ctx, *req.Email, caller.AdminID); err != nil {
			return nil, err
		}
		adminUpdate.Email = req.Email
	}
	if req.Password != nil {
		digest, err := s.hashPassword(*req.Password)
		if err != nil {
			return nil, err
		}
		adminUpdate.PasswordHash = &digest
	}

	var previous *models.Admin
	if !adminUpdate.IsEmpty() {
		if previous, err = s.store.GetAdmin(ctx, caller.AdminID); err != nil {
			if errors.Is(err, store.ErrAdminNotFound) {
				return nil, fmt.Errorf("%w: %w", ErrIntegrityFault, err)
			}
			return nil, fmt.Errorf("failed to get admin: %w", err)
		}
		if err := s.store.UpdateAdmin(ctx, caller.AdminID, adminUpdate); err != nil {
			if errors.Is(err, store.ErrAdminNotFound) {
				return nil, fmt.Errorf("%w: %w", ErrIntegrityFault, err)
			}
			return nil, storeError("update admin", err)
		}
	}

	if nameChanged {
		if err := s.rename(ctx, org, req.NewOrganizationName, newCollection); err != nil {
			if previous != nil {
				s.restoreAdmin(ctx, previous, adminUpdate)
			}
			return nil, err
		}
	}

	return &UpdateResult{
		Message:          "Organization updated successfully",
		OrganizationName: req.NewOrganizationName,
		CollectionName:   newCollection,
		NameChanged:      nameChanged,
		EmailUpdated:     req.Email != nil,
		PasswordUpdated:  req.Password != nil,
	}, nil
}

// rename moves the tenant collection and then points the organization at it. If
// the record update fails the collection is moved back.
func (s *Service) rename(ctx context.Context, org *models.Organization, newName, newCollection string) error {
	logger := zerolog.Ctx(ctx)

	migrated := newCollection != org.CollectionName
	if migrated {
		started := s.now()

		n, err := s.store.MigrateCollection(ctx, org.CollectionName, newCollection)
		if err != nil {
			if errors.Is(err, store.ErrCollectionNotFound) {
				return fmt.Errorf("%w: collection %s is missing: %w", ErrIntegrityFault, org.CollectionName, err)
			}
			return storeError("migrate collection", err)
		}

		s.metrics.DocumentsMigratedTotal.Add(ctx, int64(n))
		s.metrics.MigrationDuration.Record(ctx, float64(s.now().Sub(started).Milliseconds()))

		logger.Info().
			Str("org_id", org.ID.String()).
			Str("from", org.CollectionName).
			Str("to", newCollection).
			Int("documents", n).
			Msg("Collection migrated")
	}

	update := models.OrganizationUpdate{Name: &newName}
	if migrated {
		update.CollectionName = &newCollection
	}

	if err := s.store.UpdateOrganization(ctx, org.ID, update); err != nil {
		if migrated {
			if _, undoErr := s.store.MigrateCollection(context.WithoutCancel(ctx), newCollection, org.CollectionName); undoErr != nil {
				logger.Error().Err(undoErr).
					Str("org_id", org.ID.String()).
					Str("collection", newCollection).
					Msg("Failed to move collection back after failed rename")
			}
		}
		return storeError("update organization", err)
	}

	s.metrics.OrganizationsRenamedTotal.Add(ctx, 1)

	return nil
}

// restoreAdmin puts back the fields an admin patch changed.
func (s *Service) restoreAdmin(ctx context.Context, previous *models.Admin, applied models.AdminUpdate) {
	var undo models.AdminUpdate
	if applied.Email != nil {
		undo.Email = &previous.Email
	}
	if applied.PasswordHash != nil {
		undo.PasswordHash = &previous.PasswordHash
	}

	if err := s.store.UpdateAdmin(context.WithoutCancel(ctx), previous.ID, undo); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("admin_id", previous.ID.String()).
			Msg("Failed to restore admin after failed rename")
	}
}

// Delete removes the caller's collection, admin and organization in that order.
// Records already gone are skipped; the first other failure stops the delete.
func (s *Service) Delete(ctx context.Context, caller *auth.Identity, req DeleteRequest) (*DeleteResult, error) {
	if caller == nil {
		return nil, ErrUnauthenticated
	}
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, validationError(err)
	}
	if caller.OrganizationName != req.OrganizationName {
		return nil, fmt.Errorf("%w: you don't have permission to delete this organization", ErrForbidden)
	}

	logger := zerolog.Ctx(ctx)

	if err := s.store.DropCollection(ctx, caller.CollectionName); err != nil {
		return nil, fmt.Errorf("failed to drop collection: %w", err)
	}

	if err := s.store.DeleteAdmin(ctx, caller.AdminID); err != nil {
		if !errors.Is(err, store.ErrAdminNotFound) {
			return nil, fmt.Errorf("failed to delete admin: %w", err)
		}
		logger.Warn().Str("admin_id", caller.AdminID.String()).Msg("Admin already deleted")
	}

	if err := s.store.DeleteOrganization(ctx, caller.OrganizationID); err != nil {
		if !errors.Is(err, store.ErrOrganizationNotFound) {
			return nil, fmt.Errorf("failed to delete organization: %w", err)
		}
		logger.Warn().Str("org_id", caller.OrganizationID.String()).Msg("Organization already deleted")
	}

	s.metrics.OrganizationsDeletedTotal.Add(ctx, 1)

	logger.Info().
		Str("org_id", caller.OrganizationID.String()).
		Str("organization_name", caller.OrganizationName).
		Str("collection", caller.CollectionName).
		Msg("Organization deleted")

	return &DeleteResult{
		Message:           "Organization deleted successfully",
		OrganizationName:  caller.OrganizationName,
		CollectionDeleted: caller.CollectionName,
	}, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password must be at most 72 bytes", ErrValidation)
		}
		return "", err
	}
	return digest, nil
}

// ensureNameFree fails with ErrOrgExists when another organization uses name.
// self is excluded so an organization never conflicts with itself.
func (s *Service) ensureNameFree(ctx context.Context, name string, self models.ID) error {
	existing, err := s.store.FindOrganizationByName(ctx, name)
	switch {
	case errors.Is(err, store.ErrOrganizationNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("failed to check organization name: %w", err)
	case existing.ID == self:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrOrgExists, name)
}

// ensureCollectionFree fails with ErrOrgExists when the derived collection name is
// owned by another organization or left over in the store.
func (s *Service) ensureCollectionFree(ctx context.Context, collectionName string, self models.ID) error {
	existing, err := s.store.FindOrganizationByCollection(ctx, collectionName)
	switch {
	case errors.Is(err, store.ErrOrganizationNotFound):
	case err != nil:
		return fmt.Errorf("failed to check collection name: %w", err)
	case existing.ID != self:
		return fmt.Errorf("%w: collection name %s is already in use", ErrOrgExists, collectionName)
	}

	exists, err := s.store.CollectionExists(ctx, collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		return fmt.Errorf("%w: collection name %s is already in use", ErrOrgExists, collectionName)
	}

	return nil
}

// ensureEmailFree fails with ErrEmailExists when an admin other than self uses email.
func (s *Service) ensureEmailFree(ctx context.Context, email string, self models.ID) error {
	existing, err := s.store.FindAdminByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrAdminNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("failed to check email: %w", err)
	case existing.ID == self:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrEmailExists, email)
}
