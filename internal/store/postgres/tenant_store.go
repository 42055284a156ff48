package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgd/internal/models"
	"github.com/wolfeidau/orgd/internal/store"
)

var _ store.Store = (*Store)(nil)

const (
	organizationColumns = `id, organization_name, collection_name, admin_user_id, created_at, updated_at`
	adminColumns        = `id, email, password_hash, organization_id, created_at, updated_at`
)

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool         *pgxpool.Pool
	queryTimeout time.Duration
}

// NewStore creates a new PostgreSQL-backed tenant store on an existing pool.
// The store takes ownership of the pool and closes it in Close.
func NewStore(ctx context.Context, pool *pgxpool.Pool, cfg *StoreConfig) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if cfg == nil {
		cfg = &StoreConfig{}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store config: %w", err)
	}

	if cfg.AutoMigrate {
		if err := RunMigrations(ctx, pool); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	s := &Store{pool: pool}
	if cfg.QueryTimeoutSeconds > 0 {
		s.queryTimeout = time.Duration(cfg.QueryTimeoutSeconds) * time.Second
	}

	return s, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

// parseID converts an opaque ID to a UUID. IDs that are not UUIDs cannot exist in this store.
func parseID(id models.ID) (uuid.UUID, bool) {
	parsed, err := uuid.Parse(id.String())
	if err != nil {
		return uuid.Nil, false
	}
	return parsed, true
}

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var (
		org         models.Organization
		id          uuid.UUID
		adminUserID uuid.NullUUID
	)

	err := row.Scan(
		&id,
		&org.Name,
		&org.CollectionName,
		&adminUserID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	org.ID = models.ID(id.String())
	if adminUserID.Valid {
		org.AdminUserID = models.ID(adminUserID.UUID.String())
	}

	return &org, nil
}

func scanAdmin(row pgx.Row) (*models.Admin, error) {
	var (
		admin models.Admin
		id    uuid.UUID
		orgID uuid.UUID
	)

	err := row.Scan(
		&id,
		&admin.Email,
		&admin.PasswordHash,
		&orgID,
		&admin.CreatedAt,
		&admin.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	admin.ID = models.ID(id.String())
	admin.OrganizationID = models.ID(orgID.String())

	return &admin, nil
}

func (s *Store) queryOrganization(ctx context.Context, where string, arg any) (*models.Organization, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE ` + where

	org, err := scanOrganization(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", mapPostgresError(err))
	}

	return org, nil
}

// FindOrganizationByName looks up an organization by exact name.
func (s *Store) FindOrganizationByName(ctx context.Context, name string) (*models.Organization, error) {
	return s.queryOrganization(ctx, `organization_name = $1`, name)
}

// FindOrganizationByCollection looks up the organization owning a collection.
func (s *Store) FindOrganizationByCollection(ctx context.Context, collectionName string) (*models.Organization, error) {
	return s.queryOrganization(ctx, `collection_name = $1`, collectionName)
}

// GetOrganization retrieves an organization by ID.
func (s *Store) GetOrganization(ctx context.Context, id models.ID) (*models.Organization, error) {
	orgID, ok := parseID(id)
	if !ok {
		return nil, store.ErrOrganizationNotFound
	}
	return s.queryOrganization(ctx, `id = $1`, orgID)
}

func (s *Store) queryAdmin(ctx context.Context, where string, arg any) (*models.Admin, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + adminColumns + ` FROM admins WHERE ` + where

	admin, err := scanAdmin(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to get admin: %w", mapPostgresError(err))
	}

	return admin, nil
}

// FindAdminByEmail looks up an admin by email.
func (s *Store) FindAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	return s.queryAdmin(ctx, `email = $1`, email)
}

// GetAdmin retrieves an admin by ID.
func (s *Store) GetAdmin(ctx context.Context, id models.ID) (*models.Admin, error) {
	adminID, ok := parseID(id)
	if !ok {
		return nil, store.ErrAdminNotFound
	}
	return s.queryAdmin(ctx, `id = $1`, adminID)
}

// CreateOrganizationAndAdmin writes the organization, the admin and the back-link in a
// single transaction, so on PostgreSQL a failure at any step leaves nothing behind.
func (s *Store) CreateOrganizationAndAdmin(ctx context.Context, org *models.Organization, admin *models.Admin) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	orgID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate organization id: %w", err)
	}
	adminID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("failed to generate admin id: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapPostgresError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	_, err = tx.Exec(ctx, `
		INSERT INTO organizations (
			id, organization_name, collection_name, admin_user_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, NULL, $4, $4
		)
	`, orgID, org.Name, org.CollectionName, now)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", mapPostgresError(err))
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO admins (
			id, email, password_hash, organization_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $5
		)
	`, adminID, admin.Email, admin.PasswordHash, orgID, now)
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", mapPostgresError(err))
	}

	_, err = tx.Exec(ctx, `UPDATE organizations SET admin_user_id = $2 WHERE id = $1`, orgID, adminID)
	if err != nil {
		return fmt.Errorf("failed to link admin to organization: %w", mapPostgresError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit organization: %w", mapPostgresError(err))
	}

	org.ID = models.ID(orgID.String())
	org.AdminUserID = models.ID(adminID.String())
	org.CreatedAt = now
	org.UpdatedAt = now

	admin.ID = models.ID(adminID.String())
	admin.OrganizationID = org.ID
	admin.CreatedAt = now
	admin.UpdatedAt = now

	log.Debug().
		Str("org_id", org.ID.String()).
		Str("admin_id", admin.ID.String()).
		Str("name", org.Name).
		Msg("Created organization and admin")

	return nil
}

// UpdateOrganization applies a field-level patch to an organization.
func (s *Store) UpdateOrganization(ctx context.Context, id models.ID, update models.OrganizationUpdate) error {
	orgID, ok := parseID(id)
	if !ok {
		return store.ErrOrganizationNotFound
	}

	var adminUserID *uuid.UUID
	if update.AdminUserID != nil {
		parsed, ok := parseID(*update.AdminUserID)
		if !ok {
			return fmt.Errorf("invalid admin id %q", update.AdminUserID.String())
		}
		adminUserID = &parsed
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// COALESCE keeps columns whose patch field is nil
	result, err := s.pool.Exec(ctx, `
		UPDATE organizations SET
			organization_name = COALESCE($2, organization_name),
			collection_name = COALESCE($3, collection_name),
			admin_user_id = COALESCE($4, admin_user_id),
			updated_at = $5
		WHERE id = $1
	`, orgID, update.Name, update.CollectionName, adminUserID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Debug().
		Str("org_id", id.String()).
		Msg("Updated organization")

	return nil
}

// UpdateAdmin applies a field-level patch to an admin.
func (s *Store) UpdateAdmin(ctx context.Context, id models.ID, update models.AdminUpdate) error {
	adminID, ok := parseID(id)
	if !ok {
		return store.ErrAdminNotFound
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx, `
		UPDATE admins SET
			email = COALESCE($2, email),
			password_hash = COALESCE($3, password_hash),
			updated_at = $4
		WHERE id = $1
	`, adminID, update.Email, update.PasswordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update admin: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrAdminNotFound
	}

	log.Debug().
		Str("admin_id", id.String()).
		Msg("Updated admin")

	return nil
}

// DeleteOrganization deletes an organization by ID.
func (s *Store) DeleteOrganization(ctx context.Context, id models.ID) error {
	orgID, ok := parseID(id)
	if !ok {
		return store.ErrOrganizationNotFound
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, orgID)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrOrganizationNotFound
	}

	log.Info().
		Str("org_id", id.String()).
		Msg("Deleted organization")

	return nil
}

// DeleteAdmin deletes an admin by ID.
func (s *Store) DeleteAdmin(ctx context.Context, id models.ID) error {
	adminID, ok := parseID(id)
	if !ok {
		return store.ErrAdminNotFound
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx, `DELETE FROM admins WHERE id = $1`, adminID)
	if err != nil {
		return fmt.Errorf("failed to delete admin: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return store.ErrAdminNotFound
	}

	log.Info().
		Str("admin_id", id.String()).
		Msg("Deleted admin")

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close(ctx context.Context) error {
	s.pool.Close()
	return nil
}
