package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgd/internal/models"
	"github.com/wolfeidau/orgd/internal/store"
)

// CreateCollection registers an empty tenant collection.
// The created_at index on tenant_documents is shared by every collection.
func (s *Store) CreateCollection(ctx context.Context, name string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `INSERT INTO tenant_collections (collection_name) VALUES ($1)`, name)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", mapPostgresError(err))
	}

	log.Debug().Str("collection", name).Msg("Created collection")

	return nil
}

// DropCollection removes a tenant collection; its documents cascade.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.pool.Exec(ctx, `DELETE FROM tenant_collections WHERE collection_name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to drop collection: %w", mapPostgresError(err))
	}

	log.Info().
		Str("collection", name).
		Bool("existed", result.RowsAffected() > 0).
		Msg("Dropped collection")

	return nil
}

// MigrateCollection copies all documents from oldName to newName and drops oldName
// inside one transaction; any failure rolls the whole migration back.
// The copy grows with the tenant, so only ctx bounds it, not the query timeout.
func (s *Store) MigrateCollection(ctx context.Context, oldName, newName string) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", mapPostgresError(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback is safe to call after commit

	// Lock the source so concurrent inserts wait for the migration
	var locked string
	err = tx.QueryRow(ctx, `
		SELECT collection_name FROM tenant_collections WHERE collection_name = $1 FOR UPDATE
	`, oldName).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, store.ErrCollectionNotFound
		}
		return 0, fmt.Errorf("failed to lock source collection: %w", mapPostgresError(err))
	}

	if _, err = tx.Exec(ctx, `INSERT INTO tenant_collections (collection_name) VALUES ($1)`, newName); err != nil {
		return 0, fmt.Errorf("failed to create target collection: %w", mapPostgresError(err))
	}

	copied, err := tx.Exec(ctx, `
		INSERT INTO tenant_documents (collection_name, document_id, data, created_at)
		SELECT $2, document_id, data, created_at
		FROM tenant_documents
		WHERE collection_name = $1
	`, oldName, newName)
	if err != nil {
		return 0, fmt.Errorf("failed to copy documents: %w", mapPostgresError(err))
	}

	var total int64
	err = tx.QueryRow(ctx, `SELECT count(*) FROM tenant_documents WHERE collection_name = $1`, oldName).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count source documents: %w", mapPostgresError(err))
	}
	if total != copied.RowsAffected() {
		return 0, fmt.Errorf("copied %d of %d documents from %s", copied.RowsAffected(), total, oldName)
	}

	if _, err = tx.Exec(ctx, `DELETE FROM tenant_collections WHERE collection_name = $1`, oldName); err != nil {
		return 0, fmt.Errorf("failed to drop source collection: %w", mapPostgresError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit migration: %w", mapPostgresError(err))
	}

	log.Info().
		Str("from", oldName).
		Str("to", newName).
		Int64("documents", total).
		Msg("Migrated collection")

	return int(total), nil
}

// CollectionExists reports whether a collection is registered.
func (s *Store) CollectionExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM tenant_collections WHERE collection_name = $1
		)
	`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", mapPostgresError(err))
	}

	return exists, nil
}

// InsertDocument stores a document in a tenant collection.
func (s *Store) InsertDocument(ctx context.Context, name string, doc *models.Document) error {
	if doc.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate document id: %w", err)
		}
		doc.ID = id.String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// Passing the payload as text keeps the json column byte-identical
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenant_documents (collection_name, document_id, data, created_at)
		VALUES ($1, $2, $3::json, $4)
	`, name, doc.ID, string(doc.Data), doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", mapPostgresError(err))
	}

	return nil
}

// ListDocuments returns every document in a collection ordered by creation time.
func (s *Store) ListDocuments(ctx context.Context, name string) ([]*models.Document, error) {
	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrCollectionNotFound
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT document_id, data::text, created_at
		FROM tenant_documents
		WHERE collection_name = $1
		ORDER BY created_at, document_id
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var (
			doc  models.Document
			data string
		)
		if err := rows.Scan(&doc.ID, &data, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.Data = []byte(data)
		docs = append(docs, &doc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", mapPostgresError(err))
	}

	return docs, nil
}
