package mongodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgd/internal/models"
	"github.com/wolfeidau/orgd/internal/store"
	"github.com/wolfeidau/orgd/internal/util"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// documentRecord wraps a tenant payload so user fields never collide with _id.
type documentRecord struct {
	ID        string    `bson:"_id"`
	Data      bson.Raw  `bson:"data"`
	CreatedAt time.Time `bson:"created_at"`
}

var documentIndexes = []mongo.IndexModel{
	{
		Keys:    bson.D{{Key: "created_at", Value: 1}},
		Options: options.Index().SetName("idx_created_at"),
	},
}

// CreateCollection creates an empty tenant collection with a created_at index.
func (s *Store) CreateCollection(ctx context.Context, name string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.db.CreateCollection(ctx, name); err != nil {
		return fmt.Errorf("failed to create collection: %w", mapMongoError(err))
	}

	if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, documentIndexes); err != nil {
		return fmt.Errorf("failed to index collection: %w", mapMongoError(err))
	}

	log.Debug().Str("collection", name).Msg("Created collection")

	return nil
}

// DropCollection drops a tenant collection. Dropping a missing collection succeeds.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.db.Collection(name).Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop collection: %w", mapMongoError(err))
	}

	log.Info().Str("collection", name).Msg("Dropped collection")

	return nil
}

// CollectionExists reports whether a collection exists in the master database.
func (s *Store) CollectionExists(ctx context.Context, name string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	names, err := s.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return false, fmt.Errorf("failed to list collections: %w", mapMongoError(err))
	}

	return len(names) > 0, nil
}

// MigrateCollection copies every document from oldName into newName in batches,
// verifies the counts match and then drops oldName. When copying fails the partial
// newName is dropped and oldName is left untouched.
//
// The migration is not bounded by the query timeout since it scales with the collection.
func (s *Store) MigrateCollection(ctx context.Context, oldName, newName string) (int, error) {
	exists, err := s.CollectionExists(ctx, oldName)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, store.ErrCollectionNotFound
	}

	if err := s.CreateCollection(ctx, newName); err != nil {
		return 0, err
	}

	copied, err := s.copyDocuments(ctx, oldName, newName)
	if err != nil {
		if dropErr := s.DropCollection(context.WithoutCancel(ctx), newName); dropErr != nil {
			log.Error().Err(dropErr).Str("collection", newName).Msg("Failed to drop partial migration target")
		}
		return 0, err
	}

	if err := s.DropCollection(ctx, oldName); err != nil {
		return 0, err
	}

	log.Info().
		Str("from", oldName).
		Str("to", newName).
		Int("documents", copied).
		Msg("Migrated collection")

	return copied, nil
}

func (s *Store) copyDocuments(ctx context.Context, oldName, newName string) (int, error) {
	src := s.db.Collection(oldName)
	dst := s.db.Collection(newName)

	cursor, err := src.Find(ctx, bson.D{}, options.Find().SetBatchSize(util.AsInt32(int64(s.batchSize))))
	if err != nil {
		return 0, fmt.Errorf("failed to read source collection: %w", mapMongoError(err))
	}
	defer cursor.Close(ctx)

	copied := 0
	batch := make([]any, 0, s.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := dst.InsertMany(ctx, batch, options.InsertMany().SetOrdered(true)); err != nil {
			return fmt.Errorf("failed to copy documents: %w", mapMongoError(err))
		}
		copied += len(batch)
		batch = batch[:0]
		return nil
	}

	for cursor.Next(ctx) {
		// cursor.Current is reused by the next call
		batch = append(batch, bson.Raw(append([]byte(nil), cursor.Current...)))
		if len(batch) == s.batchSize {
			if err := flush(); err != nil {
				return 0, err
			}
		}
	}
	if err := cursor.Err(); err != nil {
		return 0, fmt.Errorf("error iterating source collection: %w", mapMongoError(err))
	}
	if err := flush(); err != nil {
		return 0, err
	}

	total, err := src.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to count source documents: %w", mapMongoError(err))
	}
	migrated, err := dst.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("failed to count migrated documents: %w", mapMongoError(err))
	}
	if total != migrated || int64(copied) != total {
		return 0, fmt.Errorf("copied %d of %d documents from %s", migrated, total, oldName)
	}

	return copied, nil
}

// InsertDocument stores a JSON object in a tenant collection.
func (s *Store) InsertDocument(ctx context.Context, name string, doc *models.Document) error {
	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	// MongoDB creates collections implicitly on insert
	if !exists {
		return store.ErrCollectionNotFound
	}

	var data bson.Raw
	if err := bson.UnmarshalExtJSON(doc.Data, false, &data); err != nil {
		return fmt.Errorf("document must be a JSON object: %w", err)
	}

	if doc.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate document id: %w", err)
		}
		doc.ID = id.String()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.timestamp()
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err = s.db.Collection(name).InsertOne(ctx, documentRecord{
		ID:        doc.ID,
		Data:      data,
		CreatedAt: doc.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", mapMongoError(err))
	}

	return nil
}

// ListDocuments returns every document in a collection ordered by creation time.
// Payloads are rendered as relaxed extended JSON.
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

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(name).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", mapMongoError(err))
	}
	defer cursor.Close(ctx)

	var docs []*models.Document
	for cursor.Next(ctx) {
		var rec documentRecord
		if err := cursor.Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}

		data, err := bson.MarshalExtJSON(rec.Data, false, false)
		if err != nil {
			return nil, fmt.Errorf("failed to render document %s: %w", rec.ID, err)
		}

		docs = append(docs, &models.Document{
			ID:        rec.ID,
			Data:      json.RawMessage(data),
			CreatedAt: rec.CreatedAt.UTC(),
		})
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", mapMongoError(err))
	}

	return docs, nil
}

