package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgd/internal/models"
	"github.com/wolfeidau/orgd/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var _ store.Store = (*Store)(nil)

const (
	organizationsCollection = "organizations"
	adminsCollection        = "admins"
)

type organizationRecord struct {
	ID             primitive.ObjectID  `bson:"_id"`
	Name           string              `bson:"organization_name"`
	CollectionName string              `bson:"collection_name"`
	AdminUserID    *primitive.ObjectID `bson:"admin_user_id"`
	CreatedAt      time.Time           `bson:"created_at"`
	UpdatedAt      time.Time           `bson:"updated_at"`
}

func (r *organizationRecord) toModel() *models.Organization {
	org := &models.Organization{
		ID:             models.ID(r.ID.Hex()),
		Name:           r.Name,
		CollectionName: r.CollectionName,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.AdminUserID != nil {
		org.AdminUserID = models.ID(r.AdminUserID.Hex())
	}
	return org
}

type adminRecord struct {
	ID             primitive.ObjectID `bson:"_id"`
	Email          string             `bson:"email"`
	PasswordHash   string             `bson:"password_hash"`
	OrganizationID primitive.ObjectID `bson:"organization_id"`
	CreatedAt      time.Time          `bson:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at"`
}

func (r *adminRecord) toModel() *models.Admin {
	return &models.Admin{
		ID:             models.ID(r.ID.Hex()),
		Email:          r.Email,
		PasswordHash:   r.PasswordHash,
		OrganizationID: models.ID(r.OrganizationID.Hex()),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

var masterIndexes = map[string][]mongo.IndexModel{
	organizationsCollection: {
		{
			Keys:    bson.D{{Key: "organization_name", Value: 1}},
			Options: options.Index().SetName(indexOrganizationName).SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "collection_name", Value: 1}},
			Options: options.Index().SetName(indexCollectionName).SetUnique(true),
		},
	},
	adminsCollection: {
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName(indexAdminEmail).SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "organization_id", Value: 1}},
			Options: options.Index().SetName("idx_organization_id"),
		},
	},
}

// Store implements store.Store using MongoDB. Organizations and admins live in
// the master database and every tenant gets a real collection beside them.
type Store struct {
	client       *mongo.Client
	db           *mongo.Database
	queryTimeout time.Duration
	batchSize    int
	now          func() time.Time
}

// NewStore creates a MongoDB-backed store on a connected client and ensures the
// unique indexes exist. The store takes ownership of the client and disconnects it in Close.
func NewStore(ctx context.Context, client *mongo.Client, cfg *Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	if cfg == nil {
		return nil, errors.New("mongodb config is required")
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mongodb config: %w", err)
	}

	s := &Store{
		client:       client,
		db:           client.Database(cfg.Database),
		queryTimeout: cfg.QueryTimeout,
		batchSize:    cfg.MigrationBatchSize,
		now:          time.Now,
	}

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	for name, indexes := range masterIndexes {
		created, err := s.db.Collection(name).Indexes().CreateMany(ctx, indexes)
		if err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, mapMongoError(err))
		}
		log.Debug().Str("collection", name).Strs("indexes", created).Msg("Ensured indexes")
	}
	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

// timestamp returns the current time at the millisecond precision BSON stores.
func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

func (s *Store) organizations() *mongo.Collection {
	return s.db.Collection(organizationsCollection)
}

func (s *Store) admins() *mongo.Collection {
	return s.db.Collection(adminsCollection)
}

func (s *Store) findOrganization(ctx context.Context, filter bson.D) (*models.Organization, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rec organizationRecord
	if err := s.organizations().FindOne(ctx, filter).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", mapMongoError(err))
	}

	return rec.toModel(), nil
}

// FindOrganizationByName looks up an organization by exact name.
func (s *Store) FindOrganizationByName(ctx context.Context, name string) (*models.Organization, error) {
	return s.findOrganization(ctx, bson.D{{Key: "organization_name", Value: name}})
}

// FindOrganizationByCollection looks up the organization owning a collection.
func (s *Store) FindOrganizationByCollection(ctx context.Context, collectionName string) (*models.Organization, error) {
	return s.findOrganization(ctx, bson.D{{Key: "collection_name", Value: collectionName}})
}

// GetOrganization retrieves an organization by ID.
func (s *Store) GetOrganization(ctx context.Context, id models.ID) (*models.Organization, error) {
	oid, err := primitive.ObjectIDFromHex(id.String())
	if err != nil {
		return nil, store.ErrOrganizationNotFound
	}
	return s.findOrganization(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (s *Store) findAdmin(ctx context.Context, filter bson.D) (*models.Admin, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rec adminRecord
	if err := s.admins().FindOne(ctx, filter).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to get admin: %w", mapMongoError(err))
	}

	return rec.toModel(), nil
}

// FindAdminByEmail looks up an admin by email.
func (s *Store) FindAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	return s.findAdmin(ctx, bson.D{{Key: "email", Value: email}})
}

// GetAdmin retrieves an admin by ID.
func (s *Store) GetAdmin(ctx context.Context, id models.ID) (*models.Admin, error) {
	oid, err := primitive.ObjectIDFromHex(id.String())
	if err != nil {
		return nil, store.ErrAdminNotFound
	}
	return s.findAdmin(ctx, bson.D{{Key: "_id", Value: oid}})
}

// CreateOrganizationAndAdmin inserts the organization, then the admin, then patches the
// back-link. MongoDB standalone servers have no multi-document transactions, so a failed
// step deletes what the earlier steps wrote.
func (s *Store) CreateOrganizationAndAdmin(ctx context.Context, org *models.Organization, admin *models.Admin) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.timestamp()

	orgRec := organizationRecord{
		ID:             primitive.NewObjectID(),
		Name:           org.Name,
		CollectionName: org.CollectionName,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.organizations().InsertOne(ctx, orgRec); err != nil {
		return fmt.Errorf("failed to create organization: %w", mapMongoError(err))
	}

	adminRec := adminRecord{
		ID:             primitive.NewObjectID(),
		Email:          admin.Email,
		PasswordHash:   admin.PasswordHash,
		OrganizationID: orgRec.ID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.admins().InsertOne(ctx, adminRec); err != nil {
		s.compensate(ctx, s.organizations(), orgRec.ID)
		return fmt.Errorf("failed to create admin: %w", mapMongoError(err))
	}

	_, err := s.organizations().UpdateByID(ctx, orgRec.ID, bson.D{
		{Key: "$set", Value: bson.D{{Key: "admin_user_id", Value: adminRec.ID}}},
	})
	if err != nil {
		s.compensate(ctx, s.admins(), adminRec.ID)
		s.compensate(ctx, s.organizations(), orgRec.ID)
		return fmt.Errorf("failed to link admin to organization: %w", mapMongoError(err))
	}

	org.ID = models.ID(orgRec.ID.Hex())
	org.AdminUserID = models.ID(adminRec.ID.Hex())
	org.CreatedAt = now
	org.UpdatedAt = now

	admin.ID = models.ID(adminRec.ID.Hex())
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

func (s *Store) compensate(ctx context.Context, coll *mongo.Collection, id primitive.ObjectID) {
	if _, err := coll.DeleteOne(context.WithoutCancel(ctx), bson.D{{Key: "_id", Value: id}}); err != nil {
		log.Error().Err(err).
			Str("collection", coll.Name()).
			Str("id", id.Hex()).
			Msg("Failed to remove partially created record")
	}
}

// UpdateOrganization applies a field-level patch to an organization.
func (s *Store) UpdateOrganization(ctx context.Context, id models.ID, update models.OrganizationUpdate) error {
	oid, err := primitive.ObjectIDFromHex(id.String())
	if err != nil {
		return store.ErrOrganizationNotFound
	}

	set := bson.D{{Key: "updated_at", Value: s.timestamp()}}
	if update.Name != nil {
		set = append(set, bson.E{Key: "organization_name", Value: *update.Name})
	}
	if update.CollectionName != nil {
		set = append(set, bson.E{Key: "collection_name", Value: *update.CollectionName})
	}
	if update.AdminUserID != nil {
		adminID, err := primitive.ObjectIDFromHex(update.AdminUserID.String())
		if err != nil {
			return store.ErrAdminNotFound
		}
		set = append(set, bson.E{Key: "admin_user_id", Value: adminID})
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.organizations().UpdateByID(ctx, oid, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", mapMongoError(err))
	}
	if result.MatchedCount == 0 {
		return store.ErrOrganizationNotFound
	}

	return nil
}

// UpdateAdmin applies a field-level patch to an admin.
func (s *Store) UpdateAdmin(ctx context.Context, id models.ID, update models.AdminUpdate) error {
	oid, err := primitive.ObjectIDFromHex(id.String())
	if err != nil {
		return store.ErrAdminNotFound
	}

	set := bson.D{{Key: "updated_at", Value: s.timestamp()}}
	if update.Email != nil {
		set = append(set, bson.E{Key: "email", Value: *update.Email})
	}
	if update.PasswordHash != nil {
		set = append(set, bson.E{Key: "password_hash", Value: *update.PasswordHash})
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.admins().UpdateByID(ctx, oid, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("failed to update admin: %w", mapMongoError(err))
	}
	if result.MatchedCount == 0 {
		return store.ErrAdminNotFound
	}

	return nil
}

// DeleteOrganization deletes an organization by ID.
func (s *Store) DeleteOrganization(ctx context.Context, id models.ID) error {
	oid, err := primitive.ObjectIDFromHex(id.String())
	if err != nil {
		return store.ErrOrganizationNotFound
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.organizations().DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", mapMongoError(err))
	}
	if result.DeletedCount == 0 {
		return store.ErrOrganizationNotFound
	}

	return nil
}

// DeleteAdmin deletes an admin by ID.
func (s *Store) DeleteAdmin(ctx context.Context, id models.ID) error {
	oid, err := primitive.ObjectIDFromHex(id.String())
	if err != nil {
		return store.ErrAdminNotFound
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.admins().DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("failed to delete admin: %w", mapMongoError(err))
	}
	if result.DeletedCount == 0 {
		return store.ErrAdminNotFound
	}

	return nil
}

// Ping checks the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
