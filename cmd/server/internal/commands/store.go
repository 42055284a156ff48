package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/orgd/internal/store"
	memorystore "github.com/wolfeidau/orgd/internal/store/memory"
	mongostore "github.com/wolfeidau/orgd/internal/store/mongodb"
	postgresstore "github.com/wolfeidau/orgd/internal/store/postgres"
	"github.com/wolfeidau/orgd/internal/util"
)

// StoreFlags selects and configures the store backend.
type StoreFlags struct {
	StoreType      string             `help:"store type (memory, postgres or mongodb)" default:"memory" env:"ORGD_STORE_TYPE" enum:"memory,postgres,mongodb"`
	ConnectTimeout time.Duration      `help:"how long to keep retrying the initial store connection" default:"30s" env:"ORGD_STORE_CONNECT_TIMEOUT"`
	QueryTimeout   time.Duration      `help:"timeout applied to each store query" default:"10s" env:"ORGD_STORE_QUERY_TIMEOUT"`
	PostgresStore  PostgresStoreFlags `embed:"" prefix:"postgres-"`
	MongoStore     MongoStoreFlags    `embed:"" prefix:"mongo-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32         `help:"maximum number of connections in pool" default:"20" env:"ORGD_POSTGRES_MAX_CONNS"`
	MinConns        int32         `help:"minimum number of connections in pool" default:"2" env:"ORGD_POSTGRES_MIN_CONNS"`
	MaxConnLifetime time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime time.Duration `help:"maximum connection idle time" default:"30m"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"ORGD_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	if s.MinConns > s.MaxConns {
		return fmt.Errorf("--postgres-min-conns (%d) must not exceed --postgres-max-conns (%d)", s.MinConns, s.MaxConns)
	}
	return nil
}

type MongoStoreFlags struct {
	URI                string `help:"MongoDB connection URI" env:"MONGODB_URI"`
	Database           string `help:"master database name" default:"orgd" env:"ORGD_MONGO_DATABASE"`
	MigrationBatchSize int    `help:"documents copied per batch when renaming a collection" default:"500" env:"ORGD_MONGO_MIGRATION_BATCH_SIZE"`
}

func (s *MongoStoreFlags) Validate() error {
	if s.URI == "" {
		return errors.New("MongoDB URI is required (--mongo-uri or MONGODB_URI)")
	}
	if s.MigrationBatchSize < 1 {
		return errors.New("--mongo-migration-batch-size must be at least 1")
	}
	return nil
}

// Validate checks the flags for the selected store type only.
func (f *StoreFlags) Validate() error {
	switch f.StoreType {
	case "postgres":
		return f.PostgresStore.Validate()
	case "mongodb":
		return f.MongoStore.Validate()
	}
	return nil
}

// openStore connects to the selected backend. The caller owns the returned store
// and must Close it.
func (f *StoreFlags) openStore(ctx context.Context, log zerolog.Logger) (store.Store, error) {
	switch f.StoreType {
	case "postgres":
		pool, err := postgresstore.NewPool(ctx, &postgresstore.PoolConfig{
			ConnString:      f.PostgresStore.ConnString,
			MaxConns:        f.PostgresStore.MaxConns,
			MinConns:        f.PostgresStore.MinConns,
			MaxConnLifetime: f.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: f.PostgresStore.MaxConnIdleTime,
			StartupTimeout:  f.ConnectTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}

		st, err := postgresstore.NewStore(ctx, pool, &postgresstore.StoreConfig{
			AutoMigrate:         f.PostgresStore.AutoMigrate,
			QueryTimeoutSeconds: util.DurationSeconds(f.QueryTimeout),
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create postgres store: %w", err)
		}

		if f.PostgresStore.AutoMigrate {
			log.Info().Msg("Database migrations completed")
		}
		log.Info().Msg("Using PostgreSQL store")
		return st, nil

	case "mongodb":
		cfg := &mongostore.Config{
			URI:                f.MongoStore.URI,
			Database:           f.MongoStore.Database,
			StartupTimeout:     f.ConnectTimeout,
			QueryTimeout:       f.QueryTimeout,
			MigrationBatchSize: f.MongoStore.MigrationBatchSize,
		}

		client, err := mongostore.Connect(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
		}

		st, err := mongostore.NewStore(ctx, client, cfg)
		if err != nil {
			_ = client.Disconnect(context.WithoutCancel(ctx))
			return nil, fmt.Errorf("failed to create mongodb store: %w", err)
		}

		log.Info().Str("database", cfg.Database).Msg("Using MongoDB store")
		return st, nil

	default:
		log.Warn().Msg("Using in-memory store, data is lost on restart")
		return memorystore.NewStore(), nil
	}
}
