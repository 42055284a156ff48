package mongodb

import (
	"errors"
	"fmt"
	"time"
)

// maxMigrationBatchSize bounds the buffered insert batch during a migration.
const maxMigrationBatchSize = 10000

// Config holds configuration for the MongoDB-backed store.
type Config struct {
	// URI is the MongoDB connection string, for example mongodb://localhost:27017
	URI string

	// Database is the master database holding organizations, admins and tenant collections.
	// Default: orgd
	Database string

	// ConnectTimeout bounds each dial and server selection.
	// Default: 10 seconds
	ConnectTimeout time.Duration

	// StartupTimeout bounds the total time spent retrying the initial ping.
	// Default: 30 seconds
	StartupTimeout time.Duration

	// QueryTimeout bounds individual operations. Zero disables the per-query timeout.
	// Default: 10 seconds
	QueryTimeout time.Duration

	// MigrationBatchSize is the number of documents copied per insert during a collection migration.
	// Default: 500, at most 10000
	MigrationBatchSize int
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.URI == "" {
		return errors.New("uri is required")
	}
	if c.Database == "" {
		return errors.New("database is required")
	}
	if c.MigrationBatchSize < 1 || c.MigrationBatchSize > maxMigrationBatchSize {
		return fmt.Errorf("migration batch size must be between 1 and %d, got %d", maxMigrationBatchSize, c.MigrationBatchSize)
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *Config) ApplyDefaults() {
	if c.Database == "" {
		c.Database = "orgd"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.StartupTimeout == 0 {
		c.StartupTimeout = 30 * time.Second
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 10 * time.Second
	}
	if c.MigrationBatchSize == 0 {
		c.MigrationBatchSize = 500
	}
}
