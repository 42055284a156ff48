package postgres

import (
	"fmt"
)

// StoreConfig holds tenant-store specific configuration for the PostgreSQL store.
// Pool configuration is handled separately via PoolConfig.
type StoreConfig struct {
	// QueryTimeoutSeconds is the maximum time a single statement or transaction can run.
	// Collection migrations are exempt and run until their context ends.
	// Default: 10 seconds
	// Set to a negative value to use context timeouts only (no additional timeout)
	QueryTimeoutSeconds int32

	// AutoMigrate runs the embedded schema migrations when the store is created.
	AutoMigrate bool
}

// Validate checks that the configuration is valid.
func (c *StoreConfig) Validate() error {
	if c.QueryTimeoutSeconds > 300 {
		return fmt.Errorf("query timeout must not exceed 300 seconds")
	}
	return nil
}

// ApplyDefaults applies default values to unset configuration fields.
func (c *StoreConfig) ApplyDefaults() {
	if c.QueryTimeoutSeconds == 0 {
		c.QueryTimeoutSeconds = 10 // 10 seconds
	}
}
