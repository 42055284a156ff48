package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgd/internal/store"
)

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "organization name unique violation",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintOrganizationName},
			want: store.ErrOrganizationAlreadyExists,
		},
		{
			name: "collection name unique violation",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintCollectionName},
			want: store.ErrCollectionNameTaken,
		},
		{
			name: "email unique violation",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintAdminEmail},
			want: store.ErrEmailAlreadyExists,
		},
		{
			name: "collection registry violation",
			err:  &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: constraintTenantCollection},
			want: store.ErrCollectionExists,
		},
		{
			name: "document for missing collection",
			err:  &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation},
			want: store.ErrCollectionNotFound,
		},
		{
			name: "server shutting down",
			err:  &pgconn.PgError{Code: pgerrcode.AdminShutdown},
			want: store.ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, mapPostgresError(tt.err), tt.want)
		})
	}

	t.Run("nil stays nil", func(t *testing.T) {
		require.NoError(t, mapPostgresError(nil))
	})

	t.Run("non postgres errors pass through", func(t *testing.T) {
		err := errors.New("boom")
		require.Equal(t, err, mapPostgresError(err))
	})

	t.Run("unknown unique constraint is not a sentinel", func(t *testing.T) {
		err := mapPostgresError(&pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "other"})
		require.Error(t, err)
		require.NotErrorIs(t, err, store.ErrOrganizationAlreadyExists)
	})
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	require.Equal(t, 1, migrations[0].version)
	require.Contains(t, migrations[0].content, "CREATE TABLE organizations")

	for i := 1; i < len(migrations); i++ {
		require.Less(t, migrations[i-1].version, migrations[i].version)
	}
}

func TestPoolConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := &PoolConfig{ConnString: "postgres://localhost/test"}
		cfg.ApplyDefaults()
		require.Equal(t, int32(20), cfg.MaxConns)
		require.Equal(t, int32(2), cfg.MinConns)
		require.NoError(t, cfg.Validate())
	})

	t.Run("missing connection string", func(t *testing.T) {
		cfg := &PoolConfig{}
		cfg.ApplyDefaults()
		require.Error(t, cfg.Validate())
	})

	t.Run("min above max", func(t *testing.T) {
		cfg := &PoolConfig{ConnString: "postgres://localhost/test", MaxConns: 2, MinConns: 5}
		require.Error(t, cfg.Validate())
	})
}
