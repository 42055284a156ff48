//go:build integration

package mongodb

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/orgd/internal/models"
	"github.com/wolfeidau/orgd/internal/store"
)

func setupMongoContainer(t *testing.T, ctx context.Context) (*Store, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "mongo:8",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForLog("Waiting for connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "27017")
	require.NoError(t, err)

	cfg := &Config{
		URI:                fmt.Sprintf("mongodb://%s:%s", host, port.Port()),
		Database:           "orgd_test",
		MigrationBatchSize: 2,
	}

	client, err := Connect(ctx, cfg)
	require.NoError(t, err)

	st, err := NewStore(ctx, client, cfg)
	require.NoError(t, err)

	cleanup := func() {
		_ = st.Close(ctx)
		_ = container.Terminate(ctx)
	}

	return st, cleanup
}

func TestIntegration_TenantLifecycle(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupMongoContainer(t, ctx)
	defer cleanup()

	org := &models.Organization{Name: "Acme Co", CollectionName: "org_acme_co"}
	admin := &models.Admin{Email: "a@x.com", PasswordHash: "hash"}

	t.Run("create links both records", func(t *testing.T) {
		require.NoError(t, st.CreateOrganizationAndAdmin(ctx, org, admin))

		found, err := st.FindOrganizationByCollection(ctx, "org_acme_co")
		require.NoError(t, err)
		require.Equal(t, org.ID, found.ID)
		require.Equal(t, admin.ID, found.AdminUserID)

		foundAdmin, err := st.GetAdmin(ctx, admin.ID)
		require.NoError(t, err)
		require.Equal(t, org.ID, foundAdmin.OrganizationID)
	})

	t.Run("failed admin insert removes the organization", func(t *testing.T) {
		err := st.CreateOrganizationAndAdmin(ctx,
			&models.Organization{Name: "Other", CollectionName: "org_other"},
			&models.Admin{Email: "a@x.com", PasswordHash: "hash"})
		require.ErrorIs(t, err, store.ErrEmailAlreadyExists)

		_, err = st.FindOrganizationByName(ctx, "Other")
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
	})

	t.Run("unique indexes", func(t *testing.T) {
		err := st.CreateOrganizationAndAdmin(ctx,
			&models.Organization{Name: "Acme Co", CollectionName: "org_x"},
			&models.Admin{Email: "x@x.com", PasswordHash: "hash"})
		require.ErrorIs(t, err, store.ErrOrganizationAlreadyExists)

		err = st.CreateOrganizationAndAdmin(ctx,
			&models.Organization{Name: "Acme-Co", CollectionName: "org_acme_co"},
			&models.Admin{Email: "x@x.com", PasswordHash: "hash"})
		require.ErrorIs(t, err, store.ErrCollectionNameTaken)
	})

	t.Run("patch and delete", func(t *testing.T) {
		email := "new@x.com"
		require.NoError(t, st.UpdateAdmin(ctx, admin.ID, models.AdminUpdate{Email: &email}))

		_, err := st.FindAdminByEmail(ctx, "new@x.com")
		require.NoError(t, err)

		require.NoError(t, st.DeleteAdmin(ctx, admin.ID))
		require.NoError(t, st.DeleteOrganization(ctx, org.ID))
		require.ErrorIs(t, st.DeleteOrganization(ctx, org.ID), store.ErrOrganizationNotFound)

		_, err = st.GetOrganization(ctx, "not-an-object-id")
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
	})
}

func TestIntegration_Collections(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupMongoContainer(t, ctx)
	defer cleanup()

	require.NoError(t, st.CreateCollection(ctx, "org_acme_co"))
	require.ErrorIs(t, st.CreateCollection(ctx, "org_acme_co"), store.ErrCollectionExists)

	// more documents than the batch size so the copy flushes several times
	for i := range 5 {
		doc := &models.Document{Data: json.RawMessage(fmt.Sprintf(`{"n":%d,"tags":["a","b"]}`, i))}
		require.NoError(t, st.InsertDocument(ctx, "org_acme_co", doc))
	}

	err := st.InsertDocument(ctx, "org_missing", &models.Document{Data: json.RawMessage(`{}`)})
	require.ErrorIs(t, err, store.ErrCollectionNotFound)

	before, err := st.ListDocuments(ctx, "org_acme_co")
	require.NoError(t, err)
	require.Len(t, before, 5)
	require.JSONEq(t, `{"n":0,"tags":["a","b"]}`, string(before[0].Data))

	t.Run("migrate into existing target leaves source intact", func(t *testing.T) {
		require.NoError(t, st.CreateCollection(ctx, "org_taken"))

		_, err := st.MigrateCollection(ctx, "org_acme_co", "org_taken")
		require.ErrorIs(t, err, store.ErrCollectionExists)

		docs, err := st.ListDocuments(ctx, "org_acme_co")
		require.NoError(t, err)
		require.Len(t, docs, 5)
	})

	t.Run("migrate copies every document", func(t *testing.T) {
		n, err := st.MigrateCollection(ctx, "org_acme_co", "org_acme_corp")
		require.NoError(t, err)
		require.Equal(t, 5, n)

		after, err := st.ListDocuments(ctx, "org_acme_corp")
		require.NoError(t, err)
		require.Equal(t, before, after)

		exists, err := st.CollectionExists(ctx, "org_acme_co")
		require.NoError(t, err)
		require.False(t, exists)
	})

	t.Run("drop is idempotent", func(t *testing.T) {
		require.NoError(t, st.DropCollection(ctx, "org_acme_corp"))
		require.NoError(t, st.DropCollection(ctx, "org_acme_corp"))
	})
}
