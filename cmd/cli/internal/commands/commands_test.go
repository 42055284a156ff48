package commands

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgd/cmd/cli/internal/credentials"
	"github.com/wolfeidau/orgd/internal/auth"
	"github.com/wolfeidau/orgd/internal/server"
	"github.com/wolfeidau/orgd/internal/store/memory"
	"github.com/wolfeidau/orgd/internal/tenant"
	"golang.org/x/crypto/bcrypt"
)

func setupGlobals(t *testing.T) (*Globals, *memory.Store) {
	t.Helper()

	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := auth.NewTokenIssuer([]byte("test-secret-key-min-32-bytes-long"))
	require.NoError(t, err)

	st := memory.NewStore()
	srv := server.NewServer(tenant.NewService(st, hasher, tokens), auth.NewResolver(tokens, st), st, server.Config{})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &Globals{
		ServerURL:      ts.URL,
		Timeout:        5 * time.Second,
		CredentialsDir: t.TempDir(),
	}, st
}

func TestCommands_Lifecycle(t *testing.T) {
	ctx := context.Background()
	globals, st := setupGlobals(t)

	require.NoError(t, (&CreateCmd{Name: "Acme Co", Email: "a@x.com", Password: "secret1"}).Run(ctx, globals))
	require.NoError(t, (&GetCmd{Name: "Acme Co"}).Run(ctx, globals))
	require.NoError(t, (&HealthCmd{}).Run(ctx, globals))

	require.NoError(t, (&LoginCmd{Email: "a@x.com", Password: "secret1", Session: "acme"}).Run(ctx, globals))

	store, err := credentials.NewStore(globals.CredentialsDir)
	require.NoError(t, err)

	session, err := store.GetDefault()
	require.NoError(t, err)
	assert.Equal(t, "acme", session.Name)
	assert.Equal(t, "Acme Co", session.OrganizationName)
	assert.Equal(t, globals.ServerURL, session.ServerURL)
	assert.WithinDuration(t, time.Now().Add(auth.DefaultTokenTTL), session.ExpiresAt, 5*time.Second)

	require.NoError(t, (&SessionsListCmd{}).Run(ctx, globals))
	require.NoError(t, (&SessionsShowCmd{}).Run(ctx, globals))

	// old name defaults to the session's organization
	require.NoError(t, (&UpdateCmd{NewName: "Acme Corp", Email: "ops@x.com"}).Run(ctx, globals))

	session, err = store.Get("acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", session.OrganizationName)
	assert.Equal(t, "ops@x.com", session.Email)

	exists, err := st.CollectionExists(ctx, "org_acme_corp")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, (&DeleteCmd{Name: "Acme Corp"}).Run(ctx, globals))

	_, err = store.Get("acme")
	require.ErrorIs(t, err, credentials.ErrSessionNotFound)

	require.Error(t, (&GetCmd{Name: "Acme Corp"}).Run(ctx, globals))
}

func TestCommands_RequireSession(t *testing.T) {
	ctx := context.Background()
	globals, _ := setupGlobals(t)

	err := (&UpdateCmd{NewName: "Anything"}).Run(ctx, globals)
	require.ErrorContains(t, err, "not logged in")

	err = (&DeleteCmd{Name: "Anything", Session: "missing"}).Run(ctx, globals)
	require.ErrorContains(t, err, `session "missing" not found`)
}

func TestCommands_ExpiredSession(t *testing.T) {
	ctx := context.Background()
	globals, _ := setupGlobals(t)

	store, err := credentials.NewStore(globals.CredentialsDir)
	require.NoError(t, err)
	require.NoError(t, store.Save(credentials.Session{
		Name:        "old",
		ServerURL:   globals.ServerURL,
		AccessToken: "stale",
		ExpiresAt:   time.Now().Add(-time.Minute),
	}))

	err = (&DeleteCmd{Name: "Acme Co"}).Run(ctx, globals)
	require.ErrorIs(t, err, credentials.ErrSessionExpired)
}

func TestCommands_LoginFailure(t *testing.T) {
	ctx := context.Background()
	globals, _ := setupGlobals(t)

	err := (&LoginCmd{Email: "a@x.com", Password: "wrong", Session: "default"}).Run(ctx, globals)
	require.ErrorContains(t, err, "invalid email or password")

	store, err := credentials.NewStore(globals.CredentialsDir)
	require.NoError(t, err)
	sessions, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSessionsCmds(t *testing.T) {
	ctx := context.Background()
	globals := &Globals{CredentialsDir: t.TempDir()}

	require.NoError(t, (&SessionsListCmd{}).Run(ctx, globals))

	store, err := credentials.NewStore(globals.CredentialsDir)
	require.NoError(t, err)
	require.NoError(t, store.Save(credentials.Session{Name: "one"}))
	require.NoError(t, store.Save(credentials.Session{Name: "two"}))

	require.NoError(t, (&SessionsUseCmd{Name: "two"}).Run(ctx, globals))
	name, err := store.DefaultName()
	require.NoError(t, err)
	assert.Equal(t, "two", name)

	require.Error(t, (&SessionsUseCmd{Name: "three"}).Run(ctx, globals))

	require.NoError(t, (&SessionsLogoutCmd{}).Run(ctx, globals))
	_, err = store.Get("two")
	require.ErrorIs(t, err, credentials.ErrSessionNotFound)

	require.ErrorIs(t, (&SessionsLogoutCmd{}).Run(ctx, globals), credentials.ErrNoDefaultSession)
}
