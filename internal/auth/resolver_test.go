package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgd/internal/models"
	"github.com/wolfeidau/orgd/internal/store"
	"github.com/wolfeidau/orgd/internal/store/memory"
)

type unavailableStore struct{}

func (unavailableStore) GetAdmin(ctx context.Context, id models.ID) (*models.Admin, error) {
	return nil, fmt.Errorf("failed to get admin: %w", store.ErrUnavailable)
}

func (unavailableStore) GetOrganization(ctx context.Context, id models.ID) (*models.Organization, error) {
	return nil, fmt.Errorf("failed to get organization: %w", store.ErrUnavailable)
}

func setupResolver(t *testing.T) (*Resolver, *TokenIssuer, *fakeClock, *memory.Store, *models.Organization, *models.Admin) {
	t.Helper()

	st := memory.NewStore()
	org := &models.Organization{Name: "Acme Co", CollectionName: "org_acme_co"}
	admin := &models.Admin{Email: "a@x.com", PasswordHash: "hash"}
	require.NoError(t, st.CreateOrganizationAndAdmin(context.Background(), org, admin))

	issuer, clock := newTestIssuer(t)
	return NewResolver(issuer, st), issuer, clock, st, org, admin
}

func issueFor(t *testing.T, issuer *TokenIssuer, org *models.Organization, admin *models.Admin) string {
	t.Helper()
	token, _, err := issuer.Issue(Claims{AdminID: admin.ID, OrganizationID: org.ID, Email: admin.Email})
	require.NoError(t, err)
	return token
}

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("identity comes from the store", func(t *testing.T) {
		resolver, issuer, _, st, org, admin := setupResolver(t)
		token := issueFor(t, issuer, org, admin)

		// records changed after login are reflected
		name := "Acme Corp"
		require.NoError(t, st.UpdateOrganization(ctx, org.ID, models.OrganizationUpdate{Name: &name}))

		identity, err := resolver.Resolve(ctx, token)
		require.NoError(t, err)
		require.Equal(t, &Identity{
			AdminID:          admin.ID,
			Email:            "a@x.com",
			OrganizationID:   org.ID,
			OrganizationName: "Acme Corp",
			CollectionName:   "org_acme_co",
		}, identity)
	})

	t.Run("missing token", func(t *testing.T) {
		resolver, _, _, _, _, _ := setupResolver(t)

		_, err := resolver.Resolve(ctx, "")
		require.ErrorIs(t, err, ErrUnauthenticated)
		require.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("expired token", func(t *testing.T) {
		resolver, issuer, clock, _, org, admin := setupResolver(t)
		token := issueFor(t, issuer, org, admin)

		clock.Advance(61 * time.Minute)
		_, err := resolver.Resolve(ctx, token)
		require.ErrorIs(t, err, ErrUnauthenticated)
		require.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("malformed token", func(t *testing.T) {
		resolver, _, _, _, _, _ := setupResolver(t)

		_, err := resolver.Resolve(ctx, "abc.def.ghi")
		require.ErrorIs(t, err, ErrUnauthenticated)
		require.ErrorIs(t, err, ErrMalformedToken)
	})

	t.Run("deleted admin", func(t *testing.T) {
		resolver, issuer, _, st, org, admin := setupResolver(t)
		token := issueFor(t, issuer, org, admin)
		require.NoError(t, st.DeleteAdmin(ctx, admin.ID))

		_, err := resolver.Resolve(ctx, token)
		require.ErrorIs(t, err, ErrUnauthenticated)
		require.ErrorIs(t, err, store.ErrAdminNotFound)
	})

	t.Run("deleted organization", func(t *testing.T) {
		resolver, issuer, _, st, org, admin := setupResolver(t)
		token := issueFor(t, issuer, org, admin)
		require.NoError(t, st.DeleteOrganization(ctx, org.ID))

		_, err := resolver.Resolve(ctx, token)
		require.ErrorIs(t, err, ErrUnauthenticated)
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
	})

	t.Run("store failures are not disguised", func(t *testing.T) {
		issuer, _ := newTestIssuer(t)
		resolver := NewResolver(issuer, unavailableStore{})
		token, _, err := issuer.Issue(testClaims())
		require.NoError(t, err)

		_, err = resolver.Resolve(ctx, token)
		require.ErrorIs(t, err, store.ErrUnavailable)
		require.False(t, errors.Is(err, ErrUnauthenticated))
	})
}

func TestResolver_Middleware(t *testing.T) {
	resolver, issuer, _, _, org, admin := setupResolver(t)

	var seen *Identity
	handler := resolver.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("valid bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/org/update", nil)
		req.Header.Set("Authorization", "Bearer "+issueFor(t, issuer, org, admin))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, seen)
		require.Equal(t, "Acme Co", seen.OrganizationName)
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/org/update", nil)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
		require.JSONEq(t, `{"detail":"could not validate credentials"}`, rec.Body.String())
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/org/update", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("custom error handler", func(t *testing.T) {
		var got error
		custom := resolver.Middleware(WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			got = err
			w.WriteHeader(http.StatusTeapot)
		}))(http.NotFoundHandler())

		rec := httptest.NewRecorder()
		custom.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/org/delete", nil))

		require.Equal(t, http.StatusTeapot, rec.Code)
		require.ErrorIs(t, got, ErrMissingToken)
	})
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "empty", header: "", want: ""},
		{name: "bearer", header: "Bearer abc", want: "abc"},
		{name: "lower case scheme", header: "bearer abc", want: "abc"},
		{name: "no token", header: "Bearer", want: ""},
		{name: "extra parts", header: "Bearer a b", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			require.Equal(t, tt.want, extractBearerToken(req))
		})
	}
}
