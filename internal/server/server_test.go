package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/orgd/internal/auth"
	"github.com/wolfeidau/orgd/internal/models"
	"github.com/wolfeidau/orgd/internal/store"
	"github.com/wolfeidau/orgd/internal/store/memory"
	"github.com/wolfeidau/orgd/internal/tenant"
	"golang.org/x/crypto/bcrypt"
)

type downPinger struct{}

func (downPinger) Ping(context.Context) error {
	return fmt.Errorf("dial tcp: %w", store.ErrUnavailable)
}

type testServer struct {
	handler http.Handler
	store   *memory.Store
}

func setupServer(t *testing.T) *testServer {
	t.Helper()

	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)

	tokens, err := auth.NewTokenIssuer([]byte("test-secret-key-min-32-bytes-long"))
	require.NoError(t, err)

	st := memory.NewStore()
	svc := tenant.NewService(st, hasher, tokens)
	srv := NewServer(svc, auth.NewResolver(tokens, st), st, Config{ServiceName: "orgd-test", Version: "1.2.3"})

	return &testServer{handler: srv.Handler(), store: st}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) create(t *testing.T, name, email, password string) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/org/create", "", map[string]string{
		"organization_name": name,
		"email":             email,
		"password":          password,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (ts *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/admin/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.AccessToken
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestServer_RootAndHealth(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"healthy","service":"orgd-test","version":"1.2.3"}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"healthy","database":"connected","service":"orgd-test"}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_HealthUnavailable(t *testing.T) {
	hasher, err := auth.NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	tokens, err := auth.NewTokenIssuer([]byte("test-secret-key-min-32-bytes-long"))
	require.NoError(t, err)

	st := memory.NewStore()
	srv := NewServer(tenant.NewService(st, hasher, tokens), auth.NewResolver(tokens, st), downPinger{}, Config{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"status":"unhealthy","database":"disconnected","service":"orgd"}`, rec.Body.String())
}

func TestServer_Create(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		ts := setupServer(t)

		rec := ts.do(t, http.MethodPost, "/org/create", "", map[string]string{
			"organization_name": "Acme Co",
			"email":             "a@x.com",
			"password":          "secret1",
		})
		require.Equal(t, http.StatusCreated, rec.Code)

		view := decodeBody[tenant.OrganizationView](t, rec)
		require.Equal(t, "Acme Co", view.OrganizationName)
		require.Equal(t, "org_acme_co", view.CollectionName)
		require.Equal(t, "a@x.com", view.AdminEmail)
		require.False(t, view.ID.IsZero())
	})

	t.Run("conflicts", func(t *testing.T) {
		ts := setupServer(t)
		ts.create(t, "Acme Co", "a@x.com", "secret1")

		rec := ts.do(t, http.MethodPost, "/org/create", "", map[string]string{
			"organization_name": "Acme Co", "email": "b@x.com", "password": "secret1",
		})
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, "Organization already exists", decodeBody[ErrorResponse](t, rec).Detail)

		rec = ts.do(t, http.MethodPost, "/org/create", "", map[string]string{
			"organization_name": "Other Org", "email": "a@x.com", "password": "secret1",
		})
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, "Email already registered", decodeBody[ErrorResponse](t, rec).Detail)
	})

	t.Run("bad requests", func(t *testing.T) {
		ts := setupServer(t)

		tests := []struct {
			name   string
			body   string
			status int
		}{
			{name: "short name", body: `{"organization_name":"ab","email":"a@x.com","password":"secret1"}`, status: http.StatusUnprocessableEntity},
			{name: "unknown field", body: `{"organization_name":"Acme Co","email":"a@x.com","password":"secret1","role":"root"}`, status: http.StatusUnprocessableEntity},
			{name: "malformed json", body: `{"organization_name":`, status: http.StatusUnprocessableEntity},
			{name: "empty body", body: ``, status: http.StatusUnprocessableEntity},
			{name: "trailing data", body: `{"organization_name":"Acme Co","email":"a@x.com","password":"secret1"} {}`, status: http.StatusUnprocessableEntity},
			{name: "too large", body: `{"organization_name":"` + strings.Repeat("a", 2<<20) + `"}`, status: http.StatusRequestEntityTooLarge},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := ts.do(t, http.MethodPost, "/org/create", "", tt.body)
				require.Equal(t, tt.status, rec.Code, rec.Body.String())
				require.NotEmpty(t, decodeBody[ErrorResponse](t, rec).Detail)
			})
		}
	})

	t.Run("wrong content type", func(t *testing.T) {
		ts := setupServer(t)

		req := httptest.NewRequest(http.MethodPost, "/org/create", strings.NewReader("name=x"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		ts := setupServer(t)

		rec := ts.do(t, http.MethodGet, "/org/create", "", nil)
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestServer_Get(t *testing.T) {
	ts := setupServer(t)
	ts.create(t, "Acme Co", "a@x.com", "secret1")

	rec := ts.do(t, http.MethodPost, "/org/get", "", map[string]string{"organization_name": "Acme Co"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "a@x.com", decodeBody[tenant.OrganizationView](t, rec).AdminEmail)

	rec = ts.do(t, http.MethodPost, "/org/get", "", map[string]string{"organization_name": "Nope"})
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "Organization not found", decodeBody[ErrorResponse](t, rec).Detail)
}

func TestServer_Login(t *testing.T) {
	ts := setupServer(t)
	ts.create(t, "Acme Co", "a@x.com", "secret1")

	t.Run("success", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/admin/login", "", map[string]string{"email": "a@x.com", "password": "secret1"})
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decodeBody[LoginResponse](t, rec)
		require.NotEmpty(t, resp.AccessToken)
		require.Equal(t, "bearer", resp.TokenType)
		require.Equal(t, "Acme Co", resp.OrganizationName)
		require.InDelta(t, auth.DefaultTokenTTL.Seconds(), resp.ExpiresIn, 5)
	})

	t.Run("bad credentials look the same", func(t *testing.T) {
		wrong := ts.do(t, http.MethodPost, "/admin/login", "", map[string]string{"email": "a@x.com", "password": "nope"})
		unknown := ts.do(t, http.MethodPost, "/admin/login", "", map[string]string{"email": "z@x.com", "password": "secret1"})

		require.Equal(t, http.StatusUnauthorized, wrong.Code)
		require.Equal(t, http.StatusUnauthorized, unknown.Code)
		require.Equal(t, wrong.Body.String(), unknown.Body.String())
		require.Equal(t, "Bearer", wrong.Header().Get("WWW-Authenticate"))
	})

	t.Run("dangling organization is a server error", func(t *testing.T) {
		ts := setupServer(t)
		ts.create(t, "Beta Org", "b@x.com", "secret1")

		org, err := ts.store.FindOrganizationByName(context.Background(), "Beta Org")
		require.NoError(t, err)
		require.NoError(t, ts.store.DeleteOrganization(context.Background(), org.ID))

		rec := ts.do(t, http.MethodPost, "/admin/login", "", map[string]string{"email": "b@x.com", "password": "secret1"})
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestServer_Update(t *testing.T) {
	t.Run("rename", func(t *testing.T) {
		ts := setupServer(t)
		ts.create(t, "Acme Co", "a@x.com", "secret1")
		token := ts.login(t, "a@x.com", "secret1")

		require.NoError(t, ts.store.InsertDocument(context.Background(), "org_acme_co",
			&models.Document{Data: json.RawMessage(`{"k":"v"}`)}))

		rec := ts.do(t, http.MethodPut, "/org/update", token, map[string]string{
			"old_organization_name": "Acme Co",
			"new_organization_name": "Acme Corp",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		require.JSONEq(t, `{
			"message": "Organization updated successfully",
			"details": {
				"organization_name": "Acme Corp",
				"collection_name": "org_acme_corp",
				"name_changed": true,
				"email_updated": false,
				"password_updated": false
			}
		}`, rec.Body.String())

		docs, err := ts.store.ListDocuments(context.Background(), "org_acme_corp")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		require.JSONEq(t, `{"k":"v"}`, string(docs[0].Data))

		// the token keeps working because identity is read at request time
		rec = ts.do(t, http.MethodPut, "/org/update", token, map[string]string{
			"old_organization_name": "Acme Corp",
			"new_organization_name": "Acme Corp",
			"password":              "secret2",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		ts.login(t, "a@x.com", "secret2")
	})

	t.Run("unauthenticated", func(t *testing.T) {
		ts := setupServer(t)
		body := map[string]string{"old_organization_name": "Acme Co", "new_organization_name": "Acme Corp"}

		for _, token := range []string{"", "not-a-token"} {
			rec := ts.do(t, http.MethodPut, "/org/update", token, body)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			require.Equal(t, "could not validate credentials", decodeBody[ErrorResponse](t, rec).Detail)
		}
	})

	t.Run("forbidden", func(t *testing.T) {
		ts := setupServer(t)
		ts.create(t, "Acme Co", "a@x.com", "secret1")
		ts.create(t, "Beta Org", "b@x.com", "secret1")
		token := ts.login(t, "b@x.com", "secret1")

		rec := ts.do(t, http.MethodPut, "/org/update", token, map[string]string{
			"old_organization_name": "Acme Co",
			"new_organization_name": "Mine Now",
		})
		require.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("email taken", func(t *testing.T) {
		ts := setupServer(t)
		ts.create(t, "Acme Co", "a@x.com", "secret1")
		ts.create(t, "Beta Org", "b@x.com", "secret1")
		token := ts.login(t, "a@x.com", "secret1")

		rec := ts.do(t, http.MethodPut, "/org/update", token, map[string]string{
			"old_organization_name": "Acme Co",
			"new_organization_name": "Acme Co",
			"email":                 "b@x.com",
		})
		require.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestServer_Delete(t *testing.T) {
	ts := setupServer(t)
	ts.create(t, "Acme Co", "a@x.com", "secret1")
	token := ts.login(t, "a@x.com", "secret1")

	rec := ts.do(t, http.MethodDelete, "/org/delete", token, map[string]string{"organization_name": "Acme Co"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.JSONEq(t, `{
		"message": "Organization deleted successfully",
		"details": {"organization_name": "Acme Co", "collection_deleted": "org_acme_co"}
	}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/org/get", "", map[string]string{"organization_name": "Acme Co"})
	require.Equal(t, http.StatusNotFound, rec.Code)

	// the admin is gone so the same token no longer authenticates
	rec = ts.do(t, http.MethodDelete, "/org/delete", token, map[string]string{"organization_name": "Acme Co"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{err: fmt.Errorf("%w: bad", tenant.ErrValidation), status: http.StatusUnprocessableEntity},
		{err: tenant.ErrOrgExists, status: http.StatusConflict},
		{err: tenant.ErrEmailExists, status: http.StatusConflict},
		{err: fmt.Errorf("%w: expired", auth.ErrUnauthenticated), status: http.StatusUnauthorized},
		{err: tenant.ErrInvalidCredentials, status: http.StatusUnauthorized},
		{err: tenant.ErrForbidden, status: http.StatusForbidden},
		{err: tenant.ErrOrgNotFound, status: http.StatusNotFound},
		{err: fmt.Errorf("%w: %w", tenant.ErrIntegrityFault, tenant.ErrOrgNotFound), status: http.StatusInternalServerError},
		{err: fmt.Errorf("ping: %w", store.ErrUnavailable), status: http.StatusServiceUnavailable},
		{err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, detail := statusFor(tt.err)
			require.Equal(t, tt.status, status)
			require.NotEmpty(t, detail)
		})
	}
}
