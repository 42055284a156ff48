package commands

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestReadSeedDocuments(t *testing.T) {
	input := `
sku: a-1
qty: 3
---
- name: first
  tags: [x, y]
- name: second
  nested:
    1: one
    enabled: true
---
`
	docs, err := readSeedDocuments(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, docs, 3)

	require.JSONEq(t, `{"sku":"a-1","qty":3}`, string(docs[0]))
	require.JSONEq(t, `{"name":"first","tags":["x","y"]}`, string(docs[1]))
	require.JSONEq(t, `{"name":"second","nested":{"1":"one","enabled":true}}`, string(docs[2]))
}

func TestReadSeedDocuments_NotMapping(t *testing.T) {
	_, err := readSeedDocuments(strings.NewReader("- just a string\n"))
	require.ErrorContains(t, err, "not a mapping")
}

func TestStoreFlags_Validate(t *testing.T) {
	tests := []struct {
		name    string
		flags   StoreFlags
		wantErr string
	}{
		{name: "memory needs nothing", flags: StoreFlags{StoreType: "memory"}},
		{name: "postgres needs a connection string", flags: StoreFlags{StoreType: "postgres"}, wantErr: "connection string is required"},
		{
			name: "postgres pool bounds",
			flags: StoreFlags{StoreType: "postgres", PostgresStore: PostgresStoreFlags{
				ConnString: "postgres://localhost/orgd", MinConns: 10, MaxConns: 5,
			}},
			wantErr: "must not exceed",
		},
		{name: "mongodb needs a uri", flags: StoreFlags{StoreType: "mongodb"}, wantErr: "MongoDB URI is required"},
		{
			name:    "mongodb batch size",
			flags:   StoreFlags{StoreType: "mongodb", MongoStore: MongoStoreFlags{URI: "mongodb://localhost"}},
			wantErr: "batch-size",
		},
		{
			name:  "mongodb valid",
			flags: StoreFlags{StoreType: "mongodb", MongoStore: MongoStoreFlags{URI: "mongodb://localhost", MigrationBatchSize: 100}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.flags.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestTokenFlags_Validate(t *testing.T) {
	require.ErrorContains(t, (&TokenFlags{TTL: 1}).Validate(), "required")
	require.ErrorContains(t, (&TokenFlags{Secret: "short", TTL: 1}).Validate(), "at least 32 bytes")
	require.ErrorContains(t, (&TokenFlags{Secret: strings.Repeat("s", 32)}).Validate(), "positive")
	require.NoError(t, (&TokenFlags{Secret: strings.Repeat("s", 32), TTL: 1}).Validate())
}

func TestOpenStore_Memory(t *testing.T) {
	flags := StoreFlags{StoreType: "memory"}

	st, err := flags.openStore(context.Background(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Ping(context.Background()))
	require.NoError(t, st.Close(context.Background()))
}

func TestSeedCmd_Memory(t *testing.T) {
	// A memory store is empty on every open, so the organization lookup fails
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte("a: 1\n"), 0600))

	cmd := &SeedCmd{Organization: "Acme Co", File: path, Store: StoreFlags{StoreType: "memory"}}
	err := cmd.Run(&Globals{})
	require.ErrorContains(t, err, `failed to find organization "Acme Co"`)
}

func TestWithCORS(t *testing.T) {
	handler := withCORS([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name          string
		origin        string
		expectOrigin  string
		expectMethods bool
	}{
		{name: "allowed origin", origin: "https://app.example.com", expectOrigin: "https://app.example.com", expectMethods: true},
		{name: "disallowed origin", origin: "https://evil.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// browsers send the requested headers lower cased and comma separated
			req := httptest.NewRequest(http.MethodOptions, "/org/update", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodPut)
			req.Header.Set("Access-Control-Request-Headers", "authorization,content-type")

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, tt.expectOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			if tt.expectMethods {
				require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
			} else {
				require.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
			}
		})
	}
}

func TestWithGzip(t *testing.T) {
	body := strings.Repeat(`{"k":"v"}`, 200)
	handler := withGzip(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Encoding", "gzip")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}

