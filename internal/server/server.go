package server

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/orgd/internal/auth"
	"github.com/wolfeidau/orgd/internal/store"
	"github.com/wolfeidau/orgd/internal/tenant"
)

// Config names the service in the root and health responses.
type Config struct {
	ServiceName string
	Version     string
}

// Server exposes the organization lifecycle over JSON HTTP.
type Server struct {
	service  *tenant.Service
	resolver *auth.Resolver
	db       store.Pinger
	cfg      Config
}

// NewServer creates a server for the given service, token resolver and store.
func NewServer(service *tenant.Service, resolver *auth.Resolver, db store.Pinger, cfg Config) *Server {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "orgd"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Server{
		service:  service,
		resolver: resolver,
		db:       db,
		cfg:      cfg,
	}
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	requireAuth := s.resolver.Middleware(auth.WithErrorHandler(authError))

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /admin/login", s.handleLogin)

	mux.HandleFunc("POST /org/create", s.handleCreate)
	mux.HandleFunc("POST /org/get", s.handleGet)
	mux.Handle("PUT /org/update", requireAuth(http.HandlerFunc(s.handleUpdate)))
	mux.Handle("DELETE /org/delete", requireAuth(http.HandlerFunc(s.handleDelete)))

	return mux
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": s.cfg.ServiceName,
		"version": s.cfg.Version,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, database, code := "healthy", "connected", http.StatusOK

	if err := s.db.Ping(r.Context()); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Health check failed to reach the database")
		status, database, code = "unhealthy", "disconnected", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]string{
		"status":   status,
		"database": database,
		"service":  s.cfg.ServiceName,
	})
}
