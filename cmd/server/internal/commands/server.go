package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/wolfeidau/orgd/internal/auth"
	httpmiddleware "github.com/wolfeidau/orgd/internal/http"
	"github.com/wolfeidau/orgd/internal/logger"
	"github.com/wolfeidau/orgd/internal/server"
	"github.com/wolfeidau/orgd/internal/telemetry"
	"github.com/wolfeidau/orgd/internal/tenant"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceName = "orgd"

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8000" env:"ORGD_LISTEN"`
	Cert   string `help:"path to TLS cert file (serves plain HTTP when empty)" default:"" env:"ORGD_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"ORGD_TLS_KEY"`

	ShutdownTimeout time.Duration `help:"how long to wait for in-flight requests on shutdown" default:"15s" env:"ORGD_SHUTDOWN_TIMEOUT"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"*" env:"ORGD_CORS_ORIGINS"`

	// Token and password configuration
	Token      TokenFlags `embed:"" prefix:"token-"`
	BcryptCost int        `help:"bcrypt cost for admin passwords" default:"12" env:"ORGD_BCRYPT_COST"`

	// Telemetry
	Tracing     bool    `help:"enable tracing and metrics export" default:"false" env:"ORGD_TRACING"`
	SampleRatio float64 `help:"fraction of traces sampled when tracing is enabled" default:"1" env:"ORGD_TRACE_SAMPLE_RATIO"`

	// Store configuration
	Store StoreFlags `embed:""`
}

type TokenFlags struct {
	Secret string        `help:"HMAC secret for signing access tokens (at least 32 bytes)" env:"ORGD_TOKEN_SECRET"`
	TTL    time.Duration `help:"access token lifetime" default:"60m" env:"ORGD_TOKEN_TTL"`
	Issuer string        `help:"access token issuer" default:"orgd" env:"ORGD_TOKEN_ISSUER"`
}

func (t *TokenFlags) Validate() error {
	if t.Secret == "" {
		return errors.New("token signing secret is required (--token-secret or ORGD_TOKEN_SECRET)")
	}
	if len(t.Secret) < 32 {
		return errors.New("token signing secret must be at least 32 bytes (256 bits) for HMAC-SHA256")
	}
	if t.TTL <= 0 {
		return errors.New("--token-ttl must be positive")
	}
	return nil
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Dev)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = log.WithContext(ctx)

	log.Info().Str("version", globals.Version).Bool("dev", globals.Dev).Msg("Starting server")

	if err := c.Token.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Float64("sample_ratio", c.SampleRatio).Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: serviceName,
			Version:     globals.Version,
			SampleRatio: c.SampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	st, err := c.Store.openStore(ctx, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("Failed to close store")
		}
	}()

	hasher, err := auth.NewPasswordHasher(c.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to create password hasher: %w", err)
	}

	tokens, err := auth.NewTokenIssuer([]byte(c.Token.Secret),
		auth.WithTTL(c.Token.TTL),
		auth.WithIssuer(c.Token.Issuer),
	)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	srv := server.NewServer(
		tenant.NewService(st, hasher, tokens),
		auth.NewResolver(tokens, st),
		st,
		server.Config{ServiceName: serviceName, Version: globals.Version},
	)

	handler := httpmiddleware.Chain(srv.Handler(),
		httpmiddleware.ClientIPMiddleware(),
		logger.RequestLogger(log),
		withCORS(c.CORSOrigins),
		withGzip,
		httpmiddleware.MaxBodyMiddleware(httpmiddleware.DefaultMaxBodyBytes),
	)
	handler = otelhttp.NewHandler(handler, serviceName)

	httpServer := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		tlsEnabled := c.Cert != "" && c.Key != ""
		log.Info().Str("addr", c.Listen).Bool("tls", tlsEnabled).Str("store", c.Store.StoreType).Msg("Listening")

		if tlsEnabled {
			errCh <- httpServer.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Dur("timeout", c.ShutdownTimeout).Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}

// withCORS allows browser clients on the configured origins to call the API
// with a bearer token.
func withCORS(allowedOrigins []string) httpmiddleware.Middleware {
	middleware := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"WWW-Authenticate"},
		MaxAge:         600,
	})
	return middleware.Handler
}

func withGzip(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}
