package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgd/internal/server"
	"github.com/wolfeidau/orgd/internal/tenant"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config holds common client configuration
type Config struct {
	ServerURL string
	Timeout   time.Duration
	Debug     bool
}

// DefaultConfig returns a default client configuration
func DefaultConfig() Config {
	return Config{
		ServerURL: "http://localhost:8000",
		Timeout:   30 * time.Second,
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Detail, e.StatusCode)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

// UpdateResponse is the body returned by a successful update.
type UpdateResponse struct {
	Message string               `json:"message"`
	Details server.UpdateDetails `json:"details"`
}

// DeleteResponse is the body returned by a successful delete.
type DeleteResponse struct {
	Message string               `json:"message"`
	Details server.DeleteDetails `json:"details"`
}

// Health is the body returned by the health endpoint.
type Health struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Service  string `json:"service"`
}

// Info is the body returned by the root endpoint.
type Info struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

// Client calls the organization API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, for example to add a bearer transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithToken sets the bearer token sent on authenticated calls.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// New creates a client for the server in cfg.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.ServerURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create registers a new organization.
func (c *Client) Create(ctx context.Context, req tenant.CreateRequest) (*tenant.OrganizationView, error) {
	var view tenant.OrganizationView
	if err := c.do(ctx, http.MethodPost, "/org/create", false, req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Get fetches an organization by name.
func (c *Client) Get(ctx context.Context, name string) (*tenant.OrganizationView, error) {
	var view tenant.OrganizationView
	if err := c.do(ctx, http.MethodPost, "/org/get", false, tenant.GetRequest{OrganizationName: name}, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Login exchanges admin credentials for an access token.
func (c *Client) Login(ctx context.Context, email, password string) (*server.LoginResponse, error) {
	var resp server.LoginResponse
	req := tenant.LoginRequest{Email: email, Password: password}
	if err := c.do(ctx, http.MethodPost, "/admin/login", false, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Update renames the caller's organization and optionally changes the admin credentials.
func (c *Client) Update(ctx context.Context, req tenant.UpdateRequest) (*UpdateResponse, error) {
	var resp UpdateResponse
	if err := c.do(ctx, http.MethodPut, "/org/update", true, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Delete removes the caller's organization.
func (c *Client) Delete(ctx context.Context, name string) (*DeleteResponse, error) {
	var resp DeleteResponse
	if err := c.do(ctx, http.MethodDelete, "/org/delete", true, tenant.DeleteRequest{OrganizationName: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Info returns the service name and version.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	var info Info
	if err := c.do(ctx, http.MethodGet, "/", false, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Health returns the server health. An unhealthy server answers 503 with a body,
// which is returned alongside the APIError.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var health Health
	err := c.do(ctx, http.MethodGet, "/health", false, nil, &health)
	if err != nil && !IsStatus(err, http.StatusServiceUnavailable) {
		return nil, err
	}
	return &health, err
}

// WaitHealthy polls the health endpoint until the server reports healthy or
// maxWait elapses.
func (c *Client) WaitHealthy(ctx context.Context, maxWait time.Duration) (*Health, error) {
	return backoff.Retry(ctx, func() (*Health, error) {
		return c.Health(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(maxWait),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug().Err(err).Dur("retry_in", next).Msg("Server not healthy yet")
		}),
	)
}

func (c *Client) do(ctx context.Context, method, path string, authenticated bool, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if authenticated && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log.Debug().Str("method", method).Str("url", req.URL.String()).Msg("Sending request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode, Detail: http.StatusText(resp.StatusCode)}

		var errResp server.ErrorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Detail != "" {
			apiErr.Detail = errResp.Detail
		}

		// Health reports its status in the usual body shape
		if out != nil && resp.StatusCode == http.StatusServiceUnavailable {
			_ = json.Unmarshal(data, out)
		}

		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
