package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	ihttp "github.com/wolfeidau/orgd/internal/http"
	"github.com/wolfeidau/orgd/internal/tenant"
)

var (
	// ErrBodyTooLarge is returned when a request body exceeds the configured limit.
	ErrBodyTooLarge = errors.New("request body too large")

	// ErrUnsupportedMediaType is returned for bodies that are not JSON.
	ErrUnsupportedMediaType = errors.New("content type must be application/json")
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// statusFor maps a service error kind to an HTTP status and a client safe detail.
// Internal failures never expose the underlying error text.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, err.Error()
	case errors.Is(err, tenant.ErrValidation):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, tenant.ErrConflict):
		return http.StatusConflict, conflictDetail(err)
	case errors.Is(err, tenant.ErrUnauthenticated):
		return http.StatusUnauthorized, tenant.ErrUnauthenticated.Error()
	case errors.Is(err, tenant.ErrInvalidCredentials):
		return http.StatusUnauthorized, tenant.ErrInvalidCredentials.Error()
	case errors.Is(err, tenant.ErrForbidden):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, tenant.ErrIntegrityFault):
		return http.StatusInternalServerError, tenant.ErrIntegrityFault.Error()
	case errors.Is(err, tenant.ErrNotFound):
		return http.StatusNotFound, notFoundDetail(err)
	case errors.Is(err, tenant.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "database unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func conflictDetail(err error) string {
	switch {
	case errors.Is(err, tenant.ErrEmailExists):
		return "Email already registered"
	default:
		return "Organization already exists"
	}
}

func notFoundDetail(err error) string {
	if errors.Is(err, tenant.ErrOrgNotFound) {
		return "Organization not found"
	}
	return "Not found"
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := statusFor(err)

	logger := zerolog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	writeJSON(w, status, ErrorResponse{Detail: detail})
}

// authError adapts writeError to the bearer middleware.
func authError(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, err)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeJSON reads exactly one JSON object into dst, rejecting unknown fields and
// bodies larger than ihttp.DefaultMaxBodyBytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return ErrUnsupportedMediaType
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, ihttp.DefaultMaxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxErr.Limit)
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", tenant.ErrValidation)
		}
		return fmt.Errorf("%w: invalid request body: %w", tenant.ErrValidation, err)
	}

	if dec.More() {
		return fmt.Errorf("%w: request body must contain a single JSON object", tenant.ErrValidation)
	}

	return nil
}
