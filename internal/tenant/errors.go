package tenant

import (
	"errors"
	"fmt"

	"github.com/wolfeidau/orgd/internal/auth"
	"github.com/wolfeidau/orgd/internal/store"
)

// Error kinds returned by Service. Callers classify with errors.Is; the HTTP layer
// maps each kind to a status code.
var (
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("conflict")
	ErrUnauthenticated    = auth.ErrUnauthenticated
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrIntegrityFault     = errors.New("data integrity fault")
	ErrStoreUnavailable   = store.ErrUnavailable
)

var (
	ErrOrgExists   = fmt.Errorf("%w: organization already exists", ErrConflict)
	ErrEmailExists = fmt.Errorf("%w: email already registered", ErrConflict)
	ErrOrgNotFound = fmt.Errorf("%w: organization", ErrNotFound)
)

// storeError translates store conflicts the pre-checks lost a race on into
// service conflicts. Everything else is wrapped unchanged.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, store.ErrOrganizationAlreadyExists),
		errors.Is(err, store.ErrCollectionNameTaken),
		errors.Is(err, store.ErrCollectionExists):
		return fmt.Errorf("%w: %w", ErrOrgExists, err)
	case errors.Is(err, store.ErrEmailAlreadyExists):
		return fmt.Errorf("%w: %w", ErrEmailExists, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
