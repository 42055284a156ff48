package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/orgd/internal/models"
	"github.com/wolfeidau/orgd/internal/store"
)

var (
	// ErrUnauthenticated wraps every reason a bearer token does not identify a live admin.
	ErrUnauthenticated = errors.New("could not validate credentials")

	// ErrMissingToken is returned when a request carries no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
)

// Identity is the authenticated admin and the organization they own, read from
// the store at resolve time.
type Identity struct {
	AdminID          models.ID
	Email            string
	OrganizationID   models.ID
	OrganizationName string
	CollectionName   string
}

// IdentityStore is the read-only subset of the tenant store the resolver needs.
type IdentityStore interface {
	GetAdmin(ctx context.Context, id models.ID) (*models.Admin, error)
	GetOrganization(ctx context.Context, id models.ID) (*models.Organization, error)
}

// Resolver turns bearer tokens into identities.
type Resolver struct {
	tokens *TokenIssuer
	store  IdentityStore
}

// NewResolver creates a resolver validating tokens with tokens and loading records from st.
func NewResolver(tokens *TokenIssuer, st IdentityStore) *Resolver {
	return &Resolver{tokens: tokens, store: st}
}

// Resolve validates token and loads the admin and organization it names.
// Token and missing-record failures wrap ErrUnauthenticated; other store
// failures are returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, ErrMissingToken)
	}

	claims, err := r.tokens.Validate(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	admin, err := r.store.GetAdmin(ctx, claims.AdminID)
	if err != nil {
		if errors.Is(err, store.ErrAdminNotFound) {
			zerolog.Ctx(ctx).Warn().Str("admin_id", claims.AdminID.String()).Str("jti", claims.ID).Msg("Token references missing admin")
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return nil, err
	}

	org, err := r.store.GetOrganization(ctx, claims.OrganizationID)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			zerolog.Ctx(ctx).Warn().Str("org_id", claims.OrganizationID.String()).Str("jti", claims.ID).Msg("Token references missing organization")
			return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
		}
		return nil, err
	}

	return &Identity{
		AdminID:          admin.ID,
		Email:            admin.Email,
		OrganizationID:   org.ID,
		OrganizationName: org.Name,
		CollectionName:   org.CollectionName,
	}, nil
}
