package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"
	"github.com/wolfeidau/orgd/internal/models"
)

const (
	// DefaultTokenTTL is the lifetime of access tokens issued at login.
	DefaultTokenTTL = 60 * time.Minute

	// DefaultIssuer is the iss claim written into and required from tokens.
	DefaultIssuer = "orgd"

	minSecretBytes = 32
)

var (
	ErrExpiredToken   = errors.New("token expired")
	ErrMalformedToken = errors.New("malformed token")
)

// Claims identify the admin and organization a token was issued for.
type Claims struct {
	AdminID        models.ID `json:"admin_id"`
	OrganizationID models.ID `json:"organization_id"`
	Email          string    `json:"email"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 access tokens. Tokens are stateless and
// cannot be revoked before they expire.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithClock replaces the wall clock used for iat, exp and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		t.now = now
	}
}

// WithIssuer overrides DefaultIssuer.
func WithIssuer(issuer string) TokenOption {
	return func(t *TokenIssuer) {
		t.issuer = issuer
	}
}

// WithTTL overrides DefaultTokenTTL.
func WithTTL(ttl time.Duration) TokenOption {
	return func(t *TokenIssuer) {
		t.ttl = ttl
	}
}

// NewTokenIssuer creates an issuer signing with secret, which must be at least 32 bytes.
func NewTokenIssuer(secret []byte, opts ...TokenOption) (*TokenIssuer, error) {
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("token secret must be at least %d bytes, got %d", minSecretBytes, len(secret))
	}

	t := &TokenIssuer{
		secret: append([]byte(nil), secret...),
		issuer: DefaultIssuer,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.ttl <= 0 {
		return nil, fmt.Errorf("token ttl must be positive, got %s", t.ttl)
	}

	return t, nil
}

// TTL returns the lifetime applied by Issue.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token for claims using the configured TTL.
func (t *TokenIssuer) Issue(claims Claims) (string, time.Time, error) {
	return t.IssueWithTTL(claims, t.ttl)
}

// IssueWithTTL signs a token for claims expiring ttl from now. Registered claims
// on the input are replaced.
func (t *TokenIssuer) IssueWithTTL(claims Claims, ttl time.Duration) (string, time.Time, error) {
	if claims.AdminID.IsZero() || claims.OrganizationID.IsZero() {
		return "", time.Time{}, errors.New("admin and organization ids are required")
	}

	jti, err := newTokenID()
	if err != nil {
		return "", time.Time{}, err
	}

	now := t.now()
	expiresAt := jwt.NewNumericDate(now.Add(ttl))

	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        jti,
		Issuer:    t.issuer,
		Subject:   claims.AdminID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: expiresAt,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt.Time, nil
}

// Validate verifies the signature, algorithm, issuer and expiry of token and
// returns its claims.
func (t *TokenIssuer) Validate(token string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	if claims.AdminID.IsZero() || claims.OrganizationID.IsZero() {
		return nil, fmt.Errorf("%w: missing admin_id or organization_id", ErrMalformedToken)
	}

	return claims, nil
}

// newTokenID returns a random base58 token id used to correlate log lines.
func newTokenID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token id: %w", err)
	}
	return base58.Encode(buf), nil
}
