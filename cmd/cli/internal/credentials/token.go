package credentials

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what the CLI can read from an access token without the server's
// signing key.
type TokenInfo struct {
	ID             string
	Issuer         string
	AdminID        string
	OrganizationID string
	Email          string
	IssuedAt       time.Time
	ExpiresAt      time.Time
}

type accessClaims struct {
	AdminID        string `json:"admin_id"`
	OrganizationID string `json:"organization_id"`
	Email          string `json:"email"`
	jwt.RegisteredClaims
}

// InspectToken decodes an access token's claims without verifying its signature.
// The result is for display and local expiry checks only.
func InspectToken(token string) (*TokenInfo, error) {
	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return nil, errors.New("token has no expiry")
	}

	info := &TokenInfo{
		ID:             claims.ID,
		Issuer:         claims.Issuer,
		AdminID:        claims.AdminID,
		OrganizationID: claims.OrganizationID,
		Email:          claims.Email,
		ExpiresAt:      claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}

	return info, nil
}
