package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the payload of a license token. The JSON names match the tokens
// game clients already hold, so they must not change.
type Claims struct {
	// LicenseKey the token was issued for.
	LicenseKey string `json:"licenseKey"`

	// PlayerID owning the license.
	PlayerID string `json:"playerId"`

	// Only iat and exp are set. There is no issuer or audience because a
	// single service both signs and verifies.
	jwt.RegisteredClaims
}

// NewLicenseClaims builds the claims for a license token issued at now and
// expiring at expiresAt.
func NewLicenseClaims(playerID, licenseKey string, expiresAt, now time.Time) Claims {
	return Claims{
		LicenseKey: licenseKey,
		PlayerID:   playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
}

// Expiry returns the exp claim, or the zero time when the claim is absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ValidateExpiry reports ErrExpired once now has reached exp. A token is valid
// for every instant strictly before its expiry.
func (c *Claims) ValidateExpiry(now time.Time) error {
	if c.ExpiresAt == nil {
		return ErrMalformed
	}
	if !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}
	return nil
}
