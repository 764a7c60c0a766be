package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer issues license tokens.
type Signer interface {
	Issue(playerID, licenseKey string, expiresAt time.Time) (string, error)
}

// HMACSigner signs and verifies license tokens with a single process-wide
// HS256 secret. It holds no mutable state and is safe for concurrent use.
type HMACSigner struct {
	secret []byte

	// Now is the signer clock, used for iat and for expiry checks.
	// Defaults to time.Now.
	Now func() time.Time
}

var _ interface {
	Signer
	Verifier
} = (*HMACSigner)(nil)

// NewHMACSigner creates a signer for secret. An empty secret is a
// configuration error and is rejected with ErrMissingSecret.
func NewHMACSigner(secret []byte) (*HMACSigner, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}

	// Copy so the caller can wipe its buffer.
	key := make([]byte, len(secret))
	copy(key, secret)

	return &HMACSigner{secret: key, Now: time.Now}, nil
}

func (s *HMACSigner) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Alg is always HS256.
func (s *HMACSigner) Alg() string { return jwt.SigningMethodHS256.Alg() }

// Issue signs a token binding playerID and licenseKey to expiresAt. The
// expiry is stored with second precision.
func (s *HMACSigner) Issue(playerID, licenseKey string, expiresAt time.Time) (string, error) {
	claims := NewLicenseClaims(playerID, licenseKey, expiresAt, s.now())

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return token, nil
}

// Verify checks the signature first and the expiry second, so an expired
// token with a bad signature reports ErrInvalidSig.
func (s *HMACSigner) Verify(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		// Expiry is checked below against the signer clock.
		jwt.WithoutClaimsValidation(),
	)

	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	if err := claims.ValidateExpiry(s.now()); err != nil {
		if errors.Is(err, ErrExpired) {
			return claims, err
		}
		return nil, err
	}

	return claims, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSig, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
