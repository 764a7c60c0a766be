package jwtx

import (
	"errors"
)

// Verifier validates a license token and gives back its claims.
//
// The three outcomes are distinguishable through the returned error:
//   - nil: signature correct and not expired
//   - ErrExpired: signature correct but expired, the claims are still returned
//   - ErrMalformed or ErrInvalidSig: the token cannot be trusted, claims are nil
type Verifier interface {
	Verify(token string) (*Claims, error)
}

var (
	ErrMissingSecret = errors.New("jwtx: signing secret not configured")
	ErrMalformed     = errors.New("jwtx: malformed token")
	ErrInvalidSig    = errors.New("jwtx: invalid signature")
	ErrExpired       = errors.New("jwtx: token expired")
)

// IsUntrusted reports whether err means the token itself cannot be trusted,
// as opposed to a well-signed token that has merely expired.
func IsUntrusted(err error) bool {
	return errors.Is(err, ErrMalformed) || errors.Is(err, ErrInvalidSig)
}
