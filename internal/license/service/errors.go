package service

import (
	"errors"
	"time"

	"github.com/aussiebroadwan/licensor/pkg/jwtx"
)

// Domain negatives. Handlers turn these into the negative response shapes;
// anything else coming out of a service is a store or signer failure.
var (
	ErrInvalidInput    = errors.New("invalid_input")
	ErrLicenseNotFound = errors.New("license_not_found")
	ErrInvalidRefresh  = errors.New("invalid_refresh_token")
	ErrTrialUsed       = errors.New("trial_already_used")
	ErrLicenseExists   = errors.New("license_exists")
)

// TokenSigner issues and verifies license tokens. *jwtx.HMACSigner is the
// production implementation.
type TokenSigner interface {
	Issue(playerID, licenseKey string, expiresAt time.Time) (string, error)
	Verify(token string) (*jwtx.Claims, error)
}

// Recorder observes the outcome of each lifecycle operation.
type Recorder interface {
	Observe(operation, outcome string, elapsed time.Duration)
}

// Operation names reported to the Recorder.
const (
	OpCreate          = "create"
	OpValidateLicense = "validate_license"
	OpValidateToken   = "validate_token"
	OpRefreshToken    = "refresh_token"
	OpUpdate          = "update"
	OpDelete          = "delete"
	OpList            = "list"
	OpIssueTrial      = "issue_trial"
)

// Outcome returns the label an operation result is recorded under.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrLicenseNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidRefresh):
		return "invalid_refresh"
	case errors.Is(err, ErrTrialUsed):
		return "trial_used"
	case errors.Is(err, ErrLicenseExists):
		return "exists"
	default:
		return "error"
	}
}
