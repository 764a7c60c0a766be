package licensesdk

import (
	"fmt"
	"time"
)

// Messages carried in response bodies.
const (
	MsgLicenseCreated   = "License created"
	MsgInvalidLicense   = "Invalid license or playerId"
	MsgInvalidRefresh   = "Invalid refresh token"
	MsgLicenseUpdated   = "License updated"
	MsgLicenseNotFound  = "License not found"
	MsgLicenseDeleted   = "License deleted"
	MsgTrialUsed        = "Trial already used"
	MsgMissingPlayerID  = "Missing playerId"
	MsgLicenseDuplicate = "License already exists"
)

// ============================================================================
// Requests
// ============================================================================

// CreateLicenseRequest is the body of POST /create-license.
// ExpirationDate accepts anything ParseDate does.
type CreateLicenseRequest struct {
	PlayerID       string `json:"playerId" validate:"required"`
	LicenseKey     string `json:"licenseKey" validate:"required"`
	ExpirationDate string `json:"expirationDate" validate:"required"`
}

// ValidateLicenseRequest is the body of POST /validate-license.
type ValidateLicenseRequest struct {
	LicenseKey string `json:"licenseKey" validate:"required"`
	PlayerID   string `json:"playerId" validate:"required"`
}

// ValidateTokenRequest is the body of POST /validate-token. RefreshToken is
// only consulted when Token does not verify.
type ValidateTokenRequest struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	PlayerID     string `json:"playerId" validate:"required"`
}

// RefreshTokenRequest is the body of POST /refresh-token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// UpdateLicenseRequest is the body of POST /update-license. Empty New fields
// keep the current value.
type UpdateLicenseRequest struct {
	PlayerID          string `json:"playerId" validate:"required"`
	LicenseKey        string `json:"licenseKey" validate:"required"`
	NewLicenseKey     string `json:"newLicenseKey,omitempty"`
	NewExpirationDate string `json:"newExpirationDate,omitempty"`
}

// DeleteLicenseRequest is the body of POST /delete-license.
type DeleteLicenseRequest struct {
	LicenseKey string `json:"licenseKey" validate:"required"`
	PlayerID   string `json:"playerId" validate:"required"`
}

// TrialRequest is the body of POST /get-trial.
type TrialRequest struct {
	PlayerID string `json:"playerId"`
}

// ============================================================================
// Responses
// ============================================================================

// NegativeResponse is the {valid:false, message} answer of the lookups.
type NegativeResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// CreateLicenseResponse answers POST /create-license.
type CreateLicenseResponse struct {
	Message        string    `json:"message"`
	Token          string    `json:"token"`
	RefreshToken   string    `json:"refreshToken"`
	ExpirationDate time.Time `json:"expirationDate"`
}

// ValidateLicenseResponse answers POST /validate-license.
type ValidateLicenseResponse struct {
	Valid          bool      `json:"valid"`
	Token          string    `json:"token,omitempty"`
	RefreshToken   string    `json:"refreshToken,omitempty"`
	ExpirationDate time.Time `json:"expirationDate,omitzero"`
	Message        string    `json:"message,omitempty"`
}

// ValidateTokenResponse answers POST /validate-token. NewToken is null
// unless Expired is set.
type ValidateTokenResponse struct {
	Valid        bool    `json:"valid"`
	Expired      bool    `json:"expired"`
	NewToken     *string `json:"newToken"`
	PlayerID     string  `json:"playerId"`
	SupportDevs  string  `json:"supportDevs"`
	Announcement string  `json:"announcement"`
	Message      string  `json:"message,omitempty"`
}

// RefreshTokenResponse answers POST /refresh-token.
type RefreshTokenResponse struct {
	Valid   bool   `json:"valid"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
}

// UpdateLicenseResponse answers POST /update-license. A license that does
// not exist yields only Message (and valid:false on the wire).
type UpdateLicenseResponse struct {
	Message           string    `json:"message"`
	NewToken          string    `json:"newToken,omitempty"`
	NewRefreshToken   string    `json:"newRefreshToken,omitempty"`
	NewExpirationDate time.Time `json:"newExpirationDate,omitzero"`
}

// Updated reports whether the update was applied.
func (r *UpdateLicenseResponse) Updated() bool { return r.NewToken != "" }

// DeleteLicenseResponse answers POST /delete-license.
type DeleteLicenseResponse struct {
	Message string `json:"message"`
}

// Deleted reports whether a record was removed.
func (r *DeleteLicenseResponse) Deleted() bool { return r.Message == MsgLicenseDeleted }

// TrialResponse answers POST /get-trial.
type TrialResponse struct {
	Success        bool      `json:"success"`
	TrialKey       string    `json:"trialKey,omitempty"`
	Token          string    `json:"token,omitempty"`
	ExpirationDate time.Time `json:"expirationDate,omitzero"`
	Message        string    `json:"message,omitempty"`
}

// License is one stored record as listed by GET /list-licenses.
type License struct {
	ID             string    `json:"id"`
	LicenseKey     string    `json:"licenseKey"`
	PlayerID       string    `json:"playerId"`
	Token          string    `json:"token"`
	RefreshToken   string    `json:"refreshToken"`
	ExpirationDate time.Time `json:"expirationDate"`
	CreatedAt      time.Time `json:"createdAt,omitzero"`
	UpdatedAt      time.Time `json:"updatedAt,omitzero"`
}

// ListLicensesResponse answers GET /list-licenses.
type ListLicensesResponse struct {
	Count    int       `json:"count"`
	Licenses []License `json:"licenses"`
}

// ============================================================================
// Health
// ============================================================================

// HealthResponse answers /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks holds the per-dependency readiness results.
type HealthChecks struct {
	Store  string `json:"store"`
	Signer string `json:"signer"`
}

// ============================================================================
// Dates
// ============================================================================

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate parses an expiration date. RFC 3339 timestamps are accepted as
// is; the zone-less forms older clients send are read as UTC.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("licensesdk: unrecognised date %q", s)
}

// FormatDate is the inverse of ParseDate used by the client.
func FormatDate(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
