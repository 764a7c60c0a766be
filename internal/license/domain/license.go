package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/licensor/pkg/licensesdk"
)

// TrialKeyPrefix marks license keys created by trial issuance.
const TrialKeyPrefix = "TRIAL-"

// IsTrialKey reports whether key was minted by trial issuance.
func IsTrialKey(key string) bool {
	return strings.HasPrefix(key, TrialKeyPrefix)
}

// License is the only persisted entity: a license key bound to a player plus
// the credentials currently issued for it. The JSON names match the data
// files written by earlier versions of the service.
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

// UnmarshalJSON accepts every expiration date form requests accept. Rows
// written by earlier versions hold the date exactly as the client sent it.
func (l *License) UnmarshalJSON(b []byte) error {
	type plain License
	var row struct {
		plain
		ExpirationDate string `json:"expirationDate"`
	}
	if err := json.Unmarshal(b, &row); err != nil {
		return err
	}

	exp, err := licensesdk.ParseDate(row.ExpirationDate)
	if err != nil {
		return fmt.Errorf("license %q: %w", row.LicenseKey, err)
	}
	*l = License(row.plain)
	l.ExpirationDate = exp
	return nil
}

// Matches reports whether the record belongs to the (licenseKey, playerID) pair.
func (l License) Matches(licenseKey, playerID string) bool {
	return l.LicenseKey == licenseKey && l.PlayerID == playerID
}

// Issued returns the credential view of the record.
func (l License) Issued() IssuedLicense {
	return IssuedLicense{
		LicenseKey:     l.LicenseKey,
		PlayerID:       l.PlayerID,
		Token:          l.Token,
		RefreshToken:   l.RefreshToken,
		ExpirationDate: l.ExpirationDate,
	}
}

// IssuedLicense is what creation, update and trial issuance hand back.
type IssuedLicense struct {
	LicenseKey     string
	PlayerID       string
	Token          string
	RefreshToken   string
	ExpirationDate time.Time
}

// LicenseUpdate carries the optional changes of an update. An empty key or a
// nil date keeps the current value, so a key can never be set to "".
type LicenseUpdate struct {
	NewLicenseKey     string
	NewExpirationDate *time.Time
}

// TokenValidation is the positive outcome of validating a token. When the
// presented token did not verify and was re-issued through the refresh
// credential, Expired is set and NewToken holds the replacement.
type TokenValidation struct {
	Expired  bool
	NewToken string
	PlayerID string
	Info     ServerInfo
}

// ServerInfo is static metadata echoed to clients on token validation.
type ServerInfo struct {
	SupportDevs  string `yaml:"supportDevs"`
	Announcement string `yaml:"announcement"`
}
