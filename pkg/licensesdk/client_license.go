package licensesdk

import (
	"context"
	"net/http"
	"time"
)

// CreateLicense creates a license for the pair. Requires the admin token
// when the server has one.
func (c *Client) CreateLicense(
	ctx context.Context,
	playerID, licenseKey string,
	expirationDate time.Time,
) (*CreateLicenseResponse, error) {
	req := CreateLicenseRequest{
		PlayerID:       playerID,
		LicenseKey:     licenseKey,
		ExpirationDate: FormatDate(expirationDate),
	}

	var out CreateLicenseResponse
	if err := c.call(ctx, http.MethodPost, "/create-license", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateLicense returns the stored credentials for the pair, or Valid
// false when there are none.
func (c *Client) ValidateLicense(ctx context.Context, licenseKey, playerID string) (*ValidateLicenseResponse, error) {
	req := ValidateLicenseRequest{LicenseKey: licenseKey, PlayerID: playerID}

	var out ValidateLicenseResponse
	if err := c.call(ctx, http.MethodPost, "/validate-license", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateToken checks a token, falling back to the refresh token when the
// token no longer verifies.
func (c *Client) ValidateToken(ctx context.Context, req ValidateTokenRequest) (*ValidateTokenResponse, error) {
	var out ValidateTokenResponse
	if err := c.call(ctx, http.MethodPost, "/validate-token", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshToken re-issues the token for a refresh token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*RefreshTokenResponse, error) {
	req := RefreshTokenRequest{RefreshToken: refreshToken}

	var out RefreshTokenResponse
	if err := c.call(ctx, http.MethodPost, "/refresh-token", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateLicense changes the key and/or expiry of a license and rotates its
// credentials.
func (c *Client) UpdateLicense(ctx context.Context, req UpdateLicenseRequest) (*UpdateLicenseResponse, error) {
	var out UpdateLicenseResponse
	if err := c.call(ctx, http.MethodPost, "/update-license", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteLicense removes a license. Deleting a missing pair is not an error.
func (c *Client) DeleteLicense(ctx context.Context, licenseKey, playerID string) (*DeleteLicenseResponse, error) {
	req := DeleteLicenseRequest{LicenseKey: licenseKey, PlayerID: playerID}

	var out DeleteLicenseResponse
	if err := c.call(ctx, http.MethodPost, "/delete-license", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetTrial issues the player's trial license. A player that already had one
// gets Success false.
func (c *Client) GetTrial(ctx context.Context, playerID string) (*TrialResponse, error) {
	req := TrialRequest{PlayerID: playerID}

	var out TrialResponse
	if err := c.call(ctx, http.MethodPost, "/get-trial", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListLicenses dumps every stored record. Only served with an admin token.
func (c *Client) ListLicenses(ctx context.Context) (*ListLicensesResponse, error) {
	var out ListLicensesResponse
	if err := c.call(ctx, http.MethodGet, "/list-licenses", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}
