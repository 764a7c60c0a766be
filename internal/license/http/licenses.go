package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/licensor/internal/license/domain"
	"github.com/aussiebroadwan/licensor/internal/license/service"
	"github.com/aussiebroadwan/licensor/pkg/httpx"
	"github.com/aussiebroadwan/licensor/pkg/licensesdk"
	"github.com/aussiebroadwan/licensor/pkg/slogx"
)

type LicenseHandler struct {
	Licenses *service.LicenseService
}

// HandleCreate godoc
//
//	@Summary		Create License
//	@Description	Creates a license for a player and issues its token and refresh token.
//	@Description	Requires the admin token when the server is configured with one.
//	@Tags			Licenses
//	@Accept			json
//	@Produce		json
//	@Param			request	body		licensesdk.CreateLicenseRequest		true	"playerId, licenseKey, expirationDate"
//	@Success		200		{object}	licensesdk.CreateLicenseResponse	"message, token, refreshToken, expirationDate"
//	@Failure		400		{object}	httpx.ErrorResponse					"error, error_description"
//	@Failure		401		{object}	httpx.ErrorResponse					"missing or invalid admin token"
//	@Failure		409		{object}	httpx.ErrorResponse					"license already exists for the pair"
//	@Failure		429		{object}	httpx.ErrorResponse					"rate limit exceeded"
//	@Failure		500		{object}	httpx.ErrorResponse					"error, error_description"
//	@Security		BearerAuth
//	@Router			/create-license [post].
func (h *LicenseHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req licensesdk.CreateLicenseRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	exp, err := licensesdk.ParseDate(req.ExpirationDate)
	if err != nil {
		writeInvalidDate(w, "expirationDate")
		return
	}

	issued, err := h.Licenses.CreateLicense(r.Context(), req.PlayerID, req.LicenseKey, exp)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrLicenseExists):
			httpx.WriteError(w, http.StatusConflict, licensesdk.ErrorCodeLicenseExists, licensesdk.MsgLicenseDuplicate)
		case errors.Is(err, service.ErrInvalidInput):
			httpx.WriteError(w, http.StatusBadRequest, licensesdk.ErrorCodeInvalidRequest, "playerId, licenseKey and expirationDate are required")
		default:
			writeServerError(w, r, "Failed to create license", err)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, licensesdk.CreateLicenseResponse{
		Message:        licensesdk.MsgLicenseCreated,
		Token:          issued.Token,
		RefreshToken:   issued.RefreshToken,
		ExpirationDate: issued.ExpirationDate,
	})
}

// HandleValidateLicense godoc
//
//	@Summary		Validate License
//	@Description	Returns the credentials currently stored for a license key and player.
//	@Description	An unknown pair answers 200 with valid=false.
//	@Tags			Licenses
//	@Accept			json
//	@Produce		json
//	@Param			request	body		licensesdk.ValidateLicenseRequest	true	"licenseKey, playerId"
//	@Success		200		{object}	licensesdk.ValidateLicenseResponse	"valid, token, refreshToken, expirationDate"
//	@Failure		400		{object}	httpx.ErrorResponse					"error, error_description"
//	@Failure		429		{object}	httpx.ErrorResponse					"rate limit exceeded"
//	@Failure		500		{object}	httpx.ErrorResponse					"error, error_description"
//	@Router			/validate-license [post].
func (h *LicenseHandler) HandleValidateLicense(w http.ResponseWriter, r *http.Request) {
	var req licensesdk.ValidateLicenseRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	l, err := h.Licenses.ValidateLicense(r.Context(), req.LicenseKey, req.PlayerID)
	if err != nil {
		if errors.Is(err, service.ErrLicenseNotFound) {
			httpx.WriteJSON(w, http.StatusOK, licensesdk.NegativeResponse{Message: licensesdk.MsgInvalidLicense})
			return
		}
		writeServerError(w, r, "Failed to validate license", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, licensesdk.ValidateLicenseResponse{
		Valid:          true,
		Token:          l.Token,
		RefreshToken:   l.RefreshToken,
		ExpirationDate: l.ExpirationDate,
	})
}

// HandleValidateToken godoc
//
//	@Summary		Validate Token
//	@Description	Verifies a license token. A token that no longer verifies is re-issued when the
//	@Description	refresh token belongs to the player, answering expired=true with newToken.
//	@Tags			Licenses
//	@Accept			json
//	@Produce		json
//	@Param			request	body		licensesdk.ValidateTokenRequest		true	"token, refreshToken, playerId"
//	@Success		200		{object}	licensesdk.ValidateTokenResponse	"valid, expired, newToken, playerId, supportDevs, announcement"
//	@Failure		400		{object}	httpx.ErrorResponse					"error, error_description"
//	@Failure		429		{object}	httpx.ErrorResponse					"rate limit exceeded"
//	@Failure		500		{object}	httpx.ErrorResponse					"error, error_description"
//	@Router			/validate-token [post].
func (h *LicenseHandler) HandleValidateToken(w http.ResponseWriter, r *http.Request) {
	var req licensesdk.ValidateTokenRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	res, err := h.Licenses.ValidateToken(r.Context(), req.Token, req.RefreshToken, req.PlayerID)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			httpx.WriteJSON(w, http.StatusOK, licensesdk.NegativeResponse{Message: licensesdk.MsgInvalidRefresh})
			return
		}
		writeServerError(w, r, "Failed to validate token", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, tokenValidationResponse(res))
}

func tokenValidationResponse(res domain.TokenValidation) licensesdk.ValidateTokenResponse {
	out := licensesdk.ValidateTokenResponse{
		Valid:        true,
		Expired:      res.Expired,
		PlayerID:     res.PlayerID,
		SupportDevs:  res.Info.SupportDevs,
		Announcement: res.Info.Announcement,
	}
	if res.Expired {
		out.NewToken = &res.NewToken
	}
	return out
}

// HandleRefreshToken godoc
//
//	@Summary		Refresh Token
//	@Description	Re-issues the token of the license holding the refresh token. The expiration
//	@Description	date and the refresh token itself are unchanged.
//	@Tags			Licenses
//	@Accept			json
//	@Produce		json
//	@Param			request	body		licensesdk.RefreshTokenRequest	true	"refreshToken"
//	@Success		200		{object}	licensesdk.RefreshTokenResponse	"valid, token"
//	@Failure		400		{object}	httpx.ErrorResponse				"error, error_description"
//	@Failure		429		{object}	httpx.ErrorResponse				"rate limit exceeded"
//	@Failure		500		{object}	httpx.ErrorResponse				"error, error_description"
//	@Router			/refresh-token [post].
func (h *LicenseHandler) HandleRefreshToken(w http.ResponseWriter, r *http.Request) {
	var req licensesdk.RefreshTokenRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	token, err := h.Licenses.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRefresh) {
			httpx.WriteJSON(w, http.StatusOK, licensesdk.NegativeResponse{Message: licensesdk.MsgInvalidRefresh})
			return
		}
		writeServerError(w, r, "Failed to refresh token", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, licensesdk.RefreshTokenResponse{Valid: true, Token: token})
}

// HandleUpdate godoc
//
//	@Summary		Update License
//	@Description	Changes the key and/or expiration date of a license. Empty fields keep the
//	@Description	current value. Token and refresh token are always rotated.
//	@Tags			Licenses
//	@Accept			json
//	@Produce		json
//	@Param			request	body		licensesdk.UpdateLicenseRequest		true	"playerId, licenseKey, newLicenseKey, newExpirationDate"
//	@Success		200		{object}	licensesdk.UpdateLicenseResponse	"message, newToken, newRefreshToken, newExpirationDate"
//	@Failure		400		{object}	httpx.ErrorResponse					"error, error_description"
//	@Failure		401		{object}	httpx.ErrorResponse					"missing or invalid admin token"
//	@Failure		409		{object}	httpx.ErrorResponse					"new key already in use by the player"
//	@Failure		429		{object}	httpx.ErrorResponse					"rate limit exceeded"
//	@Failure		500		{object}	httpx.ErrorResponse					"error, error_description"
//	@Security		BearerAuth
//	@Router			/update-license [post].
func (h *LicenseHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req licensesdk.UpdateLicenseRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	upd := domain.LicenseUpdate{NewLicenseKey: req.NewLicenseKey}
	if req.NewExpirationDate != "" {
		exp, err := licensesdk.ParseDate(req.NewExpirationDate)
		if err != nil {
			writeInvalidDate(w, "newExpirationDate")
			return
		}
		upd.NewExpirationDate = &exp
	}

	issued, err := h.Licenses.UpdateLicense(r.Context(), req.PlayerID, req.LicenseKey, upd)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrLicenseNotFound):
			httpx.WriteJSON(w, http.StatusOK, licensesdk.NegativeResponse{Message: licensesdk.MsgLicenseNotFound})
		case errors.Is(err, service.ErrLicenseExists):
			httpx.WriteError(w, http.StatusConflict, licensesdk.ErrorCodeLicenseExists, licensesdk.MsgLicenseDuplicate)
		default:
			writeServerError(w, r, "Failed to update license", err)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, licensesdk.UpdateLicenseResponse{
		Message:           licensesdk.MsgLicenseUpdated,
		NewToken:          issued.Token,
		NewRefreshToken:   issued.RefreshToken,
		NewExpirationDate: issued.ExpirationDate,
	})
}

// HandleDelete godoc
//
//	@Summary		Delete License
//	@Description	Removes the license for a key and player. Deleting a missing pair is not an error.
//	@Tags			Licenses
//	@Accept			json
//	@Produce		json
//	@Param			request	body		licensesdk.DeleteLicenseRequest		true	"licenseKey, playerId"
//	@Success		200		{object}	licensesdk.DeleteLicenseResponse	"message"
//	@Failure		400		{object}	httpx.ErrorResponse					"error, error_description"
//	@Failure		401		{object}	httpx.ErrorResponse					"missing or invalid admin token"
//	@Failure		429		{object}	httpx.ErrorResponse					"rate limit exceeded"
//	@Failure		500		{object}	httpx.ErrorResponse					"error, error_description"
//	@Security		BearerAuth
//	@Router			/delete-license [post].
func (h *LicenseHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	var req licensesdk.DeleteLicenseRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	deleted, err := h.Licenses.DeleteLicense(r.Context(), req.LicenseKey, req.PlayerID)
	if err != nil {
		writeServerError(w, r, "Failed to delete license", err)
		return
	}

	msg := licensesdk.MsgLicenseNotFound
	if deleted {
		msg = licensesdk.MsgLicenseDeleted
	}
	httpx.WriteJSON(w, http.StatusOK, licensesdk.DeleteLicenseResponse{Message: msg})
}

// HandleList godoc
//
//	@Summary		List Licenses
//	@Description	Dumps every stored license including live tokens and refresh tokens.
//	@Description	Only mounted when the server has an admin token.
//	@Tags			Licenses
//	@Produce		json
//	@Success		200	{object}	licensesdk.ListLicensesResponse	"count, licenses"
//	@Failure		401	{object}	httpx.ErrorResponse				"missing or invalid admin token"
//	@Failure		429	{object}	httpx.ErrorResponse				"rate limit exceeded"
//	@Failure		500	{object}	httpx.ErrorResponse				"error, error_description"
//	@Security		BearerAuth
//	@Router			/list-licenses [get].
func (h *LicenseHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ls, err := h.Licenses.ListLicenses(r.Context())
	if err != nil {
		writeServerError(w, r, "Failed to list licenses", err)
		return
	}

	out := licensesdk.ListLicensesResponse{
		Count:    len(ls),
		Licenses: make([]licensesdk.License, len(ls)),
	}
	for i, l := range ls {
		out.Licenses[i] = licensesdk.License{
			ID:             l.ID,
			LicenseKey:     l.LicenseKey,
			PlayerID:       l.PlayerID,
			Token:          l.Token,
			RefreshToken:   l.RefreshToken,
			ExpirationDate: l.ExpirationDate,
			CreatedAt:      l.CreatedAt,
			UpdatedAt:      l.UpdatedAt,
		}
	}

	slogx.FromContext(r.Context()).Info("licenses listed", "count", out.Count)
	httpx.WriteJSON(w, http.StatusOK, out)
}
