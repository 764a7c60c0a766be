package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/licensor/internal/license/service"
	"github.com/aussiebroadwan/licensor/pkg/httpx"
	"github.com/aussiebroadwan/licensor/pkg/licensesdk"
)

type TrialHandler struct {
	Trials *service.TrialService
}

// ServeHTTP godoc
//
//	@Summary		Get Trial License
//	@Description	Issues a trial license for a player. Each player gets at most one trial;
//	@Description	a second request answers 200 with success=false.
//	@Tags			Trials
//	@Accept			json
//	@Produce		json
//	@Param			request	body		licensesdk.TrialRequest		true	"playerId"
//	@Success		200		{object}	licensesdk.TrialResponse	"success, trialKey, token, expirationDate"
//	@Failure		400		{object}	licensesdk.TrialResponse	"success=false, message=Missing playerId"
//	@Failure		429		{object}	httpx.ErrorResponse			"rate limit exceeded"
//	@Failure		500		{object}	httpx.ErrorResponse			"error, error_description"
//	@Router			/get-trial [post].
func (h *TrialHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req licensesdk.TrialRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		httpx.WriteError(w, http.StatusBadRequest, licensesdk.ErrorCodeInvalidRequest, "Invalid JSON body")
		return
	}
	if req.PlayerID == "" {
		httpx.WriteJSON(w, http.StatusBadRequest, licensesdk.TrialResponse{Message: licensesdk.MsgMissingPlayerID})
		return
	}

	issued, err := h.Trials.IssueTrial(r.Context(), req.PlayerID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTrialUsed):
			httpx.WriteJSON(w, http.StatusOK, licensesdk.TrialResponse{Message: licensesdk.MsgTrialUsed})
		default:
			writeServerError(w, r, "Failed to issue trial", err)
		}
		return
	}

	httpx.WriteJSON(w, http.StatusOK, licensesdk.TrialResponse{
		Success:        true,
		TrialKey:       issued.LicenseKey,
		Token:          issued.Token,
		ExpirationDate: issued.ExpirationDate,
	})
}
