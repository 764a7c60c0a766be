package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/licensor/pkg/httpx"
	"github.com/aussiebroadwan/licensor/pkg/licensesdk"
	"github.com/aussiebroadwan/licensor/pkg/slogx"
)

// decodeRequest decodes and validates a JSON body, answering 400 itself
// when that fails.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := httpx.DecodeJSON(r.Body, dst)
	if err == nil {
		return true
	}

	desc := "Invalid JSON body"
	var verr *httpx.ValidationError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		desc = "Missing required fields: " + strings.Join(verr.Fields, ", ")
	case errors.Is(err, httpx.ErrEmptyBody):
		desc = "Request body is required"
	case errors.As(err, &maxErr):
		desc = "Request body too large"
	}

	slogx.FromContext(r.Context()).Debug("rejected request body", "err", err)
	httpx.WriteError(w, http.StatusBadRequest, licensesdk.ErrorCodeInvalidRequest, desc)
	return false
}

func writeServerError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slogx.FromContext(r.Context()).Error(msg, "err", err)
	httpx.WriteError(w, http.StatusInternalServerError, licensesdk.ErrorCodeServerError, msg)
}

func writeInvalidDate(w http.ResponseWriter, field string) {
	httpx.WriteError(w, http.StatusBadRequest, licensesdk.ErrorCodeInvalidRequest, field+" is not a valid date")
}
