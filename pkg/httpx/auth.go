package httpx

import (
	"net/http"
	"strings"

	"github.com/aussiebroadwan/licensor/pkg/cryptox"
	"github.com/aussiebroadwan/licensor/pkg/slogx"
)

// BearerToken extracts the credential from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authz := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(authz, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireStaticToken only lets requests through that present the given
// bearer token. It is meant for a single operator credential, not user auth.
func RequireStaticToken(want string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := BearerToken(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}
			if !cryptox.ConstantTimeEqual(got, want) {
				slogx.FromContext(r.Context()).Warn("admin token rejected",
					"token_fp", cryptox.FingerprintToken(got),
				)
				writeBearerError(w, "invalid bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RFC 6750-compliant error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
