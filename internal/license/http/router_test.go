package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/licensor/internal/license/domain"
	"github.com/aussiebroadwan/licensor/internal/license/metrics"
	"github.com/aussiebroadwan/licensor/internal/license/service"
	"github.com/aussiebroadwan/licensor/internal/license/store/drivers/memory"
	"github.com/aussiebroadwan/licensor/pkg/httpx"
	"github.com/aussiebroadwan/licensor/pkg/jwtx"
	"github.com/aussiebroadwan/licensor/pkg/licensesdk"
	"github.com/aussiebroadwan/licensor/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const adminToken = "admin-secret-token"

type testServer struct {
	*httptest.Server
	store  *memory.Store
	client *licensesdk.Client
}

type serverOption func(*Router)

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	st := memory.NewStore()
	signer, err := jwtx.NewHMACSigner([]byte("router-test-signing-secret"))
	require.NoError(t, err)

	m := metrics.New()
	ls := &service.LicenseService{
		Store:   st,
		Signer:  signer,
		Info:    domain.ServerInfo{SupportDevs: "support", Announcement: "hello"},
		Metrics: m,
	}

	router := NewRouter("test", st, slogx.Discard())
	router.LicenseService = ls
	router.TrialService = &service.TrialService{Licenses: ls}
	router.Metrics = m
	router.AdminToken = adminToken
	for _, opt := range opts {
		opt(router)
	}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	client := licensesdk.NewClient(srv.URL)
	client.AdminToken = router.AdminToken

	return &testServer{Server: srv, store: st, client: client}
}

// post sends a raw body and decodes the JSON answer into a map.
func (s *testServer) post(t *testing.T, path, body, token string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, s.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp, out
}

func requireAPIError(t *testing.T, err error, status int) *licensesdk.APIError {
	t.Helper()

	var apiErr *licensesdk.APIError
	require.True(t, errors.As(err, &apiErr), "want *APIError, got %v", err)
	require.Equal(t, status, apiErr.StatusCode)
	return apiErr
}

func TestLicenseFlow(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	created, err := s.client.CreateLicense(ctx, "p1", "K1", exp)
	require.NoError(t, err)
	require.Equal(t, licensesdk.MsgLicenseCreated, created.Message)
	require.True(t, exp.Equal(created.ExpirationDate))

	valid, err := s.client.ValidateLicense(ctx, "K1", "p1")
	require.NoError(t, err)
	require.True(t, valid.Valid)
	require.Equal(t, created.Token, valid.Token)
	require.Equal(t, created.RefreshToken, valid.RefreshToken)

	res, err := s.client.ValidateToken(ctx, licensesdk.ValidateTokenRequest{
		Token: created.Token, PlayerID: "p1",
	})
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.False(t, res.Expired)
	require.Nil(t, res.NewToken)
	require.Equal(t, "support", res.SupportDevs)
	require.Equal(t, "hello", res.Announcement)

	res, err = s.client.ValidateToken(ctx, licensesdk.ValidateTokenRequest{
		Token: "not-a-token", RefreshToken: created.RefreshToken, PlayerID: "p1",
	})
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.True(t, res.Expired)
	require.NotNil(t, res.NewToken)
	require.NotEmpty(t, *res.NewToken)

	refreshed, err := s.client.RefreshToken(ctx, created.RefreshToken)
	require.NoError(t, err)
	require.True(t, refreshed.Valid)
	require.NotEmpty(t, refreshed.Token)

	newExp := exp.AddDate(1, 0, 0)
	updated, err := s.client.UpdateLicense(ctx, licensesdk.UpdateLicenseRequest{
		PlayerID:          "p1",
		LicenseKey:        "K1",
		NewLicenseKey:     "K2",
		NewExpirationDate: licensesdk.FormatDate(newExp),
	})
	require.NoError(t, err)
	require.True(t, updated.Updated())
	require.Equal(t, licensesdk.MsgLicenseUpdated, updated.Message)
	require.NotEqual(t, created.RefreshToken, updated.NewRefreshToken)
	require.True(t, newExp.Equal(updated.NewExpirationDate))

	stale, err := s.client.RefreshToken(ctx, created.RefreshToken)
	require.NoError(t, err)
	require.False(t, stale.Valid)
	require.Equal(t, licensesdk.MsgInvalidRefresh, stale.Message)

	list, err := s.client.ListLicenses(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, list.Count)
	require.Equal(t, "K2", list.Licenses[0].LicenseKey)
	require.Equal(t, updated.NewToken, list.Licenses[0].Token)
	require.NotEmpty(t, list.Licenses[0].ID)

	deleted, err := s.client.DeleteLicense(ctx, "K2", "p1")
	require.NoError(t, err)
	require.True(t, deleted.Deleted())

	deleted, err = s.client.DeleteLicense(ctx, "K2", "p1")
	require.NoError(t, err)
	require.False(t, deleted.Deleted())
	require.Equal(t, licensesdk.MsgLicenseNotFound, deleted.Message)
}

func TestNegativeShapes(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.post(t, "/validate-license", `{"licenseKey":"K1","playerId":"p1"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, map[string]any{"valid": false, "message": "Invalid license or playerId"}, body)

	resp, body = s.post(t, "/validate-token", `{"token":"x","refreshToken":"nope","playerId":"p1"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, map[string]any{"valid": false, "message": "Invalid refresh token"}, body)

	resp, body = s.post(t, "/refresh-token", `{"refreshToken":"nope"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, map[string]any{"valid": false, "message": "Invalid refresh token"}, body)

	resp, body = s.post(t, "/update-license", `{"licenseKey":"K1","playerId":"p1","newLicenseKey":"K2"}`, adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, map[string]any{"valid": false, "message": "License not found"}, body)

	resp, body = s.post(t, "/delete-license", `{"licenseKey":"K1","playerId":"p1"}`, adminToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, map[string]any{"message": "License not found"}, body)
}

func TestValidateTokenValidShape(t *testing.T) {
	s := newTestServer(t)

	created, err := s.client.CreateLicense(context.Background(), "p1", "K1", time.Now().AddDate(1, 0, 0))
	require.NoError(t, err)

	_, body := s.post(t, "/validate-token", `{"token":"`+created.Token+`","playerId":"p1"}`, "")
	require.Equal(t, map[string]any{
		"valid":        true,
		"expired":      false,
		"newToken":     nil,
		"playerId":     "p1",
		"supportDevs":  "support",
		"announcement": "hello",
	}, body)
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name, path, body string
	}{
		{"malformed json", "/validate-license", `{"licenseKey":`},
		{"missing field", "/validate-license", `{"licenseKey":"K1"}`},
		{"empty body", "/validate-token", ``},
		{"bad date", "/create-license", `{"playerId":"p1","licenseKey":"K1","expirationDate":"soon"}`},
		{"bad new date", "/update-license", `{"playerId":"p1","licenseKey":"K1","newExpirationDate":"soon"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := s.post(t, tt.path, tt.body, adminToken)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			require.Equal(t, "invalid_request", body["error"])
		})
	}

	resp, body := s.post(t, "/validate-license", `{"licenseKey":"K1"}`, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, body["error_description"], "playerId")
}

func TestDuplicateCreateConflicts(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	_, err := s.client.CreateLicense(ctx, "p1", "K1", time.Now().AddDate(1, 0, 0))
	require.NoError(t, err)

	_, err = s.client.CreateLicense(ctx, "p1", "K1", time.Now().AddDate(2, 0, 0))
	apiErr := requireAPIError(t, err, http.StatusConflict)
	require.Equal(t, licensesdk.ErrorCodeLicenseExists, apiErr.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	anon := licensesdk.NewClient(s.URL)
	_, err := anon.CreateLicense(ctx, "p1", "K1", time.Now().AddDate(1, 0, 0))
	apiErr := requireAPIError(t, err, http.StatusUnauthorized)
	require.Equal(t, licensesdk.ErrorCodeInvalidToken, apiErr.Code)

	_, err = anon.ListLicenses(ctx)
	requireAPIError(t, err, http.StatusUnauthorized)

	wrong := licensesdk.NewClient(s.URL)
	wrong.AdminToken = "not-the-admin-token"
	_, err = wrong.DeleteLicense(ctx, "K1", "p1")
	requireAPIError(t, err, http.StatusUnauthorized)

	resp, _ := s.post(t, "/update-license", `{"licenseKey":"K1","playerId":"p1"}`, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "Bearer")

	// Client routes stay open.
	_, err = anon.ValidateLicense(ctx, "K1", "p1")
	require.NoError(t, err)
}

func TestWithoutAdminToken(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t, func(r *Router) { r.AdminToken = "" })

	_, err := s.client.CreateLicense(ctx, "p1", "K1", time.Now().AddDate(1, 0, 0))
	require.NoError(t, err)

	_, err = s.client.ListLicenses(ctx)
	requireAPIError(t, err, http.StatusNotFound)
}

func TestGetTrial(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.post(t, "/get-trial", `{}`, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, map[string]any{"success": false, "message": "Missing playerId"}, body)

	resp, body = s.post(t, "/get-trial", ``, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "Missing playerId", body["message"])

	trial, err := s.client.GetTrial(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, trial.Success)
	require.True(t, domain.IsTrialKey(trial.TrialKey))
	require.NotEmpty(t, trial.Token)
	require.True(t, trial.ExpirationDate.After(time.Now().AddDate(9, 11, 0)))

	resp, body = s.post(t, "/get-trial", `{"playerId":"p1"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, map[string]any{"success": false, "message": "Trial already used"}, body)

	valid, err := s.client.ValidateLicense(context.Background(), trial.TrialKey, "p1")
	require.NoError(t, err)
	require.True(t, valid.Valid)
}

func TestTrialRateLimit(t *testing.T) {
	s := newTestServer(t, func(r *Router) {
		r.RateLimits.Trial = httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Hour, Burst: 1}
	})

	resp, _ := s.post(t, "/get-trial", `{"playerId":"p1"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := s.post(t, "/get-trial", `{"playerId":"p1"}`, "")
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "rate_limit_exceeded", body["error"])
	require.NotEmpty(t, resp.Header.Get("Retry-After"))

	// Keyed by player too, so another player from the same address passes.
	resp, _ = s.post(t, "/get-trial", `{"playerId":"p2"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	ctx := context.Background()
	s := newTestServer(t)

	live, err := s.client.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := s.client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.Equal(t, "ok", ready.Checks.Store)
	require.Equal(t, "ok", ready.Checks.Signer)

	require.NoError(t, s.store.Close())
	_, err = s.client.GetReadiness(ctx)
	requireAPIError(t, err, http.StatusServiceUnavailable)
}

// brokenSigner issues tokens it cannot verify afterwards.
type brokenSigner struct{ service.TokenSigner }

func (brokenSigner) Verify(string) (*jwtx.Claims, error) { return nil, jwtx.ErrInvalidSig }

func TestReadinessRoundTripsSigner(t *testing.T) {
	s := newTestServer(t, func(r *Router) {
		r.LicenseService.Signer = brokenSigner{r.LicenseService.Signer}
	})

	resp, err := s.Client().Get(s.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var health licensesdk.HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	require.Equal(t, "degraded", health.Status)
	require.Equal(t, "ok", health.Checks.Store)
	require.Contains(t, health.Checks.Signer, "invalid signature")
}

func TestMetricsAndSwagger(t *testing.T) {
	s := newTestServer(t)

	_, err := s.client.GetTrial(context.Background(), "p1")
	require.NoError(t, err)

	resp, err := s.Client().Get(s.URL + "/metrics")
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(raw), `licensor_license_operations_total{operation="issue_trial",outcome="ok"} 1`)
	require.Contains(t, string(raw), `licensor_http_requests_total{code="200",route="/get-trial"} 1`)

	resp, err = s.Client().Get(s.URL + "/swagger/doc.json")
	require.NoError(t, err)
	raw, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(raw), "/validate-token")
}

func TestRequestIDEchoed(t *testing.T) {
	s := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, s.URL+"/livez", nil)
	require.NoError(t, err)
	req.Header.Set(slogx.RequestIDHeader, "trace-123")

	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, "trace-123", resp.Header.Get(slogx.RequestIDHeader))
}
