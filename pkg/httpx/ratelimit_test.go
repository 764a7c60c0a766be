package httpx_test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/licensor/pkg/httpx"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func doRequest(h http.Handler, remote, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIPKeyExtractor(t *testing.T) {
	t.Run("extracts from RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(req))
	})

	t.Run("ignores forwarding headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.1")
		require.Equal(t, "192.168.1.1", httpx.IPKeyExtractor(req))
	})
}

func TestForwardedIPKeyExtractor(t *testing.T) {
	t.Run("prefers X-Forwarded-For", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")
		require.Equal(t, "203.0.113.1", httpx.ForwardedIPKeyExtractor(req))
	})

	t.Run("uses X-Real-IP if X-Forwarded-For absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "203.0.113.2", httpx.ForwardedIPKeyExtractor(req))
	})

	t.Run("falls back to RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		require.Equal(t, "192.168.1.1", httpx.ForwardedIPKeyExtractor(req))
	})
}

func TestJSONFieldKeyExtractor(t *testing.T) {
	extract := httpx.JSONFieldKeyExtractor("playerId")

	t.Run("extracts and restores body", func(t *testing.T) {
		body := `{"playerId":"p-7"}`
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

		require.Equal(t, "p-7", extract(req))

		rest, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		require.Equal(t, body, string(rest))
	})

	t.Run("non string field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"playerId":7}`))
		require.Equal(t, "", extract(req))
	})

	t.Run("missing field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		require.Equal(t, "", extract(req))
	})

	t.Run("not json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`playerId=p-7`))
		require.Equal(t, "", extract(req))
	})

	t.Run("no body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		require.Equal(t, "", extract(req))
	})
}

func TestCompositeKeyExtractor(t *testing.T) {
	extractor := httpx.CompositeKeyExtractor(":",
		httpx.IPKeyExtractor,
		httpx.JSONFieldKeyExtractor("playerId"),
	)

	t.Run("combines multiple extractors", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"playerId":"alice"}`))
		req.RemoteAddr = "192.168.1.1:12345"
		require.Equal(t, "192.168.1.1:alice", extractor(req))
	})

	t.Run("skips empty values", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		req.RemoteAddr = "192.168.1.1:12345"
		require.Equal(t, "192.168.1.1", extractor(req))
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("allows requests under limit", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 5,
			Window:            time.Second,
			Burst:             5,
		}, httpx.IPKeyExtractor)(okHandler)

		for i := range 5 {
			rec := doRequest(h, "192.168.1.1:12345", "")
			require.Equal(t, http.StatusOK, rec.Code, "request %d should succeed", i+1)
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 3,
			Window:            time.Minute,
			Burst:             3,
		}, httpx.IPKeyExtractor)(okHandler)

		for i := range 3 {
			rec := doRequest(h, "192.168.1.1:12345", "")
			require.Equal(t, http.StatusOK, rec.Code, "request %d should succeed", i+1)
		}

		rec := doRequest(h, "192.168.1.1:12345", "")
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("different keys are tracked separately", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 2,
			Window:            time.Minute,
			Burst:             2,
		}, httpx.IPKeyExtractor)(okHandler)

		for range 2 {
			require.Equal(t, http.StatusOK, doRequest(h, "192.168.1.1:12345", "").Code)
		}
		require.Equal(t, http.StatusTooManyRequests, doRequest(h, "192.168.1.1:12345", "").Code)
		require.Equal(t, http.StatusOK, doRequest(h, "192.168.1.2:12345", "").Code)
	})

	t.Run("allows request when key extractor returns empty", func(t *testing.T) {
		h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
			RequestsPerWindow: 1,
			Window:            time.Minute,
			Burst:             1,
		}, func(*http.Request) string { return "" })(okHandler)

		for range 3 {
			require.Equal(t, http.StatusOK, doRequest(h, "192.168.1.1:12345", "").Code)
		}
	})
}

func TestRateLimitByIPAndJSONField(t *testing.T) {
	var seen []string
	h := httpx.RateLimitByIPAndJSONField(httpx.RateLimitConfig{
		RequestsPerWindow: 2,
		Window:            time.Minute,
		Burst:             2,
	}, false, "playerId")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seen = append(seen, string(b))
		w.WriteHeader(http.StatusOK)
	}))

	for range 2 {
		require.Equal(t, http.StatusOK, doRequest(h, "192.168.1.1:12345", `{"playerId":"alice"}`).Code)
	}
	require.Equal(t, http.StatusTooManyRequests, doRequest(h, "192.168.1.1:12345", `{"playerId":"alice"}`).Code)
	require.Equal(t, http.StatusOK, doRequest(h, "192.168.1.1:12345", `{"playerId":"bob"}`).Code)

	require.Len(t, seen, 3)
	require.Equal(t, `{"playerId":"bob"}`, seen[2], "handler should still see the body")
}

func TestRateLimitByKeyTrustProxy(t *testing.T) {
	cfg := httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}

	send := func(h http.Handler, xff string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:555"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	direct := httpx.RateLimitByKey(cfg, false)(okHandler)
	require.Equal(t, http.StatusOK, send(direct, "203.0.113.1"))
	require.Equal(t, http.StatusTooManyRequests, send(direct, "203.0.113.2"), "spoofed header must not reset the bucket")

	proxied := httpx.RateLimitByKey(cfg, true)(okHandler)
	require.Equal(t, http.StatusOK, send(proxied, "203.0.113.1"))
	require.Equal(t, http.StatusOK, send(proxied, "203.0.113.2"))
}

func TestDefaultRateLimits(t *testing.T) {
	l := httpx.DefaultRateLimits()
	profiles := map[string]httpx.RateLimitConfig{
		"trial":      l.Trial,
		"admin":      l.Admin,
		"validation": l.Validation,
		"public":     l.Public,
	}

	for name, config := range profiles {
		t.Run(name, func(t *testing.T) {
			require.Greater(t, config.RequestsPerWindow, 0, "requests per window must be positive")
			require.Greater(t, config.Window, time.Duration(0), "window must be positive")
			require.Greater(t, config.Burst, 0, "burst must be positive")
		})
	}

	require.Less(t, l.Trial.RequestsPerWindow, l.Admin.RequestsPerWindow)
	require.Less(t, l.Admin.RequestsPerWindow, l.Validation.RequestsPerWindow)
	require.Less(t, l.Validation.RequestsPerWindow, l.Public.RequestsPerWindow)
}

func TestRateLimitHeaders(t *testing.T) {
	h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
		RequestsPerWindow: 1,
		Window:            time.Minute,
		Burst:             1,
	}, httpx.IPKeyExtractor)(okHandler)

	require.Equal(t, http.StatusOK, doRequest(h, "192.168.1.1:12345", "").Code)

	rec := doRequest(h, "192.168.1.1:12345", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"), "should include Retry-After header")
	require.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "1m0s", rec.Header().Get("X-RateLimit-Window"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	require.Contains(t, body, "rate_limit_exceeded")
	require.Contains(t, body, "error_description")
}

func BenchmarkRateLimitManyIPs(b *testing.B) {
	h := httpx.RateLimitMiddleware(httpx.RateLimitConfig{
		RequestsPerWindow: 1000000,
		Window:            time.Minute,
		Burst:             1000,
	}, httpx.IPKeyExtractor)(okHandler)

	for i := 0; b.Loop(); i++ {
		doRequest(h, fmt.Sprintf("192.168.%d.%d:12345", i%255, (i/255)%255), "")
	}
}

func TestParseRateLimitFromEnv(t *testing.T) {
	defaultConfig := httpx.RateLimitConfig{
		RequestsPerWindow: 10,
		Window:            time.Minute,
		Burst:             10,
	}

	t.Run("NoEnvVarsUsesDefaults", func(t *testing.T) {
		require.Equal(t, defaultConfig, httpx.ParseRateLimitFromEnv("TEST", defaultConfig))
	})

	t.Run("OverrideAllParameters", func(t *testing.T) {
		t.Setenv("RATELIMIT_TEST_REQUESTS", "200")
		t.Setenv("RATELIMIT_TEST_WINDOW_SEC", "30")
		t.Setenv("RATELIMIT_TEST_BURST", "250")

		config := httpx.ParseRateLimitFromEnv("TEST", defaultConfig)
		require.Equal(t, 200, config.RequestsPerWindow)
		require.Equal(t, 30*time.Second, config.Window)
		require.Equal(t, 250, config.Burst)
	})

	t.Run("InvalidValuesUseDefaults", func(t *testing.T) {
		t.Setenv("RATELIMIT_TEST_REQUESTS", "invalid")
		t.Setenv("RATELIMIT_TEST_WINDOW_SEC", "-10")
		t.Setenv("RATELIMIT_TEST_BURST", "0")

		require.Equal(t, defaultConfig, httpx.ParseRateLimitFromEnv("TEST", defaultConfig))
	})

	t.Run("ProfilesFromEnv", func(t *testing.T) {
		t.Setenv("RATELIMIT_TRIAL_REQUESTS", "1")

		l := httpx.DefaultRateLimits().FromEnv()
		require.Equal(t, 1, l.Trial.RequestsPerWindow)
		require.Equal(t, httpx.DefaultRateLimits().Admin, l.Admin)
	})
}
