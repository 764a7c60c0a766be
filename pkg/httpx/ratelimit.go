package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/licensor/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines the rate limiting parameters.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in the time window
	RequestsPerWindow int
	// Window is the time window for rate limiting
	Window time.Duration
	// Burst allows for temporary bursts above the rate limit
	Burst int
}

// RateLimits groups the profiles the license routes are served with.
type RateLimits struct {
	// Trial guards trial issuance, keyed by client and player.
	Trial RateLimitConfig
	// Admin guards create, update, delete and list.
	Admin RateLimitConfig
	// Validation guards the validate and refresh routes clients poll.
	Validation RateLimitConfig
	// Public guards health and metrics.
	Public RateLimitConfig
}

// DefaultRateLimits returns the built-in profiles.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		Trial:      RateLimitConfig{RequestsPerWindow: 5, Window: time.Minute, Burst: 5},
		Admin:      RateLimitConfig{RequestsPerWindow: 60, Window: time.Minute, Burst: 20},
		Validation: RateLimitConfig{RequestsPerWindow: 300, Window: time.Minute, Burst: 60},
		Public:     RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000},
	}
}

// FromEnv applies RATELIMIT_{TRIAL,ADMIN,VALIDATION,PUBLIC}_* overrides.
func (l RateLimits) FromEnv() RateLimits {
	l.Trial = ParseRateLimitFromEnv("TRIAL", l.Trial)
	l.Admin = ParseRateLimitFromEnv("ADMIN", l.Admin)
	l.Validation = ParseRateLimitFromEnv("VALIDATION", l.Validation)
	l.Public = ParseRateLimitFromEnv("PUBLIC", l.Public)
	return l
}

// ParseRateLimitFromEnv reads rate limit configuration from environment variables.
// Environment variables follow the pattern: RATELIMIT_{prefix}_{field}
// For example: RATELIMIT_TRIAL_REQUESTS, RATELIMIT_TRIAL_WINDOW_SEC, RATELIMIT_TRIAL_BURST
// Invalid or non-positive values keep the default.
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	if n, ok := positiveEnv("RATELIMIT_" + prefix + "_REQUESTS"); ok {
		config.RequestsPerWindow = n
	}
	if n, ok := positiveEnv("RATELIMIT_" + prefix + "_WINDOW_SEC"); ok {
		config.Window = time.Duration(n) * time.Second
	}
	if n, ok := positiveEnv("RATELIMIT_" + prefix + "_BURST"); ok {
		config.Burst = n
	}

	return config
}

func positiveEnv(name string) (int, bool) {
	val := os.Getenv(name)
	if val == "" {
		return 0, false
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// KeyExtractor is a function that extracts a unique key from the request
// for rate limiting purposes (e.g., IP address, player id).
type KeyExtractor func(*http.Request) string

// IPKeyExtractor keys on the connection's remote address. Use it when the
// service is reachable directly.
func IPKeyExtractor(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// ForwardedIPKeyExtractor extracts the client IP address from the request.
// It handles X-Forwarded-For and X-Real-IP headers for proxied requests, so
// only use it behind a proxy that overwrites them.
func ForwardedIPKeyExtractor(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	return IPKeyExtractor(r)
}

// CompositeKeyExtractor combines multiple key extractors with a separator.
// Example: CompositeKeyExtractor(":", IPKeyExtractor, JSONFieldKeyExtractor("playerId"))
// would produce keys like "192.168.1.1:player-7"
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// maxPeekBytes bounds how much of a body JSONFieldKeyExtractor buffers.
const maxPeekBytes = 64 << 10

// JSONFieldKeyExtractor extracts a top level string field from a JSON request
// body. The body is restored so the handler can still decode it.
func JSONFieldKeyExtractor(field string) KeyExtractor {
	return func(r *http.Request) string {
		if r.Body == nil || r.Body == http.NoBody {
			return ""
		}

		raw, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(raw))
		if err != nil {
			return ""
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return ""
		}
		var v string
		if err := json.Unmarshal(fields[field], &v); err != nil {
			return ""
		}
		return v
	}
}

// cleanupInterval is how often idle limiters are swept.
const cleanupInterval = 5 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter manages rate limiters for different keys
type rateLimiter struct {
	mu          sync.Mutex
	limiters    map[string]*limiterEntry
	rate        rate.Limit
	burst       int
	idleAfter   time.Duration
	lastCleanup time.Time
}

func newRateLimiter(config RateLimitConfig) *rateLimiter {
	return &rateLimiter{
		limiters:    make(map[string]*limiterEntry),
		rate:        rate.Limit(float64(config.RequestsPerWindow) / config.Window.Seconds()),
		burst:       config.Burst,
		idleAfter:   max(config.Window, cleanupInterval),
		lastCleanup: time.Now(),
	}
}

// allow reports whether key may proceed and, if not, how long until it may.
func (rl *rateLimiter) allow(key string, now time.Time) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.sweep(now)

	e, ok := rl.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = now

	if e.limiter.AllowN(now, 1) {
		return true, 0
	}

	r := e.limiter.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, delay
}

// sweep drops limiters that have been idle long enough to be full again.
func (rl *rateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastCleanup) < cleanupInterval {
		return
	}
	rl.lastCleanup = now

	for key, e := range rl.limiters {
		if now.Sub(e.lastSeen) >= rl.idleAfter {
			delete(rl.limiters, key)
		}
	}
}

// RateLimitMiddleware creates a rate limiting middleware with the given configuration.
// The keyExtractor determines how requests are grouped for rate limiting.
func RateLimitMiddleware(config RateLimitConfig, keyExtractor KeyExtractor) Middleware {
	rl := newRateLimiter(config)
	limitHeader := strconv.Itoa(config.RequestsPerWindow)
	windowHeader := config.Window.String()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			key := keyExtractor(r)
			if key == "" {
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			ok, delay := rl.allow(key, time.Now())
			if !ok {
				retryAfter := max(int(delay.Seconds()), 1)

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Limit", limitHeader)
				w.Header().Set("X-RateLimit-Window", windowHeader)

				log.Warn("rate limit exceeded",
					"endpoint", r.URL.Path,
					"retry_after", retryAfter,
				)

				WriteError(w, http.StatusTooManyRequests,
					"rate_limit_exceeded", "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByKey limits by client address, trusting proxy headers only when asked.
func RateLimitByKey(config RateLimitConfig, trustProxy bool) Middleware {
	return RateLimitMiddleware(config, clientIP(trustProxy))
}

// RateLimitByIPAndJSONField limits by client address plus a JSON body field.
// Trial issuance uses it with "playerId".
func RateLimitByIPAndJSONField(config RateLimitConfig, trustProxy bool, field string) Middleware {
	return RateLimitMiddleware(config, CompositeKeyExtractor(":",
		clientIP(trustProxy),
		JSONFieldKeyExtractor(field),
	))
}

func clientIP(trustProxy bool) KeyExtractor {
	if trustProxy {
		return ForwardedIPKeyExtractor
	}
	return IPKeyExtractor
}
