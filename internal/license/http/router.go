package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/licensor/internal/license/metrics"
	"github.com/aussiebroadwan/licensor/internal/license/service"
	"github.com/aussiebroadwan/licensor/internal/license/store"
	"github.com/aussiebroadwan/licensor/pkg/httpx"
	"github.com/aussiebroadwan/licensor/pkg/slogx"

	_ "github.com/aussiebroadwan/licensor/api/license" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// DefaultMaxBodyBytes caps request bodies. Every request is a handful of
// short strings.
const DefaultMaxBodyBytes = 64 << 10

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	LicenseService *service.LicenseService
	TrialService   *service.TrialService
	Metrics        *metrics.Metrics // Optional: /metrics and request metrics

	// AdminToken guards the operator routes. Empty leaves create, update
	// and delete open and does not mount list-licenses.
	AdminToken string

	RateLimits httpx.RateLimits
	TrustProxy bool
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
		RateLimits:   httpx.DefaultRateLimits(),
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.MaxBytes(DefaultMaxBodyBytes),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerLicenses()
	r.registerTrials()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Licensor License Service API
//	@version		0.1.0
//	@description	Issues and validates license credentials for game clients.
//	@description
//	@description				Tokens are HS256 JWTs carrying licenseKey and playerId, expiring at the license expiration date.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/licensor
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:3000
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Operator token. Format: "Bearer {ADMIN_TOKEN}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// handle mounts h on pattern, counted in the metrics under route.
func (r *Router) handle(pattern, route string, h http.Handler, mws ...httpx.Middleware) {
	h = httpx.Chain(h, mws...)
	if r.Metrics != nil {
		h = r.Metrics.Instrument(route, h)
	}
	r.Mux.Handle(pattern, h)
}

// admin returns the operator gate, or nil when no admin token is set.
func (r *Router) admin() httpx.Middleware {
	if r.AdminToken == "" {
		return nil
	}
	return httpx.RequireStaticToken(r.AdminToken)
}

func (r *Router) registerLicenses() {
	h := &LicenseHandler{Licenses: r.LicenseService}

	// Operator routes: rate limited before the token check so it cannot be
	// brute forced.
	adminLimit := httpx.RateLimitByKey(r.RateLimits.Admin, r.TrustProxy)
	r.handle("POST /create-license", "/create-license", http.HandlerFunc(h.HandleCreate), adminLimit, r.admin())
	r.handle("POST /update-license", "/update-license", http.HandlerFunc(h.HandleUpdate), adminLimit, r.admin())
	r.handle("POST /delete-license", "/delete-license", http.HandlerFunc(h.HandleDelete), adminLimit, r.admin())

	// The dump exposes every live credential, so it only exists behind a token.
	if r.AdminToken != "" {
		r.handle("GET /list-licenses", "/list-licenses", http.HandlerFunc(h.HandleList), adminLimit, r.admin())
	} else {
		r.logger.Warn("ADMIN_TOKEN not set: operator routes are open and list-licenses is disabled")
	}

	// Client routes: polled by every game client on start.
	validationLimit := httpx.RateLimitByKey(r.RateLimits.Validation, r.TrustProxy)
	r.handle("POST /validate-license", "/validate-license", http.HandlerFunc(h.HandleValidateLicense), validationLimit)
	r.handle("POST /validate-token", "/validate-token", http.HandlerFunc(h.HandleValidateToken), validationLimit)
	r.handle("POST /refresh-token", "/refresh-token", http.HandlerFunc(h.HandleRefreshToken), validationLimit)
}

func (r *Router) registerTrials() {
	// Strict, by client address plus playerId.
	r.handle("POST /get-trial", "/get-trial", &TrialHandler{Trials: r.TrialService},
		httpx.RateLimitByIPAndJSONField(r.RateLimits.Trial, r.TrustProxy, "playerId"),
	)
}

func (r *Router) registerSystem() {
	publicLimit := httpx.RateLimitByKey(r.RateLimits.Public, r.TrustProxy)

	var signer service.TokenSigner
	if r.LicenseService != nil {
		signer = r.LicenseService.Signer
	}

	r.Mux.Handle("GET /livez", httpx.Chain(LivezHandler(r.startTime, r.buildVersion), publicLimit))
	r.Mux.Handle("GET /readyz", httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, signer), publicLimit))

	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", httpx.Chain(r.Metrics.Handler(), publicLimit))
	}
}
