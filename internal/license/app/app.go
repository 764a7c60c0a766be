package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/licensor/internal/license/domain"
	httpapi "github.com/aussiebroadwan/licensor/internal/license/http"
	"github.com/aussiebroadwan/licensor/internal/license/metrics"
	"github.com/aussiebroadwan/licensor/internal/license/service"
	"github.com/aussiebroadwan/licensor/internal/license/store"
	"github.com/aussiebroadwan/licensor/internal/license/store/drivers/file"
	"github.com/aussiebroadwan/licensor/internal/license/store/drivers/memory"
	"github.com/aussiebroadwan/licensor/internal/license/store/drivers/redis"
	"github.com/aussiebroadwan/licensor/internal/license/store/drivers/sqlite"
	"github.com/aussiebroadwan/licensor/pkg/cryptox"
	"github.com/aussiebroadwan/licensor/pkg/jwtx"
	"github.com/aussiebroadwan/licensor/pkg/slogx"
	goredis "github.com/redis/go-redis/v9"
)

// BuildVersion is overridden at build time via -ldflags "-X".
var BuildVersion = "v0.1.0"

var (
	// ErrMissingSigningSecret means neither LICENSE_SIGNING_SECRET nor
	// LICENSE_SIGNING_SECRET_FILE yielded a secret. The service refuses to
	// start rather than sign with a default.
	ErrMissingSigningSecret = errors.New("app: no signing secret configured")

	ErrUnknownStoreDriver = errors.New("app: unknown store driver")
)

// Application encapsulates the license service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db      store.Store
	signer  *jwtx.HMACSigner
	metrics *metrics.Metrics

	licenseService *service.LicenseService
	trialService   *service.TrialService

	server *http.Server
	router *httpapi.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "license-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	if err := app.initSigner(); err != nil {
		return nil, err
	}

	info, err := LoadServerInfo(cfg.ServerInfoFile, cfg.SupportDevs, cfg.Announcement)
	if err != nil {
		return nil, err
	}

	if err := app.initStore(); err != nil {
		return nil, err
	}

	app.initServices(info)
	app.initHTTP()

	return app, nil
}

// Handler returns the root HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.logger.Info("license service starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"store", app.cfg.StoreDriver,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.db.Close()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains in-flight requests, then closes the store.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down license service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing store", "error", err)
		return err
	}

	app.logger.Info("license service stopped")
	return nil
}

func (app *Application) initSigner() error {
	secret, err := cryptox.LoadSecret(app.cfg.SigningSecret, app.cfg.SigningSecretFile)
	if err != nil {
		if errors.Is(err, cryptox.ErrNoSecret) {
			return fmt.Errorf("%w: set LICENSE_SIGNING_SECRET or LICENSE_SIGNING_SECRET_FILE", ErrMissingSigningSecret)
		}
		return fmt.Errorf("failed to load signing secret: %w", err)
	}

	signer, err := jwtx.NewHMACSigner(secret)
	if err != nil {
		return fmt.Errorf("failed to initialize signer: %w", err)
	}
	app.signer = signer
	return nil
}

// initStore opens the configured driver and makes sure it answers.
func (app *Application) initStore() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := openStore(ctx, app.cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("store not reachable: %w", err)
	}

	app.db = db
	app.logger.Info("store ready", "driver", app.cfg.StoreDriver)
	return nil
}

func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case DriverMemory:
		return memory.NewStore(), nil
	case DriverFile:
		return file.NewStore(ctx, cfg.StoreFile)
	case DriverSQLite:
		return sqlite.NewStore(cfg.DatabaseFile)
	case DriverRedis:
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return redis.NewStore(rdb, cfg.RedisKey), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStoreDriver, cfg.StoreDriver)
	}
}

func (app *Application) initServices(info domain.ServerInfo) {
	app.licenseService = &service.LicenseService{
		Store:           app.db,
		Signer:          app.signer,
		Info:            info,
		AllowDuplicates: app.cfg.AllowDuplicateLicenses,
		Metrics:         app.metrics,
	}
	app.trialService = &service.TrialService{
		Licenses: app.licenseService,
		Years:    app.cfg.TrialYears,
	}

	if app.cfg.AllowDuplicateLicenses {
		app.logger.Warn("duplicate licenses allowed: lookups return the oldest record of a pair")
	}
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.LicenseService = app.licenseService
	router.TrialService = app.trialService
	router.Metrics = app.metrics
	router.AdminToken = app.cfg.AdminToken
	router.RateLimits = app.cfg.RateLimits
	router.TrustProxy = app.cfg.TrustProxyHeaders
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
