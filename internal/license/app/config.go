package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aussiebroadwan/licensor/internal/license/domain"
	"github.com/aussiebroadwan/licensor/internal/license/store/drivers/redis"
	"github.com/aussiebroadwan/licensor/pkg/httpx"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Store drivers selectable with STORE_DRIVER.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type Config struct {
	SigningSecret     string `envconfig:"LICENSE_SIGNING_SECRET"`      // Required unless the file is set
	SigningSecretFile string `envconfig:"LICENSE_SIGNING_SECRET_FILE"` // Read when the inline secret is empty
	AdminToken        string `envconfig:"ADMIN_TOKEN"`                 // Optional: guards the operator routes

	StoreDriver   string `envconfig:"STORE_DRIVER" default:"file"`        // memory, file, sqlite, redis
	StoreFile     string `envconfig:"STORE_FILE" default:"db.json"`       // file driver
	DatabaseFile  string `envconfig:"DATABASE_FILE" default:"license.db"` // sqlite driver
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisKey      string `envconfig:"REDIS_KEY" default:"licensor:licenses"`

	AllowDuplicateLicenses bool `envconfig:"ALLOW_DUPLICATE_LICENSES" default:"false"`
	TrialYears             int  `envconfig:"TRIAL_YEARS" default:"10"`

	ServerInfoFile string `envconfig:"SERVER_INFO_FILE"` // Optional YAML with supportDevs and announcement
	SupportDevs    string `envconfig:"SUPPORT_DEVS"`     // Overrides the file
	Announcement   string `envconfig:"ANNOUNCEMENT"`     // Overrides the file

	// TrustProxyHeaders keys rate limits on X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that sets them.
	TrustProxyHeaders bool `envconfig:"TRUST_PROXY_HEADERS" default:"false"`

	Env                 string        `envconfig:"ENV" default:"dev"`
	LogLevel            string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat           string        `envconfig:"LOG_FORMAT" default:"json"`
	Port                int           `envconfig:"PORT" default:"3000"`
	ShutdownGracePeriod time.Duration `envconfig:"SHUTDOWN_GRACE_PERIOD" default:"10s"`

	RateLimits httpx.RateLimits `ignored:"true"` // RATELIMIT_* overrides
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config from env: %w", err)
	}
	cfg.RateLimits = httpx.DefaultRateLimits().FromEnv()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverFile, DriverSQLite, DriverRedis:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStoreDriver, c.StoreDriver)
	}
	if c.TrialYears <= 0 {
		return fmt.Errorf("TRIAL_YEARS must be positive, got %d", c.TrialYears)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	return nil
}

// withDefaults fills what LoadConfig's tags would, for configs built in code.
func (c Config) withDefaults() Config {
	if c.StoreDriver == "" {
		c.StoreDriver = DriverFile
	}
	if c.StoreFile == "" {
		c.StoreFile = "db.json"
	}
	if c.DatabaseFile == "" {
		c.DatabaseFile = "license.db"
	}
	if c.RedisKey == "" {
		c.RedisKey = redis.DefaultKey
	}
	if c.TrialYears == 0 {
		c.TrialYears = 10
	}
	if c.Port == 0 {
		c.Port = 3000
	}
	if c.ShutdownGracePeriod == 0 {
		c.ShutdownGracePeriod = 10 * time.Second
	}
	if c.RateLimits == (httpx.RateLimits{}) {
		c.RateLimits = httpx.DefaultRateLimits()
	}
	return c
}

// LoadServerInfo reads the optional server info file. Non-empty
// supportDevs and announcement replace what the file says.
func LoadServerInfo(file, supportDevs, announcement string) (domain.ServerInfo, error) {
	var info domain.ServerInfo

	if file != "" {
		raw, err := os.ReadFile(filepath.Clean(file))
		if err != nil {
			return domain.ServerInfo{}, fmt.Errorf("read server info: %w", err)
		}
		if err := yaml.Unmarshal(raw, &info); err != nil {
			return domain.ServerInfo{}, fmt.Errorf("parse server info %s: %w", file, err)
		}
	}

	if supportDevs != "" {
		info.SupportDevs = supportDevs
	}
	if announcement != "" {
		info.Announcement = announcement
	}
	return info, nil
}
