package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends selectable through STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Payment gateways selectable through PAYMENT_GATEWAY.
const (
	GatewaySimulated = "simulated"
	GatewayStatic    = "static"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `env:"APP_NAME" envDefault:"Dispatch"`
	AppEnv         string        `env:"APP_ENV" envDefault:"development"`
	Port           string        `env:"PORT" envDefault:"8080"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"json"`
	StoreBackend   string        `env:"STORE_BACKEND" envDefault:"memory"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	RedisURL       string        `env:"REDIS_URL"`
	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	JWTSecret      string        `env:"JWT_SECRET"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"24h"`
	LoginRateLimit int           `env:"LOGIN_RATE_LIMIT" envDefault:"5"`

	LockTTL  time.Duration `env:"LOCK_TTL" envDefault:"10s"`
	LockWait time.Duration `env:"LOCK_WAIT" envDefault:"5s"`

	WelcomeBonus   int64         `env:"WELCOME_BONUS" envDefault:"1000"`
	PlatformFeeBPS int64         `env:"PLATFORM_FEE_BPS" envDefault:"1000"`
	ArrivalETA     time.Duration `env:"ARRIVAL_ETA" envDefault:"15m"`

	PaymentGateway     string        `env:"PAYMENT_GATEWAY" envDefault:"simulated"`
	PaymentDelay       time.Duration `env:"PAYMENT_DELAY" envDefault:"2s"`
	PaymentDeclineRate float64       `env:"PAYMENT_DECLINE_RATE" envDefault:"0.05"`
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.StoreBackend = strings.ToLower(cfg.StoreBackend)
	cfg.PaymentGateway = strings.ToLower(cfg.PaymentGateway)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when STORE_BACKEND=redis")
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when STORE_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.PaymentGateway {
	case GatewaySimulated, GatewayStatic:
	default:
		return fmt.Errorf("invalid PAYMENT_GATEWAY %q", c.PaymentGateway)
	}
	if c.PaymentDeclineRate < 0 || c.PaymentDeclineRate > 1 {
		return fmt.Errorf("PAYMENT_DECLINE_RATE must be within [0,1]")
	}
	if c.PlatformFeeBPS < 0 || c.PlatformFeeBPS > 10_000 {
		return fmt.Errorf("PLATFORM_FEE_BPS must be within [0,10000]")
	}
	if c.LockTTL <= 0 || c.LockWait <= 0 {
		return fmt.Errorf("LOCK_TTL and LOCK_WAIT must be positive")
	}
	// Settlement holds a delivery lock across the gateway call and the lock
	// is not renewed.
	if c.PaymentGateway == GatewaySimulated && c.LockTTL < 2*c.PaymentDelay {
		return fmt.Errorf("LOCK_TTL (%s) must be at least twice PAYMENT_DELAY (%s)", c.LockTTL, c.PaymentDelay)
	}
	if c.WelcomeBonus < 0 {
		return fmt.Errorf("WELCOME_BONUS must not be negative")
	}

	if c.JWTSecret == "" {
		if !c.IsDev() {
			return fmt.Errorf("JWT_SECRET must be set when APP_ENV=%s", c.AppEnv)
		}
		c.JWTSecret = "dev-only-secret"
	}
	return nil
}

// IsDev reports whether the service runs in a local/development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
