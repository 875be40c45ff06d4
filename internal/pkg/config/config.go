package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`
	// LoginURL is where unauthenticated browser requests are redirected.
	LoginURL string `env:"LOGIN_URL, default=/login"`

	Token   TokenConfig
	Session SessionConfig
	Mongo   MongoConfig
	Redis   RedisConfig
	Client  ClientConfig
}

type TokenConfig struct {
	// PrivateKey is inline PEM or a path to a PEM file (RSA or EC P-256).
	PrivateKey string `env:"JWT_PRIVATE_KEY"`
	// Secret enables HS256 when no private key is configured.
	Secret        string        `env:"JWT_SECRET"`
	Issuer        string        `env:"JWT_ISSUER,           default=carddemo-auth"`
	TTL           time.Duration `env:"TOKEN_TTL,            default=30m"`
	RefreshWindow time.Duration `env:"TOKEN_REFRESH_WINDOW, default=5m"`
}

type SessionConfig struct {
	TTL             time.Duration `env:"SESSION_TTL,           default=30m"`
	StoreTimeout    time.Duration `env:"SESSION_STORE_TIMEOUT, default=250ms"`
	MaxRecordBytes  int           `env:"SESSION_MAX_BYTES,     default=32768"`
	ActivityWorkers int           `env:"ACTIVITY_WORKERS,      default=4"`
}

type MongoConfig struct {
	URI         string `env:"MONGO_URI,           default=mongodb://localhost:27017"`
	Database    string `env:"MONGO_DB,            default=carddemo"`
	MaxPoolSize uint64 `env:"MONGO_MAX_POOL_SIZE, default=50"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	DB       int    `env:"REDIS_DB,       default=0"`
	Password string `env:"REDIS_PASSWORD"`
}

// ClientConfig tunes the client-side session lifecycle manager.
type ClientConfig struct {
	CheckInterval    time.Duration `env:"CLIENT_CHECK_INTERVAL,    default=30s"`
	WarningThreshold time.Duration `env:"CLIENT_WARNING_THRESHOLD, default=5m"`
	RefreshThreshold time.Duration `env:"CLIENT_REFRESH_THRESHOLD, default=2m"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := LoadWith(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// LoadWith reads configuration through lookuper and checks cross-field rules.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Token.PrivateKey == "" && c.Token.Secret == "" {
		return fmt.Errorf("one of JWT_PRIVATE_KEY or JWT_SECRET is required")
	}
	if c.Token.RefreshWindow >= c.Token.TTL {
		return fmt.Errorf("TOKEN_REFRESH_WINDOW (%s) must be shorter than TOKEN_TTL (%s)", c.Token.RefreshWindow, c.Token.TTL)
	}
	if c.Client.RefreshThreshold > c.Client.WarningThreshold {
		return fmt.Errorf("CLIENT_REFRESH_THRESHOLD must not exceed CLIENT_WARNING_THRESHOLD")
	}
	if c.Session.MaxRecordBytes <= 0 {
		return fmt.Errorf("SESSION_MAX_BYTES must be positive")
	}
	return nil
}
