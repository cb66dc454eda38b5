package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full process configuration, parsed from the environment
// (with .env support for local development).
type Config struct {
	Port string `env:"PORT" envDefault:"5300"`

	// postgres | redis | memory — selects the daily progress store adapter.
	// "memory" is for local development only; progress does not survive a
	// restart.
	StoreBackend string `env:"STORE_BACKEND" envDefault:"postgres"`

	DatabaseURL   string `env:"DATABASE_URL"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret string        `env:"JWT_SECRET"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"168h"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	AdminAddresses []string `env:"ADMIN_ADDRESSES" envSeparator:","`

	// Optional JSON file overriding the built-in project catalog.
	ProjectConfigPath string `env:"PROJECT_CONFIG_PATH"`

	// External verification service; when unset the simulated verifier runs.
	VerifierURL      string  `env:"VERIFIER_URL"`
	VerifierToken    string  `env:"VERIFIER_TOKEN"`
	VerifierPassRate float64 `env:"VERIFIER_PASS_RATE" envDefault:"0.9"` // simulated verifier only

	// Chain indexer polled for one-off on-chain task events; unset disables
	// the sync worker.
	IndexerURL   string        `env:"INDEXER_URL"`
	IndexerToken string        `env:"INDEXER_TOKEN"`
	IndexerPoll  time.Duration `env:"INDEXER_POLL_INTERVAL" envDefault:"15s"`

	// R2/S3 badge artwork storage; unset falls back to local ./uploads.
	CloudflareAccountID string `env:"CLOUDFLARE_ACCOUNT_ID"`
	R2AccessKeyID       string `env:"R2_ACCESS_KEY_ID"`
	R2AccessKeySecret   string `env:"R2_ACCESS_KEY_SECRET"`
	R2Bucket            string `env:"R2_BUCKET_NAME"`
	CDNBaseURL          string `env:"CDN_BASE_URL"`
}

// Load reads .env (if present) and parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable not set")
	}
	switch cfg.StoreBackend {
	case "postgres", "memory":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable not set")
		}
	case "redis":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable not set")
		}
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR required for STORE_BACKEND=redis")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q (want postgres, redis or memory)", cfg.StoreBackend)
	}

	if len(cfg.AllowedOrigins) == 0 {
		log.Println("⚠️  ALLOWED_ORIGINS not set, using default: http://localhost:3000")
		cfg.AllowedOrigins = []string{"http://localhost:3000"}
	}

	return cfg, nil
}

// R2Enabled reports whether badge artwork goes to R2 instead of local disk.
func (c *Config) R2Enabled() bool {
	return c.CloudflareAccountID != "" && c.R2AccessKeyID != "" && c.R2Bucket != ""
}
