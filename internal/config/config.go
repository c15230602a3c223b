// Package config loads process-wide configuration from the environment
// exactly once at startup. Missing required values are fatal, per the
// specification's "Configuration inputs" section.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every environment-driven input the process needs. It is
// read-only after Load returns (spec.md §5 "Process-wide configuration...
// is initialized once and read-only thereafter").
type Config struct {
	Env  string `env:"APP_ENV" envDefault:"development"`
	Port int    `env:"PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// TokenSigningKeyPEM is an RSA private key in PEM form, >=2048 bits, used
	// to sign access and pre-auth bearer tokens.
	TokenSigningKeyPEM string        `env:"TOKEN_SIGNING_KEY,required"`
	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	RememberMeTTL      time.Duration `env:"REMEMBER_ME_TTL" envDefault:"720h"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	AdminSeedEmail    string `env:"ADMIN_SEED_EMAIL"`
	AdminSeedPassword string `env:"ADMIN_SEED_PASSWORD"`

	// Argon2id parameters, tunable without a redeploy of the binary's
	// defaults (spec.md §4.1).
	ArgonMemoryKiB   uint32 `env:"ARGON_MEMORY_KIB" envDefault:"65536"`
	ArgonIterations  uint32 `env:"ARGON_ITERATIONS" envDefault:"2"`
	ArgonParallelism uint8  `env:"ARGON_PARALLELISM" envDefault:"4"`
	ArgonSaltLen     uint32 `env:"ARGON_SALT_LEN" envDefault:"16"`
	ArgonKeyLen      uint32 `env:"ARGON_KEY_LEN" envDefault:"32"`

	// AllowAllocationOverdraw flips AllocationExceeded from a hard deny to a
	// permissive warning path (Open Question resolved hard-deny by default).
	AllowAllocationOverdraw bool `env:"ALLOW_ALLOCATION_OVERDRAW" envDefault:"false"`

	MailerDriver string `env:"MAILER_DRIVER" envDefault:"smtp"` // "smtp" or "ses"
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`
	AWSSESRegion string `env:"AWS_SES_REGION" envDefault:"us-east-1"`
	AWSSESFrom   string `env:"AWS_SES_FROM"`

	SentryDSN    string `env:"SENTRY_DSN"`
	MetricsAddr  string `env:"METRICS_ADDR" envDefault:":9090"`
	AppPublicURL string `env:"APP_PUBLIC_URL" envDefault:"https://app.vactrail.example"`
}

// Load parses Config from the environment. A missing `,required` field
// returns an error; cmd/api treats that as a fatal startup failure.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := validateCORSOrigins(cfg.CORSAllowedOrigins); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool { return c.Env == "production" }
