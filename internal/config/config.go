package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	AppPort string `env:"APP_PORT" envDefault:"8080"`

	DatabaseDSN string `env:"DATABASE_DSN,required"`

	RedisAddr     string `env:"REDIS_ADDR,required"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	JWTSecret        string `env:"JWT_SECRET,required"`
	JWTIssuer        string `env:"JWT_ISSUER,required"`
	JWTAudience      string `env:"JWT_AUDIENCE,required"`
	JWTExpireMinutes int    `env:"JWT_EXPIRE_MINUTES" envDefault:"60"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID,required"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET,required"`

	// Signing-key discovery refresh policy: a coarse background interval
	// plus a finer floor for on-demand refreshes when an unknown key id
	// shows up mid-rotation.
	JWKSRefreshInterval    time.Duration `env:"JWKS_REFRESH_INTERVAL" envDefault:"6h"`
	JWKSMinRefreshInterval time.Duration `env:"JWKS_MIN_REFRESH_INTERVAL" envDefault:"30m"`
}

// Load parses configuration from environment variables. Any missing
// required value is an error; the caller treats it as fatal at startup.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.JWTExpireMinutes <= 0 {
		return Config{}, fmt.Errorf("JWT_EXPIRE_MINUTES must be positive, got %d", cfg.JWTExpireMinutes)
	}
	return cfg, nil
}
