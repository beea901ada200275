// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"userposts/internal/db"
	"userposts/internal/seed"
	"userposts/internal/telemetry"
)

// ReadHeaderTimeout limits how long the server waits for request headers.
const ReadHeaderTimeout = 5 * time.Second

// ShutdownTimeout limits how long the server waits for in-flight requests
// during graceful shutdown.
const ShutdownTimeout = 5 * time.Second

// Config is the full service configuration.
type Config struct {
	Port      int `env:"PORT" envDefault:"3000"`
	Store     db.Config
	Seed      seed.Config
	Telemetry telemetry.Config
}

// Addr is the listen address for Port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
