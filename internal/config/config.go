// Package config loads and validates application configuration from
// environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Sync modes accepted by SYNC_MODE.
const (
	// SyncModeOff runs the store local-only: no pushes, no pulls, the
	// status indicator reports offline.
	SyncModeOff = "off"
	// SyncModeLoopback attaches the engine to an in-process dataset.
	// Useful for development and single-binary setups; the hosting app
	// swaps in the real service client in production.
	SyncModeLoopback = "loopback"
)

// Config holds all configuration values for the API server.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on.
	Port string `env:"PORT" envDefault:"8080"`

	// DBPath is the path of the SQLite database file. Required.
	DBPath string `env:"DB_PATH,required"`

	// LogLevel controls the minimum log level.
	// Valid values: debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// CORSOrigins is the list of allowed cross-origin request origins,
	// comma-separated. Defaults to the Vite dev server.
	CORSOrigins []string `env:"CORS_ORIGINS" envDefault:"http://localhost:5173"`

	// SyncMode selects how the sync engine reaches the synchronization
	// service: "off" or "loopback".
	SyncMode string `env:"SYNC_MODE" envDefault:"off"`

	// ProbeInterval is how often service reachability is probed.
	ProbeInterval time.Duration `env:"SYNC_PROBE_INTERVAL" envDefault:"30s"`

	// MaxBodyBytes caps incoming request bodies (import documents are the
	// largest payloads this API accepts).
	MaxBodyBytes int64 `env:"MAX_BODY_BYTES" envDefault:"10485760"`
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error naming any required variable that is not set.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.SyncMode != SyncModeOff && cfg.SyncMode != SyncModeLoopback {
		return Config{}, fmt.Errorf("config.Load: invalid SYNC_MODE %q (want %q or %q)",
			cfg.SyncMode, SyncModeOff, SyncModeLoopback)
	}
	return cfg, nil
}
