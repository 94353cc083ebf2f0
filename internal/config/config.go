// Package config loads serving configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Serve holds the configuration for the long-running serve surfaces.
type Serve struct {
	HTTPAddr string `env:"DATUM_HTTP_ADDR" envDefault:":8080"`
	MCPPort  int    `env:"DATUM_MCP_PORT" envDefault:"8765"`
	LogLevel string `env:"DATUM_LOG_LEVEL" envDefault:"info"`

	// JournalPath enables the durable SQLite event journal. Empty keeps
	// the journal in memory.
	JournalPath string `env:"DATUM_JOURNAL_PATH"`

	// ScriptsDir is where hot-loaded script artifacts materialize.
	ScriptsDir string `env:"DATUM_SCRIPTS_DIR" envDefault:"scripts"`

	// ScriptManifest optionally seeds the registry from a YAML/JSON file.
	ScriptManifest string `env:"DATUM_SCRIPT_MANIFEST"`

	// Script artifacts unused for ScriptMaxAge are swept every
	// SweepInterval. Zero for either disables the sweep.
	SweepInterval time.Duration `env:"DATUM_SWEEP_INTERVAL" envDefault:"10m"`
	ScriptMaxAge  time.Duration `env:"DATUM_SCRIPT_MAX_AGE" envDefault:"24h"`

	// Redis persistence for script registry metadata. Empty address
	// disables it.
	RedisAddr     string `env:"DATUM_REDIS_ADDR"`
	RedisPassword string `env:"DATUM_REDIS_PASSWORD"`
	RedisDB       int    `env:"DATUM_REDIS_DB" envDefault:"0"`

	SessionID string `env:"DATUM_SESSION_ID"`
	UserID    string `env:"DATUM_USER_ID" envDefault:"agent"`
}

// Load parses Serve from the environment.
func Load() (Serve, error) {
	var cfg Serve
	if err := env.Parse(&cfg); err != nil {
		return Serve{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
