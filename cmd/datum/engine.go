package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/aretw0/datum"
	"github.com/aretw0/datum/internal/config"
	"github.com/aretw0/datum/internal/logging"
	"github.com/aretw0/datum/pkg/adapters/memory"
	"github.com/aretw0/datum/pkg/adapters/redis"
	"github.com/aretw0/datum/pkg/adapters/sqlite"
	"github.com/aretw0/datum/pkg/command"
	"github.com/aretw0/datum/pkg/observability"
)

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newLogger(cmd *cobra.Command, cfg config.Serve) *slog.Logger {
	level := cfg.LogLevel
	if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
		level = flag
	}
	return logging.New(parseLevel(level))
}

// seedHost prepares an in-process document with a few common wall types
// so commands are usable without a connected host application.
func seedHost() *memory.Host {
	host := memory.NewHost()
	host.SeedType("Walls", `Generic - 8"`)
	host.SeedType("Walls", `Generic - 6"`)
	host.SeedType("Doors", `Single-Flush 36" x 84"`)
	return host
}

// buildEngine wires an Engine from the serve configuration. The returned
// registry holds metrics for the HTTP /metrics endpoint. The cleanup
// function closes every backing store the configuration opened.
func buildEngine(ctx context.Context, cfg config.Serve, logger *slog.Logger) (*datum.Engine, *prometheus.Registry, func(), error) {
	opts := []datum.Option{
		datum.WithLogger(logger),
		datum.WithScriptsDir(cfg.ScriptsDir),
	}

	promReg := prometheus.NewRegistry()
	opts = append(opts, datum.WithMetrics(observability.New(promReg)))

	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.JournalPath != "" {
		journal, err := sqlite.Open(cfg.JournalPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open journal: %w", err)
		}
		cleanups = append(cleanups, func() {
			if err := journal.Close(); err != nil {
				logger.Warn("journal close failed", "err", err)
			}
		})
		opts = append(opts, datum.WithEventStore(journal))
	}

	if cfg.RedisAddr != "" {
		store := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		cleanups = append(cleanups, func() {
			if err := store.Close(); err != nil {
				logger.Warn("registry store close failed", "err", err)
			}
		})
		opts = append(opts, datum.WithRegistryStore(store))
	}

	if cfg.SweepInterval > 0 && cfg.ScriptMaxAge > 0 {
		opts = append(opts, datum.WithScriptSweep(cfg.SweepInterval, cfg.ScriptMaxAge))
	}

	if cfg.SessionID != "" {
		opts = append(opts, datum.WithSession(command.Session{
			SessionID: cfg.SessionID,
			UserID:    cfg.UserID,
		}))
	}

	engine, err := datum.New(seedHost(), opts...)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	cleanups = append(cleanups, engine.Close)

	if cfg.RedisAddr != "" {
		if err := engine.LoadRegistry(ctx); err != nil {
			logger.Warn("registry load failed", "err", err)
		}
	}
	if cfg.ScriptManifest != "" {
		if err := engine.LoadScriptManifest(cfg.ScriptManifest); err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("load manifest: %w", err)
		}
	}

	return engine, promReg, cleanup, nil
}
