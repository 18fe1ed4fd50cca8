package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/goodtune/timerflow/internal/config"
	"github.com/goodtune/timerflow/internal/storage"
	"github.com/goodtune/timerflow/internal/storage/bolt"
	"github.com/goodtune/timerflow/internal/storage/fallback"
	"github.com/goodtune/timerflow/internal/storage/redis"
	"github.com/goodtune/timerflow/internal/timer"
)

func openStorage(cfg config.StorageConfig, logger zerolog.Logger) (storage.Store, error) {
	storageType := cfg.Type
	if storageType == "" {
		storageType = "bolt"
	}

	switch storageType {
	case "bolt":
		store, err := bolt.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "redis":
		if cfg.FallbackPath != "" {
			return openFallback(cfg, logger)
		}
		store, err := redis.Open(cfg.Redis)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be bolt or redis)", storageType)
	}
}

// openFallback pairs redis with a local bolt store. When redis cannot be
// reached at all the local store is used alone.
func openFallback(cfg config.StorageConfig, logger zerolog.Logger) (storage.Store, error) {
	local, err := bolt.Open(cfg.FallbackPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open fallback store: %w", err)
	}

	primary, err := redis.Open(cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.FallbackPath).Msg("Redis unavailable, using local fallback store")
		return local, nil
	}

	return fallback.New(primary, local, logger), nil
}

// loadStore loads the configuration and opens its storage backend.
func loadStore() (*config.Config, storage.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage, newLogger(cfg.Logging, os.Stderr))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return cfg, store, nil
}

// engineConfig maps the timer section onto engine options.
func engineConfig(cfg config.TimerConfig) timer.Config {
	return timer.Config{
		TickInterval:    parseDuration(cfg.TickInterval, timer.DefaultTickInterval),
		OverageGaugeCap: parseDuration(cfg.OverageGaugeCap, timer.DefaultOverageGaugeCap),
		DefaultName:     cfg.DefaultName,
	}
}
