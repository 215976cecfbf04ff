// Package app assembles the dependency container shared by the CLI
// commands and serve mode.
package app

import (
	"context"
	"fmt"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/packtrack/internal/cache"
	"github.com/noah-isme/packtrack/internal/config"
	"github.com/noah-isme/packtrack/internal/dispatch"
	"github.com/noah-isme/packtrack/internal/httpclient"
	"github.com/noah-isme/packtrack/internal/settings"
	"github.com/noah-isme/packtrack/internal/tracker"
	"github.com/noah-isme/packtrack/internal/tracker/dhl"
	"github.com/noah-isme/packtrack/internal/tracker/gls"
	"github.com/noah-isme/packtrack/internal/tracker/postnl"
)

// Container holds the services built once per process.
type Container struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Validate   *validator.Validate
	Settings   *settings.Store
	Registry   *tracker.Registry
	Cache      cache.Store
	Redis      *redis.Client // nil unless the redis backend is active
	HTTP       *http.Client
	Dispatcher *dispatch.Dispatcher
}

// DefaultRegistry returns the carrier registry in resolution order.
func DefaultRegistry(client *http.Client) *tracker.Registry {
	return tracker.NewRegistry(
		func() tracker.Handler { return postnl.New(client) },
		func() tracker.Handler { return dhl.New(client) },
		func() tracker.Handler { return gls.New(client) },
	)
}

// Build assembles the container from process config. The settings file is
// loaded once here for the cache bound; commands re-read it per run.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Container, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	settingsPath := cfg.SettingsPath
	if settingsPath == "" {
		var err error
		settingsPath, err = settings.DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("resolve settings path: %w", err)
		}
	}
	store := settings.NewStore(settingsPath, validate)
	sets, err := store.Load()
	if err != nil {
		return nil, err
	}

	client := httpclient.New(httpclient.Options{Timeout: cfg.HTTPTimeout, UserAgent: cfg.HTTPUserAgent})

	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Validate: validate,
		Settings: store,
		Registry: DefaultRegistry(client),
		HTTP:     client,
	}

	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := redisotel.InstrumentTracing(rdb); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
		if err := redisotel.InstrumentMetrics(rdb); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		c.Redis = rdb
		c.Cache = cache.NewRedisStore(rdb, sets.CacheMaxEntries, logger)
	default:
		cachePath := cfg.CachePath
		if cachePath == "" {
			cachePath, err = cache.DefaultPath()
			if err != nil {
				return nil, fmt.Errorf("resolve cache path: %w", err)
			}
		}
		fileStore, err := cache.NewFileStore(cachePath, sets.CacheMaxEntries)
		if err != nil {
			return nil, err
		}
		c.Cache = fileStore
	}

	c.Dispatcher = dispatch.New(c.Registry, c.Cache, logger)
	return c, nil
}

// Close releases held connections.
func (c *Container) Close() error {
	if c.Redis != nil {
		return c.Redis.Close()
	}
	return nil
}
