package app_test

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/packtrack/internal/app"
	"github.com/noah-isme/packtrack/internal/cache"
	"github.com/noah-isme/packtrack/internal/config"
)

func fileConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		AppEnv:       "test",
		CacheBackend: config.CacheBackendFile,
		SettingsPath: filepath.Join(dir, "settings.json"),
		CachePath:    filepath.Join(dir, "cache.json"),
		HTTPTimeout:  5 * time.Second,
	}
}

func TestBuildFileBackend(t *testing.T) {
	t.Parallel()

	c, err := app.Build(context.Background(), fileConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NotNil(t, c.Settings)
	require.NotNil(t, c.Registry)
	require.NotNil(t, c.HTTP)
	require.NotNil(t, c.Dispatcher)
	require.Nil(t, c.Redis)
	require.IsType(t, &cache.FileStore{}, c.Cache)
}

func TestBuildRedisBackend(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	cfg := fileConfig(t)
	cfg.CacheBackend = config.CacheBackendRedis
	cfg.RedisURL = "redis://" + mr.Addr()

	c, err := app.Build(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NotNil(t, c.Redis)
	require.IsType(t, &cache.RedisStore{}, c.Cache)
}

func TestBuildRedisBackendFailsWhenUnreachable(t *testing.T) {
	t.Parallel()

	cfg := fileConfig(t)
	cfg.CacheBackend = config.CacheBackendRedis
	cfg.RedisURL = "redis://127.0.0.1:1"

	_, err := app.Build(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
}

func TestDefaultRegistryResolutionOrder(t *testing.T) {
	t.Parallel()

	reg := app.DefaultRegistry(&http.Client{})

	tests := []struct {
		url  string
		want string
	}{
		{"https://jouw.postnl.nl/track-and-trace/3SABC123/NL/1234AB", "PostNL"},
		{"https://www.dhl.com/nl-en/home/tracking.html?tracking-id=JVGL1234", "DHL"},
		{"https://www.gls-info.nl/tracking?parcelNo=ABC123&zipcode=1234AB", "GLS"},
	}
	for _, tt := range tests {
		h, err := reg.Resolve(tt.url)
		require.NoError(t, err, tt.url)
		require.Equal(t, tt.want, h.Name())
	}

	_, err := reg.Resolve("https://nobody.example/x")
	require.Error(t, err)
}
