package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/forumwatch/internal/config"
)

func baseConfig() config.Config {
	return config.Config{
		Server:       config.ServerConfig{Port: 8080},
		HTTP:         config.HTTPConfig{RequestTimeout: time.Second, ConnectTimeout: time.Second, MaxConcurrency: 2},
		Completion:   config.CompletionConfig{MaxAttempts: 1, Timeout: time.Second},
		Verification: config.VerificationConfig{FreshnessWindow: time.Hour},
		Scan:         config.ScanConfig{FreshnessDays: 7},
		Storage:      config.StorageConfig{Driver: "memory"},
		Lock:         config.LockConfig{Driver: "local"},
	}
}

func TestNewWithMemoryStore(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), baseConfig(), nil)
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Pipeline())
	require.NoError(t, a.Store().Ping(context.Background()))

	summary := a.Pipeline().Scan(context.Background())
	assert.True(t, summary.OK)
	assert.NotEmpty(t, summary.ScanID)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewWithRedisGuard(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.Lock = config.LockConfig{Driver: "redis", TTL: time.Minute}
	cfg.Redis = config.RedisConfig{Addr: srv.Addr()}

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.Pipeline().Scan(context.Background()).OK)
}

func TestNewRejectsUnknownDrivers(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.Storage.Driver = "sqlite"
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)

	cfg = baseConfig()
	cfg.Lock.Driver = "etcd"
	_, err = New(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestNewFailsWhenRedisUnreachable(t *testing.T) {
	t.Parallel()

	srv := miniredis.RunT(t)
	addr := srv.Addr()
	srv.Close()

	cfg := baseConfig()
	cfg.Lock = config.LockConfig{Driver: "redis", TTL: time.Minute}
	cfg.Redis = config.RedisConfig{Addr: addr}
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
}
