package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.HTTP.MaxConcurrency)
	assert.Equal(t, 15*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ConnectTimeout)
	assert.Equal(t, 3, cfg.Completion.MaxAttempts)
	assert.Equal(t, 20, cfg.Discovery.Count)
	assert.Equal(t, 4096, cfg.Discovery.GlobalCap)
	assert.Equal(t, 100, cfg.Verification.BatchSize)
	assert.Equal(t, 720*time.Hour, cfg.Verification.FreshnessWindow)
	assert.Equal(t, 400, cfg.Scan.DedupWindow)
	assert.Equal(t, 7*24*time.Hour, cfg.ScanWindow())
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "local", cfg.Lock.Driver)
	assert.Equal(t, "*/30 * * * *", cfg.Schedule.Cron)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
http:
  max_concurrency: 4
  request_timeout: 20s
completion:
  api_key: sk-test
  model: test-model
  web_search: true
discovery:
  topic: self-hosted observability
  count: 10
  excluded_domains: ["reddit.com", "news.ycombinator.com"]
scan:
  freshness_days: 3
  max_new: 0
storage:
  driver: postgres
db:
  dsn: postgres://localhost/forumwatch
  max_conns: 4
lock:
  driver: redis
  ttl: 10m
redis:
  addr: localhost:6380
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "secret", cfg.Auth.APIKey)
	assert.Equal(t, 4, cfg.HTTP.MaxConcurrency)
	assert.Equal(t, 20*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, "sk-test", cfg.Completion.APIKey)
	assert.True(t, cfg.Completion.WebSearch)
	assert.Equal(t, "self-hosted observability", cfg.Discovery.Topic)
	assert.Equal(t, []string{"reddit.com", "news.ycombinator.com"}, cfg.Discovery.ExcludedDomains)
	assert.Equal(t, 0, cfg.Scan.MaxNew)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, int32(4), cfg.DB.MaxConns)
	assert.Equal(t, 10*time.Minute, cfg.Lock.TTL)
	assert.Equal(t, "localhost:6380", cfg.Redis.Addr)
	assert.False(t, cfg.Logging.Development)
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:       ServerConfig{Port: 8080},
		HTTP:         HTTPConfig{MaxConcurrency: 1, RequestTimeout: time.Second, ConnectTimeout: time.Second},
		Completion:   CompletionConfig{MaxAttempts: 3, Timeout: time.Second},
		Scan:         ScanConfig{FreshnessDays: 7},
		Verification: VerificationConfig{FreshnessWindow: time.Hour},
		Storage:      StorageConfig{Driver: "memory"},
		Lock:         LockConfig{Driver: "local"},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid concurrency", func(c *Config) { c.HTTP.MaxConcurrency = 0 }, "http.max_concurrency"},
		{"invalid timeout", func(c *Config) { c.HTTP.RequestTimeout = 0 }, "http.request_timeout"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "db.dsn"},
		{"unknown storage", func(c *Config) { c.Storage.Driver = "sqlite" }, "storage.driver"},
		{"unknown lock", func(c *Config) { c.Lock.Driver = "etcd" }, "lock.driver"},
		{"redis without addr", func(c *Config) { c.Lock.Driver = "redis" }, "redis.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
