// Package config loads and validates forumwatch configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
// It is loaded once and passed by value into each stage.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	Completion   CompletionConfig   `mapstructure:"completion"`
	Discovery    DiscoveryConfig    `mapstructure:"discovery"`
	Verification VerificationConfig `mapstructure:"verification"`
	Scan         ScanConfig         `mapstructure:"scan"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	Storage      StorageConfig      `mapstructure:"storage"`
	DB           DBConfig           `mapstructure:"db"`
	Lock         LockConfig         `mapstructure:"lock"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Schedule     ScheduleConfig     `mapstructure:"schedule"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// HTTPConfig governs the feed fetch engine.
type HTTPConfig struct {
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	MaxRedirects   int           `mapstructure:"max_redirects"`
	MaxBodyBytes   int           `mapstructure:"max_body_bytes"`
}

// CompletionConfig configures the structured completion API client.
type CompletionConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	Strict      bool          `mapstructure:"strict"`
	WebSearch   bool          `mapstructure:"web_search"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DiscoveryConfig drives candidate domain discovery.
type DiscoveryConfig struct {
	Topic           string   `mapstructure:"topic"`
	Language        string   `mapstructure:"language"`
	Region          string   `mapstructure:"region"`
	Count           int      `mapstructure:"count"`
	AvgItemTokens   int      `mapstructure:"avg_item_tokens"`
	OverheadTokens  int      `mapstructure:"overhead_tokens"`
	GlobalCap       int      `mapstructure:"global_cap"`
	ExcludedDomains []string `mapstructure:"excluded_domains"`
}

// VerificationConfig bounds candidate verification.
type VerificationConfig struct {
	BatchSize       int           `mapstructure:"batch_size"`
	FreshnessWindow time.Duration `mapstructure:"freshness_window"`
}

// ScanConfig bounds a scan pass.
type ScanConfig struct {
	FreshnessDays int           `mapstructure:"freshness_days"`
	MaxNew        int           `mapstructure:"max_new"`
	HostLimit     int           `mapstructure:"host_limit"`
	DedupWindow   int           `mapstructure:"dedup_window"`
	StaleRunAfter time.Duration `mapstructure:"stale_run_after"`
}

// NotifyConfig holds digest channel credentials.
type NotifyConfig struct {
	Telegram   TelegramConfig `mapstructure:"telegram"`
	Slack      SlackConfig    `mapstructure:"slack"`
	SampleSize int            `mapstructure:"sample_size"`
}

// TelegramConfig targets the Telegram Bot API.
type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// SlackConfig targets an incoming webhook.
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

// StorageConfig selects the store implementation.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// LockConfig selects the period guard.
type LockConfig struct {
	Driver string        `mapstructure:"driver"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// RedisConfig addresses the shared lock backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ScheduleConfig drives periodic runs in serve mode.
type ScheduleConfig struct {
	Cron    string `mapstructure:"cron"`
	Enabled bool   `mapstructure:"enabled"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FORUMWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)

	v.SetDefault("http.user_agent", "forumwatch/1.0 (+https://github.com/JakeFAU/forumwatch)")
	v.SetDefault("http.request_timeout", 15*time.Second)
	v.SetDefault("http.connect_timeout", 5*time.Second)
	v.SetDefault("http.max_concurrency", 10)
	v.SetDefault("http.max_redirects", 5)
	v.SetDefault("http.max_body_bytes", 4<<20)

	v.SetDefault("completion.endpoint", "https://api.openai.com/v1/responses")
	v.SetDefault("completion.model", "gpt-4.1-mini")
	v.SetDefault("completion.api_key", "")
	v.SetDefault("completion.strict", true)
	v.SetDefault("completion.web_search", false)
	v.SetDefault("completion.max_attempts", 3)
	v.SetDefault("completion.base_backoff", time.Second)
	v.SetDefault("completion.timeout", 90*time.Second)

	v.SetDefault("discovery.topic", "")
	v.SetDefault("discovery.language", "en")
	v.SetDefault("discovery.region", "")
	v.SetDefault("discovery.count", 20)
	v.SetDefault("discovery.avg_item_tokens", 180)
	v.SetDefault("discovery.overhead_tokens", 256)
	v.SetDefault("discovery.global_cap", 4096)
	v.SetDefault("discovery.excluded_domains", []string{})

	v.SetDefault("verification.batch_size", 100)
	v.SetDefault("verification.freshness_window", 720*time.Hour)

	v.SetDefault("scan.freshness_days", 7)
	v.SetDefault("scan.max_new", 50)
	v.SetDefault("scan.host_limit", 500)
	v.SetDefault("scan.dedup_window", 400)
	v.SetDefault("scan.stale_run_after", 6*time.Hour)

	v.SetDefault("notify.telegram.bot_token", "")
	v.SetDefault("notify.telegram.chat_id", "")
	v.SetDefault("notify.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("notify.slack.webhook_url", "")
	v.SetDefault("notify.sample_size", 5)

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", time.Hour)

	v.SetDefault("lock.driver", "local")
	v.SetDefault("lock.ttl", 30*time.Minute)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("schedule.cron", "*/30 * * * *")
	v.SetDefault("schedule.enabled", true)
}

// Validate enforces required values and reasonable limits.
// Missing completion credentials or topic are not rejected here: discovery reports them itself.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.HTTP.MaxConcurrency <= 0 {
		return fmt.Errorf("http.max_concurrency must be > 0")
	}
	if c.HTTP.RequestTimeout <= 0 || c.HTTP.ConnectTimeout <= 0 {
		return fmt.Errorf("http.request_timeout and http.connect_timeout must be > 0")
	}
	if c.HTTP.MaxRedirects < 0 {
		return fmt.Errorf("http.max_redirects must be >= 0")
	}
	if c.Completion.MaxAttempts <= 0 {
		return fmt.Errorf("completion.max_attempts must be > 0")
	}
	if c.Completion.Timeout <= 0 {
		return fmt.Errorf("completion.timeout must be > 0")
	}
	if c.Scan.FreshnessDays <= 0 {
		return fmt.Errorf("scan.freshness_days must be > 0")
	}
	if c.Verification.FreshnessWindow <= 0 {
		return fmt.Errorf("verification.freshness_window must be > 0")
	}
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when storage.driver is postgres")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
	}
	switch c.Lock.Driver {
	case "local":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr must be set when lock.driver is redis")
		}
	default:
		return fmt.Errorf("lock.driver %q is not supported", c.Lock.Driver)
	}
	return nil
}

// ScanWindow converts freshness days into a duration.
func (c Config) ScanWindow() time.Duration {
	return time.Duration(c.Scan.FreshnessDays) * 24 * time.Hour
}
