package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"trading-profilev1/internal/engine"
	"trading-profilev1/internal/logger"
	"trading-profilev1/internal/strategy"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	App     AppConfig     `envPrefix:"APP_"`
	Feed    FeedConfig    `envPrefix:"FEED_"`
	Engine  EngineConfig  `envPrefix:"ENGINE_"`
	Redis   RedisConfig   `envPrefix:"REDIS_"`
	SQLite  SQLiteConfig  `envPrefix:"SQLITE_"`
	Gateway GatewayConfig `envPrefix:"GATEWAY_"`
	Notify  NotifyConfig  `envPrefix:"NOTIFY_"`
}

// AppConfig covers process-wide settings.
type AppConfig struct {
	Name     string `env:"NAME" envDefault:"profileengine"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":9095"`
	Terminal bool   `env:"TERMINAL" envDefault:"true"`
	Color    bool   `env:"COLOR" envDefault:"true"`
	Timezone string `env:"TIMEZONE" envDefault:"Local"`
}

// FeedConfig is the upstream Binance stream.
type FeedConfig struct {
	URL               string        `env:"URL" envDefault:"wss://data-stream.binance.vision/ws"`
	Symbol            string        `env:"SYMBOL" envDefault:"btcusdt"`
	Interval          string        `env:"INTERVAL" envDefault:"1m"`
	ReconnectDelay    time.Duration `env:"RECONNECT_DELAY" envDefault:"2s"`
	MaxReconnectDelay time.Duration `env:"MAX_RECONNECT_DELAY" envDefault:"30s"`
	ReadTimeout       time.Duration `env:"READ_TIMEOUT" envDefault:"2m"`
}

// EngineConfig tunes the analytics engine.
type EngineConfig struct {
	Capacity       int     `env:"CAPACITY" envDefault:"1000"`
	PivotLeft      int     `env:"PIVOT_LEFT" envDefault:"47"`
	PivotRight     int     `env:"PIVOT_RIGHT" envDefault:"47"`
	Buckets        int     `env:"BUCKETS" envDefault:"27"`
	ValueArea      float64 `env:"VALUE_AREA" envDefault:"0.68"`
	SignalPolicy   string  `env:"SIGNAL_POLICY" envDefault:"value_area"`
	SnapshotBuffer int     `env:"SNAPSHOT_BUFFER" envDefault:"64"`
}

// RedisConfig enables snapshot publication when Addr is set.
type RedisConfig struct {
	Addr        string        `env:"ADDR"`
	Password    string        `env:"PASSWORD"`
	DB          int           `env:"DB" envDefault:"0"`
	SnapshotKey string        `env:"SNAPSHOT_KEY"` // empty: profile:snapshot:{symbol}
	Channel     string        `env:"CHANNEL"`      // empty: pub:profile:{symbol}
	TTL         time.Duration `env:"TTL" envDefault:"30m"`
}

// SQLiteConfig enables the journal when Path is set.
type SQLiteConfig struct {
	Path       string        `env:"PATH"`
	BatchSize  int           `env:"BATCH_SIZE" envDefault:"100"`
	FlushDelay time.Duration `env:"FLUSH_DELAY" envDefault:"200ms"`
}

// GatewayConfig sizes the WebSocket gateway.
type GatewayConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
	History int  `env:"HISTORY" envDefault:"500"`
}

// NotifyConfig selects alert destinations. Alerts are always logged.
type NotifyConfig struct {
	WebhookURL     string `env:"WEBHOOK_URL"`
	TelegramToken  string `env:"TELEGRAM_TOKEN"`
	TelegramChatID string `env:"TELEGRAM_CHAT_ID"`
	Buffer         int    `env:"BUFFER" envDefault:"64"`
}

// Load reads .env if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.Feed.Symbol = strings.ToLower(strings.TrimSpace(cfg.Feed.Symbol))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env parsing cannot.
func (c *Config) Validate() error {
	var errs []error
	if c.Feed.Symbol == "" {
		errs = append(errs, errors.New("FEED_SYMBOL is required"))
	}
	if u, err := url.Parse(c.Feed.URL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		errs = append(errs, fmt.Errorf("FEED_URL must be a ws:// or wss:// URL, got %q", c.Feed.URL))
	}
	if c.Feed.ReconnectDelay <= 0 || c.Feed.MaxReconnectDelay < c.Feed.ReconnectDelay {
		errs = append(errs, fmt.Errorf("reconnect delays must satisfy 0 < initial (%s) <= max (%s)",
			c.Feed.ReconnectDelay, c.Feed.MaxReconnectDelay))
	}
	if c.Engine.SnapshotBuffer < 1 {
		errs = append(errs, fmt.Errorf("ENGINE_SNAPSHOT_BUFFER must be >= 1, got %d", c.Engine.SnapshotBuffer))
	}
	if _, err := strategy.ByName(c.Engine.SignalPolicy); err != nil {
		errs = append(errs, err)
	}
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, errors.New("NOTIFY_TELEGRAM_TOKEN and NOTIFY_TELEGRAM_CHAT_ID must be set together"))
	}
	if c.Notify.WebhookURL != "" {
		if u, err := url.Parse(c.Notify.WebhookURL); err != nil || u.Host == "" {
			errs = append(errs, fmt.Errorf("NOTIFY_WEBHOOK_URL is not a valid URL: %q", c.Notify.WebhookURL))
		}
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("APP_TIMEZONE: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// EngineConfig builds and validates the engine configuration.
func (c *Config) EngineConfig() (engine.Config, error) {
	policy, err := strategy.ByName(c.Engine.SignalPolicy)
	if err != nil {
		return engine.Config{}, err
	}
	ec := engine.Config{
		Symbol:            strings.ToUpper(c.Feed.Symbol),
		Capacity:          c.Engine.Capacity,
		PivotLeft:         c.Engine.PivotLeft,
		PivotRight:        c.Engine.PivotRight,
		BucketCount:       c.Engine.Buckets,
		ValueAreaFraction: c.Engine.ValueArea,
		Policy:            policy,
	}
	if err := ec.Validate(); err != nil {
		return engine.Config{}, err
	}
	return ec, nil
}

// Level returns the parsed log level.
func (c *Config) Level() slog.Level {
	return logger.ParseLevel(c.App.LogLevel)
}

// Location returns the timezone used for rendered timestamps.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
