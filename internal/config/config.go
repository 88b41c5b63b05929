package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"mev-alerts/internal/logging"
)

// Store backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Observatory ObservatoryConfig `mapstructure:"observatory"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	Store       StoreConfig       `mapstructure:"store"`
	Legacy      LegacyConfig      `mapstructure:"legacy"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ObservatoryConfig covers the analytics API.
type ObservatoryConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	LookbackBlocks int64         `mapstructure:"lookback_blocks"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// SchedulerConfig governs the evaluation loop.
type SchedulerConfig struct {
	Tick         time.Duration `mapstructure:"tick"`
	AlignToTick  bool          `mapstructure:"align_to_tick"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
	Concurrency  int           `mapstructure:"concurrency"`
}

// TelegramConfig holds bot credentials and transport tuning.
type TelegramConfig struct {
	BotToken    string        `mapstructure:"bot_token"`
	ChatID      string        `mapstructure:"chat_id"`
	APIBase     string        `mapstructure:"api_base"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

// StoreConfig selects where subscriber settings persist.
type StoreConfig struct {
	Backend         string        `mapstructure:"backend"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LegacyConfig seeds the single subscriber named by telegram.chat_id.
type LegacyConfig struct {
	IntervalHours int     `mapstructure:"interval_hours"`
	ThresholdUSD  float64 `mapstructure:"threshold_usd"`
}

// MetricsConfig exposes Prometheus metrics when ListenAddr is set.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Watch re-reads the configuration file whenever it changes and passes the
// result to onChange. It is a no-op when no config file is in use.
func Watch(path string, onChange func(*Config, error)) error {
	v, err := newViper(path)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(decode(v))
	})
	v.WatchConfig()
	return nil
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("MEVBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindLegacyEnv accepts the bare TELEGRAM_TOKEN / CHAT_ID variables next to
// the prefixed forms.
func bindLegacyEnv(v *viper.Viper) error {
	if err := v.BindEnv("telegram.bot_token", "MEVBOT_TELEGRAM_BOT_TOKEN", "TELEGRAM_TOKEN"); err != nil {
		return fmt.Errorf("bind telegram token env: %w", err)
	}
	if err := v.BindEnv("telegram.chat_id", "MEVBOT_TELEGRAM_CHAT_ID", "CHAT_ID"); err != nil {
		return fmt.Errorf("bind chat id env: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "mevbot")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 14)

	v.SetDefault("observatory.base_url", "https://dydx.observatory.zone")
	v.SetDefault("observatory.request_timeout", "20s")
	v.SetDefault("observatory.lookback_blocks", 50000)
	v.SetDefault("observatory.rate_limit", 5.0)
	v.SetDefault("observatory.rate_burst", 10)

	v.SetDefault("scheduler.tick", "1m")
	v.SetDefault("scheduler.align_to_tick", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.concurrency", 8)

	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.poll_timeout", "30s")
	v.SetDefault("telegram.send_timeout", "10s")

	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.path", "data/subscribers.json")
	v.SetDefault("store.max_open_conns", 5)
	v.SetDefault("store.max_idle_conns", 1)
	v.SetDefault("store.conn_max_lifetime", "30m")

	v.SetDefault("legacy.interval_hours", 1)
	v.SetDefault("legacy.threshold_usd", 300.0)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Observatory.BaseURL == "" {
		return fmt.Errorf("observatory.base_url must be set")
	}
	if c.Observatory.RequestTimeout <= 0 {
		return fmt.Errorf("observatory.request_timeout must be greater than zero")
	}
	if c.Observatory.LookbackBlocks <= 0 {
		return fmt.Errorf("observatory.lookback_blocks must be greater than zero")
	}
	if c.Observatory.RateLimit < 0 {
		return fmt.Errorf("observatory.rate_limit cannot be negative")
	}
	if c.Scheduler.Tick <= 0 {
		return fmt.Errorf("scheduler.tick must be greater than zero")
	}
	if c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("scheduler.concurrency must be greater than zero")
	}
	switch c.Store.Backend {
	case BackendFile:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the file backend")
		}
	case BackendPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be %q or %q, got %q", BackendFile, BackendPostgres, c.Store.Backend)
	}
	if c.Legacy.IntervalHours < 1 {
		return fmt.Errorf("legacy.interval_hours must be at least 1")
	}
	if c.Legacy.ThresholdUSD < 0 {
		return fmt.Errorf("legacy.threshold_usd cannot be negative")
	}
	return nil
}

// LegacyThreshold returns the seeded subscriber's threshold as a decimal.
func (c *Config) LegacyThreshold() decimal.Decimal {
	return decimal.NewFromFloat(c.Legacy.ThresholdUSD)
}

// RequireTelegram reports an error when no bot token is configured.
func (c *Config) RequireTelegram() error {
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		return fmt.Errorf("telegram.bot_token (or TELEGRAM_TOKEN) must be configured")
	}
	return nil
}
