package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"mortgage-rate-alerts/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Logging       logging.Config      `mapstructure:"logging"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Rates         RatesConfig         `mapstructure:"rates"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	CRM           CRMConfig           `mapstructure:"crm"`
	Admin         AdminConfig         `mapstructure:"admin"`
	Limits        LimitsConfig        `mapstructure:"limits"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Export        ExportConfig        `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig configures the REST listener.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity. An empty DSN selects the in-memory store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig backs the shared rate limiter. An empty Addr selects the in-memory limiter.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SchedulerConfig governs the rate monitor cadence.
type SchedulerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
}

// RatesConfig selects the market rate source.
type RatesConfig struct {
	Source string             `mapstructure:"source"`
	Static map[string]float64 `mapstructure:"static"`
	Feed   RateFeedConfig     `mapstructure:"feed"`
}

// RateFeedConfig covers the live rate feed.
type RateFeedConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryCount     int           `mapstructure:"retry_count"`
}

// NotificationsConfig defines delivery channels.
type NotificationsConfig struct {
	Email    EmailConfig    `mapstructure:"email"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// EmailConfig targets a transactional email HTTP API.
type EmailConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	APIBase        string        `mapstructure:"api_base"`
	APIKey         string        `mapstructure:"api_key"`
	From           string        `mapstructure:"from"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// TelegramConfig 描述 Telegram 运营通知参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// CRMConfig configures best-effort lead creation.
type CRMConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AdminConfig holds the shared secret for the admin surface.
type AdminConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// LimitsConfig caps alerts per email.
type LimitsConfig struct {
	MaxActivePerEmail int `mapstructure:"max_active_per_email"`
	MaxDailyPerEmail  int `mapstructure:"max_daily_per_email"`
}

// RateLimitConfig defines per-IP policies for each route family.
type RateLimitConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	Create  WindowPolicy `mapstructure:"create"`
	Read    WindowPolicy `mapstructure:"read"`
	Mutate  WindowPolicy `mapstructure:"mutate"`
	Admin   WindowPolicy `mapstructure:"admin"`
}

// WindowPolicy allows Limit requests per sliding Window.
type WindowPolicy struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// TelemetryConfig enables OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RATEALERTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "rate-alerts")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.request_timeout", "15s")
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "ratealerts:rl:")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "1h")
	v.SetDefault("scheduler.align_to_interval", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", false)

	v.SetDefault("rates.source", "static")
	v.SetDefault("rates.feed.base_url", "")
	v.SetDefault("rates.feed.api_key", "")
	v.SetDefault("rates.feed.request_timeout", "10s")
	v.SetDefault("rates.feed.retry_count", 2)

	v.SetDefault("notifications.email.enabled", false)
	v.SetDefault("notifications.email.api_base", "")
	v.SetDefault("notifications.email.api_key", "")
	v.SetDefault("notifications.email.request_timeout", "10s")
	v.SetDefault("notifications.email.from", "alerts@rate-alerts.local")
	v.SetDefault("notifications.telegram.enabled", false)
	v.SetDefault("notifications.telegram.bot_token", "")
	v.SetDefault("notifications.telegram.chat_id", "")
	v.SetDefault("notifications.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("crm.enabled", false)
	v.SetDefault("crm.base_url", "")
	v.SetDefault("crm.api_key", "")
	v.SetDefault("crm.request_timeout", "5s")

	v.SetDefault("admin.api_key", "")

	v.SetDefault("limits.max_active_per_email", 5)
	v.SetDefault("limits.max_daily_per_email", 10)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.create.limit", 10)
	v.SetDefault("rate_limit.create.window", "15m")
	v.SetDefault("rate_limit.read.limit", 100)
	v.SetDefault("rate_limit.read.window", "15m")
	v.SetDefault("rate_limit.mutate.limit", 30)
	v.SetDefault("rate_limit.mutate.window", "15m")
	v.SetDefault("rate_limit.admin.limit", 60)
	v.SetDefault("rate_limit.admin.window", "15m")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sample_ratio", 1.0)

	v.SetDefault("export.page_size", 500)
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
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Limits.MaxActivePerEmail <= 0 {
		return fmt.Errorf("limits.max_active_per_email must be greater than zero")
	}
	if c.Limits.MaxDailyPerEmail <= 0 {
		return fmt.Errorf("limits.max_daily_per_email must be greater than zero")
	}
	switch c.Rates.Source {
	case "static":
	case "feed":
		if c.Rates.Feed.BaseURL == "" {
			return fmt.Errorf("rates.feed.base_url is required when rates.source is feed")
		}
	default:
		return fmt.Errorf("rates.source must be static or feed, got %q", c.Rates.Source)
	}
	if c.RateLimit.Enabled {
		for name, policy := range map[string]WindowPolicy{
			"create": c.RateLimit.Create,
			"read":   c.RateLimit.Read,
			"mutate": c.RateLimit.Mutate,
			"admin":  c.RateLimit.Admin,
		} {
			if policy.Limit <= 0 || policy.Window <= 0 {
				return fmt.Errorf("rate_limit.%s needs a positive limit and window", name)
			}
		}
	}
	if c.Notifications.Email.Enabled {
		if c.Notifications.Email.APIBase == "" {
			return fmt.Errorf("notifications.email.api_base is required")
		}
		if c.Notifications.Email.From == "" {
			return fmt.Errorf("notifications.email.from is required")
		}
	}
	if c.Notifications.Telegram.Enabled {
		if c.Notifications.Telegram.BotToken == "" {
			return fmt.Errorf("notifications.telegram.bot_token is required")
		}
		if c.Notifications.Telegram.ChatID == "" {
			return fmt.Errorf("notifications.telegram.chat_id is required")
		}
	}
	if c.CRM.Enabled && c.CRM.BaseURL == "" {
		return fmt.Errorf("crm.base_url is required when crm is enabled")
	}
	if c.Telemetry.Enabled && (c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1) {
		return fmt.Errorf("telemetry.sample_ratio must be within [0, 1]")
	}
	return nil
}

// ResolvePageSize returns either the CLI override or config default.
func (c *Config) ResolvePageSize(override int) int {
	if override > 0 {
		return override
	}
	if c.Export.PageSize > 0 {
		return c.Export.PageSize
	}
	return 500
}
