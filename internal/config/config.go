package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"cryptoalert/internal/models"
)

// Config holds everything the binaries need. It is loaded once at startup
// and handed to each component at construction; nothing reads it globally.
type Config struct {
	App struct {
		Name                string `yaml:"name"`
		LogLevel            string `yaml:"log_level"`
		PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	} `yaml:"app"`

	API struct {
		CoinGecko CoinGeckoConfig `yaml:"coingecko"`
	} `yaml:"api"`

	Database struct {
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"database"`

	Notifications NotificationsConfig `yaml:"notifications"`

	Feed struct {
		RedisAddr string `yaml:"redis_addr"`
	} `yaml:"feed"`

	Telemetry struct {
		MetricsAddr  string `yaml:"metrics_addr"`
		OTLPEndpoint string `yaml:"otlp_endpoint"`
	} `yaml:"telemetry"`
}

// CoinGeckoConfig configures the price source client. Durations are kept in
// the units the config file uses (seconds) and converted through accessors.
type CoinGeckoConfig struct {
	BaseURL         string  `yaml:"base_url"`
	TimeoutSeconds  int     `yaml:"timeout"`
	RateLimitDelay  float64 `yaml:"rate_limit_delay"`
	CacheTTLSeconds int     `yaml:"cache_ttl"`
}

// Timeout returns the per-request HTTP timeout.
func (c CoinGeckoConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Delay returns the fixed sleep applied after every real upstream call.
func (c CoinGeckoConfig) Delay() time.Duration {
	return time.Duration(c.RateLimitDelay * float64(time.Second))
}

// CacheTTL returns how long a fetched price result stays valid.
func (c CoinGeckoConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// NotificationsConfig configures the dispatcher. Each channel is enabled
// independently; Recipient is shared across channels.
type NotificationsConfig struct {
	Recipient string        `yaml:"recipient"`
	Email     EmailConfig   `yaml:"email"`
	Webhook   WebhookConfig `yaml:"webhook"`
	SMS       SMSConfig     `yaml:"sms"`
}

type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type WebhookConfig struct {
	Enabled        bool              `yaml:"enabled"`
	URL            string            `yaml:"url"`
	Headers        map[string]string `yaml:"headers"`
	TimeoutSeconds int               `yaml:"timeout"`
}

// Timeout returns the webhook POST timeout.
func (c WebhookConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type SMSConfig struct {
	Enabled bool `yaml:"enabled"`
}

// EnabledChannels lists the channels the monitor should dispatch through,
// in a fixed order so notification attempts are deterministic.
func (n NotificationsConfig) EnabledChannels() []models.Channel {
	var channels []models.Channel
	if n.Email.Enabled {
		channels = append(channels, models.ChannelEmail)
	}
	if n.Webhook.Enabled {
		channels = append(channels, models.ChannelWebhook)
	}
	if n.SMS.Enabled {
		channels = append(channels, models.ChannelSMS)
	}
	return channels
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.App.Name = "crypto-alert"
	cfg.App.LogLevel = "info"
	cfg.App.PollIntervalSeconds = 600
	cfg.API.CoinGecko = CoinGeckoConfig{
		BaseURL:         "https://api.coingecko.com/api/v3",
		TimeoutSeconds:  10,
		RateLimitDelay:  1.1,
		CacheTTLSeconds: 300,
	}
	cfg.Database.Path = "data/crypto_alert.db"
	cfg.Database.RetentionDays = 30
	cfg.Notifications.Email = EmailConfig{
		Host: "smtp.gmail.com",
		Port: 587,
	}
	cfg.Notifications.Webhook = WebhookConfig{
		TimeoutSeconds: 10,
	}
	return cfg
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides and validates the result. A missing file is not an
// error; the defaults stand.
func Load(path string) (*Config, error) {
	// Secrets (SMTP credentials, webhook URLs) normally live in .env.
	_ = godotenv.Load()

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Defaults stand.
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	overrideWithEnv(cfg)

	if cfg.Notifications.Recipient == "" {
		cfg.Notifications.Recipient = cfg.Notifications.Email.From
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

// overrideWithEnv lets the environment win over the file for secrets.
// GOOGLE_ACC / GOOGLE_PASS / EMAIL_ADDRESS are the historical names the
// .env file of this project has always used.
func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("GOOGLE_ACC"); v != "" {
		cfg.Notifications.Email.Username = v
	}
	if v := os.Getenv("GOOGLE_PASS"); v != "" {
		cfg.Notifications.Email.Password = v
	}
	if v := os.Getenv("EMAIL_ADDRESS"); v != "" {
		cfg.Notifications.Email.From = v
	}
	if v := os.Getenv("CRYPTOALERT_WEBHOOK_URL"); v != "" {
		cfg.Notifications.Webhook.URL = v
	}
	if v := os.Getenv("CRYPTOALERT_REDIS_ADDR"); v != "" {
		cfg.Feed.RedisAddr = v
	}
	if v := os.Getenv("CRYPTOALERT_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.App.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	gecko := c.API.CoinGecko
	if gecko.BaseURL == "" || (!strings.HasPrefix(gecko.BaseURL, "http://") && !strings.HasPrefix(gecko.BaseURL, "https://")) {
		return fmt.Errorf("invalid CoinGecko base URL: %s", gecko.BaseURL)
	}
	if gecko.TimeoutSeconds <= 0 {
		return fmt.Errorf("API timeout must be positive")
	}
	if gecko.RateLimitDelay < 0 {
		return fmt.Errorf("rate limit delay must not be negative")
	}
	if gecko.CacheTTLSeconds < 0 {
		return fmt.Errorf("cache TTL must not be negative")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Database.RetentionDays <= 0 {
		return fmt.Errorf("retention window must be positive")
	}
	if c.Notifications.Email.Enabled {
		if c.Notifications.Email.Host == "" || c.Notifications.Email.Port <= 0 {
			return fmt.Errorf("email channel enabled but SMTP host/port missing")
		}
		if c.Notifications.Email.From == "" {
			return fmt.Errorf("email channel enabled but sender address missing")
		}
	}
	if c.Notifications.Webhook.Enabled && c.Notifications.Webhook.URL == "" {
		return fmt.Errorf("webhook channel enabled but URL missing")
	}
	return nil
}
