// Package config loads application configuration from defaults, a YAML file
// and SENDLY_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix      = "SENDLY_"
	configPathEnv  = "SENDLY_CONFIG"
	defaultCfgPath = "config.yaml"
)

// Config is the root application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Log        LogConfig        `koanf:"log"`
	Auth       AuthConfig       `koanf:"auth"`
	CORS       CORSConfig       `koanf:"cors"`
	Articles   ArticlesConfig   `koanf:"articles"`
	Email      EmailConfig      `koanf:"email"`
	Newsletter NewsletterConfig `koanf:"newsletter"`
	Worker     WorkerConfig     `koanf:"worker"`
	Billing    BillingConfig    `koanf:"billing"`
	Redis      RedisConfig      `koanf:"redis"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// AuthConfig describes how bearer tokens issued by the hosted auth provider are verified.
type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
	Issuer    string `koanf:"issuer"`
	Audience  string `koanf:"audience"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// ArticlesConfig configures the article source.
type ArticlesConfig struct {
	Provider         string        `koanf:"provider"` // newsapi or rss
	APIKey           string        `koanf:"api_key"`
	BaseURL          string        `koanf:"base_url"`
	RSSSearchURL     string        `koanf:"rss_search_url"`
	Language         string        `koanf:"language"`
	Window           time.Duration `koanf:"window"`
	PerTopic         int           `koanf:"per_topic"`
	MaxConcurrent    int           `koanf:"max_concurrent"`
	RequestSpacing   time.Duration `koanf:"request_spacing"`
	RateLimitBackoff time.Duration `koanf:"rate_limit_backoff"`
	CacheTTL         time.Duration `koanf:"cache_ttl"`
	FilterLowValue   bool          `koanf:"filter_low_value"`
	Timeout          time.Duration `koanf:"timeout"`
}

// EmailConfig selects and configures the delivery provider.
type EmailConfig struct {
	Provider     string `koanf:"provider"` // resend or smtp
	FromAddress  string `koanf:"from_address"`
	ResendAPIKey string `koanf:"resend_api_key"`
	ResendURL    string `koanf:"resend_url"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
}

// NewsletterConfig contains content and scheduling settings.
type NewsletterConfig struct {
	AppName           string        `koanf:"app_name"`
	BaseURL           string        `koanf:"base_url"`
	MaxPerTopic       int           `koanf:"max_per_topic"`
	SendHour          int           `koanf:"send_hour"`
	Timezone          string        `koanf:"timezone"`
	ReactivationDelay time.Duration `koanf:"reactivation_delay"`
}

// Location resolves the configured timezone. Invalid names fall back to UTC.
func (n NewsletterConfig) Location() *time.Location {
	if n.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(n.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// WorkerConfig configures the schedule queue worker and its retry policy.
type WorkerConfig struct {
	Enabled           bool          `koanf:"enabled"`
	NumWorkers        int           `koanf:"num_workers"`
	BatchSize         int           `koanf:"batch_size"`
	PollInterval      time.Duration `koanf:"poll_interval"`
	MaxAttempts       int           `koanf:"max_attempts"`
	InitialBackoff    time.Duration `koanf:"initial_backoff"`
	MaxBackoff        time.Duration `koanf:"max_backoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier"`
	StuckTimeout      time.Duration `koanf:"stuck_timeout"`
	CheckpointTTL     time.Duration `koanf:"checkpoint_ttl"`
	ReseedBatch       int           `koanf:"reseed_batch"`
}

// BillingConfig contains payment provider webhook settings.
type BillingConfig struct {
	WebhookSecret string            `koanf:"webhook_secret"`
	Tolerance     time.Duration     `koanf:"tolerance"`
	PricePlans    map[string]string `koanf:"price_plans"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// RateLimitConfig configures per-user API rate limiting. Requires Redis.
type RateLimitConfig struct {
	Enabled bool          `koanf:"enabled"`
	Limit   int           `koanf:"limit"`
	Window  time.Duration `koanf:"window"`
}

// Default returns the configuration used when nothing overrides a value.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Articles: ArticlesConfig{
			Provider:         "newsapi",
			BaseURL:          "https://newsapi.org",
			RSSSearchURL:     "https://news.google.com/rss/search",
			Language:         "en",
			Window:           7 * 24 * time.Hour,
			PerTopic:         5,
			MaxConcurrent:    3,
			RequestSpacing:   250 * time.Millisecond,
			RateLimitBackoff: 60 * time.Second,
			CacheTTL:         5 * time.Minute,
			FilterLowValue:   true,
			Timeout:          15 * time.Second,
		},
		Email: EmailConfig{
			Provider:  "resend",
			ResendURL: "https://api.resend.com",
			SMTPPort:  587,
		},
		Newsletter: NewsletterConfig{
			AppName:           "Sendly",
			BaseURL:           "http://localhost:3000",
			MaxPerTopic:       5,
			SendHour:          9,
			Timezone:          "UTC",
			ReactivationDelay: 5 * time.Minute,
		},
		Worker: WorkerConfig{
			Enabled:           true,
			NumWorkers:        4,
			BatchSize:         20,
			PollInterval:      10 * time.Second,
			MaxAttempts:       5,
			InitialBackoff:    30 * time.Second,
			MaxBackoff:        30 * time.Minute,
			BackoffMultiplier: 2.0,
			StuckTimeout:      15 * time.Minute,
			CheckpointTTL:     30 * 24 * time.Hour,
			ReseedBatch:       100,
		},
		Billing: BillingConfig{
			Tolerance:  5 * time.Minute,
			PricePlans: map[string]string{},
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		RateLimit: RateLimitConfig{
			Limit:  60,
			Window: time.Minute,
		},
	}
}

// Load reads and validates configuration. The YAML file is optional;
// environment variables always win. SENDLY_DATABASE__URL maps to database.url.
func Load() (*Config, error) {
	return LoadFile(Path())
}

// Path returns the config file location, SENDLY_CONFIG or config.yaml.
func Path() string {
	if path := os.Getenv(configPathEnv); path != "" {
		return path
	}
	return defaultCfgPath
}

// LoadFile is Load with an explicit file path.
func LoadFile(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile reads configuration without validating it. CLI commands that
// need only part of the configuration check what they use themselves.
func ReadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat config file %s: %w", path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func envKey(s string) string {
	if s == configPathEnv {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
}

// Validate checks that every enabled adapter has the settings it needs.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}

	switch c.Articles.Provider {
	case "newsapi":
		if c.Articles.APIKey == "" {
			errs = append(errs, errors.New("articles.api_key is required for the newsapi provider"))
		}
	case "rss":
	default:
		errs = append(errs, fmt.Errorf("articles.provider %q is not supported", c.Articles.Provider))
	}
	if c.Articles.PerTopic < 1 || c.Articles.PerTopic > 20 {
		errs = append(errs, errors.New("articles.per_topic must be between 1 and 20"))
	}
	if c.Articles.MaxConcurrent < 1 || c.Articles.MaxConcurrent > 5 {
		errs = append(errs, errors.New("articles.max_concurrent must be between 1 and 5"))
	}

	if c.Email.FromAddress == "" {
		errs = append(errs, errors.New("email.from_address is required"))
	}
	switch c.Email.Provider {
	case "resend":
		if c.Email.ResendAPIKey == "" {
			errs = append(errs, errors.New("email.resend_api_key is required for the resend provider"))
		}
	case "smtp":
		if c.Email.SMTPHost == "" {
			errs = append(errs, errors.New("email.smtp_host is required for the smtp provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("email.provider %q is not supported", c.Email.Provider))
	}

	if c.Newsletter.MaxPerTopic < 2 || c.Newsletter.MaxPerTopic > 5 {
		errs = append(errs, errors.New("newsletter.max_per_topic must be between 2 and 5"))
	}
	if c.Newsletter.SendHour < 0 || c.Newsletter.SendHour > 23 {
		errs = append(errs, errors.New("newsletter.send_hour must be between 0 and 23"))
	}
	if _, err := time.LoadLocation(c.Newsletter.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("newsletter.timezone: %w", err))
	}

	if c.Billing.WebhookSecret == "" {
		errs = append(errs, errors.New("billing.webhook_secret is required"))
	}
	for price, plan := range c.Billing.PricePlans {
		switch plan {
		case "free", "pro", "premium":
		default:
			errs = append(errs, fmt.Errorf("billing.price_plans.%s: unknown plan %q", price, plan))
		}
	}

	if c.RateLimit.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when rate_limit is enabled"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
