// Package config loads runtime configuration from the environment and an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const devJWTSecret = "persian-connect-dev-secret-change-me"

// Config holds every setting the service reads at startup.
type Config struct {
	AppEnv           string        `mapstructure:"APP_ENV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	LogFormat        string        `mapstructure:"LOG_FORMAT"`
	HTTPListenAddr   string        `mapstructure:"HTTP_LISTEN_ADDR"`
	PublicBaseURL    string        `mapstructure:"PUBLIC_BASE_URL"`
	PublicBasePath   string        `mapstructure:"PUBLIC_BASE_PATH"`
	MetricsNamespace string        `mapstructure:"METRICS_NAMESPACE"`
	SweepInterval    time.Duration `mapstructure:"SWEEP_INTERVAL"`

	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	SQLitePath    string `mapstructure:"SQLITE_PATH"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBSchema      string `mapstructure:"DB_SCHEMA"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisTLS      bool   `mapstructure:"REDIS_TLS"`
	RedisPrefix   string `mapstructure:"REDIS_PREFIX"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	FeeAdPosting float64 `mapstructure:"FEE_AD_POSTING"`
	FeeAdBoost   float64 `mapstructure:"FEE_AD_BOOST"`
	FeeCurrency  string  `mapstructure:"FEE_CURRENCY"`

	PaymentBaseURL            string        `mapstructure:"PAYMENT_BASE_URL"`
	PaymentAPIKey             string        `mapstructure:"PAYMENT_API_KEY"`
	PaymentTimeout            time.Duration `mapstructure:"PAYMENT_TIMEOUT"`
	PaymentSuccessURL         string        `mapstructure:"PAYMENT_SUCCESS_URL"`
	PaymentCancelURL          string        `mapstructure:"PAYMENT_CANCEL_URL"`
	PaymentWebhookUsernameMD5 string        `mapstructure:"PAYMENT_WEBHOOK_USERNAME_MD5"`
	PaymentWebhookPasswordMD5 string        `mapstructure:"PAYMENT_WEBHOOK_PASSWORD_MD5"`

	ModerationURL     string        `mapstructure:"MODERATION_URL"`
	ModerationAPIKey  string        `mapstructure:"MODERATION_API_KEY"`
	ModerationTimeout time.Duration `mapstructure:"MODERATION_TIMEOUT"`

	WhatsAppEnabled   bool   `mapstructure:"WHATSAPP_ENABLED"`
	WhatsAppStorePath string `mapstructure:"WHATSAPP_STORE_PATH"`
	WhatsAppLogLevel  string `mapstructure:"WHATSAPP_LOG_LEVEL"`

	AdminEmail    string `mapstructure:"ADMIN_EMAIL"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`
}

var defaults = map[string]any{
	"APP_ENV":           "development",
	"LOG_LEVEL":         "info",
	"LOG_FORMAT":        "text",
	"HTTP_LISTEN_ADDR":  ":8080",
	"PUBLIC_BASE_URL":   "",
	"PUBLIC_BASE_PATH":  "",
	"METRICS_NAMESPACE": "persian_connect",
	"SWEEP_INTERVAL":    "1h",

	"STORAGE_DRIVER": "sqlite",
	"SQLITE_PATH":    "data/persian-connect.db",
	"DATABASE_URL":   "",
	"DB_SCHEMA":      "",
	"REDIS_ADDR":     "",
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,
	"REDIS_TLS":      false,
	"REDIS_PREFIX":   "persian-connect",

	"JWT_SECRET": devJWTSecret,
	"JWT_TTL":    "168h",

	"FEE_AD_POSTING": 5.0,
	"FEE_AD_BOOST":   10.0,
	"FEE_CURRENCY":   "USD",

	"PAYMENT_BASE_URL":             "",
	"PAYMENT_API_KEY":              "",
	"PAYMENT_TIMEOUT":              "15s",
	"PAYMENT_SUCCESS_URL":          "",
	"PAYMENT_CANCEL_URL":           "",
	"PAYMENT_WEBHOOK_USERNAME_MD5": "",
	"PAYMENT_WEBHOOK_PASSWORD_MD5": "",

	"MODERATION_URL":     "",
	"MODERATION_API_KEY": "",
	"MODERATION_TIMEOUT": "10s",

	"WHATSAPP_ENABLED":    false,
	"WHATSAPP_STORE_PATH": "data/whatsapp.db",
	"WHATSAPP_LOG_LEVEL":  "WARN",

	"ADMIN_EMAIL":    "admin@persianconnect.com",
	"ADMIN_PASSWORD": "",
}

// Load reads configuration from environment variables, falling back to config.yaml in the
// working directory and then to defaults.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.AppEnv = strings.ToLower(strings.TrimSpace(c.AppEnv))
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.FeeCurrency = strings.ToUpper(strings.TrimSpace(c.FeeCurrency))
	c.AdminEmail = strings.TrimSpace(c.AdminEmail)
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production" || c.AppEnv == "prod"
}

// Validate checks that required settings are present and consistent.
func (c *Config) Validate() error {
	if c.HTTPListenAddr == "" {
		return errors.New("HTTP_LISTEN_ADDR is required")
	}
	switch c.StorageDriver {
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for sqlite storage")
		}
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for postgres storage")
		}
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for redis storage")
		}
	case "memory":
	default:
		return fmt.Errorf("STORAGE_DRIVER %q is not one of sqlite, postgres, redis, memory", c.StorageDriver)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT %q must be text or json", c.LogFormat)
	}
	if c.FeeAdPosting < 0 || c.FeeAdBoost < 0 {
		return errors.New("fees must not be negative")
	}
	if c.FeeCurrency == "" {
		return errors.New("FEE_CURRENCY is required")
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	if c.IsProduction() {
		if c.JWTSecret == devJWTSecret || len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be a unique value of at least 32 characters in production")
		}
		if c.StorageDriver == "memory" {
			return errors.New("memory storage is not allowed in production")
		}
	}
	if c.PaymentBaseURL != "" && (c.PaymentWebhookUsernameMD5 == "" || c.PaymentWebhookPasswordMD5 == "") {
		return errors.New("PAYMENT_WEBHOOK_USERNAME_MD5 and PAYMENT_WEBHOOK_PASSWORD_MD5 are required when payments are enabled")
	}
	if c.SweepInterval <= 0 {
		return errors.New("SWEEP_INTERVAL must be positive")
	}
	return nil
}
