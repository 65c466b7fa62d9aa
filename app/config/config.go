package config

import (
	"fmt"
	"strings"
	"time"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

const (
	DefaultGatewayBaseURL = "https://api.mercadopago.com"
	DefaultGatewayTimeout = 15 * time.Second
	DefaultCurrency       = "BRL"
	DefaultPort           = "8080"
	DefaultSessionTTL     = 90 * 24 * time.Hour
)

type Config struct {
	App      AppConfig
	Log      LogConfig
	Gateway  GatewayConfig
	Auth     AuthConfig
	DB       PostgresConfig
	Redis    RedisConfig
	Frontend FrontendConfig
}

type AppConfig struct {
	Env  string
	Port string
}

type LogConfig struct {
	Level  string
	Format string
}

// GatewayConfig holds the payment gateway credentials. An empty AccessToken
// leaves the checkout handler unconfigured.
type GatewayConfig struct {
	AccessToken string
	BaseURL     string
	Timeout     time.Duration
	Currency    string
}

type AuthConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	Disabled bool
}

type PostgresConfig struct {
	URL string
}

type RedisConfig struct {
	URL        string
	SessionTTL time.Duration
}

type FrontendConfig struct {
	URL string
}

// LoadConfig reads configuration from the environment (and .env when present).
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("PORT", DefaultPort)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MP_BASE_URL", DefaultGatewayBaseURL)
	v.SetDefault("MP_TIMEOUT", DefaultGatewayTimeout)
	v.SetDefault("CURRENCY_ID", DefaultCurrency)
	v.SetDefault("SESSION_TTL", DefaultSessionTTL)

	cfg := &Config{
		App: AppConfig{
			Env:  v.GetString("ENV"),
			Port: v.GetString("PORT"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Gateway: GatewayConfig{
			AccessToken: strings.TrimSpace(v.GetString("MP_ACCESS_TOKEN")),
			BaseURL:     strings.TrimRight(v.GetString("MP_BASE_URL"), "/"),
			Timeout:     v.GetDuration("MP_TIMEOUT"),
			Currency:    strings.ToUpper(v.GetString("CURRENCY_ID")),
		},
		Auth: AuthConfig{
			Issuer:   v.GetString("AUTH_ISSUER"),
			Audience: v.GetString("AUTH_AUDIENCE"),
			JWKSURL:  v.GetString("AUTH_JWKS_URL"),
			Disabled: v.GetBool("AUTH_DISABLED"),
		},
		DB: PostgresConfig{
			URL: v.GetString("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL:        v.GetString("REDIS_URL"),
			SessionTTL: v.GetDuration("SESSION_TTL"),
		},
		Frontend: FrontendConfig{
			URL: strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("MP_TIMEOUT must be positive, got %s", c.Gateway.Timeout)
	}
	if c.Redis.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL must not be negative, got %s", c.Redis.SessionTTL)
	}
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("MP_BASE_URL must not be empty")
	}
	return nil
}

// IsLocal reports whether the service runs in a developer environment.
func (c *Config) IsLocal() bool {
	switch strings.ToLower(c.App.Env) {
	case "", "local", "development", "dev":
		return true
	}
	return false
}
