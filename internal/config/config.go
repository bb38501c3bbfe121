// Package config provides configuration for the booking assistant.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreNATS   = "nats"
	StoreSQLite = "sqlite"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string        `mapstructure:"PORT"`
	ServerReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	ServerWriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	Env                string        `mapstructure:"ENV"`

	// Booking backend
	BackendURL     string        `mapstructure:"BOOKING_BACKEND_URL"`
	BackendTimeout time.Duration `mapstructure:"BOOKING_BACKEND_TIMEOUT"`
	WelcomeText    string        `mapstructure:"WELCOME_TEXT"`

	// Session store
	StoreDriver   string        `mapstructure:"SESSION_STORE"`
	SessionTTL    time.Duration `mapstructure:"SESSION_TTL"`
	SQLitePath    string        `mapstructure:"SQLITE_PATH"`
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int           `mapstructure:"REDIS_DB"`

	// NATS settings
	NATSURL      string `mapstructure:"NATS_URL"`
	NATSCAFile   string `mapstructure:"NATS_CA_FILE"`
	NATSCertFile string `mapstructure:"NATS_CERT_FILE"`
	NATSKeyFile  string `mapstructure:"NATS_KEY_FILE"`
	NATSToken    string `mapstructure:"NATS_TOKEN"`
	NATSBucket   string `mapstructure:"NATS_KV_BUCKET"`
	NATSEvents   bool   `mapstructure:"NATS_EVENTS_ENABLED"`

	// JWT settings
	JWTSecret string `mapstructure:"JWT_SECRET"`

	// Rate limiting
	RateLimitRequests int           `mapstructure:"RATE_LIMIT_REQUESTS"`
	RateLimitWindow   time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`

	// Logging
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Tracing
	TracingEndpoint string `mapstructure:"TRACING_ENDPOINT"`
	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED"`
}

var defaults = map[string]any{
	"PORT":                    "8080",
	"SERVER_READ_TIMEOUT":     "30s",
	"SERVER_WRITE_TIMEOUT":    "60s",
	"ENV":                     "production",
	"BOOKING_BACKEND_URL":     "http://localhost:8000/api/chat/",
	"BOOKING_BACKEND_TIMEOUT": "30s",
	"WELCOME_TEXT":            "",
	"SESSION_STORE":           StoreMemory,
	"SESSION_TTL":             "168h",
	"SQLITE_PATH":             "booking-chat.db",
	"REDIS_ADDR":              "localhost:6379",
	"REDIS_PASSWORD":          "",
	"REDIS_DB":                0,
	"NATS_URL":                "nats://localhost:4222",
	"NATS_CA_FILE":            "",
	"NATS_CERT_FILE":          "",
	"NATS_KEY_FILE":           "",
	"NATS_TOKEN":              "",
	"NATS_KV_BUCKET":          "BOOKING_CHAT_SESSIONS",
	"NATS_EVENTS_ENABLED":     false,
	"JWT_SECRET":              "development-secret-change-in-production",
	"RATE_LIMIT_REQUESTS":     60,
	"RATE_LIMIT_WINDOW":       "1m",
	"LOG_LEVEL":               "info",
	"TRACING_ENDPOINT":        "localhost:4318",
	"TRACING_ENABLED":         false,
}

// Load reads configuration from defaults, an optional config.yaml in the
// working directory or ./config, and environment variables, in rising priority.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	return load(v)
}

// LoadFile reads configuration from the given file plus the environment.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the application cannot start without.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory, StoreRedis, StoreNATS, StoreSQLite:
	default:
		return fmt.Errorf("config: unknown SESSION_STORE %q", c.StoreDriver)
	}
	if !strings.HasPrefix(c.BackendURL, "http://") && !strings.HasPrefix(c.BackendURL, "https://") {
		return fmt.Errorf("config: BOOKING_BACKEND_URL must be an http(s) URL, got %q", c.BackendURL)
	}
	if c.BackendTimeout <= 0 {
		return errors.New("config: BOOKING_BACKEND_TIMEOUT must be positive")
	}
	return nil
}

// IsDevelopment reports whether the app runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
