// Package config loads service settings from the environment and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	alerts "thermo-cloud/internal/alerts/domain"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the full service configuration.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	Auth    AuthConfig    `yaml:"auth"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	Log     LogConfig     `yaml:"log"`

	LegacyLogDir string `yaml:"legacy_log_dir"`
}

// StorageConfig selects and locates the readings store.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	DatabaseURL string `yaml:"database_url"`
	Timezone    string `yaml:"timezone"`
}

// CacheConfig configures the query cache.
type CacheConfig struct {
	Backend   string        `yaml:"backend"`
	TTL       time.Duration `yaml:"ttl"`
	RedisAddr string        `yaml:"redis_addr"`
}

// MQTTConfig configures the optional MQTT ingestion adapter. Empty Broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
}

// AuthConfig configures query authentication and ingest signatures.
type AuthConfig struct {
	Mode             string `yaml:"mode"`
	JWTSecret        string `yaml:"jwt_secret"`
	BasicUser        string `yaml:"basic_user"`
	BasicPassword    string `yaml:"basic_password"`
	IngestHMACSecret string `yaml:"ingest_hmac_secret"`
	IngestMaxSkew    int    `yaml:"ingest_max_skew_seconds"`
}

// AlertsConfig configures threshold alerts.
type AlertsConfig struct {
	Rules      []alerts.Rule `yaml:"rules"`
	Cooldown   time.Duration `yaml:"cooldown"`
	WebhookURL string        `yaml:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Load reads the environment, then overlays CONFIG_FILE when set.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr: getenvDefault("HTTP_ADDR", ":8080"),
		Storage: StorageConfig{
			Driver:      getenvDefault("STORAGE_DRIVER", DriverSQLite),
			SQLitePath:  getenvDefault("SQLITE_PATH", "temperature_data.db"),
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Timezone:    getenvDefault("STORAGE_TIMEZONE", "Local"),
		},
		Cache: CacheConfig{
			Backend:   getenvDefault("CACHE_BACKEND", CacheMemory),
			TTL:       getenvDuration("CACHE_TTL", 60*time.Second),
			RedisAddr: os.Getenv("REDIS_ADDR"),
		},
		MQTT: MQTTConfig{
			Broker:   os.Getenv("MQTT_BROKER"),
			Topic:    getenvDefault("MQTT_TOPIC", "thermo/+/readings"),
			ClientID: getenvDefault("MQTT_CLIENT_ID", "thermo-cloud"),
		},
		Auth: AuthConfig{
			Mode:             getenvDefault("AUTH_MODE", "disabled"),
			JWTSecret:        os.Getenv("AUTH_JWT_SECRET"),
			BasicUser:        os.Getenv("AUTH_BASIC_USER"),
			BasicPassword:    os.Getenv("AUTH_BASIC_PASSWORD"),
			IngestHMACSecret: os.Getenv("INGEST_HMAC_SECRET"),
			IngestMaxSkew:    getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300),
		},
		Alerts: AlertsConfig{
			Cooldown:   getenvDuration("ALERT_COOLDOWN", 5*time.Minute),
			WebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
		},
		Log: LogConfig{
			Format: getenvDefault("LOG_FORMAT", "text"),
			Level:  getenvDefault("LOG_LEVEL", "info"),
		},
		LegacyLogDir: os.Getenv("LEGACY_LOG_DIR"),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if cfg.Alerts.Rules == nil {
		cfg.Alerts.Rules = alerts.DefaultRules()
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("config: sqlite driver requires SQLITE_PATH")
		}
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("config: postgres driver requires DATABASE_URL")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New("config: redis cache requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("config: unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return errors.New("config: cache ttl must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for i, rule := range c.Alerts.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("config: alert rule %d: %w", i, err)
		}
	}
	return nil
}

// Location resolves the storage time zone.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Storage.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config: storage timezone: %w", err)
	}
	return loc, nil
}

// IngestMaxSkew returns the accepted signature clock skew.
func (c Config) IngestMaxSkew() time.Duration {
	return time.Duration(c.Auth.IngestMaxSkew) * time.Second
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
