// Package config loads the application configuration from a YAML file with
// environment variable overrides. A missing config file yields the defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/workmesh/workledger/pkg/logger"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DatabaseConfig selects the persistence backend. An empty URL runs the
// in-memory store.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	HistoryLimit int    `yaml:"history_limit"`
}

// RedisConfig enables the optional health score cache. An empty address
// disables it.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig controls token validation.
type AuthConfig struct {
	Secret string `yaml:"secret"`
}

// EscrowConfig tunes fee policy and background reconciliation.
type EscrowConfig struct {
	PlatformFeeBps    int64  `yaml:"platform_fee_bps"`
	ProcessingFee     int64  `yaml:"processing_fee"`
	MaxAmount         int64  `yaml:"max_amount"`
	ReconcileSchedule string `yaml:"reconcile_schedule"`
}

// ProjectsConfig tunes the background project watcher.
type ProjectsConfig struct {
	WatchSchedule string `yaml:"watch_schedule"`
}

// RateLimitConfig throttles requests per actor.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig         `yaml:"server"`
	Database  DatabaseConfig       `yaml:"database"`
	Redis     RedisConfig          `yaml:"redis"`
	Auth      AuthConfig           `yaml:"auth"`
	Escrow    EscrowConfig         `yaml:"escrow"`
	Projects  ProjectsConfig       `yaml:"projects"`
	RateLimit RateLimitConfig      `yaml:"rate_limit"`
	Logging   logger.LoggingConfig `yaml:"logging"`
}

// Default returns the configuration used when nothing is provided.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 50, Burst: 100},
		Logging:   logger.LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads the configuration file at path, then applies environment
// overrides. A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	// Populate the environment from .env when present.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Escrow.PlatformFeeBps < 0 || c.Escrow.PlatformFeeBps >= 10000 {
		return fmt.Errorf("escrow.platform_fee_bps %d out of range", c.Escrow.PlatformFeeBps)
	}
	if c.Database.HistoryLimit < 0 {
		return fmt.Errorf("database.history_limit must not be negative")
	}
	return nil
}

// Addr is the listener address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("WORKLEDGER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("WORKLEDGER_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("WORKLEDGER_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("WORKLEDGER_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("WORKLEDGER_AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("WORKLEDGER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
