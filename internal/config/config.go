// Package config loads service settings from an optional YAML file and
// NAJEM_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/erazemk/najem/internal/model"
	"github.com/erazemk/najem/internal/rental"
)

// Config represents the service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Rental    RentalConfig    `yaml:"rental"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Init      InitConfig      `yaml:"init"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DatabaseConfig contains the SQLite file location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RentalConfig bounds rental durations, e.g. "5m" and "24h".
type RentalConfig struct {
	MinDuration time.Duration `yaml:"min_duration"`
	MaxDuration time.Duration `yaml:"max_duration"`
}

// JobsConfig holds cron specs (with a seconds field) for background jobs.
type JobsConfig struct {
	ExpirySchedule     string `yaml:"expiry_schedule"`
	TokenPurgeSchedule string `yaml:"token_purge_schedule"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // "debug", "info", "warn", "error"
	File  string `yaml:"file"`
}

// RateLimitConfig is the per-client token bucket for mutating lock calls.
// A zero RequestsPerSecond disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// InitConfig is only used when the database is created. When Owner is
// set, an account named OwnerUser is bound to it and receives the lock.
type InitConfig struct {
	AdminUser string `yaml:"admin_user"`
	Owner     string `yaml:"owner"`
	OwnerUser string `yaml:"owner_user"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Path: "najem.sqlite3"},
		Rental: RentalConfig{
			MinDuration: rental.DefaultMinDuration,
			MaxDuration: rental.DefaultMaxDuration,
		},
		Jobs: JobsConfig{
			ExpirySchedule:     "*/30 * * * * *",
			TokenPurgeSchedule: "0 0 * * * *",
		},
		Log:       LogConfig{Level: "info"},
		RateLimit: RateLimitConfig{RequestsPerSecond: 5, Burst: 10},
		Init:      InitConfig{AdminUser: "Admin", OwnerUser: "Owner"},
	}
}

// Load applies the YAML file at path (if any) and the environment on top
// of the defaults, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.overrideWithEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) overrideWithEnv() error {
	if val := os.Getenv("NAJEM_ADDR"); val != "" {
		c.Server.Addr = val
	}
	if val := os.Getenv("NAJEM_DB"); val != "" {
		c.Database.Path = val
	}
	if val := os.Getenv("NAJEM_MIN_DURATION"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("NAJEM_MIN_DURATION: %w", err)
		}
		c.Rental.MinDuration = d
	}
	if val := os.Getenv("NAJEM_MAX_DURATION"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("NAJEM_MAX_DURATION: %w", err)
		}
		c.Rental.MaxDuration = d
	}
	if val := os.Getenv("NAJEM_EXPIRY_SCHEDULE"); val != "" {
		c.Jobs.ExpirySchedule = val
	}
	if val := os.Getenv("NAJEM_TOKEN_PURGE_SCHEDULE"); val != "" {
		c.Jobs.TokenPurgeSchedule = val
	}
	if val := os.Getenv("NAJEM_LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("NAJEM_LOG_FILE"); val != "" {
		c.Log.File = val
	}
	if val := os.Getenv("NAJEM_RATE_LIMIT"); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("NAJEM_RATE_LIMIT: %w", err)
		}
		c.RateLimit.RequestsPerSecond = f
	}
	if val := os.Getenv("NAJEM_RATE_BURST"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("NAJEM_RATE_BURST: %w", err)
		}
		c.RateLimit.Burst = n
	}
	if val := os.Getenv("NAJEM_OWNER"); val != "" {
		c.Init.Owner = val
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("rental: %w", err)
	}
	if _, err := ParseSchedule(c.Jobs.ExpirySchedule); err != nil {
		return fmt.Errorf("jobs: expiry schedule: %w", err)
	}
	if _, err := ParseSchedule(c.Jobs.TokenPurgeSchedule); err != nil {
		return fmt.Errorf("jobs: token purge schedule: %w", err)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate limit burst must be at least 1")
	}
	owner, err := c.InitialOwner()
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if owner != "" {
		if err := model.ValidateUsername(c.Init.OwnerUser); err != nil {
			return fmt.Errorf("init: owner user: %w", err)
		}
		if c.Init.OwnerUser == c.Init.AdminUser {
			return fmt.Errorf("init: owner user must differ from admin user")
		}
	}
	return nil
}

// Policy returns the rental duration bounds.
func (c *Config) Policy() rental.Policy {
	return rental.Policy{MinDuration: c.Rental.MinDuration, MaxDuration: c.Rental.MaxDuration}
}

// LogLevel parses Log.Level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	return level, nil
}

// InitialOwner returns the configured first owner, or "" if unset.
func (c *Config) InitialOwner() (model.Address, error) {
	if c.Init.Owner == "" {
		return "", nil
	}
	return model.ParseAddress(c.Init.Owner)
}

// ParseSchedule parses a cron spec with a leading seconds field.
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return parser.Parse(spec)
}
