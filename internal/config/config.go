// Package config loads and validates the application configuration from a
// YAML file, with a handful of environment overrides for deploy-time knobs.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"busmon.openmbta.org/internal/appconf"
)

type FeedConfig struct {
	BaseURL        string `yaml:"base_url" validate:"required,url"`
	Agency         string `yaml:"agency" validate:"required"`
	TimeoutSeconds int    `yaml:"timeout_seconds" validate:"required,min=1,max=120"`
}

type PollConfig struct {
	IntervalSeconds int      `yaml:"interval_seconds" validate:"required,min=1"`
	Routes          []string `yaml:"routes" validate:"required,min=1,dive,required"`
}

type TopologyConfig struct {
	// Backend selects where daily route topologies are cached.
	Backend string `yaml:"backend" validate:"required,oneof=file sqlite"`
	Dir     string `yaml:"dir" validate:"required_if=Backend file"`
	DBPath  string `yaml:"db_path" validate:"required_if=Backend sqlite"`
}

type TripLogConfig struct {
	Enabled bool   `yaml:"enabled"`
	DataDir string `yaml:"data_dir" validate:"required_if=Enabled true"`
}

type ServerConfig struct {
	Port int `yaml:"port" validate:"required,min=1,max=65535"`
}

type Config struct {
	Env      appconf.Environment `yaml:"-"`
	EnvName  string              `yaml:"environment" validate:"required,oneof=test development production"`
	Feed     FeedConfig          `yaml:"feed"`
	Poll     PollConfig          `yaml:"poll"`
	Topology TopologyConfig      `yaml:"topology"`
	TripLog  TripLogConfig       `yaml:"trip_log"`
	Server   ServerConfig        `yaml:"server"`
	// NATSURL enables the publisher when set. Empty means no publishing.
	NATSURL string `yaml:"nats_url" validate:"omitempty,url"`
}

// Load reads the YAML file at path, applies environment overrides, and
// validates the result. A .env file beside the process, if present, is folded
// into the environment first.
func Load(path string) (*Config, error) {
	// Missing .env is the normal case outside development.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}

	cfg.Env = appconf.EnvFromString(cfg.EnvName)
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BUSMON_ENV"); v != "" {
		cfg.EnvName = v
	}
	if v := os.Getenv("BUSMON_FEED_URL"); v != "" {
		cfg.Feed.BaseURL = v
	}
	if v := os.Getenv("BUSMON_AGENCY"); v != "" {
		cfg.Feed.Agency = v
	}
	if v := os.Getenv("BUSMON_NATS_URL"); v != "" {
		cfg.NATSURL = v
	}
	if v := os.Getenv("BUSMON_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}
