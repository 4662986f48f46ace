// Package config loads gemsync settings from a YAML file, the environment and
// command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// GEMSYNC_DATABASE_URL for database.url.
const EnvPrefix = "GEMSYNC"

// ErrNoDatabase is returned by RequireDatabase when database.url is unset.
var ErrNoDatabase = errors.New("database.url is not configured")

type Config struct {
	Registry RegistryConfig `mapstructure:"registry"`
	Database DatabaseConfig `mapstructure:"database"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
}

type RegistryConfig struct {
	URL        string        `mapstructure:"url"`
	UserAgent  string        `mapstructure:"userAgent"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"maxRetries"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type QueueConfig struct {
	Name string `mapstructure:"name"`
	Kind string `mapstructure:"kind"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// SetDefaults registers the default for every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("registry.url", "https://rubygems.org")
	v.SetDefault("registry.userAgent", "gemsync")
	v.SetDefault("registry.timeout", 30*time.Second)
	v.SetDefault("registry.maxRetries", 5)
	v.SetDefault("database.url", "")
	v.SetDefault("queue.name", "default")
	v.SetDefault("queue.kind", "project_update")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("server.address", ":8080")
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file at path into v and decodes the result.
// Values from the environment and bound flags take precedence over the file.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	if err := validateURL("registry.url", c.Registry.URL); err != nil {
		return err
	}
	if c.Registry.Timeout <= 0 {
		return fmt.Errorf("registry.timeout must be positive, got %s", c.Registry.Timeout)
	}
	if c.Registry.MaxRetries < 0 {
		return fmt.Errorf("registry.maxRetries must not be negative, got %d", c.Registry.MaxRetries)
	}
	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			return fmt.Errorf("database.url: %w", err)
		}
	}
	if c.Queue.Name == "" || c.Queue.Kind == "" {
		return errors.New("queue.name and queue.kind are required")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// RequireDatabase returns ErrNoDatabase unless database.url is set.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return ErrNoDatabase
	}
	return nil
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http or https URL, got %q", key, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host: %q", key, raw)
	}
	return nil
}
