// Package config loads proftimers settings from file, environment and flags.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/vanilla/proftimers/pkg/logging"
	"github.com/vanilla/proftimers/pkg/store"
	"github.com/vanilla/proftimers/pkg/tracing"
)

// EnvPrefix is prepended to every environment override, e.g. PROFTIMERS_LOG_LEVEL.
const EnvPrefix = "PROFTIMERS"

var (
	ErrInvalidLimit = errors.New("warning limit must be positive")
	ErrInvalidRate  = errors.New("warning rate must not be negative")
)

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
	Dir   string `mapstructure:"dir" yaml:"dir"` // empty logs to stdout only
}

type ServeConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	SkipPaths       []string      `mapstructure:"skip_paths" yaml:"skip_paths"`
	APIKeyHash      string        `mapstructure:"api_key_hash" yaml:"api_key_hash"` // bcrypt; empty disables auth
}

type StoreConfig struct {
	Type string `mapstructure:"type" yaml:"type"`
	DSN  string `mapstructure:"dsn" yaml:"dsn"`
	Path string `mapstructure:"path" yaml:"path"`
}

type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
	Service     string  `mapstructure:"service" yaml:"service"`
	SampleRatio float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
}

// Limit is the warning threshold of one timer.
// Limits are a list rather than a map because viper lowercases map keys
// and timer names are case sensitive.
type Limit struct {
	Timer string  `mapstructure:"timer" yaml:"timer"`
	Ms    float64 `mapstructure:"ms" yaml:"ms"`
}

// WarningsConfig throttles over-limit warnings per timer name.
// Rate is warnings per second; zero disables throttling.
type WarningsConfig struct {
	Rate   float64 `mapstructure:"rate" yaml:"rate"`
	Burst  int     `mapstructure:"burst" yaml:"burst"`
	Limits []Limit `mapstructure:"limits" yaml:"limits"`
}

type TimersConfig struct {
	Custom []string `mapstructure:"custom" yaml:"custom"`
}

// Config is the complete proftimers configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Serve    ServeConfig    `mapstructure:"serve" yaml:"serve"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Tracing  TracingConfig  `mapstructure:"tracing" yaml:"tracing"`
	Warnings WarningsConfig `mapstructure:"warnings" yaml:"warnings"`
	Timers   TimersConfig   `mapstructure:"timers" yaml:"timers"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.dir", "")

	v.SetDefault("serve.addr", ":8080")
	v.SetDefault("serve.shutdown_timeout", 10*time.Second)
	v.SetDefault("serve.skip_paths", []string{"/metrics", "/health"})
	v.SetDefault("serve.api_key_hash", "")

	v.SetDefault("store.type", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.path", "proftimers.db")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service", "proftimers")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("warnings.rate", 1.0)
	v.SetDefault("warnings.burst", 5)
	v.SetDefault("warnings.limits", []Limit{})

	v.SetDefault("timers.custom", []string{})
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values viper cannot check for us.
func (c *Config) Validate() error {
	if c.Warnings.Rate < 0 {
		return ErrInvalidRate
	}
	for _, l := range c.Warnings.Limits {
		if l.Timer == "" || l.Ms <= 0 {
			return fmt.Errorf("%w: %q=%v", ErrInvalidLimit, l.Timer, l.Ms)
		}
	}
	if err := store.ValidateType(c.Store.Type); err != nil {
		return fmt.Errorf("store.type %q: %w", c.Store.Type, err)
	}
	return nil
}

// WarningLimits converts the configured limits for timers.WithWarningLimits.
func (c *Config) WarningLimits() map[string]time.Duration {
	limits := make(map[string]time.Duration, len(c.Warnings.Limits))
	for _, l := range c.Warnings.Limits {
		limits[l.Timer] = time.Duration(l.Ms * float64(time.Millisecond))
	}
	return limits
}

// NewLogger builds the logger described by the log section.
func (c LogConfig) NewLogger(component string) (*logging.Logger, error) {
	level := logging.ParseLevel(c.Level)
	if c.Dir == "" {
		return logging.NewLogger(level, c.JSON), nil
	}
	return logging.NewFileLogger(c.Dir, component, level, c.JSON)
}

// ToStore returns the store.Config for the store section.
func (c StoreConfig) ToStore() store.Config {
	return store.Config{
		Type:            c.Type,
		DSN:             c.DSN,
		Path:            c.Path,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// ToTracing returns the tracing.Config for the tracing section.
func (c TracingConfig) ToTracing(version string) tracing.Config {
	return tracing.Config{
		ServiceName:    c.Service,
		ServiceVersion: version,
		Environment:    "production",
		OTLPEndpoint:   c.Endpoint,
		Insecure:       c.Insecure,
		Enabled:        c.Enabled,
		SampleRatio:    c.SampleRatio,
	}
}
