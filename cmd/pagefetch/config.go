package main

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Sternrassler/go-paginator/pkg/pagination"
	"gopkg.in/yaml.v3"
)

// serviceConfig is the runtime configuration of pagefetch.
// Values come from an optional YAML file (CONFIG_FILE) and are overridden
// by environment variables.
type serviceConfig struct {
	Port           string        `yaml:"port"`
	UpstreamURL    string        `yaml:"upstream_url"`
	UserAgent      string        `yaml:"user_agent"`
	RedisURL       string        `yaml:"redis_url"`
	LogLevel       string        `yaml:"log_level"`
	LogPretty      bool          `yaml:"log_pretty"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	PageTimeout    time.Duration `yaml:"page_timeout"`
	Retry          retryConfig   `yaml:"retry"`
}

type retryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	InitialBackoff    time.Duration `yaml:"initial_backoff"`
	MaxBackoff        time.Duration `yaml:"max_backoff"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

func defaultServiceConfig() serviceConfig {
	batch := pagination.DefaultConfig()
	return serviceConfig{
		Port:           "8080",
		UpstreamURL:    "http://localhost:9000",
		UserAgent:      "go-paginator/0.1.0",
		LogLevel:       "info",
		MaxConcurrency: batch.MaxConcurrency,
		PageTimeout:    batch.Timeout,
		Retry: retryConfig{
			MaxAttempts:       batch.Retry.MaxAttempts,
			InitialBackoff:    batch.Retry.InitialBackoff,
			MaxBackoff:        batch.Retry.MaxBackoff,
			BackoffMultiplier: batch.Retry.BackoffMultiplier,
		},
	}
}

// parseConfigYAML decodes data over the defaults.
func parseConfigYAML(data []byte) (serviceConfig, error) {
	cfg := defaultServiceConfig()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return serviceConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return serviceConfig{}, err
	}
	return cfg, nil
}

// loadConfig reads CONFIG_FILE if set, then applies environment overrides.
func loadConfig() (serviceConfig, error) {
	cfg := defaultServiceConfig()
	if path := getEnv("CONFIG_FILE", ""); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return serviceConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if cfg, err = parseConfigYAML(data); err != nil {
			return serviceConfig{}, fmt.Errorf("config %s: %w", path, err)
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.UpstreamURL = getEnv("UPSTREAM_URL", cfg.UpstreamURL)
	cfg.UserAgent = getEnv("USER_AGENT", cfg.UserAgent)
	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	if v := getEnv("LOG_PRETTY", ""); v != "" {
		cfg.LogPretty, _ = strconv.ParseBool(v)
	}
	cfg.MaxConcurrency = getEnvInt("MAX_CONCURRENCY", cfg.MaxConcurrency)

	return cfg, cfg.validate()
}

func (c serviceConfig) validate() error {
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be positive, got %d", c.MaxConcurrency)
	}
	if c.PageTimeout < 0 {
		return fmt.Errorf("page_timeout must not be negative")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must not be negative")
	}
	return nil
}

// batchConfig converts the service settings into a batch fetcher config.
func (c serviceConfig) batchConfig() pagination.Config {
	return pagination.Config{
		MaxConcurrency: c.MaxConcurrency,
		Timeout:        c.PageTimeout,
		Retry: pagination.RetryConfig{
			MaxAttempts:       c.Retry.MaxAttempts,
			InitialBackoff:    c.Retry.InitialBackoff,
			MaxBackoff:        c.Retry.MaxBackoff,
			BackoffMultiplier: c.Retry.BackoffMultiplier,
		},
	}
}
