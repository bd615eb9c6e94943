package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BaseDir string       `yaml:"base_dir"`
	Server  ServerConfig `yaml:"server"`
	Store   StoreConfig  `yaml:"store"`
	Import  ImportConfig `yaml:"import,omitempty"`
}

type ServerConfig struct {
	URL                   string `yaml:"url"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds,omitempty"`
	RetryCount            int    `yaml:"retry_count,omitempty"`
}

type StoreConfig struct {
	Provider string `yaml:"provider,omitempty"`
	Bucket   string `yaml:"bucket"`
	// BaseURL is the public HTTPS prefix the server fetches manifest
	// URLs from. Defaults to the provider's canonical URL form.
	BaseURL string   `yaml:"base_url,omitempty"`
	Public  *bool    `yaml:"public,omitempty"`
	S3      S3Config `yaml:"s3,omitempty"`
}

type S3Config struct {
	Region   string `yaml:"region"`
	Prefix   string `yaml:"prefix,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Retry    struct {
		MaxAttempts int `yaml:"max_attempts,omitempty"`
	} `yaml:"retry,omitempty"`
}

type ImportConfig struct {
	Concurrency int  `yaml:"concurrency,omitempty"`
	MaxAttempts int  `yaml:"max_attempts,omitempty"`
	Poll        Poll `yaml:"poll,omitempty"`
}

type Poll struct {
	InitialIntervalSeconds int `yaml:"initial_interval_seconds,omitempty"`
	MaxIntervalSeconds     int `yaml:"max_interval_seconds,omitempty"`
	MaxDurationMinutes     int `yaml:"max_duration_minutes,omitempty"`
	MaxErrors              int `yaml:"max_errors,omitempty"`
}

func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("base_dir is required")
	}
	if c.Server.URL == "" {
		return fmt.Errorf("server.url is required")
	}
	if !strings.HasPrefix(c.Server.URL, "http://") && !strings.HasPrefix(c.Server.URL, "https://") {
		return fmt.Errorf("server.url must be an http(s) URL")
	}
	if c.Store.Bucket == "" {
		return fmt.Errorf("store.bucket is required")
	}
	switch c.StoreProvider() {
	case "gcs":
	case "s3":
		if c.Store.S3.Region == "" {
			return fmt.Errorf("store.s3.region is required when provider is s3")
		}
	default:
		return fmt.Errorf("store.provider must be gcs or s3, got %q", c.Store.Provider)
	}
	if c.Import.Concurrency < 0 || c.Import.Concurrency > 8 {
		return fmt.Errorf("import.concurrency must be between 1 and 8")
	}
	return nil
}

func (c *Config) StoreProvider() string {
	if c.Store.Provider == "" {
		return "gcs"
	}
	return c.Store.Provider
}

// StorePublic reports whether the bucket is read without credentials.
// The upstream dataset bucket is world-readable, so this defaults on.
func (c *Config) StorePublic() bool {
	if c.Store.Public == nil {
		return true
	}
	return *c.Store.Public
}

func (c *Config) Concurrency() int {
	if c.Import.Concurrency > 0 {
		return c.Import.Concurrency
	}
	return 2
}

func (c *Config) MaxAttempts() int {
	if c.Import.MaxAttempts > 0 {
		return c.Import.MaxAttempts
	}
	return 3
}

func (c *Config) RequestTimeout() time.Duration {
	if c.Server.RequestTimeoutSeconds > 0 {
		return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}

func (c *Config) ServerRetryCount() int {
	if c.Server.RetryCount > 0 {
		return c.Server.RetryCount
	}
	return 5
}

func (c *Config) PollInitialInterval() time.Duration {
	if c.Import.Poll.InitialIntervalSeconds > 0 {
		return time.Duration(c.Import.Poll.InitialIntervalSeconds) * time.Second
	}
	return 10 * time.Second
}

func (c *Config) PollMaxInterval() time.Duration {
	if c.Import.Poll.MaxIntervalSeconds > 0 {
		return time.Duration(c.Import.Poll.MaxIntervalSeconds) * time.Second
	}
	return time.Minute
}

// PollMaxDuration bounds how long one job is polled. Bulk imports of
// multi-gigabyte datasets run for tens of minutes, so the default is
// generous but finite.
func (c *Config) PollMaxDuration() time.Duration {
	if c.Import.Poll.MaxDurationMinutes > 0 {
		return time.Duration(c.Import.Poll.MaxDurationMinutes) * time.Minute
	}
	return 45 * time.Minute
}

func (c *Config) PollMaxErrors() int {
	if c.Import.Poll.MaxErrors > 0 {
		return c.Import.Poll.MaxErrors
	}
	return 5
}

func (c *Config) S3RetryAttempts() int {
	if c.Store.S3.Retry.MaxAttempts > 0 {
		return c.Store.S3.Retry.MaxAttempts
	}
	return 3
}
