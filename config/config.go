// Package config holds the crawl pipeline configuration.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds pipeline configuration. Environment variables prefixed with
// BOOKPRICER_ override the defaults before flags are applied.
type Config struct {
	SearchBaseURL string        `envconfig:"SEARCH_BASE_URL"`
	InputFile     string        `envconfig:"INPUT_FILE"`
	OutputFile    string        `envconfig:"OUTPUT_FILE"`
	ProcessedFile string        `envconfig:"PROCESSED_FILE"`
	OutputFormat  string        `envconfig:"OUTPUT_FORMAT"` // csv, json, or dual
	ImageDir      string        `envconfig:"IMAGE_DIR"`
	DatabaseDir   string        `envconfig:"DATABASE_DIR"`
	Timeout       time.Duration `envconfig:"TIMEOUT"`
	MaxRetries    int           `envconfig:"MAX_RETRIES"`
	RetryDelay    time.Duration `envconfig:"RETRY_DELAY"`
	Cooldown      time.Duration `envconfig:"COOLDOWN"`
	MetricsAddr   string        `envconfig:"METRICS_ADDR"`
	Verbose       bool          `envconfig:"VERBOSE"`
}

// DefaultConfig returns conservative defaults for the retail target.
func DefaultConfig() *Config {
	return &Config{
		SearchBaseURL: "http://search.dangdang.com",
		InputFile:     "input/books.txt",
		OutputFile:    "output/results.csv",
		ProcessedFile: "output/processed_results.txt",
		OutputFormat:  "csv",
		ImageDir:      "output/images",
		DatabaseDir:   "output",
		Timeout:       10 * time.Second,
		MaxRetries:    3,
		RetryDelay:    5 * time.Second,
		Cooldown:      2 * time.Second,
		MetricsAddr:   "",
		Verbose:       false,
	}
}

// Load returns the defaults overlaid with BOOKPRICER_* environment values.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	if err := envconfig.Process("bookpricer", cfg); err != nil {
		return nil, fmt.Errorf("read environment config: %w", err)
	}
	return cfg, nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.SearchBaseURL == "" {
		return fmt.Errorf("search base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.SearchBaseURL)
	if err != nil {
		return fmt.Errorf("invalid search base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("search base URL must include a host")
	}

	if c.InputFile == "" {
		return fmt.Errorf("input file cannot be empty")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.ProcessedFile == "" {
		return fmt.Errorf("processed file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.ImageDir == "" {
		return fmt.Errorf("image directory cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be positive")
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown cannot be negative")
	}

	return nil
}
