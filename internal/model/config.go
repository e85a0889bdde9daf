package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the complete courtcrawl configuration.
// Defaults come from DefaultConfig; viper overlays the config file and env.
type Config struct {
	Site         SiteConfig         `yaml:"site" mapstructure:"site"`
	Discovery    DiscoveryConfig    `yaml:"discovery" mapstructure:"discovery"`
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// SiteConfig describes the court search portal.
type SiteConfig struct {
	BaseURL       string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	SearchPath    string `yaml:"search_path" mapstructure:"search_path" validate:"required,startswith=/"`
	FormField     string `yaml:"form_field" mapstructure:"form_field" validate:"required"`
	ExistsMarker  string `yaml:"exists_marker" mapstructure:"exists_marker" validate:"required"` // Body substring present when a case number resolves
	RespectRobots bool   `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// DiscoveryConfig describes the case number layout searched by bisection.
type DiscoveryConfig struct {
	Chained     []string `yaml:"chained" mapstructure:"chained" validate:"required,min=1,unique,dive,required"`
	Independent string   `yaml:"independent" mapstructure:"independent"`
	FirstSerial int      `yaml:"first_serial" mapstructure:"first_serial" validate:"gte=1"`
	Ceiling     int      `yaml:"ceiling" mapstructure:"ceiling" validate:"gtefield=FirstSerial"`
}

// HTTPConfig configures the HTTP client.
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent" validate:"required"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"gt=0"`
	MaxRetries   int           `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=1,lte=10"`
	InsecureTLS  bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	HTTPProxy    string        `yaml:"http_proxy" mapstructure:"http_proxy" validate:"omitempty,url"`
	HTTPSProxy   string        `yaml:"https_proxy" mapstructure:"https_proxy" validate:"omitempty,url"`
	NoProxy      string        `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// RateLimitingConfig throttles requests to the portal.
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gt=0"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size" validate:"gte=1"`
}

// ConcurrencyConfig sizes the lookup worker pool.
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers" validate:"gte=1,lte=64"`
}

// CacheConfig configures the case page cache. Existence checks are never cached.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir" validate:"required_if=Enabled true"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// OutputConfig controls what the CLI writes.
type OutputConfig struct {
	Verbose bool   `yaml:"verbose" mapstructure:"verbose"`
	Path    string `yaml:"path" mapstructure:"path"` // Empty means stdout
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json console"`
}

// DefaultConfig returns the built-in defaults for the Davidson County portal.
func DefaultConfig() *Config {
	cacheDir := filepath.Join(os.TempDir(), "courtcrawl-cache")
	if home, err := os.UserHomeDir(); err == nil {
		cacheDir = filepath.Join(home, ".courtcrawl", "cache")
	}

	return &Config{
		Site: SiteConfig{
			BaseURL:       "https://sci.ccc.nashville.gov",
			SearchPath:    "/Search/SearchWarrant",
			FormField:     "warrantNumber",
			ExistsMarker:  "/Search/CaseSearchDetails",
			RespectRobots: true,
		},
		Discovery: DiscoveryConfig{
			Chained:     []string{"A", "B", "C", "D"},
			Independent: "I",
			FirstSerial: 1,
			Ceiling:     9999,
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "courtcrawl/0.1 (+https://github.com/ppiankov/courtcrawl)",
			MaxBodyBytes: 2_000_000,
			MaxRetries:   3,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 4,
			BurstSize:         4,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       cacheDir,
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// SearchURL returns the absolute URL of the warrant search endpoint.
func (c *Config) SearchURL() string {
	return strings.TrimRight(c.Site.BaseURL, "/") + c.Site.SearchPath
}

// Validate checks the configuration and reports every invalid field.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", e.Namespace(), e.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}

	for _, cat := range c.Discovery.Chained {
		if cat == c.Discovery.Independent {
			return fmt.Errorf("invalid config: category %q is both chained and independent", cat)
		}
	}
	return nil
}
