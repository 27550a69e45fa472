package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEndpoint is the generation endpoint on the backend.
const DefaultEndpoint = "/api/generate-all"

// BackendURLEnv overrides backend.url when set.
const BackendURLEnv = "KARIGAR_BACKEND_URL"

// Config represents the karigar configuration
type Config struct {
	Title       string           `yaml:"title"`
	Description string           `yaml:"description"`
	Server      ServerConfig     `yaml:"server"`
	Backend     BackendConfig    `yaml:"backend"`
	Sessions    SessionConfig    `yaml:"sessions"`
	Form        FormConfig       `yaml:"form"`
	Features    FeaturesConfig   `yaml:"features"`
	RateLimit   *RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        int    `yaml:"port"`
	Host        string `yaml:"host"`
	Debug       bool   `yaml:"debug"`
	TemplateDir string `yaml:"template_dir,omitempty"` // Directory with an index.html.tmpl override
}

// BackendConfig describes the content generation backend
type BackendConfig struct {
	URL      string `yaml:"url"`                 // Base URL (env vars expanded), e.g. "http://localhost:5000"
	Endpoint string `yaml:"endpoint,omitempty"`  // Path of the generation endpoint. Default: /api/generate-all
	Timeout  string `yaml:"timeout,omitempty"`   // Request timeout (e.g., "90s"). Default: 2m, "0" disables
	MaxBytes int64  `yaml:"max_bytes,omitempty"` // Maximum response size. Default: 32MiB
}

// SessionConfig controls per-browser controller lifetime
type SessionConfig struct {
	TTL         string `yaml:"ttl,omitempty"`          // Idle time before a session is dropped. Default: 30m
	MaxSessions int    `yaml:"max_sessions,omitempty"` // LRU capacity. Default: 1000
}

// FormConfig holds form field options rendered into the page
type FormConfig struct {
	Tones []string `yaml:"tones,omitempty"`
}

// FeaturesConfig holds feature flags
type FeaturesConfig struct {
	HotReload bool `yaml:"hot_reload"`
	Metrics   bool `yaml:"metrics"` // Expose /metrics (default: true)
}

// RateLimitConfig holds rate limiting configuration for the action endpoints
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // Default: 2
	Burst             int     `yaml:"burst,omitempty"`               // Default: 5
}

// GetURL returns the backend base URL. The KARIGAR_BACKEND_URL environment
// variable wins over the configured value; env vars in the value are expanded.
func (c BackendConfig) GetURL() string {
	if v := os.Getenv(BackendURLEnv); v != "" {
		return strings.TrimRight(v, "/")
	}
	return strings.TrimRight(os.ExpandEnv(c.URL), "/")
}

// GetEndpoint returns the generation endpoint path (default: /api/generate-all)
func (c BackendConfig) GetEndpoint() string {
	if c.Endpoint == "" {
		return DefaultEndpoint
	}
	if !strings.HasPrefix(c.Endpoint, "/") {
		return "/" + c.Endpoint
	}
	return c.Endpoint
}

// GetTimeout returns the parsed request timeout (default: 2m, 0 = no timeout)
func (c BackendConfig) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return 2 * time.Minute
	}
	if c.Timeout == "0" {
		return 0
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d < 0 {
		return 2 * time.Minute
	}
	return d
}

// GetMaxBytes returns the response size limit (default: 32MiB)
func (c BackendConfig) GetMaxBytes() int64 {
	if c.MaxBytes <= 0 {
		return 32 << 20
	}
	return c.MaxBytes
}

// GetTTL returns the session idle TTL (default: 30m)
func (c SessionConfig) GetTTL() time.Duration {
	if c.TTL == "" {
		return 30 * time.Minute
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return 30 * time.Minute
	}
	return d
}

// GetMaxSessions returns the session capacity (default: 1000)
func (c SessionConfig) GetMaxSessions() int {
	if c.MaxSessions <= 0 {
		return 1000
	}
	return c.MaxSessions
}

// GetTones returns the tone options for the form select
func (c FormConfig) GetTones() []string {
	if len(c.Tones) == 0 {
		return []string{"Elegant", "Traditional", "Modern", "Festive", "Rustic"}
	}
	return c.Tones
}

// GetRPS returns the rate limit in requests per second (default: 2)
func (c *RateLimitConfig) GetRPS() float64 {
	if c == nil || c.RequestsPerSecond <= 0 {
		return 2
	}
	return c.RequestsPerSecond
}

// GetBurst returns the burst size (default: 5)
func (c *RateLimitConfig) GetBurst() int {
	if c == nil || c.Burst <= 0 {
		return 5
	}
	return c.Burst
}

// Validate checks that the configuration can serve requests.
func (c *Config) Validate() error {
	raw := c.Backend.GetURL()
	if raw == "" {
		return fmt.Errorf("backend.url is required (or set %s)", BackendURLEnv)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("backend.url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("backend.url %q: host is required", raw)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Backend.Timeout != "" && c.Backend.Timeout != "0" {
		if _, err := time.ParseDuration(c.Backend.Timeout); err != nil {
			return fmt.Errorf("backend.timeout %q: %w", c.Backend.Timeout, err)
		}
	}
	return nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Title:       "Karigar Canvas",
		Description: "Stories, captions, and product photos for artisans",
		Server: ServerConfig{
			Port:  8080,
			Host:  "localhost",
			Debug: false,
		},
		Backend: BackendConfig{
			URL:      "http://localhost:5000",
			Endpoint: DefaultEndpoint,
		},
		Features: FeaturesConfig{
			HotReload: false,
			Metrics:   true,
		},
	}
}

// Load loads configuration from a YAML file
// If the file doesn't exist, returns the default configuration
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// LoadFromDir looks for karigar.yaml (then karigar.yml) in the given directory.
// If none is found, returns the default configuration
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"karigar.yaml", "karigar.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return DefaultConfig(), nil
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
