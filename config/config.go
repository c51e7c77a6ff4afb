package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "700ms" or "1s".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// BreakerConfig tunes the circuit breaker guarding the server API.
type BreakerConfig struct {
	MaxFailures uint32   `yaml:"max_failures,omitempty"`
	Timeout     Duration `yaml:"timeout,omitempty"`
}

// ServerConfig describes how to reach the stream processing server.
type ServerConfig struct {
	URL       string        `yaml:"url"`
	APIPrefix string        `yaml:"api_prefix,omitempty"`
	Timeout   Duration      `yaml:"timeout,omitempty"`
	RateLimit float64       `yaml:"rate_limit,omitempty"`
	Burst     int           `yaml:"burst,omitempty"`
	Breaker   BreakerConfig `yaml:"breaker,omitempty"`
}

// PollConfig sets the refresh intervals of the polled tabs.
type PollConfig struct {
	StreamProcs Duration `yaml:"stream_procs,omitempty"`
	System      Duration `yaml:"system,omitempty"`
}

// LiveViewConfig configures the embedded browser surface.
type LiveViewConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen,omitempty"`
}

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels"`
}

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki"`

	// Components overrides Level for single components such as remote or
	// poller.
	Components map[string]string `yaml:"components,omitempty"`
}

// TelemetryConfig configures runtime telemetry exporters.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider,omitempty"`
}

// Config is the root configuration structure of the console.
type Config struct {
	Name      string            `yaml:"name,omitempty"`
	Server    ServerConfig      `yaml:"server"`
	Poll      PollConfig        `yaml:"poll,omitempty"`
	LiveView  LiveViewConfig    `yaml:"live_view,omitempty"`
	Labels    map[string]string `yaml:"labels,omitempty"`
	Logging   LoggingConfig     `yaml:"logging"`
	Telemetry TelemetryConfig   `yaml:"telemetry"`
	Includes  []string          `yaml:"includes,omitempty"`
	HotReload bool              `yaml:"hot_reload,omitempty"`

	// Sources lists the absolute paths of every file that contributed to
	// the configuration, the root file first.
	Sources []string `yaml:"-"`
}

const (
	defaultAPIPrefix          = "/api/1.0"
	defaultRequestTimeout     = 5 * time.Second
	defaultRateLimit          = 20.0
	defaultBurst              = 10
	defaultBreakerMaxFailures = 5
	defaultBreakerTimeout     = 10 * time.Second
	defaultStreamProcsPoll    = 700 * time.Millisecond
	defaultSystemPoll         = time.Second
	defaultLiveViewListen     = "127.0.0.1:8080"
)

// Load reads, validates and decodes the configuration file from disk
// together with all files it includes.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg := &Config{}
	if err := loadFile(abs, cfg, make(map[string]struct{})); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, dst *Config, visited map[string]struct{}) error {
	if _, ok := visited[path]; ok {
		return fmt.Errorf("config include cycle at %s", path)
	}
	visited[path] = struct{}{}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := validateDocument(path, data); err != nil {
		return err
	}
	var current Config
	if err := yaml.Unmarshal(data, &current); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	mergeConfig(dst, &current)
	dst.Sources = append(dst.Sources, path)

	baseDir := filepath.Dir(path)
	for _, include := range current.Includes {
		include = strings.TrimSpace(include)
		if include == "" {
			continue
		}
		if !filepath.IsAbs(include) {
			include = filepath.Join(baseDir, include)
		}
		if err := loadFile(filepath.Clean(include), dst, visited); err != nil {
			return err
		}
	}
	return nil
}

// mergeConfig overlays the non-zero settings of src onto dst. Label
// expressions and component log levels are merged key by key.
func mergeConfig(dst, src *Config) {
	if dst == nil || src == nil {
		return
	}
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Server.URL != "" {
		dst.Server.URL = src.Server.URL
	}
	if src.Server.APIPrefix != "" {
		dst.Server.APIPrefix = src.Server.APIPrefix
	}
	if src.Server.Timeout.Duration != 0 {
		dst.Server.Timeout = src.Server.Timeout
	}
	if src.Server.RateLimit != 0 {
		dst.Server.RateLimit = src.Server.RateLimit
	}
	if src.Server.Burst != 0 {
		dst.Server.Burst = src.Server.Burst
	}
	if src.Server.Breaker != (BreakerConfig{}) {
		dst.Server.Breaker = src.Server.Breaker
	}
	if src.Poll.StreamProcs.Duration != 0 {
		dst.Poll.StreamProcs = src.Poll.StreamProcs
	}
	if src.Poll.System.Duration != 0 {
		dst.Poll.System = src.Poll.System
	}
	if src.LiveView.Enabled || src.LiveView.Listen != "" {
		dst.LiveView = src.LiveView
	}
	if len(src.Labels) > 0 {
		if dst.Labels == nil {
			dst.Labels = make(map[string]string, len(src.Labels))
		}
		for kind, expression := range src.Labels {
			dst.Labels[kind] = expression
		}
	}
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if src.Logging.Format != "" {
		dst.Logging.Format = src.Logging.Format
	}
	if len(src.Logging.Components) > 0 {
		if dst.Logging.Components == nil {
			dst.Logging.Components = make(map[string]string, len(src.Logging.Components))
		}
		for name, level := range src.Logging.Components {
			dst.Logging.Components[name] = level
		}
	}
	if src.Logging.Loki.Enabled || src.Logging.Loki.URL != "" || len(src.Logging.Loki.Labels) > 0 {
		dst.Logging.Loki = src.Logging.Loki
	}
	if src.Telemetry.Enabled || src.Telemetry.Provider != "" {
		dst.Telemetry = src.Telemetry
	}
	if src.HotReload {
		dst.HotReload = true
	}
	dst.Includes = append(dst.Includes, src.Includes...)
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Server.URL) == "" {
		return errors.New("server.url is required")
	}
	parsed, err := url.Parse(c.Server.URL)
	if err != nil {
		return fmt.Errorf("server.url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("server.url: unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("server.url: host is required")
	}
	if c.Server.RateLimit < 0 {
		return errors.New("server.rate_limit must not be negative")
	}
	return nil
}

// BaseURL returns the server URL without trailing slash.
func (c *Config) BaseURL() string {
	if c == nil {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(c.Server.URL), "/")
}

// APIPrefix returns the path prefix of every API call.
func (c *Config) APIPrefix() string {
	if c == nil || strings.TrimSpace(c.Server.APIPrefix) == "" {
		return defaultAPIPrefix
	}
	return "/" + strings.Trim(strings.TrimSpace(c.Server.APIPrefix), "/")
}

// RequestTimeout returns the per request timeout.
func (c *Config) RequestTimeout() time.Duration {
	if c == nil || c.Server.Timeout.Duration <= 0 {
		return defaultRequestTimeout
	}
	return c.Server.Timeout.Duration
}

// RateLimit returns the sustained request rate and burst towards the server.
func (c *Config) RateLimit() (float64, int) {
	limit, burst := defaultRateLimit, defaultBurst
	if c != nil && c.Server.RateLimit > 0 {
		limit = c.Server.RateLimit
	}
	if c != nil && c.Server.Burst > 0 {
		burst = c.Server.Burst
	}
	return limit, burst
}

// BreakerMaxFailures returns the consecutive failures that open the breaker.
func (c *Config) BreakerMaxFailures() uint32 {
	if c == nil || c.Server.Breaker.MaxFailures == 0 {
		return defaultBreakerMaxFailures
	}
	return c.Server.Breaker.MaxFailures
}

// BreakerTimeout returns how long an open breaker rejects requests.
func (c *Config) BreakerTimeout() time.Duration {
	if c == nil || c.Server.Breaker.Timeout.Duration <= 0 {
		return defaultBreakerTimeout
	}
	return c.Server.Breaker.Timeout.Duration
}

// StreamProcsInterval returns the refresh interval of the demultiplexer tab.
func (c *Config) StreamProcsInterval() time.Duration {
	if c == nil || c.Poll.StreamProcs.Duration <= 0 {
		return defaultStreamProcsPoll
	}
	return c.Poll.StreamProcs.Duration
}

// SystemInterval returns the refresh interval of the system tab.
func (c *Config) SystemInterval() time.Duration {
	if c == nil || c.Poll.System.Duration <= 0 {
		return defaultSystemPoll
	}
	return c.Poll.System.Duration
}

// LiveViewListen returns the live view listen address.
func (c *Config) LiveViewListen() string {
	if c == nil || strings.TrimSpace(c.LiveView.Listen) == "" {
		return defaultLiveViewListen
	}
	return strings.TrimSpace(c.LiveView.Listen)
}
