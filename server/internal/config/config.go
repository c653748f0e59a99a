package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/omegalab/labtriage/pkg/types"
)

// Default values for the server configuration.
const (
	DefaultHTTPPort       = 8080
	DefaultDBPath         = "labtriage.db"
	DefaultStreamInterval = 5 * time.Second
	DefaultRecentLimit    = 15
	DefaultNotifyCooldown = 15 * time.Minute
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml. The `analyzer:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket hub listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// DBPath is the filesystem path of the SQLite result log (default labtriage.db).
	DBPath string `yaml:"db_path"`

	// Auth configures API key authentication on the submission endpoint.
	Auth AuthConfig `yaml:"auth"`

	// Stream controls the WebSocket dashboard feed.
	Stream StreamConfig `yaml:"stream"`

	// Notify holds critical-result notification settings.
	Notify NotifyConfig `yaml:"notify"`

	// Catalog is the reference catalog: one entry per test code. Thresholds
	// are configuration data, not code; the built-in catalog below is only a
	// starting point.
	Catalog []TestEntry `yaml:"catalog"`
}

// AuthConfig controls client authentication on the submission endpoint.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected
	// API key. Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// StreamConfig controls the WebSocket dashboard broadcast.
type StreamConfig struct {
	// Interval is how often the hub pushes the recent-results feed (default 5s).
	Interval time.Duration `yaml:"interval"`

	// RecentLimit is how many results each broadcast carries (default 15).
	RecentLimit int `yaml:"recent_limit"`
}

// NotifyConfig holds critical-result notification settings.
type NotifyConfig struct {
	// Cooldown suppresses repeat notifications for the same patient and test
	// for this duration. Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`

	// Webhooks is the list of delivery targets for PANIC notifications.
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// TestEntry is one reference catalog entry as written in config.yaml.
type TestEntry struct {
	// Code is the short test mnemonic, e.g. "GLU".
	Code string `yaml:"code"`

	// Unit is the unit label attached to results for this test.
	Unit string `yaml:"unit"`

	// Normal is the clinically normal (reference) interval, bounds inclusive.
	Normal types.Range `yaml:"normal"`

	// Critical is the panic interval; values outside it classify PANIC.
	// Omit for tests with no defined critical thresholds.
	Critical *types.Range `yaml:"critical"`
}

// Definitions converts the configured catalog entries to domain definitions.
func (s ServerConfig) Definitions() []types.TestDefinition {
	defs := make([]types.TestDefinition, 0, len(s.Catalog))
	for _, e := range s.Catalog {
		d := types.TestDefinition{
			Code:   e.Code,
			Unit:   e.Unit,
			Normal: e.Normal,
		}
		if e.Critical != nil {
			crit := *e.Critical
			d.Critical = &crit
		}
		defs = append(defs, d)
	}
	return defs
}

// Load reads and parses the config file at path, returning the server
// configuration. Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values, including the
// built-in reference catalog. A `catalog:` key in the config file replaces
// the built-in catalog entirely.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			DBPath:   DefaultDBPath,
			Stream: StreamConfig{
				Interval:    DefaultStreamInterval,
				RecentLimit: DefaultRecentLimit,
			},
			Notify: NotifyConfig{
				Cooldown: DefaultNotifyCooldown,
			},
			Catalog: DefaultCatalog(),
		},
	}
}

// DefaultCatalog returns the built-in reference catalog.
func DefaultCatalog() []TestEntry {
	return []TestEntry{
		{Code: "TSH", Unit: "uIU/ml", Normal: types.Range{Low: 0.27, High: 4.20}},
		{Code: "GLU", Unit: "mg/dl", Normal: types.Range{Low: 70.0, High: 99.0},
			Critical: &types.Range{Low: 40.0, High: 400.0}},
		{Code: "K", Unit: "mmol/l", Normal: types.Range{Low: 3.5, High: 5.1},
			Critical: &types.Range{Low: 2.5, High: 6.5}},
		{Code: "CHOL", Unit: "mg/dl", Normal: types.Range{Low: 0, High: 190}},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if s.DBPath == "" {
		return fmt.Errorf("server.db_path is required")
	}
	switch s.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", s.Auth.Mode)
	}
	if s.Stream.Interval <= 0 {
		return fmt.Errorf("server.stream.interval must be positive")
	}
	if s.Stream.RecentLimit <= 0 {
		return fmt.Errorf("server.stream.recent_limit must be positive")
	}
	if s.Notify.Cooldown < 0 {
		return fmt.Errorf("server.notify.cooldown must not be negative")
	}
	for i, wh := range s.Notify.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.notify.webhooks[%d]: unknown type %q", i, wh.Type)
		}
	}

	seen := make(map[string]bool, len(s.Catalog))
	for i, e := range s.Catalog {
		if e.Code == "" {
			return fmt.Errorf("server.catalog[%d]: code is required", i)
		}
		if seen[e.Code] {
			return fmt.Errorf("server.catalog[%d]: duplicate code %q", i, e.Code)
		}
		seen[e.Code] = true
		// A normal range is required per entry. Without one, REVIEW would be
		// unreachable and the entry would behave like an unknown code.
		if e.Normal.High <= e.Normal.Low {
			return fmt.Errorf("server.catalog[%d] %q: normal range requires high > low", i, e.Code)
		}
		if e.Critical != nil && e.Critical.High <= e.Critical.Low {
			return fmt.Errorf("server.catalog[%d] %q: critical range requires high > low", i, e.Code)
		}
	}
	return nil
}
