package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultInterval     = 4 * time.Second
	DefaultInitialDelay = 3 * time.Second
)

// DefaultPatients is the built-in patient identifier pool.
var DefaultPatients = []string{
	"PAT-1001", "PAT-1002", "PAT-1003", "PAT-1004", "PAT-1005",
}

// DefaultTests returns the built-in set of simulated tests with their
// emission value ranges. The ranges deliberately exceed the server's normal
// ranges so that REVIEW and PANIC classifications occur.
func DefaultTests() []TestRange {
	return []TestRange{
		{Code: "GLU", Min: 30.0, Max: 450.0},
		{Code: "TSH", Min: 0.1, Max: 7.0},
		{Code: "K", Min: 0.1, Max: 7.0},
	}
}

// Config is the analyzer-side configuration parsed from the `analyzer:`
// section of config.yaml. The `server:` key in the same file is ignored.
type Config struct {
	Analyzer AnalyzerConfig `yaml:"analyzer"`
}

// AnalyzerConfig holds all analyzer-side settings.
type AnalyzerConfig struct {
	// ServerEndpoint is the base URL of labtriage-server, e.g.
	// "http://localhost:8080".
	ServerEndpoint string `yaml:"server_endpoint"`

	// Interval is how often a synthetic result is submitted.
	Interval time.Duration `yaml:"interval"`

	// InitialDelay is how long to wait before the first submission, giving
	// the server time to come up when both start together.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// Patients is the pool of patient identifiers to draw from.
	Patients []string `yaml:"patients"`

	// Tests is the set of test codes to emit, each with its value range.
	Tests []TestRange `yaml:"tests"`

	// Auth configures how the analyzer authenticates to labtriage-server.
	Auth AuthConfig `yaml:"auth"`
}

// TestRange describes one simulated test and the value interval it draws
// from.
type TestRange struct {
	// Code is the short test mnemonic, e.g. "GLU".
	Code string `yaml:"code"`

	// Min and Max bound the uniformly drawn value, inclusive.
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// AuthConfig specifies how submissions are authenticated.
type AuthConfig struct {
	// KeyEnv is the name of the environment variable that holds the API key.
	// Leave empty to submit without authentication.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to send the key in.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
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

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("analyzer config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("analyzer config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("analyzer config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Analyzer: AnalyzerConfig{
			Interval:     DefaultInterval,
			InitialDelay: DefaultInitialDelay,
			Patients:     append([]string(nil), DefaultPatients...),
			Tests:        DefaultTests(),
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	a := cfg.Analyzer
	if a.ServerEndpoint == "" {
		return fmt.Errorf("analyzer.server_endpoint is required")
	}
	if a.Interval <= 0 {
		return fmt.Errorf("analyzer.interval must be positive")
	}
	if a.InitialDelay < 0 {
		return fmt.Errorf("analyzer.initial_delay must not be negative")
	}
	if len(a.Patients) == 0 {
		return fmt.Errorf("analyzer.patients must not be empty")
	}
	if len(a.Tests) == 0 {
		return fmt.Errorf("analyzer.tests must not be empty")
	}
	for i, tr := range a.Tests {
		if tr.Code == "" {
			return fmt.Errorf("analyzer.tests[%d]: code is required", i)
		}
		if tr.Max <= tr.Min {
			return fmt.Errorf("analyzer.tests[%d] %q: max must exceed min", i, tr.Code)
		}
	}
	return nil
}
