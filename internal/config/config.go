// Package config holds the engine's file-and-environment configuration.
// API keys are deliberately absent from the model: agents read
// ANTHROPIC_API_KEY and GEMINI_API_KEY straight from the environment so
// keys never land in a config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all prpforge configuration.
type Config struct {
	// PRDPath is the product requirement document the engine plans from.
	PRDPath string `yaml:"prd_path" mapstructure:"prd_path"`

	// PlanDir is the root directory sessions are stored under.
	PlanDir string `yaml:"plan_dir" mapstructure:"plan_dir"`

	Research  ResearchConfig  `yaml:"research" mapstructure:"research"`
	Agent     AgentConfig     `yaml:"agent" mapstructure:"agent"`
	Runtime   RuntimeConfig   `yaml:"runtime" mapstructure:"runtime"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

// ResearchConfig configures the background research queue.
type ResearchConfig struct {
	// MaxConcurrent bounds parallel agent calls. Zero disables
	// background research entirely.
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// AgentConfig selects and tunes the research agent.
type AgentConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider"` // anthropic, gemini, static
	Model      string `yaml:"model" mapstructure:"model"`       // empty picks the provider default
	MaxTokens  int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// RuntimeConfig configures gate execution and dependency gating.
type RuntimeConfig struct {
	WorkDir            string `yaml:"work_dir" mapstructure:"work_dir"`
	GateTimeout        string `yaml:"gate_timeout" mapstructure:"gate_timeout"`
	FixAttempts        int    `yaml:"fix_attempts" mapstructure:"fix_attempts"`
	DependencyTimeout  string `yaml:"dependency_timeout" mapstructure:"dependency_timeout"`
	DependencyInterval string `yaml:"dependency_interval" mapstructure:"dependency_interval"`
}

// LoggingConfig configures the per-category engine logs.
type LoggingConfig struct {
	Level      string   `yaml:"level" mapstructure:"level"` // debug, info, warn, error
	Dir        string   `yaml:"dir" mapstructure:"dir"`     // empty disables file logging
	Categories []string `yaml:"categories" mapstructure:"categories"`
	MaxSizeMB  int      `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int      `yaml:"max_backups" mapstructure:"max_backups"`
}

// TelemetryConfig configures the opt-in OpenTelemetry pipeline.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Exporter string `yaml:"exporter" mapstructure:"exporter"` // stdout, otlp
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		PRDPath: "PRD.md",
		PlanDir: "plan",

		Research: ResearchConfig{
			MaxConcurrent: 3,
		},

		Agent: AgentConfig{
			Provider:   "anthropic",
			Model:      "",
			MaxTokens:  4096,
			MaxRetries: 3,
		},

		Runtime: RuntimeConfig{
			WorkDir:            ".",
			GateTimeout:        "2m",
			FixAttempts:        2,
			DependencyTimeout:  "5m",
			DependencyInterval: "2s",
		},

		Logging: LoggingConfig{
			Level:      "info",
			Dir:        filepath.Join(".prpforge", "logs"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},

		Telemetry: TelemetryConfig{
			Enabled:  false,
			Exporter: "stdout",
		},
	}
}

// Save writes the configuration as YAML, creating parent directories.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// GetGateTimeout returns the per-gate timeout as a duration.
func (c *Config) GetGateTimeout() time.Duration {
	d, err := time.ParseDuration(c.Runtime.GateTimeout)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// GetDependencyTimeout returns the dependency wait budget as a duration.
func (c *Config) GetDependencyTimeout() time.Duration {
	d, err := time.ParseDuration(c.Runtime.DependencyTimeout)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// GetDependencyInterval returns the dependency poll interval as a duration.
func (c *Config) GetDependencyInterval() time.Duration {
	d, err := time.ParseDuration(c.Runtime.DependencyInterval)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// ValidProviders lists all supported agent providers.
var ValidProviders = []string{"anthropic", "gemini", "static"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.Agent.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid agent provider: %s (valid: %v)", c.Agent.Provider, ValidProviders)
	}

	if c.Research.MaxConcurrent < 0 {
		return fmt.Errorf("research.max_concurrent must not be negative: %d", c.Research.MaxConcurrent)
	}
	if c.Runtime.FixAttempts < 0 {
		return fmt.Errorf("runtime.fix_attempts must not be negative: %d", c.Runtime.FixAttempts)
	}
	if c.PlanDir == "" {
		return fmt.Errorf("plan_dir must not be empty")
	}

	return nil
}
