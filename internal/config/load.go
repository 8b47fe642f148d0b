package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load resolves configuration from file, environment, and defaults.
//
// With an explicit path the file must exist. Otherwise prpforge.yaml is
// searched in the working directory, then $HOME/.config/prpforge/, and
// a missing file just yields the defaults. Any key can be overridden
// through the environment with the PRPFORGE_ prefix, e.g.
// PRPFORGE_RESEARCH_MAX_CONCURRENT=5.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("prpforge")
	v.SetConfigType("yaml")

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "prpforge"))
		}
	}

	v.SetEnvPrefix("PRPFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	seedDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || (explicitPath == "" && os.IsNotExist(err))
		if explicitPath != "" || !missing {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// seedDefaults registers every key with viper so environment-only
// overrides are visible to Unmarshal.
func seedDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("prd_path", d.PRDPath)
	v.SetDefault("plan_dir", d.PlanDir)

	v.SetDefault("research.max_concurrent", d.Research.MaxConcurrent)

	v.SetDefault("agent.provider", d.Agent.Provider)
	v.SetDefault("agent.model", d.Agent.Model)
	v.SetDefault("agent.max_tokens", d.Agent.MaxTokens)
	v.SetDefault("agent.max_retries", d.Agent.MaxRetries)

	v.SetDefault("runtime.work_dir", d.Runtime.WorkDir)
	v.SetDefault("runtime.gate_timeout", d.Runtime.GateTimeout)
	v.SetDefault("runtime.fix_attempts", d.Runtime.FixAttempts)
	v.SetDefault("runtime.dependency_timeout", d.Runtime.DependencyTimeout)
	v.SetDefault("runtime.dependency_interval", d.Runtime.DependencyInterval)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.dir", d.Logging.Dir)
	v.SetDefault("logging.categories", d.Logging.Categories)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)

	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("telemetry.exporter", d.Telemetry.Exporter)
	v.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
}
