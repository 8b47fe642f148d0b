package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"prpforge/internal/agent"
	"prpforge/internal/backlog"
	"prpforge/internal/config"
	"prpforge/internal/gitops"
	"prpforge/internal/logging"
	"prpforge/internal/orchestrator"
	"prpforge/internal/research"
	"prpforge/internal/runtime"
	"prpforge/internal/session"
	"prpforge/internal/store"
	"prpforge/internal/telemetry"
)

const version = "0.1.0"

var (
	// Global flags
	verbose    bool
	configPath string
	prdFlag    string
	planFlag   string
	offline    bool

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:     "prp",
	Short:   "prpforge - PRD-driven PRP orchestration engine",
	Version: version,
	Long: `prpforge turns a product requirement document into an executable
backlog, researches each leaf subtask into a Product Requirement
Prompt (PRP), and drives implementation through validation gates.

Sessions are keyed by PRD content hash under the plan directory, so
re-running against an unchanged PRD resumes where it left off and an
edited PRD becomes a delta session with history preserved.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if prdFlag != "" {
			cfg.PRDPath = prdFlag
		}
		if planFlag != "" {
			cfg.PlanDir = planFlag
		}
		if offline {
			cfg.Agent.Provider = "static"
		}

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logging.Configure(logging.Options{
			Dir:        cfg.Logging.Dir,
			Level:      level,
			Categories: categorySet(cfg.Logging.Categories),
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		})

		// The telemetry package reads environment knobs; project the
		// file config onto them before Init.
		if cfg.Telemetry.Enabled {
			_ = os.Setenv("PRPFORGE_OTEL", "1")
			if cfg.Telemetry.Exporter == "stdout" {
				_ = os.Setenv("PRPFORGE_OTEL_STDOUT", "1")
			}
			if cfg.Telemetry.Exporter == "otlp" && cfg.Telemetry.Endpoint != "" {
				_ = os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.Endpoint)
			}
		}
		if err := telemetry.Init(cmd.Context(), "prpforge", version); err != nil {
			logger.Warn("telemetry init failed, continuing without", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		telemetry.Shutdown(context.Background())
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: prpforge.yaml in . or ~/.config/prpforge)")
	rootCmd.PersistentFlags().StringVar(&prdFlag, "prd", "", "PRD path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&planFlag, "plan-dir", "", "Plan directory holding sessions (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Use the deterministic offline agent (no API calls)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func categorySet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// openJournal returns nil when the journal cannot be opened; all
// journal writes are nil-safe, so a broken journal degrades to
// unrecorded events rather than failed commands.
func openJournal() *store.Journal {
	j, err := store.OpenJournal(cfg.PlanDir)
	if err != nil {
		logger.Warn("journal unavailable", zap.Error(err))
		return nil
	}
	return j
}

// newManager opens the journal and loads or creates the session for
// the configured PRD.
func newManager(ctx context.Context) (*session.Manager, *store.Journal, error) {
	j := openJournal()
	m := session.NewManager(cfg.PRDPath, cfg.PlanDir, session.WithJournal(j))
	if _, err := m.Initialize(ctx); err != nil {
		_ = j.Close()
		return nil, nil, err
	}
	return m, j, nil
}

func newResearchAgent(ctx context.Context) (research.Agent, error) {
	switch cfg.Agent.Provider {
	case "static":
		return agent.NewStaticAgent(), nil
	case "gemini":
		return agent.NewGeminiAgent(ctx, cfg.Agent.Model)
	default:
		return agent.NewAnthropicAgent(agent.AnthropicOptions{
			Model:      cfg.Agent.Model,
			MaxTokens:  cfg.Agent.MaxTokens,
			MaxRetries: cfg.Agent.MaxRetries,
		})
	}
}

func newOrchestrator(ctx context.Context, m *session.Manager, j *store.Journal, sc backlog.Scope, bypass bool) (*orchestrator.Orchestrator, error) {
	ag, err := newResearchAgent(ctx)
	if err != nil {
		return nil, err
	}
	state := m.Current()
	rt := runtime.NewGateRuntime(runtime.Options{
		WorkDir:      cfg.Runtime.WorkDir,
		GateTimeout:  cfg.GetGateTimeout(),
		FixAttempts:  cfg.Runtime.FixAttempts,
		ArtifactsDir: filepath.Join(state.Metadata.Path, store.ArtifactsDir),
	})
	return orchestrator.New(orchestrator.Config{
		Manager:            m,
		Agent:              ag,
		Runtime:            rt,
		Committer:          gitops.NewCommitter(cfg.Runtime.WorkDir),
		Journal:            j,
		Scope:              sc,
		BypassCache:        bypass,
		MaxConcurrent:      cfg.Research.MaxConcurrent,
		DependencyTimeout:  cfg.GetDependencyTimeout(),
		DependencyInterval: cfg.GetDependencyInterval(),
	})
}

// parseScope builds an execution scope from the --scope-type and
// --scope-id flags. A bare id infers its own type from its depth.
func parseScope(scopeType, scopeID string) (backlog.Scope, error) {
	if scopeType == "" && scopeID == "" {
		return backlog.ScopeAllItems, nil
	}
	if scopeType == "" {
		switch strings.Count(scopeID, ".") {
		case 0:
			scopeType = string(backlog.ScopePhase)
		case 1:
			scopeType = string(backlog.ScopeMilestone)
		case 2:
			scopeType = string(backlog.ScopeTask)
		default:
			return backlog.Scope{}, fmt.Errorf("cannot infer scope type from id %q", scopeID)
		}
	}

	st := backlog.ScopeType(scopeType)
	switch st {
	case backlog.ScopeAll:
		return backlog.Scope{Type: backlog.ScopeAll}, nil
	case backlog.ScopePhase, backlog.ScopeMilestone, backlog.ScopeTask:
		if scopeID == "" {
			return backlog.Scope{}, fmt.Errorf("--scope-id is required with --scope-type %s", scopeType)
		}
		return backlog.Scope{Type: st, ID: scopeID}, nil
	default:
		return backlog.Scope{}, fmt.Errorf("unknown scope type %q (valid: all, phase, milestone, task)", scopeType)
	}
}
