package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prpforge/internal/agent"
	"prpforge/internal/delta"
	"prpforge/internal/store"
)

var deltaNewPRD string

// deltaCmd forks the session lineage for an edited PRD.
var deltaCmd = &cobra.Command{
	Use:   "delta",
	Short: "Create a delta session from an edited PRD",
	Long: `Creates a child session for the edited PRD, carries the task registry
forward, analyzes what changed, and patches item statuses so completed
work is only redone where the PRD actually moved. The parent session
stays on disk untouched.

Example:
  prp delta --new-prd PRD.v2.md`,
	RunE: runDelta,
}

func init() {
	deltaCmd.Flags().StringVar(&deltaNewPRD, "new-prd", "", "Path to the edited PRD (required)")
	_ = deltaCmd.MarkFlagRequired("new-prd")
	rootCmd.AddCommand(deltaCmd)
}

func runDelta(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, j, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer j.Close()
	parent := m.Current()

	newPRD, err := store.ReadPRD(deltaNewPRD)
	if err != nil {
		return err
	}
	if store.HashPRD(newPRD) == parent.Metadata.Hash {
		fmt.Println("PRD unchanged (identical hash); no delta session created.")
		return nil
	}

	ds, err := m.CreateDeltaSession(ctx, deltaNewPRD)
	if err != nil {
		return err
	}
	fmt.Printf("Delta session %s (parent %s)\n\n%s\n", ds.State.Metadata.ID, parent.Metadata.ID, ds.DiffSummary)

	reg, err := m.Registry()
	if err != nil {
		return err
	}

	analysis, err := newDeltaAnalyzer().Analyze(ctx, ds.OldPRD, ds.NewPRD, reg)
	if err != nil {
		logger.Warn("delta agent failed, falling back to text analysis", zap.Error(err))
		analysis, err = delta.NewTextAnalyzer().Analyze(ctx, ds.OldPRD, ds.NewPRD, reg)
		if err != nil {
			return err
		}
	}

	patched := delta.Patch(reg, analysis)
	if err := m.SetRegistry(patched); err != nil {
		return err
	}
	if err := m.FlushUpdates(ctx); err != nil {
		return err
	}

	if len(analysis.Changes) == 0 {
		fmt.Println("No structural changes detected; statuses carried forward unchanged.")
	} else {
		tbl := newTable("Changes", "KIND", "ITEM", "IMPACT", "DESCRIPTION")
		for _, c := range analysis.Changes {
			tbl.addRow(string(c.Kind), c.ItemID, string(c.Impact), truncate(c.Description, 60))
		}
		fmt.Print(tbl.render())
	}
	fmt.Printf("\nFuture commands should target the new PRD, e.g. `prp run --prd %s`\n", deltaNewPRD)
	return nil
}

// newDeltaAnalyzer prefers the model-backed analyzer and falls back to
// the deterministic text diff when no usable key is configured.
func newDeltaAnalyzer() delta.Analyzer {
	if cfg.Agent.Provider == "anthropic" && os.Getenv("ANTHROPIC_API_KEY") != "" {
		ag, err := agent.NewDeltaAgent(agent.AnthropicOptions{
			Model:      cfg.Agent.Model,
			MaxTokens:  cfg.Agent.MaxTokens,
			MaxRetries: cfg.Agent.MaxRetries,
		})
		if err == nil {
			return ag
		}
		logger.Warn("delta agent unavailable", zap.Error(err))
	}
	return delta.NewTextAnalyzer()
}
