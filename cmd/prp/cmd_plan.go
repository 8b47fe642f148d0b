package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"prpforge/internal/backlog"
	"prpforge/internal/planner"
)

var planForce bool

// planCmd parses the PRD into the session's task registry.
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Parse the PRD into the session's task registry",
	Long: `Runs the deterministic markdown planner over the PRD and saves the
resulting backlog into the current session. An already-populated
registry is left alone unless --force is given; forcing replaces the
whole tree, including statuses.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().BoolVar(&planForce, "force", false, "Replace a non-empty registry")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, j, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer j.Close()

	reg, err := m.Registry()
	if err != nil {
		return err
	}
	if len(reg.Phases) > 0 && !planForce {
		return fmt.Errorf("session %s already holds %d item(s); use --force to replan",
			m.Current().Metadata.ID, len(backlog.Items(reg)))
	}

	parsed, err := planner.ParseFile(cfg.PRDPath)
	if err != nil {
		return err
	}
	if err := m.SetRegistry(parsed); err != nil {
		return err
	}
	if err := m.FlushUpdates(ctx); err != nil {
		return err
	}

	counts := backlog.CountByStatus(parsed)
	fmt.Printf("Planned %d phase(s), %d leaf subtask(s) into session %s\n",
		len(parsed.Phases), len(backlog.Leaves(parsed)), m.Current().Metadata.ID)
	if done := counts[backlog.StatusComplete]; done > 0 {
		fmt.Printf("  %d subtask(s) were already checked off in the PRD\n", done)
	}
	return nil
}
