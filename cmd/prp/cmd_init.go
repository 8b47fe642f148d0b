package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"prpforge/internal/backlog"
	"prpforge/internal/store"
)

// initCmd creates or resumes the session for the configured PRD.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or load the session for the configured PRD",
	Long: `Hashes the PRD and either resumes the existing session keyed by that
hash or creates the next-sequence session directory with a PRD
snapshot and an empty task registry.

Example:
  prp init --prd PRD.md --plan-dir plan`,
	RunE: runInitSession,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInitSession(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// Look before Initialize so we can report created vs resumed.
	pre, _ := store.NewSessionStore(cfg.PlanDir).FindSessionByPRD(cfg.PRDPath)

	m, j, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer j.Close()

	state := m.Current()
	if pre != nil && pre.ID == state.Metadata.ID {
		fmt.Printf("Resumed session %s (PRD unchanged)\n", state.Metadata.ID)
	} else {
		fmt.Printf("Created session %s\n", state.Metadata.ID)
	}
	fmt.Printf("  prd:     %s (hash %s)\n", cfg.PRDPath, state.Metadata.Hash)
	fmt.Printf("  session: %s\n", state.Metadata.Path)

	reg, err := m.Registry()
	if err != nil {
		return err
	}
	leaves := len(backlog.Leaves(reg))
	if leaves == 0 {
		fmt.Println("Registry is empty; run `prp plan` to parse the PRD into tasks.")
	} else {
		fmt.Printf("Registry holds %d leaf subtask(s).\n", leaves)
	}
	return nil
}
