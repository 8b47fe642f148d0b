package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prpforge/internal/backlog"
)

var (
	runScopeType   string
	runScopeID     string
	runBypassCache bool
	runMaxItems    int
	runDryRun      bool
)

// runCmd drives the orchestrator loop over the scoped execution queue.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the backlog through research and validation gates",
	Long: `Builds the execution queue from the registry (depth-first document
order, leaves only), then processes items one at a time: wait for
dependencies, research the subtask into a PRP, run its validation
gates, and mark it complete or failed. Statuses are flushed to the
session after every item, so an interrupted run resumes cleanly.

Examples:
  prp run
  prp run --scope-id P1.M2 --max-items 3
  prp run --offline --dry-run`,
	RunE: runExecute,
}

func init() {
	runCmd.Flags().StringVar(&runScopeType, "scope-type", "", "Restrict execution: all, phase, milestone, task")
	runCmd.Flags().StringVar(&runScopeID, "scope-id", "", "Item id the scope is rooted at (type inferred when omitted)")
	runCmd.Flags().BoolVar(&runBypassCache, "bypass-cache", false, "Force fresh research even when a PRP is cached")
	runCmd.Flags().IntVar(&runMaxItems, "max-items", 0, "Stop after N items (0 drains the queue)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Print the execution queue without running anything")
	rootCmd.AddCommand(runCmd)
}

func runExecute(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received, stopping after the current item")
		cancel()
	}()

	sc, err := parseScope(runScopeType, runScopeID)
	if err != nil {
		return err
	}

	m, j, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer j.Close()

	orch, err := newOrchestrator(ctx, m, j, sc, runBypassCache)
	if err != nil {
		return err
	}

	queue := orch.ExecutionQueue()
	if len(queue) == 0 {
		fmt.Println("Nothing to execute in scope; registry may be empty or already complete.")
		return nil
	}

	if runDryRun {
		fmt.Printf("Execution queue (%d item(s)):\n", len(queue))
		for i, s := range queue {
			fmt.Printf("  %2d. %-16s %s [%s]\n", i+1, s.ID, s.Title, s.Status)
		}
		return nil
	}

	logger.Info("starting run",
		zap.String("session", m.Current().Metadata.ID),
		zap.Int("queued", len(queue)),
		zap.Int("maxConcurrent", cfg.Research.MaxConcurrent))

	processed, runErr := orch.Run(ctx, runMaxItems)

	stats := orch.ResearchStats()
	fmt.Printf("Processed %d item(s); %d left in scope (research cached: %d)\n",
		processed, orch.Remaining(), stats.Cached)
	if reg, err := m.Registry(); err == nil {
		counts := backlog.CountByStatus(reg)
		fmt.Printf("  complete: %d  failed: %d  planned: %d\n",
			counts[backlog.StatusComplete], counts[backlog.StatusFailed], counts[backlog.StatusPlanned])
	}
	return runErr
}
