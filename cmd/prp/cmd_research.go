package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"prpforge/internal/backlog"
	"prpforge/internal/research"
)

var (
	researchScopeType string
	researchScopeID   string
)

// researchCmd prefetches PRPs for a scope without executing anything.
var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Prefetch PRPs for a scope without executing",
	Long: `Enqueues every leaf subtask in scope on the research queue (bounded by
research.max_concurrent), waits for all artifacts, and writes each PRP
into the session's prps/ directory. A later prp run then starts from
researched items instead of paying the research latency inline.`,
	RunE: runResearch,
}

func init() {
	researchCmd.Flags().StringVar(&researchScopeType, "scope-type", "", "Restrict research: all, phase, milestone, task")
	researchCmd.Flags().StringVar(&researchScopeID, "scope-id", "", "Item id the scope is rooted at (type inferred when omitted)")
	rootCmd.AddCommand(researchCmd)
}

func runResearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received, abandoning pending research")
		cancel()
	}()

	sc, err := parseScope(researchScopeType, researchScopeID)
	if err != nil {
		return err
	}

	m, j, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer j.Close()
	state := m.Current()

	reg, err := m.Registry()
	if err != nil {
		return err
	}
	leaves := backlog.FilterLeaves(reg, sc)
	if len(leaves) == 0 {
		fmt.Println("No leaf subtasks in scope; run `prp plan` or widen the scope.")
		return nil
	}

	ag, err := newResearchAgent(ctx)
	if err != nil {
		return err
	}
	queue := research.NewQueue(ag, cfg.Research.MaxConcurrent)
	for _, leaf := range leaves {
		queue.Enqueue(leaf, reg)
	}

	fmt.Printf("Researching %d item(s) with up to %d in flight...\n", len(leaves), queue.MaxConcurrent())

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, leaf := range leaves {
		g.Go(func() error {
			artifact, err := queue.WaitForPRP(gctx, leaf.ID)
			if err != nil {
				return fmt.Errorf("%s: %w", leaf.ID, err)
			}
			path, err := m.Store().WritePRP(state.Metadata.Path, artifact)
			if err != nil {
				return fmt.Errorf("%s: %w", leaf.ID, err)
			}
			mu.Lock()
			fmt.Printf("  researched %s -> %s\n", leaf.ID, path)
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()

	stats := queue.GetStats()
	fmt.Printf("Done (cached artifacts: %d)\n", stats.Cached)
	return err
}
