package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"prpforge/internal/watch"
)

// watchCmd reports PRD content drift until interrupted.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the PRD and report content changes",
	Long: `Watches the PRD file and prints a line whenever its content hash
moves (editor saves are debounced). Watching never re-plans on its
own; it tells you when a delta session is warranted.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	w, err := watch.NewPRDWatcher(cfg.PRDPath, func(oldHash, newHash string) {
		fmt.Printf("PRD changed: %s -> %s\n", oldHash, newHash)
		fmt.Printf("  fork the session with `prp delta --new-prd %s`\n", cfg.PRDPath)
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	fmt.Printf("Watching %s (hash %s); Ctrl-C to stop\n", cfg.PRDPath, w.LastHash())
	<-ctx.Done()

	stats := w.GetStats()
	fmt.Printf("\nStopped after %d event(s), %d content change(s)\n", stats.EventsSeen, stats.Changes)
	return nil
}
