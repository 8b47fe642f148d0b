package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"prpforge/internal/backlog"
	"prpforge/internal/prp"
	"prpforge/internal/store"
)

var statusShow string

// statusCmd reports registry progress for the current session.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registry progress for the current session",
	Long: `Prints per-status counts and a per-phase rollup of leaf subtasks.
With --show <item-id> the item's researched PRP markdown is rendered
to the terminal instead.`,
	RunE: showStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusShow, "show", "", "Render the PRP for one item id")
	rootCmd.AddCommand(statusCmd)
}

func showStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, j, err := newManager(ctx)
	if err != nil {
		return err
	}
	defer j.Close()
	state := m.Current()

	if statusShow != "" {
		return renderPRP(state, statusShow)
	}

	reg, err := m.Registry()
	if err != nil {
		return err
	}

	fmt.Printf("Session %s (PRD hash %s)\n", state.Metadata.ID, state.Metadata.Hash)
	if state.CurrentItem != "" {
		fmt.Printf("Current item: %s\n", state.CurrentItem)
	}
	if len(reg.Phases) == 0 {
		fmt.Println("Registry is empty; run `prp plan` first.")
		return nil
	}

	counts := backlog.CountByStatus(reg)
	ctbl := newTable("\nStatus", "STATUS", "ITEMS")
	for _, st := range []backlog.Status{
		backlog.StatusPlanned, backlog.StatusResearching, backlog.StatusImplementing,
		backlog.StatusComplete, backlog.StatusFailed, backlog.StatusObsolete,
	} {
		if counts[st] > 0 {
			ctbl.addRow(string(st), fmt.Sprintf("%d", counts[st]))
		}
	}
	fmt.Print(ctbl.render())

	ptbl := newTable("\nPhases", "PHASE", "TITLE", "LEAVES", "COMPLETE", "FAILED")
	for _, phase := range reg.Phases {
		leaves := backlog.FilterLeaves(reg, backlog.Scope{Type: backlog.ScopePhase, ID: phase.ID})
		complete, failed := 0, 0
		for _, leaf := range leaves {
			switch leaf.Status {
			case backlog.StatusComplete:
				complete++
			case backlog.StatusFailed:
				failed++
			}
		}
		ptbl.addRow(phase.ID, phase.Title,
			fmt.Sprintf("%d", len(leaves)), fmt.Sprintf("%d", complete), fmt.Sprintf("%d", failed))
	}
	fmt.Print(ptbl.render())
	return nil
}

// renderPRP pretty-prints a researched artifact from the session's
// prps/ directory.
func renderPRP(state *store.SessionState, itemID string) error {
	path := filepath.Join(state.Metadata.Path, store.PRPsDir, prp.Filename(itemID))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("no PRP for %s yet (expected %s); run `prp run` or `prp research` first", itemID, path)
		}
		return err
	}
	if _, err := prp.Parse(data); err != nil {
		logger.Warn("PRP does not parse cleanly", zap.String("path", path), zap.Error(err))
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		// Fall back to the raw markdown.
		fmt.Print(string(data))
		return nil
	}
	out, err := renderer.Render(string(data))
	if err != nil {
		fmt.Print(string(data))
		return nil
	}
	fmt.Print(out)
	return nil
}
