package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"prpforge/internal/store"
)

var (
	sessionsJournal      bool
	sessionsJournalLimit int
)

// sessionsCmd lists the sessions in the plan directory.
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions in the plan directory",
	Long: `Shows every session directory under the plan directory in sequence
order, including delta parentage. With --journal the most recent
execution journal events are appended.`,
	RunE: listSessions,
}

func init() {
	sessionsCmd.Flags().BoolVar(&sessionsJournal, "journal", false, "Tail recent journal events")
	sessionsCmd.Flags().IntVar(&sessionsJournalLimit, "journal-limit", 15, "Events shown with --journal")
	rootCmd.AddCommand(sessionsCmd)
}

func listSessions(cmd *cobra.Command, args []string) error {
	st := store.NewSessionStore(cfg.PlanDir)
	sessions, err := st.ListSessions()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Printf("No sessions under %s\n", cfg.PlanDir)
		return nil
	}

	tbl := newTable("Sessions", "SEQ", "SESSION", "PRD HASH", "PARENT", "CREATED")
	for _, s := range sessions {
		parent := s.ParentSession
		if parent == "" {
			parent = "-"
		}
		tbl.addRow(fmt.Sprintf("%03d", s.Seq), s.ID, s.Hash, parent,
			s.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Print(tbl.render())

	if !sessionsJournal {
		return nil
	}

	j := openJournal()
	if j == nil {
		return nil
	}
	defer j.Close()

	events, err := j.Recent(cmd.Context(), sessionsJournalLimit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("\nJournal is empty.")
		return nil
	}

	etbl := newTable("\nRecent events", "AT", "SESSION", "ITEM", "KIND", "DETAIL")
	for _, e := range events {
		item := e.Item
		if item == "" {
			item = "-"
		}
		etbl.addRow(e.At.Format("01-02 15:04:05"), e.Session, item, e.Kind, truncate(e.Detail, 48))
	}
	fmt.Print(etbl.render())
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
