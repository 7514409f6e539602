package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kayz/xenobot/internal/persist"
)

var (
	journalLimit   int
	journalChanges bool
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show recent journal entries",
	RunE:  runJournal,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "Number of entries to show")
	journalCmd.Flags().BoolVar(&journalChanges, "styles", false, "Show acting style changes instead of events")
}

func runJournal(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	store, err := persist.NewStore(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()

	if journalChanges {
		changes, err := store.InstructionChanges(journalLimit)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			fmt.Fprintln(out, "No acting style changes recorded.")
			return nil
		}
		for _, c := range changes {
			fmt.Fprintf(out, "- %s %s by %s:%s: %s\n",
				c.CreatedAt.Local().Format(time.DateTime), c.ScopeKey, c.ActorPlatform, c.ActorID, truncate(c.Style, 60))
		}
		return nil
	}

	events, err := store.RecentEvents(journalLimit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(out, "No events recorded.")
		return nil
	}
	for _, e := range events {
		line := fmt.Sprintf("- %s %s [%s] %s", e.CreatedAt.Local().Format(time.DateTime), e.Identity, e.State, truncate(e.Reply, 50))
		if e.Error != "" {
			line += " (" + truncate(e.Error, 40) + ")"
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
