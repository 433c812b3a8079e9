package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/alex/mirra/internal/config"
	"github.com/alex/mirra/internal/store"
)

var (
	flagEventType  string
	flagEventLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent creature sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(20)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("no runs recorded yet")
			return nil
		}

		for _, r := range runs {
			started := time.UnixMilli(r.StartedAt).Format("2006-01-02 15:04:05")
			duration := "running"
			if r.EndedAt != nil {
				duration = time.Duration((*r.EndedAt - r.StartedAt) * int64(time.Millisecond)).Round(time.Second).String()
			}
			fmt.Printf("%s  %s  %-9s  %s  %d events\n",
				r.RunID, started, r.Status, duration, r.EventCount)
		}
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events <run-id>",
	Short: "Show the behavior log for a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runID := args[0]
		run, err := db.GetRun(runID)
		if err != nil {
			return err
		}
		if run == nil {
			return fmt.Errorf("no run %q", runID)
		}

		events, err := db.ListEvents(runID, flagEventType, flagEventLimit)
		if err != nil {
			return err
		}

		// ListEvents gives newest first; a log reads better oldest first.
		for i := len(events) - 1; i >= 0; i-- {
			e := events[i]
			at := time.UnixMilli(e.CreatedAt).Format("15:04:05")
			fmt.Printf("%s  %-16s %s\n", at, e.EventType, string(e.Payload))
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVarP(&flagEventType, "type", "t", "", "filter by event type")
	eventsCmd.Flags().IntVarP(&flagEventLimit, "limit", "n", 100, "maximum events to show")
}

func openDB() (*store.DB, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	path := cfg.Database.Path
	if path == "" {
		path, err = store.DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return store.Open(path)
}
