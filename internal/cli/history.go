package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"marketcore/internal/store"
)

func newHistoryCommand(s *state) *cobra.Command {
	var (
		trigger string
		limit   int
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show one run",
		Long: `History reads the run history. Runs survive between invocations only with
a SQLite store (--history-db or store.driver: sqlite).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				run, err := s.app.DataService.Run(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, run)
				}
				printRun(out, run)
				return nil
			}

			runs, err := s.app.DataService.Runs(ctx, store.Filter{Trigger: trigger, Limit: limit})
			if err != nil {
				return err
			}
			if asJSON {
				if runs == nil {
					runs = []store.Run{}
				}
				return writeJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs recorded")
				return nil
			}
			printRuns(out, runs, time.Now())
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&trigger, "trigger", "", "only runs started by manual or watch")
	f.IntVar(&limit, "limit", 20, "maximum runs to list")
	f.BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
