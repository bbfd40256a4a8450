package cli

import (
	"github.com/spf13/cobra"
)

func newLoadCommand(s *state) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "load <path>...",
		Short: "Load sources and report what each one produced",
		Long: `Load reads the given files, or every file of a single directory, and
prints one line per source: the format it loaded as, its row count, or
why it was skipped or failed. Nothing is validated or recorded.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			batch, err := s.load(ctx, cmd, args)
			if err != nil {
				return err
			}
			if asJSON {
				if err := writeJSON(cmd.OutOrStdout(), batch); err != nil {
					return err
				}
			} else {
				printOutcomes(cmd.OutOrStdout(), batch)
			}
			if batch.Cancelled {
				return ctx.Err()
			}
			return batch.Err()
		},
	}
	addLoadFlags(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the outcomes as JSON")
	return cmd
}
