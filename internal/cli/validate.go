package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"marketcore/internal/services"
	"marketcore/pkg/contracts/domain"
)

// validateOutput is the --json form of an ingest
type validateOutput struct {
	RunID    string                   `json:"run_id"`
	Valid    bool                     `json:"valid"`
	Mode     domain.ValidationMode    `json:"mode,omitempty"`
	Executed []domain.Category        `json:"executed,omitempty"`
	Batch    domain.BatchResult       `json:"batch"`
	Issues   []domain.ValidationIssue `json:"issues"`
}

func newValidateOutput(res *services.IngestResult) validateOutput {
	out := validateOutput{
		RunID:  res.RunID,
		Valid:  res.Valid(),
		Batch:  res.Batch,
		Issues: []domain.ValidationIssue{},
	}
	if res.Report != nil {
		out.Mode = res.Report.Mode()
		out.Executed = res.Report.Executed()
		out.Issues = res.Report.Issues()
	}
	return out
}

func newValidateCommand(s *state) *cobra.Command {
	var asJSON, quiet bool
	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Load sources, validate the merged table and record the run",
		Args:  cobra.MinimumNArgs(1),
		Example: `  marketcore validate data/
  marketcore validate --mode schemaOnly prices.parquet extra.csv
  marketcore validate --history-db runs.db -r archive/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			res, err := s.ingest(ctx, cmd, args)
			if res == nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				if werr := writeJSON(out, newValidateOutput(res)); werr != nil {
					return werr
				}
			case quiet:
				fmt.Fprintln(out, verdictLabel(res.Valid()))
			default:
				printOutcomes(out, res.Batch)
				printReport(out, res.Report)
				fmt.Fprintln(out, dimStyle.Render("run "+res.RunID))
			}
			if err != nil {
				return err
			}
			if res.Batch.Empty() {
				return res.Batch.Err()
			}
			if !res.Valid() {
				return ErrInvalidData
			}
			return nil
		},
	}
	addLoadFlags(cmd)
	addValidationFlags(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only VALID or INVALID")
	return cmd
}
