package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"marketcore/internal/services"
	transport "marketcore/internal/transport/http"
)

func newWatchCommand(s *state) *cobra.Command {
	var (
		debounce    time.Duration
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Re-validate a directory whenever its files change",
		Long: `Watch ingests the directory once, then again after every burst of file
changes settles for --debounce. Each run is recorded in the history.

With --metrics-addr (or telemetry.metrics_addr) an HTTP server exposes
/healthz, /readyz, /metrics and /runs while watching.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			addr := metricsAddr
			if addr == "" {
				addr = s.cfg.Telemetry.MetricsAddr
			}
			recursive := recursiveFlag(cmd, s)
			out := cmd.OutOrStdout()

			g, ctx := errgroup.WithContext(ctx)
			if addr != "" {
				router, err := s.app.Router()
				if err != nil {
					return err
				}
				srv := transport.NewServer(addr, router, s.app.Logger)
				g.Go(func() error { return srv.Run(ctx) })
				fmt.Fprintf(out, "serving ops endpoints on %s\n", addr)
			}
			g.Go(func() error {
				return s.app.DataService.WatchDirectory(ctx, args[0], recursive, debounce, func(res *services.IngestResult, err error) {
					reportWatchRun(out, res, err)
				})
			})
			return g.Wait()
		},
	}
	addLoadFlags(cmd)
	addValidationFlags(cmd)
	f := cmd.Flags()
	f.DurationVar(&debounce, "debounce", services.DefaultDebounce, "quiet period before re-validating")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve ops endpoints on host:port")
	return cmd
}

func reportWatchRun(out io.Writer, res *services.IngestResult, err error) {
	stamp := time.Now().Format(time.TimeOnly)
	if res == nil {
		fmt.Fprintf(out, "%s %s %v\n", stamp, errStyle.Render("ERROR"), err)
		return
	}
	loaded, skipped, failed := res.Batch.Counts()
	errs, warns := 0, 0
	if res.Report != nil {
		errs, warns = len(res.Report.Errors()), len(res.Report.Warnings())
	}
	fmt.Fprintf(out, "%s %s run %s: %d loaded, %d skipped, %d failed, %d rows, %d errors, %d warnings\n",
		stamp, verdictLabel(res.Valid()), res.RunID, loaded, skipped, failed,
		res.Batch.Aggregate.NumRows(), errs, warns)
}
