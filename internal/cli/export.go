package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"marketcore/internal/exporter"
	"marketcore/pkg/contracts/domain"
)

func newExportCommand(s *state) *cobra.Command {
	var (
		outPath   string
		to        string
		bom       bool
		table     string
		partition string
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "export <path>... --out <file|dir>",
		Short: "Validate sources and write the merged table to a file",
		Long: `Export ingests the sources like validate, then writes the merged table.
The output format follows --to or the extension of --out. With --partition
the table is split by symbol or day into one file per part under --out.
A table that fails validation is not written unless --force is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key exporter.PartitionKey
			if partition != "" {
				var err error
				if key, err = exporter.ParsePartitionKey(partition); err != nil {
					return err
				}
			}
			opts := exporter.Options{Format: domain.ParseFormatHint(to), BOM: bom, Table: table}
			if to != "" && opts.Format == domain.FormatUnknown {
				return fmt.Errorf("unknown output format %q", to)
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			res, err := s.ingest(ctx, cmd, args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Batch.Empty() {
				printOutcomes(out, res.Batch)
				return res.Batch.Err()
			}
			if !res.Valid() && !force {
				printReport(out, res.Report)
				fmt.Fprintln(out, "nothing written; use --force to export anyway")
				return ErrInvalidData
			}

			if key != "" {
				paths, err := s.app.Exporter.ExportPartitioned(ctx, res.Batch.Aggregate, outPath, key, opts)
				if err != nil {
					return err
				}
				for _, p := range paths {
					fmt.Fprintln(out, p)
				}
				fmt.Fprintf(out, "%s %d files by %s\n", okStyle.Render("WROTE"), len(paths), key)
				return nil
			}

			kind, err := s.app.Exporter.Export(ctx, res.Batch.Aggregate, outPath, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s (%s, %d rows)\n", okStyle.Render("WROTE"), outPath, kind, res.Batch.Aggregate.NumRows())
			return nil
		},
	}
	addLoadFlags(cmd)
	addValidationFlags(cmd)
	f := cmd.Flags()
	f.StringVarP(&outPath, "out", "o", "", "output file, or directory with --partition")
	f.StringVar(&to, "to", "", "output format: csv, parquet, jsonl, duckdb, excel")
	f.BoolVar(&bom, "bom", false, "prefix CSV output with a UTF-8 byte order mark")
	f.StringVar(&table, "table", "", "table name for DuckDB output")
	f.StringVar(&partition, "partition", "", "split output by symbol or day")
	f.BoolVar(&force, "force", false, "export even when validation fails")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
