package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"marketcore/internal/app"
	"marketcore/internal/config"
)

// ErrInvalidData is returned when a validated dataset has ERROR issues, so
// the process exits non-zero.
var ErrInvalidData = errors.New("dataset failed validation")

// state is shared by the commands of one invocation
type state struct {
	configPath string
	logLevel   string
	logOutput  string
	storeDB    string
	noTelem    bool

	cfg *config.Config
	app *app.Application
}

// NewRootCommand builds the marketcore command tree
func NewRootCommand() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *state) {
	s := &state{}
	root := &cobra.Command{
		Use:   "marketcore",
		Short: "Load and validate market price data",
		Long: `marketcore loads OHLCV price data from CSV, Parquet, JSON Lines, DuckDB
and Excel files, merges the sources into one table and validates it.

Configuration is read from marketcore.yaml (or --config) and MARKETCORE_*
environment variables; flags override both.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: s.setup,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return s.teardown(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&s.configPath, "config", "", "config file (default: marketcore.yaml if present)")
	pf.StringVar(&s.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&s.logOutput, "log-output", "", "log output: console, file, both")
	pf.StringVar(&s.storeDB, "history-db", "", "record runs in this SQLite database")
	pf.BoolVar(&s.noTelem, "no-telemetry", false, "disable metrics and tracing")

	root.AddCommand(
		newLoadCommand(s),
		newValidateCommand(s),
		newExportCommand(s),
		newHistoryCommand(s),
		newWatchCommand(s),
		newVersionCommand(),
	)
	return root, s
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	root, s := newRootCommand()
	err := root.Execute()
	// PersistentPostRunE is skipped when a command fails
	if cerr := s.teardown(context.Background()); err == nil {
		err = cerr
	}
	if err != nil {
		if !errors.Is(err, ErrInvalidData) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

func (s *state) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations["skipSetup"] == "true" {
		return nil
	}
	cfg, err := config.Load(s.configPath)
	if err != nil {
		return err
	}
	if s.logLevel != "" {
		cfg.Logging.Level = s.logLevel
	}
	if s.logOutput != "" {
		cfg.Logging.Output = s.logOutput
	}
	if s.storeDB != "" {
		cfg.Store = config.StoreConfig{Driver: "sqlite", Path: s.storeDB}
	}
	if s.noTelem {
		cfg.Telemetry.Enabled = false
	}
	if err := applyCommandFlags(cmd, cfg); err != nil {
		return err
	}

	a, err := app.New(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	s.cfg = cfg
	s.app = a
	return nil
}

func (s *state) teardown(ctx context.Context) error {
	if s.app == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := s.app.Close(ctx)
	s.app = nil
	return err
}

// applyCommandFlags copies the load and validation flags a command defines
// onto cfg when they were set.
func applyCommandFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var err error
	if flags.Changed("format") {
		cfg.Load.FormatHint, err = flags.GetString("format")
	}
	if err == nil && flags.Changed("concurrency") {
		cfg.Load.ConcurrencyLimit, err = flags.GetInt("concurrency")
	}
	if err == nil && flags.Changed("timeout") {
		cfg.Load.PerSourceTimeout, err = flags.GetDuration("timeout")
	}
	if err == nil && flags.Changed("mode") {
		cfg.Validation.Mode, err = flags.GetString("mode")
	}
	if err == nil && flags.Changed("required") {
		cfg.Validation.RequiredColumns, err = flags.GetStringSlice("required")
	}
	if err == nil && flags.Changed("sample-limit") {
		cfg.Validation.SampleIssueLimit, err = flags.GetInt("sample-limit")
	}
	if err != nil {
		return err
	}
	return cfg.Validate()
}

// addLoadFlags registers the flags shared by commands that load sources
func addLoadFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolP("recursive", "r", false, "descend into subdirectories")
	f.String("format", "", "force a format: csv, parquet, jsonl, duckdb, excel")
	f.Int("concurrency", 0, "parallel source loads (0 = number of CPUs)")
	f.Duration("timeout", 0, "per-reader timeout, e.g. 30s (0 = none)")
}

// addValidationFlags registers the validation flags
func addValidationFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("mode", "", "validation mode: full, schemaOnly, consistencyOnly")
	f.StringSlice("required", nil, "required columns, replacing the OHLCV set")
	f.Int("sample-limit", 0, "issues reported per rule before folding")
}
