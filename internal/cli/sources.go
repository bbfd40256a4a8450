package cli

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"marketcore/internal/loader"
	"marketcore/internal/services"
	"marketcore/pkg/contracts/domain"
)

// target is what the positional arguments name: one directory, or a list
// of files with any directories expanded.
type target struct {
	dir   string
	paths []string
}

func resolveTarget(args []string, recursive bool) (target, error) {
	if len(args) == 1 {
		if fi, err := os.Stat(args[0]); err == nil && fi.IsDir() {
			return target{dir: args[0]}, nil
		}
	}
	var t target
	for _, arg := range args {
		fi, err := os.Stat(arg)
		if err != nil || !fi.IsDir() {
			// missing files surface as failed outcomes
			t.paths = append(t.paths, arg)
			continue
		}
		files, err := loader.Discover(arg, recursive)
		if err != nil {
			return t, err
		}
		for _, f := range files {
			t.paths = append(t.paths, f.Path)
		}
	}
	return t, nil
}

func (t target) String() string {
	if t.dir != "" {
		return t.dir
	}
	return strings.Join(t.paths, ",")
}

func recursiveFlag(cmd *cobra.Command, s *state) bool {
	if cmd.Flags().Changed("recursive") {
		r, _ := cmd.Flags().GetBool("recursive")
		return r
	}
	return s.cfg.Load.Recursive
}

// load runs the loader alone
func (s *state) load(ctx context.Context, cmd *cobra.Command, args []string) (domain.BatchResult, error) {
	recursive := recursiveFlag(cmd, s)
	t, err := resolveTarget(args, recursive)
	if err != nil {
		return domain.BatchResult{}, err
	}
	if t.dir != "" {
		return s.app.Loader.LoadDirectory(ctx, t.dir, recursive)
	}
	hint := s.cfg.Load.FormatHint
	sources := make([]domain.SourceDescriptor, len(t.paths))
	for i, p := range t.paths {
		sources[i] = domain.SourceDescriptor{Path: p, FormatHint: hint}
	}
	return s.app.Loader.LoadMany(ctx, sources), nil
}

// ingest loads, validates and records a run
func (s *state) ingest(ctx context.Context, cmd *cobra.Command, args []string) (*services.IngestResult, error) {
	recursive := recursiveFlag(cmd, s)
	t, err := resolveTarget(args, recursive)
	if err != nil {
		return nil, err
	}
	if t.dir != "" {
		return s.app.DataService.IngestDirectory(ctx, t.dir, recursive)
	}
	return s.app.DataService.IngestPaths(ctx, t.paths)
}
