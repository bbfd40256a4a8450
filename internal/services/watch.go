package services

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"marketcore/internal/loader"
)

// DefaultDebounce is the quiet period a watch waits for after the last
// file event before re-ingesting.
const DefaultDebounce = 500 * time.Millisecond

// IngestFunc receives the result of every ingest a watch runs
type IngestFunc func(*IngestResult, error)

// WatchDirectory ingests dir once, then again every time files under it
// change, until ctx is cancelled. Bursts of events within debounce collapse
// into one ingest.
func (ds *DataService) WatchDirectory(ctx context.Context, dir string, recursive bool, debounce time.Duration, fn IngestFunc) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWatchTarget, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrWatchTarget, dir)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if fn == nil {
		fn = func(*IngestResult, error) {}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addWatches(watcher, dir, recursive); err != nil {
		return err
	}
	ds.logger.InfoContext(ctx, "Watching directory",
		slog.String("dir", dir),
		slog.Bool("recursive", recursive),
		slog.Duration("debounce", debounce))

	fn(ds.ingestDirectory(ctx, TriggerWatch, dir, recursive))

	timer := time.NewTimer(debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			ds.logger.InfoContext(ctx, "Watch stopped", slog.String("dir", dir))
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			if recursive && event.Has(fsnotify.Create) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := addWatches(watcher, event.Name, true); err != nil {
						ds.logger.WarnContext(ctx, "Failed to watch new directory",
							slog.String("dir", event.Name),
							slog.String("error", err.Error()))
					}
				}
			}
			ds.logger.DebugContext(ctx, "File event",
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()))
			// Reset discards a pending expiry
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			ds.logger.WarnContext(ctx, "Watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			fn(ds.ingestDirectory(ctx, TriggerWatch, dir, recursive))
		}
	}
}

// relevant filters out permission changes and names the loader ignores
func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	return !loader.IsIgnored(filepath.Base(event.Name))
}

func addWatches(w *fsnotify.Watcher, root string, recursive bool) error {
	if !recursive {
		return w.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && loader.IsIgnored(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
