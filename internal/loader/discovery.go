package loader

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"marketcore/internal/errors"
)

// FileInfo describes a discovered source file
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Discover lists the regular files under root in lexicographic path order.
// Hidden files and Office lock files (~$name) are ignored. Subdirectories
// are walked only when recursive is set.
func Discover(root string, recursive bool) ([]FileInfo, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.NewConfigError(fmt.Sprintf("cannot read directory %s", root), err)
	}
	if !info.IsDir() {
		return nil, errors.NewConfigError(fmt.Sprintf("%s is not a directory", root), nil)
	}

	var files []FileInfo
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// unreadable entries below the root are skipped
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if !recursive || IsIgnored(name) {
				return filepath.SkipDir
			}
			return nil
		}
		if IsIgnored(name) || !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{
			Path:    path,
			Name:    name,
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, errors.NewConfigError(fmt.Sprintf("cannot read directory %s", root), err)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	return files, nil
}

// IsIgnored reports names that are never treated as sources: dot files and
// Office lock files.
func IsIgnored(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$")
}
