package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigFileNames are tried, in order, in every search directory.
var ConfigFileNames = []string{"marketcore.yaml", "marketcore.yml", "config.yaml"}

// ExecutableDir returns the directory holding the running binary with
// symlinks resolved.
func ExecutableDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}
	return filepath.Dir(exe), nil
}

// SearchDirs lists where Load looks for a config file when none is given:
// the working directory and its configs/ folder, the user config
// directory, then the executable's directory.
func SearchDirs() []string {
	dirs := []string{".", "configs"}
	if dir, err := os.UserConfigDir(); err == nil {
		dirs = append(dirs, filepath.Join(dir, "marketcore"))
	}
	if dir, err := ExecutableDir(); err == nil {
		dirs = append(dirs, dir)
	}
	return dirs
}

// findConfigFile returns the first config file found in dirs
func findConfigFile(dirs []string) string {
	for _, dir := range dirs {
		for _, name := range ConfigFileNames {
			path := filepath.Join(dir, name)
			if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
				return path
			}
		}
	}
	return ""
}
