package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"marketcore/pkg/contracts/domain"
)

// FileValidator checks filesystem targets before tables are written.
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{logger: logger}
}

// ValidateOutputDirectory ensures dir exists (creating it if needed) and
// is writable.
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	probe, err := os.CreateTemp(dir, ".write_test*")
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)

	v.logger.Debug("Output directory validated", slog.String("directory", dir))
	return nil
}

// ValidateOutputFile checks that path can receive a table in format kind.
// An existing regular file is replaced; an existing directory is refused.
func (v *FileValidator) ValidateOutputFile(path string, kind domain.FormatKind) error {
	if kind == domain.FormatUnknown {
		return fmt.Errorf("cannot write %s: unknown output format", path)
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		v.logger.Error("Output path is a directory", slog.String("path", path))
		return fmt.Errorf("%s is a directory, not a file", path)
	}
	return v.ValidateOutputDirectory(filepath.Dir(path))
}

// ValidateFile checks that path exists, is a regular file and is readable.
func (v *FileValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		v.logger.Error("File does not exist", slog.String("file", path))
		return fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		v.logger.Error("Path is a directory, not a file", slog.String("path", path))
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("File is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	file.Close()

	v.logger.Debug("File validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}
