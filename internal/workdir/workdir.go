// Package workdir locates the temporary recording slot.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// RecordingFile is the name of the single recording slot.
	RecordingFile = "recording.pcm"
	// LogFile is the name of the screen's log file.
	LogFile = "memo.log"
)

// Root returns the base directory for working files.
// The path is expanded at runtime to resolve to:
//
//	$TMPDIR/alkime-memo
func Root() string {
	return filepath.Join(os.TempDir(), "alkime-memo")
}

// FilePath returns the path for a file in the working directory, unless
// override is set.
func FilePath(override, filename string) string {
	if override != "" {
		return override
	}

	return filepath.Join(Root(), filename)
}

// Prep ensures that the directory holding path exists.
func Prep(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create working directory %s: %w", dir, err)
	}

	return nil
}
