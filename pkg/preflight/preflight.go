// Package preflight checks the backup directory before a run touches anything.
package preflight

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/util"
)

// writeTestPattern matches the in-flight archive pattern so a leftover from a crash
// is never mistaken for an artifact.
const writeTestPattern = "pgl-cloudbackup-writetest-*.tmp"

// CheckBackupDirAccessible verifies that dir is usable before it is created or written.
// An existing dir must be a directory. A missing dir needs an accessible directory as
// its deepest existing ancestor so a later MkdirAll can succeed.
func CheckBackupDirAccessible(dir string) error {
	if err := checkVolume(dir); err != nil {
		return err
	}

	info, err := os.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("backup path exists but is not a directory: %s", dir)
		}
		return nil
	case !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("cannot access backup directory %s: %w", dir, err)
	}

	ancestor := filepath.Dir(dir)
	for {
		info, err := os.Stat(ancestor)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("ancestor of backup directory is not a directory: %s", ancestor)
			}
			return nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("cannot access ancestor directory %s: %w", ancestor, err)
		}
		parent := filepath.Dir(ancestor)
		if parent == ancestor {
			return fmt.Errorf("no existing ancestor for backup directory %s", dir)
		}
		ancestor = parent
	}
}

// EnsureBackupDirWritable creates dir if needed and proves it writable by creating
// and removing a file in it.
func EnsureBackupDirWritable(dir string) error {
	if err := os.MkdirAll(dir, util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create backup directory %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, writeTestPattern)
	if err != nil {
		return fmt.Errorf("backup directory %s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("failed to remove write test file %s: %w", name, err)
	}
	return nil
}

// AvailableBytes returns the free space available to the current user on the
// filesystem holding dir.
func AvailableBytes(dir string) (uint64, error) {
	n, err := availableBytes(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to query free space of %s: %w", dir, err)
	}
	return n, nil
}
