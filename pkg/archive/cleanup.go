package archive

import (
	"os"
	"path/filepath"
	"time"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/plog"
)

// staleTempAge is how old a temp archive must be before RemoveStaleTemps deletes it.
// Files younger than this may still belong to a run that has not taken the lock yet.
var staleTempAge = time.Minute

// RemoveStaleTemps deletes temp archives in dir left behind by runs that never
// finished. The caller must hold the backup directory lock. It returns the number
// of files removed; failures are logged and skipped.
func RemoveStaleTemps(dir string) int {
	pattern := filepath.Join(dir, TempFilePattern)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		plog.Warn("Failed to list temporary archives", "pattern", pattern, "error", err)
		return 0
	}

	threshold := time.Now().Add(-staleTempAge)
	removed := 0
	for _, m := range matches {
		info, err := os.Lstat(m)
		if err != nil || !info.Mode().IsRegular() || info.ModTime().After(threshold) {
			continue
		}
		plog.Info("[-] Removing leftover temporary archive", "path", m)
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove temporary archive", "path", m, "error", err)
			continue
		}
		removed++
	}
	return removed
}
