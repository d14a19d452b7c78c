package retention

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/archive"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/lockfile"
)

// DateLayout is the artifact naming layout, YYYY-MM-DD.
const DateLayout = "2006-01-02"

// DateParseError reports an artifact whose name is not a YYYY-MM-DD date.
type DateParseError struct {
	Name string
	Err  error
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("artifact %q is not named after a YYYY-MM-DD date: %v", e.Name, e.Err)
}

func (e *DateParseError) Unwrap() error { return e.Err }

// LocalArtifact is one entry of the backup directory.
type LocalArtifact struct {
	Name string // file name, e.g. "2024-03-01.zip"
	Path string
}

// ArtifactName returns the artifact name for a run started at now.
func ArtifactName(now time.Time) string {
	return now.Format(DateLayout)
}

// ParseArtifactDate interprets name as a calendar date. A known archive extension
// is stripped first, so "2024-03-01.tar.gz" and the remote container "2024-03-01"
// parse to the same day.
func ParseArtifactDate(name string) (time.Time, error) {
	base, _ := archive.TrimExtension(name)
	d, err := time.Parse(DateLayout, base)
	if err != nil {
		return time.Time{}, &DateParseError{Name: name, Err: err}
	}
	return d, nil
}

// AgeDays returns the number of calendar days between date and now.
// The time of day of now is ignored.
func AgeDays(now, date time.Time) int {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return int(today.Sub(day).Hours() / 24)
}

// IsSystemEntry reports whether name is bookkeeping of a running or crashed backup
// rather than an artifact.
func IsSystemEntry(name string) bool {
	if lockfile.IsLockEntry(name) {
		return true
	}
	ok, _ := filepath.Match(archive.TempFilePattern, name)
	return ok
}

// ListLocal returns the artifacts in dir sorted by name. A missing directory holds
// no artifacts.
func ListLocal(dir string) ([]LocalArtifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory %s: %w", dir, err)
	}

	var artifacts []LocalArtifact
	for _, e := range entries {
		if IsSystemEntry(e.Name()) {
			continue
		}
		artifacts = append(artifacts, LocalArtifact{Name: e.Name(), Path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Name < artifacts[j].Name })
	return artifacts, nil
}
