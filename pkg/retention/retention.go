// Package retention deletes dated backups, remote and local, once they are older
// than the configured number of days.
package retention

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/hints"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/plog"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/remote"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/util"
)

// ErrNothingToPurge is returned, wrapped, when a pass finds nothing to delete.
var ErrNothingToPurge = hints.New("nothing to purge")

// Report lists what a purge deleted.
type Report struct {
	RemoteDeleted []string
	LocalDeleted  []string
}

// Deleted reports whether at least one artifact was removed.
func (r Report) Deleted() bool {
	return len(r.RemoteDeleted) > 0 || len(r.LocalDeleted) > 0
}

// Policy applies an age threshold to local and remote artifacts.
type Policy struct {
	store         remote.Store
	thresholdDays int
	metrics       Metrics

	// removeLocal allows mocking the filesystem for testing.
	removeLocal func(path string) error
}

// NewPolicy creates a policy deleting artifacts older than thresholdDays from store
// and from the local backup directory.
func NewPolicy(store remote.Store, thresholdDays int, metrics Metrics) *Policy {
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &Policy{
		store:         store,
		thresholdDays: thresholdDays,
		metrics:       metrics,
		removeLocal:   removeArtifactFile,
	}
}

// Purge deletes every artifact whose age in days exceeds the threshold. A local
// artifact dated the same day as pendingName is deleted regardless of its age,
// so the new archive can take its place.
//
// When nothing is deleted the returned error wraps ErrNothingToPurge, which is a hint.
func (p *Policy) Purge(ctx context.Context, now time.Time, local []LocalArtifact, remoteArtifacts []remote.Container, pendingName string) (Report, error) {
	var report Report

	pendingDate, err := ParseArtifactDate(pendingName)
	if err != nil {
		return report, err
	}

	for _, c := range remoteArtifacts {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		p.metrics.AddRemoteEvaluated(1)

		date, err := ParseArtifactDate(c.Name)
		if err != nil {
			return report, err
		}
		age := AgeDays(now, date)
		if age <= p.thresholdDays {
			plog.Debug("Keeping remote backup", "name", c.Name, "age_days", age)
			continue
		}

		plog.Info("[-] Deleting remote backup", "name", c.Name, "age_days", age, "location", p.store.Location())
		if err := p.store.Remove(ctx, c.Name); err != nil {
			p.metrics.AddDeleteFailed(1)
			return report, err
		}
		p.metrics.AddRemoteDeleted(1)
		report.RemoteDeleted = append(report.RemoteDeleted, c.Name)
	}

	for _, a := range local {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		p.metrics.AddLocalEvaluated(1)

		date, err := ParseArtifactDate(a.Name)
		if err != nil {
			return report, err
		}
		age := AgeDays(now, date)
		collides := date.Equal(pendingDate)
		if age <= p.thresholdDays && !collides {
			plog.Debug("Keeping local backup", "name", a.Name, "age_days", age)
			continue
		}

		if collides {
			plog.Info("[-] Deleting local backup from the same day", "name", a.Name, "path", a.Path)
		} else {
			plog.Info("[-] Deleting local backup", "name", a.Name, "age_days", age, "path", a.Path)
		}
		if err := p.removeLocal(a.Path); err != nil {
			p.metrics.AddDeleteFailed(1)
			return report, fmt.Errorf("failed to delete local backup %s: %w", a.Path, err)
		}
		p.metrics.AddLocalDeleted(1)
		report.LocalDeleted = append(report.LocalDeleted, a.Name)
	}

	if !report.Deleted() {
		return report, fmt.Errorf("no remote or local backups older than %d %s found: %w",
			p.thresholdDays, util.Pluralize(p.thresholdDays, "day", "days"), ErrNothingToPurge)
	}
	return report, nil
}

// removeArtifactFile deletes a single archive file. Directories are refused, even
// when their name parses as a date.
func removeArtifactFile(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a backup archive", path)
	}
	return os.Remove(path)
}
