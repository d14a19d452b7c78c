package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/archive"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/hints"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/lockfile"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/planner"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/plog"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/preflight"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/remote"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/retention"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/selection"
)

// Runner executes backup plans against one remote store.
type Runner struct {
	store remote.Store

	// now allows pinning the run date for testing.
	now func() time.Time
}

// NewRunner creates a runner uploading to store.
func NewRunner(store remote.Store) *Runner {
	return &Runner{store: store, now: time.Now}
}

// ExecuteBackup runs one cycle: purge, select, archive, upload. now is read once and
// names the new artifact as well as dating the retention pass.
func (r *Runner) ExecuteBackup(ctx context.Context, p *planner.BackupPlan) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := r.now()
	artifactName := retention.ArtifactName(now)
	dest := filepath.Join(p.BackupDir, artifactName+p.Archive.Format.Extension())

	plog.Info("[>] Starting backup", "artifact", artifactName, "backup_dir", p.BackupDir, "remote", r.store.Location())

	if err := preflight.CheckBackupDirAccessible(p.BackupDir); err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}
	if err := preflight.EnsureBackupDirWritable(p.BackupDir); err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}

	releaseLock, err := r.acquireLock(ctx, p.BackupDir)
	if err != nil {
		return err
	}
	if releaseLock == nil {
		return nil
	}
	defer releaseLock()

	if n := archive.RemoveStaleTemps(p.BackupDir); n > 0 {
		plog.Info("[=] Removed leftover temporary archives", "count", n)
	}

	if err := r.purge(ctx, now, artifactName, p); err != nil {
		return err
	}

	r.logFreeSpace(p.BackupDir)

	files, err := r.selectFiles(ctx, p.Selection)
	if err != nil {
		return err
	}

	if err := r.writeArchive(ctx, dest, files, p.Archive); err != nil {
		return err
	}

	plog.Info("[^] Uploading archive", "path", dest, "remote", r.store.Location(), "container", artifactName)
	if err := r.store.Sync(ctx, dest, artifactName); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	plog.Info("[=] Upload finished", "container", artifactName)

	plog.Info("[=] Backup completed", "artifact", artifactName)
	return nil
}

// acquireLock takes the lease on the backup directory. A nil release function with a
// nil error means another run holds the lease and this run should end quietly.
func (r *Runner) acquireLock(ctx context.Context, dir string) (func(), error) {
	appID := fmt.Sprintf("%s:%s", buildinfo.Name, dir)

	plog.Debug("Attempting to acquire lock", "path", dir)
	lock, err := lockfile.Acquire(ctx, dir, appID)
	if err != nil {
		var held *lockfile.HeldError
		if errors.As(err, &held) {
			plog.Warn("A backup is already running for this directory, skipping run", "details", held.Error())
			return nil, nil
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	plog.Debug("Lock acquired")
	return lock.Release, nil
}

func (r *Runner) purge(ctx context.Context, now time.Time, artifactName string, p *planner.BackupPlan) error {
	plog.Info("[~] Purging old backups", "max_age_days", p.Retention.MaxAgeDays)

	var m retention.Metrics = &retention.NoopMetrics{}
	if p.Retention.Metrics {
		m = &retention.RetentionMetrics{}
	}

	remoteArtifacts, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("retention failed: %w", err)
	}
	localArtifacts, err := retention.ListLocal(p.BackupDir)
	if err != nil {
		return fmt.Errorf("retention failed: %w", err)
	}

	report, err := retention.NewPolicy(r.store, p.Retention.MaxAgeDays, m).Purge(ctx, now, localArtifacts, remoteArtifacts, artifactName)
	m.LogSummary("Purge summary")
	if err != nil {
		if hints.Is(err, retention.ErrNothingToPurge) {
			plog.Info("[=] Nothing to purge", "details", err.Error())
			return nil
		}
		return fmt.Errorf("retention failed: %w", err)
	}
	plog.Info("[=] Purge finished", "remote_deleted", len(report.RemoteDeleted), "local_deleted", len(report.LocalDeleted))
	return nil
}

func (r *Runner) logFreeSpace(dir string) {
	free, err := preflight.AvailableBytes(dir)
	if err != nil {
		plog.Warn("Could not determine free space", "error", err)
		return
	}
	plog.Info("Free space in backup directory", "path", dir, "available", humanize.IBytes(free))
}

func (r *Runner) selectFiles(ctx context.Context, p *selection.Plan) ([]string, error) {
	plog.Info("[~] Selecting files", "rules", len(p.Rules))

	var m selection.Metrics = &selection.NoopMetrics{}
	if p.Metrics {
		m = &selection.SelectionMetrics{}
	}

	result, err := selection.NewEngine(m).Resolve(ctx, p.Rules, p.Exclusions)
	if err != nil {
		return nil, fmt.Errorf("selection failed: %w", err)
	}
	m.LogSummary("Selection summary")

	if len(result.Files) == 0 {
		plog.Warn("No files selected, the archive will be empty")
	}
	plog.Info("[=] Selection finished", "files", len(result.Files), "skipped", len(result.Skipped))
	return result.Files, nil
}

func (r *Runner) writeArchive(ctx context.Context, dest string, files []string, p *archive.Plan) error {
	plog.Info("[+] Writing archive", "path", dest, "format", p.Format)

	var m archive.Metrics = &archive.NoopMetrics{}
	if p.Metrics {
		m = &archive.ArchiveMetrics{}
	}

	summary, err := archive.NewWriter(p.Format, p.BufferSizeKB, m).Write(ctx, dest, files)
	if err != nil {
		return fmt.Errorf("archive failed: %w", err)
	}
	m.LogSummary("Archive summary")

	plog.Info("[=] Archive written",
		"path", summary.Path,
		"files", summary.Files,
		"skipped", len(summary.Skipped),
		"read", humanize.IBytes(uint64(summary.BytesRead)),
		"size", humanize.IBytes(uint64(summary.BytesWritten)))
	return nil
}
