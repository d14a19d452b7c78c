package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/config"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/lockfile"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/planner"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/remote"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/retention"
)

var runDate = time.Date(2024, 3, 10, 2, 0, 0, 0, time.Local)

type testEnv struct {
	src       string
	backupDir string
	plan      *planner.BackupPlan
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

// newTestEnv creates a source tree and a backup directory nested inside it, so the
// backup directory exclusion is exercised on every run.
func newTestEnv(t *testing.T, localArtifacts ...string) *testEnv {
	t.Helper()
	root := t.TempDir()
	src := filepath.Join(root, "project")
	backupDir := filepath.Join(src, "backups")

	writeFile(t, filepath.Join(src, "src", "index.js"), "console.log(1)")
	writeFile(t, filepath.Join(src, "node_modules", "pkg", "index.js"), "module")
	writeFile(t, filepath.Join(src, "notes.tmp"), "scratch")
	for _, name := range localArtifacts {
		writeFile(t, filepath.Join(backupDir, name), "old archive")
	}

	cfg := config.NewDefault()
	cfg.BackupDir = backupDir
	cfg.MaxBackupAgeDays = 7
	cfg.Metrics = true
	cfg.Remote.Name = "memory"
	cfg.ExcludeDirs = []string{"node_modules"}
	cfg.ExcludeFiles = []string{"*.tmp"}
	cfg.FilesToBackup = []config.IncludeGroup{{Include: []string{filepath.ToSlash(src)}}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	plan, err := planner.GenerateBackupPlan(cfg)
	if err != nil {
		t.Fatalf("failed to generate plan: %v", err)
	}
	return &testEnv{src: src, backupDir: backupDir, plan: plan}
}

func newTestRunner(store remote.Store) *Runner {
	r := NewRunner(store)
	r.now = func() time.Time { return runDate }
	return r
}

func zipEntries(t *testing.T, path string) []string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("failed to open archive %s: %v", path, err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return names
}

func localNames(t *testing.T, dir string) []string {
	t.Helper()
	artifacts, err := retention.ListLocal(dir)
	if err != nil {
		t.Fatalf("failed to list %s: %v", dir, err)
	}
	var names []string
	for _, a := range artifacts {
		names = append(names, a.Name)
	}
	return names
}

func TestExecuteBackup(t *testing.T) {
	env := newTestEnv(t, "2024-03-01.zip", "2024-03-04.zip")
	store := remote.NewMemory("2024-03-01", "2024-03-09")

	if err := newTestRunner(store).ExecuteBackup(context.Background(), env.plan); err != nil {
		t.Fatalf("ExecuteBackup failed: %v", err)
	}

	wantCalls := []string{"list", "remove 2024-03-01", "sync 2024-03-10"}
	if !reflect.DeepEqual(store.Calls(), wantCalls) {
		t.Errorf("expected remote calls %v, got %v", wantCalls, store.Calls())
	}

	if want := []string{"2024-03-04.zip", "2024-03-10.zip"}; !reflect.DeepEqual(localNames(t, env.backupDir), want) {
		t.Errorf("expected local artifacts %v, got %v", want, localNames(t, env.backupDir))
	}

	dest := filepath.Join(env.backupDir, "2024-03-10.zip")
	if p, ok := store.SyncedPath("2024-03-10"); !ok || p != dest {
		t.Errorf("expected %s to be synced, got %q", dest, p)
	}

	entries := zipEntries(t, dest)
	if len(entries) != 1 || !strings.HasSuffix(entries[0], "project/src/index.js") {
		t.Errorf("expected only src/index.js in the archive, got %v", entries)
	}

	if _, err := os.Stat(filepath.Join(env.backupDir, lockfile.LockFileName)); !os.IsNotExist(err) {
		t.Error("expected the lock to be released")
	}
}

func TestExecuteBackup_SameDayRerun(t *testing.T) {
	env := newTestEnv(t, "2024-03-10.zip")
	store := remote.NewMemory("2024-03-10")

	if err := newTestRunner(store).ExecuteBackup(context.Background(), env.plan); err != nil {
		t.Fatalf("ExecuteBackup failed: %v", err)
	}

	// The remote same-day container is replaced by the sync, not removed.
	wantCalls := []string{"list", "sync 2024-03-10"}
	if !reflect.DeepEqual(store.Calls(), wantCalls) {
		t.Errorf("expected remote calls %v, got %v", wantCalls, store.Calls())
	}
	if entries := zipEntries(t, filepath.Join(env.backupDir, "2024-03-10.zip")); len(entries) != 1 {
		t.Errorf("expected the stale archive to be replaced, got entries %v", entries)
	}
}

func TestExecuteBackup_RemovesLeftoverTempArchives(t *testing.T) {
	env := newTestEnv(t)
	leftover := filepath.Join(env.backupDir, "pgl-cloudbackup-42.tmp")
	writeFile(t, leftover, "half written")
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(leftover, old, old); err != nil {
		t.Fatal(err)
	}

	if err := newTestRunner(remote.NewMemory()).ExecuteBackup(context.Background(), env.plan); err != nil {
		t.Fatalf("ExecuteBackup failed: %v", err)
	}
	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Errorf("expected leftover temp archive to be removed, stat err: %v", err)
	}
	if want := []string{"2024-03-10.zip"}; !reflect.DeepEqual(localNames(t, env.backupDir), want) {
		t.Errorf("expected local artifacts %v, got %v", want, localNames(t, env.backupDir))
	}
}

func TestExecuteBackup_MalformedRemoteName(t *testing.T) {
	env := newTestEnv(t)
	store := remote.NewMemory("not-a-date")

	err := newTestRunner(store).ExecuteBackup(context.Background(), env.plan)
	var dpe *retention.DateParseError
	if !errors.As(err, &dpe) {
		t.Fatalf("expected a DateParseError, got %v", err)
	}
	if names := localNames(t, env.backupDir); len(names) != 0 {
		t.Errorf("expected no archive to be written, got %v", names)
	}
	if want := []string{"list"}; !reflect.DeepEqual(store.Calls(), want) {
		t.Errorf("expected only a listing, got %v", store.Calls())
	}
}

func TestExecuteBackup_RemoteFailures(t *testing.T) {
	testCases := []struct {
		name      string
		failOp    string
		wantLocal []string
	}{
		{name: "List", failOp: "list", wantLocal: nil},
		{name: "Sync", failOp: "sync", wantLocal: []string{"2024-03-10.zip"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			store := remote.NewMemory()
			store.Fail[tc.failOp] = errors.New("connection reset")

			err := newTestRunner(store).ExecuteBackup(context.Background(), env.plan)
			var rerr *remote.Error
			if !errors.As(err, &rerr) || rerr.Op != tc.failOp {
				t.Fatalf("expected a %s *remote.Error, got %v", tc.failOp, err)
			}
			if got := localNames(t, env.backupDir); !reflect.DeepEqual(got, tc.wantLocal) {
				t.Errorf("expected local artifacts %v, got %v", tc.wantLocal, got)
			}
		})
	}
}

func TestExecuteBackup_LockHeld(t *testing.T) {
	env := newTestEnv(t)
	if err := os.MkdirAll(env.backupDir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	lock, err := lockfile.Acquire(context.Background(), env.backupDir, "other-run")
	if err != nil {
		t.Fatalf("failed to take the lock: %v", err)
	}
	defer lock.Release()

	store := remote.NewMemory("2024-01-01")
	if err := newTestRunner(store).ExecuteBackup(context.Background(), env.plan); err != nil {
		t.Fatalf("expected a held lock to end the run quietly, got %v", err)
	}
	if len(store.Calls()) != 0 {
		t.Errorf("expected no remote calls, got %v", store.Calls())
	}
}

func TestExecuteBackup_Cancelled(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := remote.NewMemory()
	if err := newTestRunner(store).ExecuteBackup(ctx, env.plan); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(store.Calls()) != 0 {
		t.Errorf("expected no remote calls, got %v", store.Calls())
	}
}

func TestExecuteBackup_BackupDirIsFile(t *testing.T) {
	env := newTestEnv(t)
	writeFile(t, env.backupDir, "not a dir")

	if err := newTestRunner(remote.NewMemory()).ExecuteBackup(context.Background(), env.plan); err == nil {
		t.Fatal("expected preflight to fail when the backup path is a file")
	}
}
