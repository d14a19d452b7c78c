package planner

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/archive"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/config"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/selection"
)

func validConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.NewDefault()
	cfg.BackupDir = filepath.Join(t.TempDir(), "backups")
	cfg.MaxBackupAgeDays = 7
	cfg.Remote.Name = "crypt"
	cfg.Remote.ExtraArgs = []string{"--fast-list"}
	cfg.ExcludeDirs = []string{"node_modules"}
	cfg.ExcludeFiles = []string{"*.tmp"}
	cfg.GlobalExclude = []string{".git"}
	cfg.FilesToBackup = []config.IncludeGroup{
		{Include: []string{"/home/me/docs", "/home/me/*.txt"}, Exclude: []string{"cache"}},
		{Include: []string{"/etc/hosts"}},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config should be valid: %v", err)
	}
	return cfg
}

func TestGenerateBackupPlan(t *testing.T) {
	cfg := validConfig(t)

	plan, err := GenerateBackupPlan(cfg)
	if err != nil {
		t.Fatalf("GenerateBackupPlan failed: %v", err)
	}

	if plan.BackupDir != cfg.BackupDir || plan.Retention.MaxAgeDays != 7 {
		t.Errorf("unexpected plan basics: %+v", plan)
	}
	if plan.Archive.Format != archive.Zip || plan.Archive.BufferSizeKB != 256 {
		t.Errorf("unexpected archive plan: %+v", plan.Archive)
	}

	wantRules := []selection.IncludeRule{
		{Pattern: "/home/me/docs", Exclude: []string{"cache"}},
		{Pattern: "/home/me/*.txt", Exclude: []string{"cache"}},
		{Pattern: "/etc/hosts", Exclude: nil},
	}
	if !reflect.DeepEqual(plan.Selection.Rules, wantRules) {
		t.Errorf("expected rules %+v, got %+v", wantRules, plan.Selection.Rules)
	}

	if want := []string{"*.tmp", ".git"}; !reflect.DeepEqual(plan.Selection.Exclusions.Files, want) {
		t.Errorf("expected file exclusions %v, got %v", want, plan.Selection.Exclusions.Files)
	}
	dirs := plan.Selection.Exclusions.Dirs
	if len(dirs) != 3 || dirs[1] != "node_modules" || dirs[2] != ".git" {
		t.Errorf("expected backup dir, node_modules and .git in dir exclusions, got %v", dirs)
	}

	if plan.Remote.Name != "crypt" || plan.Remote.Binary != "rclone" || !reflect.DeepEqual(plan.Remote.ExtraArgs, []string{"--fast-list"}) {
		t.Errorf("unexpected remote options: %+v", plan.Remote)
	}
}

func TestGenerateBackupPlan_Errors(t *testing.T) {
	t.Run("Unknown format", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.ArchiveFormat = "rar"
		if _, err := GenerateBackupPlan(cfg); err == nil {
			t.Error("expected an error for an unknown format")
		}
	})

	t.Run("No rules", func(t *testing.T) {
		cfg := validConfig(t)
		cfg.FilesToBackup = nil
		if _, err := GenerateBackupPlan(cfg); err == nil {
			t.Error("expected an error without include rules")
		}
	})
}
