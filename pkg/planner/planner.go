package planner

import (
	"fmt"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/archive"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/config"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/remote"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/retention"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/selection"
)

type BackupPlan struct {
	BackupDir string
	Metrics   bool

	Retention *retention.Plan
	Selection *selection.Plan
	Archive   *archive.Plan
	Remote    remote.Options
}

func GenerateBackupPlan(cfg config.Config) (*BackupPlan, error) {
	format, err := archive.ParseFormat(cfg.ArchiveFormat)
	if err != nil {
		return nil, err
	}
	if cfg.BackupDir == "" {
		return nil, fmt.Errorf("backup directory is not set")
	}

	var rules []selection.IncludeRule
	for _, group := range cfg.FilesToBackup {
		for _, include := range group.Include {
			rules = append(rules, selection.IncludeRule{
				Pattern: include,
				Exclude: append([]string(nil), group.Exclude...),
			})
		}
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("no include rules configured")
	}

	return &BackupPlan{
		BackupDir: cfg.BackupDir,
		Metrics:   cfg.Metrics,
		Retention: &retention.Plan{
			MaxAgeDays: cfg.MaxBackupAgeDays,
			Metrics:    cfg.Metrics,
		},
		Selection: &selection.Plan{
			Rules: rules,
			Exclusions: selection.ExclusionSet{
				Files: cfg.FileExclusions(),
				Dirs:  cfg.DirExclusions(),
			},
			Metrics: cfg.Metrics,
		},
		Archive: &archive.Plan{
			Format:       format,
			BufferSizeKB: cfg.BufferSizeKB,
			Metrics:      cfg.Metrics,
		},
		Remote: remote.Options{
			Type:       cfg.Remote.Type,
			Name:       cfg.Remote.Name,
			ConfigPath: cfg.Remote.ConfigPath,
			Binary:     cfg.Remote.Binary,
			ExtraArgs:  append([]string(nil), cfg.Remote.ExtraArgs...),
			S3: remote.S3Options{
				Endpoint:  cfg.Remote.S3.Endpoint,
				Bucket:    cfg.Remote.S3.Bucket,
				Prefix:    cfg.Remote.S3.Prefix,
				Region:    cfg.Remote.S3.Region,
				AccessKey: cfg.Remote.S3.AccessKey,
				SecretKey: cfg.Remote.S3.SecretKey,
				UseSSL:    cfg.Remote.S3.UseSSL,
			},
		},
	}, nil
}
