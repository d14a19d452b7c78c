package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/config"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/engine"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/flagparse"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/planner"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/plog"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/remote"
)

// newStore builds the remote store of a plan. Tests replace it with an in-memory store.
var newStore = remote.New

// RunBackup loads the configuration named in flagMap and runs one backup cycle.
func RunBackup(ctx context.Context, flagMap map[string]interface{}) error {
	configPath, ok := flagMap[flagparse.ConfigKey].(string)
	if !ok || configPath == "" {
		return fmt.Errorf("a configuration file path is required to run a backup")
	}

	runConfig, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// CRITICAL: Validate the config before anything touches the disk or the remote.
	if err := runConfig.Validate(); err != nil {
		return err
	}

	plog.SetLevel(plog.LevelFromString(runConfig.LogLevel))
	runConfig.LogSummary()

	backupPlan, err := planner.GenerateBackupPlan(runConfig)
	if err != nil {
		return err
	}

	store, err := newStore(backupPlan.Remote)
	if err != nil {
		return fmt.Errorf("failed to set up remote store: %w", err)
	}

	runner := engine.NewRunner(store)

	startTime := time.Now()
	err = runner.ExecuteBackup(ctx, backupPlan)
	duration := time.Since(startTime).Round(time.Millisecond)
	if err != nil {
		return err // The error will be logged with full details by main()
	}
	plog.Info(buildinfo.Name+" finished successfully.", "duration", duration)
	return nil
}
