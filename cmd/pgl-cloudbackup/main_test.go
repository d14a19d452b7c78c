package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/config"
)

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("Version", func(t *testing.T) {
		if err := run(ctx, []string{"version"}); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("Flags are rejected", func(t *testing.T) {
		if err := run(ctx, []string{"-config", "x.json"}); err == nil {
			t.Error("expected an error for a flag argument")
		}
	})

	t.Run("Missing configuration file", func(t *testing.T) {
		err := run(ctx, []string{filepath.Join(t.TempDir(), "missing.json")})
		if !errors.Is(err, config.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("Too many arguments", func(t *testing.T) {
		if err := run(ctx, []string{"a.json", "b.json"}); err == nil {
			t.Error("expected an error for two positional arguments")
		}
	})
}
