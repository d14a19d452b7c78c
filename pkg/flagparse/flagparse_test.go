package flagparse

import (
	"bytes"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	var out bytes.Buffer
	orig := usageOutput
	usageOutput = &out
	t.Cleanup(func() { usageOutput = orig })

	testCases := []struct {
		name        string
		args        []string
		wantCommand Command
		wantConfig  string
		wantErr     bool
		wantUsage   bool
	}{
		{name: "No arguments prints usage", args: nil, wantCommand: None, wantUsage: true},
		{name: "Help word", args: []string{"help"}, wantCommand: None, wantUsage: true},
		{name: "Help flag", args: []string{"--help"}, wantCommand: None, wantUsage: true},
		{name: "Bare config path", args: []string{"/etc/backup.json"}, wantCommand: Backup, wantConfig: "/etc/backup.json"},
		{name: "Relative config path", args: []string{"config.yaml"}, wantCommand: Backup, wantConfig: "config.yaml"},
		{name: "Explicit backup command", args: []string{"backup", "cfg.toml"}, wantCommand: Backup, wantConfig: "cfg.toml"},
		{name: "Backup command is case insensitive", args: []string{"BACKUP", "cfg.json"}, wantCommand: Backup, wantConfig: "cfg.json"},
		{name: "Version", args: []string{"version"}, wantCommand: Version},
		{name: "Version with extra argument", args: []string{"version", "x"}, wantErr: true},
		{name: "Backup without path", args: []string{"backup"}, wantErr: true},
		{name: "Backup with two paths", args: []string{"backup", "a", "b"}, wantErr: true},
		{name: "Two positional paths", args: []string{"a.json", "b.json"}, wantErr: true},
		{name: "Flags are rejected", args: []string{"-config", "a.json"}, wantErr: true},
		{name: "Blank path", args: []string{"  "}, wantErr: true},
		{name: "Config file named like a command, with directory", args: []string{"./version"}, wantCommand: Backup, wantConfig: "./version"},
		{name: "Config file named like a command, after backup", args: []string{"backup", "version"}, wantCommand: Backup, wantConfig: "version"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out.Reset()
			cmd, args, err := Parse(tc.args)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got command %v", cmd)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cmd != tc.wantCommand {
				t.Errorf("expected command %v, got %v", tc.wantCommand, cmd)
			}
			if tc.wantConfig != "" {
				if got, _ := args[ConfigKey].(string); got != tc.wantConfig {
					t.Errorf("expected config path %q, got %q", tc.wantConfig, got)
				}
			}
			if tc.wantUsage && !strings.Contains(out.String(), "Usage:") {
				t.Errorf("expected usage output, got %q", out.String())
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	if c, err := ParseCommand("backup"); err != nil || c != Backup {
		t.Errorf("ParseCommand(backup) = %v, %v", c, err)
	}
	if _, err := ParseCommand("none"); err == nil {
		t.Error("expected 'none' to be rejected")
	}
	if _, err := ParseCommand("restore"); err == nil {
		t.Error("expected unknown command to be rejected")
	}
	if got := Command(42).String(); got != "unknown_command(42)" {
		t.Errorf("unexpected String() for unknown command: %s", got)
	}
}

func TestUsageExplainsReservedNames(t *testing.T) {
	var out bytes.Buffer
	printUsage(&out)
	if !strings.Contains(out.String(), "./version") {
		t.Errorf("expected usage to explain passing a file named like a command, got:\n%s", out.String())
	}
}
