package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/plog"
)

// stderrTailLines is how many trailing stderr lines are kept for error messages.
const stderrTailLines = 5

// CommandContext matches exec.CommandContext and can be replaced in tests.
type CommandContext func(ctx context.Context, name string, arg ...string) *exec.Cmd

// Rclone is a Store backed by the rclone binary. Containers are the top-level
// directories of the configured remote.
type Rclone struct {
	binary     string
	remote     string
	commonArgs []string

	// commandContext allows mocking os/exec for testing.
	commandContext CommandContext
}

// NewRclone creates an rclone store for remote name. A non-empty configPath is passed
// as --config=<path>; extraArgs are appended to every call verbatim.
func NewRclone(binary, name, configPath string, extraArgs []string, commandContext CommandContext) *Rclone {
	if binary == "" {
		binary = "rclone"
	}
	if commandContext == nil {
		commandContext = exec.CommandContext
	}
	var common []string
	if configPath != "" {
		common = append(common, "--config="+configPath)
	}
	common = append(common, extraArgs...)
	return &Rclone{
		binary:         binary,
		remote:         name,
		commonArgs:     common,
		commandContext: commandContext,
	}
}

func (r *Rclone) Location() string { return r.remote + ":" }

func (r *Rclone) target(container string) string {
	return r.remote + ":" + container
}

// lsjsonEntry is one element of `rclone lsjson` output.
type lsjsonEntry struct {
	Path    string    `json:"Path"`
	Name    string    `json:"Name"`
	Size    int64     `json:"Size"`
	ModTime time.Time `json:"ModTime"`
	IsDir   bool      `json:"IsDir"`
}

func (r *Rclone) List(ctx context.Context) ([]Container, error) {
	out, err := r.run(ctx, "lsjson", r.target(""))
	if err != nil {
		return nil, &Error{Op: "list", Err: err}
	}

	var entries []lsjsonEntry
	if err := json.Unmarshal(bytes.TrimSpace(out), &entries); err != nil {
		return nil, &Error{Op: "list", Err: fmt.Errorf("unexpected lsjson output: %w", err)}
	}

	containers := make([]Container, 0, len(entries))
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = e.Path
		}
		containers = append(containers, Container{Name: name, Size: e.Size, ModTime: e.ModTime, IsDir: e.IsDir})
	}
	return containers, nil
}

func (r *Rclone) Remove(ctx context.Context, name string) error {
	if name == "" {
		return &Error{Op: "remove", Err: errors.New("refusing to purge the remote root")}
	}
	if _, err := r.run(ctx, "purge", r.target(name)); err != nil {
		return &Error{Op: "remove", Container: name, Err: err}
	}
	return nil
}

func (r *Rclone) Sync(ctx context.Context, localPath, name string) error {
	if _, err := r.run(ctx, "sync", localPath, r.target(name)); err != nil {
		return &Error{Op: "sync", Container: name, Err: err}
	}
	return nil
}

// run executes one rclone subcommand and returns its stdout. stderr is forwarded to
// the log line by line while the command runs.
func (r *Rclone) run(ctx context.Context, subcommand string, args ...string) ([]byte, error) {
	argv := append([]string{subcommand}, args...)
	argv = append(argv, r.commonArgs...)

	cmd := r.commandContext(ctx, r.binary, argv...)
	configureCommand(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach stderr: %w", err)
	}

	plog.Debug("Executing rclone", "binary", r.binary, "args", strings.Join(argv, " "))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", r.binary, err)
	}

	var out bytes.Buffer
	var tail []string
	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(&out, stdout)
		return err
	})
	g.Go(func() error {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			plog.Notice("rclone", "command", subcommand, "output", line)
			tail = append(tail, line)
			if len(tail) > stderrTailLines {
				tail = tail[1:]
			}
		}
		return scanner.Err()
	})
	pumpErr := g.Wait()
	waitErr := cmd.Wait()

	if waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if len(tail) > 0 {
			return nil, fmt.Errorf("rclone %s: %w: %s", subcommand, waitErr, strings.Join(tail, " | "))
		}
		return nil, fmt.Errorf("rclone %s: %w", subcommand, waitErr)
	}
	if pumpErr != nil {
		return nil, fmt.Errorf("rclone %s: reading output: %w", subcommand, pumpErr)
	}
	return out.Bytes(), nil
}
