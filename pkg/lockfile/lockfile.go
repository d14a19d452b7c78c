package lockfile

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/plog"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/util"
)

// LockFileName is the lease file inside the backup directory.
const LockFileName = ".~pgl-cloudbackup.lock"

const maxAttempts = 3

var (
	heartbeatInterval = 1 * time.Minute
	staleAfter        = 3 * heartbeatInterval
	retryDelay        = 100 * time.Millisecond
)

// Owner is the content of the lease file.
type Owner struct {
	PID       int64     `json:"pid"`
	Hostname  string    `json:"hostname"`
	AppID     string    `json:"appID"`
	Heartbeat time.Time `json:"heartbeat"`
	Token     string    `json:"token"`
}

// HeldError is returned by Acquire when another live run holds the lease.
type HeldError struct {
	Owner Owner
	Age   time.Duration
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("backup directory is locked by PID %d on host '%s' (%s), last heartbeat %s ago",
		e.Owner.PID, e.Owner.Hostname, e.Owner.AppID, e.Age.Truncate(time.Second))
}

var (
	// ErrTakeoverLost means another process replaced a stale lease at the same time.
	ErrTakeoverLost = errors.New("lost race during stale lock takeover")
	// ErrCorrupt means the lease file stayed empty or unparsable across retries.
	ErrCorrupt = errors.New("lock file is corrupt or empty")
)

// Lock is a held lease. Release it exactly once; extra calls are no-ops.
type Lock struct {
	path  string
	owner Owner

	stop context.CancelFunc
	done chan struct{}
	once sync.Once
}

// IsLockEntry reports whether a directory entry name belongs to the lease: the lease
// file itself or one of its in-flight temp files.
func IsLockEntry(name string) bool {
	if name == LockFileName {
		return true
	}
	return strings.HasPrefix(name, LockFileName+".") && strings.HasSuffix(name, ".tmp")
}

// Acquire takes the lease on dir for appID. It returns *HeldError when a live lease
// exists. A lease whose heartbeat is older than staleAfter, or that cannot be parsed,
// is taken over. ctx bounds the acquisition only; the heartbeat runs until Release.
func Acquire(ctx context.Context, dir, appID string) (*Lock, error) {
	path := filepath.Join(dir, LockFileName)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		owner, err := newOwner(appID)
		if err != nil {
			return nil, err
		}

		err = createExclusive(path, owner)
		if err == nil {
			return start(path, owner), nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("failed to create lock file: %w", err)
		}

		current, err := readOwner(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Released between our create and read.
			continue
		case errors.Is(err, ErrCorrupt):
			plog.Warn("Found corrupt lock file, treating as stale", "path", path, "error", err)
		case err != nil:
			plog.Debug("Could not read lock file, retrying", "path", path, "error", err)
			time.Sleep(retryDelay)
			continue
		default:
			age := time.Since(current.Heartbeat)
			if age < staleAfter {
				return nil, &HeldError{Owner: current, Age: age}
			}
			plog.Warn("Found stale lock, attempting takeover", "pid", current.PID, "host", current.Hostname, "age", age.Truncate(time.Second))
		}

		if err := takeover(path, owner); err != nil {
			if errors.Is(err, ErrTakeoverLost) {
				plog.Debug("Lock takeover race lost, retrying")
			} else {
				plog.Warn("Lock takeover failed, retrying", "error", err)
			}
			time.Sleep(retryDelay)
			continue
		}
		return start(path, owner), nil
	}

	return nil, fmt.Errorf("failed to acquire lock after %d attempts", maxAttempts)
}

func newOwner(appID string) (Owner, error) {
	token := make([]byte, 16)
	if _, err := rand.Read(token); err != nil {
		return Owner{}, fmt.Errorf("failed to generate lock token: %w", err)
	}
	hostname, err := os.Hostname()
	if err != nil {
		return Owner{}, fmt.Errorf("failed to get hostname: %w", err)
	}
	return Owner{
		PID:       int64(os.Getpid()),
		Hostname:  hostname,
		AppID:     appID,
		Heartbeat: time.Now().UTC(),
		Token:     hex.EncodeToString(token),
	}, nil
}

func createExclusive(path string, owner Owner) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(owner, "", "  ")
	if err == nil {
		_, err = f.Write(data)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

// takeover replaces a stale lease and verifies by read-back that ours survived.
func takeover(path string, owner Owner) error {
	if err := writeAtomic(path, owner); err != nil {
		return err
	}
	current, err := readOwner(path)
	if err != nil {
		return fmt.Errorf("failed to read back lock file after takeover: %w", err)
	}
	if current.Token != owner.Token {
		return ErrTakeoverLost
	}
	plog.Debug("Took over stale lock", "path", path)
	return nil
}

func start(path string, owner Owner) *Lock {
	removeStaleTemps(path)

	ctx, cancel := context.WithCancel(context.Background())
	l := &Lock{path: path, owner: owner, stop: cancel, done: make(chan struct{})}
	go l.heartbeat(ctx)
	return l
}

func (l *Lock) heartbeat(ctx context.Context) {
	defer close(l.done)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.owner.Heartbeat = time.Now().UTC()
			if err := writeAtomic(l.path, l.owner); err != nil {
				plog.Warn("Heartbeat failed to update lock file", "error", err)
			}
		}
	}
}

// Release stops the heartbeat and removes the lease file.
func (l *Lock) Release() {
	l.once.Do(func() {
		l.stop()
		<-l.done
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
			return
		}
		plog.Debug("Lock released", "path", l.path)
	})
}

// writeAtomic writes owner to a temp file next to path and renames it into place.
func writeAtomic(path string, owner Owner) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp lock file: %w", err)
	}
	defer func() {
		if err := os.Remove(tmp.Name()); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove temporary lock file", "path", tmp.Name(), "error", err)
		}
	}()

	data, err := json.MarshalIndent(owner, "", "  ")
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to marshal lock content: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp lock file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp lock file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp lock file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to rename temp lock file: %w", err)
	}
	return nil
}

// readOwner reads the lease file, retrying while it is empty or half written.
func readOwner(path string) (Owner, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Owner{}, err
			}
			return Owner{}, fmt.Errorf("failed to read lock file: %w", err)
		}

		var owner Owner
		if len(data) == 0 {
			lastErr = errors.New("lock file is empty")
		} else if lastErr = json.Unmarshal(data, &owner); lastErr == nil {
			return owner, nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return Owner{}, fmt.Errorf("%w: %v", ErrCorrupt, lastErr)
}

// removeStaleTemps deletes temp files left by crashed heartbeats. Files younger than
// staleAfter may belong to a live writer and are kept.
func removeStaleTemps(path string) {
	pattern := filepath.Join(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		plog.Warn("Failed to list temporary lock files", "pattern", pattern, "error", err)
		return
	}

	threshold := time.Now().Add(-staleAfter)
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || !info.ModTime().Before(threshold) {
			continue
		}
		plog.Debug("Removing old temporary lock file", "path", m)
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			plog.Warn("Failed to remove temporary lock file", "path", m, "error", err)
		}
	}
}
