package remote

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Memory is an in-memory Store for tests and dry runs. It records every call.
type Memory struct {
	mu         sync.Mutex
	containers map[string]Container
	synced     map[string]string // container -> local path
	calls      []string

	// Fail maps an operation ("list", "remove", "sync") to the error it returns.
	Fail map[string]error
}

// NewMemory returns a store pre-populated with the given container names.
func NewMemory(names ...string) *Memory {
	m := &Memory{
		containers: make(map[string]Container),
		synced:     make(map[string]string),
		Fail:       make(map[string]error),
	}
	for _, n := range names {
		m.containers[n] = Container{Name: n, IsDir: true}
	}
	return m
}

func (m *Memory) Location() string { return "memory:" }

func (m *Memory) List(ctx context.Context) ([]Container, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "list")
	if err := m.Fail["list"]; err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	out := make([]Container, 0, len(m.containers))
	for _, c := range m.containers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) Remove(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "remove "+name)
	if err := m.Fail["remove"]; err != nil {
		return &Error{Op: "remove", Container: name, Err: err}
	}
	if _, ok := m.containers[name]; !ok {
		return &Error{Op: "remove", Container: name, Err: fmt.Errorf("directory not found")}
	}
	delete(m.containers, name)
	delete(m.synced, name)
	return nil
}

func (m *Memory) Sync(ctx context.Context, localPath, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "sync "+name)
	if err := m.Fail["sync"]; err != nil {
		return &Error{Op: "sync", Container: name, Err: err}
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return &Error{Op: "sync", Container: name, Err: err}
	}
	m.containers[name] = Container{Name: name, Size: info.Size(), ModTime: time.Now(), IsDir: true}
	m.synced[name] = localPath
	return nil
}

// Calls returns the recorded operations in order, e.g. "list", "remove 2024-03-01".
func (m *Memory) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Names returns the current container names, sorted.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.containers))
	for n := range m.containers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SyncedPath returns the local path last synced into container name.
func (m *Memory) SyncedPath(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.synced[name]
	return p, ok
}

var _ Store = (*Memory)(nil)
var _ Store = (*Rclone)(nil)
var _ Store = (*S3)(nil)
