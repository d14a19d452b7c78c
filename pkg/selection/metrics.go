package selection

import (
	"sync/atomic"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/plog"
)

// Metrics defines the interface for collecting selection statistics.
type Metrics interface {
	AddEntriesProcessed(n int64)
	AddFilesSelected(n int64)
	AddFilesExcluded(n int64)
	AddDirsExcluded(n int64)
	AddSymlinksSkipped(n int64)
	AddDuplicates(n int64)
	AddEntriesSkipped(n int64)
	LogSummary(msg string)
}

// SelectionMetrics holds the atomic counters for one selection pass.
type SelectionMetrics struct {
	EntriesProcessed atomic.Int64
	FilesSelected    atomic.Int64
	FilesExcluded    atomic.Int64
	DirsExcluded     atomic.Int64
	SymlinksSkipped  atomic.Int64
	Duplicates       atomic.Int64
	EntriesSkipped   atomic.Int64
}

func (m *SelectionMetrics) AddEntriesProcessed(n int64) { m.EntriesProcessed.Add(n) }
func (m *SelectionMetrics) AddFilesSelected(n int64)    { m.FilesSelected.Add(n) }
func (m *SelectionMetrics) AddFilesExcluded(n int64)    { m.FilesExcluded.Add(n) }
func (m *SelectionMetrics) AddDirsExcluded(n int64)     { m.DirsExcluded.Add(n) }
func (m *SelectionMetrics) AddSymlinksSkipped(n int64)  { m.SymlinksSkipped.Add(n) }
func (m *SelectionMetrics) AddDuplicates(n int64)       { m.Duplicates.Add(n) }
func (m *SelectionMetrics) AddEntriesSkipped(n int64)   { m.EntriesSkipped.Add(n) }

func (m *SelectionMetrics) LogSummary(msg string) {
	plog.Info(msg,
		"entries_processed", m.EntriesProcessed.Load(),
		"files_selected", m.FilesSelected.Load(),
		"files_excluded", m.FilesExcluded.Load(),
		"dirs_excluded", m.DirsExcluded.Load(),
		"symlinks_skipped", m.SymlinksSkipped.Load(),
		"duplicates", m.Duplicates.Load(),
		"entries_skipped", m.EntriesSkipped.Load(),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no operations.
type NoopMetrics struct{}

func (m *NoopMetrics) AddEntriesProcessed(n int64) {}
func (m *NoopMetrics) AddFilesSelected(n int64)    {}
func (m *NoopMetrics) AddFilesExcluded(n int64)    {}
func (m *NoopMetrics) AddDirsExcluded(n int64)     {}
func (m *NoopMetrics) AddSymlinksSkipped(n int64)  {}
func (m *NoopMetrics) AddDuplicates(n int64)       {}
func (m *NoopMetrics) AddEntriesSkipped(n int64)   {}
func (m *NoopMetrics) LogSummary(msg string)       {}

// Statically assert that our types implement the interface.
var _ Metrics = (*SelectionMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
