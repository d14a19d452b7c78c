package archive

import (
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/plog"
)

// Metrics defines the interface for collecting archive statistics.
type Metrics interface {
	AddFilesArchived(n int64)
	AddBytesRead(n int64)
	AddBytesWritten(n int64)
	AddEntriesSkipped(n int64)
	AddDuplicates(n int64)
	LogSummary(msg string)

	StartProgress(msg string, interval time.Duration)
	StopProgress()
}

// ArchiveMetrics holds the atomic counters for one archive run.
type ArchiveMetrics struct {
	FilesArchived  atomic.Int64
	BytesRead      atomic.Int64
	BytesWritten   atomic.Int64
	EntriesSkipped atomic.Int64
	Duplicates     atomic.Int64

	stopChan  chan struct{}
	startTime time.Time
}

func (m *ArchiveMetrics) AddFilesArchived(n int64)  { m.FilesArchived.Add(n) }
func (m *ArchiveMetrics) AddBytesRead(n int64)      { m.BytesRead.Add(n) }
func (m *ArchiveMetrics) AddBytesWritten(n int64)   { m.BytesWritten.Add(n) }
func (m *ArchiveMetrics) AddEntriesSkipped(n int64) { m.EntriesSkipped.Add(n) }
func (m *ArchiveMetrics) AddDuplicates(n int64)     { m.Duplicates.Add(n) }

func (m *ArchiveMetrics) StartProgress(msg string, interval time.Duration) {
	m.startTime = time.Now()
	m.stopChan = make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.LogSummary(msg)
			case <-m.stopChan:
				return
			}
		}
	}()
}

func (m *ArchiveMetrics) StopProgress() {
	if m.stopChan != nil {
		close(m.stopChan)
		m.stopChan = nil
	}
}

// LogSummary prints the counters. It is called by the progress ticker and at the end of the run.
func (m *ArchiveMetrics) LogSummary(msg string) {
	duration := time.Duration(0)
	if !m.startTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	plog.Info(msg,
		"files_archived", m.FilesArchived.Load(),
		"bytes_read", humanize.IBytes(uint64(m.BytesRead.Load())),
		"bytes_written", humanize.IBytes(uint64(m.BytesWritten.Load())),
		"entries_skipped", m.EntriesSkipped.Load(),
		"duplicates", m.Duplicates.Load(),
		"duration", duration.Round(time.Millisecond),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no operations.
type NoopMetrics struct{}

func (m *NoopMetrics) AddFilesArchived(n int64)                         {}
func (m *NoopMetrics) AddBytesRead(n int64)                             {}
func (m *NoopMetrics) AddBytesWritten(n int64)                          {}
func (m *NoopMetrics) AddEntriesSkipped(n int64)                        {}
func (m *NoopMetrics) AddDuplicates(n int64)                            {}
func (m *NoopMetrics) LogSummary(msg string)                            {}
func (m *NoopMetrics) StartProgress(msg string, interval time.Duration) {}
func (m *NoopMetrics) StopProgress()                                    {}

// Statically assert that our types implement the interface.
var _ Metrics = (*ArchiveMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
