package retention

import (
	"sync/atomic"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/plog"
)

// Metrics defines the interface for collecting retention statistics.
type Metrics interface {
	AddRemoteEvaluated(n int64)
	AddLocalEvaluated(n int64)
	AddRemoteDeleted(n int64)
	AddLocalDeleted(n int64)
	AddDeleteFailed(n int64)
	LogSummary(msg string)
}

// RetentionMetrics holds the atomic counters for one purge.
type RetentionMetrics struct {
	RemoteEvaluated atomic.Int64
	LocalEvaluated  atomic.Int64
	RemoteDeleted   atomic.Int64
	LocalDeleted    atomic.Int64
	DeleteFailed    atomic.Int64
}

func (m *RetentionMetrics) AddRemoteEvaluated(n int64) { m.RemoteEvaluated.Add(n) }
func (m *RetentionMetrics) AddLocalEvaluated(n int64)  { m.LocalEvaluated.Add(n) }
func (m *RetentionMetrics) AddRemoteDeleted(n int64)   { m.RemoteDeleted.Add(n) }
func (m *RetentionMetrics) AddLocalDeleted(n int64)    { m.LocalDeleted.Add(n) }
func (m *RetentionMetrics) AddDeleteFailed(n int64)    { m.DeleteFailed.Add(n) }

func (m *RetentionMetrics) LogSummary(msg string) {
	plog.Info(msg,
		"remote_evaluated", m.RemoteEvaluated.Load(),
		"remote_deleted", m.RemoteDeleted.Load(),
		"local_evaluated", m.LocalEvaluated.Load(),
		"local_deleted", m.LocalDeleted.Load(),
		"delete_failed", m.DeleteFailed.Load(),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no operations.
type NoopMetrics struct{}

func (m *NoopMetrics) AddRemoteEvaluated(n int64) {}
func (m *NoopMetrics) AddLocalEvaluated(n int64)  {}
func (m *NoopMetrics) AddRemoteDeleted(n int64)   {}
func (m *NoopMetrics) AddLocalDeleted(n int64)    {}
func (m *NoopMetrics) AddDeleteFailed(n int64)    {}
func (m *NoopMetrics) LogSummary(msg string)      {}

var _ Metrics = (*RetentionMetrics)(nil)
var _ Metrics = (*NoopMetrics)(nil)
