// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Transfer metrics (only for upload and download)
	TotalBytes int64
	MaxBytes   int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count" yaml:"count"`
	Failures    int64   `json:"failures" yaml:"failures"`
	TotalTimeMs int64   `json:"total_time_ms" yaml:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms" yaml:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms" yaml:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms" yaml:"max_time_ms"`

	// Transfer stats (nil if not applicable)
	TotalBytes *int64 `json:"total_bytes,omitempty" yaml:"total_bytes,omitempty"`
	MaxBytes   *int64 `json:"max_bytes,omitempty" yaml:"max_bytes,omitempty"`
}

// Snapshot represents the session statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds" yaml:"uptime_seconds"`
	Upload        *OperationSnapshot `json:"upload,omitempty" yaml:"upload,omitempty"`
	Poll          *OperationSnapshot `json:"poll,omitempty" yaml:"poll,omitempty"`
	Download      *OperationSnapshot `json:"download,omitempty" yaml:"download,omitempty"`
	Journal       *OperationSnapshot `json:"journal,omitempty" yaml:"journal,omitempty"`
}

// Operation names for the collector.
const (
	OpUpload   = "upload"
	OpPoll     = "poll"
	OpDownload = "download"
	OpJournal  = "journal"
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe. A nil *Collector discards everything.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

func (m *OperationMetrics) observe(duration time.Duration) {
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordTiming records timing for a successful operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.getOrCreate(op).observe(duration)
}

// RecordTransfer records timing and byte count for an upload or download.
func (c *Collector) RecordTransfer(op string, duration time.Duration, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.observe(duration)
	m.TotalBytes += n
	if n > m.MaxBytes {
		m.MaxBytes = n
	}
}

// RecordFailure records a failed attempt. Failed attempts count toward
// Count but not toward the timing aggregates.
func (c *Collector) RecordFailure(op string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.Failures++
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeBytes bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		Failures:    m.Failures,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if timed := m.Count - m.Failures; timed > 0 {
		snap.AvgTimeMs = float64(m.TotalTime.Milliseconds()) / float64(timed)
		snap.MinTimeMs = m.MinTime.Milliseconds()
	}

	if includeBytes && m.TotalBytes > 0 {
		total, largest := m.TotalBytes, m.MaxBytes
		snap.TotalBytes = &total
		snap.MaxBytes = &largest
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Upload:        snapshotOp(c.ops[OpUpload], true),
		Poll:          snapshotOp(c.ops[OpPoll], false),
		Download:      snapshotOp(c.ops[OpDownload], true),
		Journal:       snapshotOp(c.ops[OpJournal], false),
	}
}
