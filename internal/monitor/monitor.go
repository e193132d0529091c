// Package monitor implements the process-wide performance monitor: a
// lazily-initialized singleton that aggregates downloaded bytes and speed
// across every session, behind a single fine-grained lock.
package monitor

import (
	"sync"
	"time"
)

// sample is one (timestamp, cumulative bytes) point in the speed ring
// buffer used to compute a windowed current_speed_bps.
type sample struct {
	at    time.Time
	bytes int64
}

const windowDuration = 2 * time.Second

// Monitor is the process-wide performance aggregator. All mutations are
// guarded by mu; readers always see a self-consistent snapshot.
type Monitor struct {
	mu sync.Mutex

	totalBytes      int64
	downloadedBytes int64
	startTime       time.Time
	ring            []sample
}

var (
	global     *Monitor
	globalOnce sync.Once
)

// Global returns the process-wide Monitor, creating it on first use.
func Global() *Monitor {
	globalOnce.Do(func() {
		global = New()
	})
	return global
}

// New constructs a standalone Monitor. Most callers want Global(); New is
// exposed for tests that need isolation from the process-wide singleton.
func New() *Monitor {
	return &Monitor{}
}

// SetTotalBytes records the target size for the task currently being
// tracked. It may be overwritten when a new task begins — it is a target,
// not an accumulator.
func (m *Monitor) SetTotalBytes(total int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalBytes = total
}

// AddBytes records a monotonic increase in downloaded_bytes.
func (m *Monitor) AddBytes(n int64) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if m.downloadedBytes == 0 && m.startTime.IsZero() {
		m.startTime = now
	}
	m.downloadedBytes += n
	m.ring = append(m.ring, sample{at: now, bytes: m.downloadedBytes})
	m.pruneLocked(now)
}

// Reset clears accumulated state, used between independent sessions/tests.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totalBytes = 0
	m.downloadedBytes = 0
	m.startTime = time.Time{}
	m.ring = nil
}

func (m *Monitor) pruneLocked(now time.Time) {
	cutoff := now.Add(-windowDuration)
	i := 0
	for i < len(m.ring) && m.ring[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		// Keep one sample before the window so the slope calculation has a
		// left edge even immediately after pruning.
		i--
	}
	m.ring = m.ring[i:]
}

// Stats is the snapshot returned by GetStats. ToEventData adds a legacy
// "Downloaded" alias on top of these fields for the wire format; Stats
// itself stays a typed struct for internal use.
type Stats struct {
	TotalBytes         int64
	DownloadedBytes    int64
	CurrentSpeedBps    float64
	AverageSpeedBps    float64
	ElapsedSeconds     float64
	ProgressPercentage float64
}

// GetStats returns a self-consistent snapshot of the monitor's state.
func (m *Monitor) GetStats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	m.pruneLocked(now)

	var elapsed float64
	if !m.startTime.IsZero() {
		elapsed = now.Sub(m.startTime).Seconds()
	}

	var avgSpeed float64
	if elapsed > 0 {
		avgSpeed = float64(m.downloadedBytes) / elapsed
	}

	var curSpeed float64
	if len(m.ring) >= 2 {
		first, last := m.ring[0], m.ring[len(m.ring)-1]
		dt := last.at.Sub(first.at).Seconds()
		if dt > 0 {
			curSpeed = float64(last.bytes-first.bytes) / dt
		}
	}

	var pct float64
	if m.totalBytes > 0 {
		pct = float64(m.downloadedBytes) / float64(m.totalBytes) * 100
		if pct > 100 {
			pct = 100
		}
	}

	return Stats{
		TotalBytes:         m.totalBytes,
		DownloadedBytes:    m.downloadedBytes,
		CurrentSpeedBps:    curSpeed,
		AverageSpeedBps:    avgSpeed,
		ElapsedSeconds:     elapsed,
		ProgressPercentage: pct,
	}
}

// ToEventData renders Stats as the event.Data map an "update" event ships,
// including the legacy "Downloaded" alias kept for older clients.
func (s Stats) ToEventData() map[string]any {
	return map[string]any{
		"total_bytes":         s.TotalBytes,
		"downloaded_bytes":    s.DownloadedBytes,
		"Downloaded":          s.DownloadedBytes,
		"current_speed_bps":   s.CurrentSpeedBps,
		"average_speed_bps":   s.AverageSpeedBps,
		"elapsed_seconds":     s.ElapsedSeconds,
		"progress_percentage": s.ProgressPercentage,
	}
}
