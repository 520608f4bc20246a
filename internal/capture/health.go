package capture

import (
	"sync"
	"time"
)

// HealthStatus summarises how reliably a device is producing frames.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusFailed   HealthStatus = "failed"
)

// DefaultFailureThreshold is the number of consecutive failed reads after
// which a device is reported failed.
const DefaultFailureThreshold = 5

// Health tracks consecutive frame read failures for a device. It is written
// by the capture goroutine and read by status reporters.
type Health struct {
	mu                sync.Mutex
	failures          int
	totalFailures     int
	lastErr           string
	lastFail          time.Time
	lastSuccess       time.Time
	lastEmittedStatus HealthStatus
}

func NewHealth() *Health {
	return &Health{lastEmittedStatus: StatusHealthy}
}

func (h *Health) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = 0
	h.lastSuccess = time.Now()
}

func (h *Health) RecordFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures++
	h.totalFailures++
	h.lastErr = err.Error()
	h.lastFail = time.Now()
}

// HealthSnapshot is a consistent copy of the health fields.
type HealthSnapshot struct {
	Status              HealthStatus `json:"status"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	TotalFailures       int          `json:"totalFailures"`
	LastError           string       `json:"lastError,omitempty"`
	LastFrameAt         time.Time    `json:"lastFrameAt"`
}

// Snapshot returns the current health under the lock.
func (h *Health) Snapshot(threshold int) HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HealthSnapshot{
		Status:              h.statusLocked(threshold),
		ConsecutiveFailures: h.failures,
		TotalFailures:       h.totalFailures,
		LastError:           h.lastErr,
		LastFrameAt:         h.lastSuccess,
	}
}

// SnapshotAndEmit returns the snapshot and whether the status changed since
// the last call that reported a change.
func (h *Health) SnapshotAndEmit(threshold int) (HealthSnapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	status := h.statusLocked(threshold)
	changed := status != h.lastEmittedStatus
	if changed {
		h.lastEmittedStatus = status
	}
	return HealthSnapshot{
		Status:              status,
		ConsecutiveFailures: h.failures,
		TotalFailures:       h.totalFailures,
		LastError:           h.lastErr,
		LastFrameAt:         h.lastSuccess,
	}, changed
}

// statusLocked computes health status. Caller must hold h.mu.
func (h *Health) statusLocked(threshold int) HealthStatus {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	switch {
	case h.failures >= threshold:
		return StatusFailed
	case h.failures > 0:
		return StatusDegraded
	default:
		return StatusHealthy
	}
}
