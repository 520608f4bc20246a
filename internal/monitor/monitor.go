// Package monitor samples capture health and process usage for the daemon.
package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/capture"
	"github.com/nobid-lsp-latvia/lx-qr-scanner/internal/session"
)

// SessionCounts tallies finished sessions by outcome.
type SessionCounts struct {
	Active    int `json:"active"`
	Delivered int `json:"delivered"`
	Stopped   int `json:"stopped"`
	Failed    int `json:"failed"`
}

// Stats is the /api/stats payload.
type Stats struct {
	Process  ProcessStats           `json:"process"`
	Frames   uint64                 `json:"frames"`
	Health   capture.HealthSnapshot `json:"health"`
	Sessions SessionCounts          `json:"sessions"`
}

type Monitor struct {
	capture   *capture.Session
	store     *session.Store
	interval  time.Duration
	threshold int
	onHealth  func(capture.HealthSnapshot)

	mu      sync.RWMutex
	process ProcessStats
}

// New creates a monitor. onHealth, if set, is called whenever the device
// health status changes.
func New(sess *capture.Session, store *session.Store, interval time.Duration, threshold int, onHealth func(capture.HealthSnapshot)) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		capture:   sess,
		store:     store,
		interval:  interval,
		threshold: threshold,
		onHealth:  onHealth,
	}
}

// Start polls until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	log.Printf("Monitor started (every %v)", m.interval)
	m.poll()

	for {
		select {
		case <-ctx.Done():
			log.Println("Monitor stopped")
			return
		case <-ticker.C:
			m.poll()
		}
	}
}

func (m *Monitor) poll() {
	if stats, err := SampleSelf(); err != nil {
		log.Printf("process sample error: %v", err)
	} else {
		m.mu.Lock()
		m.process = stats
		m.mu.Unlock()
	}

	snap, changed := m.capture.Health().SnapshotAndEmit(m.threshold)
	if !changed {
		return
	}
	log.Printf("capture health status: %s (failures=%d, last=%q)",
		snap.Status, snap.ConsecutiveFailures, snap.LastError)
	if m.onHealth != nil {
		m.onHealth(snap)
	}
}

// Health returns the current device health.
func (m *Monitor) Health() capture.HealthSnapshot {
	return m.capture.Health().Snapshot(m.threshold)
}

// Stats assembles the current statistics.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	proc := m.process
	m.mu.RUnlock()

	return Stats{
		Process:  proc,
		Frames:   m.capture.FrameCount(),
		Health:   m.Health(),
		Sessions: CountSessions(m.store),
	}
}

// CountSessions tallies the store's recent sessions by final phase.
func CountSessions(store *session.Store) SessionCounts {
	counts := SessionCounts{Active: store.ActiveCount()}
	for _, st := range store.Recent() {
		switch st.Phase {
		case session.Delivered:
			counts.Delivered++
		case session.Stopped:
			counts.Stopped++
		case session.Failed:
			counts.Failed++
		}
	}
	return counts
}
