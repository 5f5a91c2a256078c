// Package heartbeat tracks per-worker liveness. Workers push heartbeats on
// a fixed interval; the monitor flags any worker whose last heartbeat is
// older than the unresponsive threshold. Flagged workers lose their leases
// at the next sweep, ahead of nominal expiry.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/crewd-dev/crewd/internal/audit"
	"github.com/crewd-dev/crewd/internal/models"
	"github.com/crewd-dev/crewd/internal/store"
)

// Monitor watches worker heartbeats recorded in the store.
type Monitor struct {
	store     *store.Store
	events    *audit.Writer
	logger    *slog.Logger
	threshold time.Duration
}

// NewMonitor creates a monitor with the given unresponsive threshold.
func NewMonitor(s *store.Store, events *audit.Writer, logger *slog.Logger, threshold time.Duration) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{store: s, events: events, logger: logger, threshold: threshold}
}

// Beat records a heartbeat for a worker. A flagged worker that beats again
// returns to active.
func (m *Monitor) Beat(workerID string, role models.WorkerRole) error {
	return m.store.RecordHeartbeat(workerID, role)
}

// CheckOnce flags workers whose last heartbeat predates the threshold and
// returns the newly flagged IDs.
func (m *Monitor) CheckOnce() ([]string, error) {
	cutoff := time.Now().UTC().Add(-m.threshold)
	flagged, err := m.store.MarkUnresponsive(cutoff)
	if err != nil {
		return nil, err
	}
	for _, id := range flagged {
		m.events.Record("heartbeat-monitor", models.EventWorkerUnresponsive, "", map[string]interface{}{
			"worker_id": id,
			"threshold": m.threshold.String(),
		})
		m.logger.Warn("worker unresponsive", "worker_id", id)
	}
	return flagged, nil
}

// HasResponsiveExecutor reports whether any executor is currently active.
// The planner throttles admission when none is.
func (m *Monitor) HasResponsiveExecutor() (bool, error) {
	workers, err := m.store.ListWorkers()
	if err != nil {
		return false, err
	}
	for _, w := range workers {
		if w.Role == models.RoleExecutor && w.Status == models.WorkerActive {
			return true, nil
		}
	}
	return false, nil
}

// Run checks liveness on a fixed interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.CheckOnce(); err != nil {
				m.logger.Error("heartbeat check failed", "error", err)
			}
		}
	}
}
