// Package lease grants, renews, and revokes exclusive time-bounded task
// ownership. At most one worker holds a non-expired lease on a task at any
// instant; the store's compare-and-set claim enforces it, this package owns
// the policy around it.
package lease

import (
	"context"
	"log/slog"
	"time"

	"github.com/crewd-dev/crewd/internal/audit"
	"github.com/crewd-dev/crewd/internal/models"
	"github.com/crewd-dev/crewd/internal/store"
)

// ReleaseOutcome says what the releasing worker did with the task.
type ReleaseOutcome string

const (
	// ReleaseCompleted hands the task to verification.
	ReleaseCompleted ReleaseOutcome = "completed"
	// ReleaseAbandoned puts the task back in the queue.
	ReleaseAbandoned ReleaseOutcome = "abandoned"
	// ReleaseRejected drops the task as not worth doing.
	ReleaseRejected ReleaseOutcome = "rejected"
)

func (o ReleaseOutcome) status() models.TaskStatus {
	switch o {
	case ReleaseCompleted:
		return models.TaskStatusAwaitingVerification
	case ReleaseRejected:
		return models.TaskStatusRejected
	default:
		return models.TaskStatusPending
	}
}

// Manager coordinates lease lifecycle against the store.
type Manager struct {
	store  *store.Store
	events *audit.Writer
	logger *slog.Logger
	ttl    time.Duration
}

// NewManager creates a lease manager with the given lease duration.
func NewManager(s *store.Store, events *audit.Writer, logger *slog.Logger, ttl time.Duration) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: s, events: events, logger: logger, ttl: ttl}
}

// Claim attempts to take an exclusive lease for workerID. Losers of a
// concurrent race get store.ErrClaimConflict, which callers treat as normal
// control flow, not a failure.
func (m *Manager) Claim(taskID, workerID string) (*models.Task, error) {
	task, err := m.store.ClaimTask(taskID, workerID, m.ttl)
	if err != nil {
		return nil, err
	}
	m.events.Record(workerID, models.EventClaimed, taskID, map[string]interface{}{
		"worker_id":    workerID,
		"claim_expiry": task.ClaimExpiry,
	})
	return task, nil
}

// Renew extends the lease expiry for the owning worker.
func (m *Manager) Renew(taskID, workerID string) (*models.Task, error) {
	task, err := m.store.RenewLease(taskID, workerID, m.ttl)
	if err != nil {
		return nil, err
	}
	m.events.Record(workerID, models.EventRenewed, taskID, map[string]interface{}{
		"claim_expiry": task.ClaimExpiry,
	})
	return task, nil
}

// Release drops the worker's lease and transitions the task per outcome.
func (m *Manager) Release(taskID, workerID string, outcome ReleaseOutcome) error {
	if err := m.store.ReleaseTask(taskID, workerID, outcome.status()); err != nil {
		return err
	}
	m.events.Record(workerID, models.EventReleased, taskID, map[string]interface{}{
		"outcome": string(outcome),
	})
	return nil
}

// SweepOnce revokes leases past their expiry, plus leases held by workers
// currently flagged unresponsive regardless of nominal expiry. Reverted
// tasks return to pending with their retry counter untouched; losing a
// worker is not a verification failure.
func (m *Manager) SweepOnce() (int, error) {
	dead, err := m.store.UnresponsiveWorkers()
	if err != nil {
		return 0, err
	}
	expired, err := m.store.ExpiredLeases(dead)
	if err != nil {
		return 0, err
	}

	reverted := 0
	for _, task := range expired {
		if err := m.store.RevertLease(task.ID, task.Version); err != nil {
			// The owner renewed or released between scan and revert.
			continue
		}
		reverted++
		m.events.Record("lease-sweep", models.EventLeaseExpired, task.ID, map[string]interface{}{
			"worker_id":    task.ClaimedBy,
			"claim_expiry": task.ClaimExpiry,
		})
		m.logger.Info("lease revoked", "task_id", task.ID, "worker_id", task.ClaimedBy)
	}
	return reverted, nil
}

// RunSweep runs the expiry sweep on a fixed interval until ctx is cancelled.
func (m *Manager) RunSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.SweepOnce(); err != nil {
				m.logger.Error("lease sweep failed", "error", err)
			}
		}
	}
}
