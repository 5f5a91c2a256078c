// Package controlplane provides the HTTP API and service layer for the
// coordination substrate: the surface out-of-process workers and human
// reviewers use to create, claim, verify, and resolve tasks.
package controlplane

import (
	"github.com/crewd-dev/crewd/internal/audit"
	"github.com/crewd-dev/crewd/internal/decide"
	"github.com/crewd-dev/crewd/internal/heartbeat"
	"github.com/crewd-dev/crewd/internal/lease"
	"github.com/crewd-dev/crewd/internal/models"
	"github.com/crewd-dev/crewd/internal/queue"
	"github.com/crewd-dev/crewd/internal/store"
)

// Service provides the control plane business logic.
type Service struct {
	store      *store.Store
	events     *audit.Writer
	leases     *lease.Manager
	monitor    *heartbeat.Monitor
	queue      *queue.Manager
	controller *decide.Controller
}

// NewService wires the coordination components behind one API surface.
func NewService(s *store.Store, events *audit.Writer, leases *lease.Manager, monitor *heartbeat.Monitor, q *queue.Manager, controller *decide.Controller) *Service {
	return &Service{
		store:      s,
		events:     events,
		leases:     leases,
		monitor:    monitor,
		queue:      q,
		controller: controller,
	}
}

// CreateTask admits a new task through the queue manager, applying the
// duplicate check.
func (s *Service) CreateTask(actor, title, description string, priority models.Priority, deps, criteria []string) (*models.Task, error) {
	return s.queue.Admit(actor, title, description, priority, deps, criteria)
}

// GetTask retrieves a task by ID.
func (s *Service) GetTask(id string) (*models.Task, error) {
	return s.store.GetTask(id)
}

// ListTasks returns filtered tasks.
func (s *Service) ListTasks(status string) ([]models.Task, error) {
	return s.store.ListTasks(status)
}

// ClaimableTasks returns tasks ready to claim, best first.
func (s *Service) ClaimableTasks(limit int) ([]models.Task, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queue.Claimable(limit)
}

// ClaimTask grants an exclusive lease to a worker.
func (s *Service) ClaimTask(taskID, workerID string) (*models.Task, error) {
	return s.leases.Claim(taskID, workerID)
}

// RenewLease extends a worker's lease.
func (s *Service) RenewLease(taskID, workerID string) (*models.Task, error) {
	return s.leases.Renew(taskID, workerID)
}

// ReleaseTask drops a lease with the stated outcome.
func (s *Service) ReleaseTask(taskID, workerID string, outcome lease.ReleaseOutcome) error {
	return s.leases.Release(taskID, workerID, outcome)
}

// SubmitCompletion files a completion claim and hands the task to
// verification.
func (s *Service) SubmitCompletion(taskID, workerID, summary string, artifacts []string) (*models.CompletionClaim, error) {
	task, err := s.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	if task.ClaimedBy != workerID {
		return nil, store.ErrNotOwner
	}
	claim, err := s.store.CreateClaim(taskID, workerID, summary, artifacts)
	if err != nil {
		return nil, err
	}
	s.events.Record(workerID, models.EventClaimSubmitted, taskID, map[string]interface{}{
		"claim_id": claim.ID,
		"summary":  summary,
	})
	if err := s.leases.Release(taskID, workerID, lease.ReleaseCompleted); err != nil {
		return nil, err
	}
	return claim, nil
}

// CancelTask rejects a task from any pre-completed state. The owning worker
// observes the cancellation at its next poll.
func (s *Service) CancelTask(actor, taskID string) error {
	if err := s.store.CancelTask(taskID); err != nil {
		return err
	}
	s.events.Record(actor, models.EventTaskCancelled, taskID, nil)
	return nil
}

// Resolve applies an explicit external verdict to a reviewed or escalated
// task.
func (s *Service) Resolve(taskID string, action models.ResolutionAction, resolver, note string, requeue bool) (*models.Resolution, error) {
	res := &models.Resolution{
		TaskID:   taskID,
		Action:   action,
		Resolver: resolver,
		Note:     note,
		Requeue:  requeue,
	}
	if err := s.controller.Resolve(res); err != nil {
		return nil, err
	}
	return res, nil
}

// ReviewQueue lists tasks tagged for a secondary verification pass.
func (s *Service) ReviewQueue() ([]models.Task, error) {
	tasks, err := s.store.ListTasks(string(models.TaskStatusAwaitingVerification))
	if err != nil {
		return nil, err
	}
	tagged := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if t.ReviewTagged {
			tagged = append(tagged, t)
		}
	}
	return tagged, nil
}

// EscalationQueue lists tasks waiting on human resolution.
func (s *Service) EscalationQueue() ([]models.Task, error) {
	return s.store.ListTasks(string(models.TaskStatusEscalated))
}

// Reports returns the verification history for a task.
func (s *Service) Reports(taskID string) ([]models.Report, error) {
	return s.store.ReportsForTask(taskID)
}

// Resolutions returns the verdicts recorded for a task.
func (s *Service) Resolutions(taskID string) ([]models.Resolution, error) {
	return s.store.ResolutionsForTask(taskID)
}

// QueueStatus reports the claimable depth against the admission target.
type QueueStatus struct {
	Depth           int  `json:"depth"`
	NeedsAdmission  bool `json:"needs_admission"`
	AdmissionPaused bool `json:"admission_paused"`
}

// Queue returns the current admission state of the claimable queue.
func (s *Service) Queue() (*QueueStatus, error) {
	depth, err := s.queue.Depth()
	if err != nil {
		return nil, err
	}
	needs, err := s.queue.NeedsAdmission()
	if err != nil {
		return nil, err
	}
	paused, err := s.queue.AdmissionPaused()
	if err != nil {
		return nil, err
	}
	return &QueueStatus{Depth: depth, NeedsAdmission: needs, AdmissionPaused: paused}, nil
}

// Events returns audit log entries, optionally scoped to one task.
func (s *Service) Events(afterSeq int64, taskID string, limit int) ([]models.Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.Events(afterSeq, taskID, limit)
}

// Heartbeat records a liveness push from a worker.
func (s *Service) Heartbeat(workerID string, role models.WorkerRole) error {
	return s.monitor.Beat(workerID, role)
}

// Workers lists tracked worker instances.
func (s *Service) Workers() ([]models.Worker, error) {
	return s.store.ListWorkers()
}

// TaskTrail bundles everything inspectable about a task: the record itself,
// its verification history, resolutions, and events. Escalated and rejected
// tasks always carry this full trail.
type TaskTrail struct {
	Task        *models.Task        `json:"task"`
	Reports     []models.Report     `json:"reports"`
	Resolutions []models.Resolution `json:"resolutions"`
	Events      []models.Event      `json:"events"`
}

// Trail assembles the full inspectable trail for a task.
func (s *Service) Trail(taskID string) (*TaskTrail, error) {
	task, err := s.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}
	reports, err := s.store.ReportsForTask(taskID)
	if err != nil {
		return nil, err
	}
	resolutions, err := s.store.ResolutionsForTask(taskID)
	if err != nil {
		return nil, err
	}
	events, err := s.store.Events(0, taskID, 500)
	if err != nil {
		return nil, err
	}
	return &TaskTrail{Task: task, Reports: reports, Resolutions: resolutions, Events: events}, nil
}
