// Package models defines the core domain types for Crewd.
package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusPending              TaskStatus = "pending"
	TaskStatusClaimed              TaskStatus = "claimed"
	TaskStatusInProgress           TaskStatus = "in_progress"
	TaskStatusAwaitingVerification TaskStatus = "awaiting_verification"
	TaskStatusRejected             TaskStatus = "rejected"
	TaskStatusEscalated            TaskStatus = "escalated"
	TaskStatusCompleted            TaskStatus = "completed"
)

// Terminal reports whether a task in this status can no longer change.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusRejected
}

// Priority orders tasks in the claimable queue.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank returns the sort rank of a priority; lower claims first.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

// Valid reports whether p is one of the defined priorities.
func (p Priority) Valid() bool {
	return p.Rank() < 4
}

// Task represents a unit of work in the coordination store.
type Task struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Priority           Priority   `json:"priority"`
	Status             TaskStatus `json:"status"`
	Dependencies       []string   `json:"dependencies,omitempty"`
	AcceptanceCriteria []string   `json:"acceptance_criteria,omitempty"`
	ClaimedBy          string     `json:"claimed_by,omitempty"`
	ClaimExpiry        *time.Time `json:"claim_expiry,omitempty"`
	RetryCount         int        `json:"retry_count"`
	NextAttemptAt      *time.Time `json:"next_attempt_at,omitempty"`
	ReviewTagged       bool       `json:"review_tagged,omitempty"`
	Version            int64      `json:"version"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// WorkerRole is the role a worker instance adopts.
type WorkerRole string

const (
	RolePlanner  WorkerRole = "planner"
	RoleExecutor WorkerRole = "executor"
	RoleVerifier WorkerRole = "verifier"
)

// WorkerStatus is the liveness state of a worker instance.
type WorkerStatus string

const (
	WorkerActive       WorkerStatus = "active"
	WorkerUnresponsive WorkerStatus = "unresponsive"
)

// Worker represents a running worker instance tracked by heartbeat.
type Worker struct {
	ID            string       `json:"id"`
	Role          WorkerRole   `json:"role"`
	Status        WorkerStatus `json:"status"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
}

// CompletionClaim is an executor's self-report that a task is done.
type CompletionClaim struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	WorkerID  string    `json:"worker_id"`
	Artifacts []string  `json:"artifacts,omitempty"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// CheckOutcome is the result of a single verification check.
type CheckOutcome string

const (
	OutcomePass CheckOutcome = "pass"
	OutcomeFail CheckOutcome = "fail"
	OutcomeSkip CheckOutcome = "skip"
)

// Check is one evaluated verification check inside a report.
type Check struct {
	Name     string       `json:"name"`
	Weight   float64      `json:"weight"`
	Critical bool         `json:"critical"`
	Outcome  CheckOutcome `json:"outcome"`
	Category string       `json:"category,omitempty"`
	Detail   string       `json:"detail,omitempty"`
}

// Decision is the routing outcome of a verification run.
type Decision string

const (
	DecisionAutoCommit  Decision = "auto_commit"
	DecisionQueueReview Decision = "queue_review"
	DecisionHumanReview Decision = "human_review"
)

// Report is the persisted record of one verification run.
type Report struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	ClaimID    string    `json:"claim_id"`
	Checks     []Check   `json:"checks"`
	Confidence float64   `json:"confidence"`
	Decision   Decision  `json:"decision"`
	Retried    bool      `json:"retried"`
	CreatedAt  time.Time `json:"created_at"`
}

// ResolutionAction is an explicit external verdict on a reviewed or
// escalated task.
type ResolutionAction string

const (
	ResolutionApprove ResolutionAction = "approve"
	ResolutionReject  ResolutionAction = "reject"
)

// Resolution records a human or secondary-reviewer verdict.
type Resolution struct {
	ID        string           `json:"id"`
	TaskID    string           `json:"task_id"`
	Action    ResolutionAction `json:"action"`
	Resolver  string           `json:"resolver"`
	Note      string           `json:"note,omitempty"`
	Requeue   bool             `json:"requeue,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Event is one immutable entry in the append-only audit log. Seq is
// assigned by the store and is strictly monotonic.
type Event struct {
	Seq       int64     `json:"seq"`
	Actor     string    `json:"actor"`
	Type      string    `json:"type"`
	TaskID    string    `json:"task_id,omitempty"`
	Payload   string    `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Event types emitted by the coordination substrate.
const (
	EventTaskCreated        = "task_created"
	EventTaskCancelled      = "task_cancelled"
	EventDuplicateRejected  = "duplicate_rejected"
	EventClaimed            = "claimed"
	EventRenewed            = "lease_renewed"
	EventReleased           = "released"
	EventLeaseExpired       = "lease_expired"
	EventClaimSubmitted     = "completion_claimed"
	EventVerified           = "verified"
	EventRetryScheduled     = "retry_scheduled"
	EventCompleted          = "completed"
	EventEscalated          = "escalated"
	EventReviewQueued       = "review_queued"
	EventResolved           = "resolved"
	EventResolutionConflict = "resolution_conflict"
	EventWorkerUnresponsive = "worker_unresponsive"
)
