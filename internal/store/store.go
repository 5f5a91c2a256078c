// Package store provides SQLite-backed persistence for the Crewd
// coordination substrate. It is the single authoritative shared state:
// every cross-worker interaction goes through it, and all task mutations
// are guarded by an optimistic version column.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/crewd-dev/crewd/internal/models"
)

// Sentinel errors returned by coordination operations. ErrClaimConflict and
// ErrDependencyUnmet are expected control-flow outcomes, not failures.
var (
	ErrNotFound        = errors.New("record not found")
	ErrClaimConflict   = errors.New("task already claimed")
	ErrDependencyUnmet = errors.New("task has incomplete dependencies")
	ErrNotOwner        = errors.New("not the lease owner")
	ErrLeaseExpired    = errors.New("lease expired")
	ErrVersionMismatch = errors.New("version mismatch")
	ErrTerminal        = errors.New("task is in a terminal state")
)

// Store provides access to the Crewd SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL mode for concurrent readers alongside the single writer.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		priority TEXT NOT NULL DEFAULT 'medium',
		status TEXT NOT NULL DEFAULT 'pending',
		claimed_by TEXT,
		claim_expiry DATETIME,
		retry_count INTEGER NOT NULL DEFAULT 0,
		next_attempt_at DATETIME,
		review_tagged INTEGER NOT NULL DEFAULT 0,
		acceptance_criteria TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS task_deps (
		task_id TEXT NOT NULL,
		depends_on TEXT NOT NULL,
		PRIMARY KEY (task_id, depends_on),
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		actor TEXT NOT NULL,
		type TEXT NOT NULL,
		task_id TEXT,
		payload TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS heartbeats (
		worker_id TEXT PRIMARY KEY,
		role TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		last_heartbeat DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		worker_id TEXT NOT NULL,
		artifacts TEXT,
		summary TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		claim_id TEXT,
		checks TEXT NOT NULL,
		confidence REAL NOT NULL,
		decision TEXT NOT NULL,
		retried INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE TABLE IF NOT EXISTS resolutions (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		action TEXT NOT NULL,
		resolver TEXT NOT NULL,
		note TEXT,
		requeue INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_events_task_id ON events(task_id);
	CREATE INDEX IF NOT EXISTS idx_claims_task_id ON claims(task_id);
	CREATE INDEX IF NOT EXISTS idx_reports_task_id ON reports(task_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Task Operations ---

// CreateTask inserts a new task with its dependency edges.
func (s *Store) CreateTask(title, description string, priority models.Priority, deps, criteria []string) (*models.Task, error) {
	if !priority.Valid() {
		priority = models.PriorityMedium
	}
	now := time.Now().UTC()
	task := &models.Task{
		ID:                 uuid.New().String(),
		Title:              title,
		Description:        description,
		Priority:           priority,
		Status:             models.TaskStatusPending,
		Dependencies:       deps,
		AcceptanceCriteria: criteria,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	criteriaJSON, _ := json.Marshal(criteria)

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO tasks (id, title, description, priority, status, acceptance_criteria, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, task.Priority, task.Status, string(criteriaJSON), task.Version, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	for _, dep := range deps {
		if _, err := tx.Exec(`INSERT INTO task_deps (task_id, depends_on) VALUES (?, ?)`, task.ID, dep); err != nil {
			return nil, fmt.Errorf("insert dependency: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return task, nil
}

const taskColumns = `id, title, description, priority, status, claimed_by, claim_expiry,
	retry_count, next_attempt_at, review_tagged, acceptance_criteria, version, created_at, updated_at`

func scanTask(row interface{ Scan(...interface{}) error }) (*models.Task, error) {
	task := &models.Task{}
	var claimedBy sql.NullString
	var claimExpiry, nextAttempt sql.NullTime
	var criteriaJSON sql.NullString
	var reviewTagged int

	err := row.Scan(&task.ID, &task.Title, &task.Description, &task.Priority, &task.Status,
		&claimedBy, &claimExpiry, &task.RetryCount, &nextAttempt, &reviewTagged,
		&criteriaJSON, &task.Version, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if claimedBy.Valid {
		task.ClaimedBy = claimedBy.String
	}
	if claimExpiry.Valid {
		t := claimExpiry.Time
		task.ClaimExpiry = &t
	}
	if nextAttempt.Valid {
		t := nextAttempt.Time
		task.NextAttemptAt = &t
	}
	task.ReviewTagged = reviewTagged != 0
	if criteriaJSON.Valid && criteriaJSON.String != "" {
		json.Unmarshal([]byte(criteriaJSON.String), &task.AcceptanceCriteria)
	}
	return task, nil
}

// GetTask retrieves a task by ID, including its dependency list.
func (s *Store) GetTask(id string) (*models.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	deps, err := s.taskDeps(id)
	if err != nil {
		return nil, err
	}
	task.Dependencies = deps
	return task, nil
}

func (s *Store) taskDeps(id string) ([]string, error) {
	rows, err := s.db.Query(`SELECT depends_on FROM task_deps WHERE task_id = ? ORDER BY depends_on`, id)
	if err != nil {
		return nil, fmt.Errorf("query dependencies: %w", err)
	}
	defer rows.Close()

	var deps []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// ListTasks returns all tasks, optionally filtered by status.
func (s *Store) ListTasks(status string) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// ClaimableTasks returns up to limit tasks an executor may claim right now:
// pending, past any retry backoff, with every dependency completed. Ordering
// is priority rank first, then oldest creation time.
func (s *Store) ClaimableTasks(limit int) ([]models.Task, error) {
	now := time.Now().UTC()
	rows, err := s.db.Query(`
		SELECT `+taskColumns+` FROM tasks t
		WHERE t.status = 'pending'
		  AND (t.next_attempt_at IS NULL OR t.next_attempt_at <= ?)
		  AND NOT EXISTS (
			SELECT 1 FROM task_deps d
			JOIN tasks dep ON dep.id = d.depends_on
			WHERE d.task_id = t.id AND dep.status != 'completed'
		  )
		ORDER BY CASE t.priority
			WHEN 'critical' THEN 0
			WHEN 'high' THEN 1
			WHEN 'medium' THEN 2
			ELSE 3 END,
			t.created_at ASC
		LIMIT ?`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query claimable tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// ClaimableDepth returns the number of currently claimable tasks.
func (s *Store) ClaimableDepth() (int, error) {
	now := time.Now().UTC()
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM tasks t
		WHERE t.status = 'pending'
		  AND (t.next_attempt_at IS NULL OR t.next_attempt_at <= ?)
		  AND NOT EXISTS (
			SELECT 1 FROM task_deps d
			JOIN tasks dep ON dep.id = d.depends_on
			WHERE d.task_id = t.id AND dep.status != 'completed'
		  )`, now).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count claimable tasks: %w", err)
	}
	return n, nil
}

// CompletedTitles returns the titles of all completed tasks keyed by task ID,
// the index used for duplicate detection at admission time.
func (s *Store) CompletedTitles() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT id, title FROM tasks WHERE status = 'completed'`)
	if err != nil {
		return nil, fmt.Errorf("query completed titles: %w", err)
	}
	defer rows.Close()

	titles := make(map[string]string)
	for rows.Next() {
		var id, title string
		if err := rows.Scan(&id, &title); err != nil {
			return nil, fmt.Errorf("scan title: %w", err)
		}
		titles[id] = title
	}
	return titles, rows.Err()
}

// ClaimTask atomically grants an exclusive time-bounded lease on a task.
// It fails with ErrClaimConflict when the task is not claimable or another
// worker holds an unexpired lease, and with ErrDependencyUnmet when any
// dependency is not completed. Under concurrent claim attempts exactly one
// caller wins; the UPDATE is guarded by the version read in the same
// transaction.
func (s *Store) ClaimTask(taskID, workerID string, ttl time.Duration) (*models.Task, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	row := tx.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, taskID)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}

	switch task.Status {
	case models.TaskStatusPending:
		if task.NextAttemptAt != nil && task.NextAttemptAt.After(now) {
			return nil, ErrClaimConflict
		}
	case models.TaskStatusClaimed, models.TaskStatusInProgress:
		// An expired lease does not block a new claim; the old owner lost it.
		if task.ClaimExpiry != nil && task.ClaimExpiry.After(now) {
			return nil, ErrClaimConflict
		}
	default:
		return nil, ErrClaimConflict
	}

	var unmet int
	err = tx.QueryRow(`
		SELECT COUNT(*) FROM task_deps d
		JOIN tasks dep ON dep.id = d.depends_on
		WHERE d.task_id = ? AND dep.status != 'completed'`, taskID).Scan(&unmet)
	if err != nil {
		return nil, fmt.Errorf("check dependencies: %w", err)
	}
	if unmet > 0 {
		return nil, ErrDependencyUnmet
	}

	expiry := now.Add(ttl)
	result, err := tx.Exec(`
		UPDATE tasks SET status = ?, claimed_by = ?, claim_expiry = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		models.TaskStatusClaimed, workerID, expiry, now, taskID, task.Version)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		// Another claim won between our read and write.
		return nil, ErrClaimConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	task.Status = models.TaskStatusClaimed
	task.ClaimedBy = workerID
	task.ClaimExpiry = &expiry
	task.Version++
	task.UpdatedAt = now
	return task, nil
}

// RenewLease extends the claim expiry for the owning worker. A worker that
// held the lease but let it lapse gets ErrLeaseExpired; ErrNotOwner is
// reserved for a genuine ownership mismatch.
func (s *Store) RenewLease(taskID, workerID string, ttl time.Duration) (*models.Task, error) {
	now := time.Now().UTC()
	expiry := now.Add(ttl)
	result, err := s.db.Exec(`
		UPDATE tasks SET claim_expiry = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND claimed_by = ? AND status IN ('claimed', 'in_progress') AND claim_expiry > ?`,
		expiry, now, taskID, workerID, now)
	if err != nil {
		return nil, fmt.Errorf("renew lease: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check rows affected: %w", err)
	}
	if affected == 0 {
		task, err := s.GetTask(taskID)
		if err != nil {
			return nil, err
		}
		if task.ClaimedBy == workerID && task.ClaimExpiry != nil && !task.ClaimExpiry.After(now) {
			return nil, ErrLeaseExpired
		}
		return nil, ErrNotOwner
	}
	return s.GetTask(taskID)
}

// MarkInProgress moves a claimed task to in_progress for the owning worker.
func (s *Store) MarkInProgress(taskID, workerID string) error {
	now := time.Now().UTC()
	result, err := s.db.Exec(`
		UPDATE tasks SET status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND claimed_by = ? AND status = ?`,
		models.TaskStatusInProgress, now, taskID, workerID, models.TaskStatusClaimed)
	if err != nil {
		return fmt.Errorf("mark in progress: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotOwner
	}
	return nil
}

// ReleaseTask drops the lease held by workerID and moves the task to the
// given status. Passing pending reverts an abandoned task to the queue.
func (s *Store) ReleaseTask(taskID, workerID string, to models.TaskStatus) error {
	now := time.Now().UTC()
	result, err := s.db.Exec(`
		UPDATE tasks SET status = ?, claimed_by = NULL, claim_expiry = NULL, version = version + 1, updated_at = ?
		WHERE id = ? AND claimed_by = ?`,
		to, now, taskID, workerID)
	if err != nil {
		return fmt.Errorf("release task: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotOwner
	}
	return nil
}

// ExpiredLeases returns tasks whose lease is past its expiry, plus tasks
// whose owner appears in deadWorkers regardless of nominal expiry.
func (s *Store) ExpiredLeases(deadWorkers []string) ([]models.Task, error) {
	now := time.Now().UTC()
	dead := make(map[string]bool, len(deadWorkers))
	for _, id := range deadWorkers {
		dead[id] = true
	}

	rows, err := s.db.Query(`SELECT `+taskColumns+` FROM tasks WHERE status IN ('claimed', 'in_progress')`)
	if err != nil {
		return nil, fmt.Errorf("query leased tasks: %w", err)
	}
	defer rows.Close()

	var expired []models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if task.ClaimExpiry != nil && !task.ClaimExpiry.After(now) {
			expired = append(expired, *task)
			continue
		}
		if dead[task.ClaimedBy] {
			expired = append(expired, *task)
		}
	}
	return expired, rows.Err()
}

// RevertLease returns a leased task to pending without touching its retry
// counter. Liveness failure is not a verification failure. The version guard
// keeps a concurrent renewal or release from being overwritten.
func (s *Store) RevertLease(taskID string, expectedVersion int64) error {
	now := time.Now().UTC()
	result, err := s.db.Exec(`
		UPDATE tasks SET status = ?, claimed_by = NULL, claim_expiry = NULL, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		models.TaskStatusPending, now, taskID, expectedVersion)
	if err != nil {
		return fmt.Errorf("revert lease: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrVersionMismatch
	}
	return nil
}

// ScheduleRetry returns a task to pending with an incremented retry counter
// and a backoff deadline before which it is not claimable.
func (s *Store) ScheduleRetry(taskID string, nextAttempt time.Time) error {
	now := time.Now().UTC()
	result, err := s.db.Exec(`
		UPDATE tasks SET status = ?, claimed_by = NULL, claim_expiry = NULL,
			retry_count = retry_count + 1, next_attempt_at = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.TaskStatusPending, nextAttempt.UTC(), now, taskID, models.TaskStatusAwaitingVerification)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionStatus moves a task from one status to another, returning whether
// the transition happened. A false return with nil error means the task was
// no longer in the from status; finalization side effects keyed on this are
// idempotent under replay.
func (s *Store) TransitionStatus(taskID string, from, to models.TaskStatus) (bool, error) {
	now := time.Now().UTC()
	result, err := s.db.Exec(`
		UPDATE tasks SET status = ?, claimed_by = NULL, claim_expiry = NULL, version = version + 1, updated_at = ?
		WHERE id = ? AND status = ?`,
		to, now, taskID, from)
	if err != nil {
		return false, fmt.Errorf("transition status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}
	return affected > 0, nil
}

// TagReview marks an awaiting_verification task for a secondary pass.
func (s *Store) TagReview(taskID string) (bool, error) {
	now := time.Now().UTC()
	result, err := s.db.Exec(`
		UPDATE tasks SET review_tagged = 1, claimed_by = NULL, claim_expiry = NULL, version = version + 1, updated_at = ?
		WHERE id = ? AND status = ?`,
		now, taskID, models.TaskStatusAwaitingVerification)
	if err != nil {
		return false, fmt.Errorf("tag review: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// CancelTask rejects a task from any pre-completed state.
func (s *Store) CancelTask(taskID string) error {
	task, err := s.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return ErrTerminal
	}
	now := time.Now().UTC()
	result, err := s.db.Exec(`
		UPDATE tasks SET status = ?, claimed_by = NULL, claim_expiry = NULL, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		models.TaskStatusRejected, now, taskID, task.Version)
	if err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrVersionMismatch
	}
	return nil
}

// --- Event Log ---

// AppendEvent appends one entry to the audit log and returns its sequence
// number. The log is append-only; nothing updates or deletes rows.
func (s *Store) AppendEvent(actor, eventType, taskID, payload string) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO events (actor, type, task_id, payload, timestamp) VALUES (?, ?, ?, ?, ?)`,
		actor, eventType, taskID, payload, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("event sequence: %w", err)
	}
	return seq, nil
}

// Events returns log entries after the given sequence number, oldest first.
// Pass taskID to restrict to a single task's trail.
func (s *Store) Events(afterSeq int64, taskID string, limit int) ([]models.Event, error) {
	query := `SELECT seq, actor, type, task_id, payload, timestamp FROM events WHERE seq > ?`
	args := []interface{}{afterSeq}
	if taskID != "" {
		query += ` AND task_id = ?`
		args = append(args, taskID)
	}
	query += ` ORDER BY seq ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		var taskID, payload sql.NullString
		if err := rows.Scan(&ev.Seq, &ev.Actor, &ev.Type, &taskID, &payload, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.TaskID = taskID.String
		ev.Payload = payload.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

// --- Heartbeats ---

// RecordHeartbeat upserts the last-seen time for a worker and marks it
// active again. Heartbeat writes are independent per worker.
func (s *Store) RecordHeartbeat(workerID string, role models.WorkerRole) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO heartbeats (worker_id, role, status, last_heartbeat) VALUES (?, ?, ?, ?)
		ON CONFLICT(worker_id) DO UPDATE SET role = excluded.role, status = 'active', last_heartbeat = excluded.last_heartbeat`,
		workerID, role, models.WorkerActive, now)
	if err != nil {
		return fmt.Errorf("record heartbeat: %w", err)
	}
	return nil
}

// ListWorkers returns all tracked worker instances.
func (s *Store) ListWorkers() ([]models.Worker, error) {
	rows, err := s.db.Query(`SELECT worker_id, role, status, last_heartbeat FROM heartbeats ORDER BY worker_id`)
	if err != nil {
		return nil, fmt.Errorf("query workers: %w", err)
	}
	defer rows.Close()

	var workers []models.Worker
	for rows.Next() {
		var w models.Worker
		if err := rows.Scan(&w.ID, &w.Role, &w.Status, &w.LastHeartbeat); err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

// MarkUnresponsive flags workers whose last heartbeat is older than the
// cutoff and returns the IDs of workers newly flagged.
func (s *Store) MarkUnresponsive(cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT worker_id FROM heartbeats WHERE status = 'active' AND last_heartbeat < ?`,
		cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("query stale workers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan worker id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := s.db.Exec(`UPDATE heartbeats SET status = 'unresponsive' WHERE worker_id = ?`, id); err != nil {
			return nil, fmt.Errorf("mark unresponsive: %w", err)
		}
	}
	return ids, nil
}

// UnresponsiveWorkers returns IDs of all workers currently flagged.
func (s *Store) UnresponsiveWorkers() ([]string, error) {
	rows, err := s.db.Query(`SELECT worker_id FROM heartbeats WHERE status = 'unresponsive'`)
	if err != nil {
		return nil, fmt.Errorf("query unresponsive workers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan worker id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- Completion Claims ---

// CreateClaim records an executor's completion claim for a task.
func (s *Store) CreateClaim(taskID, workerID, summary string, artifacts []string) (*models.CompletionClaim, error) {
	now := time.Now().UTC()
	claim := &models.CompletionClaim{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		WorkerID:  workerID,
		Artifacts: artifacts,
		Summary:   summary,
		CreatedAt: now,
	}
	artifactsJSON, _ := json.Marshal(artifacts)

	_, err := s.db.Exec(
		`INSERT INTO claims (id, task_id, worker_id, artifacts, summary, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		claim.ID, claim.TaskID, claim.WorkerID, string(artifactsJSON), claim.Summary, claim.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert claim: %w", err)
	}
	return claim, nil
}

// LatestClaim returns the most recent completion claim for a task.
func (s *Store) LatestClaim(taskID string) (*models.CompletionClaim, error) {
	claim := &models.CompletionClaim{}
	var artifactsJSON sql.NullString
	err := s.db.QueryRow(
		`SELECT id, task_id, worker_id, artifacts, summary, created_at FROM claims
		 WHERE task_id = ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		taskID,
	).Scan(&claim.ID, &claim.TaskID, &claim.WorkerID, &artifactsJSON, &claim.Summary, &claim.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query claim: %w", err)
	}
	if artifactsJSON.Valid && artifactsJSON.String != "" {
		json.Unmarshal([]byte(artifactsJSON.String), &claim.Artifacts)
	}
	return claim, nil
}

// --- Verification Reports ---

// SaveReport persists one verification run.
func (s *Store) SaveReport(report *models.Report) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	checksJSON, err := json.Marshal(report.Checks)
	if err != nil {
		return fmt.Errorf("marshal checks: %w", err)
	}
	retried := 0
	if report.Retried {
		retried = 1
	}
	_, err = s.db.Exec(
		`INSERT INTO reports (id, task_id, claim_id, checks, confidence, decision, retried, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID, report.TaskID, report.ClaimID, string(checksJSON), report.Confidence, report.Decision, retried, report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// ReportsForTask returns the full verification history for a task, oldest
// first, so escalations always carry the complete trail.
func (s *Store) ReportsForTask(taskID string) ([]models.Report, error) {
	rows, err := s.db.Query(
		`SELECT id, task_id, claim_id, checks, confidence, decision, retried, created_at FROM reports
		 WHERE task_id = ? ORDER BY created_at ASC, id ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	var reports []models.Report
	for rows.Next() {
		var r models.Report
		var claimID sql.NullString
		var checksJSON string
		var retried int
		if err := rows.Scan(&r.ID, &r.TaskID, &claimID, &checksJSON, &r.Confidence, &r.Decision, &retried, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		r.ClaimID = claimID.String
		r.Retried = retried != 0
		if err := json.Unmarshal([]byte(checksJSON), &r.Checks); err != nil {
			return nil, fmt.Errorf("unmarshal checks: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// --- Resolutions ---

// SaveResolution records an explicit external verdict.
func (s *Store) SaveResolution(res *models.Resolution) error {
	if res.ID == "" {
		res.ID = uuid.New().String()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	requeue := 0
	if res.Requeue {
		requeue = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO resolutions (id, task_id, action, resolver, note, requeue, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.TaskID, res.Action, res.Resolver, res.Note, requeue, res.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert resolution: %w", err)
	}
	return nil
}

// ResolutionsForTask returns all verdicts recorded for a task, oldest first.
func (s *Store) ResolutionsForTask(taskID string) ([]models.Resolution, error) {
	rows, err := s.db.Query(
		`SELECT id, task_id, action, resolver, note, requeue, created_at FROM resolutions
		 WHERE task_id = ? ORDER BY created_at ASC, id ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("query resolutions: %w", err)
	}
	defer rows.Close()

	var resolutions []models.Resolution
	for rows.Next() {
		var r models.Resolution
		var note sql.NullString
		var requeue int
		if err := rows.Scan(&r.ID, &r.TaskID, &r.Action, &r.Resolver, &note, &requeue, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan resolution: %w", err)
		}
		r.Note = note.String
		r.Requeue = requeue != 0
		resolutions = append(resolutions, r)
	}
	return resolutions, rows.Err()
}
