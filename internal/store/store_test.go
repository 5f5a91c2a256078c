package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/crewd-dev/crewd/internal/models"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestTaskCRUD(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	// Create
	task, err := s.CreateTask("Test Task", "Test Description", models.PriorityHigh, nil, []string{"does the thing"})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.ID == "" {
		t.Error("Task ID should not be empty")
	}
	if task.Status != models.TaskStatusPending {
		t.Errorf("Expected status pending, got %s", task.Status)
	}
	if task.Version != 1 {
		t.Errorf("Expected version 1, got %d", task.Version)
	}

	// Get
	got, err := s.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got.Title != "Test Task" {
		t.Errorf("Expected title 'Test Task', got %s", got.Title)
	}
	if got.Priority != models.PriorityHigh {
		t.Errorf("Expected priority high, got %s", got.Priority)
	}
	if len(got.AcceptanceCriteria) != 1 || got.AcceptanceCriteria[0] != "does the thing" {
		t.Errorf("Unexpected acceptance criteria: %v", got.AcceptanceCriteria)
	}

	// Get missing
	if _, err := s.GetTask("no-such-task"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	// List
	tasks, err := s.ListTasks("")
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("Expected 1 task, got %d", len(tasks))
	}

	// List with filter
	tasks, err = s.ListTasks("pending")
	if err != nil {
		t.Fatalf("ListTasks with filter failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("Expected 1 pending task, got %d", len(tasks))
	}

	tasks, err = s.ListTasks("completed")
	if err != nil {
		t.Fatalf("ListTasks with filter failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("Expected 0 completed tasks, got %d", len(tasks))
	}
}

func TestCreateTaskInvalidPriority(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, err := s.CreateTask("Test", "", models.Priority("urgent"), nil, nil)
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if task.Priority != models.PriorityMedium {
		t.Errorf("Expected unknown priority to default to medium, got %s", task.Priority)
	}
}

func TestClaimTask(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, _ := s.CreateTask("Test", "", models.PriorityMedium, nil, nil)

	claimed, err := s.ClaimTask(task.ID, "worker-1", 5*time.Minute)
	if err != nil {
		t.Fatalf("ClaimTask failed: %v", err)
	}
	if claimed.Status != models.TaskStatusClaimed {
		t.Errorf("Expected status claimed, got %s", claimed.Status)
	}
	if claimed.ClaimedBy != "worker-1" {
		t.Errorf("Expected claimed by worker-1, got %s", claimed.ClaimedBy)
	}
	if claimed.ClaimExpiry == nil || !claimed.ClaimExpiry.After(time.Now().UTC()) {
		t.Error("Expected claim expiry in the future")
	}
	if claimed.Version != 2 {
		t.Errorf("Expected version bump to 2, got %d", claimed.Version)
	}

	// Second claim by a different worker fails while the lease holds
	_, err = s.ClaimTask(task.ID, "worker-2", 5*time.Minute)
	if !errors.Is(err, ErrClaimConflict) {
		t.Errorf("Expected ErrClaimConflict, got %v", err)
	}
}

func TestClaimTaskExpiredLease(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, _ := s.CreateTask("Test", "", models.PriorityMedium, nil, nil)

	// Claim with an already-expired lease
	_, err := s.ClaimTask(task.ID, "worker-1", -time.Second)
	if err != nil {
		t.Fatalf("ClaimTask failed: %v", err)
	}

	// An expired lease does not block a new claim
	claimed, err := s.ClaimTask(task.ID, "worker-2", 5*time.Minute)
	if err != nil {
		t.Fatalf("Claim over expired lease failed: %v", err)
	}
	if claimed.ClaimedBy != "worker-2" {
		t.Errorf("Expected worker-2 to take over, got %s", claimed.ClaimedBy)
	}
}

func TestClaimTaskDependencyUnmet(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	dep, _ := s.CreateTask("Dependency", "", models.PriorityMedium, nil, nil)
	task, _ := s.CreateTask("Dependent", "", models.PriorityMedium, []string{dep.ID}, nil)

	_, err := s.ClaimTask(task.ID, "worker-1", 5*time.Minute)
	if !errors.Is(err, ErrDependencyUnmet) {
		t.Errorf("Expected ErrDependencyUnmet, got %v", err)
	}

	// Complete the dependency; the claim now succeeds
	if _, err := s.TransitionStatus(dep.ID, models.TaskStatusPending, models.TaskStatusCompleted); err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}
	if _, err := s.ClaimTask(task.ID, "worker-1", 5*time.Minute); err != nil {
		t.Fatalf("Claim after dependency completed failed: %v", err)
	}
}

func TestClaimTaskBackoff(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, _ := s.CreateTask("Test", "", models.PriorityMedium, nil, nil)

	// Park the task behind a retry backoff
	if _, err := s.ClaimTask(task.ID, "worker-1", 5*time.Minute); err != nil {
		t.Fatalf("ClaimTask failed: %v", err)
	}
	if err := s.ReleaseTask(task.ID, "worker-1", models.TaskStatusAwaitingVerification); err != nil {
		t.Fatalf("ReleaseTask failed: %v", err)
	}
	if err := s.ScheduleRetry(task.ID, time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("ScheduleRetry failed: %v", err)
	}

	_, err := s.ClaimTask(task.ID, "worker-2", 5*time.Minute)
	if !errors.Is(err, ErrClaimConflict) {
		t.Errorf("Expected ErrClaimConflict during backoff, got %v", err)
	}
}

func TestConcurrentClaims(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, _ := s.CreateTask("Test", "", models.PriorityMedium, nil, nil)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.ClaimTask(task.ID, fmt.Sprintf("worker-%d", n), 5*time.Minute)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	wins, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrClaimConflict):
			conflicts++
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("Expected exactly 1 winning claim, got %d", wins)
	}
	if conflicts != workers-1 {
		t.Errorf("Expected %d conflicts, got %d", workers-1, conflicts)
	}
}

func TestClaimableOrdering(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	low, _ := s.CreateTask("Low", "", models.PriorityLow, nil, nil)
	critical, _ := s.CreateTask("Critical", "", models.PriorityCritical, nil, nil)
	high, _ := s.CreateTask("High", "", models.PriorityHigh, nil, nil)

	tasks, err := s.ClaimableTasks(10)
	if err != nil {
		t.Fatalf("ClaimableTasks failed: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("Expected 3 claimable tasks, got %d", len(tasks))
	}
	want := []string{critical.ID, high.ID, low.ID}
	for i, id := range want {
		if tasks[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, tasks[i].ID)
		}
	}

	depth, err := s.ClaimableDepth()
	if err != nil {
		t.Fatalf("ClaimableDepth failed: %v", err)
	}
	if depth != 3 {
		t.Errorf("Expected depth 3, got %d", depth)
	}
}

func TestRenewLease(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, _ := s.CreateTask("Test", "", models.PriorityMedium, nil, nil)
	claimed, _ := s.ClaimTask(task.ID, "worker-1", 5*time.Minute)

	renewed, err := s.RenewLease(task.ID, "worker-1", 10*time.Minute)
	if err != nil {
		t.Fatalf("RenewLease failed: %v", err)
	}
	if !renewed.ClaimExpiry.After(*claimed.ClaimExpiry) {
		t.Error("Expected renewed expiry to move forward")
	}

	// A non-owner cannot renew
	_, err = s.RenewLease(task.ID, "worker-2", 10*time.Minute)
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}
}

func TestRenewExpiredLease(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, _ := s.CreateTask("Test", "", models.PriorityMedium, nil, nil)
	if _, err := s.ClaimTask(task.ID, "worker-1", -time.Second); err != nil {
		t.Fatalf("ClaimTask failed: %v", err)
	}

	// A lease already past expiry cannot be renewed, and the lapse is
	// reported as such rather than as an ownership violation
	_, err := s.RenewLease(task.ID, "worker-1", 5*time.Minute)
	if !errors.Is(err, ErrLeaseExpired) {
		t.Errorf("Expected ErrLeaseExpired for expired lease, got %v", err)
	}

	// A worker that never held the lease still gets ErrNotOwner
	_, err = s.RenewLease(task.ID, "worker-2", 5*time.Minute)
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner for a stranger, got %v", err)
	}
}

func TestMarkInProgressAndRelease(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, _ := s.CreateTask("Test", "", models.PriorityMedium, nil, nil)
	s.ClaimTask(task.ID, "worker-1", 5*time.Minute)

	if err := s.MarkInProgress(task.ID, "worker-2"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Expected ErrNotOwner, got %v", err)
	}
	if err := s.MarkInProgress(task.ID, "worker-1"); err != nil {
		t.Fatalf("MarkInProgress failed: %v", err)
	}

	got, _ := s.GetTask(task.ID)
	if got.Status != models.TaskStatusInProgress {
		t.Errorf("Expected in_progress, got %s", got.Status)
	}

	if err := s.ReleaseTask(task.ID, "worker-1", models.TaskStatusAwaitingVerification); err != nil {
		t.Fatalf("ReleaseTask failed: %v", err)
	}
	got, _ = s.GetTask(task.ID)
	if got.Status != models.TaskStatusAwaitingVerification {
		t.Errorf("Expected awaiting_verification, got %s", got.Status)
	}
	if got.ClaimedBy != "" {
		t.Errorf("Expected claim cleared, got %s", got.ClaimedBy)
	}
}

func TestExpiredLeasesAndRevert(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	expired, _ := s.CreateTask("Expired", "", models.PriorityMedium, nil, nil)
	held, _ := s.CreateTask("Held", "", models.PriorityMedium, nil, nil)
	deadHeld, _ := s.CreateTask("Dead worker", "", models.PriorityMedium, nil, nil)

	s.ClaimTask(expired.ID, "worker-1", -time.Second)
	s.ClaimTask(held.ID, "worker-2", time.Hour)
	s.ClaimTask(deadHeld.ID, "worker-3", time.Hour)

	// worker-3 is flagged unresponsive: its lease counts as expired even
	// though the nominal expiry is an hour away.
	tasks, err := s.ExpiredLeases([]string{"worker-3"})
	if err != nil {
		t.Fatalf("ExpiredLeases failed: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("Expected 2 expired leases, got %d", len(tasks))
	}

	for _, task := range tasks {
		if err := s.RevertLease(task.ID, task.Version); err != nil {
			t.Fatalf("RevertLease failed: %v", err)
		}
		got, _ := s.GetTask(task.ID)
		if got.Status != models.TaskStatusPending {
			t.Errorf("Expected pending after revert, got %s", got.Status)
		}
		if got.RetryCount != 0 {
			t.Errorf("Revert must not touch retry_count, got %d", got.RetryCount)
		}
	}

	// Stale version loses
	got, _ := s.GetTask(held.ID)
	if err := s.RevertLease(held.ID, got.Version-1); !errors.Is(err, ErrVersionMismatch) {
		t.Errorf("Expected ErrVersionMismatch, got %v", err)
	}
}

func TestScheduleRetry(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, _ := s.CreateTask("Test", "", models.PriorityMedium, nil, nil)
	s.ClaimTask(task.ID, "worker-1", 5*time.Minute)
	s.ReleaseTask(task.ID, "worker-1", models.TaskStatusAwaitingVerification)

	next := time.Now().UTC().Add(30 * time.Second)
	if err := s.ScheduleRetry(task.ID, next); err != nil {
		t.Fatalf("ScheduleRetry failed: %v", err)
	}

	got, _ := s.GetTask(task.ID)
	if got.Status != models.TaskStatusPending {
		t.Errorf("Expected pending, got %s", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("Expected retry_count 1, got %d", got.RetryCount)
	}
	if got.NextAttemptAt == nil {
		t.Fatal("Expected next_attempt_at to be set")
	}

	// Only awaiting_verification tasks can be scheduled for retry
	if err := s.ScheduleRetry(task.ID, next); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for pending task, got %v", err)
	}
}

func TestTransitionStatus(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, _ := s.CreateTask("Test", "", models.PriorityMedium, nil, nil)
	s.ClaimTask(task.ID, "worker-1", 5*time.Minute)
	s.ReleaseTask(task.ID, "worker-1", models.TaskStatusAwaitingVerification)

	changed, err := s.TransitionStatus(task.ID, models.TaskStatusAwaitingVerification, models.TaskStatusCompleted)
	if err != nil {
		t.Fatalf("TransitionStatus failed: %v", err)
	}
	if !changed {
		t.Error("Expected transition to apply")
	}

	// Replay is a no-op, not an error
	changed, err = s.TransitionStatus(task.ID, models.TaskStatusAwaitingVerification, models.TaskStatusCompleted)
	if err != nil {
		t.Fatalf("TransitionStatus replay failed: %v", err)
	}
	if changed {
		t.Error("Expected replayed transition to be a no-op")
	}
}

func TestTagReview(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, _ := s.CreateTask("Test", "", models.PriorityMedium, nil, nil)

	// Not yet awaiting verification
	changed, err := s.TagReview(task.ID)
	if err != nil {
		t.Fatalf("TagReview failed: %v", err)
	}
	if changed {
		t.Error("Expected no tag on a pending task")
	}

	s.ClaimTask(task.ID, "worker-1", 5*time.Minute)
	s.ReleaseTask(task.ID, "worker-1", models.TaskStatusAwaitingVerification)

	changed, err = s.TagReview(task.ID)
	if err != nil {
		t.Fatalf("TagReview failed: %v", err)
	}
	if !changed {
		t.Error("Expected tag to apply")
	}
	got, _ := s.GetTask(task.ID)
	if !got.ReviewTagged {
		t.Error("Expected review_tagged set")
	}
}

func TestCancelTask(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, _ := s.CreateTask("Test", "", models.PriorityMedium, nil, nil)

	if err := s.CancelTask(task.ID); err != nil {
		t.Fatalf("CancelTask failed: %v", err)
	}
	got, _ := s.GetTask(task.ID)
	if got.Status != models.TaskStatusRejected {
		t.Errorf("Expected rejected, got %s", got.Status)
	}

	// Terminal tasks cannot be cancelled again
	if err := s.CancelTask(task.ID); !errors.Is(err, ErrTerminal) {
		t.Errorf("Expected ErrTerminal, got %v", err)
	}

	done, _ := s.CreateTask("Done", "", models.PriorityMedium, nil, nil)
	s.TransitionStatus(done.ID, models.TaskStatusPending, models.TaskStatusCompleted)
	if err := s.CancelTask(done.ID); !errors.Is(err, ErrTerminal) {
		t.Errorf("Expected ErrTerminal for completed task, got %v", err)
	}
}

func TestEvents(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	seq1, err := s.AppendEvent("tester", models.EventTaskCreated, "task-1", `{"title":"a"}`)
	if err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}
	seq2, _ := s.AppendEvent("tester", models.EventClaimed, "task-1", "")
	seq3, _ := s.AppendEvent("tester", models.EventTaskCreated, "task-2", "")

	if !(seq1 < seq2 && seq2 < seq3) {
		t.Errorf("Expected strictly increasing sequence, got %d %d %d", seq1, seq2, seq3)
	}

	events, err := s.Events(0, "", 100)
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq <= events[i-1].Seq {
			t.Error("Events not in sequence order")
		}
	}

	// Scoped to one task
	events, _ = s.Events(0, "task-1", 100)
	if len(events) != 2 {
		t.Errorf("Expected 2 events for task-1, got %d", len(events))
	}

	// After a cursor
	events, _ = s.Events(seq2, "", 100)
	if len(events) != 1 || events[0].Seq != seq3 {
		t.Errorf("Expected only the last event after cursor, got %d", len(events))
	}
}

func TestHeartbeats(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	if err := s.RecordHeartbeat("worker-1", models.RoleExecutor); err != nil {
		t.Fatalf("RecordHeartbeat failed: %v", err)
	}
	if err := s.RecordHeartbeat("worker-2", models.RoleVerifier); err != nil {
		t.Fatalf("RecordHeartbeat failed: %v", err)
	}

	workers, err := s.ListWorkers()
	if err != nil {
		t.Fatalf("ListWorkers failed: %v", err)
	}
	if len(workers) != 2 {
		t.Fatalf("Expected 2 workers, got %d", len(workers))
	}

	// Flag everything seen before a future cutoff
	flagged, err := s.MarkUnresponsive(time.Now().UTC().Add(time.Second))
	if err != nil {
		t.Fatalf("MarkUnresponsive failed: %v", err)
	}
	if len(flagged) != 2 {
		t.Errorf("Expected 2 flagged workers, got %d", len(flagged))
	}

	// Flagging is not repeated
	flagged, _ = s.MarkUnresponsive(time.Now().UTC().Add(time.Second))
	if len(flagged) != 0 {
		t.Errorf("Expected no newly flagged workers, got %d", len(flagged))
	}

	ids, err := s.UnresponsiveWorkers()
	if err != nil {
		t.Fatalf("UnresponsiveWorkers failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("Expected 2 unresponsive workers, got %d", len(ids))
	}

	// A fresh heartbeat reactivates the worker
	s.RecordHeartbeat("worker-1", models.RoleExecutor)
	ids, _ = s.UnresponsiveWorkers()
	if len(ids) != 1 {
		t.Errorf("Expected 1 unresponsive worker after heartbeat, got %d", len(ids))
	}
}

func TestClaimsAndReports(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, _ := s.CreateTask("Test", "", models.PriorityMedium, nil, nil)

	if _, err := s.LatestClaim(task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound without claims, got %v", err)
	}

	claim, err := s.CreateClaim(task.ID, "worker-1", "did the thing", []string{"out.txt"})
	if err != nil {
		t.Fatalf("CreateClaim failed: %v", err)
	}

	got, err := s.LatestClaim(task.ID)
	if err != nil {
		t.Fatalf("LatestClaim failed: %v", err)
	}
	if got.ID != claim.ID {
		t.Errorf("Expected claim %s, got %s", claim.ID, got.ID)
	}
	if len(got.Artifacts) != 1 || got.Artifacts[0] != "out.txt" {
		t.Errorf("Unexpected artifacts: %v", got.Artifacts)
	}

	report := &models.Report{
		TaskID:  task.ID,
		ClaimID: claim.ID,
		Checks: []models.Check{
			{Name: "unit_tests", Weight: 0.5, Critical: true, Outcome: models.OutcomePass},
			{Name: "linting", Weight: 0.5, Outcome: models.OutcomeFail, Category: "style"},
		},
		Confidence: 0.5,
		Decision:   models.DecisionHumanReview,
	}
	if err := s.SaveReport(report); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	if report.ID == "" {
		t.Error("Expected report ID to be assigned")
	}

	reports, err := s.ReportsForTask(task.ID)
	if err != nil {
		t.Fatalf("ReportsForTask failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("Expected 1 report, got %d", len(reports))
	}
	if len(reports[0].Checks) != 2 {
		t.Errorf("Expected 2 checks, got %d", len(reports[0].Checks))
	}
	if !reports[0].Checks[0].Critical {
		t.Error("Expected critical flag to round-trip")
	}
}

func TestResolutions(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	task, _ := s.CreateTask("Test", "", models.PriorityMedium, nil, nil)

	res := &models.Resolution{
		TaskID:   task.ID,
		Action:   models.ResolutionReject,
		Resolver: "human",
		Note:     "not good enough",
		Requeue:  true,
	}
	if err := s.SaveResolution(res); err != nil {
		t.Fatalf("SaveResolution failed: %v", err)
	}

	resolutions, err := s.ResolutionsForTask(task.ID)
	if err != nil {
		t.Fatalf("ResolutionsForTask failed: %v", err)
	}
	if len(resolutions) != 1 {
		t.Fatalf("Expected 1 resolution, got %d", len(resolutions))
	}
	if resolutions[0].Action != models.ResolutionReject || !resolutions[0].Requeue {
		t.Errorf("Resolution did not round-trip: %+v", resolutions[0])
	}
}

func TestCompletedTitles(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	done, _ := s.CreateTask("Implement auth", "", models.PriorityMedium, nil, nil)
	s.TransitionStatus(done.ID, models.TaskStatusPending, models.TaskStatusCompleted)
	s.CreateTask("Still pending", "", models.PriorityMedium, nil, nil)

	titles, err := s.CompletedTitles()
	if err != nil {
		t.Fatalf("CompletedTitles failed: %v", err)
	}
	if len(titles) != 1 {
		t.Fatalf("Expected 1 completed title, got %d", len(titles))
	}
	if titles[done.ID] != "Implement auth" {
		t.Errorf("Unexpected title index: %v", titles)
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func newTestStore(t *testing.T) *Store {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}
