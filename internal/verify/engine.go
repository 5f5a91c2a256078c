// Package verify scores completion claims against a weighted check policy
// and routes them to auto-commit, secondary review, or human escalation.
//
// Confidence is a pure function of check outcomes and weights:
// Σ(weight × score) with score(pass)=1.0, score(skip)=0.5, score(fail)=0.0.
package verify

import (
	"context"
	"log/slog"
	"time"

	"github.com/crewd-dev/crewd/internal/audit"
	"github.com/crewd-dev/crewd/internal/config"
	"github.com/crewd-dev/crewd/internal/models"
	"github.com/crewd-dev/crewd/internal/probe"
	"github.com/crewd-dev/crewd/internal/store"
)

// Engine runs verification for completion claims.
type Engine struct {
	store    *store.Store
	events   *audit.Writer
	registry *probe.Registry
	logger   *slog.Logger
}

// NewEngine creates a verification engine backed by the probe registry.
func NewEngine(s *store.Store, events *audit.Writer, registry *probe.Registry, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: s, events: events, registry: registry, logger: logger}
}

// Outcome is the result of one verification run. When Retried is true no
// decision was finalized: the task went back to the queue with a backoff
// and an incremented retry counter.
type Outcome struct {
	Report  *models.Report
	Retried bool
}

// Score maps a check outcome to its contribution factor.
func Score(outcome models.CheckOutcome) float64 {
	switch outcome {
	case models.OutcomePass:
		return 1.0
	case models.OutcomeSkip:
		return 0.5
	default:
		return 0.0
	}
}

// Confidence computes the weighted aggregate of check outcomes. It is
// deterministic and always within [0,1] for a valid policy.
func Confidence(checks []models.Check) float64 {
	var c float64
	for _, check := range checks {
		c += check.Weight * Score(check.Outcome)
	}
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}

// Decide maps confidence and override rules to a decision. A failed check
// flagged critical forces human review regardless of aggregate confidence,
// and exhausted retries force human review irrespective of score. A run in
// which nothing failed never escalates: low confidence there is missing
// signal from skipped checks, not evidence of a problem, so an all-skip run
// (confidence 0.5) queues for secondary review.
func Decide(checks []models.Check, confidence float64, policy config.PolicyConfig, retriesExhausted bool) models.Decision {
	if retriesExhausted {
		return models.DecisionHumanReview
	}
	failed := false
	for _, check := range checks {
		if check.Outcome != models.OutcomeFail {
			continue
		}
		if check.Critical {
			return models.DecisionHumanReview
		}
		failed = true
	}
	switch {
	case confidence >= policy.AutoCommitThreshold:
		return models.DecisionAutoCommit
	case confidence >= policy.ReviewThreshold:
		return models.DecisionQueueReview
	case !failed:
		return models.DecisionQueueReview
	default:
		return models.DecisionHumanReview
	}
}

// Evaluate runs every configured check against the claim, persists a
// report, and emits a verified event. When a transient failure occurs and
// retries remain, no decision is finalized: the task is requeued with an
// exponential backoff instead.
func (e *Engine) Evaluate(ctx context.Context, task *models.Task, claim *models.CompletionClaim, policy config.PolicyConfig) (*Outcome, error) {
	in := probe.Input{Task: *task, Claim: *claim}
	checks := make([]models.Check, 0, len(policy.Checks))
	for _, spec := range policy.Checks {
		result := e.registry.Run(ctx, spec.Name, in)
		checks = append(checks, models.Check{
			Name:     spec.Name,
			Weight:   spec.Weight,
			Critical: spec.Critical,
			Outcome:  result.Outcome,
			Category: result.Category,
			Detail:   result.Detail,
		})
	}

	confidence := Confidence(checks)
	retriesExhausted := task.RetryCount >= policy.MaxRetries

	transient := false
	for _, check := range checks {
		if check.Outcome == models.OutcomeFail && policy.Transient(check.Category) {
			transient = true
			break
		}
	}

	report := &models.Report{
		TaskID:     task.ID,
		ClaimID:    claim.ID,
		Checks:     checks,
		Confidence: confidence,
	}

	if transient && !retriesExhausted {
		report.Decision = Decide(checks, confidence, policy, false)
		report.Retried = true
		if err := e.store.SaveReport(report); err != nil {
			return nil, err
		}
		e.events.Record(claim.WorkerID, models.EventVerified, task.ID, verifiedPayload(report))

		attempt := task.RetryCount + 1
		delay := policy.Backoff(attempt)
		nextAttempt := time.Now().UTC().Add(delay)
		if err := e.store.ScheduleRetry(task.ID, nextAttempt); err != nil {
			return nil, err
		}
		e.events.Record(claim.WorkerID, models.EventRetryScheduled, task.ID, map[string]interface{}{
			"retry_count":     attempt,
			"backoff":         delay.String(),
			"next_attempt_at": nextAttempt,
		})
		e.logger.Info("transient failure, retry scheduled",
			"task_id", task.ID, "retry_count", attempt, "backoff", delay)
		return &Outcome{Report: report, Retried: true}, nil
	}

	report.Decision = Decide(checks, confidence, policy, retriesExhausted)
	if err := e.store.SaveReport(report); err != nil {
		return nil, err
	}
	e.events.Record(claim.WorkerID, models.EventVerified, task.ID, verifiedPayload(report))
	return &Outcome{Report: report}, nil
}

func verifiedPayload(report *models.Report) map[string]interface{} {
	return map[string]interface{}{
		"report_id":  report.ID,
		"confidence": report.Confidence,
		"decision":   string(report.Decision),
		"retried":    report.Retried,
	}
}
