// Package decide maps verification decisions onto task state: auto-commit
// finalizes, queue_review tags for a secondary pass, human_review escalates.
// It also applies explicit external resolutions to reviewed and escalated
// tasks.
package decide

import (
	"fmt"
	"log/slog"

	"github.com/crewd-dev/crewd/internal/audit"
	"github.com/crewd-dev/crewd/internal/models"
	"github.com/crewd-dev/crewd/internal/store"
)

// Finalizer runs the commit side effect for an accepted task. It is invoked
// at most once per task; the status transition guards replay.
type Finalizer func(task *models.Task) error

// Controller drives post-verification transitions.
type Controller struct {
	store    *store.Store
	events   *audit.Writer
	logger   *slog.Logger
	finalize Finalizer
}

// NewController creates a decision controller. finalize may be nil.
func NewController(s *store.Store, events *audit.Writer, logger *slog.Logger, finalize Finalizer) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{store: s, events: events, logger: logger, finalize: finalize}
}

// Apply acts on a finalized verification report. Re-applying a report for a
// task that already moved on is a no-op: every transition here is guarded
// by the task's current status, so replay after a crash cannot double-apply
// the completed side effect.
func (c *Controller) Apply(actor string, report *models.Report) error {
	switch report.Decision {
	case models.DecisionAutoCommit:
		return c.commit(actor, report)
	case models.DecisionQueueReview:
		changed, err := c.store.TagReview(report.TaskID)
		if err != nil {
			return err
		}
		if changed {
			c.events.Record(actor, models.EventReviewQueued, report.TaskID, map[string]interface{}{
				"report_id":  report.ID,
				"confidence": report.Confidence,
			})
		}
		return nil
	case models.DecisionHumanReview:
		changed, err := c.store.TransitionStatus(report.TaskID, models.TaskStatusAwaitingVerification, models.TaskStatusEscalated)
		if err != nil {
			return err
		}
		if changed {
			c.events.Record(actor, models.EventEscalated, report.TaskID, map[string]interface{}{
				"report_id":  report.ID,
				"confidence": report.Confidence,
			})
			c.logger.Warn("task escalated", "task_id", report.TaskID, "confidence", report.Confidence)
		}
		return nil
	default:
		return fmt.Errorf("unknown decision %q", report.Decision)
	}
}

func (c *Controller) commit(actor string, report *models.Report) error {
	changed, err := c.store.TransitionStatus(report.TaskID, models.TaskStatusAwaitingVerification, models.TaskStatusCompleted)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if c.finalize != nil {
		task, err := c.store.GetTask(report.TaskID)
		if err != nil {
			return err
		}
		if err := c.finalize(task); err != nil {
			c.logger.Error("finalize side effect failed", "task_id", report.TaskID, "error", err)
		}
	}
	c.events.Record(actor, models.EventCompleted, report.TaskID, map[string]interface{}{
		"report_id":  report.ID,
		"confidence": report.Confidence,
	})
	return nil
}

// Resolve applies an explicit external verdict to a reviewed or escalated
// task. When the task's status changed under the resolver's feet (for
// example an automated decision landed concurrently) the resolution still
// wins, and a resolution_conflict event records the overwrite for audit.
func (c *Controller) Resolve(res *models.Resolution) error {
	task, err := c.store.GetTask(res.TaskID)
	if err != nil {
		return err
	}
	return c.resolveObserved(res, task.Status)
}

// resolveObserved applies a resolution given the status the resolver acted
// on. Split from Resolve so the conflict path is driven by an explicit
// observed status.
func (c *Controller) resolveObserved(res *models.Resolution, observed models.TaskStatus) error {
	var target models.TaskStatus
	switch res.Action {
	case models.ResolutionApprove:
		target = models.TaskStatusCompleted
	case models.ResolutionReject:
		target = models.TaskStatusRejected
		if res.Requeue {
			target = models.TaskStatusPending
		}
	default:
		return fmt.Errorf("unknown resolution action %q", res.Action)
	}

	if err := c.store.SaveResolution(res); err != nil {
		return err
	}

	changed := false
	if observed != target {
		var err error
		changed, err = c.store.TransitionStatus(res.TaskID, observed, target)
		if err != nil {
			return err
		}
		if !changed {
			// Last writer wins: force the resolved status and leave a
			// conflict marker in the trail.
			current, err := c.store.GetTask(res.TaskID)
			if err != nil {
				return err
			}
			if current.Status != target {
				forced, err := c.store.TransitionStatus(res.TaskID, current.Status, target)
				if err != nil {
					return err
				}
				changed = forced
			}
			c.events.Record(res.Resolver, models.EventResolutionConflict, res.TaskID, map[string]interface{}{
				"resolution_id": res.ID,
				"observed":      string(observed),
				"found":         string(current.Status),
				"applied":       string(target),
			})
		}
	}

	if target == models.TaskStatusCompleted && changed && c.finalize != nil {
		task, err := c.store.GetTask(res.TaskID)
		if err != nil {
			return err
		}
		if err := c.finalize(task); err != nil {
			c.logger.Error("finalize side effect failed", "task_id", res.TaskID, "error", err)
		}
	}

	c.events.Record(res.Resolver, models.EventResolved, res.TaskID, map[string]interface{}{
		"resolution_id": res.ID,
		"action":        string(res.Action),
		"status":        string(target),
	})
	return nil
}
