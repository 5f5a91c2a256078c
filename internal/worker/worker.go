// Package worker runs the role loops: planner, executor, and verifier.
// Each worker is an independent, single-threaded cooperative polling loop;
// the coordination store is the only shared state, and cancellation is
// observed at the next poll cycle rather than delivered as an interrupt.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/crewd-dev/crewd/internal/audit"
	"github.com/crewd-dev/crewd/internal/config"
	"github.com/crewd-dev/crewd/internal/decide"
	"github.com/crewd-dev/crewd/internal/heartbeat"
	"github.com/crewd-dev/crewd/internal/lease"
	"github.com/crewd-dev/crewd/internal/models"
	"github.com/crewd-dev/crewd/internal/queue"
	"github.com/crewd-dev/crewd/internal/store"
	"github.com/crewd-dev/crewd/internal/verify"
)

// Performer does the actual work of a claimed task. The substrate treats
// the work content as an external collaborator; the reference performer in
// cmd/crewd just acknowledges the acceptance criteria.
type Performer interface {
	Perform(ctx context.Context, task *models.Task) (summary string, artifacts []string, err error)
}

// Proposal is a candidate task offered by a planning source.
type Proposal struct {
	Title              string
	Description        string
	Priority           models.Priority
	Dependencies       []string
	AcceptanceCriteria []string
}

// Source feeds the planner with candidate tasks.
type Source interface {
	Next(ctx context.Context) (*Proposal, bool)
}

// Options carries the shared wiring for all role loops.
type Options struct {
	Store     *store.Store
	Events    *audit.Writer
	Leases    *lease.Manager
	Heartbeat *heartbeat.Monitor
	Queue     *queue.Manager
	Logger    *slog.Logger

	PollInterval      time.Duration
	HeartbeatInterval time.Duration
}

type base struct {
	id    string
	role  models.WorkerRole
	opts  Options
	guard *Guard
}

func newBase(role models.WorkerRole, opts Options) base {
	id := string(role) + "-" + uuid.New().String()[:8]
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Logger = opts.Logger.With("worker_id", id, "role", string(role))
	return base{id: id, role: role, opts: opts, guard: NewGuard(id, opts.Logger)}
}

// ID returns the worker's instance id.
func (b *base) ID() string { return b.id }

// run drives the poll/heartbeat loop until ctx is cancelled. The first
// heartbeat is pushed before the first tick so the worker is visible
// immediately.
func (b *base) run(ctx context.Context, tick func(ctx context.Context)) {
	b.beat(ctx)

	poll := time.NewTicker(b.opts.PollInterval)
	defer poll.Stop()
	hb := time.NewTicker(b.opts.HeartbeatInterval)
	defer hb.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hb.C:
			b.beat(ctx)
		case <-poll.C:
			tick(ctx)
		}
	}
}

func (b *base) beat(ctx context.Context) {
	err := b.guard.Do(ctx, func() error {
		return b.opts.Heartbeat.Beat(b.id, b.role)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		b.opts.Logger.Error("heartbeat push failed", "error", err)
	}
}

// --- Executor ---

// Executor claims tasks, performs them, and files completion claims.
type Executor struct {
	base
	performer Performer
}

// NewExecutor creates an executor loop.
func NewExecutor(opts Options, performer Performer) *Executor {
	return &Executor{base: newBase(models.RoleExecutor, opts), performer: performer}
}

// Run polls for claimable work until ctx is cancelled.
func (e *Executor) Run(ctx context.Context) {
	e.opts.Logger.Info("executor started")
	e.run(ctx, e.tick)
	e.opts.Logger.Info("executor stopped")
}

func (e *Executor) tick(ctx context.Context) {
	var candidates []models.Task
	err := e.guard.Do(ctx, func() error {
		var err error
		candidates, err = e.opts.Queue.Claimable(5)
		return err
	})
	if err != nil {
		e.opts.Logger.Error("claimable scan failed", "error", err)
		return
	}

	for _, candidate := range candidates {
		task, err := e.opts.Leases.Claim(candidate.ID, e.id)
		if errors.Is(err, store.ErrClaimConflict) || errors.Is(err, store.ErrDependencyUnmet) {
			// Lost the race or the scan was stale; try the next one.
			continue
		}
		if err != nil {
			e.opts.Logger.Error("claim failed", "task_id", candidate.ID, "error", err)
			return
		}
		e.execute(ctx, task)
		return
	}
}

func (e *Executor) execute(ctx context.Context, task *models.Task) {
	logger := e.opts.Logger.With("task_id", task.ID)

	if err := e.opts.Store.MarkInProgress(task.ID, e.id); err != nil {
		logger.Warn("lost lease before starting", "error", err)
		return
	}

	summary, artifacts, err := e.performer.Perform(ctx, task)
	if err != nil {
		logger.Warn("task abandoned", "error", err)
		if relErr := e.opts.Leases.Release(task.ID, e.id, lease.ReleaseAbandoned); relErr != nil {
			logger.Warn("release after failure", "error", relErr)
		}
		return
	}

	// The task may have been cancelled or swept while we worked; a lost
	// lease means our result no longer counts.
	current, err := e.opts.Store.GetTask(task.ID)
	if err != nil || current.ClaimedBy != e.id {
		logger.Warn("lease lost during execution, aborting")
		return
	}

	claim, err := e.opts.Store.CreateClaim(task.ID, e.id, summary, artifacts)
	if err != nil {
		logger.Error("record completion claim", "error", err)
		return
	}
	e.opts.Events.Record(e.id, models.EventClaimSubmitted, task.ID, map[string]interface{}{
		"claim_id": claim.ID,
		"summary":  summary,
	})

	if err := e.opts.Leases.Release(task.ID, e.id, lease.ReleaseCompleted); err != nil {
		logger.Warn("release for verification", "error", err)
		return
	}
	logger.Info("task handed to verification", "claim_id", claim.ID)
}

// --- Verifier ---

// Verifier evaluates completion claims and applies the resulting decision.
type Verifier struct {
	base
	engine     *verify.Engine
	controller *decide.Controller
	policy     func() config.PolicyConfig
}

// NewVerifier creates a verifier loop. policy is read per run so config
// reloads take effect without a restart.
func NewVerifier(opts Options, engine *verify.Engine, controller *decide.Controller, policy func() config.PolicyConfig) *Verifier {
	return &Verifier{
		base:       newBase(models.RoleVerifier, opts),
		engine:     engine,
		controller: controller,
		policy:     policy,
	}
}

// Run polls for claims awaiting verification until ctx is cancelled.
func (v *Verifier) Run(ctx context.Context) {
	v.opts.Logger.Info("verifier started")
	v.run(ctx, v.tick)
	v.opts.Logger.Info("verifier stopped")
}

func (v *Verifier) tick(ctx context.Context) {
	var tasks []models.Task
	err := v.guard.Do(ctx, func() error {
		var err error
		tasks, err = v.opts.Store.ListTasks(string(models.TaskStatusAwaitingVerification))
		return err
	})
	if err != nil {
		v.opts.Logger.Error("verification scan failed", "error", err)
		return
	}

	for i := range tasks {
		task := tasks[i]
		if task.ReviewTagged {
			// Waiting on the secondary pass; not ours.
			continue
		}
		v.verifyOne(ctx, &task)
	}
}

func (v *Verifier) verifyOne(ctx context.Context, task *models.Task) {
	logger := v.opts.Logger.With("task_id", task.ID)

	claim, err := v.opts.Store.LatestClaim(task.ID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn("awaiting verification without a completion claim")
		return
	}
	if err != nil {
		logger.Error("load completion claim", "error", err)
		return
	}

	outcome, err := v.engine.Evaluate(ctx, task, claim, v.policy())
	if err != nil {
		logger.Error("verification run failed", "error", err)
		return
	}
	if outcome.Retried {
		return
	}
	if err := v.controller.Apply(v.id, outcome.Report); err != nil {
		logger.Error("apply decision", "error", err)
	}
}

// --- Planner ---

// Planner keeps the claimable queue at its target depth, throttling when no
// executor is responsive.
type Planner struct {
	base
	source Source
}

// NewPlanner creates a planner loop fed by source.
func NewPlanner(opts Options, source Source) *Planner {
	return &Planner{base: newBase(models.RolePlanner, opts), source: source}
}

// Run polls the queue depth until ctx is cancelled.
func (p *Planner) Run(ctx context.Context) {
	p.opts.Logger.Info("planner started")
	p.run(ctx, p.tick)
	p.opts.Logger.Info("planner stopped")
}

func (p *Planner) tick(ctx context.Context) {
	responsive, err := p.opts.Heartbeat.HasResponsiveExecutor()
	if err != nil {
		p.opts.Logger.Error("executor liveness check failed", "error", err)
		return
	}
	if !responsive {
		// No one to do the work; admitting more would only grow the queue.
		return
	}

	needs, err := p.opts.Queue.NeedsAdmission()
	if err != nil {
		p.opts.Logger.Error("queue depth check failed", "error", err)
		return
	}
	if !needs {
		return
	}

	proposal, ok := p.source.Next(ctx)
	if !ok {
		return
	}

	var dup *queue.DuplicateError
	_, err = p.opts.Queue.Admit(p.id, proposal.Title, proposal.Description,
		proposal.Priority, proposal.Dependencies, proposal.AcceptanceCriteria)
	if errors.As(err, &dup) {
		p.opts.Logger.Info("proposal rejected as duplicate",
			"title", proposal.Title, "matched_id", dup.MatchedID)
		return
	}
	if err != nil {
		p.opts.Logger.Error("admission failed", "title", proposal.Title, "error", err)
	}
}
