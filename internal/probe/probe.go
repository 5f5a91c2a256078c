// Package probe defines the pluggable check-evaluation contract. A probe is
// a named function judging one verification check against an executor's
// claimed output; weight and criticality are assigned by policy, outside
// the probe.
package probe

import (
	"context"
	"fmt"
	"sync"

	"github.com/crewd-dev/crewd/internal/models"
)

// Input carries the artifact manifest and task context a probe evaluates.
type Input struct {
	Task  models.Task
	Claim models.CompletionClaim
}

// Result is a probe's verdict on one check. Category classifies failures
// (for example "network_timeout") so the verification engine can tell
// transient failures from fatal ones.
type Result struct {
	Outcome  models.CheckOutcome
	Category string
	Detail   string
}

// Func evaluates one named check.
type Func func(ctx context.Context, in Input) Result

// Registry maps check names to probes.
type Registry struct {
	mu     sync.RWMutex
	probes map[string]Func
}

// NewRegistry creates an empty probe registry.
func NewRegistry() *Registry {
	return &Registry{probes: make(map[string]Func)}
}

// Register installs a probe for a check name, replacing any previous one.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[name] = fn
}

// Names returns the registered check names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.probes))
	for name := range r.probes {
		names = append(names, name)
	}
	return names
}

// Run evaluates one check. A check with no registered probe is recorded as
// skip, and a probe panic is downgraded to fail with the panic detail, so a
// single bad probe never aborts a verification run.
func (r *Registry) Run(ctx context.Context, name string, in Input) (result Result) {
	r.mu.RLock()
	fn, ok := r.probes[name]
	r.mu.RUnlock()

	if !ok {
		return Result{Outcome: models.OutcomeSkip, Detail: "no probe registered"}
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = Result{
				Outcome:  models.OutcomeFail,
				Category: "probe_crash",
				Detail:   fmt.Sprintf("probe panicked: %v", rec),
			}
		}
	}()
	return fn(ctx, in)
}
