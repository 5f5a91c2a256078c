package probe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/crewd-dev/crewd/internal/models"
)

func TestRegistryRun(t *testing.T) {
	r := NewRegistry()
	r.Register("always_pass", func(context.Context, Input) Result {
		return Result{Outcome: models.OutcomePass}
	})

	result := r.Run(context.Background(), "always_pass", Input{})
	if result.Outcome != models.OutcomePass {
		t.Errorf("Expected pass, got %s", result.Outcome)
	}
}

func TestRegistryUnknownProbeSkips(t *testing.T) {
	r := NewRegistry()
	result := r.Run(context.Background(), "not_registered", Input{})
	if result.Outcome != models.OutcomeSkip {
		t.Errorf("Expected skip for unknown probe, got %s", result.Outcome)
	}
}

func TestRegistryPanicBecomesFail(t *testing.T) {
	r := NewRegistry()
	r.Register("crashes", func(context.Context, Input) Result {
		panic("boom")
	})

	result := r.Run(context.Background(), "crashes", Input{})
	if result.Outcome != models.OutcomeFail {
		t.Errorf("Expected fail after panic, got %s", result.Outcome)
	}
	if result.Category != "probe_crash" {
		t.Errorf("Expected probe_crash category, got %s", result.Category)
	}
}

func TestRegistryReplace(t *testing.T) {
	r := NewRegistry()
	r.Register("check", func(context.Context, Input) Result {
		return Result{Outcome: models.OutcomeFail}
	})
	r.Register("check", func(context.Context, Input) Result {
		return Result{Outcome: models.OutcomePass}
	})

	if result := r.Run(context.Background(), "check", Input{}); result.Outcome != models.OutcomePass {
		t.Errorf("Expected replacement probe to win, got %s", result.Outcome)
	}
	if names := r.Names(); len(names) != 1 {
		t.Errorf("Expected 1 registered name, got %v", names)
	}
}

func TestReferenceFileExistence(t *testing.T) {
	workDir := t.TempDir()
	r := NewRegistry()
	RegisterReference(r, workDir)

	present := filepath.Join(workDir, "out.txt")
	if err := os.WriteFile(present, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	in := Input{Claim: models.CompletionClaim{Artifacts: []string{"out.txt"}}}
	if result := r.Run(context.Background(), "file_existence", in); result.Outcome != models.OutcomePass {
		t.Errorf("Expected pass for existing artifact, got %s: %s", result.Outcome, result.Detail)
	}

	in = Input{Claim: models.CompletionClaim{Artifacts: []string{"missing.txt"}}}
	result := r.Run(context.Background(), "file_existence", in)
	if result.Outcome != models.OutcomeFail {
		t.Errorf("Expected fail for missing artifact, got %s", result.Outcome)
	}
	if result.Category != "missing_artifact" {
		t.Errorf("Expected missing_artifact category, got %s", result.Category)
	}

	// No artifacts claimed: nothing to judge
	in = Input{Claim: models.CompletionClaim{}}
	if result := r.Run(context.Background(), "file_existence", in); result.Outcome != models.OutcomeSkip {
		t.Errorf("Expected skip without artifacts, got %s", result.Outcome)
	}
}

func TestReferenceDocumentation(t *testing.T) {
	r := NewRegistry()
	RegisterReference(r, t.TempDir())

	in := Input{Claim: models.CompletionClaim{Summary: "wired the thing up"}}
	if result := r.Run(context.Background(), "documentation", in); result.Outcome != models.OutcomePass {
		t.Errorf("Expected pass for non-empty summary, got %s", result.Outcome)
	}

	in = Input{Claim: models.CompletionClaim{}}
	if result := r.Run(context.Background(), "documentation", in); result.Outcome != models.OutcomeFail {
		t.Errorf("Expected fail for empty summary, got %s", result.Outcome)
	}
}
