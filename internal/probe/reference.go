package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/crewd-dev/crewd/internal/models"
)

// RegisterReference installs the built-in probes. They judge only what the
// artifact manifest itself can support; checks that need an external runner
// stay unregistered and score as skip until an operator plugs one in.
func RegisterReference(r *Registry, workDir string) {
	r.Register("file_existence", func(_ context.Context, in Input) Result {
		if len(in.Claim.Artifacts) == 0 {
			return Result{Outcome: models.OutcomeSkip, Detail: "no artifacts claimed"}
		}
		for _, artifact := range in.Claim.Artifacts {
			path := artifact
			if !filepath.IsAbs(path) {
				path = filepath.Join(workDir, path)
			}
			if _, err := os.Stat(path); err != nil {
				return Result{
					Outcome:  models.OutcomeFail,
					Category: "missing_artifact",
					Detail:   fmt.Sprintf("claimed artifact %s not found", artifact),
				}
			}
		}
		return Result{Outcome: models.OutcomePass}
	})

	r.Register("documentation", func(_ context.Context, in Input) Result {
		if in.Claim.Summary == "" {
			return Result{Outcome: models.OutcomeFail, Category: "empty_summary", Detail: "completion claim has no summary"}
		}
		return Result{Outcome: models.OutcomePass}
	})

	r.Register("git_state", func(_ context.Context, _ Input) Result {
		if _, err := os.Stat(filepath.Join(workDir, ".git")); err != nil {
			return Result{Outcome: models.OutcomeSkip, Detail: "not a git work tree"}
		}
		return Result{Outcome: models.OutcomePass}
	})
}
