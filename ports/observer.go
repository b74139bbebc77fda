package ports

import (
	"context"

	"fairnb/domain/bayes"
	"fairnb/domain/pattern"
	"fairnb/domain/run"
)

// RunObserver receives the progress of a fairness-learning run. Observers are
// called sequentially from the learner; an observer error is logged, never
// fatal to the run.
type RunObserver interface {
	RunStarted(ctx context.Context, m *run.Manifest, baseline run.Baseline) error
	IterationCompleted(ctx context.Context, m *run.Manifest, rec run.IterationRecord) error
	RunFinished(ctx context.Context, m *run.Manifest, summary run.Summary, est bayes.Estimate, patterns []pattern.Pattern) error
}
