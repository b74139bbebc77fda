package testkit

import (
	"context"
	"sync"

	"fairnb/domain/bayes"
	"fairnb/domain/pattern"
	"fairnb/domain/run"
)

// MemoryObserver records every run event in memory.
type MemoryObserver struct {
	mu         sync.RWMutex
	Baselines  []run.Baseline
	Iterations []run.IterationRecord
	Summaries  []run.Summary
	Estimate   bayes.Estimate
	Patterns   []pattern.Pattern
	// Fail makes every callback return this error.
	Fail error
}

// NewMemoryObserver creates an empty observer.
func NewMemoryObserver() *MemoryObserver {
	return &MemoryObserver{}
}

func (o *MemoryObserver) RunStarted(ctx context.Context, m *run.Manifest, baseline run.Baseline) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Baselines = append(o.Baselines, baseline)
	return o.Fail
}

func (o *MemoryObserver) IterationCompleted(ctx context.Context, m *run.Manifest, rec run.IterationRecord) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Iterations = append(o.Iterations, rec)
	return o.Fail
}

func (o *MemoryObserver) RunFinished(ctx context.Context, m *run.Manifest, summary run.Summary, est bayes.Estimate, patterns []pattern.Pattern) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Summaries = append(o.Summaries, summary)
	o.Estimate = est
	o.Patterns = patterns
	return o.Fail
}

// Last returns the final summary, if any.
func (o *MemoryObserver) Last() (run.Summary, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.Summaries) == 0 {
		return run.Summary{}, false
	}
	return o.Summaries[len(o.Summaries)-1], true
}
