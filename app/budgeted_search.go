package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"fairnb/domain/core"
	"fairnb/domain/pattern"
	"fairnb/ports"
)

// DefaultSearchBudget is the wall-clock limit of one oracle call.
const DefaultSearchBudget = 1800 * time.Second

// BudgetedSearch runs every oracle call on a worker under a hard deadline.
// On expiry the call is cancelled, its partial output is discarded and
// core.ErrSearchBudgetExceeded is returned.
type BudgetedSearch struct {
	oracle ports.PatternOracle
	budget time.Duration
}

// NewBudgetedSearch wraps an oracle; a non-positive budget uses the default.
func NewBudgetedSearch(oracle ports.PatternOracle, budget time.Duration) *BudgetedSearch {
	if budget <= 0 {
		budget = DefaultSearchBudget
	}
	return &BudgetedSearch{oracle: oracle, budget: budget}
}

// Budget returns the per-call limit.
func (b *BudgetedSearch) Budget() time.Duration { return b.budget }

// Find dispatches to the oracle mode matching the selector.
func (b *BudgetedSearch) Find(ctx context.Context, selector pattern.Selector, req ports.SearchRequest) (*ports.SearchResult, error) {
	var call func(context.Context, ports.SearchRequest) (*ports.SearchResult, error)
	switch selector {
	case pattern.SelectorKLD:
		call = b.oracle.FindDivergent
	case pattern.SelectorDiff:
		call = b.oracle.FindDiscriminating
	default:
		return nil, core.NewParameterError("selector", selector, "KLD|Diff")
	}

	tctx, cancel := context.WithTimeout(ctx, b.budget)
	defer cancel()

	var (
		res  *ports.SearchResult
		cerr error
	)
	done := make(chan struct{})
	g, gctx := errgroup.WithContext(tctx)
	g.Go(func() error {
		defer close(done)
		res, cerr = call(gctx, req)
		return cerr
	})

	select {
	case <-done:
	case <-tctx.Done():
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: no result within %s", core.ErrSearchBudgetExceeded, b.budget)
	}
	if cerr != nil {
		return nil, fmt.Errorf("pattern search failed: %w", cerr)
	}
	return res, nil
}
