package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairnb/adapters/gp"
	"fairnb/adapters/search"
	"fairnb/domain/bayes"
	"fairnb/domain/core"
	"fairnb/domain/dataset"
	"fairnb/domain/pattern"
	"fairnb/domain/run"
	"fairnb/domain/signomial"
	"fairnb/internal/mle"
	"fairnb/internal/testkit"
	"fairnb/ports"
)

// scriptedOracle replays one candidate list per call; the last list repeats.
// A nil round blocks until ctx is done.
type scriptedOracle struct {
	mu     sync.Mutex
	rounds [][]pattern.Candidate
	calls  int
}

func (o *scriptedOracle) next(ctx context.Context) (*ports.SearchResult, error) {
	o.mu.Lock()
	i := o.calls
	if i >= len(o.rounds) {
		i = len(o.rounds) - 1
	}
	o.calls++
	round := o.rounds[i]
	o.mu.Unlock()

	if round == nil {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &ports.SearchResult{Candidates: round, NodesVisited: 7}, nil
}

func (o *scriptedOracle) FindDivergent(ctx context.Context, req ports.SearchRequest) (*ports.SearchResult, error) {
	return o.next(ctx)
}

func (o *scriptedOracle) FindDiscriminating(ctx context.Context, req ports.SearchRequest) (*ports.SearchResult, error) {
	return o.next(ctx)
}

// echoSolver returns the warm start, or 0.5 everywhere on a cold start.
// Calls listed in failOn return ErrInfeasibleFit.
type echoSolver struct {
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
}

func (s *echoSolver) Solve(ctx context.Context, prog *signomial.Program, x0 []float64) (*signomial.Solution, error) {
	s.mu.Lock()
	s.calls++
	fail := s.failOn[s.calls]
	s.mu.Unlock()
	if fail {
		return nil, core.ErrInfeasibleFit
	}
	x := make([]float64, prog.NumVars())
	for i := range x {
		x[i] = 0.5
		if x0 != nil {
			x[i] = x0[i]
		}
	}
	return &signomial.Solution{X: x, Objective: prog.Objective(x), Iterations: 1}, nil
}

var sexIsOne = pattern.Candidate{
	Sens:  []pattern.IndexedAssignment{{Var: 0, Value: 1}},
	Score: 0.4,
}

var belowThreshold = pattern.Candidate{
	Base:  []pattern.IndexedAssignment{{Var: 1, Value: 0}},
	Sens:  []pattern.IndexedAssignment{{Var: 0, Value: 0}},
	Score: 0.05,
}

func fixture(t *testing.T) LearnRequest {
	t.Helper()
	net, table, err := testkit.CorrelatedSpec().Generate()
	require.NoError(t, err)
	return LearnRequest{
		Manifest: &run.Manifest{
			RunID:    core.NewRunID(),
			Dataset:  "synthetic",
			Selector: pattern.SelectorDiff,
			Delta:    0.1,
			K:        10,
		},
		Network: net,
		Table:   table,
	}
}

func TestLearn_EarlyTerminationAtCap(t *testing.T) {
	oracle := &scriptedOracle{rounds: [][]pattern.Candidate{{sexIsOne, belowThreshold}}}
	obs := testkit.NewMemoryObserver()
	l := NewLearner(oracle, &echoSolver{}, LearnerOptions{}, nil, obs)

	res, err := l.Learn(context.Background(), fixture(t))
	require.NoError(t, err)
	assert.Equal(t, run.StatusEarlyTermination, res.Status)
	assert.Equal(t, DefaultMaxIterations, res.Iterations)
	assert.Len(t, res.Records, DefaultMaxIterations)
	assert.Len(t, res.Patterns, DefaultMaxIterations)

	prev := 0
	for i, rec := range res.Records {
		assert.Equal(t, i+1, rec.Iteration)
		assert.Equal(t, 1, rec.Accepted)
		assert.Greater(t, rec.TotalPatterns, prev)
		prev = rec.TotalPatterns
	}
	// one initial search plus one per refit
	assert.Equal(t, DefaultMaxIterations+1, oracle.calls)

	summary, ok := obs.Last()
	require.True(t, ok)
	assert.Equal(t, run.StatusEarlyTermination, summary.Status)
	assert.Len(t, obs.Iterations, DefaultMaxIterations)
	assert.Len(t, obs.Baselines, 1)
}

func TestLearn_CustomCap(t *testing.T) {
	oracle := &scriptedOracle{rounds: [][]pattern.Candidate{{sexIsOne}}}
	l := NewLearner(oracle, &echoSolver{}, LearnerOptions{MaxIterations: 3}, nil)

	res, err := l.Learn(context.Background(), fixture(t))
	require.NoError(t, err)
	assert.Equal(t, run.StatusEarlyTermination, res.Status)
	assert.Equal(t, 3, res.Iterations)
}

func TestLearn_ConvergesWhenPatternsRunOut(t *testing.T) {
	oracle := &scriptedOracle{rounds: [][]pattern.Candidate{{sexIsOne}, {belowThreshold}}}
	l := NewLearner(oracle, &echoSolver{}, LearnerOptions{}, nil)

	res, err := l.Learn(context.Background(), fixture(t))
	require.NoError(t, err)
	assert.Equal(t, run.StatusConverged, res.Status)
	assert.Equal(t, 1, res.Iterations)
	require.Len(t, res.Patterns, 1)
	assert.Equal(t, "sex", res.Patterns[0].Sens[0].Feature)
}

func TestLearn_NoPatternsAtAll(t *testing.T) {
	oracle := &scriptedOracle{rounds: [][]pattern.Candidate{{}}}
	l := NewLearner(oracle, &echoSolver{}, LearnerOptions{}, nil)

	res, err := l.Learn(context.Background(), fixture(t))
	require.NoError(t, err)
	assert.Equal(t, run.StatusConverged, res.Status)
	assert.Zero(t, res.Iterations)
	assert.Empty(t, res.Records)
	assert.NotNil(t, res.Estimate)
}

func TestLearn_SearchTimeout(t *testing.T) {
	oracle := &scriptedOracle{rounds: [][]pattern.Candidate{{sexIsOne}, nil}}
	obs := testkit.NewMemoryObserver()
	l := NewLearner(oracle, &echoSolver{}, LearnerOptions{SearchBudget: 20 * time.Millisecond}, nil, obs)

	res, err := l.Learn(context.Background(), fixture(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrSearchBudgetExceeded))
	assert.Equal(t, run.StatusTimeout, res.Status)
	// only the pattern from the completed first search was accepted
	assert.Len(t, res.Patterns, 1)
	assert.Len(t, res.Records, 1)

	summary, ok := obs.Last()
	require.True(t, ok)
	assert.Equal(t, run.StatusTimeout, summary.Status)
	assert.Error(t, summary.Err)
}

func TestLearn_FirstSearchTimeout(t *testing.T) {
	oracle := &scriptedOracle{rounds: [][]pattern.Candidate{nil}}
	l := NewLearner(oracle, &echoSolver{}, LearnerOptions{SearchBudget: 10 * time.Millisecond}, nil)

	res, err := l.Learn(context.Background(), fixture(t))
	assert.ErrorIs(t, err, core.ErrSearchBudgetExceeded)
	assert.Equal(t, run.StatusTimeout, res.Status)
	assert.Empty(t, res.Patterns)
}

func TestLearn_InfeasibleRefitKeepsLastEstimate(t *testing.T) {
	oracle := &scriptedOracle{rounds: [][]pattern.Candidate{{sexIsOne}}}
	// call 1: unconstrained fit, call 2: first refit, call 3: phase I
	solver := &echoSolver{failOn: map[int]bool{2: true, 3: true}}
	l := NewLearner(oracle, solver, LearnerOptions{}, nil)

	res, err := l.Learn(context.Background(), fixture(t))
	require.Error(t, err)
	var fitErr *core.InfeasibleFitError
	require.True(t, errors.As(err, &fitErr))
	assert.Equal(t, 1, fitErr.Iteration)
	assert.Equal(t, 1, fitErr.Patterns)
	assert.Equal(t, run.StatusInfeasible, res.Status)
	require.NotNil(t, res.Estimate)
	assert.Equal(t, 0.5, res.Estimate[bayes.RootKey("income", 1)])
}

func TestLearn_MalformedInput(t *testing.T) {
	req := fixture(t)
	table, err := dataset.NewTable([]string{"income", "priors"}, [][]int{{0, 1}, {1, 0}})
	require.NoError(t, err)
	req.Table = table

	l := NewLearner(&scriptedOracle{rounds: [][]pattern.Candidate{{}}}, &echoSolver{}, LearnerOptions{}, nil)
	res, err := l.Learn(context.Background(), req)
	assert.ErrorIs(t, err, core.ErrMalformedInput)
	assert.Equal(t, run.StatusFailed, res.Status)
}

func TestLearn_ObserverErrorsAreNotFatal(t *testing.T) {
	obs := testkit.NewMemoryObserver()
	obs.Fail = errors.New("disk full")
	oracle := &scriptedOracle{rounds: [][]pattern.Candidate{{sexIsOne}, {}}}
	l := NewLearner(oracle, &echoSolver{}, LearnerOptions{}, nil, obs)

	res, err := l.Learn(context.Background(), fixture(t))
	require.NoError(t, err)
	assert.Equal(t, run.StatusConverged, res.Status)
	assert.Len(t, obs.Summaries, 1)
}

func TestLearn_EndToEnd(t *testing.T) {
	req := fixture(t)
	obs := testkit.NewMemoryObserver()
	l := NewLearner(search.NewOracle(search.Options{}, nil), gp.NewSolver(gp.Options{}, nil), LearnerOptions{}, nil, obs)

	res, err := l.Learn(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, run.StatusConverged, res.Status)
	assert.GreaterOrEqual(t, res.Iterations, 1)
	assert.NotEmpty(t, res.Patterns)

	for _, p := range res.Patterns {
		assert.Greater(t, p.Score, req.Manifest.Delta)
		assert.False(t, p.IsRoot())
	}

	stats, err := bayes.Extract(req.Network, req.Table)
	require.NoError(t, err)
	tr, err := mle.NewTranslator(stats, req.Manifest.Delta)
	require.NoError(t, err)
	sat, err := tr.Satisfaction(res.Patterns, res.Estimate)
	require.NoError(t, err)
	assert.Equal(t, 1.0, sat)

	last := res.Records[len(res.Records)-1]
	assert.Less(t, last.LogLikelihood, res.Baseline.Unconstrained)
	assert.Less(t, res.Baseline.Independent, res.Baseline.Unconstrained)

	// the final parameters admit no discrimination pattern
	final, err := search.NewOracle(search.Options{}, nil).FindDiscriminating(context.Background(), ports.SearchRequest{
		Params:       bayes.ToParams(res.Estimate, req.Network),
		TargetValue:  req.Network.TargetValue,
		SensitiveIDs: req.Network.SensitiveIDs(),
		Threshold:    req.Manifest.Delta,
		K:            10,
	})
	require.NoError(t, err)
	assert.Empty(t, pattern.Process(final.Candidates, req.Network.Name, pattern.SelectorDiff, req.Manifest.Delta))
}

func TestBudgetedSearch_UnknownSelector(t *testing.T) {
	b := NewBudgetedSearch(&scriptedOracle{rounds: [][]pattern.Candidate{{}}}, time.Second)
	_, err := b.Find(context.Background(), pattern.Selector("bogus"), ports.SearchRequest{})
	assert.ErrorIs(t, err, core.ErrInvalidParameter)
	assert.Equal(t, time.Second, b.Budget())
}

func TestBudgetedSearch_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBudgetedSearch(&scriptedOracle{rounds: [][]pattern.Candidate{nil}}, time.Hour)
	_, err := b.Find(ctx, pattern.SelectorKLD, ports.SearchRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrSearchBudgetExceeded)
}
