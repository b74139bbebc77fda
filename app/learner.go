package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"

	"fairnb/domain/bayes"
	"fairnb/domain/core"
	"fairnb/domain/dataset"
	"fairnb/domain/network"
	"fairnb/domain/pattern"
	"fairnb/domain/run"
	"fairnb/internal/mle"
	"fairnb/ports"
)

// DefaultMaxIterations caps the number of constrained refits per run.
const DefaultMaxIterations = 30

// LearnerOptions tunes the fairness loop.
type LearnerOptions struct {
	SearchBudget  time.Duration
	MaxIterations int
}

// Learner alternates pattern search and constrained refits until no
// discrimination pattern remains or the refit cap is reached.
type Learner struct {
	search        *BudgetedSearch
	solver        ports.Solver
	observers     []ports.RunObserver
	maxIterations int
	logger        *logrus.Logger
}

// LearnRequest is the input of one run.
type LearnRequest struct {
	Manifest *run.Manifest
	Network  *network.Network
	Table    *dataset.Table
}

// Result is the outcome of one run. Estimate is the last feasible estimate,
// also on failure.
type Result struct {
	Estimate   bayes.Estimate
	Patterns   []pattern.Pattern
	Baseline   run.Baseline
	Records    []run.IterationRecord
	Iterations int
	Status     run.Status
	Elapsed    time.Duration
}

// NewLearner wires the loop to its collaborators.
func NewLearner(oracle ports.PatternOracle, solver ports.Solver, opts LearnerOptions, logger *logrus.Logger, observers ...ports.RunObserver) *Learner {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &Learner{
		search:        NewBudgetedSearch(oracle, opts.SearchBudget),
		solver:        solver,
		observers:     observers,
		maxIterations: opts.MaxIterations,
		logger:        logger,
	}
}

// loopState is owned by a single Learn call.
type loopState struct {
	req        LearnRequest
	stats      *bayes.SufficientStatistics
	fitter     *mle.Fitter
	accepted   pattern.Set
	estimate   bayes.Estimate
	logLik     float64
	iteration  int
	candidates []pattern.Pattern
	nodes      int
	records    []run.IterationRecord
	baseline   run.Baseline
}

// Learn runs the fairness-learning loop. Every phase is sequential.
func (l *Learner) Learn(ctx context.Context, req LearnRequest) (*Result, error) {
	start := time.Now()
	m := req.Manifest
	log := l.logger.WithFields(logrus.Fields{
		"run":      m.RunID,
		"dataset":  m.Dataset,
		"selector": m.Selector,
		"delta":    m.Delta,
		"k":        m.K,
	})
	log.Info("[Learner] " + m.Label())

	st := &loopState{req: req}
	finish := func(status run.Status, err error) (*Result, error) {
		res := &Result{
			Estimate:   st.estimate,
			Patterns:   st.accepted.Patterns(),
			Baseline:   st.baseline,
			Records:    st.records,
			Iterations: st.iteration,
			Status:     status,
			Elapsed:    time.Since(start),
		}
		summary := run.Summary{
			Status:        status,
			Iterations:    st.iteration,
			LogLikelihood: st.logLik,
			TotalPatterns: st.accepted.Len(),
			Elapsed:       res.Elapsed,
			Err:           err,
		}
		for _, o := range l.observers {
			if oerr := o.RunFinished(ctx, m, summary, res.Estimate, res.Patterns); oerr != nil {
				log.WithError(oerr).Warn("[Learner] observer failed on run end")
			}
		}
		entry := log.WithFields(logrus.Fields{"status": status, "iterations": st.iteration, "elapsed": res.Elapsed})
		if err != nil {
			entry.WithError(err).Error("[Learner] run failed")
		} else {
			entry.Info("[Learner] run finished")
		}
		return res, err
	}

	// 1. Statistics, unconstrained fit and baselines
	closedForm, err := l.initialize(ctx, st)
	if err != nil {
		return finish(statusOf(err), err)
	}
	for _, o := range l.observers {
		if oerr := o.RunStarted(ctx, m, st.baseline); oerr != nil {
			log.WithError(oerr).Warn("[Learner] observer failed on run start")
		}
	}

	// 2. First search on the closed-form parameters
	if err := l.searchRound(ctx, st, bayes.ToParams(closedForm, req.Network)); err != nil {
		return finish(statusOf(err), err)
	}

	// 3. Refit until no pattern is found or the cap is hit
	for len(st.candidates) > 0 && st.iteration < l.maxIterations {
		if err := l.refit(ctx, st, log); err != nil {
			return finish(statusOf(err), err)
		}
		if err := l.searchRound(ctx, st, bayes.ToParams(st.estimate, req.Network)); err != nil {
			return finish(statusOf(err), err)
		}
		st.iteration++
	}

	// 4. Terminal state
	if len(st.candidates) > 0 {
		log.WithField("remaining", len(st.candidates)).Warn("[Learner] early termination")
		return finish(run.StatusEarlyTermination, nil)
	}
	return finish(run.StatusConverged, nil)
}

func (l *Learner) initialize(ctx context.Context, st *loopState) (bayes.Estimate, error) {
	req := st.req
	sufficient, err := bayes.Extract(req.Network, req.Table)
	if err != nil {
		return nil, fmt.Errorf("failed to extract statistics: %w", err)
	}
	st.stats = sufficient

	closedForm, err := sufficient.ClosedForm()
	if err != nil {
		return nil, err
	}

	translator, err := mle.NewTranslator(sufficient, req.Manifest.Delta)
	if err != nil {
		return nil, err
	}
	st.fitter = mle.NewFitter(translator, l.solver, l.logger)

	fit, err := st.fitter.Fit(ctx, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("unconstrained fit failed: %w", err)
	}
	st.estimate = fit.Estimate

	st.logLik, err = bayes.LogLikelihood(st.estimate, req.Network, req.Table)
	if err != nil {
		return nil, err
	}
	independent := bayes.Independent(st.estimate, req.Network.SensitiveNames())
	indLL, err := bayes.LogLikelihood(independent, req.Network, req.Table)
	if err != nil {
		return nil, err
	}
	st.baseline = run.Baseline{Independent: indLL, Unconstrained: st.logLik}
	return closedForm, nil
}

// searchRound replaces the current candidates with a fresh oracle result.
// Nothing is kept from a failed search.
func (l *Learner) searchRound(ctx context.Context, st *loopState, params bayes.DistributionParams) error {
	m := st.req.Manifest
	net := st.req.Network
	res, err := l.search.Find(ctx, m.Selector, ports.SearchRequest{
		Params:       params,
		TargetValue:  net.TargetValue,
		SensitiveIDs: net.SensitiveIDs(),
		Threshold:    m.Delta,
		K:            m.K,
	})
	if err != nil {
		st.candidates = nil
		return err
	}
	st.candidates = pattern.Process(res.Candidates, net.Name, m.Selector, m.Delta)
	st.nodes = res.NodesVisited
	return nil
}

func (l *Learner) refit(ctx context.Context, st *loopState, log *logrus.Entry) error {
	net := st.req.Network
	translator := st.fitter.Translator()

	// a. diagnostic against the new candidates only
	sat, err := translator.Satisfaction(st.candidates, st.estimate)
	if err != nil {
		return err
	}

	// b. accumulate
	st.accepted.Append(st.candidates...)

	// c. refit, warm-started from the current estimate
	fit, err := st.fitter.Fit(ctx, st.accepted.Patterns(), st.estimate)
	if err != nil {
		var fitErr *core.InfeasibleFitError
		if errors.As(err, &fitErr) {
			fitErr.Iteration = st.iteration + 1
		}
		return err
	}

	// d. log-likelihood of the refit; equal values are not progress but do
	// not stop the loop
	ll, err := bayes.LogLikelihood(fit.Estimate, net, st.req.Table)
	if err != nil {
		return err
	}
	if ll == st.logLik {
		log.WithField("iteration", st.iteration+1).Debug("[Learner] log-likelihood unchanged")
	}
	st.logLik = ll
	st.estimate = fit.Estimate

	// e. validity and bookkeeping
	rec := run.IterationRecord{
		Iteration:     st.iteration + 1,
		LogLikelihood: ll,
		Valid:         bayes.Valid(st.estimate, net.SensitiveNames()),
		NodesVisited:  st.nodes,
		Accepted:      len(st.candidates),
		Satisfaction:  sat,
		TotalPatterns: st.accepted.Len(),
		Patterns:      st.candidates,
	}
	st.records = append(st.records, rec)

	scores := make([]float64, len(st.candidates))
	for i, p := range st.candidates {
		scores[i] = p.Score
	}
	maxScore, _ := stats.Max(scores)
	meanScore, _ := stats.Mean(scores)
	log.WithFields(logrus.Fields{
		"iteration":    rec.Iteration,
		"loglik":       ll,
		"valid":        rec.Valid,
		"nodes":        rec.NodesVisited,
		"accepted":     rec.Accepted,
		"total":        rec.TotalPatterns,
		"satisfaction": sat,
		"max_score":    maxScore,
		"mean_score":   meanScore,
		"subproblems":  fit.Subproblems,
	}).Info("[Learner] iteration")

	for _, o := range l.observers {
		if oerr := o.IterationCompleted(ctx, st.req.Manifest, rec); oerr != nil {
			log.WithError(oerr).Warn("[Learner] observer failed on iteration")
		}
	}
	return nil
}

func statusOf(err error) run.Status {
	switch {
	case errors.Is(err, core.ErrSearchBudgetExceeded):
		return run.StatusTimeout
	case errors.Is(err, core.ErrInfeasibleFit):
		return run.StatusInfeasible
	default:
		return run.StatusFailed
	}
}
