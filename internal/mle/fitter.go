package mle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"fairnb/domain/bayes"
	"fairnb/domain/core"
	"fairnb/domain/pattern"
	"fairnb/domain/signomial"
	"fairnb/ports"
)

// FitResult is one constrained refit.
type FitResult struct {
	Estimate     bayes.Estimate
	Objective    float64
	MaxViolation float64
	Subproblems  int
	Elapsed      time.Duration
}

// Fitter runs constrained maximum-likelihood refits through a solver.
type Fitter struct {
	translator *Translator
	solver     ports.Solver
	logger     *logrus.Logger
}

// NewFitter creates a fitter for one run.
func NewFitter(translator *Translator, solver ports.Solver, logger *logrus.Logger) *Fitter {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &Fitter{translator: translator, solver: solver, logger: logger}
}

// Translator returns the program builder.
func (f *Fitter) Translator() *Translator { return f.translator }

// Fit maximizes the likelihood subject to parity and the fairness pairs of
// every pattern. warm is an optional initial point; nil means cold start.
// A solver that cannot reach a feasible point yields *core.InfeasibleFitError.
func (f *Fitter) Fit(ctx context.Context, patterns []pattern.Pattern, warm bayes.Estimate) (*FitResult, error) {
	start := time.Now()
	prog, err := f.translator.Program(patterns)
	if err != nil {
		return nil, err
	}

	var x0 []float64
	if warm != nil {
		x0 = warm.Vector(f.translator.Statistics())
		for _, v := range x0 {
			if math.IsNaN(v) {
				x0 = nil
				break
			}
		}
	}

	sol, err := f.solver.Solve(ctx, prog, x0)
	if err != nil {
		if !errors.Is(err, core.ErrInfeasibleFit) {
			return nil, err
		}
		fitErr := &core.InfeasibleFitError{Patterns: len(patterns), Cause: err}
		if slack, serr := f.FeasibilitySlack(ctx, patterns); serr == nil {
			fitErr.Slack = slack
		}
		f.logger.WithFields(logrus.Fields{
			"patterns": len(patterns),
			"slack":    fitErr.Slack,
		}).Warn("[Fit] no feasible local optimum")
		return nil, fitErr
	}

	res := &FitResult{
		Estimate:     bayes.EstimateFromVector(f.translator.Statistics(), sol.X),
		Objective:    sol.Objective,
		MaxViolation: sol.MaxViolation,
		Subproblems:  sol.Iterations,
		Elapsed:      time.Since(start),
	}
	f.logger.WithFields(logrus.Fields{
		"patterns":    len(patterns),
		"constraints": len(prog.Constraints),
		"objective":   res.Objective,
		"subproblems": res.Subproblems,
		"warm":        x0 != nil,
		"elapsed":     res.Elapsed,
	}).Debug("[Fit] refit done")
	return res, nil
}

// FeasibilitySlack solves the phase-I problem: the smallest s >= 1 such that
// every parity sum <= s holds jointly with the fairness constraints. It is
// solved as maximize log u with u = 1/s, so every parity constraint becomes
// u·(x_a + x_b) <= 1. A slack of 1 means the fairness constraints are
// satisfiable as stated.
func (f *Fitter) FeasibilitySlack(ctx context.Context, patterns []pattern.Pattern) (float64, error) {
	t := f.translator
	n := t.stats.Len()
	u := signomial.Var(n)

	parity, labels := t.Parity()
	cons := make([]signomial.Signomial, 0, len(parity)+2*len(patterns))
	for _, c := range parity {
		scaled := make(signomial.Signomial, len(c))
		for k, m := range c {
			scaled[k] = m.Mul(u)
		}
		cons = append(cons, scaled)
	}
	for _, p := range patterns {
		pair, err := t.Fairness(p)
		if err != nil {
			return 0, err
		}
		cons = append(cons, pair[0], pair[1])
		labels = append(labels, "fair+ "+p.String(), "fair- "+p.String())
	}

	weights := make([]float64, n+1)
	weights[n] = 1
	prog := &signomial.Program{Weights: weights, Constraints: cons, Labels: labels}

	sol, err := f.solver.Solve(ctx, prog, nil)
	if sol == nil || len(sol.X) <= n || !(sol.X[n] > 0) {
		if err == nil {
			err = fmt.Errorf("phase-I solve returned no point")
		}
		return 0, err
	}
	return 1 / sol.X[n], err
}
