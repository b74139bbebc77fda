// Package gp solves the signomial programs of the constrained fit by
// sequential convex approximation in log space.
//
// Posynomial constraints are convex after the change of variables y = log x.
// A signomial constraint P(x) - N(x) <= 1 is rewritten as P(x) / (1 + N(x)) <= 1
// and the denominator is condensed to its local monomial approximation at
// the current point, which under-estimates it. Each convex subproblem is
// therefore a conservative restriction of the original program and the
// iterates stay feasible once they are.
package gp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"fairnb/domain/core"
	"fairnb/domain/signomial"
	"fairnb/ports"
)

// Floor is the smallest value any variable may take.
const Floor = 1e-12

// Options tunes the solver.
type Options struct {
	// Tolerance is the largest constraint violation accepted in the final point.
	Tolerance float64
	// MaxIterations caps the number of convex subproblems.
	MaxIterations int
	// RelativeGap stops the outer loop when the objective stalls.
	RelativeGap float64

	// Margin shifts every log-space constraint to g(y) <= -Margin so that
	// accepted points are strictly feasible.
	Margin float64

	ConvexTolerance float64
	InitialPenalty  float64
	MaxPenalty      float64
	MaxOuter        int
	InnerIterations int
}

// DefaultOptions returns the solver defaults.
func DefaultOptions() Options {
	return Options{
		Tolerance:       1e-6,
		MaxIterations:   100,
		RelativeGap:     1e-8,
		Margin:          1e-7,
		ConvexTolerance: 1e-9,
		InitialPenalty:  10,
		MaxPenalty:      1e8,
		MaxOuter:        60,
		InnerIterations: 5000,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.RelativeGap <= 0 {
		o.RelativeGap = d.RelativeGap
	}
	if o.Margin <= 0 {
		o.Margin = d.Margin
	}
	if o.ConvexTolerance <= 0 {
		o.ConvexTolerance = d.ConvexTolerance
	}
	if o.InitialPenalty <= 0 {
		o.InitialPenalty = d.InitialPenalty
	}
	if o.MaxPenalty <= 0 {
		o.MaxPenalty = d.MaxPenalty
	}
	if o.MaxOuter <= 0 {
		o.MaxOuter = d.MaxOuter
	}
	if o.InnerIterations <= 0 {
		o.InnerIterations = d.InnerIterations
	}
	return o
}

// Solver implements ports.Solver.
type Solver struct {
	opts   Options
	logger *logrus.Logger
}

var _ ports.Solver = (*Solver)(nil)

// NewSolver creates a solver; zero option fields take their defaults.
func NewSolver(opts Options, logger *logrus.Logger) *Solver {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &Solver{opts: opts.withDefaults(), logger: logger}
}

// Solve returns a locally optimal point of prog. A warm start that does not
// lead to a feasible point is retried from the cold start x = 0.5.
// An infeasible final point yields core.ErrInfeasibleFit together with the
// best point found.
func (s *Solver) Solve(ctx context.Context, prog *signomial.Program, x0 []float64) (*signomial.Solution, error) {
	if err := prog.Validate(); err != nil {
		return nil, err
	}
	if x0 != nil && len(x0) != prog.NumVars() {
		return nil, fmt.Errorf("warm start has %d values for %d variables", len(x0), prog.NumVars())
	}

	start := time.Now()
	cold := make([]float64, prog.NumVars())
	for i := range cold {
		cold[i] = 0.5
	}

	from := cold
	if x0 != nil {
		from = x0
	}
	sol, err := s.localSolve(ctx, prog, from)
	if x0 != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) &&
		(err != nil || sol.MaxViolation > s.opts.Tolerance) {
		s.logger.WithField("violation", violationOf(sol)).Debug("[Solver] warm start failed, retrying cold")
		sol, err = s.localSolve(ctx, prog, cold)
	}
	if err != nil {
		return sol, err
	}

	s.logger.WithFields(logrus.Fields{
		"vars":        prog.NumVars(),
		"constraints": len(prog.Constraints),
		"iterations":  sol.Iterations,
		"objective":   sol.Objective,
		"violation":   sol.MaxViolation,
		"elapsed":     time.Since(start),
	}).Debug("[Solver] solved")

	if sol.MaxViolation > s.opts.Tolerance {
		return sol, fmt.Errorf("%w: max violation %.3g after %d subproblems",
			core.ErrInfeasibleFit, sol.MaxViolation, sol.Iterations)
	}
	return sol, nil
}

func violationOf(sol *signomial.Solution) float64 {
	if sol == nil {
		return math.Inf(1)
	}
	return sol.MaxViolation
}

// localSolve runs the sequential convex approximation from x0.
func (s *Solver) localSolve(ctx context.Context, prog *signomial.Program, x0 []float64) (*signomial.Solution, error) {
	n := prog.NumVars()
	lo := math.Log(Floor)
	y := make([]float64, n)
	for i, v := range x0 {
		y[i] = math.Log(math.Min(1, math.Max(Floor, v)))
	}
	x := make([]float64, n)
	toX := func() {
		for i := range y {
			x[i] = math.Exp(y[i])
		}
	}
	toX()

	posy := make([]logPosy, 0, len(prog.Constraints))
	var sig []signomial.Signomial
	maxTerm := 1
	for _, c := range prog.Constraints {
		if c.IsPosynomial() {
			posy = append(posy, toLogPosy(c))
			maxTerm = max(maxTerm, len(c))
			continue
		}
		sig = append(sig, c)
		maxTerm = max(maxTerm, len(c))
	}

	sol := &signomial.Solution{X: x, Objective: prog.Objective(x), MaxViolation: prog.MaxViolation(x)}
	prevObj := math.Inf(-1)
	for it := 1; it <= s.opts.MaxIterations; it++ {
		cp := &convexProgram{
			weights: prog.Weights,
			cons:    append([]logPosy(nil), posy...),
			margin:  s.opts.Margin,
			lo:      lo,
			hi:      0,
			maxTerm: maxTerm,
		}
		for _, c := range sig {
			approx, err := condenseConstraint(c, x)
			if err != nil {
				return sol, err
			}
			cp.cons = append(cp.cons, approx)
		}

		next, err := s.solveConvex(ctx, cp, y)
		if err != nil {
			return sol, err
		}
		step := floats.Distance(next, y, math.Inf(1))
		copy(y, next)
		toX()

		sol.Iterations = it
		sol.Objective = prog.Objective(x)
		sol.MaxViolation = prog.MaxViolation(x)

		if len(sig) == 0 {
			break
		}
		gap := math.Abs(sol.Objective - prevObj)
		if gap <= s.opts.RelativeGap*(1+math.Abs(sol.Objective)) || step <= s.opts.ConvexTolerance {
			break
		}
		prevObj = sol.Objective
	}
	sol.X = append([]float64(nil), x...)
	return sol, nil
}

// condenseConstraint approximates P - N <= 1 at x by the posynomial
// P / m <= 1 where m is the monomial condensation of 1 + N.
func condenseConstraint(c signomial.Signomial, x []float64) (logPosy, error) {
	pos, neg := c.Split()
	if len(pos) == 0 {
		// -N <= 1 always holds; keep a constant slack term.
		return logPosy{{logCoef: math.Log(0.5)}}, nil
	}
	denom := append(signomial.Signomial{signomial.Const(1)}, neg...)
	m, err := signomial.Condense(denom, x)
	if err != nil {
		return nil, err
	}
	approx := make(signomial.Signomial, len(pos))
	for k, p := range pos {
		approx[k] = p.Div(m)
	}
	return toLogPosy(approx), nil
}
