package gp

import (
	"context"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// almState holds the multipliers of one augmented-Lagrangian solve.
type almState struct {
	prog    *convexProgram
	mu      float64
	lambda  []float64 // constraints
	lamLo   []float64 // y_i >= lo
	lamHi   []float64 // y_i <= hi
	scratch []float64
}

func newALMState(prog *convexProgram, mu float64) *almState {
	n := len(prog.weights)
	return &almState{
		prog:    prog,
		mu:      mu,
		lambda:  make([]float64, len(prog.cons)),
		lamLo:   make([]float64, n),
		lamHi:   make([]float64, n),
		scratch: make([]float64, prog.maxTerm),
	}
}

// penalty is the PHR term (max(0, λ+μg)² - λ²)/(2μ) and its multiplier.
func (s *almState) penalty(lam, g float64) (float64, float64) {
	m := math.Max(0, lam+s.mu*g)
	return (m*m - lam*lam) / (2 * s.mu), m
}

// constraint returns the shifted value of constraint j at y.
func (s *almState) constraint(j int, y []float64) float64 {
	return s.prog.cons[j].eval(y, s.scratch, nil, 0) + s.prog.margin
}

func (s *almState) lagrangian(y []float64) float64 {
	v := s.prog.objective(y)
	for j := range s.prog.cons {
		p, _ := s.penalty(s.lambda[j], s.constraint(j, y))
		v += p
	}
	for i := range y {
		p, _ := s.penalty(s.lamLo[i], s.prog.lo-y[i])
		v += p
		p, _ = s.penalty(s.lamHi[i], y[i]-s.prog.hi)
		v += p
	}
	return v
}

func (s *almState) gradient(grad, y []float64) {
	for i, w := range s.prog.weights {
		grad[i] = -w
	}
	for j, c := range s.prog.cons {
		if _, m := s.penalty(s.lambda[j], s.constraint(j, y)); m > 0 {
			c.eval(y, s.scratch, grad, m)
		}
	}
	for i := range y {
		_, m := s.penalty(s.lamLo[i], s.prog.lo-y[i])
		grad[i] -= m
		_, m = s.penalty(s.lamHi[i], y[i]-s.prog.hi)
		grad[i] += m
	}
}

// update applies the first-order multiplier update and returns the maximum
// constraint violation and complementarity residual at y.
func (s *almState) update(y []float64) (viol, comp float64) {
	step := func(lam *float64, g float64) {
		viol = math.Max(viol, g)
		*lam = math.Max(0, *lam+s.mu*g)
		comp = math.Max(comp, math.Abs(math.Min(-g, *lam)))
	}
	for j := range s.prog.cons {
		step(&s.lambda[j], s.constraint(j, y))
	}
	for i := range y {
		step(&s.lamLo[i], s.prog.lo-y[i])
		step(&s.lamHi[i], y[i]-s.prog.hi)
	}
	return math.Max(viol, 0), comp
}

// solveConvex minimizes the convex program from y0 with an augmented
// Lagrangian whose subproblems are solved by L-BFGS. It returns the best
// point found; feasibility is judged by the caller.
func (s *Solver) solveConvex(ctx context.Context, prog *convexProgram, y0 []float64) ([]float64, error) {
	st := newALMState(prog, s.opts.InitialPenalty)
	y := append([]float64(nil), y0...)

	problem := optimize.Problem{
		Func: st.lagrangian,
		Grad: st.gradient,
	}

	prevViol := math.Inf(1)
	for outer := 0; outer < s.opts.MaxOuter; outer++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		settings := &optimize.Settings{
			GradientThreshold: 1e-10,
			MajorIterations:   s.opts.InnerIterations,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-14,
				Iterations: 25,
			},
		}
		// A line-search failure near the optimum still leaves a usable point.
		res, err := optimize.Minimize(problem, y, settings, &optimize.LBFGS{})
		if res == nil {
			return nil, err
		}
		if !finite(res.X) {
			break
		}
		copy(y, res.X)

		viol, comp := st.update(y)
		if viol <= s.opts.ConvexTolerance && comp <= s.opts.ConvexTolerance*100 {
			break
		}
		if viol > 0.25*prevViol {
			st.mu = math.Min(st.mu*10, s.opts.MaxPenalty)
		}
		prevViol = viol
	}
	return y, nil
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
