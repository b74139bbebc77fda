package gp

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairnb/domain/core"
	"fairnb/domain/signomial"
)

func TestSolve_GeometricProgram(t *testing.T) {
	// maximize log x + log y  s.t.  x + y <= 1
	prog := &signomial.Program{
		Names:       []string{"x", "y"},
		Weights:     []float64{1, 1},
		Constraints: []signomial.Signomial{signomial.Sum(signomial.Var(0), signomial.Var(1))},
	}
	require.True(t, prog.IsGeometric())

	sol, err := NewSolver(Options{}, nil).Solve(context.Background(), prog, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sol.X[0], 1e-4)
	assert.InDelta(t, 0.5, sol.X[1], 1e-4)
	assert.LessOrEqual(t, sol.MaxViolation, 1e-6)
	assert.Equal(t, 1, sol.Iterations)
}

func TestSolve_WeightedProportions(t *testing.T) {
	// maximize 7 log a + 3 log b  s.t.  a + b <= 1  gives the empirical frequencies
	prog := &signomial.Program{
		Weights:     []float64{0.7, 0.3},
		Constraints: []signomial.Signomial{signomial.Sum(signomial.Var(0), signomial.Var(1))},
	}
	sol, err := NewSolver(Options{}, nil).Solve(context.Background(), prog, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, sol.X[0], 1e-4)
	assert.InDelta(t, 0.3, sol.X[1], 1e-4)
}

func TestSolve_SignomialProgram(t *testing.T) {
	// maximize 3 log x + log y  s.t.  x + y <= 1, 4x - 2y <= 1
	prog := &signomial.Program{
		Names:   []string{"x", "y"},
		Weights: []float64{3, 1},
		Constraints: []signomial.Signomial{
			signomial.Sum(signomial.Var(0), signomial.Var(1)),
			signomial.Sum(signomial.Var(0).Scale(4), signomial.Var(1).Scale(-2)),
		},
	}
	require.False(t, prog.IsGeometric())

	for _, start := range [][]float64{nil, {0.2, 0.3}} {
		sol, err := NewSolver(Options{}, nil).Solve(context.Background(), prog, start)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, sol.X[0], 1e-3)
		assert.InDelta(t, 0.5, sol.X[1], 1e-3)
		assert.LessOrEqual(t, sol.MaxViolation, 1e-6)
		assert.InDelta(t, 4*math.Log(0.5), sol.Objective, 1e-3)
	}
}

func TestSolve_InfeasibleWarmStartFallsBack(t *testing.T) {
	prog := &signomial.Program{
		Weights: []float64{3, 1},
		Constraints: []signomial.Signomial{
			signomial.Sum(signomial.Var(0), signomial.Var(1)),
			signomial.Sum(signomial.Var(0).Scale(4), signomial.Var(1).Scale(-2)),
		},
	}
	// 4·0.9 - 2·0.1 = 3.4 violates the second constraint
	sol, err := NewSolver(Options{}, nil).Solve(context.Background(), prog, []float64{0.9, 0.1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sol.X[0], 1e-3)
	assert.InDelta(t, 0.5, sol.X[1], 1e-3)
}

func TestSolve_Infeasible(t *testing.T) {
	// 2/x <= 1 cannot hold for x <= 1
	prog := &signomial.Program{
		Weights:     []float64{1},
		Constraints: []signomial.Signomial{signomial.Sum(signomial.Const(2).Div(signomial.Var(0)))},
	}
	sol, err := NewSolver(Options{MaxOuter: 20, InnerIterations: 500}, nil).Solve(context.Background(), prog, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInfeasibleFit))
	require.NotNil(t, sol)
	assert.Greater(t, sol.MaxViolation, 1e-6)
}

func TestSolve_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	prog := &signomial.Program{
		Weights:     []float64{1, 1},
		Constraints: []signomial.Signomial{signomial.Sum(signomial.Var(0), signomial.Var(1))},
	}
	_, err := NewSolver(Options{}, nil).Solve(ctx, prog, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSolve_BadInput(t *testing.T) {
	s := NewSolver(Options{}, nil)
	_, err := s.Solve(context.Background(), &signomial.Program{}, nil)
	assert.Error(t, err)

	prog := &signomial.Program{
		Weights:     []float64{1, 1},
		Constraints: []signomial.Signomial{signomial.Sum(signomial.Var(0), signomial.Var(1))},
	}
	_, err = s.Solve(context.Background(), prog, []float64{0.5})
	assert.Error(t, err)
}

func TestLogPosy_Gradient(t *testing.T) {
	p := toLogPosy(signomial.Sum(signomial.Var(0), signomial.Var(1).Scale(3)))
	y := []float64{math.Log(0.25), math.Log(0.25)}
	grad := make([]float64, 2)
	v := p.eval(y, make([]float64, 2), grad, 1)

	assert.InDelta(t, math.Log(1.0), v, 1e-12)
	assert.InDelta(t, 0.25, grad[0], 1e-12)
	assert.InDelta(t, 0.75, grad[1], 1e-12)
}

func TestCondenseConstraint_Conservative(t *testing.T) {
	c := signomial.Sum(signomial.Var(0).Scale(4), signomial.Var(1).Scale(-2))
	x := []float64{0.3, 0.4}
	approx, err := condenseConstraint(c, x)
	require.NoError(t, err)

	z := make([]float64, 1)
	for _, pt := range [][]float64{{0.3, 0.4}, {0.1, 0.9}, {0.6, 0.2}} {
		y := []float64{math.Log(pt[0]), math.Log(pt[1])}
		lhs := math.Exp(approx.eval(y, z, nil, 0))
		exact := 4 * pt[0] / (1 + 2*pt[1])
		assert.GreaterOrEqual(t, lhs, exact-1e-12)
	}
	// tight at the expansion point
	y := []float64{math.Log(0.3), math.Log(0.4)}
	assert.InDelta(t, 4*0.3/(1+2*0.4), math.Exp(approx.eval(y, z, nil, 0)), 1e-12)
}
