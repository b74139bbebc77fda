package ports

import (
	"context"

	"fairnb/domain/signomial"
)

// Solver finds a locally optimal feasible point of a signomial program.
// x0 is an optional warm start; nil means cold start.
type Solver interface {
	Solve(ctx context.Context, prog *signomial.Program, x0 []float64) (*signomial.Solution, error)
}
