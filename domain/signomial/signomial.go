// Package signomial models the nonlinear programs solved by the constrained
// fit: maximize Σ w_i log x_i over x > 0 subject to signomial constraints
// S(x) <= 1. A constraint whose terms all have positive coefficients is a
// posynomial and is convex in log space; any negative term makes it a
// (generally non-convex) signomial.
package signomial

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Monomial is c · Π x_i^a_i.
type Monomial struct {
	Coef float64
	Exps map[int]float64
}

// Var returns the monomial x_i.
func Var(i int) Monomial {
	return Monomial{Coef: 1, Exps: map[int]float64{i: 1}}
}

// Const returns the constant monomial c.
func Const(c float64) Monomial {
	return Monomial{Coef: c, Exps: map[int]float64{}}
}

// Mul returns m · o.
func (m Monomial) Mul(o Monomial) Monomial {
	out := Monomial{Coef: m.Coef * o.Coef, Exps: make(map[int]float64, len(m.Exps)+len(o.Exps))}
	for i, a := range m.Exps {
		out.Exps[i] += a
	}
	for i, a := range o.Exps {
		out.Exps[i] += a
	}
	for i, a := range out.Exps {
		if a == 0 {
			delete(out.Exps, i)
		}
	}
	return out
}

// Div returns m / o.
func (m Monomial) Div(o Monomial) Monomial {
	return m.Mul(o.Pow(-1))
}

// Pow returns m^p.
func (m Monomial) Pow(p float64) Monomial {
	out := Monomial{Coef: math.Pow(m.Coef, p), Exps: make(map[int]float64, len(m.Exps))}
	for i, a := range m.Exps {
		if a*p != 0 {
			out.Exps[i] = a * p
		}
	}
	return out
}

// Scale returns c · m.
func (m Monomial) Scale(c float64) Monomial {
	out := m.Mul(Const(1))
	out.Coef *= c
	return out
}

// Eval evaluates the monomial at x.
func (m Monomial) Eval(x []float64) float64 {
	v := m.Coef
	for i, a := range m.Exps {
		v *= math.Pow(x[i], a)
	}
	return v
}

// Vars returns the variable indices in ascending order.
func (m Monomial) Vars() []int {
	vars := make([]int, 0, len(m.Exps))
	for i := range m.Exps {
		vars = append(vars, i)
	}
	sort.Ints(vars)
	return vars
}

// Signomial is a sum of monomials with coefficients of either sign.
type Signomial []Monomial

// Sum builds a signomial from terms.
func Sum(terms ...Monomial) Signomial { return Signomial(terms) }

// Eval evaluates the signomial at x.
func (s Signomial) Eval(x []float64) float64 {
	v := 0.0
	for _, m := range s {
		v += m.Eval(x)
	}
	return v
}

// IsPosynomial reports whether every coefficient is positive.
func (s Signomial) IsPosynomial() bool {
	for _, m := range s {
		if m.Coef <= 0 {
			return false
		}
	}
	return true
}

// Split separates s into its positive part P and the magnitude N of its
// negative part, so that s = P - N.
func (s Signomial) Split() (pos, neg Signomial) {
	for _, m := range s {
		switch {
		case m.Coef > 0:
			pos = append(pos, m)
		case m.Coef < 0:
			neg = append(neg, m.Scale(-1))
		}
	}
	return pos, neg
}

// Condense returns the best local monomial approximation of the posynomial p
// at x0: m(x0) = p(x0) and ∇ log m = ∇ log p at x0. By the AM-GM
// inequality m(x) <= p(x) for every x > 0.
func Condense(p Signomial, x0 []float64) (Monomial, error) {
	total := p.Eval(x0)
	if !(total > 0) || math.IsInf(total, 0) {
		return Monomial{}, fmt.Errorf("cannot condense posynomial with value %v", total)
	}
	out := Monomial{Coef: total, Exps: map[int]float64{}}
	for _, m := range p {
		if m.Coef <= 0 {
			return Monomial{}, fmt.Errorf("cannot condense a term with coefficient %v", m.Coef)
		}
		w := m.Eval(x0) / total
		for i, a := range m.Exps {
			out.Exps[i] += w * a
		}
	}
	for i, a := range out.Exps {
		if a == 0 {
			delete(out.Exps, i)
			continue
		}
		out.Coef /= math.Pow(x0[i], a)
	}
	return out, nil
}

// Program is: maximize Σ Weights[i]·log x_i subject to every constraint <= 1.
type Program struct {
	Names       []string
	Weights     []float64
	Constraints []Signomial
	// Labels optionally names each constraint for diagnostics.
	Labels []string
}

// NumVars returns the number of variables.
func (p *Program) NumVars() int { return len(p.Weights) }

// IsGeometric reports whether every constraint is a posynomial.
func (p *Program) IsGeometric() bool {
	for _, c := range p.Constraints {
		if !c.IsPosynomial() {
			return false
		}
	}
	return true
}

// Objective returns Σ w_i log x_i.
func (p *Program) Objective(x []float64) float64 {
	v := 0.0
	for i, w := range p.Weights {
		if w != 0 {
			v += w * math.Log(x[i])
		}
	}
	return v
}

// MaxViolation returns max(0, max_j S_j(x) - 1).
func (p *Program) MaxViolation(x []float64) float64 {
	worst := 0.0
	for _, c := range p.Constraints {
		if v := c.Eval(x) - 1; v > worst {
			worst = v
		}
	}
	return worst
}

// Validate checks the program shape.
func (p *Program) Validate() error {
	n := p.NumVars()
	if n == 0 {
		return fmt.Errorf("program has no variables")
	}
	if p.Names != nil && len(p.Names) != n {
		return fmt.Errorf("program has %d names for %d variables", len(p.Names), n)
	}
	for j, c := range p.Constraints {
		if len(c) == 0 {
			return fmt.Errorf("constraint %d is empty", j)
		}
		for _, m := range c {
			for i := range m.Exps {
				if i < 0 || i >= n {
					return fmt.Errorf("constraint %d references variable %d of %d", j, i, n)
				}
			}
		}
	}
	return nil
}

// Describe renders a constraint for logs.
func (p *Program) Describe(j int) string {
	var b strings.Builder
	if j < len(p.Labels) && p.Labels[j] != "" {
		b.WriteString(p.Labels[j])
		b.WriteString(": ")
	}
	for k, m := range p.Constraints[j] {
		if k > 0 {
			b.WriteString(" + ")
		}
		fmt.Fprintf(&b, "%.4g", m.Coef)
		for _, i := range m.Vars() {
			name := fmt.Sprintf("x%d", i)
			if p.Names != nil {
				name = p.Names[i]
			}
			fmt.Fprintf(&b, "·%s^%.3g", name, m.Exps[i])
		}
	}
	b.WriteString(" <= 1")
	return b.String()
}

// Solution is a locally optimal point of a program.
type Solution struct {
	X            []float64
	Objective    float64
	MaxViolation float64
	// Iterations counts convex subproblems solved.
	Iterations int
}
