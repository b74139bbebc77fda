package gp

import (
	"math"

	"fairnb/domain/signomial"
)

// term is log(c · Π x_i^a_i) = logCoef + Σ a_i y_i with y = log x.
type term struct {
	logCoef float64
	idx     []int
	exp     []float64
}

// logPosy is the log of a posynomial: a log-sum-exp of affine terms.
type logPosy []term

func toLogPosy(p signomial.Signomial) logPosy {
	out := make(logPosy, 0, len(p))
	for _, m := range p {
		t := term{logCoef: math.Log(m.Coef)}
		for _, i := range m.Vars() {
			t.idx = append(t.idx, i)
			t.exp = append(t.exp, m.Exps[i])
		}
		out = append(out, t)
	}
	return out
}

func (t term) at(y []float64) float64 {
	z := t.logCoef
	for k, i := range t.idx {
		z += t.exp[k] * y[i]
	}
	return z
}

// eval returns log Σ exp(z_k). When grad is non-nil, scale·∇ is added to it.
func (p logPosy) eval(y []float64, z []float64, grad []float64, scale float64) float64 {
	if len(p) == 1 {
		v := p[0].at(y)
		if grad != nil {
			for k, i := range p[0].idx {
				grad[i] += scale * p[0].exp[k]
			}
		}
		return v
	}
	z = z[:len(p)]
	hi := math.Inf(-1)
	for k, t := range p {
		z[k] = t.at(y)
		hi = math.Max(hi, z[k])
	}
	sum := 0.0
	for k := range z {
		z[k] = math.Exp(z[k] - hi)
		sum += z[k]
	}
	if grad != nil {
		for k, t := range p {
			w := scale * z[k] / sum
			for j, i := range t.idx {
				grad[i] += w * t.exp[j]
			}
		}
	}
	return hi + math.Log(sum)
}

// convexProgram is: minimize -Σ w_i y_i subject to cons_j(y) + margin <= 0
// and lo <= y_i <= hi.
type convexProgram struct {
	weights []float64
	cons    []logPosy
	margin  float64
	lo, hi  float64
	maxTerm int
}

func (c *convexProgram) objective(y []float64) float64 {
	v := 0.0
	for i, w := range c.weights {
		v -= w * y[i]
	}
	return v
}
