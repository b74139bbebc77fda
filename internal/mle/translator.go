// Package mle turns sufficient statistics and accumulated discrimination
// patterns into a signomial program and fits the constrained maximum
// likelihood estimate.
package mle

import (
	"fmt"

	"fairnb/domain/bayes"
	"fairnb/domain/core"
	"fairnb/domain/pattern"
	"fairnb/domain/signomial"
)

// SatisfactionSlack is the tolerance used when counting satisfied
// fairness inequalities.
const SatisfactionSlack = 1e-6

// Translator builds the constrained-fit program for one run.
type Translator struct {
	stats *bayes.SufficientStatistics
	delta float64
	c1    float64
	c2    float64
}

// NewTranslator validates δ and precomputes the constraint coefficients.
func NewTranslator(stats *bayes.SufficientStatistics, delta float64) (*Translator, error) {
	if stats == nil {
		return nil, fmt.Errorf("%w: statistics are required", core.ErrMalformedInput)
	}
	if !(delta > 0 && delta < 1) {
		return nil, core.NewParameterError("delta", delta, "(0,1)")
	}
	return &Translator{
		stats: stats,
		delta: delta,
		c1:    (1 - delta) / delta,
		c2:    (1 + delta) / delta,
	}, nil
}

// Delta returns the fairness threshold.
func (t *Translator) Delta() float64 { return t.delta }

// Statistics returns the evidence the program is built from.
func (t *Translator) Statistics() *bayes.SufficientStatistics { return t.stats }

func (t *Translator) variable(k bayes.Key) (signomial.Monomial, error) {
	i, ok := t.stats.Variable(k)
	if !ok {
		return signomial.Monomial{}, fmt.Errorf("%w: unknown parameter %s", core.ErrMalformedInput, k)
	}
	return signomial.Var(i), nil
}

// Objective returns the per-variable weights count/total of the normalized
// log-likelihood Σ count·log x.
func (t *Translator) Objective() []float64 {
	w := t.stats.Counts()
	total := t.stats.Total()
	if total == 0 {
		return w
	}
	for i := range w {
		w[i] /= total
	}
	return w
}

// Parity returns x(t,0)+x(t,1) <= 1 and x(f,0,v)+x(f,1,v) <= 1 for every
// leaf f and target value v.
func (t *Translator) Parity() ([]signomial.Signomial, []string) {
	net := t.stats.Network()
	var cons []signomial.Signomial
	var labels []string

	sum := func(a, b bayes.Key) signomial.Signomial {
		i, _ := t.stats.Variable(a)
		j, _ := t.stats.Variable(b)
		return signomial.Sum(signomial.Var(i), signomial.Var(j))
	}

	cons = append(cons, sum(bayes.RootKey(net.Target, 0), bayes.RootKey(net.Target, 1)))
	labels = append(labels, "parity "+net.Target)
	for _, f := range net.Features {
		for _, v := range bayes.Values {
			cons = append(cons, sum(bayes.LeafKey(f.Name, 0, v), bayes.LeafKey(f.Name, 1, v)))
			labels = append(labels, fmt.Sprintf("parity %s|%d", f.Name, v))
		}
	}
	return cons, labels
}

// ratio returns r(a) = Π x(f,v,1)/x(f,v,0).
func (t *Translator) ratio(as []pattern.Assignment) (signomial.Monomial, error) {
	r := signomial.Const(1)
	for _, a := range as {
		num, err := t.variable(bayes.LeafKey(a.Feature, a.Value, 1))
		if err != nil {
			return r, err
		}
		den, err := t.variable(bayes.LeafKey(a.Feature, a.Value, 0))
		if err != nil {
			return r, err
		}
		r = r.Mul(num).Div(den)
	}
	return r, nil
}

// Fairness returns the inequality pair bounding |P(t=1|sens,base) - P(t=1|base)|
// by δ, with rx = r(sens) and ry = x(t,1)/x(t,0)·r(base):
//
//	 c1·rx·ry - c2·ry - rx·ry² <= 1
//	-c2·rx·ry + c1·ry - rx·ry² <= 1
func (t *Translator) Fairness(p pattern.Pattern) ([2]signomial.Signomial, error) {
	var out [2]signomial.Signomial
	target := t.stats.Network().Target

	rx, err := t.ratio(p.Sens)
	if err != nil {
		return out, err
	}
	rb, err := t.ratio(p.Base)
	if err != nil {
		return out, err
	}
	t1, err := t.variable(bayes.RootKey(target, 1))
	if err != nil {
		return out, err
	}
	t0, err := t.variable(bayes.RootKey(target, 0))
	if err != nil {
		return out, err
	}
	ry := t1.Div(t0).Mul(rb)

	rxry := rx.Mul(ry)
	rxry2 := rx.Mul(ry.Pow(2))
	out[0] = signomial.Sum(rxry.Scale(t.c1), ry.Scale(-t.c2), rxry2.Scale(-1))
	out[1] = signomial.Sum(rxry.Scale(-t.c2), ry.Scale(t.c1), rxry2.Scale(-1))
	return out, nil
}

// Program assembles the full constrained-fit program.
func (t *Translator) Program(patterns []pattern.Pattern) (*signomial.Program, error) {
	cons, labels := t.Parity()
	for n, p := range patterns {
		pair, err := t.Fairness(p)
		if err != nil {
			return nil, err
		}
		cons = append(cons, pair[0], pair[1])
		labels = append(labels, fmt.Sprintf("fair#%d+ %s", n, p), fmt.Sprintf("fair#%d- %s", n, p))
	}

	names := make([]string, t.stats.Len())
	for i, k := range t.stats.Keys() {
		names[i] = k.String()
	}
	return &signomial.Program{
		Names:       names,
		Weights:     t.Objective(),
		Constraints: cons,
		Labels:      labels,
	}, nil
}

// Satisfaction returns the fraction of the 2·len(patterns) fairness
// inequalities that est satisfies. An empty pattern set is fully satisfied.
func (t *Translator) Satisfaction(patterns []pattern.Pattern, est bayes.Estimate) (float64, error) {
	if len(patterns) == 0 {
		return 1, nil
	}
	x := est.Vector(t.stats)
	held := 0
	for _, p := range patterns {
		pair, err := t.Fairness(p)
		if err != nil {
			return 0, err
		}
		for _, c := range pair {
			if c.Eval(x) <= 1+SatisfactionSlack {
				held++
			}
		}
	}
	return float64(held) / float64(2*len(patterns)), nil
}
