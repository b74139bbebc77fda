package bayes

import (
	"fmt"
	"math"

	"fairnb/domain/core"
	"fairnb/domain/dataset"
	"fairnb/domain/network"
)

// ValidityThreshold bounds |P(s=0|t)+P(s=1|t) - 1| for a valid sensitive leaf.
const ValidityThreshold = 1e-6

// Estimate is a fitted probability for every parameter key.
type Estimate map[Key]float64

// Clone returns an independent copy.
func (e Estimate) Clone() Estimate {
	out := make(Estimate, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Vector lays the estimate out in the variable order of s; missing keys are NaN.
func (e Estimate) Vector(s *SufficientStatistics) []float64 {
	x := make([]float64, s.Len())
	for i, k := range s.keys {
		p, ok := e[k]
		if !ok {
			p = math.NaN()
		}
		x[i] = p
	}
	return x
}

// EstimateFromVector is the inverse of Vector.
func EstimateFromVector(s *SufficientStatistics, x []float64) Estimate {
	est := make(Estimate, len(x))
	for i, k := range s.keys {
		est[k] = x[i]
	}
	return est
}

// Independent returns a copy of est in which every sensitive leaf is made
// independent of the target: P(s=v|t=0) and P(s=v|t=1) are replaced by
// their average. Applying it twice is the same as applying it once.
func Independent(est Estimate, sensitive []string) Estimate {
	out := est.Clone()
	for _, name := range sensitive {
		for _, v := range Values {
			k0, k1 := LeafKey(name, v, 0), LeafKey(name, v, 1)
			avg := (out[k0] + out[k1]) / 2.0
			out[k0] = avg
			out[k1] = avg
		}
	}
	return out
}

// Valid reports whether every sensitive leaf sums to one for both target
// values, within ValidityThreshold. All-or-nothing.
func Valid(est Estimate, sensitive []string) bool {
	for _, name := range sensitive {
		for _, v := range Values {
			sum := est[LeafKey(name, 0, v)] + est[LeafKey(name, 1, v)]
			if math.Abs(sum-1) > ValidityThreshold {
				return false
			}
		}
	}
	return true
}

// LogLikelihood sums log P(target=t) + Σ log P(f=v|t) over every row and
// leaf. No smoothing: a zero, negative or missing probability on an
// observed key is a numeric-domain error.
func LogLikelihood(est Estimate, net *network.Network, table *dataset.Table) (float64, error) {
	targetCol, ok := table.Column(net.Target)
	if !ok {
		return 0, core.NewMissingColumnError(net.Target)
	}
	leafCols := make([]int, net.NumLeaves())
	for i, f := range net.Features {
		col, ok := table.Column(f.Name)
		if !ok {
			return 0, core.NewMissingColumnError(f.Name)
		}
		leafCols[i] = col
	}

	logOf := func(k Key) (float64, error) {
		p, ok := est[k]
		if !ok || !(p > 0) {
			return 0, fmt.Errorf("%w: log of P%s = %v", core.ErrNumericDomain, k, p)
		}
		return math.Log(p), nil
	}

	total := 0.0
	for _, row := range table.Rows {
		t := row[targetCol]
		lp, err := logOf(RootKey(net.Target, t))
		if err != nil {
			return 0, err
		}
		total += lp
		for i, col := range leafCols {
			lp, err := logOf(LeafKey(net.Features[i].Name, row[col], t))
			if err != nil {
				return 0, err
			}
			total += lp
		}
	}
	return total, nil
}
