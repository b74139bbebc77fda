package testkit

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"

	"fairnb/domain/bayes"
	"fairnb/domain/dataset"
	"fairnb/domain/network"
)

// LeafSpec is one binary leaf of a synthetic naive-Bayes model.
type LeafSpec struct {
	Name      string
	Sensitive bool
	// P1 holds P(leaf=1 | target=0) and P(leaf=1 | target=1).
	P1 [2]float64
}

// ModelSpec configures the synthetic data generator
type ModelSpec struct {
	Target      string
	TargetValue int
	// PTarget is P(target=1).
	PTarget float64
	Leaves  []LeafSpec
	Rows    int
	Seed    int64
}

// CorrelatedSpec is a target with one strongly correlated sensitive leaf
// and one mildly informative non-sensitive leaf.
func CorrelatedSpec() ModelSpec {
	return ModelSpec{
		Target:      "income",
		TargetValue: 1,
		PTarget:     0.1,
		Leaves: []LeafSpec{
			{Name: "sex", Sensitive: true, P1: [2]float64{0.1, 0.9}},
			{Name: "priors", P1: [2]float64{0.4, 0.6}},
		},
		Rows: 2000,
		Seed: 42,
	}
}

// Network returns the catalogue described by the spec.
func (s ModelSpec) Network() (*network.Network, error) {
	features := make([]network.Feature, len(s.Leaves))
	for i, l := range s.Leaves {
		features[i] = network.Feature{Name: l.Name, Sensitive: l.Sensitive}
	}
	return network.New(s.Target, s.TargetValue, features)
}

// Params returns the true distribution parameters.
func (s ModelSpec) Params() bayes.DistributionParams {
	p := bayes.DistributionParams{
		Root:   [2]float64{1 - s.PTarget, s.PTarget},
		Leaves: make([][4]float64, len(s.Leaves)),
	}
	for i, l := range s.Leaves {
		p.Leaves[i] = [4]float64{1 - l.P1[0], l.P1[0], 1 - l.P1[1], l.P1[1]}
	}
	return p
}

// Generate draws Rows samples from the model.
func (s ModelSpec) Generate() (*network.Network, *dataset.Table, error) {
	net, err := s.Network()
	if err != nil {
		return nil, nil, err
	}
	if s.Rows <= 0 {
		return nil, nil, fmt.Errorf("rows must be positive, got %d", s.Rows)
	}

	rng := rand.New(rand.NewSource(s.Seed))
	draw := func(p float64) int {
		if rng.Float64() < p {
			return 1
		}
		return 0
	}

	rows := make([][]int, s.Rows)
	for r := range rows {
		row := make([]int, 1+len(s.Leaves))
		t := draw(s.PTarget)
		row[0] = t
		for i, l := range s.Leaves {
			row[i+1] = draw(l.P1[t])
		}
		rows[r] = row
	}
	table, err := dataset.NewTable(net.Columns(), rows)
	if err != nil {
		return nil, nil, err
	}
	return net, table, nil
}

// Entropy returns the expected negative log-likelihood of one row in nats,
// H(target) + Σ H(leaf | target).
func (s ModelSpec) Entropy() float64 {
	h := distuv.Bernoulli{P: s.PTarget}.Entropy()
	for _, l := range s.Leaves {
		h += (1-s.PTarget)*distuv.Bernoulli{P: l.P1[0]}.Entropy() +
			s.PTarget*distuv.Bernoulli{P: l.P1[1]}.Entropy()
	}
	return h
}
