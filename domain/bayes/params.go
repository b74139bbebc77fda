package bayes

import (
	"fairnb/domain/network"
)

// DistributionParams is the naive-Bayes parameterization consumed by the
// pattern search. Leaves[i] holds leaf i as
// [P(0|t=0), P(1|t=0), P(0|t=1), P(1|t=1)].
type DistributionParams struct {
	Root   [2]float64
	Leaves [][4]float64
}

// Leaf returns P(leaf i = v1 | target = v2).
func (p DistributionParams) Leaf(i, v1, v2 int) float64 {
	return p.Leaves[i][2*v2+v1]
}

// ToParams re-derives distribution parameters from an estimate.
func ToParams(est Estimate, net *network.Network) DistributionParams {
	p := DistributionParams{
		Root:   [2]float64{est[RootKey(net.Target, 0)], est[RootKey(net.Target, 1)]},
		Leaves: make([][4]float64, net.NumLeaves()),
	}
	for i, f := range net.Features {
		for _, v2 := range Values {
			for _, v1 := range Values {
				p.Leaves[i][2*v2+v1] = est[LeafKey(f.Name, v1, v2)]
			}
		}
	}
	return p
}

// FromParams expands distribution parameters back into an estimate.
func FromParams(p DistributionParams, net *network.Network) Estimate {
	est := make(Estimate, 2+4*net.NumLeaves())
	est[RootKey(net.Target, 0)] = p.Root[0]
	est[RootKey(net.Target, 1)] = p.Root[1]
	for i, f := range net.Features {
		for _, v2 := range Values {
			for _, v1 := range Values {
				est[LeafKey(f.Name, v1, v2)] = p.Leaf(i, v1, v2)
			}
		}
	}
	return est
}
