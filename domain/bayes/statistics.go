package bayes

import (
	"fmt"

	"fairnb/domain/core"
	"fairnb/domain/dataset"
	"fairnb/domain/network"
)

// SufficientStatistics maps every network parameter to a symbolic variable
// (its position in Keys) and to the empirical count that serves as its
// exponent in the likelihood. Built once; read-only afterwards.
type SufficientStatistics struct {
	network *network.Network
	keys    []Key
	index   map[Key]int
	counts  []float64
	total   float64
}

// Extract counts the co-occurrence of every feature value with every target value.
// Columns outside the catalogue are ignored.
func Extract(net *network.Network, table *dataset.Table) (*SufficientStatistics, error) {
	if net == nil || table == nil {
		return nil, fmt.Errorf("%w: network and table are required", core.ErrMalformedInput)
	}

	targetCol, ok := table.Column(net.Target)
	if !ok {
		return nil, core.NewMissingColumnError(net.Target)
	}
	leafCols := make([]int, net.NumLeaves())
	for i, f := range net.Features {
		col, ok := table.Column(f.Name)
		if !ok {
			return nil, core.NewMissingColumnError(f.Name)
		}
		leafCols[i] = col
	}

	s := newStatistics(net)
	for r, row := range table.Rows {
		t := row[targetCol]
		if !isBinary(t) {
			return nil, core.NewNonBinaryValueError(net.Target, r, fmt.Sprint(t))
		}
		s.counts[s.index[RootKey(net.Target, t)]]++
		for i, col := range leafCols {
			v := row[col]
			if !isBinary(v) {
				return nil, core.NewNonBinaryValueError(net.Features[i].Name, r, fmt.Sprint(v))
			}
			s.counts[s.index[LeafKey(net.Features[i].Name, v, t)]]++
		}
		s.total++
	}
	return s, nil
}

func newStatistics(net *network.Network) *SufficientStatistics {
	keys := make([]Key, 0, 2+4*net.NumLeaves())
	for _, v := range Values {
		keys = append(keys, RootKey(net.Target, v))
	}
	for _, f := range net.Features {
		for _, v1 := range Values {
			for _, v2 := range Values {
				keys = append(keys, LeafKey(f.Name, v1, v2))
			}
		}
	}
	index := make(map[Key]int, len(keys))
	for i, k := range keys {
		index[k] = i
	}
	return &SufficientStatistics{
		network: net,
		keys:    keys,
		index:   index,
		counts:  make([]float64, len(keys)),
	}
}

func isBinary(v int) bool { return v == 0 || v == 1 }

// Network returns the catalogue the statistics were built for.
func (s *SufficientStatistics) Network() *network.Network { return s.network }

// Keys returns every parameter key; the position is the variable index.
func (s *SufficientStatistics) Keys() []Key { return append([]Key(nil), s.keys...) }

// Len returns the number of variables.
func (s *SufficientStatistics) Len() int { return len(s.keys) }

// Variable returns the variable index of a key.
func (s *SufficientStatistics) Variable(k Key) (int, bool) {
	i, ok := s.index[k]
	return i, ok
}

// Count returns the empirical count of a key.
func (s *SufficientStatistics) Count(k Key) float64 {
	if i, ok := s.index[k]; ok {
		return s.counts[i]
	}
	return 0
}

// Counts returns the counts in variable order.
func (s *SufficientStatistics) Counts() []float64 { return append([]float64(nil), s.counts...) }

// Total returns the number of rows counted.
func (s *SufficientStatistics) Total() float64 { return s.total }

// ClosedForm returns the unconstrained closed-form estimate used to seed the
// first pattern search.
//
// The root keeps the convention of the reference learner: P(target=v) is
// count(target=1-v)/total, the complement ratio. Leaves are
// count(f=v1, t=v2)/count(t=v2).
func (s *SufficientStatistics) ClosedForm() (Estimate, error) {
	net := s.network
	c0 := s.Count(RootKey(net.Target, 0))
	c1 := s.Count(RootKey(net.Target, 1))
	if c0 == 0 || c1 == 0 {
		return nil, fmt.Errorf("%w: target %q has an empty class (counts %v/%v)",
			core.ErrNumericDomain, net.Target, c0, c1)
	}
	byTarget := [2]float64{c0, c1}

	est := make(Estimate, len(s.keys))
	est[RootKey(net.Target, 0)] = c1 / (c0 + c1)
	est[RootKey(net.Target, 1)] = c0 / (c0 + c1)
	for i, k := range s.keys {
		if k.IsRoot() {
			continue
		}
		est[k] = s.counts[i] / byTarget[k.Target]
	}
	return est, nil
}
