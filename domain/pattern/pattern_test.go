package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var names = []string{"race", "priors", "sex"}

func nameOf(id int) string { return names[id] }

func candidates() []Candidate {
	return []Candidate{
		{Sens: []IndexedAssignment{{Var: 0, Value: 1}}, Score: 0.30},
		{Sens: []IndexedAssignment{{Var: 2, Value: 0}}, Base: []IndexedAssignment{{Var: 1, Value: 1}}, Score: 0.45},
		{Score: 0.9}, // vacuous
		{Base: []IndexedAssignment{{Var: 1, Value: 0}}, Score: 0.10},
		{Sens: []IndexedAssignment{{Var: 2, Value: 1}}, Score: 0.05},
		{Sens: []IndexedAssignment{{Var: 0, Value: 0}}, Score: 0},
	}
}

func TestProcessDiffFilter(t *testing.T) {
	out := Process(candidates(), nameOf, SelectorDiff, 0.1)

	require.Len(t, out, 2)
	for _, p := range out {
		assert.Greater(t, p.Score, 0.1)
		assert.False(t, p.IsRoot())
	}
	assert.Equal(t, 0.45, out[0].Score)
	assert.Equal(t, []Assignment{{Feature: "sex", Value: 0}}, out[0].Sens)
	assert.Equal(t, []Assignment{{Feature: "priors", Value: 1}}, out[0].Base)
}

func TestProcessKLDFilter(t *testing.T) {
	out := Process(candidates(), nameOf, SelectorKLD, 0.1)

	require.Len(t, out, 4)
	for i, p := range out {
		assert.Greater(t, p.Score, 0.0)
		assert.False(t, p.IsRoot())
		if i > 0 {
			assert.GreaterOrEqual(t, out[i-1].Score, p.Score)
		}
	}
}

func TestProcessUnknownSelectorKeepsNothing(t *testing.T) {
	assert.Empty(t, Process(candidates(), nameOf, Selector("MI"), 0.1))
}

func TestParseSelector(t *testing.T) {
	s, err := ParseSelector("KLD")
	require.NoError(t, err)
	assert.Equal(t, SelectorKLD, s)

	_, err = ParseSelector("kld")
	assert.Error(t, err)
}

func TestSetGrowsMonotonically(t *testing.T) {
	var s Set
	p := Pattern{Sens: []Assignment{{Feature: "race", Value: 1}}, Score: 0.2}

	s.Append(p)
	s.Append(p, p) // duplicates are kept
	assert.Equal(t, 3, s.Len())

	snap := s.Patterns()
	snap[0].Score = 99
	assert.Equal(t, 0.2, s.Patterns()[0].Score)
}

func TestConditional(t *testing.T) {
	p := Pattern{PDXY: 0.09, PNotDXY: 0.09, PDY: 0.1, PNotDY: 0.9}
	withSens, baseOnly := p.Conditional()
	assert.InDelta(t, 0.5, withSens, 1e-12)
	assert.InDelta(t, 0.1, baseOnly, 1e-12)
}
