package testkit

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairnb/domain/bayes"
)

func TestGenerateMatchesSpec(t *testing.T) {
	spec := CorrelatedSpec()
	net, table, err := spec.Generate()
	require.NoError(t, err)
	assert.Equal(t, spec.Rows, table.Len())
	assert.Equal(t, []string{"income", "sex", "priors"}, table.Header)

	stats, err := bayes.Extract(net, table)
	require.NoError(t, err)
	n1 := stats.Count(bayes.RootKey("income", 1))
	assert.InDelta(t, spec.PTarget, n1/stats.Total(), 0.03)
	assert.InDelta(t, 0.9, stats.Count(bayes.LeafKey("sex", 1, 1))/n1, 0.08)
}

func TestGenerateIsDeterministic(t *testing.T) {
	_, a, err := CorrelatedSpec().Generate()
	require.NoError(t, err)
	_, b, err := CorrelatedSpec().Generate()
	require.NoError(t, err)
	assert.Equal(t, a.Rows, b.Rows)
}

func TestEntropyIsLikelihoodRate(t *testing.T) {
	spec := CorrelatedSpec()
	spec.Rows = 20000
	net, table, err := spec.Generate()
	require.NoError(t, err)

	est := bayes.FromParams(spec.Params(), net)
	ll, err := bayes.LogLikelihood(est, net, table)
	require.NoError(t, err)
	assert.InDelta(t, spec.Entropy(), -ll/float64(table.Len()), 0.02)
	assert.False(t, math.IsNaN(spec.Entropy()))
}

func TestGenerateRejectsEmpty(t *testing.T) {
	spec := CorrelatedSpec()
	spec.Rows = 0
	_, _, err := spec.Generate()
	assert.Error(t, err)
}
