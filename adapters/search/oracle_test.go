package search

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairnb/domain/bayes"
	"fairnb/ports"
)

func singleLeaf() bayes.DistributionParams {
	return bayes.DistributionParams{
		Root:   [2]float64{0.9, 0.1},
		Leaves: [][4]float64{{0.9, 0.1, 0.1, 0.9}},
	}
}

func fourLeaves() bayes.DistributionParams {
	return bayes.DistributionParams{
		Root: [2]float64{0.1, 0.9},
		Leaves: [][4]float64{
			{0.3, 0.7, 0.1, 0.9},
			{0.4, 0.6, 0.5, 0.5},
			{0.2, 0.8, 0.3, 0.7},
			{0.15, 0.85, 0.25, 0.75},
		},
	}
}

func TestFindDiscriminating_SingleSensitiveLeaf(t *testing.T) {
	o := NewOracle(Options{}, nil)
	res, err := o.FindDiscriminating(context.Background(), ports.SearchRequest{
		Params: singleLeaf(), TargetValue: 1, SensitiveIDs: []int{0}, Threshold: 0.1, K: 10,
	})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)

	c := res.Candidates[0]
	assert.Empty(t, c.Base)
	require.Len(t, c.Sens, 1)
	assert.Equal(t, 0, c.Sens[0].Var)
	assert.Equal(t, 1, c.Sens[0].Value)
	// P(d|f=1) = 0.09/0.18 = 0.5 against P(d) = 0.1
	assert.InDelta(t, 0.4, c.Score, 1e-12)
	assert.InDelta(t, 0.09, c.PDXY, 1e-12)
	assert.InDelta(t, 0.09, c.PNotDXY, 1e-12)
	assert.Equal(t, 1, res.NodesVisited)
}

func TestFindDivergent_ScoresPositive(t *testing.T) {
	o := NewOracle(Options{}, nil)
	res, err := o.FindDivergent(context.Background(), ports.SearchRequest{
		Params: singleLeaf(), TargetValue: 1, SensitiveIDs: []int{0}, Threshold: 0.1, K: 10,
	})
	require.NoError(t, err)
	require.Len(t, res.Candidates, 1)
	assert.Greater(t, res.Candidates[0].Score, 0.0)
	assert.InDelta(t, 0.0995, res.Candidates[0].Score, 1e-3)
}

func TestFindDivergent_TopMatchesBruteForce(t *testing.T) {
	p := fourLeaves()
	o := NewOracle(Options{}, nil)
	res, err := o.FindDivergent(context.Background(), ports.SearchRequest{
		Params: p, TargetValue: 1, SensitiveIDs: []int{0, 2}, Threshold: 0.05, K: 3,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Candidates)

	best := bruteForceBest(p, 1, 0.05, []int{0, 2}, true)
	assert.InDelta(t, best, maxScore(res), 1e-9)
	for _, c := range res.Candidates {
		assert.Greater(t, c.Score, 0.0)
		assert.NotEmpty(t, c.Sens)
	}
}

func TestFindDiscriminating_TopMatchesBruteForce(t *testing.T) {
	p := fourLeaves()
	for _, d := range []int{0, 1} {
		o := NewOracle(Options{}, nil)
		res, err := o.FindDiscriminating(context.Background(), ports.SearchRequest{
			Params: p, TargetValue: d, SensitiveIDs: []int{0, 2}, Threshold: 0.05, K: 3,
		})
		require.NoError(t, err)
		assert.Len(t, res.Candidates, 3)
		assert.InDelta(t, bruteForceBest(p, d, 0.05, []int{0, 2}, false), maxScore(res), 1e-9)
		for _, c := range res.Candidates {
			assert.Greater(t, c.Score, 0.05)
		}
	}
}

func TestFindDiscriminating_RandomNetworks(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	o := NewOracle(Options{}, nil)
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.IntN(5)
		p := bayes.DistributionParams{Leaves: make([][4]float64, n)}
		r := 0.05 + 0.9*rng.Float64()
		p.Root = [2]float64{r, 1 - r}
		for i := range p.Leaves {
			a, b := 0.05+0.9*rng.Float64(), 0.05+0.9*rng.Float64()
			p.Leaves[i] = [4]float64{1 - a, a, 1 - b, b}
		}
		sens := rng.Perm(n)[:1+rng.IntN(n)]
		d := rng.IntN(2)
		thr := []float64{0.01, 0.05, 0.1}[rng.IntN(3)]

		res, err := o.FindDiscriminating(context.Background(), ports.SearchRequest{
			Params: p, TargetValue: d, SensitiveIDs: sens, Threshold: thr, K: 1,
		})
		require.NoError(t, err)

		want := bruteForceBest(p, d, thr, sens, false)
		if want <= thr+eps {
			assert.Empty(t, res.Candidates, "trial %d", trial)
			continue
		}
		require.Len(t, res.Candidates, 1, "trial %d", trial)
		assert.InDelta(t, want, res.Candidates[0].Score, 1e-9, "trial %d", trial)
	}
}

func TestStopAfterK(t *testing.T) {
	p := fourLeaves()
	req := ports.SearchRequest{Params: p, TargetValue: 1, SensitiveIDs: []int{0, 2}, Threshold: 0.05, K: 2}

	full, err := NewOracle(Options{}, nil).FindDiscriminating(context.Background(), req)
	require.NoError(t, err)
	quick, err := NewOracle(Options{StopAfterK: true}, nil).FindDiscriminating(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, quick.Candidates, 2)
	assert.LessOrEqual(t, quick.NodesVisited, full.NodesVisited)
	for _, c := range quick.Candidates {
		assert.Greater(t, c.Score, 0.05)
	}
}

func TestSearch_ZeroK(t *testing.T) {
	res, err := NewOracle(Options{}, nil).FindDiscriminating(context.Background(), ports.SearchRequest{
		Params: fourLeaves(), TargetValue: 1, SensitiveIDs: []int{0}, Threshold: 0.05, K: 0,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
}

func TestSearch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := NewOracle(Options{}, nil).FindDivergent(ctx, ports.SearchRequest{
		Params: fourLeaves(), TargetValue: 1, SensitiveIDs: []int{0, 2}, Threshold: 0.05, K: 3,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSearchCancelled))
	assert.Nil(t, res)
}

func TestSearch_InvalidRequest(t *testing.T) {
	o := NewOracle(Options{}, nil)
	_, err := o.FindDivergent(context.Background(), ports.SearchRequest{
		Params: fourLeaves(), TargetValue: 2, Threshold: 0.05, K: 1,
	})
	assert.Error(t, err)

	_, err = o.FindDivergent(context.Background(), ports.SearchRequest{
		Params: fourLeaves(), TargetValue: 1, SensitiveIDs: []int{9}, Threshold: 0.05, K: 1,
	})
	assert.Error(t, err)
}

func TestScoreOf(t *testing.T) {
	got := ScoreOf(singleLeaf(), 1, 0.1, nil, map[int]int{0: 1}, false)
	assert.InDelta(t, 0.4, got, 1e-12)
	assert.Zero(t, ScoreOf(singleLeaf(), 1, 0.1, map[int]int{0: 1}, nil, true))
}

func maxScore(res *ports.SearchResult) float64 {
	best := math.Inf(-1)
	for _, c := range res.Candidates {
		best = math.Max(best, c.Score)
	}
	return best
}

// bruteForceBest enumerates every (skip | base v | sens v) choice per leaf.
func bruteForceBest(p bayes.DistributionParams, d int, thr float64, sensIDs []int, kld bool) float64 {
	n := len(p.Leaves)
	isSens := make([]bool, n)
	for _, id := range sensIDs {
		isSens[id] = true
	}
	best := math.Inf(-1)
	base, sens := map[int]int{}, map[int]int{}
	var walk func(i int)
	walk = func(i int) {
		if i == n {
			best = math.Max(best, ScoreOf(p, d, thr, base, sens, kld))
			return
		}
		walk(i + 1)
		for v := 0; v <= 1; v++ {
			base[i] = v
			walk(i + 1)
			delete(base, i)
			if isSens[i] {
				sens[i] = v
				walk(i + 1)
				delete(sens, i)
			}
		}
	}
	walk(0)
	return best
}
