package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairnb/domain/core"
	"fairnb/domain/pattern"
	"fairnb/domain/run"
)

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)
	m := &run.Manifest{RunID: core.NewRunID(), Dataset: "german", Selector: pattern.SelectorDiff, Delta: 0.1, K: 1}

	require.NoError(t, r.RunStarted(ctx, m, run.Baseline{Independent: -9, Unconstrained: -8}))
	assert.Equal(t, -8.0, testutil.ToFloat64(r.logLikelihood.WithLabelValues("german", "Diff")))

	for i := 1; i <= 3; i++ {
		require.NoError(t, r.IterationCompleted(ctx, m, run.IterationRecord{
			Iteration: i, LogLikelihood: -8 - float64(i), Accepted: 2, NodesVisited: 100, Satisfaction: 0.5,
		}))
	}
	require.NoError(t, r.RunFinished(ctx, m, run.Summary{Status: run.StatusConverged, Elapsed: time.Second}, nil, nil))

	assert.Equal(t, 3.0, testutil.ToFloat64(r.iterationsTotal.WithLabelValues("Diff")))
	assert.Equal(t, 6.0, testutil.ToFloat64(r.patternsAccepted.WithLabelValues("Diff")))
	assert.Equal(t, -11.0, testutil.ToFloat64(r.logLikelihood.WithLabelValues("german", "Diff")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("Diff", "converged")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("Diff", "timeout")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.runsTotal))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRecorder_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRecorder(reg)
	assert.Panics(t, func() { NewRecorder(reg) })
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", prometheus.NewRegistry(), testLogger()) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}
