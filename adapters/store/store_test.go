package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fairnb/domain/core"
	"fairnb/domain/pattern"
	"fairnb/domain/run"
	apperrors "fairnb/internal/errors"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func manifest(t *testing.T) *run.Manifest {
	t.Helper()
	m, err := run.NewManifest("adult", pattern.SelectorDiff, 0.1, 10)
	require.NoError(t, err)
	return m
}

var sexPattern = pattern.Pattern{
	Sens:    []pattern.Assignment{{Feature: "sex", Value: 1}},
	Base:    []pattern.Assignment{{Feature: "age", Value: 0}},
	Score:   0.4,
	PDY:     0.1,
	PNotDY:  0.4,
	PDXY:    0.09,
	PNotDXY: 0.01,
}

func TestParseDSN(t *testing.T) {
	cases := []struct {
		dsn, driver, source string
	}{
		{"postgres://u:p@localhost/fairnb?sslmode=disable", "postgres", "postgres://u:p@localhost/fairnb?sslmode=disable"},
		{"postgresql://localhost/db", "postgres", "postgresql://localhost/db"},
		{"sqlite3://runs.db", "sqlite3", "runs.db"},
		{"sqlite://runs.db", "sqlite3", "runs.db"},
		{":memory:", "sqlite3", ":memory:"},
		{"output/runs.db", "sqlite3", "output/runs.db"},
	}
	for _, c := range cases {
		driver, source, err := ParseDSN(c.dsn)
		require.NoError(t, err, c.dsn)
		assert.Equal(t, c.driver, driver, c.dsn)
		assert.Equal(t, c.source, source, c.dsn)
	}

	_, _, err := ParseDSN("mysql://x")
	assert.Equal(t, apperrors.CodeConfigInvalid, apperrors.GetCode(err))
	_, _, err = ParseDSN("")
	assert.Error(t, err)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	m := manifest(t)

	require.NoError(t, s.RunStarted(ctx, m, run.Baseline{Independent: -1200.5, Unconstrained: -1100.25}))

	root := pattern.Pattern{Sens: []pattern.Assignment{{Feature: "sex", Value: 0}}, Score: 0.2}
	require.NoError(t, s.IterationCompleted(ctx, m, run.IterationRecord{
		Iteration: 1, LogLikelihood: -1110, Valid: true, NodesVisited: 42, Accepted: 2,
		Satisfaction: 0.5, TotalPatterns: 2, Patterns: []pattern.Pattern{sexPattern, root},
	}))
	require.NoError(t, s.IterationCompleted(ctx, m, run.IterationRecord{
		Iteration: 2, LogLikelihood: -1115, Valid: false, NodesVisited: 7, Accepted: 0,
		Satisfaction: 1, TotalPatterns: 2,
	}))
	require.NoError(t, s.RunFinished(ctx, m, run.Summary{
		Status: run.StatusConverged, Iterations: 2, LogLikelihood: -1115, TotalPatterns: 2,
		Elapsed: 1500 * time.Millisecond,
	}, nil, nil))

	row, err := s.GetRun(ctx, m.RunID)
	require.NoError(t, err)
	assert.Equal(t, "adult", row.Dataset)
	assert.Equal(t, "Diff", row.Selector)
	assert.Equal(t, 0.1, row.Delta)
	assert.Equal(t, 10, row.K)
	assert.Equal(t, string(run.StatusConverged), row.Status)
	assert.Equal(t, 2, row.Iterations)
	assert.Equal(t, int64(1500), row.ElapsedMs)
	assert.InDelta(t, -1200.5, row.BaselineIndependent.Float64, 1e-9)
	assert.InDelta(t, -1115, row.LogLikelihood.Float64, 1e-9)
	assert.False(t, row.ErrorMessage.Valid)
	assert.True(t, row.FinishedAt.Valid)

	iters, err := s.Iterations(ctx, m.RunID)
	require.NoError(t, err)
	require.Len(t, iters, 2)
	assert.Equal(t, 1, iters[0].Iteration)
	assert.True(t, iters[0].Valid)
	assert.False(t, iters[1].Valid)
	assert.Equal(t, 42, iters[0].NodesVisited)
	assert.Equal(t, 0.5, iters[0].Satisfaction)

	patterns, err := s.Patterns(ctx, m.RunID)
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	assert.Equal(t, sexPattern, patterns[0])
	assert.Equal(t, root.Sens, patterns[1].Sens)
	assert.Empty(t, patterns[1].Base)

	runs, err := s.ListRuns(ctx, "adult")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestStore_RunFailedBeforeStart(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	m := manifest(t)

	require.NoError(t, s.RunFinished(ctx, m, run.Summary{
		Status: run.StatusFailed,
		Err:    core.NewMissingColumnError("sex"),
	}, nil, nil))

	row, err := s.GetRun(ctx, m.RunID)
	require.NoError(t, err)
	assert.Equal(t, string(run.StatusFailed), row.Status)
	require.True(t, row.ErrorMessage.Valid)
	assert.Contains(t, row.ErrorMessage.String, `"sex"`)
}

func TestStore_Errors(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	m := manifest(t)

	_, err := s.GetRun(ctx, m.RunID)
	assert.Equal(t, apperrors.CodeStorageError, apperrors.GetCode(err))

	// iterations reference an existing run
	err = s.IterationCompleted(ctx, m, run.IterationRecord{Iteration: 1})
	assert.Equal(t, apperrors.CodeStorageError, apperrors.GetCode(err))

	require.NoError(t, s.RunStarted(ctx, m, run.Baseline{}))
	err = s.RunStarted(ctx, m, run.Baseline{})
	var appErr *apperrors.AppError
	assert.True(t, errors.As(err, &appErr))
}
