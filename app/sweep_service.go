package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"fairnb/domain/dataset"
	"fairnb/domain/network"
	"fairnb/domain/run"
)

// DefaultSweepConcurrency bounds the number of runs in flight.
const DefaultSweepConcurrency = 4

// SweepService runs a grid of learner configurations over one dataset.
// Each run is single-threaded; runs execute in parallel up to the
// configured concurrency.
type SweepService struct {
	learner     *Learner
	concurrency int64
	logger      *logrus.Logger
}

// SweepRequest names the dataset and the configurations to run. An empty
// Manifests list runs the full calibrated grid of Dataset.
type SweepRequest struct {
	Dataset   string
	Network   *network.Network
	Table     *dataset.Table
	Manifests []*run.Manifest
}

// SweepOutcome is the result of one configuration.
type SweepOutcome struct {
	Manifest *run.Manifest
	Result   *Result
	Err      error
}

// RuntimeSummary aggregates wall-clock times in seconds.
type RuntimeSummary struct {
	Runs   int
	Mean   float64
	Median float64
	Max    float64
}

// SweepReport collects every outcome in manifest order.
type SweepReport struct {
	Outcomes []SweepOutcome
	Statuses map[run.Status]int
	Runtime  RuntimeSummary
	Elapsed  time.Duration
}

// Failed returns the outcomes that ended with an error.
func (r *SweepReport) Failed() []SweepOutcome {
	var out []SweepOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// NewSweepService creates a sweep service. A non-positive concurrency uses
// DefaultSweepConcurrency.
func NewSweepService(learner *Learner, concurrency int, logger *logrus.Logger) *SweepService {
	if concurrency <= 0 {
		concurrency = DefaultSweepConcurrency
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &SweepService{learner: learner, concurrency: int64(concurrency), logger: logger}
}

// Run executes every configuration. A failed run is recorded in its outcome
// and does not stop the sweep; only cancellation of ctx does.
func (s *SweepService) Run(ctx context.Context, req SweepRequest) (*SweepReport, error) {
	start := time.Now()

	// 1. Resolve configurations
	manifests := req.Manifests
	if len(manifests) == 0 {
		manifests = run.Grid(req.Dataset)
	}
	if len(manifests) == 0 {
		return nil, fmt.Errorf("no configurations to run for dataset %q", req.Dataset)
	}
	if req.Network == nil || req.Table == nil {
		return nil, fmt.Errorf("sweep requires a loaded network and table")
	}

	s.logger.WithFields(logrus.Fields{
		"dataset":     req.Dataset,
		"runs":        len(manifests),
		"concurrency": s.concurrency,
	}).Info("[Sweep] starting")

	// 2. Fan out under the semaphore
	outcomes := make([]SweepOutcome, len(manifests))
	sem := semaphore.NewWeighted(s.concurrency)
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	done := 0

	for i, m := range manifests {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			res, err := s.learner.Learn(gctx, LearnRequest{Manifest: m, Network: req.Network, Table: req.Table})
			outcomes[i] = SweepOutcome{Manifest: m, Result: res, Err: err}

			mu.Lock()
			done++
			progress := done
			mu.Unlock()

			entry := s.logger.WithFields(logrus.Fields{"run": m.Label(), "progress": fmt.Sprintf("%d/%d", progress, len(manifests))})
			if res != nil {
				entry = entry.WithFields(logrus.Fields{"status": res.Status, "elapsed": res.Elapsed})
			}
			if err != nil {
				entry.WithError(err).Warn("[Sweep] run failed")
			} else {
				entry.Info("[Sweep] run finished")
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("sweep cancelled: %w", err)
	}

	// 3. Summarize
	report := &SweepReport{Outcomes: outcomes, Statuses: make(map[run.Status]int), Elapsed: time.Since(start)}
	var seconds []float64
	for _, o := range outcomes {
		if o.Result == nil {
			report.Statuses[run.StatusFailed]++
			continue
		}
		report.Statuses[o.Result.Status]++
		seconds = append(seconds, o.Result.Elapsed.Seconds())
	}
	report.Runtime = summarizeRuntimes(seconds)

	s.logger.WithFields(logrus.Fields{
		"runs":       report.Runtime.Runs,
		"mean_sec":   report.Runtime.Mean,
		"median_sec": report.Runtime.Median,
		"max_sec":    report.Runtime.Max,
		"failed":     len(report.Failed()),
		"elapsed":    report.Elapsed,
	}).Info("[Sweep] finished")
	return report, nil
}

func summarizeRuntimes(seconds []float64) RuntimeSummary {
	if len(seconds) == 0 {
		return RuntimeSummary{}
	}
	data := stats.Float64Data(seconds)
	mean, _ := data.Mean()
	median, _ := data.Median()
	peak, _ := data.Max()
	return RuntimeSummary{Runs: len(seconds), Mean: mean, Median: median, Max: peak}
}
