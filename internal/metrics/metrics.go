// Package metrics exports run progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"fairnb/domain/bayes"
	"fairnb/domain/pattern"
	"fairnb/domain/run"
	"fairnb/ports"
)

// Recorder is a RunObserver that updates Prometheus collectors.
type Recorder struct {
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	iterationsTotal  *prometheus.CounterVec
	patternsAccepted *prometheus.CounterVec
	nodesVisited     *prometheus.HistogramVec
	satisfaction     prometheus.Histogram
	logLikelihood    *prometheus.GaugeVec
}

var _ ports.RunObserver = (*Recorder)(nil)

// NewRecorder registers the collectors with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		// runsTotal counts finished runs by terminal status
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fairnb_runs_total",
			Help: "Finished fairness-learning runs by selector and status",
		}, []string{"selector", "status"}),

		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fairnb_run_duration_seconds",
			Help:    "Wall-clock duration of a run",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10), // 10ms to ~45min
		}, []string{"selector"}),

		iterationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fairnb_refits_total",
			Help: "Constrained refits performed",
		}, []string{"selector"}),

		patternsAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fairnb_patterns_accepted_total",
			Help: "Discrimination patterns added to the constraint set",
		}, []string{"selector"}),

		// nodesVisited is the search cost preceding each refit
		nodesVisited: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fairnb_search_nodes_visited",
			Help:    "Search-tree nodes visited per pattern search",
			Buckets: prometheus.ExponentialBuckets(1, 4, 12),
		}, []string{"selector"}),

		satisfaction: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fairnb_constraint_satisfaction_ratio",
			Help:    "Share of new pattern inequalities already met before the refit",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),

		logLikelihood: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fairnb_log_likelihood",
			Help: "Log-likelihood of the latest estimate",
		}, []string{"dataset", "selector"}),
	}
}

func (r *Recorder) RunStarted(ctx context.Context, m *run.Manifest, baseline run.Baseline) error {
	r.logLikelihood.WithLabelValues(m.Dataset, string(m.Selector)).Set(baseline.Unconstrained)
	return nil
}

func (r *Recorder) IterationCompleted(ctx context.Context, m *run.Manifest, rec run.IterationRecord) error {
	sel := string(m.Selector)
	r.iterationsTotal.WithLabelValues(sel).Inc()
	r.patternsAccepted.WithLabelValues(sel).Add(float64(rec.Accepted))
	r.nodesVisited.WithLabelValues(sel).Observe(float64(rec.NodesVisited))
	r.satisfaction.Observe(rec.Satisfaction)
	r.logLikelihood.WithLabelValues(m.Dataset, sel).Set(rec.LogLikelihood)
	return nil
}

func (r *Recorder) RunFinished(ctx context.Context, m *run.Manifest, summary run.Summary, est bayes.Estimate, patterns []pattern.Pattern) error {
	sel := string(m.Selector)
	r.runsTotal.WithLabelValues(sel, string(summary.Status)).Inc()
	r.runDuration.WithLabelValues(sel).Observe(summary.Elapsed.Seconds())
	return nil
}

// Serve exposes reg on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, reg prometheus.Gatherer, logger *logrus.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("[Metrics] serving /metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
