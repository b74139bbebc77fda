// Package runlog writes the per-run text artifacts: the tab-separated
// result log, the runtime summary line and the YAML model file.
package runlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"fairnb/domain/bayes"
	"fairnb/domain/pattern"
	"fairnb/domain/run"
	"fairnb/ports"
)

// Terminal lines of the result log.
const (
	LineEarlyTermination = "TIMEOUT: !!! Early termination !!!"
	LineSearchTimeout    = "TIMEOUT: !!! extracting patterns took too long !!!"
	lineConverged        = "Optimal results after %d iterations"
)

// Writer appends run artifacts under one output directory. Runs with
// different manifests write different files, so a Writer can be shared by
// concurrent runs.
type Writer struct {
	outDir string
	mu     sync.Mutex
	logger *logrus.Logger
}

var _ ports.RunObserver = (*Writer)(nil)

// NewWriter creates the output directory if needed.
func NewWriter(outDir string, logger *logrus.Logger) (*Writer, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &Writer{outDir: outDir, logger: logger}, nil
}

// ResultPath is <outdir>/<dataset>_<delta %f>result_<selector>_<k>.txt.
func ResultPath(outDir string, m *run.Manifest) string {
	return filepath.Join(outDir, fmt.Sprintf("%s_%fresult_%s_%d.txt", m.Dataset, m.Delta, m.Selector, m.K))
}

// RuntimePath is <outdir>/runtime.<selector>.<dataset>.<delta %g>.<k>.txt.
func RuntimePath(outDir string, m *run.Manifest) string {
	return filepath.Join(outDir, fmt.Sprintf("runtime.%s.%s.%g.%d.txt", m.Selector, m.Dataset, m.Delta, m.K))
}

// ModelPath is <outdir>/<dataset>_<delta %f>model_<selector>_<k>.yaml.
func ModelPath(outDir string, m *run.Manifest) string {
	return filepath.Join(outDir, fmt.Sprintf("%s_%fmodel_%s_%d.yaml", m.Dataset, m.Delta, m.Selector, m.K))
}

func (w *Writer) RunStarted(ctx context.Context, m *run.Manifest, baseline run.Baseline) error {
	return w.appendLines(ResultPath(w.outDir, m),
		"baseline (independent):\t"+formatFloat(baseline.Independent),
		"0\t"+formatFloat(baseline.Unconstrained),
	)
}

func (w *Writer) IterationCompleted(ctx context.Context, m *run.Manifest, rec run.IterationRecord) error {
	return w.appendLines(ResultPath(w.outDir, m), FormatIteration(rec))
}

func (w *Writer) RunFinished(ctx context.Context, m *run.Manifest, summary run.Summary, est bayes.Estimate, patterns []pattern.Pattern) error {
	if err := w.appendLines(ResultPath(w.outDir, m), TerminalLine(summary)); err != nil {
		return err
	}
	if summary.Status != run.StatusConverged && summary.Status != run.StatusEarlyTermination {
		return nil
	}

	// 1. Runtime line
	runtime := fmt.Sprintf("%s has running time=%s", m.Label(), formatFloat(summary.Elapsed.Seconds()))
	if err := w.appendLines(RuntimePath(w.outDir, m), runtime); err != nil {
		return err
	}

	// 2. Model artifact
	path := ModelPath(w.outDir, m)
	if err := WriteModel(path, NewModel(m, summary, est, patterns)); err != nil {
		return err
	}
	w.logger.WithFields(logrus.Fields{"run": m.RunID, "model": path}).Debug("[RunLog] model written")
	return nil
}

// FormatIteration renders one iteration line:
// iteration, log-likelihood, validity, nodes visited, accepted patterns.
func FormatIteration(rec run.IterationRecord) string {
	valid := "False"
	if rec.Valid {
		valid = "True"
	}
	return fmt.Sprintf("%d\t%s\t%s\t%d\t%d", rec.Iteration, formatFloat(rec.LogLikelihood), valid, rec.NodesVisited, rec.Accepted)
}

// TerminalLine renders the closing line of the result log.
func TerminalLine(summary run.Summary) string {
	switch summary.Status {
	case run.StatusConverged:
		return fmt.Sprintf(lineConverged, summary.Iterations)
	case run.StatusEarlyTermination:
		return LineEarlyTermination
	case run.StatusTimeout:
		return LineSearchTimeout
	}
	if summary.Err != nil {
		return fmt.Sprintf("FAILED (%s): %v", summary.Status, summary.Err)
	}
	return fmt.Sprintf("FAILED (%s)", summary.Status)
}

func (w *Writer) appendLines(path string, lines ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	for _, line := range lines {
		if _, err := f.WriteString(line + "\n"); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
