// Package search implements the pattern-search oracle as a depth-first
// branch-and-bound over partial assignments of the naive-Bayes leaves.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"fairnb/domain/bayes"
	"fairnb/ports"
)

// ErrSearchCancelled is returned when ctx is done before the search finishes.
var ErrSearchCancelled = errors.New("pattern search cancelled")

const defaultCheckEvery = 1024

// Options tunes the oracle.
type Options struct {
	// StopAfterK ends the search as soon as K patterns above the floor have
	// been found, instead of searching for the K best.
	StopAfterK bool
	// CheckEvery is the number of visited nodes between ctx checks.
	CheckEvery int
}

// Oracle implements ports.PatternOracle.
type Oracle struct {
	opts   Options
	logger *logrus.Logger
}

var _ ports.PatternOracle = (*Oracle)(nil)

// NewOracle creates an oracle. A nil logger discards output.
func NewOracle(opts Options, logger *logrus.Logger) *Oracle {
	if opts.CheckEvery <= 0 {
		opts.CheckEvery = defaultCheckEvery
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	return &Oracle{opts: opts, logger: logger}
}

// FindDivergent returns up to K patterns with the largest positive KL
// divergence to the closest δ-fair distribution.
func (o *Oracle) FindDivergent(ctx context.Context, req ports.SearchRequest) (*ports.SearchResult, error) {
	return o.run(ctx, req, true)
}

// FindDiscriminating returns up to K patterns with |P(d|x,y) - P(d|y)| > δ.
func (o *Oracle) FindDiscriminating(ctx context.Context, req ports.SearchRequest) (*ports.SearchResult, error) {
	return o.run(ctx, req, false)
}

func (o *Oracle) run(ctx context.Context, req ports.SearchRequest, useKLD bool) (*ports.SearchResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if req.K <= 0 {
		return &ports.SearchResult{}, nil
	}

	start := time.Now()
	e := newEngine(ctx, req.Params, req.TargetValue, req.Threshold, req.SensitiveIDs,
		useKLD, o.opts.StopAfterK, o.opts.CheckEvery)
	e.initialize(req.K)
	e.recurse(0)

	if e.err != nil {
		o.logger.WithFields(logrus.Fields{
			"nodes": e.visits,
			"after": time.Since(start),
		}).Warn("[Search] cancelled")
		return nil, fmt.Errorf("%w: %v", ErrSearchCancelled, e.err)
	}

	cands := e.results()
	o.logger.WithFields(logrus.Fields{
		"kld":        useKLD,
		"nodes":      e.visits,
		"candidates": len(cands),
		"elapsed":    time.Since(start),
	}).Debug("[Search] done")
	return &ports.SearchResult{Candidates: cands, NodesVisited: e.visits}, nil
}

func validate(req ports.SearchRequest) error {
	if req.TargetValue != 0 && req.TargetValue != 1 {
		return fmt.Errorf("search: target value %d is not binary", req.TargetValue)
	}
	if req.Threshold < 0 {
		return fmt.Errorf("search: negative threshold %g", req.Threshold)
	}
	n := len(req.Params.Leaves)
	for _, id := range req.SensitiveIDs {
		if id < 0 || id >= n {
			return fmt.Errorf("search: sensitive id %d out of range [0,%d)", id, n)
		}
	}
	return nil
}

// ScoreOf evaluates a fixed pattern directly from the parameters. It is the
// reference the search must agree with.
func ScoreOf(params bayes.DistributionParams, targetValue int, threshold float64,
	base, sens map[int]int, useKLD bool) float64 {
	d := targetValue
	pDY, pNotDY := params.Root[d], params.Root[1-d]
	for v, val := range base {
		pDY *= params.Leaf(v, val, d)
		pNotDY *= params.Leaf(v, val, 1-d)
	}
	pDXY, pNotDXY := pDY, pNotDY
	for v, val := range sens {
		pDXY *= params.Leaf(v, val, d)
		pNotDXY *= params.Leaf(v, val, 1-d)
	}
	e := &engine{threshold: threshold}
	e.cur.PDY, e.cur.PNotDY, e.cur.PDXY, e.cur.PNotDXY = pDY, pNotDY, pDXY, pNotDXY
	if useKLD {
		return e.divergence()
	}
	return e.difference()
}
