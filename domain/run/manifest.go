package run

import (
	"fmt"
	"time"

	"fairnb/domain/core"
	"fairnb/domain/pattern"
)

// Calibrated run parameter domains.
var (
	Datasets = []string{"compas", "german", "adult"}
	Deltas   = []float64{0.05, 0.01, 0.1, 0.5}
	Budgets  = []int{1, 10, 100}
)

// Manifest is the complete specification of one fairness-learning run.
type Manifest struct {
	RunID     core.RunID       `json:"run_id" yaml:"run_id"`
	Dataset   string           `json:"dataset" yaml:"dataset"`
	Selector  pattern.Selector `json:"selector" yaml:"selector"`
	Delta     float64          `json:"delta" yaml:"delta"`
	K         int              `json:"k" yaml:"k"`
	CreatedAt time.Time        `json:"created_at" yaml:"created_at"`
}

// NewManifest validates the run parameters against their calibrated domains.
func NewManifest(dataset string, selector pattern.Selector, delta float64, k int) (*Manifest, error) {
	if !containsString(Datasets, dataset) {
		return nil, core.NewParameterError("dataset", dataset, "compas|german|adult")
	}
	if _, err := pattern.ParseSelector(string(selector)); err != nil {
		return nil, core.NewParameterError("selector", selector, "KLD|Diff")
	}
	if !containsFloat(Deltas, delta) {
		return nil, core.NewParameterError("delta", delta, "0.05|0.01|0.1|0.5")
	}
	if !containsInt(Budgets, k) {
		return nil, core.NewParameterError("k", k, "1|10|100")
	}
	return &Manifest{
		RunID:     core.NewRunID(),
		Dataset:   dataset,
		Selector:  selector,
		Delta:     delta,
		K:         k,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Label renders the manifest the way run logs name it.
func (m *Manifest) Label() string {
	return fmt.Sprintf("datasource:%s, using %s with k =%d and delta=%g", m.Dataset, m.Selector, m.K, m.Delta)
}

// Grid enumerates every calibrated parameter combination for a dataset.
func Grid(dataset string) []*Manifest {
	var out []*Manifest
	for _, sel := range []pattern.Selector{pattern.SelectorKLD, pattern.SelectorDiff} {
		for _, d := range Deltas {
			for _, k := range Budgets {
				m, err := NewManifest(dataset, sel, d, k)
				if err == nil {
					out = append(out, m)
				}
			}
		}
	}
	return out
}

func containsString(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsFloat(xs []float64, v float64) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
