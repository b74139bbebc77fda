package runlog

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"fairnb/domain/bayes"
	"fairnb/domain/pattern"
	"fairnb/domain/run"
)

// Model is the YAML artifact of a finished run: the fitted CPTs and the
// accepted patterns.
type Model struct {
	RunID         string            `yaml:"run_id"`
	Dataset       string            `yaml:"dataset"`
	Selector      pattern.Selector  `yaml:"selector"`
	Delta         float64           `yaml:"delta"`
	K             int               `yaml:"k"`
	Status        run.Status        `yaml:"status"`
	Iterations    int               `yaml:"iterations"`
	LogLikelihood float64           `yaml:"log_likelihood"`
	Root          RootCPT           `yaml:"root"`
	Leaves        []LeafCPT         `yaml:"leaves"`
	Patterns      []pattern.Pattern `yaml:"patterns"`
}

// RootCPT is P(target=v), indexed by v.
type RootCPT struct {
	Target string     `yaml:"target"`
	P      [2]float64 `yaml:"p"`
}

// LeafCPT holds P(feature=v | target=t) as Given[t][v].
type LeafCPT struct {
	Feature string        `yaml:"feature"`
	Given   [2][2]float64 `yaml:"given_target"`
}

// NewModel assembles the artifact. Leaves are ordered by name.
func NewModel(m *run.Manifest, summary run.Summary, est bayes.Estimate, patterns []pattern.Pattern) *Model {
	model := &Model{
		RunID:         m.RunID.String(),
		Dataset:       m.Dataset,
		Selector:      m.Selector,
		Delta:         m.Delta,
		K:             m.K,
		Status:        summary.Status,
		Iterations:    summary.Iterations,
		LogLikelihood: summary.LogLikelihood,
		Patterns:      patterns,
	}
	leaves := make(map[string]*LeafCPT)
	for k, p := range est {
		if k.Value != 0 && k.Value != 1 {
			continue
		}
		if k.IsRoot() {
			model.Root.Target = k.Feature
			model.Root.P[k.Value] = p
			continue
		}
		if k.Target != 0 && k.Target != 1 {
			continue
		}
		leaf, ok := leaves[k.Feature]
		if !ok {
			leaf = &LeafCPT{Feature: k.Feature}
			leaves[k.Feature] = leaf
		}
		leaf.Given[k.Target][k.Value] = p
	}
	for _, leaf := range leaves {
		model.Leaves = append(model.Leaves, *leaf)
	}
	sort.Slice(model.Leaves, func(i, j int) bool { return model.Leaves[i].Feature < model.Leaves[j].Feature })
	return model
}

// Estimate rebuilds the parameter map.
func (m *Model) Estimate() bayes.Estimate {
	est := make(bayes.Estimate, 2+4*len(m.Leaves))
	for _, v := range bayes.Values {
		est[bayes.RootKey(m.Root.Target, v)] = m.Root.P[v]
	}
	for _, leaf := range m.Leaves {
		for _, t := range bayes.Values {
			for _, v := range bayes.Values {
				est[bayes.LeafKey(leaf.Feature, v, t)] = leaf.Given[t][v]
			}
		}
	}
	return est
}

// WriteModel writes the artifact as YAML, replacing any previous file.
func WriteModel(path string, model *Model) error {
	out, err := yaml.Marshal(model)
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	return nil
}

// ReadModel loads an artifact written by WriteModel.
func ReadModel(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	var model Model
	if err := yaml.Unmarshal(raw, &model); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	return &model, nil
}
