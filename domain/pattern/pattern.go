// Package pattern models discrimination patterns: a conjunction of sensitive
// assignments and a conjunction of non-sensitive assignments, scored by how
// far the outcome probability under the full conjunction departs from the
// probability under its non-sensitive part.
package pattern

import (
	"fmt"
	"strings"
)

// Selector chooses the pattern score.
type Selector string

const (
	// SelectorKLD scores by KL divergence to the nearest δ-fair distribution.
	SelectorKLD Selector = "KLD"
	// SelectorDiff scores by |P(d|x,y) - P(d|y)|.
	SelectorDiff Selector = "Diff"
)

// ParseSelector validates a selector name.
func ParseSelector(s string) (Selector, error) {
	switch Selector(s) {
	case SelectorKLD, SelectorDiff:
		return Selector(s), nil
	}
	return "", fmt.Errorf("unknown pattern selector %q (want KLD or Diff)", s)
}

// IndexedAssignment is a (leaf id, value) pair as produced by the search.
type IndexedAssignment struct {
	Var   int
	Value int
}

// Candidate is a raw search result over leaf ids.
type Candidate struct {
	Base  []IndexedAssignment
	Sens  []IndexedAssignment
	Score float64

	PDY, PNotDY   float64 // P(d, y), P(¬d, y)
	PDXY, PNotDXY float64 // P(d, x, y), P(¬d, x, y)
}

// Assignment fixes a named feature to a value.
type Assignment struct {
	Feature string `json:"feature" yaml:"feature"`
	Value   int    `json:"value" yaml:"value"`
}

func (a Assignment) String() string { return fmt.Sprintf("%s=%d", a.Feature, a.Value) }

// Pattern is an accepted discrimination pattern. Immutable once produced.
type Pattern struct {
	Base  []Assignment `json:"base" yaml:"base"`
	Sens  []Assignment `json:"sens" yaml:"sens"`
	Score float64      `json:"score" yaml:"score"`

	PDY     float64 `json:"p_dy" yaml:"p_dy"`
	PNotDY  float64 `json:"p_not_dy" yaml:"p_not_dy"`
	PDXY    float64 `json:"p_dxy" yaml:"p_dxy"`
	PNotDXY float64 `json:"p_not_dxy" yaml:"p_not_dxy"`
}

// IsRoot reports whether both conjunctions are empty.
func (p Pattern) IsRoot() bool { return len(p.Base) == 0 && len(p.Sens) == 0 }

// Conditional returns P(d | sens, base) and P(d | base).
func (p Pattern) Conditional() (withSens, baseOnly float64) {
	return p.PDXY / (p.PDXY + p.PNotDXY), p.PDY / (p.PDY + p.PNotDY)
}

func (p Pattern) String() string {
	return fmt.Sprintf("sens[%s] base[%s] score=%.6g",
		joinAssignments(p.Sens), joinAssignments(p.Base), p.Score)
}

func joinAssignments(as []Assignment) string {
	parts := make([]string, len(as))
	for i, a := range as {
		parts[i] = a.String()
	}
	return strings.Join(parts, " ")
}
