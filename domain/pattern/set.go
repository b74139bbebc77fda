package pattern

// Set is the append-only collection of patterns accepted across iterations.
// Duplicates are kept.
type Set struct {
	patterns []Pattern
}

// Append adds patterns to the set.
func (s *Set) Append(ps ...Pattern) {
	s.patterns = append(s.patterns, ps...)
}

// Len returns the number of accumulated patterns.
func (s *Set) Len() int { return len(s.patterns) }

// Patterns returns a snapshot of the accumulated patterns.
func (s *Set) Patterns() []Pattern {
	return append([]Pattern(nil), s.patterns...)
}
