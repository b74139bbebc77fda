package pattern

import "sort"

// Process turns raw search candidates into accepted patterns: leaf ids are
// translated to names, candidates are filtered by selector (Diff keeps
// score > delta, KLD keeps score > 0), the vacuous pattern is dropped and the
// rest is sorted by descending score. The order of equal scores is
// implementation-defined.
func Process(cands []Candidate, names func(id int) string, selector Selector, delta float64) []Pattern {
	out := make([]Pattern, 0, len(cands))
	for _, c := range cands {
		if !keep(selector, c.Score, delta) {
			continue
		}
		p := Pattern{
			Base:    translate(c.Base, names),
			Sens:    translate(c.Sens, names),
			Score:   c.Score,
			PDY:     c.PDY,
			PNotDY:  c.PNotDY,
			PDXY:    c.PDXY,
			PNotDXY: c.PNotDXY,
		}
		if p.IsRoot() {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func keep(selector Selector, score, delta float64) bool {
	switch selector {
	case SelectorDiff:
		return score > delta
	case SelectorKLD:
		return score > 0
	}
	return false
}

func translate(as []IndexedAssignment, names func(int) string) []Assignment {
	if len(as) == 0 {
		return nil
	}
	out := make([]Assignment, len(as))
	for i, a := range as {
		out[i] = Assignment{Feature: names(a.Var), Value: a.Value}
	}
	return out
}
