package search

import (
	"container/heap"
	"context"
	"math"

	"fairnb/domain/bayes"
	"fairnb/domain/pattern"
)

const eps = 1e-12

func leq(a, b float64) bool      { return a-eps <= b }
func eq(a, b float64) bool       { return leq(a, b) && leq(b, a) }
func lessThan(a, b float64) bool { return leq(a, b) && !eq(a, b) }

// extension tracks P(d, ·) and P(¬d, ·) after instantiating every remaining
// leaf so as to maximize (Max) or minimize (Min) P(d | ·).
type extension struct {
	pDMax, pNotDMax float64
	pDMin, pNotDMin float64
}

// drop removes an uninstantiated leaf from the extension.
func (x *extension) drop(maxP, minP [2]float64, d int) {
	x.pDMax /= maxP[d]
	x.pNotDMax /= maxP[1-d]
	x.pDMin /= minP[d]
	x.pNotDMin /= minP[1-d]
}

// restore is the inverse of drop.
func (x *extension) restore(maxP, minP [2]float64, d int) {
	x.pDMax *= maxP[d]
	x.pNotDMax *= maxP[1-d]
	x.pDMin *= minP[d]
	x.pNotDMin *= minP[1-d]
}

func (x *extension) scaleMax(dRatio, notDRatio float64) {
	x.pDMax *= dRatio
	x.pNotDMax *= notDRatio
}

func (x *extension) scaleMin(dRatio, notDRatio float64) {
	x.pDMin *= dRatio
	x.pNotDMin *= notDRatio
}

// candidateHeap is a min-heap on score holding the best K candidates.
type candidateHeap []pattern.Candidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(pattern.Candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// engine holds the depth-first branch-and-bound state. Each leaf is either
// skipped, added to the non-sensitive conjunction y, or (when protected)
// added to the sensitive conjunction x.
type engine struct {
	params     bayes.DistributionParams
	prior      [2]float64
	d          int // positive target value
	numLeaves  int
	threshold  float64
	sensitive  []bool
	useKLD     bool
	stopAfterK bool
	floor      float64

	ctx        context.Context
	checkEvery int
	visits     int
	err        error

	cur         pattern.Candidate
	all         extension // keep x,y; extend every other leaf
	base        extension // keep y; extend every other leaf
	baseOnly    extension // keep y; extend leaves except instantiated sensitive ones
	sensOnly    extension // keep x; extend sensitive leaves
	maxInstance []int
	best        candidateHeap
}

func newEngine(ctx context.Context, params bayes.DistributionParams, targetValue int,
	threshold float64, sensitiveIDs []int, useKLD, stopAfterK bool, checkEvery int) *engine {
	n := len(params.Leaves)
	e := &engine{
		params:     params,
		prior:      params.Root,
		d:          targetValue,
		numLeaves:  n,
		threshold:  threshold,
		sensitive:  make([]bool, n),
		useKLD:     useKLD,
		stopAfterK: stopAfterK,
		ctx:        ctx,
		checkEvery: checkEvery,
	}
	for _, id := range sensitiveIDs {
		e.sensitive[id] = true
	}
	if useKLD {
		e.floor = 0
	} else {
		e.floor = threshold
	}
	return e
}

// leafParams returns P(leaf=v | target=·) indexed by target value.
func (e *engine) leafParams(leaf, v int) [2]float64 {
	return [2]float64{e.params.Leaf(leaf, v, 0), e.params.Leaf(leaf, v, 1)}
}

func (e *engine) initialize(k int) {
	d := e.d
	e.visits = 0
	e.cur = pattern.Candidate{
		PDY: e.prior[d], PDXY: e.prior[d],
		PNotDY: e.prior[1-d], PNotDXY: e.prior[1-d],
	}

	e.maxInstance = make([]int, e.numLeaves)
	e.all = extension{pDMax: e.prior[d], pDMin: e.prior[d], pNotDMax: e.prior[1-d], pNotDMin: e.prior[1-d]}
	e.sensOnly = e.all
	for i := 0; i < e.numLeaves; i++ {
		p0, p1 := e.leafParams(i, 0), e.leafParams(i, 1)
		maxI := 1
		if p0[d]/p0[1-d] > p1[d]/p1[1-d] {
			maxI = 0
		}
		e.maxInstance[i] = maxI
		maxP, minP := e.leafParams(i, maxI), e.leafParams(i, 1-maxI)

		e.all.restore(maxP, minP, d)
		if e.sensitive[i] {
			e.sensOnly.restore(maxP, minP, d)
		}
	}
	e.base = e.all
	e.baseOnly = e.all

	e.best = make(candidateHeap, 0, k)
	for i := 0; i < k; i++ {
		e.best = append(e.best, pattern.Candidate{
			PDY: e.prior[d], PNotDY: e.prior[1-d],
			PDXY: e.prior[d], PNotDXY: e.prior[1-d],
			Score: e.floor,
		})
	}
	heap.Init(&e.best)
}

func (e *engine) top() float64 { return e.best[0].Score }

// cancelled checks ctx at the first node and every checkEvery nodes.
func (e *engine) cancelled() bool {
	if e.err != nil {
		return true
	}
	if e.visits%e.checkEvery == 0 {
		if err := e.ctx.Err(); err != nil {
			e.err = err
			return true
		}
	}
	return false
}

func (e *engine) recurse(level int) {
	if level >= e.numLeaves || (e.stopAfterK && e.top() != e.floor) {
		return
	}
	if e.cancelled() {
		return
	}
	e.visits++

	if e.sensitive[level] {
		for val := 0; val <= 1; val++ {
			e.add(level, val, true)
			e.branch(level)
			e.remove(level, val, true)
		}
	}
	for val := 0; val <= 1; val++ {
		e.add(level, val, false)
		e.branch(level)
		e.remove(level, val, false)
	}

	e.skip(level)
	e.recurse(level + 1)
	e.unskip(level)
}

// branch scores the current pattern, offers it to the top-K heap and
// descends when the bound can still beat the K-th best.
func (e *engine) branch(level int) {
	if e.useKLD {
		e.cur.Score = e.divergence()
	} else {
		e.cur.Score = e.difference()
	}
	if leq(e.top(), e.cur.Score) {
		heap.Pop(&e.best)
		heap.Push(&e.best, e.snapshot())
	}
	if level+1 < e.numLeaves {
		var bound float64
		if e.useKLD {
			bound = e.divergenceBound2()
		} else {
			bound = e.differenceBound()
		}
		if bound > e.top() {
			e.recurse(level + 1)
		}
	}
}

func (e *engine) snapshot() pattern.Candidate {
	c := e.cur
	c.Base = append([]pattern.IndexedAssignment(nil), e.cur.Base...)
	c.Sens = append([]pattern.IndexedAssignment(nil), e.cur.Sens...)
	return c
}

func (e *engine) extremes(leaf int) (maxP, minP [2]float64) {
	return e.leafParams(leaf, e.maxInstance[leaf]), e.leafParams(leaf, 1-e.maxInstance[leaf])
}

func (e *engine) skip(leaf int) {
	maxP, minP := e.extremes(leaf)
	e.all.drop(maxP, minP, e.d)
	e.base.drop(maxP, minP, e.d)
	e.baseOnly.drop(maxP, minP, e.d)
	if e.sensitive[leaf] {
		e.sensOnly.drop(maxP, minP, e.d)
	}
}

func (e *engine) unskip(leaf int) {
	maxP, minP := e.extremes(leaf)
	e.all.restore(maxP, minP, e.d)
	e.base.restore(maxP, minP, e.d)
	e.baseOnly.restore(maxP, minP, e.d)
	if e.sensitive[leaf] {
		e.sensOnly.restore(maxP, minP, e.d)
	}
}

// shift moves the extensions from the extreme instance of leaf to val.
func (e *engine) shift(leaf, val int, sens bool, added, removed [2]float64) {
	d := e.d
	dRatio := added[d] / removed[d]
	notDRatio := added[1-d] / removed[1-d]
	if val != e.maxInstance[leaf] {
		e.all.scaleMax(dRatio, notDRatio)
		if sens {
			e.sensOnly.scaleMax(dRatio, notDRatio)
		} else {
			e.base.scaleMax(dRatio, notDRatio)
			e.baseOnly.scaleMax(dRatio, notDRatio)
		}
	} else {
		e.all.scaleMin(dRatio, notDRatio)
		if sens {
			e.sensOnly.scaleMin(dRatio, notDRatio)
		} else {
			e.base.scaleMin(dRatio, notDRatio)
			e.baseOnly.scaleMin(dRatio, notDRatio)
		}
	}
}

func (e *engine) add(leaf, val int, sens bool) {
	d := e.d
	maxP, minP := e.extremes(leaf)
	toAdd, toRemove := minP, maxP
	if val == e.maxInstance[leaf] {
		toAdd, toRemove = maxP, minP
	}

	e.cur.PDXY *= toAdd[d]
	e.cur.PNotDXY *= toAdd[1-d]
	a := pattern.IndexedAssignment{Var: leaf, Value: val}
	if sens {
		e.cur.Sens = append(e.cur.Sens, a)
	} else {
		e.cur.Base = append(e.cur.Base, a)
		e.cur.PDY *= toAdd[d]
		e.cur.PNotDY *= toAdd[1-d]
	}

	e.shift(leaf, val, sens, toAdd, toRemove)

	if sens {
		e.baseOnly.drop(maxP, minP, d)
	} else if e.sensitive[leaf] {
		e.sensOnly.drop(maxP, minP, d)
	}
}

func (e *engine) remove(leaf, val int, sens bool) {
	d := e.d
	maxP, minP := e.extremes(leaf)
	toRemove, toAdd := minP, maxP
	if val == e.maxInstance[leaf] {
		toRemove, toAdd = maxP, minP
	}

	e.cur.PDXY /= toRemove[d]
	e.cur.PNotDXY /= toRemove[1-d]
	if sens {
		e.cur.Sens = e.cur.Sens[:len(e.cur.Sens)-1]
	} else {
		e.cur.PDY /= toRemove[d]
		e.cur.PNotDY /= toRemove[1-d]
		e.cur.Base = e.cur.Base[:len(e.cur.Base)-1]
	}

	e.shift(leaf, val, sens, toAdd, toRemove)

	if sens {
		e.baseOnly.restore(maxP, minP, d)
	} else if e.sensitive[leaf] {
		e.sensOnly.restore(maxP, minP, d)
	}
}

// difference is |P(d | x, y) - P(d | y)|.
func (e *engine) difference() float64 {
	pXY := e.cur.PDXY + e.cur.PNotDXY
	pY := e.cur.PDY + e.cur.PNotDY
	return math.Abs(e.cur.PDXY/pXY - e.cur.PDY/pY)
}

// divergence is the KL divergence from the pattern's joint outcome
// distribution to the closest one whose difference is within the threshold.
func (e *engine) divergence() float64 {
	c := e.cur
	pXY := c.PDXY + c.PNotDXY
	pY := c.PDY + c.PNotDY
	delta := c.PDXY/pXY - c.PDY/pY
	if math.Abs(delta) <= e.threshold {
		return 0
	}

	coeff := 1 / (1/pXY - 1/pY)
	q := coeff * (e.threshold - delta)
	if delta < 0 {
		q = coeff * (-e.threshold - delta)
	}
	return c.PDXY*(math.Log2(c.PDXY)-math.Log2(q+c.PDXY)) +
		c.PNotDXY*(math.Log2(c.PNotDXY)-math.Log2(c.PNotDXY-q))
}

func (e *engine) divergenceBound() float64 {
	pDAll := e.all.pDMax / (e.all.pDMax + e.all.pNotDMax)
	pNotDAll := e.all.pNotDMin / (e.all.pDMin + e.all.pNotDMin)
	pDBase := e.base.pDMin / (e.base.pDMin + e.base.pNotDMin)
	pNotDBase := e.base.pNotDMax / (e.base.pDMax + e.base.pNotDMax)
	return e.cur.PDXY*math.Log2(pDAll/pDBase) + e.cur.PNotDXY*math.Log2(pNotDAll/pNotDBase)
}

func (e *engine) divergenceBoundFor(diff float64) float64 {
	// range of P(x | y) reachable by extending
	pxy1 := (e.all.pDMax + e.all.pNotDMax) / (e.baseOnly.pDMax + e.baseOnly.pNotDMax)
	pxy2 := (e.all.pDMin + e.all.pNotDMin) / (e.baseOnly.pDMin + e.baseOnly.pNotDMin)
	maxPxy := math.Max(pxy1, pxy2)
	minPxy := math.Min(pxy1, pxy2)

	var bound float64
	if leq(0, diff) {
		pNotDXYMin := e.all.pNotDMin / (e.all.pDMin + e.all.pNotDMin)
		pNotDXYMax := e.all.pNotDMax / (e.all.pDMax + e.all.pNotDMax)
		bound = e.cur.PNotDXY * math.Log2(pNotDXYMin*(1-minPxy)/(pNotDXYMax*(1-maxPxy)-diff))
	} else {
		pDXYMax := e.all.pDMax / (e.all.pDMax + e.all.pNotDMax)
		pDXYMin := e.all.pDMin / (e.all.pDMin + e.all.pNotDMin)
		bound = e.cur.PDXY * math.Log2(pDXYMax*(1-minPxy)/(pDXYMin*(1-maxPxy)-diff))
	}
	if math.IsNaN(bound) {
		return math.Inf(1)
	}
	return math.Max(bound, 0)
}

func (e *engine) divergenceBound2() float64 {
	upper, lower := e.differenceBounds()
	if leq(upper, e.threshold) && leq(-e.threshold, lower) {
		return 0
	}
	score1 := e.divergenceBoundFor(e.threshold - upper)
	score2 := e.divergenceBoundFor(-e.threshold - lower)

	alt := e.divergenceBound()
	if math.IsNaN(score1) || math.IsNaN(score2) {
		return alt
	}
	return math.Min(alt, math.Max(score1, score2))
}

// differenceBoundFor bounds P(d|x,y) - P(d|y) over P(d|y) in [lower, upper],
// with a = P(x|d) and b = P(x|¬d).
func differenceBoundFor(a, b, lower, upper float64, maximize bool) float64 {
	if eq(a, b) {
		return 0
	}
	if eq(a, 0) || eq(b, 0) {
		return 1
	}
	at := func(p float64) float64 { return a*p/(a*p+b*(1-p)) - p }
	opt := (b - math.Sqrt(a*b)) / (b - a)
	if maximize {
		return math.Max(at(opt), math.Max(at(lower), at(upper)))
	}
	return math.Min(at(opt), math.Min(at(lower), at(upper)))
}

func (e *engine) differenceBound() float64 {
	upper, lower := e.differenceBounds()
	return math.Max(math.Abs(upper), math.Abs(lower))
}

// differenceBounds returns the largest and smallest reachable difference.
func (e *engine) differenceBounds() (float64, float64) {
	d := e.d
	aMax := e.sensOnly.pDMax / e.prior[d]
	bMax := e.sensOnly.pNotDMax / e.prior[1-d]
	aMin := e.sensOnly.pDMin / e.prior[d]
	bMin := e.sensOnly.pNotDMin / e.prior[1-d]

	lower := e.base.pDMin / (e.base.pDMin + e.base.pNotDMin)
	upper := e.base.pDMax / (e.base.pDMax + e.base.pNotDMax)

	return differenceBoundFor(aMax, bMax, lower, upper, true),
		differenceBoundFor(aMin, bMin, lower, upper, false)
}

// results drains the heap, keeping candidates strictly above the floor.
func (e *engine) results() []pattern.Candidate {
	var out []pattern.Candidate
	for e.best.Len() > 0 {
		c := heap.Pop(&e.best).(pattern.Candidate)
		if lessThan(e.floor, c.Score) {
			out = append(out, c)
		}
	}
	return out
}
