package topology

import "sort"

// Label marks a subset of mesh points with an integer value. Membership queries go through a
// map unless an index has been created over a point range, in which case they are a slice lookup.
// The index is an acceleration structure for a traversal and should be destroyed when it ends.
type Label struct {
	Name   string
	points map[int]int
	index  []bool
	iStart int
}

func NewLabel(name string) *Label {
	return &Label{
		Name:   name,
		points: make(map[int]int),
	}
}

func (l *Label) SetValue(p, val int) {
	l.points[p] = val
	if l.index != nil && p >= l.iStart && p < l.iStart+len(l.index) {
		l.index[p-l.iStart] = true
	}
}

func (l *Label) ClearValue(p int) {
	delete(l.points, p)
	if l.index != nil && p >= l.iStart && p < l.iStart+len(l.index) {
		l.index[p-l.iStart] = false
	}
}

func (l *Label) Value(p int) (val int, ok bool) {
	val, ok = l.points[p]
	return
}

func (l *Label) HasPoint(p int) bool {
	if l.index != nil && p >= l.iStart && p < l.iStart+len(l.index) {
		return l.index[p-l.iStart]
	}
	_, ok := l.points[p]
	return ok
}

// CreateIndex builds a dense membership index over [pStart, pEnd).
func (l *Label) CreateIndex(pStart, pEnd int) {
	if pEnd < pStart {
		pEnd = pStart
	}
	l.iStart = pStart
	l.index = make([]bool, pEnd-pStart)
	for p := range l.points {
		if p >= pStart && p < pEnd {
			l.index[p-pStart] = true
		}
	}
}

func (l *Label) DestroyIndex() {
	l.index = nil
	l.iStart = 0
}

func (l *Label) HasIndex() bool { return l.index != nil }

func (l *Label) Size() int { return len(l.points) }

// Points returns the marked points in ascending order.
func (l *Label) Points() (pts []int) {
	pts = make([]int, 0, len(l.points))
	for p := range l.points {
		pts = append(pts, p)
	}
	sort.Ints(pts)
	return
}
