// Package topology provides an interpolated cell complex over simplicial meshes.
//
// Points are numbered in strata: cells first, then vertices, then the intermediate
// dimensions in increasing depth (edges, then faces in 3D). Every point has a cone
// (the points one dimension down on its boundary) and a support (the points one
// dimension up that contain it).
package topology

import (
	"errors"
	"fmt"
	"sort"

	"github.com/florianwechsung/ssc/types"
)

var (
	ErrPointOutOfRange = errors.New("point outside mesh chart")
	ErrLabelNotFound   = errors.New("label not found")
	ErrBadCell         = errors.New("malformed cell")
)

const (
	LabelCore           = "op2_core"
	LabelNonCore        = "op2_non_core"
	LabelExteriorFacets = "exterior_facets"
)

type Plex struct {
	dim        int
	depthRange [][2]int // [depth] -> [start, end)
	cones      [][]int
	supports   [][]int
	cellVerts  [][]int // vertex points of each cell in input order
	facetKeys  map[any]int
	labels     map[string]*Label
}

// NewPlex interpolates a simplicial mesh. cells holds 0-based vertex indices, dim+1 per cell.
func NewPlex(dim int, cells [][]int, numVertices int) (dm *Plex, err error) {
	if dim != 2 && dim != 3 {
		return nil, fmt.Errorf("%w: only 2D triangles and 3D tetrahedra are supported, have dim %d", ErrBadCell, dim)
	}
	var (
		nc        = len(cells)
		vStart    = nc
		edgeIDs   = make(map[types.EdgeKey]int)
		edgeVerts [][2]int
		faceIDs   = make(map[types.FaceKey]int)
		faceVerts [][3]int
		cellFacet = make([][]int, nc) // facet ids local to their stratum
	)
	edgeOf := func(a, b int) int {
		key := types.NewEdgeKey([2]int{a, b})
		id, ok := edgeIDs[key]
		if !ok {
			id = len(edgeVerts)
			edgeIDs[key] = id
			edgeVerts = append(edgeVerts, [2]int{a, b})
		}
		return id
	}
	for k, cv := range cells {
		if len(cv) != dim+1 {
			return nil, fmt.Errorf("%w: cell %d has %d vertices, need %d", ErrBadCell, k, len(cv), dim+1)
		}
		for _, v := range cv {
			if v < 0 || v >= numVertices {
				return nil, fmt.Errorf("%w: cell %d references vertex %d of %d", ErrBadCell, k, v, numVertices)
			}
		}
		switch dim {
		case 2:
			cellFacet[k] = []int{edgeOf(cv[0], cv[1]), edgeOf(cv[1], cv[2]), edgeOf(cv[2], cv[0])}
		case 3:
			cellFacet[k] = make([]int, 4)
			for f, fv := range TetFaces(cv) {
				key := types.NewFaceKey(fv)
				id, ok := faceIDs[key]
				if !ok {
					id = len(faceVerts)
					faceIDs[key] = id
					faceVerts = append(faceVerts, fv)
					edgeOf(fv[0], fv[1])
					edgeOf(fv[1], fv[2])
					edgeOf(fv[2], fv[0])
				}
				cellFacet[k][f] = id
			}
		}
	}
	var (
		ne     = len(edgeVerts)
		nf     = len(faceVerts)
		eStart = vStart + numVertices
		fStart = eStart + ne
		np     = fStart + nf
	)
	dm = &Plex{
		dim:       dim,
		cones:     make([][]int, np),
		supports:  make([][]int, np),
		cellVerts: make([][]int, nc),
		facetKeys: make(map[any]int),
		labels:    make(map[string]*Label),
	}
	dm.depthRange = make([][2]int, dim+1)
	dm.depthRange[0] = [2]int{vStart, eStart}
	dm.depthRange[1] = [2]int{eStart, fStart}
	if dim == 3 {
		dm.depthRange[2] = [2]int{fStart, np}
	}
	dm.depthRange[dim] = [2]int{0, nc}
	for id, ev := range edgeVerts {
		dm.cones[eStart+id] = []int{vStart + ev[0], vStart + ev[1]}
	}
	for id, fv := range faceVerts {
		dm.cones[fStart+id] = []int{
			eStart + edgeIDs[types.NewEdgeKey([2]int{fv[0], fv[1]})],
			eStart + edgeIDs[types.NewEdgeKey([2]int{fv[1], fv[2]})],
			eStart + edgeIDs[types.NewEdgeKey([2]int{fv[2], fv[0]})],
		}
	}
	// facets of a cell live one stratum below the cell
	facetStart := dm.depthRange[dim-1][0]
	for k, cf := range cellFacet {
		dm.cones[k] = make([]int, len(cf))
		for i, f := range cf {
			dm.cones[k][i] = facetStart + f
		}
		dm.cellVerts[k] = make([]int, len(cells[k]))
		for i, v := range cells[k] {
			dm.cellVerts[k][i] = vStart + v
		}
	}
	dm.buildSupports()
	dm.buildFacetKeys()
	return
}

// TetFaces returns the four faces of a tetrahedron, ordered as face i opposite vertex 3-i.
func TetFaces(v []int) [4][3]int {
	return [4][3]int{
		{v[0], v[2], v[1]},
		{v[0], v[1], v[3]},
		{v[1], v[2], v[3]},
		{v[0], v[3], v[2]},
	}
}

func (dm *Plex) buildSupports() {
	for p := range dm.supports {
		dm.supports[p] = nil
	}
	for p, cone := range dm.cones {
		for _, q := range cone {
			dm.supports[q] = append(dm.supports[q], p)
		}
	}
	for _, s := range dm.supports {
		sort.Ints(s)
	}
}

func (dm *Plex) buildFacetKeys() {
	fStart, fEnd := dm.HeightStratum(1)
	for f := fStart; f < fEnd; f++ {
		verts := dm.pointVertices(f)
		for i := range verts {
			verts[i] -= dm.depthRange[0][0]
		}
		dm.facetKeys[types.FacetKey(verts)] = f
	}
}

// pointVertices returns the vertex points in the closure of p.
func (dm *Plex) pointVertices(p int) (verts []int) {
	closure, _ := dm.TransitiveClosure(p, true)
	vStart, vEnd := dm.DepthStratum(0)
	for _, q := range closure {
		if q >= vStart && q < vEnd {
			verts = append(verts, q)
		}
	}
	return
}

func (dm *Plex) Dim() int { return dm.dim }

// Chart is the range of all point ids.
func (dm *Plex) Chart() (pStart, pEnd int) { return 0, len(dm.cones) }

func (dm *Plex) DepthStratum(depth int) (start, end int) {
	if depth < 0 || depth > dm.dim {
		return 0, 0
	}
	return dm.depthRange[depth][0], dm.depthRange[depth][1]
}

func (dm *Plex) HeightStratum(height int) (start, end int) {
	return dm.DepthStratum(dm.dim - height)
}

func (dm *Plex) NumCells() int {
	s, e := dm.HeightStratum(0)
	return e - s
}

func (dm *Plex) NumVertices() int {
	s, e := dm.DepthStratum(0)
	return e - s
}

func (dm *Plex) checkPoint(p int) (err error) {
	if p < 0 || p >= len(dm.cones) {
		err = fmt.Errorf("%w: point %d not in [0, %d)", ErrPointOutOfRange, p, len(dm.cones))
	}
	return
}

// Depth returns the stratum containing p.
func (dm *Plex) Depth(p int) (depth int, err error) {
	for d, r := range dm.depthRange {
		if p >= r[0] && p < r[1] {
			return d, nil
		}
	}
	return -1, fmt.Errorf("%w: point %d is in no stratum", ErrPointOutOfRange, p)
}

func (dm *Plex) Cone(p int) (cone []int, err error) {
	if err = dm.checkPoint(p); err != nil {
		return
	}
	return dm.cones[p], nil
}

func (dm *Plex) Support(p int) (support []int, err error) {
	if err = dm.checkPoint(p); err != nil {
		return
	}
	return dm.supports[p], nil
}

// CellVertices returns the vertex points of cell c in the order the cell was defined.
func (dm *Plex) CellVertices(c int) (verts []int, err error) {
	if c < 0 || c >= len(dm.cellVerts) {
		return nil, fmt.Errorf("%w: %d is not a cell", ErrPointOutOfRange, c)
	}
	return dm.cellVerts[c], nil
}

// TransitiveClosure returns p followed by every point reachable by repeated cone traversal
// (useCone) or support traversal (!useCone), without duplicates, in breadth first order.
func (dm *Plex) TransitiveClosure(p int, useCone bool) (closure []int, err error) {
	if err = dm.checkPoint(p); err != nil {
		return
	}
	var (
		seen = map[int]struct{}{p: {}}
		adj  = dm.supports
	)
	if useCone {
		adj = dm.cones
	}
	closure = append(closure, p)
	for i := 0; i < len(closure); i++ {
		for _, q := range adj[closure[i]] {
			if _, ok := seen[q]; !ok {
				seen[q] = struct{}{}
				closure = append(closure, q)
			}
		}
	}
	return
}

// Join returns a point covering both a and b: the shared point of their supports.
func (dm *Plex) Join(a, b int) (p int, ok bool) {
	if dm.checkPoint(a) != nil || dm.checkPoint(b) != nil {
		return -1, false
	}
	for _, q := range dm.supports[a] {
		for _, r := range dm.supports[b] {
			if q == r {
				return q, true
			}
		}
	}
	return -1, false
}

// FacetFromVertices finds the facet whose vertices are the given 0-based vertex indices.
func (dm *Plex) FacetFromVertices(verts []int) (f int, ok bool) {
	if len(verts) != dm.dim {
		return -1, false
	}
	f, ok = dm.facetKeys[types.FacetKey(verts)]
	return
}

func (dm *Plex) CreateLabel(name string) (l *Label) {
	var ok bool
	if l, ok = dm.labels[name]; !ok {
		l = NewLabel(name)
		dm.labels[name] = l
	}
	return
}

func (dm *Plex) GetLabel(name string) (l *Label, err error) {
	var ok bool
	if l, ok = dm.labels[name]; !ok {
		err = fmt.Errorf("%w: %q", ErrLabelNotFound, name)
	}
	return
}

func (dm *Plex) HasLabel(name string) bool {
	_, ok := dm.labels[name]
	return ok
}

// MarkExteriorFacets labels every facet with a single supporting cell.
func (dm *Plex) MarkExteriorFacets(name string) (l *Label) {
	l = dm.CreateLabel(name)
	fStart, fEnd := dm.HeightStratum(1)
	for f := fStart; f < fEnd; f++ {
		if len(dm.supports[f]) == 1 {
			l.SetValue(f, 1)
		}
	}
	return
}

// SubPlex extracts the closure of the given cells as a new Plex. Points keep the stratum
// ordering and their relative order; pointMap maps each new point to its point in dm.
func (dm *Plex) SubPlex(cells []int) (sub *Plex, pointMap []int, err error) {
	var (
		cStart, cEnd = dm.HeightStratum(0)
		keep         = make(map[int]struct{})
		byDepth      = make([][]int, dm.dim+1)
	)
	for _, c := range cells {
		if c < cStart || c >= cEnd {
			return nil, nil, fmt.Errorf("%w: %d is not a cell", ErrPointOutOfRange, c)
		}
		closure, _ := dm.TransitiveClosure(c, true)
		for _, q := range closure {
			keep[q] = struct{}{}
		}
	}
	for q := range keep {
		d, _ := dm.Depth(q)
		byDepth[d] = append(byDepth[d], q)
	}
	for _, pts := range byDepth {
		sort.Ints(pts)
	}
	var (
		order   = append([]int{dm.dim}, makeRange(0, dm.dim)...)
		reverse = make(map[int]int, len(keep))
	)
	sub = &Plex{
		dim:        dm.dim,
		depthRange: make([][2]int, dm.dim+1),
		facetKeys:  make(map[any]int),
		labels:     make(map[string]*Label),
	}
	for _, d := range order {
		start := len(pointMap)
		for _, q := range byDepth[d] {
			reverse[q] = len(pointMap)
			pointMap = append(pointMap, q)
		}
		sub.depthRange[d] = [2]int{start, len(pointMap)}
	}
	sub.cones = make([][]int, len(pointMap))
	sub.supports = make([][]int, len(pointMap))
	for p, q := range pointMap {
		for _, r := range dm.cones[q] {
			sub.cones[p] = append(sub.cones[p], reverse[r])
		}
	}
	nc := len(byDepth[dm.dim])
	sub.cellVerts = make([][]int, nc)
	for c := 0; c < nc; c++ {
		for _, v := range dm.cellVerts[pointMap[c]] {
			sub.cellVerts[c] = append(sub.cellVerts[c], reverse[v])
		}
	}
	sub.buildSupports()
	sub.buildFacetKeys()
	return
}

func makeRange(start, end int) (r []int) {
	for i := start; i < end; i++ {
		r = append(r, i)
	}
	return
}

func (dm *Plex) String() string {
	var s string
	s = fmt.Sprintf("Plex of dimension %d:", dm.dim)
	names := []string{"vertices", "edges", "faces", "cells"}
	for d := 0; d <= dm.dim; d++ {
		name := names[d]
		if d == dm.dim {
			name = "cells"
		}
		st, en := dm.DepthStratum(d)
		s += fmt.Sprintf("\n  %d-%s: %d [%d, %d)", d, name, en-st, st, en)
	}
	var labels []string
	for name := range dm.labels {
		labels = append(labels, name)
	}
	sort.Strings(labels)
	for _, name := range labels {
		s += fmt.Sprintf("\n  Label %q: %d points", name, dm.labels[name].Size())
	}
	return s
}
