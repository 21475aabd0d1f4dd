package topology

import (
	"fmt"
	"math"
	"sort"
)

// Mesh is an uninterpolated simplicial mesh as read from a file or generated.
// Markers holds named boundary facets as lists of 0-based vertex indices.
type Mesh struct {
	Dim     int
	EToV    [][]int
	Coords  [][]float64 // [vertex][dim]
	Markers map[string][][]int
}

func (m *Mesh) NumCells() int    { return len(m.EToV) }
func (m *Mesh) NumVertices() int { return len(m.Coords) }

// MarkerNames returns the boundary marker names sorted.
func (m *Mesh) MarkerNames() (names []string) {
	for name := range m.Markers {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

// Plex interpolates the mesh and adds one label per boundary marker, holding the marked facets.
func (m *Mesh) Plex() (dm *Plex, err error) {
	if dm, err = NewPlex(m.Dim, m.EToV, m.NumVertices()); err != nil {
		return
	}
	for _, name := range m.MarkerNames() {
		l := dm.CreateLabel(name)
		for _, fv := range m.Markers[name] {
			f, ok := dm.FacetFromVertices(fv)
			if !ok {
				return nil, fmt.Errorf("%w: marker %q facet %v is not a mesh facet", ErrBadCell, name, fv)
			}
			l.SetValue(f, 1)
		}
	}
	return
}

// NewStructuredTriMesh divides the unit square into nx by ny squares, each cut into two
// triangles along its rising diagonal. Markers are left, right, bottom and top.
func NewStructuredTriMesh(nx, ny int) (m *Mesh) {
	if nx < 1 || ny < 1 {
		panic(fmt.Errorf("structured mesh needs at least one division, have %d x %d", nx, ny))
	}
	vid := func(i, j int) int { return j*(nx+1) + i }
	m = &Mesh{
		Dim:     2,
		Markers: make(map[string][][]int),
	}
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			m.Coords = append(m.Coords, []float64{float64(i) / float64(nx), float64(j) / float64(ny)})
		}
	}
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			v00, v10, v11, v01 := vid(i, j), vid(i+1, j), vid(i+1, j+1), vid(i, j+1)
			m.EToV = append(m.EToV, []int{v00, v10, v11}, []int{v00, v11, v01})
		}
	}
	for j := 0; j < ny; j++ {
		m.Markers["left"] = append(m.Markers["left"], []int{vid(0, j), vid(0, j+1)})
		m.Markers["right"] = append(m.Markers["right"], []int{vid(nx, j), vid(nx, j+1)})
	}
	for i := 0; i < nx; i++ {
		m.Markers["bottom"] = append(m.Markers["bottom"], []int{vid(i, 0), vid(i+1, 0)})
		m.Markers["top"] = append(m.Markers["top"], []int{vid(i, ny), vid(i+1, ny)})
	}
	return
}

// NewStructuredTetMesh divides the unit cube into n^3 cubes, each cut into six tetrahedra
// along the main diagonal so that neighboring cubes share faces conformingly.
// Markers are the six cube faces: x0, x1, y0, y1, z0, z1.
func NewStructuredTetMesh(n int) (m *Mesh) {
	if n < 1 {
		panic(fmt.Errorf("structured mesh needs at least one division, have %d", n))
	}
	var (
		np1 = n + 1
		vid = func(i, j, k int) int { return (k*np1+j)*np1 + i }
		// each permutation of the axes gives a monotone path from corner 000 to 111
		perms = [6][3]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}
	)
	m = &Mesh{
		Dim:     3,
		Markers: make(map[string][][]int),
	}
	for k := 0; k <= n; k++ {
		for j := 0; j <= n; j++ {
			for i := 0; i <= n; i++ {
				m.Coords = append(m.Coords, []float64{
					float64(i) / float64(n), float64(j) / float64(n), float64(k) / float64(n)})
			}
		}
	}
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			for i := 0; i < n; i++ {
				for _, perm := range perms {
					var (
						ijk = [3]int{i, j, k}
						tet = []int{vid(i, j, k)}
					)
					for _, axis := range perm {
						ijk[axis]++
						tet = append(tet, vid(ijk[0], ijk[1], ijk[2]))
					}
					m.EToV = append(m.EToV, tet)
				}
			}
		}
	}
	// boundary faces follow from the tets: a face lies on x=0 when all its vertices do
	var (
		onSide = func(v, axis, val int) bool {
			ijk := [3]int{v % np1, (v / np1) % np1, v / (np1 * np1)}
			return ijk[axis] == val
		}
		names = [3][2]string{{"x0", "x1"}, {"y0", "y1"}, {"z0", "z1"}}
	)
	for _, tet := range m.EToV {
		for _, fv := range TetFaces(tet) {
			for axis := 0; axis < 3; axis++ {
				for side, val := range [2]int{0, n} {
					if onSide(fv[0], axis, val) && onSide(fv[1], axis, val) && onSide(fv[2], axis, val) {
						name := names[axis][side]
						m.Markers[name] = append(m.Markers[name], []int{fv[0], fv[1], fv[2]})
					}
				}
			}
		}
	}
	return
}

// delaunayPoints places n+1 points on each side of the unit square and an (n-1)^2
// interior lattice, each point moved by up to a quarter cell along a golden ratio sequence.
func delaunayPoints(n int) (pts [][2]float64, err error) {
	if n < 1 {
		return nil, fmt.Errorf("Delaunay mesh needs at least one division, have %d", n)
	}
	h := 1 / float64(n)
	for i := 0; i < n; i++ {
		t := float64(i) * h
		pts = append(pts, [2]float64{t, 0}, [2]float64{1, t}, [2]float64{1 - t, 1}, [2]float64{0, 1 - t})
	}
	const phi = 0.6180339887498949
	for j := 1; j < n; j++ {
		for i := 1; i < n; i++ {
			k := float64(len(pts))
			dx, dy := math.Mod(k*phi, 1)-0.5, math.Mod(k*phi*phi, 1)-0.5
			pts = append(pts, [2]float64{(float64(i) + dx/2) * h, (float64(j) + dy/2) * h})
		}
	}
	return
}

// markSquareSides marks the cell edges lying on a side of the unit square as
// left, right, bottom and top.
func (m *Mesh) markSquareSides() {
	const tol = 1.e-12
	var (
		on    = func(v, axis int, val float64) bool { return math.Abs(m.Coords[v][axis]-val) < tol }
		sides = []struct {
			name string
			axis int
			val  float64
		}{{"left", 0, 0}, {"right", 0, 1}, {"bottom", 1, 0}, {"top", 1, 1}}
	)
	for _, tri := range m.EToV {
		for e := 0; e < 3; e++ {
			a, b := tri[e], tri[(e+1)%3]
			for _, s := range sides {
				if on(a, s.axis, s.val) && on(b, s.axis, s.val) {
					m.Markers[s.name] = append(m.Markers[s.name], []int{a, b})
				}
			}
		}
	}
}
