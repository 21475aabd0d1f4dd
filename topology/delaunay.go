//go:build triangle

package topology

import (
	"fmt"

	"github.com/pradeep-pyro/triangle"
)

// NewDelaunayTriMesh triangulates the unit square from n+1 points per side and a
// jittered interior lattice, giving an unstructured mesh with the same markers as
// NewStructuredTriMesh.
func NewDelaunayTriMesh(n int) (m *Mesh, err error) {
	var pts [][2]float64
	if pts, err = delaunayPoints(n); err != nil {
		return
	}
	tris := triangle.Delaunay(pts)
	if len(tris) == 0 {
		return nil, fmt.Errorf("%w: triangulation of %d points produced no cells", ErrBadCell, len(pts))
	}
	m = &Mesh{
		Dim:     2,
		Coords:  make([][]float64, len(pts)),
		EToV:    make([][]int, len(tris)),
		Markers: make(map[string][][]int),
	}
	for i, p := range pts {
		m.Coords[i] = []float64{p[0], p[1]}
	}
	for k, tri := range tris {
		m.EToV[k] = []int{int(tri[0]), int(tri[1]), int(tri[2])}
	}
	m.markSquareSides()
	return
}
