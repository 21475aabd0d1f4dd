package types

import (
	"fmt"
	"math"
	"sort"
)

// EdgeKey packs the two vertices of an edge, lower index in the low 32 bits, so both
// orientations of an edge give the same key.
type EdgeKey uint64

func NewEdgeKey(verts [2]int) EdgeKey {
	lo, hi := min(verts[0], verts[1]), max(verts[0], verts[1])
	if lo < 0 || hi > math.MaxUint32 {
		panic(fmt.Errorf("edge %v does not fit two 32 bit vertex indices", verts))
	}
	return EdgeKey(uint64(hi)<<32 | uint64(lo))
}

// GetVertices returns the vertices ascending, or descending with rev.
func (ek EdgeKey) GetVertices(rev bool) (verts [2]int) {
	verts = [2]int{int(ek & math.MaxUint32), int(ek >> 32)}
	if rev {
		verts[0], verts[1] = verts[1], verts[0]
	}
	return
}

/*
FaceKey identifies a triangular face by its three vertex indices, sorted ascending, so that
the same face seen from either neighboring tetrahedron produces the same key
*/
type FaceKey [3]int

func NewFaceKey(verts [3]int) (fk FaceKey) {
	s := verts[:]
	for _, v := range s {
		if v < 0 {
			panic(fmt.Errorf("negative vertex index in face %v", verts))
		}
	}
	fk = FaceKey(verts)
	sort.Ints(fk[:])
	return
}

func (fk FaceKey) GetVertices() [3]int { return [3]int(fk) }

// FacetKey builds the dedup key of a facet from its vertices: two vertices for a 2D
// facet (an edge), three for a 3D facet (a triangle).
func FacetKey(verts []int) (key any) {
	switch len(verts) {
	case 2:
		key = NewEdgeKey([2]int{verts[0], verts[1]})
	case 3:
		key = NewFaceKey([3]int{verts[0], verts[1], verts[2]})
	default:
		panic(fmt.Errorf("facets with %d vertices are not supported", len(verts)))
	}
	return
}
