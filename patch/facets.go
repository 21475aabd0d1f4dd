package patch

import (
	"fmt"

	"github.com/florianwechsung/ssc/section"
	"github.com/florianwechsung/ssc/topology"
	"github.com/florianwechsung/ssc/utils"
)

const facetGrowth = 1.2

// CreateCellPatchFacets finds the facets on the boundary of each cell patch. Facets
// exterior to the domain are left out; the global boundary conditions deal with those.
// A facet is on the patch boundary when it has a single supporting cell on this rank or
// when one of its supporting cells is outside the patch.
func CreateCellPatchFacets(dm *topology.Plex, cellCounts *section.Section, cells []int) (
	facetCounts *section.Section, facets []int, err error) {
	var (
		exterior     *topology.Label
		vStart, vEnd = cellCounts.Chart()
		fStart, fEnd = dm.HeightStratum(1)
		inPatch      = make(map[int]struct{})
		// one boundary facet per cell is a good guess for simplices
		buf = utils.NewDynBufferGrowth[int](len(cells), facetGrowth)
	)
	if exterior, err = dm.GetLabel(topology.LabelExteriorFacets); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTopology, err)
	}
	exterior.CreateIndex(fStart, fEnd)
	defer exterior.DestroyIndex()

	facetCounts = section.New(vStart, vEnd)
	for v := vStart; v < vEnd; v++ {
		off, n, _ := cellCounts.Range(v)
		if n <= 0 {
			continue
		}
		clear(inPatch)
		for _, c := range cells[off : off+n] {
			inPatch[c] = struct{}{}
		}
		for _, c := range cells[off : off+n] {
			var cone []int
			if cone, err = dm.Cone(c); err != nil {
				return nil, nil, fmt.Errorf("%w: cell %d: %v", ErrTopology, c, err)
			}
			for _, f := range cone {
				if f < fStart || f >= fEnd {
					return nil, nil, fmt.Errorf("%w: cone point %d of cell %d is not a facet", ErrTopology, f, c)
				}
				if exterior.HasPoint(f) {
					continue
				}
				var (
					support  []int
					boundary bool
				)
				if support, err = dm.Support(f); err != nil {
					return nil, nil, fmt.Errorf("%w: facet %d: %v", ErrTopology, f, err)
				}
				if len(support) == 1 {
					// on a process boundary, so also on the patch boundary
					boundary = true
				} else {
					for _, sc := range support {
						if _, ok := inPatch[sc]; !ok {
							boundary = true
							break
						}
					}
				}
				if boundary {
					_ = facetCounts.AddDof(v, 1)
					buf.Add(f)
				}
			}
		}
	}
	facetCounts.SetUp()
	facets = buf.Trim()
	return
}
