package patch

import (
	"fmt"
	"sort"

	"github.com/florianwechsung/ssc/section"
	"github.com/florianwechsung/ssc/topology"
	"github.com/florianwechsung/ssc/utils"
)

const bcGrowth = 2.

// CreateCellPatchBCs selects the local dofs of each patch clamped to zero in the patch
// solve: those on the global boundary condition list and those in the closure of the
// patch boundary facets. dofSection gives the global dofs carried by each mesh point.
// The per-patch lists are sorted.
func CreateCellPatchBCs(dm *topology.Plex, bcNodes []int, facetCounts *section.Section, facets []int,
	gtolCounts *section.Section, gtol []int, dofSection *section.Section) (
	bcCounts *section.Section, bcs []int, err error) {
	var (
		vStart, vEnd = facetCounts.Chart()
		globalBcs    = make(map[int]struct{}, len(bcNodes))
		patchDofs    = make(map[int]int)
		localBcs     = make(map[int]struct{})
		guess, _     = facetCounts.StorageSize()
		buf          = utils.NewDynBufferGrowth[int](guess, bcGrowth)
		keys         []int
	)
	for _, n := range bcNodes {
		globalBcs[n] = struct{}{}
	}
	bcCounts = section.New(vStart, vEnd)
	for v := vStart; v < vEnd; v++ {
		clear(patchDofs)
		clear(localBcs)
		off, n, _ := gtolCounts.Range(v)
		for i := off; i < off+n; i++ {
			globalDof := gtol[i]
			patchDofs[globalDof] = i - off
			if _, ok := globalBcs[globalDof]; ok {
				localBcs[i-off] = struct{}{}
			}
		}
		foff, fn, _ := facetCounts.Range(v)
		for _, f := range facets[foff : foff+fn] {
			var closure []int
			if closure, err = dm.TransitiveClosure(f, true); err != nil {
				return nil, nil, fmt.Errorf("%w: closure of facet %d: %v", ErrTopology, f, err)
			}
			for _, p := range closure {
				var loff, ldof int
				if loff, ldof, err = dofSection.Range(p); err != nil {
					return nil, nil, fmt.Errorf("%w: point %d: %v", ErrTopology, p, err)
				}
				for j := loff; j < loff+ldof; j++ {
					localDof, ok := patchDofs[j]
					if !ok {
						return nil, nil, fmt.Errorf("%w: dof %d of facet %d not found in patch of vertex %d",
							ErrTopology, j, f, v)
					}
					localBcs[localDof] = struct{}{}
				}
			}
		}
		_ = bcCounts.SetDof(v, len(localBcs))
		keys = keys[:0]
		for k := range localBcs {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		buf.AddSlice(keys)
	}
	bcCounts.SetUp()
	bcs = buf.Trim()
	return
}
