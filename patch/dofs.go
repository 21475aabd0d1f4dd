package patch

import (
	"fmt"

	"github.com/florianwechsung/ssc/section"
)

// DofMap is the patch-local numbering built by CreateCellPatchDiscretisationInfo.
type DofMap struct {
	// Cells holds the compact number of every patch cell, aligned with the cell patches
	Cells []int
	// Dofs holds the patch-local dof of every (cell, slot), nodesPerCell per patch cell
	Dofs []int
	// GtolCounts counts the distinct dofs of each patch over the vertex stratum
	GtolCounts *section.Section
	// Gtol maps the local dofs of each patch, at the patch offset, to global dofs
	Gtol []int
}

// CreateCellPatchDiscretisationInfo numbers the dofs of each patch. A cell is valid when
// cellNumbering gives it a positive count; its offset is the compact cell number that
// indexes cellNodeMap. Global dofs shared by cells of one patch get one local dof, in
// order of first appearance.
func CreateCellPatchDiscretisationInfo(cellCounts *section.Section, cells []int,
	cellNumbering *section.Section, nodesPerCell int, cellNodeMap []int) (dmap *DofMap, err error) {
	var (
		vStart, vEnd = cellCounts.Chart()
		numCells, _  = cellCounts.StorageSize()
		numDofs      = numCells * nodesPerCell
		globalIndex  int
		ht           = make(map[int]int)
	)
	if nodesPerCell < 1 {
		return nil, fmt.Errorf("%w: %d nodes per cell", ErrConfiguration, nodesPerCell)
	}
	dmap = &DofMap{
		Cells:      make([]int, numCells),
		Dofs:       make([]int, numDofs),
		GtolCounts: section.New(vStart, vEnd),
	}
	for v := vStart; v < vEnd; v++ {
		off, n, _ := cellCounts.Range(v)
		if n <= 0 {
			continue
		}
		clear(ht)
		localIndex := 0
		for i := off; i < off+n; i++ {
			var (
				c    = cells[i]
				cell int
			)
			if cell, err = compactCell(cellNumbering, c); err != nil {
				return nil, err
			}
			if (cell+1)*nodesPerCell > len(cellNodeMap) {
				return nil, fmt.Errorf("%w: compact cell %d outside cell node map of %d cells",
					ErrTopology, cell, len(cellNodeMap)/nodesPerCell)
			}
			dmap.Cells[i] = cell
			for _, globalDof := range cellNodeMap[cell*nodesPerCell : (cell+1)*nodesPerCell] {
				localDof, ok := ht[globalDof]
				if !ok {
					localDof = localIndex
					ht[globalDof] = localDof
					localIndex++
				}
				if globalIndex >= numDofs {
					return nil, fmt.Errorf("%w: found more than %d patch dofs", ErrCapacity, numDofs)
				}
				dmap.Dofs[globalIndex] = localDof
				globalIndex++
			}
		}
		_ = dmap.GtolCounts.SetDof(v, len(ht))
	}
	dmap.GtolCounts.SetUp()
	numGlobalDofs, _ := dmap.GtolCounts.StorageSize()
	dmap.Gtol = make([]int, numGlobalDofs)

	// Rebuild each patch map from the stored local dofs and invert it
	for v := vStart; v < vEnd; v++ {
		off, n, _ := cellCounts.Range(v)
		if n <= 0 {
			continue
		}
		clear(ht)
		for i := off; i < off+n; i++ {
			cell := dmap.Cells[i]
			for j := 0; j < nodesPerCell; j++ {
				ht[cellNodeMap[cell*nodesPerCell+j]] = dmap.Dofs[i*nodesPerCell+j]
			}
		}
		goff, gn, _ := dmap.GtolCounts.Range(v)
		for globalDof, localDof := range ht {
			if localDof < 0 || localDof >= gn {
				return nil, fmt.Errorf("%w: local dof %d of vertex %d outside [0, %d)", ErrCapacity, localDof, v, gn)
			}
			dmap.Gtol[goff+localDof] = globalDof
		}
	}
	return
}

func compactCell(cellNumbering *section.Section, c int) (cell int, err error) {
	var n int
	if cell, n, err = cellNumbering.Range(c); err != nil {
		return -1, fmt.Errorf("%w: cell %d: %v", ErrTopology, c, err)
	}
	if n <= 0 {
		return -1, fmt.Errorf("%w: cell %d doesn't appear in the cell numbering", ErrTopology, c)
	}
	return
}
