// Package patch builds vertex patches on a Plex and applies the additive Schwarz
// preconditioner made of one local solve per patch.
//
// All index structures are sections over the vertex stratum: the counts of a vertex
// without a patch are zero. Global dof numbers are this rank's local node numbers, the
// leaf space of the default SF.
package patch

import (
	"fmt"

	"github.com/florianwechsung/ssc/section"
	"github.com/florianwechsung/ssc/topology"
)

// starCells returns the cells in the star of v.
func starCells(dm *topology.Plex, v int, buf []int) (cells []int, err error) {
	var (
		star         []int
		cStart, cEnd = dm.HeightStratum(0)
		pStart, pEnd = dm.Chart()
	)
	if star, err = dm.TransitiveClosure(v, false); err != nil {
		return nil, fmt.Errorf("%w: star of vertex %d: %v", ErrTopology, v, err)
	}
	cells = buf[:0]
	for _, p := range star {
		if p < pStart || p >= pEnd {
			return nil, fmt.Errorf("%w: point %d in star of %d outside chart [%d, %d)",
				ErrTopology, p, v, pStart, pEnd)
		}
		if p >= cStart && p < cEnd {
			cells = append(cells, p)
		}
	}
	return
}

// CreateCellPatches collects the cells around every owned vertex. A vertex is owned when
// it carries the core or non-core label. cellCounts is a section over the vertex stratum,
// cells the concatenated cell points.
func CreateCellPatches(dm *topology.Plex) (cellCounts *section.Section, cells []int, err error) {
	var (
		core, nonCore *topology.Label
		pStart, pEnd  = dm.Chart()
		vStart, vEnd  = dm.DepthStratum(0)
		buf           []int
	)
	if core, err = dm.GetLabel(topology.LabelCore); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTopology, err)
	}
	if nonCore, err = dm.GetLabel(topology.LabelNonCore); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrTopology, err)
	}
	core.CreateIndex(pStart, pEnd)
	nonCore.CreateIndex(pStart, pEnd)
	defer func() {
		core.DestroyIndex()
		nonCore.DestroyIndex()
	}()

	cellCounts = section.New(vStart, vEnd)
	for v := vStart; v < vEnd; v++ {
		if !(core.HasPoint(v) || nonCore.HasPoint(v)) {
			continue
		}
		if buf, err = starCells(dm, v, buf); err != nil {
			return nil, nil, err
		}
		if err = cellCounts.SetDof(v, len(buf)); err != nil {
			return nil, nil, err
		}
	}
	cellCounts.SetUp()
	numCells, _ := cellCounts.StorageSize()
	cells = make([]int, numCells)

	// Second pass fills the runs sized by the first
	for v := vStart; v < vEnd; v++ {
		off, n, _ := cellCounts.Range(v)
		if n <= 0 {
			continue
		}
		if buf, err = starCells(dm, v, buf); err != nil {
			return nil, nil, err
		}
		if len(buf) != n {
			return nil, nil, fmt.Errorf("%w: vertex %d has %d cells, counted %d", ErrCapacity, v, len(buf), n)
		}
		copy(cells[off:off+n], buf)
	}
	return
}
