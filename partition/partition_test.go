package partition

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianwechsung/ssc/sf"
	"github.com/florianwechsung/ssc/topology"
)

func TestPartitionCells(t *testing.T) {
	m := topology.NewStructuredTriMesh(4, 4)
	{ // Test block and round robin balance within one cell
		for _, st := range []Strategy{StrategyBlock, StrategyRoundRobin} {
			cfg := DefaultConfig(3)
			cfg.Strategy = st
			eToP, err := PartitionCells(m, cfg)
			require.NoError(t, err)
			load := make([]int, 3)
			for _, p := range eToP {
				load[p]++
			}
			for _, l := range load {
				assert.InDelta(t, 32./3., float64(l), 1., st)
			}
		}
	}
	{ // Test one partition puts everything on rank 0
		eToP, err := PartitionCells(m, DefaultConfig(1))
		require.NoError(t, err)
		for _, p := range eToP {
			assert.Equal(t, 0, p)
		}
	}
	{ // Test bad input
		_, err := PartitionCells(m, DefaultConfig(0))
		assert.Error(t, err)
		_, err = NewStrategy("scotch")
		assert.Error(t, err)
		st, err := NewStrategy("")
		require.NoError(t, err)
		assert.Equal(t, StrategyBlock, st)
	}
}

func TestDualGraph(t *testing.T) {
	dm, err := topology.NewStructuredTriMesh(1, 1).Plex()
	require.NoError(t, err)
	xadj, adjncy := dualGraph(dm)
	assert.Equal(t, []int32{0, 1, 2}, xadj)
	assert.Equal(t, []int32{1, 0}, adjncy)
}

func TestSerial(t *testing.T) {
	m := topology.NewStructuredTriMesh(2, 2)
	lm, err := Serial(m)
	require.NoError(t, err)
	assert.Equal(t, m.NumCells(), lm.Plex.NumCells())
	assert.Len(t, lm.OwnedCells(), m.NumCells())
	core, err := lm.Plex.GetLabel(topology.LabelCore)
	require.NoError(t, err)
	vs, ve := lm.Plex.DepthStratum(0)
	for v := vs; v < ve; v++ {
		assert.True(t, core.HasPoint(v))
	}
	nonCore, err := lm.Plex.GetLabel(topology.LabelNonCore)
	require.NoError(t, err)
	assert.Equal(t, 0, nonCore.Size())
	ext, err := lm.Plex.GetLabel(topology.LabelExteriorFacets)
	require.NoError(t, err)
	assert.Equal(t, 8, ext.Size())
	assert.Equal(t, m.Coords[4], lm.Coords[4])
}

func TestDistribute(t *testing.T) {
	var (
		m      = topology.NewStructuredTriMesh(4, 2)
		nparts = 2
	)
	eToP, err := PartitionCells(m, DefaultConfig(nparts))
	require.NoError(t, err)
	lms, err := Distribute(m, eToP, nparts)
	require.NoError(t, err)
	require.Len(t, lms, nparts)
	var (
		ownedVerts int
		ownedCells int
	)
	for r, lm := range lms {
		assert.Equal(t, r, lm.Rank)
		ownedCells += len(lm.OwnedCells())
		core, _ := lm.Plex.GetLabel(topology.LabelCore)
		nonCore, _ := lm.Plex.GetLabel(topology.LabelNonCore)
		vs, ve := lm.Plex.DepthStratum(0)
		for v := vs; v < ve; v++ {
			owned := lm.IsOwned(v)
			assert.Equal(t, owned, core.HasPoint(v) || nonCore.HasPoint(v))
			assert.False(t, core.HasPoint(v) && nonCore.HasPoint(v))
			if !owned {
				continue
			}
			ownedVerts++
			// the full star of an owned vertex is present locally
			gStar := 0
			dm, err := m.Plex()
			require.NoError(t, err)
			star, err := dm.TransitiveClosure(lm.GlobalPoint[v], false)
			require.NoError(t, err)
			for _, q := range star {
				if q < m.NumCells() {
					gStar++
				}
			}
			lStar, err := lm.Plex.TransitiveClosure(v, false)
			require.NoError(t, err)
			n := 0
			for _, q := range lStar {
				if q < lm.Plex.NumCells() {
					n++
				}
			}
			assert.Equal(t, gStar, n)
		}
		{ // Test remotes point at the same global point on the owner
			for p, rem := range lm.Remote {
				assert.Equal(t, lm.GlobalPoint[p], lms[rem.Rank].GlobalPoint[rem.Index])
			}
		}
	}
	assert.Equal(t, m.NumVertices(), ownedVerts)
	assert.Equal(t, m.NumCells(), ownedCells)
}

func TestPointSF(t *testing.T) {
	m := topology.NewStructuredTriMesh(4, 2)
	eToP, err := PartitionCells(m, DefaultConfig(2))
	require.NoError(t, err)
	lms, err := Distribute(m, eToP, 2)
	require.NoError(t, err)
	err = sf.Run(2, func(c *sf.Comm) error {
		lm := lms[c.Rank()]
		psf, err := lm.PointSF(c)
		if err != nil {
			return err
		}
		// every point learns the global id its owner holds
		var (
			roots  = make([]int, len(lm.GlobalPoint))
			leaves = make([]int, len(lm.GlobalPoint))
		)
		for p, g := range lm.GlobalPoint {
			roots[p] = g
			if lm.IsOwned(p) {
				leaves[p] = g
			} else {
				leaves[p] = -1
			}
		}
		if err = sf.Bcast(psf, roots, leaves, 1, sf.OpReplace); err != nil {
			return err
		}
		if !assert.Equal(t, lm.GlobalPoint, leaves) {
			return fmt.Errorf("rank %d point sf mismatch", c.Rank())
		}
		return nil
	})
	require.NoError(t, err)
}

func TestDistributeErrors(t *testing.T) {
	m := topology.NewStructuredTriMesh(1, 1)
	_, err := Distribute(m, []int{0}, 1)
	assert.Error(t, err)
	_, err = Distribute(m, []int{0, 2}, 2)
	assert.Error(t, err)
}
