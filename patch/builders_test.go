package patch

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianwechsung/ssc/fem"
	"github.com/florianwechsung/ssc/partition"
	"github.com/florianwechsung/ssc/section"
	"github.com/florianwechsung/ssc/sf"
	"github.com/florianwechsung/ssc/topology"
)

func identitySF(n int) *sf.SF {
	s := sf.New(sf.Self())
	remotes := make([]sf.Node, n)
	for i := range remotes {
		remotes[i] = sf.Node{Rank: 0, Index: i}
	}
	if err := s.SetGraph(n, nil, remotes); err != nil {
		panic(err)
	}
	return s
}

func cellNumbering(dm *topology.Plex) *section.Section {
	cs, ce := dm.HeightStratum(0)
	s := section.New(cs, ce)
	for c := cs; c < ce; c++ {
		_ = s.SetDof(c, 1)
	}
	s.SetUp()
	return s
}

// dofsOn places one dof on every point of the given depths.
func dofsOn(dm *topology.Plex, depths ...int) *section.Section {
	pStart, pEnd := dm.Chart()
	s := section.New(pStart, pEnd)
	for _, d := range depths {
		ds, de := dm.DepthStratum(d)
		for p := ds; p < de; p++ {
			_ = s.SetDof(p, 1)
		}
	}
	s.SetUp()
	return s
}

// fanPlex is three triangles around vertex 0 plus an isolated vertex 4. Vertices 0 and 4
// are owned and no facet is marked exterior.
func fanPlex(t *testing.T) *topology.Plex {
	dm, err := topology.NewPlex(2, [][]int{{0, 1, 2}, {0, 2, 3}, {0, 3, 1}}, 5)
	require.NoError(t, err)
	vs, _ := dm.DepthStratum(0)
	core := dm.CreateLabel(topology.LabelCore)
	core.SetValue(vs+0, 1)
	core.SetValue(vs+4, 1)
	dm.CreateLabel(topology.LabelNonCore)
	dm.CreateLabel(topology.LabelExteriorFacets)
	return dm
}

func checkSection(t *testing.T, s *section.Section) {
	pStart, pEnd := s.Chart()
	sum := 0
	for p := pStart; p < pEnd; p++ {
		off, n, err := s.Range(p)
		require.NoError(t, err)
		assert.Equal(t, sum, off)
		sum += n
	}
	storage, err := s.StorageSize()
	require.NoError(t, err)
	assert.Equal(t, sum, storage)
}

func TestSingleTrianglePatch(t *testing.T) {
	var (
		dm          = fanPlex(t)
		vs, ve      = dm.DepthStratum(0)
		center      = vs
		cellNodeMap = []int{0, 1, 1, 2, 2, 3} // two dofs per cell, adjacent cells share one
	)
	cellCounts, cells, err := CreateCellPatches(dm)
	require.NoError(t, err)
	checkSection(t, cellCounts)
	{ // Test only the owned vertex with cells gets a patch
		for v := vs; v < ve; v++ {
			n, err := cellCounts.Dof(v)
			require.NoError(t, err)
			if v == center {
				assert.Equal(t, 3, n)
			} else {
				assert.Zero(t, n, "vertex %d", v)
			}
		}
		assert.ElementsMatch(t, []int{0, 1, 2}, cells)
	}
	facetCounts, facets, err := CreateCellPatchFacets(dm, cellCounts, cells)
	require.NoError(t, err)
	checkSection(t, facetCounts)
	{ // Test the boundary facets are the three edges opposite the center
		var outer []int
		for _, e := range [][]int{{1, 2}, {2, 3}, {3, 1}} {
			f, ok := dm.FacetFromVertices(e)
			require.True(t, ok)
			outer = append(outer, f)
		}
		n, _ := facetCounts.Dof(center)
		assert.Equal(t, 3, n)
		assert.ElementsMatch(t, outer, facets)
	}
	dmap, err := CreateCellPatchDiscretisationInfo(cellCounts, cells, cellNumbering(dm), 2, cellNodeMap)
	require.NoError(t, err)
	checkSection(t, dmap.GtolCounts)
	{ // Test six (cell, slot) entries collapse to four local dofs
		n, _ := dmap.GtolCounts.Dof(center)
		assert.Equal(t, 4, n)
		assert.ElementsMatch(t, []int{0, 1, 2, 3}, dmap.Gtol)
		assert.Len(t, dmap.Dofs, 6)
		for i, c := range dmap.Cells {
			for j := 0; j < 2; j++ {
				assert.Equal(t, cellNodeMap[2*c+j], dmap.Gtol[dmap.Dofs[2*i+j]])
			}
		}
	}
	{ // Test the global boundary list alone selects the patch bcs when no point carries dofs
		noDofs := dofsOn(dm)
		bcCounts, bcs, err := CreateCellPatchBCs(dm, []int{3}, facetCounts, facets,
			dmap.GtolCounts, dmap.Gtol, noDofs)
		require.NoError(t, err)
		checkSection(t, bcCounts)
		require.Len(t, bcs, 1)
		assert.Equal(t, 3, dmap.Gtol[bcs[0]])
	}
	{ // Test a facet dof missing from the patch dofs is a topology error
		edgeDofs := dofsOn(dm, 1)
		_, _, err := CreateCellPatchBCs(dm, nil, facetCounts, facets, dmap.GtolCounts, dmap.Gtol, edgeDofs)
		assert.True(t, errors.Is(err, ErrTopology))
	}
}

func TestCreateCellPatchesStructured(t *testing.T) {
	m := topology.NewStructuredTriMesh(2, 2)
	lm, err := partition.Serial(m)
	require.NoError(t, err)
	dm := lm.Plex
	cellCounts, cells, err := CreateCellPatches(dm)
	require.NoError(t, err)
	checkSection(t, cellCounts)
	vs, ve := dm.DepthStratum(0)
	total, maxCells := 0, 0
	for v := vs; v < ve; v++ {
		off, n, _ := cellCounts.Range(v)
		assert.Positive(t, n)
		total += n
		maxCells = max(maxCells, n)
		for _, c := range cells[off : off+n] {
			verts, err := dm.CellVertices(c)
			require.NoError(t, err)
			assert.Contains(t, verts, v)
		}
	}
	// each cell appears once per vertex
	assert.Equal(t, 3*dm.NumCells(), total)
	assert.Equal(t, 6, maxCells)
}

func TestPatchInvariants(t *testing.T) {
	for _, degree := range []int{1, 2} {
		var (
			m       = topology.NewStructuredTriMesh(4, 4)
			lm, err = partition.Serial(m)
		)
		require.NoError(t, err)
		fs, err := fem.NewSpace(lm, sf.Self(), degree, 1)
		require.NoError(t, err)
		bc, err := fs.DirichletNodes("left")
		require.NoError(t, err)
		var (
			dm  = lm.Plex
			npc = fs.NodesPerCell
		)
		cellCounts, cells, err := CreateCellPatches(dm)
		require.NoError(t, err)
		facetCounts, facets, err := CreateCellPatchFacets(dm, cellCounts, cells)
		require.NoError(t, err)
		dmap, err := CreateCellPatchDiscretisationInfo(cellCounts, cells, fs.CellNumbering, npc, fs.CellNodes)
		require.NoError(t, err)
		bcCounts, bcs, err := CreateCellPatchBCs(dm, bc, facetCounts, facets, dmap.GtolCounts, dmap.Gtol, fs.DofSection)
		require.NoError(t, err)
		checkSection(t, bcCounts)
		isBC := make(map[int]bool)
		for _, n := range bc {
			isBC[n] = true
		}
		vs, ve := dm.DepthStratum(0)
		for v := vs; v < ve; v++ {
			var (
				coff, cn, _ = cellCounts.Range(v)
				goff, gn, _ = dmap.GtolCounts.Range(v)
				boff, bn, _ = bcCounts.Range(v)
				gtol        = dmap.Gtol[goff : goff+gn]
				distinct    = make(map[int]struct{})
				back        = make(map[int]int)
			)
			for i := coff; i < coff+cn; i++ {
				c := dmap.Cells[i]
				for j := 0; j < npc; j++ {
					g := fs.CellNodes[c*npc+j]
					distinct[g] = struct{}{}
					// the stored local dof maps back to the same global dof
					assert.Equal(t, g, gtol[dmap.Dofs[i*npc+j]])
				}
			}
			assert.Len(t, gtol, len(distinct), "dedup on vertex %d", v)
			for k, g := range gtol {
				back[g] = k
			}
			assert.Len(t, back, gn)
			for k := 0; k < gn; k++ {
				assert.Equal(t, k, back[gtol[k]], "round trip on vertex %d", v)
			}
			patchBCs := bcs[boff : boff+bn]
			assert.True(t, sort.SliceIsSorted(patchBCs, func(i, j int) bool { return patchBCs[i] < patchBCs[j] }))
			for i, d := range patchBCs {
				assert.True(t, d >= 0 && d < gn)
				if i > 0 {
					assert.Less(t, patchBCs[i-1], d)
				}
			}
			for k, g := range gtol {
				if isBC[g] {
					assert.Contains(t, patchBCs, k)
				}
			}
		}
		{ // Test an interior vertex: everything but the star interior is clamped
			interior := -1
			for v := vs; v < ve; v++ {
				x := lm.Coords[v-vs]
				if x[0] == 0.5 && x[1] == 0.5 {
					interior = v
				}
			}
			require.NotEqual(t, -1, interior)
			_, fn, _ := facetCounts.Range(interior)
			_, gn, _ := dmap.GtolCounts.Range(interior)
			_, bn, _ := bcCounts.Range(interior)
			assert.Equal(t, 6, fn)
			if degree == 1 {
				assert.Equal(t, 7, gn)
				assert.Equal(t, 6, bn)
			} else {
				// the vertex and six spoke edges stay free
				assert.Equal(t, 19, gn)
				assert.Equal(t, 12, bn)
			}
		}
	}
}

func TestCreateGlobalToLocalSF(t *testing.T) {
	gtolCounts := section.New(0, 2)
	_ = gtolCounts.SetDof(0, 3)
	_ = gtolCounts.SetDof(1, 2)
	gtolCounts.SetUp()
	gtol := []int{0, 2, 1, 2, 3}
	s, err := CreateGlobalToLocalSF(identitySF(4), gtolCounts, gtol)
	require.NoError(t, err)
	{ // Test Bcast fans each global value into every slot
		local := make([]float64, 5)
		require.NoError(t, sf.Bcast(s, []float64{10, 11, 12, 13}, local, 1, sf.OpReplace))
		assert.Equal(t, []float64{10, 12, 11, 12, 13}, local)
	}
	{ // Test Reduce sums overlapping slots
		global := make([]float64, 4)
		require.NoError(t, sf.Reduce(s, []float64{1, 1, 1, 1, 1}, global, 1, sf.OpSum))
		assert.Equal(t, []float64{1, 1, 2, 1}, global)
	}
	{ // Test out of range global dofs
		_, err := CreateGlobalToLocalSF(identitySF(2), gtolCounts, gtol)
		assert.True(t, errors.Is(err, ErrTopology))
		_, err = CreateGlobalToLocalSF(identitySF(4), gtolCounts, gtol[:4])
		assert.True(t, errors.Is(err, ErrCapacity))
	}
}

func TestBuilderErrors(t *testing.T) {
	{ // Test missing ownership labels
		dm, err := topology.NewPlex(2, [][]int{{0, 1, 2}}, 3)
		require.NoError(t, err)
		_, _, err = CreateCellPatches(dm)
		assert.True(t, errors.Is(err, ErrTopology))
	}
	{ // Test a cell missing from the cell numbering
		dm := fanPlex(t)
		cellCounts, cells, err := CreateCellPatches(dm)
		require.NoError(t, err)
		numbering := section.New(0, 3)
		_ = numbering.SetDof(0, 1)
		_ = numbering.SetDof(2, 1)
		numbering.SetUp()
		_, err = CreateCellPatchDiscretisationInfo(cellCounts, cells, numbering, 2, []int{0, 1, 1, 2, 2, 3})
		assert.True(t, errors.Is(err, ErrTopology))
		// a cell node map too short for the compact cells
		_, err = CreateCellPatchDiscretisationInfo(cellCounts, cells, cellNumbering(dm), 2, []int{0, 1, 1, 2})
		assert.True(t, errors.Is(err, ErrTopology))
	}
}
