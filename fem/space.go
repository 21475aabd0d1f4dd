// Package fem provides continuous Lagrange spaces on distributed simplicial meshes and
// the Laplace operator used to drive the patch preconditioner.
package fem

import (
	"fmt"

	"github.com/florianwechsung/ssc/partition"
	"github.com/florianwechsung/ssc/section"
	"github.com/florianwechsung/ssc/sf"
	"github.com/florianwechsung/ssc/topology"
)

// Space numbers the nodes of a degree 1 or 2 Lagrange space on one rank's local mesh.
// Local node n holds BS scalars at vector entries n*BS .. n*BS+BS-1. Owned nodes are
// those on points this rank owns; the owned part of a vector is laid out in local node order.
type Space struct {
	Mesh       *partition.LocalMesh
	Comm       *sf.Comm
	Degree     int
	BS         int
	DofSection *section.Section // nodes per mesh point
	// CellNumbering gives every local cell one slot; its offset is the compact cell index
	CellNumbering *section.Section
	NodesPerCell  int
	CellNodes     []int // [compact cell * NodesPerCell + slot] -> local node
	Cells         []int // compact cell -> cell point
	NumNodes      int
	OwnedIndex    []int // local node -> index in the owned vector, -1 when owned elsewhere
	NumOwned      int
	OwnedStart    int // first global node index of this rank
	NumGlobal     int
	DofSF         *sf.SF // roots: owned nodes, leaves: all local nodes
}

func NewSpace(lm *partition.LocalMesh, comm *sf.Comm, degree, bs int) (fs *Space, err error) {
	if degree != 1 && degree != 2 {
		return nil, fmt.Errorf("only degree 1 and 2 Lagrange elements are supported, have %d", degree)
	}
	if bs < 1 {
		return nil, fmt.Errorf("block size must be positive, have %d", bs)
	}
	var (
		dm           = lm.Plex
		dim          = dm.Dim()
		pStart, pEnd = dm.Chart()
		cStart, cEnd = dm.HeightStratum(0)
	)
	fs = &Space{
		Mesh:         lm,
		Comm:         comm,
		Degree:       degree,
		BS:           bs,
		NodesPerCell: NodesPerCell(dim, degree),
	}
	fs.DofSection = section.New(pStart, pEnd)
	for depth := 0; depth < degree; depth++ {
		s, e := dm.DepthStratum(depth)
		for p := s; p < e; p++ {
			if err = fs.DofSection.SetDof(p, 1); err != nil {
				return
			}
		}
	}
	fs.DofSection.SetUp()
	if fs.NumNodes, err = fs.DofSection.StorageSize(); err != nil {
		return
	}
	fs.CellNumbering = section.New(cStart, cEnd)
	for c := cStart; c < cEnd; c++ {
		_ = fs.CellNumbering.SetDof(c, 1)
		fs.Cells = append(fs.Cells, c)
	}
	fs.CellNumbering.SetUp()
	if err = fs.buildCellNodes(); err != nil {
		return
	}
	if err = fs.buildOwnership(); err != nil {
		return
	}
	return
}

func (fs *Space) node(p int) (n int, err error) {
	var off, cnt int
	if off, cnt, err = fs.DofSection.Range(p); err != nil {
		return
	}
	if cnt != 1 {
		return -1, fmt.Errorf("point %d carries %d nodes", p, cnt)
	}
	return off, nil
}

func (fs *Space) buildCellNodes() (err error) {
	var (
		dm  = fs.Mesh.Plex
		dim = dm.Dim()
	)
	fs.CellNodes = make([]int, 0, len(fs.Cells)*fs.NodesPerCell)
	for _, c := range fs.Cells {
		var verts []int
		if verts, err = dm.CellVertices(c); err != nil {
			return
		}
		for _, v := range verts {
			var n int
			if n, err = fs.node(v); err != nil {
				return
			}
			fs.CellNodes = append(fs.CellNodes, n)
		}
		if fs.Degree < 2 {
			continue
		}
		for _, e := range edgePairs[dim] {
			edge, ok := dm.Join(verts[e[0]], verts[e[1]])
			if !ok {
				return fmt.Errorf("cell %d has no edge between vertices %d and %d", c, verts[e[0]], verts[e[1]])
			}
			var n int
			if n, err = fs.node(edge); err != nil {
				return
			}
			fs.CellNodes = append(fs.CellNodes, n)
		}
	}
	return
}

func (fs *Space) buildOwnership() (err error) {
	var (
		lm            = fs.Mesh
		pStart, pEnd  = fs.DofSection.Chart()
		pointOwnedOff = make([]int, pEnd-pStart)
		ghostOff      = make([]int, pEnd-pStart)
		psf           *sf.SF
		counts        []int
	)
	fs.OwnedIndex = make([]int, fs.NumNodes)
	for p := pStart; p < pEnd; p++ {
		pointOwnedOff[p-pStart] = -1
		ghostOff[p-pStart] = -1
		off, cnt, _ := fs.DofSection.Range(p)
		for k := 0; k < cnt; k++ {
			fs.OwnedIndex[off+k] = -1
		}
		if cnt == 0 || !lm.IsOwned(p) {
			continue
		}
		pointOwnedOff[p-pStart] = fs.NumOwned
		for k := 0; k < cnt; k++ {
			fs.OwnedIndex[off+k] = fs.NumOwned
			fs.NumOwned++
		}
	}
	// ghost points learn the owned offset their owner gave them
	if psf, err = lm.PointSF(fs.Comm); err != nil {
		return
	}
	copy(ghostOff, pointOwnedOff)
	if err = sf.Bcast(psf, pointOwnedOff, ghostOff, 1, sf.OpReplace); err != nil {
		return
	}
	remotes := make([]sf.Node, fs.NumNodes)
	for p := pStart; p < pEnd; p++ {
		off, cnt, _ := fs.DofSection.Range(p)
		for k := 0; k < cnt; k++ {
			if ghostOff[p-pStart] < 0 {
				return fmt.Errorf("point %d has nodes but its owner numbered none", p)
			}
			remotes[off+k] = sf.Node{Rank: lm.Owner[p], Index: ghostOff[p-pStart] + k}
		}
	}
	fs.DofSF = sf.New(fs.Comm)
	if err = fs.DofSF.SetGraph(fs.NumOwned, nil, remotes); err != nil {
		return
	}
	mine := make([]int, fs.Comm.Size())
	mine[fs.Comm.Rank()] = fs.NumOwned
	if counts, err = sf.Allreduce(fs.Comm, mine, sf.OpSum); err != nil {
		return
	}
	for r, n := range counts {
		if r < fs.Comm.Rank() {
			fs.OwnedStart += n
		}
		fs.NumGlobal += n
	}
	return
}

// CellCoords returns the vertex coordinates of a cell point.
func (fs *Space) CellCoords(c int) (coords [][]float64, err error) {
	var (
		verts  []int
		vStart int
	)
	if verts, err = fs.Mesh.Plex.CellVertices(c); err != nil {
		return
	}
	vStart, _ = fs.Mesh.Plex.DepthStratum(0)
	for _, v := range verts {
		coords = append(coords, fs.Mesh.Coords[v-vStart])
	}
	return
}

// DirichletNodes returns the sorted local nodes in the closure of the facets carrying any
// of the given labels. With no labels the exterior facets are used. A rank may hold a
// boundary node without the facet marking it, so the sets are made consistent over the
// dof SF and the call is collective.
func (fs *Space) DirichletNodes(labels ...string) (nodes []int, err error) {
	var (
		dm   = fs.Mesh.Plex
		mark = make([]bool, fs.NumNodes)
	)
	if len(labels) == 0 {
		labels = []string{topology.LabelExteriorFacets}
	}
	for _, name := range labels {
		var l *topology.Label
		if l, err = dm.GetLabel(name); err != nil {
			return
		}
		for _, f := range l.Points() {
			closure, _ := dm.TransitiveClosure(f, true)
			for _, q := range closure {
				off, cnt, _ := fs.DofSection.Range(q)
				for k := 0; k < cnt; k++ {
					mark[off+k] = true
				}
			}
		}
	}
	var (
		flags = make([]int, fs.NumNodes)
		owned = make([]int, fs.NumOwned)
	)
	for n, m := range mark {
		if m {
			flags[n] = 1
		}
	}
	if err = sf.Reduce(fs.DofSF, flags, owned, 1, sf.OpMax); err != nil {
		return
	}
	if err = sf.Bcast(fs.DofSF, owned, flags, 1, sf.OpMax); err != nil {
		return
	}
	for n, f := range flags {
		if f > 0 {
			nodes = append(nodes, n)
		}
	}
	return
}

// GlobalToLocal fills a local vector (all nodes) from an owned vector.
func (fs *Space) GlobalToLocal(owned, local []float64) error {
	return sf.Bcast(fs.DofSF, owned, local, fs.BS, sf.OpReplace)
}

// LocalToGlobal sums a local vector into an owned vector, which is zeroed first.
func (fs *Space) LocalToGlobal(local, owned []float64) error {
	for i := range owned {
		owned[i] = 0
	}
	return sf.Reduce(fs.DofSF, local, owned, fs.BS, sf.OpSum)
}

// OwnedNodes maps local nodes to owned vector indices, dropping those owned elsewhere.
func (fs *Space) OwnedNodes(nodes []int) (owned []int) {
	for _, n := range nodes {
		if o := fs.OwnedIndex[n]; o >= 0 {
			owned = append(owned, o)
		}
	}
	return
}
