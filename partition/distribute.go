package partition

import (
	"fmt"
	"sort"

	"github.com/florianwechsung/ssc/sf"
	"github.com/florianwechsung/ssc/topology"
)

// LocalMesh is one rank's view of a distributed mesh: its owned cells plus every cell in
// the star of a vertex it owns, so each owned vertex sees its complete patch.
//
// A point is owned by the lowest rank owning a cell in its star. Owned points carry
// the op2_core label when every cell of their star is owned locally and op2_non_core
// otherwise; points owned elsewhere carry neither.
type LocalMesh struct {
	Rank, Size  int
	Plex        *topology.Plex
	Coords      [][]float64 // [local vertex][dim]
	GlobalPoint []int       // local point -> point of the serial mesh
	Owner       []int       // local point -> owning rank
	Remote      []sf.Node   // local point -> (owner, point on the owner)
}

func (lm *LocalMesh) IsOwned(p int) bool { return lm.Owner[p] == lm.Rank }

// OwnedCells returns the local cells this rank owns.
func (lm *LocalMesh) OwnedCells() (cells []int) {
	cStart, cEnd := lm.Plex.HeightStratum(0)
	for c := cStart; c < cEnd; c++ {
		if lm.IsOwned(c) {
			cells = append(cells, c)
		}
	}
	return
}

// PointSF attaches every point owned elsewhere to its owner. Roots are all local points.
func (lm *LocalMesh) PointSF(comm *sf.Comm) (s *sf.SF, err error) {
	if comm.Rank() != lm.Rank || comm.Size() != lm.Size {
		return nil, fmt.Errorf("local mesh of rank %d/%d used on rank %d/%d", lm.Rank, lm.Size, comm.Rank(), comm.Size())
	}
	var (
		leaves  []int
		remotes []sf.Node
	)
	for p, r := range lm.Remote {
		if r.Rank != lm.Rank {
			leaves = append(leaves, p)
			remotes = append(remotes, r)
		}
	}
	s = sf.New(comm)
	err = s.SetGraph(len(lm.Remote), leaves, remotes)
	return
}

// Serial wraps an undistributed mesh as the only rank.
func Serial(m *topology.Mesh) (lm *LocalMesh, err error) {
	var lms []*LocalMesh
	if lms, err = Distribute(m, make([]int, m.NumCells()), 1); err != nil {
		return
	}
	return lms[0], nil
}

// Distribute builds the local mesh of every rank from a cell partition.
func Distribute(m *topology.Mesh, eToP []int, nparts int) (lms []*LocalMesh, err error) {
	var (
		dm     *topology.Plex
		K      = m.NumCells()
		owner  []int
		vStart int
	)
	if len(eToP) != K {
		return nil, fmt.Errorf("partition has %d entries for %d cells", len(eToP), K)
	}
	for k, p := range eToP {
		if p < 0 || p >= nparts {
			return nil, fmt.Errorf("cell %d assigned to rank %d outside [0, %d)", k, p, nparts)
		}
	}
	if dm, err = m.Plex(); err != nil {
		return
	}
	exterior := dm.MarkExteriorFacets(topology.LabelExteriorFacets)
	vStart, _ = dm.DepthStratum(0)
	_, pEnd := dm.Chart()
	owner = make([]int, pEnd)
	for p := range owner {
		owner[p] = nparts
	}
	// core[p] drops once a cell not owned by the owner of p shows up in its star
	core := make([]bool, pEnd)
	for p := range core {
		core[p] = true
	}
	for c := 0; c < K; c++ {
		closure, _ := dm.TransitiveClosure(c, true)
		for _, q := range closure {
			owner[q] = min(owner[q], eToP[c])
		}
	}
	for c := 0; c < K; c++ {
		closure, _ := dm.TransitiveClosure(c, true)
		for _, q := range closure {
			if eToP[c] != owner[q] {
				core[q] = false
			}
		}
	}
	var (
		pointMaps = make([][]int, nparts)
		reverse   = make([]map[int]int, nparts)
		subs      = make([]*topology.Plex, nparts)
	)
	for r := 0; r < nparts; r++ {
		cells := make(map[int]struct{})
		for c := 0; c < K; c++ {
			if eToP[c] == r {
				cells[c] = struct{}{}
			}
		}
		vs, ve := dm.DepthStratum(0)
		for v := vs; v < ve; v++ {
			if owner[v] != r {
				continue
			}
			star, _ := dm.TransitiveClosure(v, false)
			for _, q := range star {
				if q < K {
					cells[q] = struct{}{}
				}
			}
		}
		sorted := make([]int, 0, len(cells))
		for c := range cells {
			sorted = append(sorted, c)
		}
		sort.Ints(sorted)
		if subs[r], pointMaps[r], err = dm.SubPlex(sorted); err != nil {
			return nil, err
		}
		reverse[r] = make(map[int]int, len(pointMaps[r]))
		for lp, gp := range pointMaps[r] {
			reverse[r][gp] = lp
		}
	}
	lms = make([]*LocalMesh, nparts)
	for r := 0; r < nparts; r++ {
		var (
			sub     = subs[r]
			pm      = pointMaps[r]
			lm      = &LocalMesh{Rank: r, Size: nparts, Plex: sub, GlobalPoint: pm}
			coreL   = sub.CreateLabel(topology.LabelCore)
			nonCore = sub.CreateLabel(topology.LabelNonCore)
			extL    = sub.CreateLabel(topology.LabelExteriorFacets)
		)
		lm.Owner = make([]int, len(pm))
		lm.Remote = make([]sf.Node, len(pm))
		for lp, gp := range pm {
			o := owner[gp]
			lm.Owner[lp] = o
			remote, ok := reverse[o][gp]
			if !ok {
				return nil, fmt.Errorf("point %d owned by rank %d is missing from its local mesh", gp, o)
			}
			lm.Remote[lp] = sf.Node{Rank: o, Index: remote}
			if o == r {
				if core[gp] {
					coreL.SetValue(lp, 1)
				} else {
					nonCore.SetValue(lp, 1)
				}
			}
			if exterior.HasPoint(gp) {
				extL.SetValue(lp, 1)
			}
		}
		for _, name := range m.MarkerNames() {
			gl, _ := dm.GetLabel(name)
			ll := sub.CreateLabel(name)
			for lp, gp := range pm {
				if gl.HasPoint(gp) {
					ll.SetValue(lp, 1)
				}
			}
		}
		lvs, lve := sub.DepthStratum(0)
		lm.Coords = make([][]float64, lve-lvs)
		for lv := lvs; lv < lve; lv++ {
			lm.Coords[lv-lvs] = m.Coords[pm[lv]-vStart]
		}
		lms[r] = lm
	}
	return
}
