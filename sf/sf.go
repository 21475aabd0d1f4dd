package sf

import (
	"fmt"
	"sort"
	"strings"
)

// Node names a root: an index into the root space of a rank.
type Node struct {
	Rank  int
	Index int
}

// SF is a star forest: each leaf on this rank is attached to exactly one root on some
// rank. Leaves index into a local leaf space, roots into the owning rank's root space.
type SF struct {
	comm    *Comm
	nroots  int
	leaves  []int // nil means leaf i is at position i
	remotes []Node
	setup   bool
	// rank -> root indices requested by that rank, in its request order
	rootReqs map[int][]int
	// rank -> positions in remotes requesting roots of that rank
	leafReqs map[int][]int
}

func New(comm *Comm) *SF {
	return &SF{comm: comm}
}

func (s *SF) Comm() *Comm { return s.comm }

// SetGraph defines the forest. leaves may be nil for contiguous leaves 0..len(remotes)-1.
func (s *SF) SetGraph(nroots int, leaves []int, remotes []Node) (err error) {
	if nroots < 0 {
		return fmt.Errorf("%w: negative root count %d", ErrGraph, nroots)
	}
	if leaves != nil && len(leaves) != len(remotes) {
		return fmt.Errorf("%w: %d leaves with %d remotes", ErrGraph, len(leaves), len(remotes))
	}
	if leaves != nil {
		seen := make(map[int]struct{}, len(leaves))
		for _, l := range leaves {
			if l < 0 {
				return fmt.Errorf("%w: negative leaf %d", ErrGraph, l)
			}
			if _, ok := seen[l]; ok {
				return fmt.Errorf("%w: leaf %d appears twice", ErrGraph, l)
			}
			seen[l] = struct{}{}
		}
	}
	for i, r := range remotes {
		if r.Rank < 0 || r.Rank >= s.comm.Size() || r.Index < 0 {
			return fmt.Errorf("%w: leaf %d has remote %+v", ErrGraph, i, r)
		}
	}
	s.nroots, s.leaves, s.remotes = nroots, leaves, remotes
	s.setup = false
	s.rootReqs, s.leafReqs = nil, nil
	return
}

func (s *SF) Graph() (nroots int, leaves []int, remotes []Node) {
	return s.nroots, s.leaves, s.remotes
}

func (s *SF) NumRoots() int  { return s.nroots }
func (s *SF) NumLeaves() int { return len(s.remotes) }

// LeafSize is the extent of the leaf space: one past the largest leaf.
func (s *SF) LeafSize() (n int) {
	if s.leaves == nil {
		return len(s.remotes)
	}
	for _, l := range s.leaves {
		if l+1 > n {
			n = l + 1
		}
	}
	return
}

func (s *SF) leaf(i int) int {
	if s.leaves == nil {
		return i
	}
	return s.leaves[i]
}

// SetUp exchanges the communication pattern. It is collective and implied by the first
// Bcast or Reduce.
func (s *SF) SetUp() (err error) {
	if s.setup {
		return
	}
	var (
		out = make(map[int]any)
		in  map[int]any
	)
	s.leafReqs = make(map[int][]int)
	for i, r := range s.remotes {
		s.leafReqs[r.Rank] = append(s.leafReqs[r.Rank], i)
	}
	for rank, pos := range s.leafReqs {
		req := make([]int, len(pos))
		for k, i := range pos {
			req[k] = s.remotes[i].Index
		}
		out[rank] = req
	}
	if in, err = s.comm.exchange(out); err != nil {
		return
	}
	s.rootReqs = make(map[int][]int, len(in))
	for from, payload := range in {
		req := payload.([]int)
		for _, root := range req {
			if root >= s.nroots {
				return fmt.Errorf("%w: rank %d references root %d of %d on rank %d",
					ErrGraph, from, root, s.nroots, s.comm.Rank())
			}
		}
		s.rootReqs[from] = req
	}
	s.setup = true
	return
}

func (s *SF) checkSizes(nRoot, nLeaf, bs int) error {
	if bs < 1 {
		return fmt.Errorf("%w: block size %d", ErrSize, bs)
	}
	if nRoot < s.nroots*bs {
		return fmt.Errorf("%w: root buffer %d < %d x %d", ErrSize, nRoot, s.nroots, bs)
	}
	if need := s.LeafSize() * bs; nLeaf < need {
		return fmt.Errorf("%w: leaf buffer %d < %d", ErrSize, nLeaf, need)
	}
	return nil
}

func sortedRanks(m map[int][]int) (ranks []int) {
	for r := range m {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	return
}

// Bcast sends root values to their leaves, bs values per point, combining into
// leafData with op.
func Bcast[T Number](s *SF, rootData, leafData []T, bs int, op Op) (err error) {
	if err = s.SetUp(); err != nil {
		return
	}
	if err = s.checkSizes(len(rootData), len(leafData), bs); err != nil {
		return
	}
	var (
		out = make(map[int]any, len(s.rootReqs))
		in  map[int]any
	)
	for rank, req := range s.rootReqs {
		buf := make([]T, 0, len(req)*bs)
		for _, root := range req {
			buf = append(buf, rootData[root*bs:(root+1)*bs]...)
		}
		out[rank] = buf
	}
	if in, err = s.comm.exchange(out); err != nil {
		return
	}
	for _, rank := range sortedRanks(s.leafReqs) {
		buf := in[rank].([]T)
		for k, i := range s.leafReqs[rank] {
			l := s.leaf(i)
			for b := 0; b < bs; b++ {
				combine(op, &leafData[l*bs+b], buf[k*bs+b])
			}
		}
	}
	return
}

// Reduce sends leaf values to their roots, combining into rootData with op.
// Contributions reach each root in increasing source rank, then leaf order.
func Reduce[T Number](s *SF, leafData, rootData []T, bs int, op Op) (err error) {
	if err = s.SetUp(); err != nil {
		return
	}
	if err = s.checkSizes(len(rootData), len(leafData), bs); err != nil {
		return
	}
	var (
		out = make(map[int]any, len(s.leafReqs))
		in  map[int]any
	)
	for rank, pos := range s.leafReqs {
		buf := make([]T, 0, len(pos)*bs)
		for _, i := range pos {
			l := s.leaf(i)
			buf = append(buf, leafData[l*bs:(l+1)*bs]...)
		}
		out[rank] = buf
	}
	if in, err = s.comm.exchange(out); err != nil {
		return
	}
	for _, rank := range sortedRanks(s.rootReqs) {
		buf := in[rank].([]T)
		for k, root := range s.rootReqs[rank] {
			for b := 0; b < bs; b++ {
				combine(op, &rootData[root*bs+b], buf[k*bs+b])
			}
		}
	}
	return
}

// Compose chains a with b, where the root space of b is the leaf space of a. The result
// connects the roots of a directly to the leaves of b. Leaves of b attached to a point
// that is not a leaf of a are dropped.
func Compose(a, b *SF) (ab *SF, err error) {
	if a.comm != b.comm && a.comm.world != b.comm.world {
		return nil, fmt.Errorf("%w: forests live in different worlds", ErrGraph)
	}
	if a.LeafSize() > b.nroots {
		return nil, fmt.Errorf("%w: leaf space of %d does not fit %d roots", ErrGraph, a.LeafSize(), b.nroots)
	}
	var (
		rootData = make([]int, 2*b.nroots)
		leafData = make([]int, 2*b.LeafSize())
		leaves   = make([]int, 0, len(b.remotes))
		remotes  = make([]Node, 0, len(b.remotes))
	)
	for i := range rootData {
		rootData[i] = -1
	}
	for i := range leafData {
		leafData[i] = -1
	}
	for i, r := range a.remotes {
		l := a.leaf(i)
		rootData[2*l], rootData[2*l+1] = r.Rank, r.Index
	}
	if err = Bcast(b, rootData, leafData, 2, OpReplace); err != nil {
		return
	}
	for i := range b.remotes {
		l := b.leaf(i)
		if leafData[2*l] < 0 {
			continue
		}
		leaves = append(leaves, l)
		remotes = append(remotes, Node{Rank: leafData[2*l], Index: leafData[2*l+1]})
	}
	ab = New(a.comm)
	err = ab.SetGraph(a.nroots, leaves, remotes)
	return
}

func (s *SF) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Star forest on rank %d of %d: %d roots, %d leaves\n",
		s.comm.Rank(), s.comm.Size(), s.nroots, len(s.remotes))
	for i, r := range s.remotes {
		fmt.Fprintf(&sb, "  [%d] %d <- (%d,%d)\n", s.comm.Rank(), s.leaf(i), r.Rank, r.Index)
	}
	return sb.String()
}
