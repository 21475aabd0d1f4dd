package fem

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/florianwechsung/ssc/utils"
)

// Laplace holds the element matrices of -div(grad u) + reaction*u on every local cell.
// With BS > 1 each component gets its own copy of the scalar operator.
type Laplace struct {
	Space    *Space
	Reaction float64
	elements []*mat.Dense // by compact cell
}

func NewLaplace(fs *Space, reaction float64) (lp *Laplace, err error) {
	if reaction != 0 && fs.Degree != 1 {
		return nil, fmt.Errorf("a reaction term needs degree 1 elements, have degree %d", fs.Degree)
	}
	lp = &Laplace{
		Space:    fs,
		Reaction: reaction,
		elements: make([]*mat.Dense, len(fs.Cells)),
	}
	for k, c := range fs.Cells {
		var (
			coords [][]float64
			g      *Geometry
		)
		if coords, err = fs.CellCoords(c); err != nil {
			return
		}
		if g, err = NewGeometry(coords); err != nil {
			return nil, fmt.Errorf("cell %d: %w", c, err)
		}
		lp.elements[k] = ElementMatrix(g, fs.Degree, reaction)
	}
	return
}

func (lp *Laplace) Element(compactCell int) *mat.Dense { return lp.elements[compactCell] }

// BuildOperator assembles a patch matrix. cells holds compact cell numbers and dofs the
// patch-local node of each (cell, slot) pair, NodesPerCell per cell.
func (lp *Laplace) BuildOperator(m utils.PatchMatrix, cells []int, dofs []int) (err error) {
	var (
		npc = lp.Space.NodesPerCell
		bs  = lp.Space.BS
	)
	if len(dofs) != len(cells)*npc {
		return fmt.Errorf("%d dofs for %d cells of %d nodes", len(dofs), len(cells), npc)
	}
	for i, c := range cells {
		if c < 0 || c >= len(lp.elements) {
			return fmt.Errorf("compact cell %d outside [0, %d)", c, len(lp.elements))
		}
		Ke := lp.elements[c]
		for a := 0; a < npc; a++ {
			ia := dofs[i*npc+a]
			for b := 0; b < npc; b++ {
				ib := dofs[i*npc+b]
				v := Ke.At(a, b)
				for comp := 0; comp < bs; comp++ {
					m.Add(ia*bs+comp, ib*bs+comp, v)
				}
			}
		}
	}
	return
}

// GlobalOperator applies the operator to owned vectors, with the Dirichlet rows and
// columns replaced by the identity.
type GlobalOperator struct {
	Space     *Space
	local     *utils.DOK
	dirichlet []int // owned vector indices, blocked
	localMask []bool
	localX    []float64
	localY    []float64
}

// NewGlobalOperator assembles the owned cells of lp. bcNodes are local nodes.
func NewGlobalOperator(lp *Laplace, bcNodes []int) (op *GlobalOperator, err error) {
	var (
		fs  = lp.Space
		n   = fs.NumNodes * fs.BS
		npc = fs.NodesPerCell
	)
	op = &GlobalOperator{
		Space:     fs,
		local:     utils.NewDOK(n, n),
		localMask: make([]bool, n),
		localX:    make([]float64, n),
		localY:    make([]float64, n),
	}
	for k, c := range fs.Cells {
		if !fs.Mesh.IsOwned(c) {
			continue
		}
		if err = lp.BuildOperator(op.local, []int{k}, fs.CellNodes[k*npc:(k+1)*npc]); err != nil {
			return
		}
	}
	for _, node := range bcNodes {
		for comp := 0; comp < fs.BS; comp++ {
			op.localMask[node*fs.BS+comp] = true
		}
	}
	for _, o := range fs.OwnedNodes(bcNodes) {
		for comp := 0; comp < fs.BS; comp++ {
			op.dirichlet = append(op.dirichlet, o*fs.BS+comp)
		}
	}
	return
}

// Apply computes y = A x. It is collective over the space's ranks.
func (op *GlobalOperator) Apply(x, y []float64) (err error) {
	if err = op.Space.GlobalToLocal(x, op.localX); err != nil {
		return
	}
	for i, bc := range op.localMask {
		if bc {
			op.localX[i] = 0
		}
	}
	op.local.MulVecTo(op.localY, op.localX)
	if err = op.Space.LocalToGlobal(op.localY, y); err != nil {
		return
	}
	for _, i := range op.dirichlet {
		y[i] = x[i]
	}
	return
}

// Dirichlet returns the blocked owned indices of the clamped rows.
func (op *GlobalOperator) Dirichlet() []int { return op.dirichlet }

// LoadVector integrates f against the basis into an owned vector, each component alike,
// with the Dirichlet rows of op set to zero.
func (op *GlobalOperator) LoadVector(f func(x []float64) float64) (b []float64, err error) {
	var (
		fs    = op.Space
		npc   = fs.NodesPerCell
		local = make([]float64, fs.NumNodes*fs.BS)
	)
	for k, c := range fs.Cells {
		if !fs.Mesh.IsOwned(c) {
			continue
		}
		var (
			coords [][]float64
			g      *Geometry
		)
		if coords, err = fs.CellCoords(c); err != nil {
			return
		}
		if g, err = NewGeometry(coords); err != nil {
			return
		}
		for a, v := range ElementLoad(g, fs.Degree, f) {
			node := fs.CellNodes[k*npc+a]
			for comp := 0; comp < fs.BS; comp++ {
				local[node*fs.BS+comp] += v
			}
		}
	}
	b = make([]float64, fs.NumOwned*fs.BS)
	if err = fs.LocalToGlobal(local, b); err != nil {
		return
	}
	for _, i := range op.dirichlet {
		b[i] = 0
	}
	return
}
