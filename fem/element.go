package fem

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Lagrange elements on simplices, written in barycentric coordinates. Nodes are ordered
// vertices first, then edge midpoints in the order of edgePairs.

var (
	edgePairs = map[int][][2]int{
		2: {{0, 1}, {1, 2}, {2, 0}},
		3: {{0, 1}, {1, 2}, {2, 0}, {0, 3}, {1, 3}, {2, 3}},
	}
	// quadrature exact for quadratics, barycentric points with weights summing to one
	quadPoints = map[int][][]float64{
		2: {{0.5, 0.5, 0}, {0, 0.5, 0.5}, {0.5, 0, 0.5}},
		3: {
			{quadA, quadB, quadB, quadB},
			{quadB, quadA, quadB, quadB},
			{quadB, quadB, quadA, quadB},
			{quadB, quadB, quadB, quadA},
		},
	}
	quadWeights = map[int][]float64{
		2: {1. / 3., 1. / 3., 1. / 3.},
		3: {0.25, 0.25, 0.25, 0.25},
	}
)

const (
	quadA = 0.5854101966249685
	quadB = 0.1381966011250105
)

// NodesPerCell is the number of element nodes of a degree p simplex in dim dimensions.
func NodesPerCell(dim, degree int) int {
	n := dim + 1
	if degree == 2 {
		n += len(edgePairs[dim])
	}
	return n
}

// Geometry holds the affine map of one simplex.
type Geometry struct {
	Dim    int
	Volume float64
	Grads  [][]float64 // gradients of the barycentric coordinates, [dim+1][dim]
	X0     []float64
	J      *mat.Dense
}

func NewGeometry(coords [][]float64) (g *Geometry, err error) {
	var (
		dim = len(coords) - 1
		J   = mat.NewDense(dim, dim, nil)
	)
	for _, x := range coords {
		if len(x) != dim {
			return nil, fmt.Errorf("%d-simplex needs %d coordinates per vertex, have %d", dim, dim, len(x))
		}
	}
	for i := 1; i <= dim; i++ {
		for d := 0; d < dim; d++ {
			J.Set(d, i-1, coords[i][d]-coords[0][d])
		}
	}
	det := mat.Det(J)
	if math.Abs(det) < 1.e-300 {
		return nil, fmt.Errorf("degenerate cell with Jacobian determinant %g", det)
	}
	var Jinv mat.Dense
	if err = Jinv.Inverse(J); err != nil {
		return nil, fmt.Errorf("inverting cell Jacobian: %w", err)
	}
	g = &Geometry{
		Dim:    dim,
		Volume: math.Abs(det) / float64(factorial(dim)),
		Grads:  make([][]float64, dim+1),
		X0:     append([]float64(nil), coords[0]...),
		J:      J,
	}
	g.Grads[0] = make([]float64, dim)
	for i := 1; i <= dim; i++ {
		// grad of lambda_i is row i-1 of J^-1
		g.Grads[i] = make([]float64, dim)
		for d := 0; d < dim; d++ {
			g.Grads[i][d] = Jinv.At(i-1, d)
			g.Grads[0][d] -= g.Grads[i][d]
		}
	}
	return
}

// Point maps barycentric coordinates to physical space.
func (g *Geometry) Point(lambda []float64) (x []float64) {
	x = append([]float64(nil), g.X0...)
	for i := 1; i <= g.Dim; i++ {
		for d := 0; d < g.Dim; d++ {
			x[d] += lambda[i] * g.J.At(d, i-1)
		}
	}
	return
}

func factorial(n int) (f int) {
	f = 1
	for i := 2; i <= n; i++ {
		f *= i
	}
	return
}

// basis evaluates the shape functions at barycentric point lambda.
func basis(dim, degree int, lambda []float64) (phi []float64) {
	if degree == 1 {
		return append([]float64(nil), lambda...)
	}
	for i := 0; i <= dim; i++ {
		phi = append(phi, lambda[i]*(2*lambda[i]-1))
	}
	for _, e := range edgePairs[dim] {
		phi = append(phi, 4*lambda[e[0]]*lambda[e[1]])
	}
	return
}

// basisGrads evaluates the shape function gradients at lambda, [node][dim].
func basisGrads(g *Geometry, degree int, lambda []float64) (grads [][]float64) {
	dim := g.Dim
	if degree == 1 {
		return g.Grads
	}
	for i := 0; i <= dim; i++ {
		gr := make([]float64, dim)
		for d := range gr {
			gr[d] = (4*lambda[i] - 1) * g.Grads[i][d]
		}
		grads = append(grads, gr)
	}
	for _, e := range edgePairs[dim] {
		gr := make([]float64, dim)
		for d := range gr {
			gr[d] = 4 * (lambda[e[1]]*g.Grads[e[0]][d] + lambda[e[0]]*g.Grads[e[1]][d])
		}
		grads = append(grads, gr)
	}
	return
}

// ElementMatrix returns the stiffness matrix plus reaction times the mass matrix.
func ElementMatrix(g *Geometry, degree int, reaction float64) (Ke *mat.Dense) {
	var (
		n = NodesPerCell(g.Dim, degree)
	)
	Ke = mat.NewDense(n, n, nil)
	for q, lambda := range quadPoints[g.Dim] {
		var (
			w     = quadWeights[g.Dim][q] * g.Volume
			grads = basisGrads(g, degree, lambda)
			phi   = basis(g.Dim, degree, lambda)
		)
		for a := 0; a < n; a++ {
			for b := 0; b < n; b++ {
				var dot float64
				for d := 0; d < g.Dim; d++ {
					dot += grads[a][d] * grads[b][d]
				}
				Ke.Set(a, b, Ke.At(a, b)+w*(dot+reaction*phi[a]*phi[b]))
			}
		}
	}
	return
}

// ElementLoad integrates f against every shape function.
func ElementLoad(g *Geometry, degree int, f func(x []float64) float64) (fe []float64) {
	fe = make([]float64, NodesPerCell(g.Dim, degree))
	for q, lambda := range quadPoints[g.Dim] {
		var (
			w   = quadWeights[g.Dim][q] * g.Volume
			fx  = f(g.Point(lambda))
			phi = basis(g.Dim, degree, lambda)
		)
		for a := range fe {
			fe[a] += w * fx * phi[a]
		}
	}
	return
}
