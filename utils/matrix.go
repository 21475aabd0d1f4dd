package utils

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// MatType selects the concrete storage behind a patch matrix.
type MatType string

const (
	MatDense MatType = "dense"
	MatDOK   MatType = "dok"
)

var MatTypes = []MatType{MatDense, MatDOK}

func NewMatType(name string) (mt MatType, err error) {
	mt = MatType(strings.ToLower(strings.TrimSpace(name)))
	switch mt {
	case MatDense, MatDOK:
	case "":
		mt = MatDense
	default:
		err = fmt.Errorf("unknown matrix type %q, have %v", name, MatTypes)
	}
	return
}

// PatchMatrix is the assembly/read surface shared by all patch matrix storage types.
// Dims, At and T satisfy the mat.Matrix interface.
type PatchMatrix interface {
	mat.Matrix
	Set(i, j int, v float64)
	Add(i, j int, v float64)
	Zero()
	// DoNonZero calls fn for each stored entry; zeros may be visited for dense storage.
	DoNonZero(fn func(i, j int, v float64))
	// MulVecTo computes dst = M * x.
	MulVecTo(dst, x []float64)
	Type() MatType
}

func NewPatchMatrix(mt MatType, nr, nc int) (R PatchMatrix, err error) {
	switch mt {
	case MatDense, "":
		R = NewDenseMatrix(nr, nc)
	case MatDOK:
		R = NewDOK(nr, nc)
	default:
		err = fmt.Errorf("unable to create matrix of type %q", mt)
	}
	return
}

type DenseMatrix struct {
	M *mat.Dense
}

func NewDenseMatrix(nr, nc int, dataO ...[]float64) (R *DenseMatrix) {
	var m *mat.Dense
	if len(dataO) != 0 {
		if len(dataO[0]) != nr*nc {
			err := fmt.Errorf("mismatch in allocation: NewDenseMatrix nr,nc = %v,%v, len(data[0]) = %v", nr, nc, len(dataO[0]))
			panic(err)
		}
		m = mat.NewDense(nr, nc, dataO[0])
	} else {
		m = mat.NewDense(nr, nc, make([]float64, nr*nc))
	}
	return &DenseMatrix{M: m}
}

func (m *DenseMatrix) Dims() (r, c int)        { return m.M.Dims() }
func (m *DenseMatrix) At(i, j int) float64     { return m.M.At(i, j) }
func (m *DenseMatrix) T() mat.Matrix           { return mat.Transpose{Matrix: m} }
func (m *DenseMatrix) Set(i, j int, v float64) { m.M.Set(i, j, v) }
func (m *DenseMatrix) Add(i, j int, v float64) { m.M.Set(i, j, m.M.At(i, j)+v) }
func (m *DenseMatrix) Zero()                   { m.M.Zero() }
func (m *DenseMatrix) Type() MatType           { return MatDense }
func (m *DenseMatrix) Data() []float64         { return m.M.RawMatrix().Data }

func (m *DenseMatrix) DoNonZero(fn func(i, j int, v float64)) {
	var (
		raw = m.M.RawMatrix()
	)
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for j, v := range row {
			if v != 0 {
				fn(i, j, v)
			}
		}
	}
}

func (m *DenseMatrix) MulVecTo(dst, x []float64) {
	var (
		nr, nc = m.Dims()
	)
	d := mat.NewVecDense(nr, dst[:nr])
	d.MulVec(m.M, mat.NewVecDense(nc, x[:nc]))
}
