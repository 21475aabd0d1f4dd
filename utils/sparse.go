package utils

import (
	"github.com/james-bowman/sparse"
	"github.com/james-bowman/sparse/blas"
	"gonum.org/v1/gonum/mat"
)

// DOK wraps a dictionary-of-keys sparse matrix. Reads that need compressed rows go through a
// CSR copy which is rebuilt lazily after any write.
type DOK struct {
	M   *sparse.DOK
	csr *sparse.CSR
}

func NewDOK(nr, nc int) (R *DOK) {
	R = &DOK{
		M: sparse.NewDOK(nr, nc),
	}
	return
}

// Dims, At and T minimally satisfy the mat.Matrix interface.
func (m *DOK) Dims() (r, c int)    { return m.M.Dims() }
func (m *DOK) At(i, j int) float64 { return m.M.At(i, j) }
func (m *DOK) T() mat.Matrix       { return mat.Transpose{Matrix: m} }
func (m *DOK) Type() MatType       { return MatDOK }

func (m *DOK) Set(i, j int, v float64) {
	m.M.Set(i, j, v)
	m.csr = nil
}

func (m *DOK) Add(i, j int, v float64) {
	m.M.Set(i, j, m.M.At(i, j)+v)
	m.csr = nil
}

func (m *DOK) Zero() {
	nr, nc := m.M.Dims()
	m.M = sparse.NewDOK(nr, nc)
	m.csr = nil
}

func (m *DOK) ToCSR() *sparse.CSR {
	if m.csr == nil {
		m.csr = m.M.ToCSR()
	}
	return m.csr
}

// RawMatrix returns the compressed row storage of the current contents.
func (m *DOK) RawMatrix() *blas.SparseMatrix { return m.ToCSR().RawMatrix() }

func (m *DOK) DoNonZero(fn func(i, j int, v float64)) {
	var (
		raw = m.RawMatrix()
	)
	for i := 0; i < raw.I; i++ {
		for k := raw.Indptr[i]; k < raw.Indptr[i+1]; k++ {
			fn(i, raw.Ind[k], raw.Data[k])
		}
	}
}

func (m *DOK) MulVecTo(dst, x []float64) {
	var (
		raw = m.RawMatrix()
	)
	for i := 0; i < raw.I; i++ {
		var sum float64
		for k := raw.Indptr[i]; k < raw.Indptr[i+1]; k++ {
			sum += raw.Data[k] * x[raw.Ind[k]]
		}
		dst[i] = sum
	}
}

// NNZ is the number of stored entries.
func (m *DOK) NNZ() int { return m.M.NNZ() }
