package ksp

import (
	"fmt"

	"github.com/edp1096/sparse"
)

// SparseLU factors the clamped operator with the Sparse 1.3 direct solver.
// Its vectors are 1-based, so element 0 of the right hand side is unused.
type SparseLU struct {
	boundary
	matrix *sparse.Matrix
	n      int
	rhsBuf []float64
}

func (s *SparseLU) Type() Type { return TypeSparseLU }

func (s *SparseLU) newConfig() *sparse.Configuration {
	return &sparse.Configuration{
		Real:                    true,
		Complex:                 false,
		SeparatedComplexVectors: false,
		Expandable:              true,
		Translate:               false,
		ModifiedNodal:           false,
		TiesMultiplier:          5,
		PrinterWidth:            140,
		Annotate:                0,
	}
}

func (s *SparseLU) SetUp() (err error) {
	var n int
	if n, err = s.check(); err != nil {
		return
	}
	if !s.stale && s.matrix != nil {
		return
	}
	s.destroyMatrix()
	s.n = n
	if n == 0 {
		s.stale = false
		return
	}
	var m *sparse.Matrix
	if m, err = sparse.Create(int64(n), s.newConfig()); err != nil {
		return fmt.Errorf("creating sparse matrix: %w", err)
	}
	s.eliminated(func(i, j int, v float64) {
		m.GetElement(int64(i+1), int64(j+1)).Real += v
	})
	if err = m.Factor(); err != nil {
		m.Destroy()
		return fmt.Errorf("%w: sparse factorization failed: %v", ErrSingular, err)
	}
	s.matrix = m
	s.rhsBuf = make([]float64, n+1)
	s.stale = false
	return
}

func (s *SparseLU) Solve(b, x []float64) (err error) {
	if err = s.SetUp(); err != nil {
		return
	}
	if s.n == 0 {
		return
	}
	if err = s.checkVectors(s.n, b, x); err != nil {
		return
	}
	s.rhs(s.rhsBuf[1:], b[:s.n])
	var sol []float64
	if sol, err = s.matrix.Solve(s.rhsBuf); err != nil {
		return fmt.Errorf("sparse solve failed: %w", err)
	}
	copy(x[:s.n], sol[1:s.n+1])
	for i, bc := range s.mask {
		if bc {
			x[i] = 0
		}
	}
	return
}

func (s *SparseLU) destroyMatrix() {
	if s.matrix != nil {
		s.matrix.Destroy()
		s.matrix = nil
	}
}

func (s *SparseLU) Reset() {
	s.destroyMatrix()
	s.boundary.reset()
	s.rhsBuf, s.n = nil, 0
}

func (s *SparseLU) Describe() string {
	return s.describe(TypeSparseLU) + ", PC type: lu (sparse, Markowitz pivoting)"
}
