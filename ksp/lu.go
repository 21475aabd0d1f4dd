package ksp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LU factors a dense copy of the clamped operator.
type LU struct {
	boundary
	lu  *mat.LU
	n   int
	buf []float64
}

func (s *LU) Type() Type { return TypeLU }

func (s *LU) SetUp() (err error) {
	var n int
	if n, err = s.check(); err != nil {
		return
	}
	if !s.stale && s.lu != nil {
		return
	}
	s.n = n
	s.lu = nil
	if n == 0 {
		s.stale = false
		return
	}
	A := mat.NewDense(n, n, nil)
	s.eliminated(func(i, j int, v float64) { A.Set(i, j, A.At(i, j)+v) })
	lu := &mat.LU{}
	lu.Factorize(A)
	if math.IsInf(lu.Cond(), 1) {
		return fmt.Errorf("%w: LU of %d x %d patch operator", ErrSingular, n, n)
	}
	s.lu = lu
	s.buf = make([]float64, n)
	s.stale = false
	return
}

func (s *LU) Solve(b, x []float64) (err error) {
	if err = s.SetUp(); err != nil {
		return
	}
	if s.n == 0 {
		return
	}
	if err = s.checkVectors(s.n, b, x); err != nil {
		return
	}
	s.rhs(s.buf, b)
	dst := mat.NewVecDense(s.n, x[:s.n])
	if err = s.lu.SolveVecTo(dst, false, mat.NewVecDense(s.n, s.buf)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return fmt.Errorf("%w: %v", ErrSingular, err)
		}
		// ill conditioned, the solution is still usable
		err = nil
	}
	for i, bc := range s.mask {
		if bc {
			x[i] = 0
		}
	}
	return
}

func (s *LU) Reset() {
	s.boundary.reset()
	s.lu, s.buf, s.n = nil, nil, 0
}

func (s *LU) Describe() string {
	return s.describe(TypeLU) + ", PC type: lu (dense, partial pivoting)"
}
