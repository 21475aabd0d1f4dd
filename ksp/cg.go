package ksp

import (
	"fmt"
	"math"

	"github.com/vladimir-ch/iterative"
	"gonum.org/v1/gonum/floats"

	"github.com/florianwechsung/ssc/sf"
)

// CG is an unpreconditioned conjugate gradient patch solver.
// MaxIt of zero allows twice the system size.
type CG struct {
	boundary
	RTol       float64
	MaxIt      int
	n          int
	r          []float64
	method     iterative.CG
	its        int
	indefinite bool // the current solve met p'Ap <= 0
	pAp        float64
}

func NewCG() *CG {
	return &CG{RTol: 1.e-12}
}

func (s *CG) Type() Type { return TypeCG }

func (s *CG) SetUp() (err error) {
	var n int
	if n, err = s.check(); err != nil {
		return
	}
	if !(s.RTol > 1.e-15 && s.RTol < 1) {
		return fmt.Errorf("cg rtol must lie in (1e-15, 1), have %g", s.RTol)
	}
	if !s.stale && s.r != nil {
		return
	}
	s.n = n
	s.r = make([]float64, n)
	s.stale = false
	return
}

// matvec applies the clamped operator to v, which is zero on boundary rows.
func (s *CG) matvec(dst, v []float64) {
	s.A.MulVecTo(dst, v)
	for i, bc := range s.mask {
		if bc {
			dst[i] = v[i]
		}
	}
	if pAp := floats.Dot(v, dst); pAp <= 0 && !s.indefinite {
		s.indefinite, s.pAp = true, pAp
	}
}

func (s *CG) Solve(b, x []float64) (err error) {
	if err = s.SetUp(); err != nil {
		return
	}
	if err = s.checkVectors(s.n, b, x); err != nil {
		return
	}
	var (
		settings = iterative.Settings{Tolerance: s.RTol, MaxIterations: s.MaxIt}
		res      iterative.Result
	)
	if settings.MaxIterations <= 0 {
		settings.MaxIterations = 2*s.n + 10
	}
	s.rhs(s.r, b[:s.n])
	s.indefinite = false
	res, err = iterative.LinearSolve(iterative.MatrixOps{MatVec: s.matvec}, s.r, &s.method, settings)
	s.its = res.Stats.Iterations
	copy(x[:s.n], res.X)
	switch {
	case s.indefinite:
		return fmt.Errorf("%w: operator is not positive definite, p'Ap = %g", ErrNotConverged, s.pAp)
	case err != nil:
		return fmt.Errorf("%w: %v, %d iterations, residual %g", ErrNotConverged, err, s.its, res.Stats.ResidualNorm)
	}
	return
}

func (s *CG) Iterations() int { return s.its }

func (s *CG) Reset() {
	s.boundary.reset()
	s.r, s.n, s.its = nil, 0, 0
}

func (s *CG) Describe() string {
	return s.describe(TypeCG) + fmt.Sprintf(", rtol=%g, PC type: none", s.RTol)
}

// Operator applies a linear map, y = A x.
type Operator interface {
	Apply(x, y []float64) error
}

type OperatorFunc func(x, y []float64) error

func (f OperatorFunc) Apply(x, y []float64) error { return f(x, y) }

// PCG is the outer preconditioned conjugate gradient method. With a Comm the vectors are
// the owned part of a distributed vector and inner products are reduced over all ranks.
type PCG struct {
	RTol, ATol float64
	MaxIt      int
	Comm       *sf.Comm
	Monitor    func(it int, rnorm float64)
}

func NewPCG(comm *sf.Comm) *PCG {
	return &PCG{RTol: 1.e-8, ATol: 1.e-50, MaxIt: 500, Comm: comm}
}

func (s *PCG) dot(a, b []float64) (d float64, err error) {
	d = floats.Dot(a, b)
	if s.Comm == nil || s.Comm.Size() == 1 {
		return
	}
	var res []float64
	if res, err = s.Comm.AllreduceSum([]float64{d}); err != nil {
		return
	}
	return res[0], nil
}

// Solve iterates from the initial guess in x. M may be nil for no preconditioning.
func (s *PCG) Solve(A, M Operator, b, x []float64) (its int, rnorm float64, err error) {
	var (
		n  = len(b)
		r  = make([]float64, n)
		z  = make([]float64, n)
		p  = make([]float64, n)
		ap = make([]float64, n)
		bb float64
		rz float64
	)
	if len(x) != n {
		return 0, 0, fmt.Errorf("%w: solution has length %d, rhs %d", ErrDimension, len(x), n)
	}
	if M == nil {
		M = OperatorFunc(func(in, out []float64) error { copy(out, in); return nil })
	}
	if err = A.Apply(x, ap); err != nil {
		return
	}
	floats.SubTo(r, b, ap)
	if bb, err = s.dot(b, b); err != nil {
		return
	}
	if rnorm, err = s.norm(r); err != nil {
		return
	}
	tol := math.Max(s.RTol*math.Sqrt(bb), s.ATol)
	if s.Monitor != nil {
		s.Monitor(0, rnorm)
	}
	if rnorm <= tol {
		return
	}
	if err = M.Apply(r, z); err != nil {
		return
	}
	copy(p, z)
	if rz, err = s.dot(r, z); err != nil {
		return
	}
	for its = 1; its <= s.MaxIt; its++ {
		if err = A.Apply(p, ap); err != nil {
			return
		}
		var pAp float64
		if pAp, err = s.dot(p, ap); err != nil {
			return
		}
		if pAp <= 0 {
			return its, rnorm, fmt.Errorf("%w: indefinite operator, p'Ap = %g", ErrNotConverged, pAp)
		}
		alpha := rz / pAp
		floats.AddScaled(x, alpha, p)
		floats.AddScaled(r, -alpha, ap)
		if rnorm, err = s.norm(r); err != nil {
			return
		}
		if s.Monitor != nil {
			s.Monitor(its, rnorm)
		}
		if rnorm <= tol {
			return
		}
		if err = M.Apply(r, z); err != nil {
			return
		}
		var rzNew float64
		if rzNew, err = s.dot(r, z); err != nil {
			return
		}
		floats.AddScaledTo(p, z, rzNew/rz, p)
		rz = rzNew
	}
	its = s.MaxIt
	err = fmt.Errorf("%w: %d iterations, residual %g > %g", ErrNotConverged, its, rnorm, tol)
	return
}

func (s *PCG) norm(v []float64) (float64, error) {
	d, err := s.dot(v, v)
	return math.Sqrt(d), err
}
