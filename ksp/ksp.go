// Package ksp holds the linear solvers: direct and iterative patch solvers that
// clamp a set of boundary rows to homogeneous Dirichlet values, and the outer
// preconditioned conjugate gradient method.
package ksp

import (
	"errors"
	"fmt"
	"strings"

	"github.com/florianwechsung/ssc/utils"
)

var (
	ErrNoOperator   = errors.New("solver has no operator")
	ErrSingular     = errors.New("operator is singular")
	ErrNotConverged = errors.New("iteration did not converge")
	ErrDimension    = errors.New("dimension mismatch")
)

type Type string

const (
	TypeLU       Type = "lu"
	TypeSparseLU Type = "sparselu"
	TypeCG       Type = "cg"
)

var Types = []Type{TypeLU, TypeSparseLU, TypeCG}

func NewType(name string) (t Type, err error) {
	t = Type(strings.ToLower(strings.TrimSpace(name)))
	switch t {
	case TypeLU, TypeSparseLU, TypeCG:
	case "", "preonly":
		t = TypeLU
	default:
		err = fmt.Errorf("unknown solver type %q, have %v", name, Types)
	}
	return
}

// Solver solves one patch system A x = b with the boundary rows of x clamped to zero.
// The operator seen by the method has the boundary rows and columns replaced by the identity.
type Solver interface {
	SetBoundary(rows []int)
	SetOperator(A utils.PatchMatrix)
	Operator() utils.PatchMatrix
	SetUp() error
	Solve(b, x []float64) error
	Reset()
	Type() Type
	Describe() string
}

func New(t Type) (s Solver, err error) {
	switch t {
	case TypeLU, "":
		s = &LU{}
	case TypeSparseLU:
		s = &SparseLU{}
	case TypeCG:
		s = NewCG()
	default:
		err = fmt.Errorf("unable to create solver of type %q", t)
	}
	return
}

// boundary carries the operator and clamped rows common to all patch solvers.
type boundary struct {
	A     utils.PatchMatrix
	rows  []int
	mask  []bool
	stale bool
}

func (bd *boundary) SetBoundary(rows []int) {
	bd.rows = rows
	bd.mask = nil
	bd.stale = true
}

func (bd *boundary) SetOperator(A utils.PatchMatrix) {
	bd.A = A
	bd.mask = nil
	bd.stale = true
}

func (bd *boundary) Operator() utils.PatchMatrix { return bd.A }

func (bd *boundary) reset() {
	bd.A, bd.rows, bd.mask = nil, nil, nil
	bd.stale = true
}

// check validates the operator and builds the boundary mask, returning the system size.
func (bd *boundary) check() (n int, err error) {
	if bd.A == nil {
		return 0, ErrNoOperator
	}
	nr, nc := bd.A.Dims()
	if nr != nc {
		return 0, fmt.Errorf("%w: operator is %d x %d", ErrDimension, nr, nc)
	}
	n = nr
	if bd.mask == nil {
		bd.mask = make([]bool, n)
		for _, r := range bd.rows {
			if r < 0 || r >= n {
				return 0, fmt.Errorf("%w: boundary row %d outside operator of size %d", ErrDimension, r, n)
			}
			bd.mask[r] = true
		}
	}
	return
}

// eliminated visits the entries of the clamped operator.
func (bd *boundary) eliminated(fn func(i, j int, v float64)) {
	bd.A.DoNonZero(func(i, j int, v float64) {
		if bd.mask[i] || bd.mask[j] || v == 0 {
			return
		}
		fn(i, j, v)
	})
	for i, bc := range bd.mask {
		if bc {
			fn(i, i, 1)
		}
	}
}

// rhs copies b into dst with the boundary rows zeroed.
func (bd *boundary) rhs(dst, b []float64) {
	copy(dst, b)
	for i, bc := range bd.mask {
		if bc {
			dst[i] = 0
		}
	}
}

func (bd *boundary) checkVectors(n int, b, x []float64) error {
	if len(b) < n || len(x) < n {
		return fmt.Errorf("%w: vectors of length %d and %d for system of size %d", ErrDimension, len(b), len(x), n)
	}
	return nil
}

func (bd *boundary) describe(t Type) string {
	n := 0
	if bd.A != nil {
		n, _ = bd.A.Dims()
	}
	mt := "none"
	if bd.A != nil {
		mt = string(bd.A.Type())
	}
	return fmt.Sprintf("KSP type: %s, operator %d x %d (%s), %d boundary rows", t, n, n, mt, len(bd.rows))
}
