package ksp

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianwechsung/ssc/sf"
	"github.com/florianwechsung/ssc/utils"
)

func laplace1D(t *testing.T, mt utils.MatType, n int) utils.PatchMatrix {
	A, err := utils.NewPatchMatrix(mt, n, n)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		A.Add(i, i, 2)
		if i > 0 {
			A.Add(i, i-1, -1)
		}
		if i < n-1 {
			A.Add(i, i+1, -1)
		}
	}
	return A
}

func TestPatchSolvers(t *testing.T) {
	for _, kt := range Types {
		for _, mt := range utils.MatTypes {
			name := fmt.Sprintf("%s/%s", kt, mt)
			s, err := New(kt)
			require.NoError(t, err)
			assert.Equal(t, kt, s.Type())
			{ // Test boundary rows are clamped and the interior solved
				s.SetOperator(laplace1D(t, mt, 5))
				s.SetBoundary([]int{0, 4})
				require.NoError(t, s.SetUp(), name)
				b := []float64{7, 1, 1, 1, 7}
				x := make([]float64, 5)
				require.NoError(t, s.Solve(b, x), name)
				assert.InDeltaSlice(t, []float64{0, 1.5, 2, 1.5, 0}, x, 1.e-10, name)
			}
			{ // Test changing the boundary refactors
				s.SetBoundary([]int{0})
				b := []float64{0, 0, 0, 0, 1}
				x := make([]float64, 5)
				require.NoError(t, s.Solve(b, x), name)
				// the discrete solution is linear, x_i = i/5
				assert.InDeltaSlice(t, []float64{0, 0.2, 0.4, 0.6, 0.8}, x, 1.e-10, name)
			}
			{ // Test short vectors are rejected
				err = s.Solve([]float64{1}, make([]float64, 5))
				assert.True(t, errors.Is(err, ErrDimension), name)
			}
			{ // Test reset drops the operator
				s.Reset()
				assert.Nil(t, s.Operator())
				err = s.Solve(make([]float64, 5), make([]float64, 5))
				assert.True(t, errors.Is(err, ErrNoOperator), name)
			}
			assert.Contains(t, s.Describe(), string(kt))
		}
	}
}

func TestSingularOperators(t *testing.T) {
	for _, kt := range []Type{TypeLU, TypeSparseLU} {
		s, err := New(kt)
		require.NoError(t, err)
		A := utils.NewDenseMatrix(2, 2, []float64{1, 1, 1, 1})
		s.SetOperator(A)
		assert.True(t, errors.Is(s.SetUp(), ErrSingular), kt)
	}
	{ // Test CG detects an indefinite operator
		s := NewCG()
		s.SetOperator(utils.NewDenseMatrix(2, 2, []float64{-1, 0, 0, -1}))
		err := s.Solve([]float64{1, 1}, make([]float64, 2))
		assert.True(t, errors.Is(err, ErrNotConverged))
	}
	{ // Test a boundary row outside the operator
		s := &LU{}
		s.SetOperator(utils.NewDenseMatrix(2, 2, []float64{1, 0, 0, 1}))
		s.SetBoundary([]int{3})
		assert.True(t, errors.Is(s.SetUp(), ErrDimension))
	}
}

func TestCGSettings(t *testing.T) {
	var (
		A    = laplace1D(t, utils.MatDense, 6)
		rows = []int{0, 5}
		b    = []float64{3, 1, 2, 3, 2, 3}
		want = make([]float64, 6)
	)
	lu := &LU{}
	lu.SetOperator(A)
	lu.SetBoundary(rows)
	require.NoError(t, lu.Solve(b, want))

	cg := NewCG()
	cg.SetOperator(A)
	cg.SetBoundary(rows)
	x := make([]float64, 6)
	require.NoError(t, cg.Solve(b, x))
	assert.InDeltaSlice(t, want, x, 1.e-10)
	// four interior unknowns, so CG is exact after at most four steps up to rounding
	assert.Positive(t, cg.Iterations())
	assert.LessOrEqual(t, cg.Iterations(), 5)
	{ // Test the iteration limit
		cg.MaxIt = 1
		err := cg.Solve(b, x)
		assert.True(t, errors.Is(err, ErrNotConverged))
		assert.Equal(t, 1, cg.Iterations())
		cg.MaxIt = 0
	}
	{ // Test a tolerance outside (0, 1) is rejected
		cg.RTol = 0
		assert.Error(t, cg.SetUp())
		cg.RTol = 1
		assert.Error(t, cg.Solve(b, x))
	}
}

func TestNewType(t *testing.T) {
	for name, want := range map[string]Type{"": TypeLU, "preonly": TypeLU, "LU": TypeLU,
		"sparselu": TypeSparseLU, " cg ": TypeCG} {
		kt, err := NewType(name)
		require.NoError(t, err)
		assert.Equal(t, want, kt)
	}
	_, err := NewType("gmres")
	assert.Error(t, err)
}

func TestPCG(t *testing.T) {
	var (
		n = 20
		A = laplace1D(t, utils.MatDOK, n)
		b = make([]float64, n)
	)
	for i := range b {
		b[i] = 1
	}
	op := OperatorFunc(func(x, y []float64) error { A.MulVecTo(y, x); return nil })
	{ // Test unpreconditioned CG converges within n iterations
		x := make([]float64, n)
		its, rnorm, err := NewPCG(nil).Solve(op, nil, b, x)
		require.NoError(t, err)
		assert.LessOrEqual(t, its, n)
		assert.Less(t, rnorm, 1.e-6)
		y := make([]float64, n)
		A.MulVecTo(y, x)
		assert.InDeltaSlice(t, b, y, 1.e-6)
	}
	{ // Test an exact preconditioner converges in one iteration
		lu := &LU{}
		lu.SetOperator(A)
		exact := OperatorFunc(lu.Solve)
		x := make([]float64, n)
		its, _, err := NewPCG(nil).Solve(op, exact, b, x)
		require.NoError(t, err)
		assert.Equal(t, 1, its)
	}
	{ // Test iteration limit
		pcg := NewPCG(nil)
		pcg.MaxIt = 2
		_, _, err := pcg.Solve(op, nil, b, make([]float64, n))
		assert.True(t, errors.Is(err, ErrNotConverged))
	}
}

func TestPCGDistributed(t *testing.T) {
	err := sf.Run(2, func(c *sf.Comm) error {
		// each rank owns three entries of diag(1, 2, 3, 4, 5, 6)
		var (
			d = []float64{float64(3*c.Rank() + 1), float64(3*c.Rank() + 2), float64(3*c.Rank() + 3)}
			b = []float64{1, 1, 1}
			x = make([]float64, 3)
		)
		op := OperatorFunc(func(in, out []float64) error {
			for i := range in {
				out[i] = d[i] * in[i]
			}
			return nil
		})
		its, _, err := NewPCG(c).Solve(op, nil, b, x)
		if err != nil {
			return err
		}
		// CG terminates after at most as many steps as distinct eigenvalues
		if !assert.LessOrEqual(t, its, 6) || !assert.InDeltaSlice(t, []float64{1 / d[0], 1 / d[1], 1 / d[2]}, x, 1.e-8) {
			return fmt.Errorf("rank %d mismatch", c.Rank())
		}
		return nil
	})
	require.NoError(t, err)
}
