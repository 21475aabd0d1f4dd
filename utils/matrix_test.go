package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPatchMatrix(t *testing.T) {
	var (
		vals = [][3]float64{{0, 0, 4}, {0, 1, -1}, {1, 0, -1}, {1, 1, 4}, {1, 2, -1}, {2, 1, -1}, {2, 2, 4}}
		x    = []float64{1, 2, 3}
		want = []float64{2, 4, 10}
	)
	for _, mt := range MatTypes {
		m, err := NewPatchMatrix(mt, 3, 3)
		require.NoError(t, err)
		assert.Equal(t, mt, m.Type())
		for _, v := range vals {
			m.Add(int(v[0]), int(v[1]), v[2]/2)
			m.Add(int(v[0]), int(v[1]), v[2]/2)
		}
		{ // Test assembly and read back
			var count int
			m.DoNonZero(func(i, j int, v float64) {
				count++
				assert.Equal(t, m.At(i, j), v)
			})
			assert.Equal(t, len(vals), count)
			assert.True(t, mat.Equal(m, m.T()))
		}
		{ // Test matvec
			dst := make([]float64, 3)
			m.MulVecTo(dst, x)
			assert.InDeltaSlice(t, want, dst, 1.e-14)
		}
		{ // Test zeroing and writes after reads
			m.Zero()
			assert.Equal(t, 0., m.At(1, 1))
			m.Set(2, 0, 5)
			dst := make([]float64, 3)
			m.MulVecTo(dst, x)
			assert.Equal(t, []float64{0, 0, 5}, dst)
		}
	}
	{ // Test type parsing
		mt, err := NewMatType(" DOK")
		require.NoError(t, err)
		assert.Equal(t, MatDOK, mt)
		mt, err = NewMatType("")
		require.NoError(t, err)
		assert.Equal(t, MatDense, mt)
		_, err = NewMatType("baij")
		assert.Error(t, err)
		_, err = NewPatchMatrix("baij", 2, 2)
		assert.Error(t, err)
	}
	{ // Test NaN detection
		d := NewDenseMatrix(1, 2, []float64{1, 2})
		assert.False(t, IsNan(d))
		d.Set(0, 1, math.NaN())
		assert.True(t, IsNan(d))
		assert.Panics(t, func() { NewDenseMatrix(2, 2, []float64{1}) })
	}
}
