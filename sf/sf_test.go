package sf

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSFSelf(t *testing.T) {
	s := New(Self())
	require.NoError(t, s.SetGraph(3, nil, []Node{{0, 0}, {0, 1}, {0, 2}, {0, 0}, {0, 1}}))
	assert.Equal(t, 5, s.NumLeaves())
	assert.Equal(t, 5, s.LeafSize())
	{ // Test broadcast fans root values out to every leaf
		leaf := make([]float64, 5)
		require.NoError(t, Bcast(s, []float64{1, 2, 3}, leaf, 1, OpReplace))
		assert.Equal(t, []float64{1, 2, 3, 1, 2}, leaf)
	}
	{ // Test sum reduction accumulates onto existing root values
		root := []float64{100, 0, 0}
		require.NoError(t, Reduce(s, []float64{1, 2, 3, 4, 5}, root, 1, OpSum))
		assert.Equal(t, []float64{105, 7, 3}, root)
	}
	{ // Test blocked transfers
		leaf := make([]int, 10)
		require.NoError(t, Bcast(s, []int{1, -1, 2, -2, 3, -3}, leaf, 2, OpReplace))
		assert.Equal(t, []int{1, -1, 2, -2, 3, -3, 1, -1, 2, -2}, leaf)
	}
	{ // Test short buffers are rejected
		err := Bcast(s, []float64{1, 2}, make([]float64, 5), 1, OpReplace)
		assert.True(t, errors.Is(err, ErrSize))
		err = Reduce(s, make([]float64, 4), make([]float64, 3), 1, OpSum)
		assert.True(t, errors.Is(err, ErrSize))
	}
}

func TestSFSparseLeaves(t *testing.T) {
	s := New(Self())
	require.NoError(t, s.SetGraph(2, []int{4, 1}, []Node{{0, 1}, {0, 0}}))
	assert.Equal(t, 5, s.LeafSize())
	leaf := []float64{-1, -1, -1, -1, -1}
	require.NoError(t, Bcast(s, []float64{7, 8}, leaf, 1, OpReplace))
	assert.Equal(t, []float64{-1, 7, -1, -1, 8}, leaf)
}

func TestSFSetGraphErrors(t *testing.T) {
	s := New(Self())
	assert.True(t, errors.Is(s.SetGraph(-1, nil, nil), ErrGraph))
	assert.True(t, errors.Is(s.SetGraph(2, []int{0}, []Node{{0, 0}, {0, 1}}), ErrGraph))
	assert.True(t, errors.Is(s.SetGraph(2, []int{0, 0}, []Node{{0, 0}, {0, 1}}), ErrGraph))
	assert.True(t, errors.Is(s.SetGraph(2, nil, []Node{{1, 0}}), ErrGraph))
	// root index checked against the root space at setup
	require.NoError(t, s.SetGraph(2, nil, []Node{{0, 2}}))
	assert.True(t, errors.Is(s.SetUp(), ErrGraph))
}

func TestSFTwoRanks(t *testing.T) {
	err := Run(2, func(c *Comm) error {
		s := New(c)
		remotes := []Node{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
		if err := s.SetGraph(2, nil, remotes); err != nil {
			return err
		}
		r := float64(c.Rank())
		leaf := make([]float64, 4)
		if err := Bcast(s, []float64{10 * r, 10*r + 1}, leaf, 1, OpReplace); err != nil {
			return err
		}
		if !assert.Equal(t, []float64{0, 1, 10, 11}, leaf) {
			return fmt.Errorf("rank %d bcast mismatch", c.Rank())
		}
		root := make([]float64, 2)
		if err := Reduce(s, []float64{1, 1, 1, 1}, root, 1, OpSum); err != nil {
			return err
		}
		if !assert.Equal(t, []float64{2, 2}, root) {
			return fmt.Errorf("rank %d reduce mismatch", c.Rank())
		}
		return nil
	})
	require.NoError(t, err)
}

func TestCompose(t *testing.T) {
	err := Run(2, func(c *Comm) error {
		var (
			rank  = c.Rank()
			other = 1 - rank
		)
		// a: one owned root per rank, local space holds the own root then the other's
		a := New(c)
		if err := a.SetGraph(1, nil, []Node{{rank, 0}, {other, 0}}); err != nil {
			return err
		}
		// b: gathers local entries [1, 0, 1] into a patch space
		b := New(c)
		if err := b.SetGraph(2, nil, []Node{{rank, 1}, {rank, 0}, {rank, 1}}); err != nil {
			return err
		}
		ab, err := Compose(a, b)
		if err != nil {
			return err
		}
		leaf := make([]float64, 3)
		if err = Bcast(ab, []float64{float64(rank + 1)}, leaf, 1, OpReplace); err != nil {
			return err
		}
		o, m := float64(other+1), float64(rank+1)
		if !assert.Equal(t, []float64{o, m, o}, leaf) {
			return fmt.Errorf("rank %d compose mismatch", rank)
		}
		root := make([]float64, 1)
		if err = Reduce(ab, []float64{1, 1, 1}, root, 1, OpSum); err != nil {
			return err
		}
		// each rank sends one to its own root and two to the other's
		if !assert.Equal(t, []float64{3}, root) {
			return fmt.Errorf("rank %d composed reduce mismatch", rank)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestComposeDropsUnattached(t *testing.T) {
	a := New(Self())
	require.NoError(t, a.SetGraph(1, []int{1}, []Node{{0, 0}}))
	b := New(Self())
	require.NoError(t, b.SetGraph(2, nil, []Node{{0, 0}, {0, 1}}))
	ab, err := Compose(a, b)
	require.NoError(t, err)
	_, leaves, remotes := ab.Graph()
	assert.Equal(t, []int{1}, leaves)
	assert.Equal(t, []Node{{0, 0}}, remotes)
}

func TestAllreduce(t *testing.T) {
	err := Run(3, func(c *Comm) error {
		r := float64(c.Rank())
		sum, err := c.AllreduceSum([]float64{1, r})
		if err != nil {
			return err
		}
		if !assert.Equal(t, []float64{3, 3}, sum) {
			return fmt.Errorf("sum mismatch")
		}
		mx, err := Allreduce(c, []int{c.Rank()}, OpMax)
		if err != nil {
			return err
		}
		mn, err := Allreduce(c, []int{c.Rank()}, OpMin)
		if err != nil {
			return err
		}
		if !assert.Equal(t, []int{2}, mx) || !assert.Equal(t, []int{0}, mn) {
			return fmt.Errorf("max/min mismatch")
		}
		return c.Barrier()
	})
	require.NoError(t, err)
}

func TestRunAbort(t *testing.T) {
	failure := errors.New("rank failed")
	err := Run(3, func(c *Comm) error {
		if c.Rank() == 1 {
			return failure
		}
		// never completes without rank 1
		return c.Barrier()
	})
	assert.True(t, errors.Is(err, failure))
}
