package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelaunayPoints(t *testing.T) {
	n := 4
	pts, err := delaunayPoints(n)
	require.NoError(t, err)
	assert.Equal(t, 4*n+(n-1)*(n-1), len(pts))
	var (
		seen     = make(map[[2]float64]bool)
		boundary int
		h        = 1 / float64(n)
	)
	for _, p := range pts {
		assert.False(t, seen[p], "duplicate point %v", p)
		seen[p] = true
		onSide := p[0] == 0 || p[0] == 1 || p[1] == 0 || p[1] == 1
		if onSide {
			boundary++
			continue
		}
		// interior points stay within a quarter cell of their lattice site
		for axis := 0; axis < 2; axis++ {
			site := p[axis] / h
			assert.InDelta(t, 0, site-float64(int(site+0.5)), 0.25+1.e-12)
			assert.True(t, p[axis] > 0 && p[axis] < 1)
		}
	}
	assert.Equal(t, 4*n, boundary)

	again, err := delaunayPoints(n)
	require.NoError(t, err)
	assert.Equal(t, pts, again)

	_, err = delaunayPoints(0)
	assert.Error(t, err)
}

func TestMarkSquareSides(t *testing.T) {
	var (
		m    = NewStructuredTriMesh(3, 2)
		want = make(map[string]int)
	)
	for name, facets := range m.Markers {
		want[name] = len(facets)
	}
	m.Markers = make(map[string][][]int)
	m.markSquareSides()
	for name, n := range want {
		assert.Equal(t, n, len(m.Markers[name]), name)
	}
	dm, err := m.Plex()
	require.NoError(t, err)
	ext := dm.MarkExteriorFacets(LabelExteriorFacets)
	for _, name := range m.MarkerNames() {
		l, err := dm.GetLabel(name)
		require.NoError(t, err)
		for _, f := range l.Points() {
			assert.True(t, ext.HasPoint(f), name)
		}
	}
}
