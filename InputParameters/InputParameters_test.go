package InputParameters

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianwechsung/ssc/ksp"
	"github.com/florianwechsung/ssc/utils"
)

func TestParse(t *testing.T) {
	fileInput := []byte(`
Title: Patch test
PolynomialOrder: 2
Reaction: 0.5
Ranks: 3
Partitioner: RoundRobin
BCs:
  left: Dirichlet
  right: wall
  top: natural
Patch:
  SaveOperators: true
  SubMatType: DOK
  SubSolverType: sparselu
  Workers: 4
`)
	ip := New()
	require.NoError(t, ip.Parse(fileInput))
	assert.Equal(t, "Patch test", ip.Title)
	assert.Equal(t, 2, ip.PolynomialOrder)
	assert.Equal(t, 0.5, ip.Reaction)
	assert.Equal(t, 3, ip.Ranks)
	// absent keys keep their defaults
	assert.Equal(t, 1, ip.BlockSize)
	assert.Equal(t, 1.e-8, ip.RTol)
	assert.Equal(t, 500, ip.MaxIterations)

	assert.True(t, ip.Patch.SaveOperators)
	assert.Equal(t, utils.MatDOK, ip.Patch.SubMatType)
	assert.Equal(t, ksp.TypeSparseLU, ip.Patch.SubSolverType)
	assert.Equal(t, 4, ip.Patch.Workers)

	markers, err := ip.DirichletMarkers()
	require.NoError(t, err)
	assert.Equal(t, []string{"left", "right"}, markers)
	assert.False(t, ip.ClampExterior())

	var buf bytes.Buffer
	ip.Fprint(&buf)
	assert.Contains(t, buf.String(), `"Patch test"`)
	assert.Contains(t, buf.String(), "BCs[left] = Dirichlet")
	assert.Contains(t, buf.String(), "sub solver: sparselu")
}

func TestDefaults(t *testing.T) {
	ip := New()
	require.NoError(t, ip.Validate())
	assert.True(t, ip.ClampExterior())
	markers, err := ip.DirichletMarkers()
	require.NoError(t, err)
	assert.Empty(t, markers)
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{
		"PolynomialOrder: 3",
		"BlockSize: 0",
		"Dimension: 3\nPolynomialOrder: 2",
		"Ranks: 0",
		"Reaction: -1",
		"Delaunay: -1",
		"Delaunay: 4\nDimension: 3",
		"Partitioner: scotch",
		"Patch:\n  SubMatType: aij",
		"Patch:\n  SubSolverType: gmres",
		"Patch:\n  Workers: -2",
		"BCs:\n  left: robin",
		"Title: [unterminated",
	} {
		assert.Error(t, New().Parse([]byte(input)), input)
	}
}
