package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florianwechsung/ssc/InputParameters"
	"github.com/florianwechsung/ssc/patch"
)

func newRunConfig(modify func(ip *InputParameters.InputParameters)) *RunConfig {
	ip := InputParameters.New()
	ip.GridSize = 6
	if modify != nil {
		modify(ip)
	}
	return &RunConfig{Input: ip, Options: viper.New()}
}

func TestRunSolve(t *testing.T) {
	var buf bytes.Buffer
	{ // Test the patch preconditioner beats plain CG on P2, serial and distributed
		rc := newRunConfig(func(ip *InputParameters.InputParameters) { ip.PolynomialOrder = 2 })
		plain, err := RunSolve(rc, false, &buf)
		require.NoError(t, err)
		serial, err := RunSolve(rc, true, &buf)
		require.NoError(t, err)
		assert.Equal(t, 49, serial.Patches)
		assert.Equal(t, 169, serial.Unknowns)
		assert.Less(t, serial.Iterations, plain.Iterations)
		assert.Less(t, serial.Residual, 1.e-6)
		assert.Zero(t, serial.FailedPatches)
		assert.Equal(t, patch.FailedReasonNone, serial.FailedReason)

		rc.Input.Ranks = 3
		dist, err := RunSolve(rc, true, &buf)
		require.NoError(t, err)
		assert.Equal(t, serial.Patches, dist.Patches)
		assert.Equal(t, serial.Unknowns, dist.Unknowns)
		assert.InDelta(t, serial.Iterations, dist.Iterations, 1)
	}
	{ // Test tetrahedra with saved sparse operators
		rc := newRunConfig(func(ip *InputParameters.InputParameters) {
			ip.Dimension, ip.GridSize, ip.Ranks = 3, 2, 2
			ip.Patch.SaveOperators = true
		})
		rc.Options.Set(patch.KeySubMatType, "dok")
		rc.Options.Set(patch.KeySubKSPType, "sparselu")
		res, err := RunSolve(rc, true, &buf)
		require.NoError(t, err)
		assert.Equal(t, 27, res.Patches)
		assert.Less(t, res.Residual, 1.e-6)
	}
	{ // Test a reaction term makes a pure Neumann problem solvable
		rc := newRunConfig(func(ip *InputParameters.InputParameters) {
			ip.BCs = map[string]string{"left": "neumann"}
			ip.Reaction = 1
		})
		_, err := RunSolve(rc, true, &buf)
		require.NoError(t, err)
		rc.Input.Reaction = 0
		_, err = RunSolve(rc, true, &buf)
		assert.Error(t, err)
	}
	{ // Test a monitored solve writes the residual history
		rc := newRunConfig(nil)
		rc.Verbose = true
		buf.Reset()
		_, err := RunSolve(rc, true, &buf)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "   0 KSP residual norm")
	}
}

func TestRunView(t *testing.T) {
	var buf bytes.Buffer
	rc := newRunConfig(func(ip *InputParameters.InputParameters) { ip.Ranks = 2 })
	require.NoError(t, RunView(rc, &buf))
	out := buf.String()
	assert.Contains(t, out, "[0] PC Object: patch")
	assert.Contains(t, out, "[1] PC Object: patch")
	assert.Contains(t, out, "Vertex-patch Additive Schwarz")
	assert.Contains(t, out, "KSP type: lu")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("[0]")), bytes.Index(buf.Bytes(), []byte("[1]")))
}

func TestSolveCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"solve", "--grid", "4", "--ranks", "2",
		"--" + patch.KeySaveOperators, "--" + patch.KeySubKSPType, "cg"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), "25 patches")
	assert.True(t, viper.GetBool(patch.KeySaveOperators))

	rootCmd.SetArgs([]string{"solve", "--" + patch.KeySubMatType, "aij"})
	assert.Error(t, rootCmd.Execute())
	rootCmd.SetArgs([]string{"solve", "--degree", "3"})
	assert.Error(t, rootCmd.Execute())
	rootCmd.SetArgs([]string{"solve", "--profile", "gpu"})
	assert.Error(t, rootCmd.Execute())
}
