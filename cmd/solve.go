/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/florianwechsung/ssc/ksp"
	"github.com/florianwechsung/ssc/patch"
	"github.com/florianwechsung/ssc/sf"
	"github.com/florianwechsung/ssc/utils"
)

type SolveResult struct {
	Unknowns      int
	Patches       int
	FailedPatches int
	Iterations    int
	Residual      float64
	FailedReason  patch.FailedReason
}

// SolveCmd represents the solve command
var SolveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve a Poisson problem with patch preconditioned conjugate gradients",
	Long: `
Solves -lap(u) + c u = f with homogeneous Dirichlet conditions, the mesh distributed over
in-process ranks, using conjugate gradients preconditioned by vertex patch additive Schwarz.`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var (
			rc  *RunConfig
			res SolveResult
		)
		if rc, err = runConfig(cmd); err != nil {
			return
		}
		noPC, _ := cmd.Flags().GetBool("no-pc")
		w := cmd.OutOrStdout()
		if rc.Verbose {
			rc.Input.Fprint(w)
			fmt.Fprintf(w, "BLAS backend: %s\n", utils.BLASBackend)
		}
		if res, err = RunSolve(rc, !noPC, w); err != nil {
			return
		}
		fmt.Fprintf(w, "%d unknowns, %d patches: %d iterations, residual %8.3e\n",
			res.Unknowns, res.Patches, res.Iterations, res.Residual)
		if res.FailedPatches > 0 {
			fmt.Fprintf(w, "%d patch solves failed (%s)\n", res.FailedPatches, res.FailedReason)
		}
		if rc.Verbose {
			fmt.Fprintln(w, utils.MemUsage())
		}
		return
	},
}

func init() {
	rootCmd.AddCommand(SolveCmd)
	addProblemFlags(SolveCmd)
	SolveCmd.Flags().Bool("no-pc", false, "run plain conjugate gradients for comparison")
}

// RunSolve assembles the problem and runs the outer solve on every rank. The monitor, when
// verbose, and the result come from rank 0.
func RunSolve(rc *RunConfig, usePC bool, w io.Writer) (res SolveResult, err error) {
	m, err := loadMesh(rc)
	if err != nil {
		return
	}
	lms, err := distribute(rc, m)
	if err != nil {
		return
	}
	err = sf.Run(rc.Input.Ranks, func(c *sf.Comm) (err error) {
		var (
			pb     *Problem
			b      []float64
			M      ksp.Operator
			its    int
			rnorm  float64
			counts []int
			ip     = rc.Input
			source = ip.Source
			solver = ksp.NewPCG(c)
		)
		if pb, err = NewProblem(rc, lms[c.Rank()], c); err != nil {
			return
		}
		if b, err = pb.Op.LoadVector(func(x []float64) float64 { return source }); err != nil {
			return
		}
		if usePC {
			M = ksp.OperatorFunc(pb.PC.Apply)
		}
		solver.RTol, solver.MaxIt = ip.RTol, ip.MaxIterations
		if rc.Verbose && c.Rank() == 0 {
			solver.Monitor = func(it int, rnorm float64) {
				fmt.Fprintf(w, "%4d KSP residual norm %12.6e\n", it, rnorm)
			}
		}
		x := make([]float64, len(b))
		if its, rnorm, err = solver.Solve(pb.Op, M, b, x); err != nil {
			return
		}
		if counts, err = sf.Allreduce(c, []int{pb.PC.NumPatches(), pb.PC.FailedPatches()}, sf.OpSum); err != nil {
			return
		}
		if c.Rank() == 0 {
			res = SolveResult{
				Unknowns:      pb.Space.NumGlobal * pb.Space.BS,
				Patches:       counts[0],
				FailedPatches: counts[1],
				Iterations:    its,
				Residual:      rnorm,
				FailedReason:  pb.PC.FailedReason(),
			}
		}
		return
	})
	return
}
