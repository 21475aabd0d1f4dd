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
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/florianwechsung/ssc/InputParameters"
	"github.com/florianwechsung/ssc/fem"
	"github.com/florianwechsung/ssc/partition"
	"github.com/florianwechsung/ssc/patch"
	"github.com/florianwechsung/ssc/readfiles"
	"github.com/florianwechsung/ssc/sf"
	"github.com/florianwechsung/ssc/topology"
)

// RunConfig is everything a subcommand needs to assemble the distributed problem.
type RunConfig struct {
	GridFile string
	Input    *InputParameters.InputParameters
	Options  *viper.Viper // pc_patch_* overrides
	Verbose  bool
}

// Problem is one rank's share of the Poisson problem and its patch preconditioner.
type Problem struct {
	Space *fem.Space
	Op    *fem.GlobalOperator
	PC    *patch.PC
}

func loadMesh(rc *RunConfig) (m *topology.Mesh, err error) {
	ip := rc.Input
	switch {
	case rc.GridFile != "":
		return readfiles.ReadSU2(rc.GridFile, rc.Verbose)
	case ip.Delaunay > 0:
		return topology.NewDelaunayTriMesh(ip.Delaunay)
	case ip.Dimension == 3:
		return topology.NewStructuredTetMesh(ip.GridSize), nil
	default:
		return topology.NewStructuredTriMesh(ip.GridSize, ip.GridSize), nil
	}
}

func distribute(rc *RunConfig, m *topology.Mesh) (lms []*partition.LocalMesh, err error) {
	var (
		ip   = rc.Input
		cfg  = partition.DefaultConfig(ip.Ranks)
		eToP []int
	)
	if cfg.Strategy, err = partition.NewStrategy(ip.Partitioner); err != nil {
		return
	}
	cfg.Verbose = rc.Verbose
	if eToP, err = partition.PartitionCells(m, cfg); err != nil {
		return
	}
	return partition.Distribute(m, eToP, ip.Ranks)
}

// NewProblem assembles the problem on one rank and sets up its preconditioner. Collective.
func NewProblem(rc *RunConfig, lm *partition.LocalMesh, c *sf.Comm) (pb *Problem, err error) {
	var (
		ip = rc.Input
		lp *fem.Laplace
		bc []int
	)
	pb = &Problem{}
	if pb.Space, err = fem.NewSpace(lm, c, ip.PolynomialOrder, ip.BlockSize); err != nil {
		return
	}
	markers, err := ip.DirichletMarkers()
	switch {
	case err != nil:
		return
	case ip.ClampExterior():
		bc, err = pb.Space.DirichletNodes()
	case len(markers) > 0:
		bc, err = pb.Space.DirichletNodes(markers...)
	case ip.Reaction == 0:
		err = fmt.Errorf("no Dirichlet marker and no reaction term, the operator is singular")
	}
	if err != nil {
		return
	}
	if lp, err = fem.NewLaplace(pb.Space, ip.Reaction); err != nil {
		return
	}
	if pb.Op, err = fem.NewGlobalOperator(lp, bc); err != nil {
		return
	}

	fs := pb.Space
	pb.PC = patch.NewPC(ip.Patch)
	if err = pb.PC.SetFromOptions(rc.Options); err != nil {
		return
	}
	pb.PC.SetPlex(lm.Plex)
	pb.PC.SetDefaultSF(fs.DofSF)
	pb.PC.SetCellNumbering(fs.CellNumbering)
	pb.PC.SetDiscretisationInfo(fs.DofSection, fs.BS, fs.NodesPerCell, fs.CellNodes, bc)
	pb.PC.SetComputeOperator(lp)
	if err = pb.PC.SetUp(); err != nil {
		return
	}
	err = pb.PC.SetUpOnBlocks()
	return
}

// runConfig reads the input file and applies the flags the user changed on top of it.
func runConfig(cmd *cobra.Command) (rc *RunConfig, err error) {
	var (
		flags = cmd.Flags()
		ip    = InputParameters.New()
	)
	rc = &RunConfig{Input: ip, Options: viper.GetViper(), Verbose: viper.GetBool("verbose")}
	if rc.GridFile, err = flags.GetString("gridFile"); err != nil {
		return
	}
	if icFile, _ := flags.GetString("inputConditionsFile"); icFile != "" {
		var data []byte
		if data, err = os.ReadFile(icFile); err != nil {
			return
		}
		if err = ip.Parse(data); err != nil {
			return nil, fmt.Errorf("%s: %w", icFile, err)
		}
	}
	if flags.Changed("grid") {
		ip.GridSize, _ = flags.GetInt("grid")
	}
	if flags.Changed("delaunay") {
		ip.Delaunay, _ = flags.GetInt("delaunay")
	}
	if flags.Changed("ranks") {
		ip.Ranks, _ = flags.GetInt("ranks")
	}
	if flags.Changed("degree") {
		ip.PolynomialOrder, _ = flags.GetInt("degree")
	}
	if flags.Changed("dim") {
		ip.Dimension, _ = flags.GetInt("dim")
	}
	if flags.Changed("bs") {
		ip.BlockSize, _ = flags.GetInt("bs")
	}
	if flags.Changed("partitioner") {
		ip.Partitioner, _ = flags.GetString("partitioner")
	}
	for _, key := range patchKeys {
		if err = viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			return
		}
	}
	err = ip.Validate()
	return
}

var patchKeys = []string{
	patch.KeySaveOperators, patch.KeySubMatType, patch.KeySubKSPType, patch.KeyWorkers, patch.KeyStrict,
}

func addProblemFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringP("gridFile", "F", "", "Grid file to read in SU2 (.su2) format, a structured grid otherwise")
	flags.StringP("inputConditionsFile", "I", "", "YAML file for input parameters like:\n\t- PolynomialOrder\n\t- BCs\n\t- Patch")
	flags.IntP("grid", "n", 8, "divisions per side of the structured grid")
	flags.Int("delaunay", 0, "divisions per side of an unstructured Delaunay unit square, needs -tags triangle")
	flags.IntP("ranks", "r", 1, "number of ranks the mesh is distributed over")
	flags.IntP("degree", "p", 1, "Lagrange polynomial degree, 1 or 2")
	flags.Int("dim", 2, "dimension of the structured grid, 2 or 3")
	flags.Int("bs", 1, "scalar components per node")
	flags.String("partitioner", string(partition.StrategyBlock), "cell partitioner: block, roundrobin or metis")
	flags.Bool(patch.KeySaveOperators, false, "keep the patch operators between applications")
	flags.String(patch.KeySubMatType, "dense", "patch matrix storage: dense or dok")
	flags.String(patch.KeySubKSPType, "lu", "patch solver: lu, sparselu or cg")
	flags.Int(patch.KeyWorkers, 1, "goroutines sharing the patch solves, 0 for one per CPU")
	flags.Bool(patch.KeyStrict, false, "fail when a patch solve fails")
}
