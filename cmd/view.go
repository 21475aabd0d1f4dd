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

	"github.com/florianwechsung/ssc/sf"
)

// ViewCmd represents the view command
var ViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Set up the patch preconditioner and print its view on every rank",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var rc *RunConfig
		if rc, err = runConfig(cmd); err != nil {
			return
		}
		return RunView(rc, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(ViewCmd)
	addProblemFlags(ViewCmd)
}

// RunView writes the preconditioner of each rank in rank order.
func RunView(rc *RunConfig, w io.Writer) (err error) {
	m, err := loadMesh(rc)
	if err != nil {
		return
	}
	lms, err := distribute(rc, m)
	if err != nil {
		return
	}
	return sf.Run(rc.Input.Ranks, func(c *sf.Comm) (err error) {
		var pb *Problem
		if pb, err = NewProblem(rc, lms[c.Rank()], c); err != nil {
			return
		}
		for r := 0; r < c.Size(); r++ {
			if r == c.Rank() {
				fmt.Fprintf(w, "[%d] PC Object: patch, %d local nodes\n", r, pb.Space.NumNodes)
				pb.PC.View(w)
			}
			if err = c.Barrier(); err != nil {
				return
			}
		}
		return
	})
}
