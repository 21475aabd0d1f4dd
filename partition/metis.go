//go:build metis

package partition

import (
	"fmt"
	"log"

	metis "github.com/notargets/go-metis"

	"github.com/florianwechsung/ssc/topology"
)

func partitionMetis(dm *topology.Plex, cfg Config) (eToP []int, err error) {
	if cfg.Verbose {
		log.Printf("Partitioning mesh with %d elements into %d parts", dm.NumCells(), cfg.NumPartitions)
	}
	xadj, adjncy := dualGraph(dm)

	opts := make([]int32, metis.NoOptions)
	if err = metis.SetDefaultOptions(opts); err != nil {
		return nil, fmt.Errorf("failed to set METIS options: %w", err)
	}
	if cfg.Objective == "cut" {
		opts[metis.OptionObjType] = metis.ObjTypeCut
	} else {
		opts[metis.OptionObjType] = metis.ObjTypeVol
	}
	imbalance := cfg.ImbalanceFactor
	if imbalance <= 1 {
		imbalance = 1.05
	}
	ubvec := []float32{imbalance}

	part, objval, err := metis.PartGraphKwayWeighted(
		xadj, adjncy, nil, nil,
		int32(cfg.NumPartitions), nil, ubvec, opts,
	)
	if err != nil {
		return nil, fmt.Errorf("METIS partitioning failed: %w", err)
	}
	if cfg.Verbose {
		log.Printf("  Objective value: %d", objval)
	}
	eToP = make([]int, len(part))
	for i, p := range part {
		eToP[i] = int(p)
	}
	return
}
