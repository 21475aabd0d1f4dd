// Package partition assigns mesh cells to ranks and extracts the overlapped local
// meshes each rank works on.
package partition

import (
	"fmt"
	"log"
	"strings"

	"github.com/florianwechsung/ssc/topology"
	"github.com/florianwechsung/ssc/utils"
)

type Strategy string

const (
	StrategyBlock      Strategy = "block"
	StrategyRoundRobin Strategy = "roundrobin"
	StrategyMetis      Strategy = "metis"
)

var Strategies = []Strategy{StrategyBlock, StrategyRoundRobin, StrategyMetis}

func NewStrategy(name string) (st Strategy, err error) {
	st = Strategy(strings.ToLower(strings.TrimSpace(name)))
	switch st {
	case StrategyBlock, StrategyRoundRobin, StrategyMetis:
	case "":
		st = StrategyBlock
	default:
		err = fmt.Errorf("unknown partition strategy %q, have %v", name, Strategies)
	}
	return
}

// Config holds configuration for cell partitioning
type Config struct {
	Strategy        Strategy
	NumPartitions   int
	ImbalanceFactor float32 // METIS only, e.g. 1.05 for 5% imbalance
	Objective       string  // METIS only, "cut" or "vol"
	Verbose         bool
}

func DefaultConfig(nparts int) Config {
	return Config{
		Strategy:        StrategyBlock,
		NumPartitions:   nparts,
		ImbalanceFactor: 1.05,
		Objective:       "vol",
	}
}

// PartitionCells returns the rank of every cell.
func PartitionCells(m *topology.Mesh, cfg Config) (eToP []int, err error) {
	var (
		K = m.NumCells()
		n = cfg.NumPartitions
	)
	if n < 1 {
		return nil, fmt.Errorf("need at least one partition, have %d", n)
	}
	eToP = make([]int, K)
	if n == 1 {
		return
	}
	switch cfg.Strategy {
	case StrategyBlock, "":
		pm := utils.NewPartitionMap(n, K)
		for k := 0; k < K; k++ {
			eToP[k], _, _ = pm.GetBucket(k)
		}
	case StrategyRoundRobin:
		for k := 0; k < K; k++ {
			eToP[k] = k % n
		}
	case StrategyMetis:
		var dm *topology.Plex
		if dm, err = topology.NewPlex(m.Dim, m.EToV, m.NumVertices()); err != nil {
			return
		}
		if eToP, err = partitionMetis(dm, cfg); err != nil {
			return
		}
	default:
		return nil, fmt.Errorf("unknown partition strategy %q", cfg.Strategy)
	}
	if cfg.Verbose {
		if dm, err := topology.NewPlex(m.Dim, m.EToV, m.NumVertices()); err == nil {
			analyzePartition(dm, eToP, n)
		}
	}
	return
}

// dualGraph links cells sharing a facet, in the CSR layout METIS expects.
func dualGraph(dm *topology.Plex) (xadj, adjncy []int32) {
	var (
		cStart, cEnd = dm.HeightStratum(0)
	)
	xadj = make([]int32, cEnd-cStart+1)
	for c := cStart; c < cEnd; c++ {
		cone, _ := dm.Cone(c)
		for _, f := range cone {
			supp, _ := dm.Support(f)
			for _, nbr := range supp {
				if nbr != c {
					adjncy = append(adjncy, int32(nbr-cStart))
				}
			}
		}
		xadj[c-cStart+1] = int32(len(adjncy))
	}
	return
}

func analyzePartition(dm *topology.Plex, eToP []int, nparts int) {
	var (
		load         = make([]int, nparts)
		cutEdges     int
		fStart, fEnd = dm.HeightStratum(1)
	)
	for _, p := range eToP {
		load[p]++
	}
	for f := fStart; f < fEnd; f++ {
		supp, _ := dm.Support(f)
		if len(supp) == 2 && eToP[supp[0]] != eToP[supp[1]] {
			cutEdges++
		}
	}
	minLoad, maxLoad := load[0], load[0]
	for _, l := range load {
		minLoad, maxLoad = min(minLoad, l), max(maxLoad, l)
	}
	avgLoad := float64(len(eToP)) / float64(nparts)
	log.Printf("Partition Analysis:")
	log.Printf("  Cut facets: %d", cutEdges)
	log.Printf("  Load imbalance: %.2f%%", (float64(maxLoad)/avgLoad-1)*100)
	log.Printf("  Load range: [%d, %d], avg: %.1f", minLoad, maxLoad, avgLoad)
}
