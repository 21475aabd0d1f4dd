//go:build !metis

package partition

import (
	"fmt"

	"github.com/florianwechsung/ssc/topology"
)

func partitionMetis(dm *topology.Plex, cfg Config) ([]int, error) {
	return nil, fmt.Errorf("%s partitioning of %d cells requires building with -tags metis",
		StrategyMetis, dm.NumCells())
}
