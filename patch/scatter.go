package patch

import (
	"fmt"

	"github.com/florianwechsung/ssc/section"
	"github.com/florianwechsung/ssc/sf"
)

// CreateGlobalToLocalSF composes defaultSF, whose leaves are this rank's global dofs,
// with the gather described by gtol. The leaves of the result are the concatenated patch
// dofs, so one Bcast fills every patch and one Reduce sums every patch back. Collective.
func CreateGlobalToLocalSF(defaultSF *sf.SF, gtolCounts *section.Section, gtol []int) (s *sf.SF, err error) {
	var (
		comm    = defaultSF.Comm()
		nroots  = defaultSF.LeafSize()
		nleaves int
		localSF = sf.New(comm)
	)
	if nleaves, err = gtolCounts.StorageSize(); err != nil {
		return
	}
	if len(gtol) != nleaves {
		return nil, fmt.Errorf("%w: %d gtol entries for storage of %d", ErrCapacity, len(gtol), nleaves)
	}
	remotes := make([]sf.Node, nleaves)
	for i, g := range gtol {
		if g < 0 || g >= nroots {
			return nil, fmt.Errorf("%w: global dof %d outside the %d dofs of the default SF",
				ErrTopology, g, nroots)
		}
		remotes[i] = sf.Node{Rank: comm.Rank(), Index: g}
	}
	if err = localSF.SetGraph(nroots, nil, remotes); err != nil {
		return
	}
	return sf.Compose(defaultSF, localSF)
}
