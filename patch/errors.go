package patch

import "errors"

var (
	// ErrTopology marks a mesh point outside its expected stratum or numbering map.
	ErrTopology = errors.New("patch topology inconsistency")
	// ErrCapacity marks a fill pass that produced more entries than its counting pass.
	ErrCapacity = errors.New("patch capacity overflow")
	// ErrConfiguration marks a missing input or a call made in the wrong state.
	ErrConfiguration = errors.New("patch configuration error")
	// ErrRange marks a patch index outside [0, NumPatches).
	ErrRange = errors.New("patch index out of range")
	// ErrSolver is returned by Apply in strict mode when a sub-solve fails.
	ErrSolver = errors.New("patch solve failed")
)
