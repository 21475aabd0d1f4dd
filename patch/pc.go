package patch

import (
	"errors"
	"fmt"
	"io"
	"log"
	"runtime"
	"sync/atomic"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/florianwechsung/ssc/ksp"
	"github.com/florianwechsung/ssc/section"
	"github.com/florianwechsung/ssc/sf"
	"github.com/florianwechsung/ssc/topology"
	"github.com/florianwechsung/ssc/utils"
)

// OperatorBuilder fills the matrix of one patch. cells holds compact cell numbers and dofs
// the patch-local dof of each (cell, slot). The matrix is zero on entry and is blocked by
// the block size: local dof d owns rows and columns d*bs .. d*bs+bs-1.
type OperatorBuilder interface {
	BuildOperator(m utils.PatchMatrix, cells []int, dofs []int) error
}

type OperatorBuilderFunc func(m utils.PatchMatrix, cells []int, dofs []int) error

func (f OperatorBuilderFunc) BuildOperator(m utils.PatchMatrix, cells []int, dofs []int) error {
	return f(m, cells, dofs)
}

type FailedReason uint8

const (
	FailedReasonNone FailedReason = iota
	FailedReasonSubPC
)

func (r FailedReason) String() string {
	switch r {
	case FailedReasonNone:
		return "none"
	case FailedReasonSubPC:
		return "sub pc failed"
	}
	return fmt.Sprintf("FailedReason(%d)", uint8(r))
}

// Patch is a read-only view of one patch. Its slices alias the preconditioner storage
// and are invalidated by Reset.
type Patch struct {
	Vertex int
	Cells  []int // compact cell numbers
	Facets []int // patch boundary facets
	Dofs   []int // local dof of each (cell, slot)
	Gtol   []int // local dof -> global dof
	BCs    []int // sorted local dofs clamped to zero
	Offset int   // first local dof in the concatenated patch vectors
}

// PC is the vertex-patch additive Schwarz preconditioner.
//
// The inputs are registered with the setters, then SetUp builds the patches and Apply
// computes y = sum_i R_i^T A_i^-1 R_i x. SetUp and Apply are collective over the
// communicator of the default SF.
type PC struct {
	opts Options

	// registered inputs
	dm            *topology.Plex
	defaultSF     *sf.SF
	cellNumbering *section.Section
	dofSection    *section.Section
	bs            int
	nodesPerCell  int
	cellNodeMap   []int
	bcNodes       []int
	builder       OperatorBuilder

	// built by SetUp
	setupCalled   bool
	cellCounts    *section.Section
	facetCounts   *section.Section
	facets        []int
	dofs          *DofMap
	bcCounts      *section.Section
	bcs           []int
	patchVertex   []int
	globalToLocal *sf.SF
	localX        []float64
	localY        []float64
	patchX        [][]float64 // windows into localX
	patchY        [][]float64 // windows into localY
	ksp           []ksp.Solver
	mat           []utils.PatchMatrix
	failed        FailedReason
	nfailed       atomic.Int64
}

func NewPC(opts Options) *PC {
	return &PC{opts: opts}
}

func (pc *PC) Options() Options { return pc.opts }

// SetFromOptions reads the option keys from v. Changing the sub-solver type only affects
// solvers created by a later SetUp.
func (pc *PC) SetFromOptions(v *viper.Viper) error { return pc.opts.SetFromOptions(v) }

func (pc *PC) SetPlex(dm *topology.Plex) { pc.dm = dm }

// SetSaveOperators takes effect at the next SetUp.
func (pc *PC) SetSaveOperators(flg bool) { pc.opts.SaveOperators = flg }

func (pc *PC) SetDefaultSF(s *sf.SF) { pc.defaultSF = s }

func (pc *PC) SetCellNumbering(cellNumbering *section.Section) { pc.cellNumbering = cellNumbering }

// SetDiscretisationInfo registers the dof layout. dofSection maps mesh points to the global
// dofs they carry, cellNodeMap holds nodesPerCell global dofs per compact cell and bcNodes
// the global dofs under a Dirichlet condition. The slices are not copied.
func (pc *PC) SetDiscretisationInfo(dofSection *section.Section, bs, nodesPerCell int,
	cellNodeMap []int, bcNodes []int) {
	pc.dofSection = dofSection
	pc.bs = bs
	pc.nodesPerCell = nodesPerCell
	pc.cellNodeMap = cellNodeMap
	pc.bcNodes = bcNodes
}

func (pc *PC) SetSubMatType(mt utils.MatType) { pc.opts.SubMatType = mt }

func (pc *PC) SetComputeOperator(b OperatorBuilder) { pc.builder = b }

func (pc *PC) NumPatches() int { return len(pc.patchVertex) }

func (pc *PC) IsSetUp() bool { return pc.setupCalled }

// FailedReason reports whether a patch solve failed during the last Apply.
func (pc *PC) FailedReason() FailedReason { return pc.failed }

// FailedPatches is the number of patch solves that failed during the last Apply.
func (pc *PC) FailedPatches() int { return int(pc.nfailed.Load()) }

func (pc *PC) checkInputs() (err error) {
	switch {
	case pc.dm == nil:
		err = fmt.Errorf("%w: no Plex set", ErrConfiguration)
	case pc.defaultSF == nil:
		err = fmt.Errorf("%w: no default SF set", ErrConfiguration)
	case pc.cellNumbering == nil:
		err = fmt.Errorf("%w: no cell numbering set", ErrConfiguration)
	case pc.dofSection == nil || pc.cellNodeMap == nil:
		err = fmt.Errorf("%w: no discretisation info set", ErrConfiguration)
	case pc.bs < 1 || pc.nodesPerCell < 1:
		err = fmt.Errorf("%w: block size %d and %d nodes per cell", ErrConfiguration, pc.bs, pc.nodesPerCell)
	}
	return
}

// SetUp builds the patches on the first call, and on every call recomputes the saved
// operators. Any failure resets the preconditioner.
func (pc *PC) SetUp() (err error) {
	defer func() {
		if err != nil {
			pc.Reset()
		}
	}()
	if !pc.setupCalled {
		if err = pc.checkInputs(); err != nil {
			return
		}
		if err = pc.setUpPatches(); err != nil {
			return
		}
		pc.setupCalled = true
	}
	return pc.setUpOperators()
}

func (pc *PC) setUpPatches() (err error) {
	var cells []int
	if pc.cellCounts, cells, err = CreateCellPatches(pc.dm); err != nil {
		return
	}
	vStart, vEnd := pc.cellCounts.Chart()
	for v := vStart; v < vEnd; v++ {
		if n, _ := pc.cellCounts.Dof(v); n > 0 {
			pc.patchVertex = append(pc.patchVertex, v)
		}
	}
	if pc.facetCounts, pc.facets, err = CreateCellPatchFacets(pc.dm, pc.cellCounts, cells); err != nil {
		return
	}
	if pc.dofs, err = CreateCellPatchDiscretisationInfo(pc.cellCounts, cells, pc.cellNumbering,
		pc.nodesPerCell, pc.cellNodeMap); err != nil {
		return
	}
	if pc.bcCounts, pc.bcs, err = CreateCellPatchBCs(pc.dm, pc.bcNodes, pc.facetCounts, pc.facets,
		pc.dofs.GtolCounts, pc.dofs.Gtol, pc.dofSection); err != nil {
		return
	}
	if pc.globalToLocal, err = CreateGlobalToLocalSF(pc.defaultSF, pc.dofs.GtolCounts, pc.dofs.Gtol); err != nil {
		return
	}

	var (
		npatch       = len(pc.patchVertex)
		localSize, _ = pc.dofs.GtolCounts.StorageSize()
		bs           = pc.bs
	)
	pc.localX = make([]float64, localSize*bs)
	pc.localY = make([]float64, localSize*bs)
	pc.patchX = make([][]float64, npatch)
	pc.patchY = make([][]float64, npatch)
	pc.ksp = make([]ksp.Solver, npatch)
	for i, v := range pc.patchVertex {
		off, n, _ := pc.dofs.GtolCounts.Range(v)
		if n <= 0 {
			return fmt.Errorf("%w: patch %d of vertex %d has no dofs", ErrCapacity, i, v)
		}
		// capped so that no window can grow into its neighbour
		lo, hi := off*bs, (off+n)*bs
		pc.patchX[i] = pc.localX[lo:hi:hi]
		pc.patchY[i] = pc.localY[lo:hi:hi]
		if pc.ksp[i], err = ksp.New(pc.opts.SubSolverType); err != nil {
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		boff, bn, _ := pc.bcCounts.Range(v)
		rows := make([]int, 0, bn*bs)
		for _, d := range pc.bcs[boff : boff+bn] {
			for comp := 0; comp < bs; comp++ {
				rows = append(rows, d*bs+comp)
			}
		}
		pc.ksp[i].SetBoundary(rows)
	}
	if pc.opts.Verbose {
		log.Printf("patch: %d patches, %d patch dofs, %d boundary facets, %d patch bcs\n",
			npatch, localSize, len(pc.facets), len(pc.bcs))
	}
	return
}

func (pc *PC) patchSize(i int) int { return len(pc.patchX[i]) }

func (pc *PC) matType() utils.MatType {
	if pc.opts.SubMatType == "" {
		return utils.MatDense
	}
	return pc.opts.SubMatType
}

func (pc *PC) setUpOperators() (err error) {
	if !pc.opts.SaveOperators {
		pc.dropOperators()
		return
	}
	if pc.builder == nil {
		return fmt.Errorf("%w: saving operators needs SetComputeOperator", ErrConfiguration)
	}
	if len(pc.mat) != pc.NumPatches() || (len(pc.mat) > 0 && pc.mat[0].Type() != pc.matType()) {
		pc.mat = make([]utils.PatchMatrix, pc.NumPatches())
		for i := range pc.mat {
			n := pc.patchSize(i)
			if pc.mat[i], err = utils.NewPatchMatrix(pc.matType(), n, n); err != nil {
				pc.mat = nil
				return fmt.Errorf("%w: %v", ErrConfiguration, err)
			}
		}
	}
	for i, m := range pc.mat {
		m.Zero()
		if err = pc.ComputeOperator(i, m); err != nil {
			return
		}
		pc.ksp[i].SetOperator(m)
	}
	return
}

func (pc *PC) dropOperators() {
	if pc.mat == nil {
		return
	}
	for i := range pc.mat {
		pc.ksp[i].SetOperator(nil)
	}
	pc.mat = nil
}

// ComputeOperator fills m with the operator of patch i using the registered builder.
func (pc *PC) ComputeOperator(i int, m utils.PatchMatrix) (err error) {
	if pc.builder == nil {
		return fmt.Errorf("%w: SetComputeOperator must be called before the operators are built", ErrConfiguration)
	}
	if i < 0 || i >= pc.NumPatches() {
		return fmt.Errorf("%w: patch %d outside [0, %d)", ErrRange, i, pc.NumPatches())
	}
	v := pc.patchVertex[i]
	off, ncell, _ := pc.cellCounts.Range(v)
	if ncell <= 0 {
		return fmt.Errorf("%w: patch %d has no cells", ErrCapacity, i)
	}
	npc := pc.nodesPerCell
	if err = pc.builder.BuildOperator(m, pc.dofs.Cells[off:off+ncell], pc.dofs.Dofs[off*npc:(off+ncell)*npc]); err != nil {
		return fmt.Errorf("patch %d of vertex %d: %w", i, v, err)
	}
	return
}

// Patch returns the view of patch i.
func (pc *PC) Patch(i int) (p Patch, err error) {
	if !pc.setupCalled {
		return p, fmt.Errorf("%w: not set up", ErrConfiguration)
	}
	if i < 0 || i >= pc.NumPatches() {
		return p, fmt.Errorf("%w: patch %d outside [0, %d)", ErrRange, i, pc.NumPatches())
	}
	var (
		v           = pc.patchVertex[i]
		npc         = pc.nodesPerCell
		coff, cn, _ = pc.cellCounts.Range(v)
		foff, fn, _ = pc.facetCounts.Range(v)
		goff, gn, _ = pc.dofs.GtolCounts.Range(v)
		boff, bn, _ = pc.bcCounts.Range(v)
	)
	p = Patch{
		Vertex: v,
		Cells:  pc.dofs.Cells[coff : coff+cn],
		Facets: pc.facets[foff : foff+fn],
		Dofs:   pc.dofs.Dofs[coff*npc : (coff+cn)*npc],
		Gtol:   pc.dofs.Gtol[goff : goff+gn],
		BCs:    pc.bcs[boff : boff+bn],
		Offset: goff,
	}
	return
}

// Apply computes y from x, both laid out as the roots of the default SF.
func (pc *PC) Apply(x, y []float64) (err error) {
	if !pc.setupCalled {
		return fmt.Errorf("%w: Apply before SetUp", ErrConfiguration)
	}
	if pc.mat == nil && pc.builder == nil {
		return fmt.Errorf("%w: SetComputeOperator must be called before Apply", ErrConfiguration)
	}
	if n := pc.globalToLocal.NumRoots() * pc.bs; len(x) < n || len(y) < n {
		return fmt.Errorf("%w: x has %d entries and y %d, need %d x %d",
			sf.ErrSize, len(x), len(y), pc.globalToLocal.NumRoots(), pc.bs)
	}
	if err = sf.Bcast(pc.globalToLocal, x, pc.localX, pc.bs, sf.OpReplace); err != nil {
		return
	}
	pc.failed = FailedReasonNone
	pc.nfailed.Store(0)
	if err = pc.solvePatches(); err != nil {
		if errors.Is(err, ErrSolver) {
			pc.failed = FailedReasonSubPC
		}
		return
	}
	if pc.nfailed.Load() > 0 {
		pc.failed = FailedReasonSubPC
	}
	for i := range y {
		y[i] = 0
	}
	return sf.Reduce(pc.globalToLocal, pc.localY, y, pc.bs, sf.OpSum)
}

func (pc *PC) workers() (nw int) {
	if nw = pc.opts.Workers; nw <= 0 {
		nw = runtime.NumCPU()
	}
	if nw > pc.NumPatches() {
		nw = pc.NumPatches()
	}
	return max(nw, 1)
}

// solvePatches runs the patch solves. Patches own disjoint windows of the work vectors,
// so the buckets of the partition map are solved concurrently.
func (pc *PC) solvePatches() error {
	var (
		nw = pc.workers()
		pm = utils.NewPartitionMap(nw, pc.NumPatches())
		g  errgroup.Group
	)
	for b := 0; b < nw; b++ {
		kMin, kMax := pm.GetBucketRange(b)
		g.Go(func() error {
			for i := kMin; i < kMax; i++ {
				if err := pc.solvePatch(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (pc *PC) solvePatch(i int) (err error) {
	var (
		solver = pc.ksp[i]
		x, y   = pc.patchX[i], pc.patchY[i]
	)
	if pc.mat == nil {
		var m utils.PatchMatrix
		n := pc.patchSize(i)
		if m, err = utils.NewPatchMatrix(pc.matType(), n, n); err != nil {
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		if err = pc.ComputeOperator(i, m); err != nil {
			return
		}
		solver.SetOperator(m)
		defer solver.SetOperator(nil)
	}
	if err = solver.Solve(x, y); err == nil && utils.IsNan(y) {
		err = fmt.Errorf("solution holds NaN")
	}
	if err != nil {
		pc.nfailed.Add(1)
		if pc.opts.StrictSolves {
			return fmt.Errorf("%w: patch %d of vertex %d: %v", ErrSolver, i, pc.patchVertex[i], err)
		}
		log.Printf("patch: solve on patch %d of vertex %d failed: %v\n", i, pc.patchVertex[i], err)
		for k := range y {
			y[k] = 0
		}
	}
	return nil
}

// SetUpOnBlocks sets up the patch solvers of saved operators, recording a failed set up.
func (pc *PC) SetUpOnBlocks() (err error) {
	if !pc.setupCalled {
		return fmt.Errorf("%w: not set up", ErrConfiguration)
	}
	if pc.mat == nil {
		return
	}
	for i, s := range pc.ksp {
		if serr := s.SetUp(); serr != nil {
			pc.failed = FailedReasonSubPC
			if pc.opts.Verbose {
				log.Printf("patch: set up of patch %d failed: %v\n", i, serr)
			}
		}
	}
	return
}

// Reset releases everything SetUp built. The registered inputs are kept.
func (pc *PC) Reset() {
	for _, s := range pc.ksp {
		if s != nil {
			s.Reset()
		}
	}
	pc.setupCalled = false
	pc.cellCounts, pc.facetCounts, pc.bcCounts = nil, nil, nil
	pc.facets, pc.bcs, pc.dofs = nil, nil, nil
	pc.patchVertex = nil
	pc.globalToLocal = nil
	pc.localX, pc.localY = nil, nil
	pc.patchX, pc.patchY = nil, nil
	pc.ksp, pc.mat = nil, nil
	pc.failed = FailedReasonNone
	pc.nfailed.Store(0)
}

// Destroy resets the preconditioner and drops the registered inputs.
func (pc *PC) Destroy() {
	pc.Reset()
	pc.dm, pc.defaultSF = nil, nil
	pc.cellNumbering, pc.dofSection = nil, nil
	pc.bs, pc.nodesPerCell = 0, 0
	pc.cellNodeMap, pc.bcNodes = nil, nil
	pc.builder = nil
}

func (pc *PC) View(w io.Writer) {
	const tab = "  "
	fmt.Fprintf(w, "%sVertex-patch Additive Schwarz with %d patches\n", tab, pc.NumPatches())
	if !pc.opts.SaveOperators {
		fmt.Fprintf(w, "%sNot saving patch operators (rebuilt every PCApply)\n", tab)
	} else {
		fmt.Fprintf(w, "%sSaving patch operators (rebuilt every PCSetUp)\n", tab)
	}
	fmt.Fprintf(w, "%sDM used to define patches:\n", tab)
	if pc.dm != nil {
		fmt.Fprintf(w, "%s%s%s\n", tab, tab, pc.dm.String())
	} else {
		fmt.Fprintf(w, "%s%sDM not yet set.\n", tab, tab)
	}
	fmt.Fprintf(w, "%sKSP on patches (all same):\n", tab)
	switch {
	case len(pc.ksp) == 0:
		fmt.Fprintf(w, "%s%sKSP not yet set.\n", tab, tab)
	case pc.defaultSF == nil || pc.defaultSF.Comm().Rank() == 0:
		fmt.Fprintf(w, "%s%s%s\n", tab, tab, pc.ksp[0].Describe())
	}
}
