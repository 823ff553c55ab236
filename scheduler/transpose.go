// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"github.com/gomlx/fuser/backends"
	"github.com/gomlx/fuser/fusion"
	"github.com/gomlx/fuser/types/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Tunables of the transpose schedule. A 32x32 tile staged through shared
// memory keeps both the read and the write side of a transpose coalesced;
// 128 threads and 4-wide vector accesses cover the tile in 2 unrolled steps.
const (
	tileSize        = 32
	threadsPerBlock = 128
	vectorWidth     = 4
)

// ScheduleTranspose schedules a fusion whose data movement is dominated by
// transposes, and returns the launch geometry for the scheduled fusion.
//
// The fusion's inputs and outputs are grouped by the equivalence class of
// their innermost axis: views inside one group can share fully coalesced
// global accesses, while data crossing between the two largest groups is
// staged through shared-memory tiles so that both sides stay coalesced. The
// schedule:
//
//  1. caches all inputs and outputs, placing the caches of the second
//     group's boundary views in shared memory;
//  2. tiles a reference of the first group tileSize x tileSize over the two
//     groups' innermost axes, parallelizes the merged outer loop over
//     blocks, and propagates that tiling to the whole DAG;
//  3. swizzles the shared tiles (written along one tile axis, read along
//     the other) so both directions spread over memory banks, and
//     flattens their interiors;
//  4. schedules the tile interior of a second-group reference with its own
//     innermost axis fastest-varying (vectorized, then threads, then
//     unroll) and propagates it to the second group and its caches;
//  5. re-schedules the tile interior of the first-group reference the same
//     way but untransposed, and propagates it to the rest of the DAG;
//  6. inlines everything as deeply as possible.
//
// Fusions without a transpose (a single group, or nothing of rank >= 2)
// fall back to a flat point-wise schedule.
//
// The sample inputs provide the concrete sizes: they are bound to the
// fusion's symbolic extents both to size the launch geometry and to rank
// the groups.
func ScheduleTranspose(f *fusion.Fusion, sampleInputs []*tensors.Tensor) (backends.LaunchParams, error) {
	bindings, err := f.BindInputs(sampleInputs)
	if err != nil {
		return backends.LaunchParams{}, errors.WithMessage(err, "ScheduleTranspose")
	}
	if len(f.Outputs()) == 0 {
		return backends.LaunchParams{}, errors.New("ScheduleTranspose: fusion has no outputs")
	}

	boundary := boundaryViews(f)
	maxRank := 0
	for _, tv := range boundary {
		maxRank = max(maxRank, tv.RootRank())
	}

	// Cache global accesses before anything is scheduled: all later
	// transform propagation must already see the caches.
	inputCaches := make(map[*fusion.TensorView]*fusion.TensorView)
	for _, in := range f.Inputs() {
		if len(in.Uses()) > 0 {
			inputCaches[in] = in.CacheAfter()
		}
	}
	outputCaches := make(map[*fusion.TensorView]*fusion.TensorView)
	for _, out := range f.Outputs() {
		if out.Definition() != nil {
			outputCaches[out] = out.CacheBefore()
		}
	}

	s := &transposeScheduler{
		f:            f,
		bindings:     bindings,
		classes:      newAxisClasses(f),
		inputCaches:  inputCaches,
		outputCaches: outputCaches,
	}
	groups := s.groupBoundary(boundary)
	if len(groups) < 2 || maxRank < 2 {
		klog.V(1).Infof("ScheduleTranspose: no transposed group pair, using point-wise schedule")
		s.schedulePointwise()
		return s.launchParams(), nil
	}
	if err := s.scheduleTiled(boundary, groups); err != nil {
		return backends.LaunchParams{}, err
	}
	return s.launchParams(), nil
}

type transposeScheduler struct {
	f            *fusion.Fusion
	bindings     map[string]int
	classes      *axisClasses
	inputCaches  map[*fusion.TensorView]*fusion.TensorView
	outputCaches map[*fusion.TensorView]*fusion.TensorView
}

// boundaryGroup is the set of fusion inputs/outputs sharing one innermost
// axis equivalence class: they can share coalesced global accesses.
type boundaryGroup struct {
	class   *fusion.IterDomain
	members []*fusion.TensorView
	// size is the largest member's element count, used to rank groups.
	size int
}

func boundaryViews(f *fusion.Fusion) []*fusion.TensorView {
	seen := make(map[*fusion.TensorView]bool)
	var result []*fusion.TensorView
	for _, tv := range f.Inputs() {
		if !seen[tv] {
			seen[tv] = true
			result = append(result, tv)
		}
	}
	for _, tv := range f.Outputs() {
		if !seen[tv] {
			seen[tv] = true
			result = append(result, tv)
		}
	}
	return result
}

// groupBoundary partitions the boundary views by the class of their
// innermost non-broadcast axis, in first-appearance order. Views with no
// such axis (scalars, all-broadcast) join no group.
func (s *transposeScheduler) groupBoundary(boundary []*fusion.TensorView) []*boundaryGroup {
	var groups []*boundaryGroup
	byClass := make(map[*fusion.IterDomain]*boundaryGroup)
	for _, tv := range boundary {
		class := s.innermostClass(tv)
		if class == nil {
			continue
		}
		group, found := byClass[class]
		if !found {
			group = &boundaryGroup{class: class}
			byClass[class] = group
			groups = append(groups, group)
		}
		group.members = append(group.members, tv)
		group.size = max(group.size, s.viewSize(tv))
	}
	return groups
}

// innermostClass returns the equivalence class of tv's innermost
// non-broadcast root axis, or nil if there is none.
func (s *transposeScheduler) innermostClass(tv *fusion.TensorView) *fusion.IterDomain {
	root := tv.RootDomain()
	for axis := len(root) - 1; axis >= 0; axis-- {
		if !root[axis].IsBroadcast() {
			return s.classes.find(root[axis])
		}
	}
	return nil
}

func (s *transposeScheduler) viewSize(tv *fusion.TensorView) int {
	size := 1
	for _, axis := range tv.RootDomain() {
		size *= axis.Extent().Evaluate(s.bindings)
	}
	return size
}

// scheduleTiled is the main path: two (or more) groups, staged through
// shared-memory tiles.
func (s *transposeScheduler) scheduleTiled(boundary []*fusion.TensorView, groups []*boundaryGroup) error {
	f := s.f

	// Rank groups by size, keeping first-appearance order among ties.
	// Groups beyond the top two keep coalesced accesses on only one side;
	// they follow the first group's schedule.
	group1 := groups[0]
	for _, g := range groups[1:] {
		if g.size > group1.size {
			group1 = g
		}
	}
	var group2 *boundaryGroup
	for _, g := range groups {
		if g == group1 {
			continue
		}
		if group2 == nil || g.size > group2.size {
			group2 = g
		}
	}

	allClasses := s.boundaryClasses(boundary)
	ref1, err := s.findReference(group1, allClasses)
	if err != nil {
		return err
	}
	ref2, err := s.findReference(group2, allClasses)
	if err != nil {
		return err
	}
	klog.V(1).Infof("ScheduleTranspose: group1 ref %s, group2 ref %s", ref1.Name(), ref2.Name())

	// The boundary views crossing through the second group are staged in
	// shared memory: written with the first group's thread mapping and read
	// with the second's (or vice versa), which is what keeps both global
	// sides coalesced.
	group2Members := make(map[*fusion.TensorView]bool, len(group2.members))
	var group2InputCaches, group2OutputCaches, group2GlobalAdjacent []*fusion.TensorView
	for _, m := range group2.members {
		group2Members[m] = true
		if cache, ok := s.inputCaches[m]; ok {
			cache.SetMemoryType(fusion.MemoryTypeShared)
			group2InputCaches = append(group2InputCaches, cache)
			group2GlobalAdjacent = append(group2GlobalAdjacent, cache)
		}
		if cache, ok := s.outputCaches[m]; ok {
			cache.SetMemoryType(fusion.MemoryTypeShared)
			group2OutputCaches = append(group2OutputCaches, cache)
			group2GlobalAdjacent = append(group2GlobalAdjacent, m)
		}
	}

	// Step 1: make tileSize x tileSize tiles over the two groups' innermost
	// axes on the first reference, parallelize the merged outer loops over
	// blocks, and propagate to the entire DAG.
	s.tile(ref1, group2.class, group1.class)
	NewTransformPropagator(ref1).PropagateFrom(nil)
	ParallelizeAllLike(ref1, nil)

	// The shared tiles are scheduled by hand while their two tile axes still
	// exist: a transpose swizzle keeps the tile bank-conflict free when one
	// side writes it row-wise and the other reads it column-wise, and the
	// interior is flattened to keep whichever side touches global memory
	// coalesced. The later propagation passes recompute the same structure
	// and therefore leave these views (and their swizzle) alone.
	for _, cache := range group2InputCaches {
		if !s.hasTile(cache) {
			continue
		}
		cache.Swizzle(fusion.SwizzleTypeTranspose, -2, -1)
		s.tileInterior(cache, true)
		cache.Parallelize(-1, fusion.ParallelTypeVectorize)
		cache.Parallelize(-2, fusion.ParallelTypeTIDx)
		cache.Parallelize(-3, fusion.ParallelTypeUnroll)
	}
	for _, cache := range group2OutputCaches {
		if !s.hasTile(cache) {
			continue
		}
		cache.Swizzle(fusion.SwizzleTypeTranspose, -2, -1)
		s.tileInterior(cache, false)
		cache.Parallelize(-2, fusion.ParallelTypeTIDx)
	}

	// Step 2: schedule the tile interior of the second group, transposed so
	// its own innermost axis is fastest-varying. The propagation may borrow
	// views outside the group to reach disconnected members; those are
	// re-scheduled in step 3. The first reference must not be borrowed.
	if ref2.MemoryType() != fusion.MemoryTypeShared {
		s.scheduleTileInterior(ref2, true)
	}
	NewTransformPropagator(ref2).PropagateFrom(NewSetSelector(f.ViewsExcept(ref1)...))
	ParallelizeAllLike(ref2, group2GlobalAdjacent, fusion.ParallelTypeTIDx)
	ParallelizeAllLike(ref2, group2GlobalAdjacent, fusion.ParallelTypeVectorize, fusion.ParallelTypeUnroll)

	// Step 3: schedule the tile interior of the first group, untransposed,
	// and propagate to everything except the second group's global side.
	s.scheduleTileInterior(ref1, false)
	excluded := append(append([]*fusion.TensorView(nil), group2.members...), group2InputCaches...)
	included := f.ViewsExcept(excluded...)
	NewTransformPropagator(ref1).PropagateFrom(NewSetSelector(included...))
	ParallelizeAllLike(ref1, included, fusion.ParallelTypeTIDx)
	var vecTargets []*fusion.TensorView
	for _, in := range f.Inputs() {
		if cache, ok := s.inputCaches[in]; ok && !group2Members[in] {
			vecTargets = append(vecTargets, cache)
		}
	}
	for _, out := range f.Outputs() {
		if !group2Members[out] {
			vecTargets = append(vecTargets, out)
		}
	}
	ParallelizeAllLike(ref1, vecTargets, fusion.ParallelTypeVectorize, fusion.ParallelTypeUnroll)

	// Steps 2 and 3 rebuilt the leaf domains of most views, dropping the
	// block/unswitch roles assigned in step 1; restore them on whichever
	// structure each view ended up with.
	ParallelizeAllLike(ref1, nil, fusion.ParallelTypeBIDx, fusion.ParallelTypeUnswitch)
	ParallelizeAllLike(ref2, nil, fusion.ParallelTypeBIDx, fusion.ParallelTypeUnswitch)

	InlineMost(f)
	return nil
}

// boundaryClasses is the set of equivalence classes of every non-broadcast
// root axis of the boundary views. A valid reference must cover them all.
func (s *transposeScheduler) boundaryClasses(boundary []*fusion.TensorView) map[*fusion.IterDomain]bool {
	all := make(map[*fusion.IterDomain]bool)
	for _, tv := range boundary {
		for _, axis := range tv.RootDomain() {
			if !axis.IsBroadcast() {
				all[s.classes.find(axis)] = true
			}
		}
	}
	return all
}

// findReference picks the group's reference: the first member whose root
// domain covers every boundary axis class, so transform propagation from it
// can reach every axis of the DAG. Output members are preferred (they are
// directly schedulable); an input member is represented by its cache.
func (s *transposeScheduler) findReference(group *boundaryGroup, allClasses map[*fusion.IterDomain]bool) (*fusion.TensorView, error) {
	var fallback *fusion.TensorView
	for _, m := range group.members {
		if !s.covers(m, allClasses) {
			continue
		}
		if s.f.IsOutput(m) {
			return m, nil
		}
		if fallback == nil {
			if cache, ok := s.inputCaches[m]; ok {
				fallback = cache
			}
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, errors.Errorf(
		"ScheduleTranspose: cannot find a reference tensor for the group with innermost axis %s: "+
			"no input/output in the group sees every axis of the fusion", group.class)
}

func (s *transposeScheduler) covers(tv *fusion.TensorView, allClasses map[*fusion.IterDomain]bool) bool {
	seen := make(map[*fusion.IterDomain]bool, tv.RootRank())
	for _, axis := range tv.RootDomain() {
		seen[s.classes.find(axis)] = true
	}
	for class := range allClasses {
		if !seen[class] {
			return false
		}
	}
	return true
}

// rootPosOfClass finds the innermost root axis of tv belonging to class.
func (s *transposeScheduler) rootPosOfClass(tv *fusion.TensorView, class *fusion.IterDomain) int {
	root := tv.RootDomain()
	for axis := len(root) - 1; axis >= 0; axis-- {
		if s.classes.find(root[axis]) == class {
			return axis
		}
	}
	return -1
}

// tile reshapes ref's (untransformed) leaf domain into
//
//	[merged outer loops (BIDx), 1 (Unswitch), tileSize(class2), tileSize(class1)]
//
// where class1/class2 are the two groups' innermost axis classes as they
// appear in ref's root domain.
func (s *transposeScheduler) tile(ref *fusion.TensorView, class2, class1 *fusion.IterDomain) {
	rank := ref.RootRank()
	pos2 := s.rootPosOfClass(ref, class2)
	pos1 := s.rootPosOfClass(ref, class1)

	// Move the two tiled axes innermost: [..., a2, a1].
	ref.Reorder(map[int]int{pos2: rank - 2, pos1: rank - 1})
	ref.Split(rank-1, tileSize)
	ref.Split(rank-2, tileSize)
	// [..., a2/32, 32(a2), a1/32, 32(a1)] -> [..., a2/32, a1/32, 32(a2), 32(a1)]
	ref.Reorder(map[int]int{rank - 1: rank, rank: rank - 1})
	for i := 0; i < rank-1; i++ {
		ref.Merge(0, 1)
	}
	ref.Split(0, 1)
	// [merged, 1, 32(a2), 32(a1)]
	ref.Parallelize(0, fusion.ParallelTypeBIDx)
	ref.Parallelize(1, fusion.ParallelTypeUnswitch)
}

// hasTile reports whether tv's two innermost leaf axes are a square
// tileSize x tileSize tile. Views missing one of the tiled axis classes come
// out of step 1 without the full tile.
func (s *transposeScheduler) hasTile(tv *fusion.TensorView) bool {
	if tv.NumDims() < 2 {
		return false
	}
	tile := fusion.ConstExtent(tileSize)
	return tv.Axis(-1).Extent().Equivalent(tile) && tv.Axis(-2).Extent().Equivalent(tile)
}

// tileInterior flattens tv's trailing 32x32 tile into [outer, threads,
// vector] axes. With swap, the tile is transposed first so the other axis is
// fastest-varying.
func (s *transposeScheduler) tileInterior(tv *fusion.TensorView, swap bool) {
	if swap {
		tv.Reorder(map[int]int{-1: -2, -2: -1})
	}
	tv.Merge(-2, -1)
	tv.Split(-1, vectorWidth)
	tv.Split(-2, threadsPerBlock)
}

// scheduleTileInterior flattens ref's trailing 32x32 tile into
// [Unroll, TIDx, Vectorize] loops. With swap, the tile is transposed first
// so the other axis is fastest-varying.
func (s *transposeScheduler) scheduleTileInterior(ref *fusion.TensorView, swap bool) {
	s.tileInterior(ref, swap)
	ref.Parallelize(-1, fusion.ParallelTypeVectorize)
	ref.Parallelize(-2, fusion.ParallelTypeTIDx)
	ref.Parallelize(-3, fusion.ParallelTypeUnroll)
}

// schedulePointwise is the fallback for fusions with nothing to transpose:
// flatten everything and stride it over blocks, threads and vector lanes.
func (s *transposeScheduler) schedulePointwise() {
	f := s.f
	ref := f.Outputs()[0]
	if ref.RootRank() > 0 {
		for i := 0; i < ref.RootRank()-1; i++ {
			ref.Merge(0, 1)
		}
		ref.Split(0, vectorWidth)
		ref.Split(0, threadsPerBlock)
		// [n/(tpb*vec), TIDx, Vectorize]
		ref.Parallelize(0, fusion.ParallelTypeBIDx)
		ref.Parallelize(1, fusion.ParallelTypeTIDx)
		ref.Parallelize(2, fusion.ParallelTypeVectorize)
	}
	NewTransformPropagator(ref).PropagateFrom(nil)
	ParallelizeAllLike(ref, nil, fusion.ParallelTypeBIDx, fusion.ParallelTypeTIDx)
	var vecTargets []*fusion.TensorView
	for _, cache := range s.inputCaches {
		vecTargets = append(vecTargets, cache)
	}
	vecTargets = append(vecTargets, f.Outputs()...)
	ParallelizeAllLike(ref, vecTargets, fusion.ParallelTypeVectorize)
	InlineMost(f)
}

// launchParams derives the launch geometry from the scheduled fusion: per
// spatial role the maximum concrete extent over all views, plus the total
// shared memory of all shared-placed views.
func (s *transposeScheduler) launchParams() backends.LaunchParams {
	lp := backends.LaunchParams{GridDim: [3]int{1, 1, 1}, BlockDim: [3]int{1, 1, 1}}
	for _, tv := range s.f.Views() {
		for _, axis := range tv.LeafDomain() {
			role := axis.ParallelType()
			if !role.IsSpatial() {
				continue
			}
			size := axis.Extent().Evaluate(s.bindings)
			switch role {
			case fusion.ParallelTypeBIDx:
				lp.GridDim[0] = max(lp.GridDim[0], size)
			case fusion.ParallelTypeBIDy:
				lp.GridDim[1] = max(lp.GridDim[1], size)
			case fusion.ParallelTypeBIDz:
				lp.GridDim[2] = max(lp.GridDim[2], size)
			case fusion.ParallelTypeTIDx:
				lp.BlockDim[0] = max(lp.BlockDim[0], size)
			case fusion.ParallelTypeTIDy:
				lp.BlockDim[1] = max(lp.BlockDim[1], size)
			}
		}
		if tv.MemoryType() == fusion.MemoryTypeShared {
			elements := 1
			for _, axis := range tv.LeafDomain() {
				if axis.ParallelType().IsBlockDim() {
					continue
				}
				elements *= axis.Extent().Evaluate(s.bindings)
			}
			lp.SmemBytes += elements * int(tv.DType().Memory())
		}
	}
	klog.V(1).Infof("ScheduleTranspose: launch params %s", lp)
	return lp
}

// axisClasses is a union-find over the root axes of every view, joined
// through the root-domain mappings of every expression: two axes in the
// same class iterate the same logical extent.
type axisClasses struct {
	parent map[*fusion.IterDomain]*fusion.IterDomain
}

func newAxisClasses(f *fusion.Fusion) *axisClasses {
	c := &axisClasses{parent: make(map[*fusion.IterDomain]*fusion.IterDomain)}
	for _, expr := range f.Exprs() {
		out := expr.Output()
		for i, in := range expr.Inputs() {
			for outAxis, inAxis := range expr.AxisMap(i) {
				if inAxis >= 0 {
					c.union(in.RootDomain()[inAxis], out.RootDomain()[outAxis])
				}
			}
		}
	}
	return c
}

func (c *axisClasses) find(axis *fusion.IterDomain) *fusion.IterDomain {
	parent, found := c.parent[axis]
	if !found || parent == axis {
		return axis
	}
	root := c.find(parent)
	c.parent[axis] = root
	return root
}

func (c *axisClasses) union(a, b *fusion.IterDomain) {
	rootA, rootB := c.find(a), c.find(b)
	if rootA != rootB {
		c.parent[rootA] = rootB
	}
}
