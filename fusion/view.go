// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fusion

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// MemoryType is where a tensor view's buffer lives on the device.
type MemoryType int

//go:generate go tool enumer -type=MemoryType -trimprefix=MemoryType -output=gen_memorytype_enumer.go view.go

const (
	MemoryTypeGlobal MemoryType = iota
	MemoryTypeShared
)

// TensorView is a node of the Fusion DAG representing one tensor value.
//
// It carries two domains:
//
//   - The root domain is the original, un-transformed ordered sequence of
//     logical axes, fixed at creation time. It is the anchor for the
//     root-domain mappings connecting a view to the views it derives from.
//   - The leaf domain is the loop nest actually executed: the root domain
//     after all schedule transforms (Split, Merge, Reorder, Swizzle) applied
//     so far. It starts identical to the root domain.
//
// Views are created by operation constructors (see ops.go) and by
// CacheAfter/CacheBefore; they are owned by their Fusion and never destroyed
// while scheduling runs.
type TensorView struct {
	fusion *Fusion
	id     int
	dtype  dtypes.DType

	root []*IterDomain
	leaf []*IterDomain

	// transforms is the record of schedule operations that produced leaf
	// from root, in application order.
	transforms []Transform

	memoryType   MemoryType
	computeAtPos int
	computeWith  *TensorView

	definition *Expr
	uses       []*Expr

	// replayedFrom/replayedLen stamp the last transform propagation applied
	// to this view, used to detect inconsistent replays.
	replayedFrom *TensorView
	replayedLen  int
}

// Fusion that owns this view.
func (tv *TensorView) Fusion() *Fusion { return tv.fusion }

// DType of the tensor's elements.
func (tv *TensorView) DType() dtypes.DType { return tv.dtype }

// Name returns a short identifier, "tv" followed by the view's id within its Fusion.
func (tv *TensorView) Name() string { return fmt.Sprintf("tv%d", tv.id) }

// RootDomain returns the view's root domain. The returned slice is owned by
// the view, don't modify it.
func (tv *TensorView) RootDomain() []*IterDomain { return tv.root }

// LeafDomain returns the view's current leaf domain -- the loop nest that
// will be executed. The returned slice is owned by the view, don't modify it.
func (tv *TensorView) LeafDomain() []*IterDomain { return tv.leaf }

// RootRank is the number of logical axes of the tensor.
func (tv *TensorView) RootRank() int { return len(tv.root) }

// NumDims is the number of axes of the current leaf domain.
func (tv *TensorView) NumDims() int { return len(tv.leaf) }

// Axis returns the leaf axis at the given position. Negative positions count
// from the end, so Axis(-1) is the innermost axis.
func (tv *TensorView) Axis(pos int) *IterDomain {
	return tv.leaf[tv.normAxis(pos)]
}

// Definition is the expression that computes this view, or nil for fusion inputs.
func (tv *TensorView) Definition() *Expr { return tv.definition }

// Uses are the expressions consuming this view, in creation order.
func (tv *TensorView) Uses() []*Expr { return tv.uses }

// MemoryType returns where the view's buffer is placed.
func (tv *TensorView) MemoryType() MemoryType { return tv.memoryType }

// SetMemoryType places the view's buffer in global or shared memory.
func (tv *TensorView) SetMemoryType(memoryType MemoryType) *TensorView {
	if memoryType == MemoryTypeShared && (tv.definition == nil || tv.fusion.IsOutput(tv)) {
		exceptions.Panicf("%s: fusion inputs and outputs must live in global memory", tv.Name())
	}
	tv.memoryType = memoryType
	return tv
}

// ComputeAtPosition returns how many leading leaf axes are shared with the
// consumer designated by ComputeWith. Zero means not inlined.
func (tv *TensorView) ComputeAtPosition() int { return tv.computeAtPos }

// ComputeWith returns the consumer this view is inlined into, or nil.
func (tv *TensorView) ComputeWith() *TensorView { return tv.computeWith }

// ComputeAt nests this view's computation inside the first pos loops of
// consumer. The legality of pos (alignment of the two leaf domains up to it)
// is the caller's responsibility; the inline propagator in the scheduler
// package computes maximal legal positions.
func (tv *TensorView) ComputeAt(consumer *TensorView, pos int) *TensorView {
	if consumer.fusion != tv.fusion {
		exceptions.Panicf("%s.ComputeAt(%s): views belong to different fusions", tv.Name(), consumer.Name())
	}
	if pos < 0 || pos > len(tv.leaf) {
		exceptions.Panicf("%s.ComputeAt(%s, %d): position out-of-range for leaf domain of %d axes",
			tv.Name(), consumer.Name(), pos, len(tv.leaf))
	}
	tv.computeAtPos = pos
	tv.computeWith = consumer
	return tv
}

// Transforms returns the record of schedule operations applied to this view,
// in application order.
func (tv *TensorView) Transforms() []Transform { return tv.transforms }

func (tv *TensorView) normAxis(pos int) int {
	adjusted := pos
	if adjusted < 0 {
		adjusted += len(tv.leaf)
	}
	if adjusted < 0 || adjusted >= len(tv.leaf) {
		exceptions.Panicf("%s: axis %d out-of-range for leaf domain of %d axes", tv.Name(), pos, len(tv.leaf))
	}
	return adjusted
}

// Split replaces the leaf axis at pos with two axes: an outer axis of extent
// ceilDiv(extent, factor) and an inner axis of extent factor.
func (tv *TensorView) Split(pos, factor int) *TensorView {
	at := tv.normAxis(pos)
	if factor <= 0 {
		exceptions.Panicf("%s.Split(%d, %d): factor must be positive", tv.Name(), pos, factor)
	}
	axis := tv.leaf[at]
	if axis.parallelType != ParallelTypeNone {
		exceptions.Panicf("%s.Split(%d, %d): axis already parallelized as %s",
			tv.Name(), pos, factor, axis.parallelType)
	}
	outer := newIterDomain(ceilDivExtent(axis.extent, factor), axis.iterType)
	inner := newIterDomain(ConstExtent(factor), axis.iterType)
	tv.leaf = slices.Concat(tv.leaf[:at], []*IterDomain{outer, inner}, tv.leaf[at+1:])
	tv.transforms = append(tv.transforms, &SplitTransform{Axis: at, Factor: factor})
	return tv
}

// Merge combines the two adjacent leaf axes at positions posOuter and
// posInner (posInner must be posOuter+1) into one axis whose extent is the
// product of theirs.
func (tv *TensorView) Merge(posOuter, posInner int) *TensorView {
	outer := tv.normAxis(posOuter)
	inner := tv.normAxis(posInner)
	if inner != outer+1 {
		exceptions.Panicf("%s.Merge(%d, %d): axes must be adjacent in the leaf domain", tv.Name(), posOuter, posInner)
	}
	a, b := tv.leaf[outer], tv.leaf[inner]
	if a.parallelType != ParallelTypeNone || b.parallelType != ParallelTypeNone {
		exceptions.Panicf("%s.Merge(%d, %d): cannot merge parallelized axes", tv.Name(), posOuter, posInner)
	}
	merged := newIterDomain(mulExtent(a.extent, b.extent), mergeIterType(a, b))
	tv.leaf = slices.Concat(tv.leaf[:outer], []*IterDomain{merged}, tv.leaf[inner+1:])
	tv.transforms = append(tv.transforms, &MergeTransform{Axis: outer})
	return tv
}

func mergeIterType(a, b *IterDomain) IterType {
	if a.IsBroadcast() && b.IsBroadcast() {
		return IterTypeBroadcast
	}
	return IterTypeIteration
}

// Reorder permutes the leaf axes. old2new maps old positions to new
// positions (negative positions count from the end); axes not mentioned fill
// the remaining slots preserving their relative order.
func (tv *TensorView) Reorder(old2new map[int]int) *TensorView {
	perm := tv.normalizePermutation(old2new)
	newLeaf := make([]*IterDomain, len(tv.leaf))
	for old, axis := range tv.leaf {
		newLeaf[perm[old]] = axis
	}
	tv.leaf = newLeaf
	tv.transforms = append(tv.transforms, &ReorderTransform{Old2New: perm})
	return tv
}

// normalizePermutation expands a partial old->new position map into a full
// permutation, panicking on malformed input.
func (tv *TensorView) normalizePermutation(old2new map[int]int) []int {
	n := len(tv.leaf)
	perm := make([]int, n)
	for ii := range perm {
		perm[ii] = -1
	}
	taken := make([]bool, n)
	for from, to := range old2new {
		oldPos := tv.normAxis(from)
		newPos := tv.normAxis(to)
		if perm[oldPos] != -1 {
			exceptions.Panicf("%s.Reorder: axis %d assigned twice", tv.Name(), oldPos)
		}
		if taken[newPos] {
			exceptions.Panicf("%s.Reorder: two axes assigned to position %d", tv.Name(), newPos)
		}
		perm[oldPos] = newPos
		taken[newPos] = true
	}
	free := make([]int, 0, n)
	for pos := 0; pos < n; pos++ {
		if !taken[pos] {
			free = append(free, pos)
		}
	}
	next := 0
	for old := 0; old < n; old++ {
		if perm[old] == -1 {
			perm[old] = free[next]
			next++
		}
	}
	return perm
}

// Swizzle marks the pair of leaf axes at positions posX and posY as
// index-remapped with the given kind. The two axes must have the same
// extent. Swizzling changes only lowering-time addressing (typically of a
// shared-memory tile, to avoid bank conflicts), never the iteration itself.
func (tv *TensorView) Swizzle(kind SwizzleType, posX, posY int) *TensorView {
	if kind == SwizzleTypeNone {
		exceptions.Panicf("%s.Swizzle: kind must not be SwizzleTypeNone", tv.Name())
	}
	x := tv.normAxis(posX)
	y := tv.normAxis(posY)
	if x == y {
		exceptions.Panicf("%s.Swizzle(%s, %d, %d): axes must be distinct", tv.Name(), kind, posX, posY)
	}
	ax, ay := tv.leaf[x], tv.leaf[y]
	if !ax.extent.Equivalent(ay.extent) {
		exceptions.Panicf("%s.Swizzle(%s, %d, %d): axes must have the same extent, got %s and %s",
			tv.Name(), kind, posX, posY, ax.extent, ay.extent)
	}
	ax.swizzle = kind
	ay.swizzle = kind
	tv.transforms = append(tv.transforms, &SwizzleTransform{Kind: kind, X: x, Y: y})
	return tv
}

// Parallelize assigns the execution role parallelType to the leaf axis at pos.
//
// Within one leaf domain each spatial role (block/thread index) can be held
// by at most one axis, and an axis can't change to a different role once
// assigned -- conflicting assignments are schedule-construction bugs and
// panic. Vectorize applies to the innermost axis only.
func (tv *TensorView) Parallelize(pos int, parallelType ParallelType) *TensorView {
	at := tv.normAxis(pos)
	axis := tv.leaf[at]
	if parallelType == ParallelTypeNone {
		axis.parallelType = ParallelTypeNone
		return tv
	}
	if parallelType == ParallelTypeVectorize && at != len(tv.leaf)-1 {
		exceptions.Panicf("%s.Parallelize(%d, %s): vectorize applies to the innermost axis only",
			tv.Name(), pos, parallelType)
	}
	if axis.parallelType != ParallelTypeNone && axis.parallelType != parallelType {
		exceptions.Panicf("%s.Parallelize(%d, %s): axis already carries conflicting role %s",
			tv.Name(), pos, parallelType, axis.parallelType)
	}
	if parallelType.IsSpatial() {
		for other, otherAxis := range tv.leaf {
			if other != at && otherAxis.parallelType == parallelType {
				exceptions.Panicf("%s.Parallelize(%d, %s): role already assigned to axis %d",
					tv.Name(), pos, parallelType, other)
			}
		}
	}
	axis.parallelType = parallelType
	return tv
}

// setReplayedLeaf replaces the view's leaf domain and transform record with
// the result of a transform replay, resetting schedule annotations that no
// longer refer to existing axes.
func (tv *TensorView) setReplayedLeaf(leaf []*IterDomain, record []Transform, ref *TensorView) {
	tv.leaf = leaf
	tv.transforms = record
	tv.computeAtPos = 0
	tv.computeWith = nil
	tv.replayedFrom = ref
	tv.replayedLen = len(ref.transforms)
}

// String implements fmt.Stringer, printing the view's name and leaf domain.
func (tv *TensorView) String() string {
	parts := make([]string, 0, len(tv.leaf))
	for _, axis := range tv.leaf {
		parts = append(parts, axis.String())
	}
	str := fmt.Sprintf("%s[%s]", tv.Name(), strings.Join(parts, ", "))
	if tv.memoryType != MemoryTypeGlobal {
		str += fmt.Sprintf(" @%s", tv.memoryType)
	}
	if tv.computeWith != nil {
		str += fmt.Sprintf(" ca(%s,%d)", tv.computeWith.Name(), tv.computeAtPos)
	}
	return str
}

// Transform is one recorded schedule operation on a view's leaf domain.
// The positions stored are leaf positions at application time, which is what
// makes a record replayable onto a differently-shaped view.
type Transform interface {
	fmt.Stringer
	transform() // marker
}

// SplitTransform records a Split of the axis at Axis by Factor.
type SplitTransform struct {
	Axis, Factor int
}

func (t *SplitTransform) transform() {}
func (t *SplitTransform) String() string {
	return fmt.Sprintf("split(%d, %d)", t.Axis, t.Factor)
}

// MergeTransform records a Merge of the axes at Axis and Axis+1.
type MergeTransform struct {
	Axis int
}

func (t *MergeTransform) transform() {}
func (t *MergeTransform) String() string {
	return fmt.Sprintf("merge(%d)", t.Axis)
}

// ReorderTransform records a full permutation of leaf positions:
// Old2New[old] is the new position of the axis previously at old.
type ReorderTransform struct {
	Old2New []int
}

func (t *ReorderTransform) transform() {}
func (t *ReorderTransform) String() string {
	return fmt.Sprintf("reorder(%v)", t.Old2New)
}

// SwizzleTransform records a Swizzle of kind Kind on the axes at X and Y.
type SwizzleTransform struct {
	Kind SwizzleType
	X, Y int
}

func (t *SwizzleTransform) transform() {}
func (t *SwizzleTransform) String() string {
	return fmt.Sprintf("swizzle(%s, %d, %d)", t.Kind, t.X, t.Y)
}
