// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fusion_test

import (
	"testing"

	"github.com/gomlx/fuser/fusion"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayElementwise(t *testing.T) {
	f := fusion.New()
	tv0 := f.NewConcreteTensor(dtypes.Float32, 8, 12)
	f.AddInput(tv0)
	tv1 := fusion.Sin(tv0)
	f.AddOutput(tv1)

	tv1.Split(1, 4).Reorder(map[int]int{0: -1})
	// [12/4=3, 4, 8]
	require.Equal(t, []int{3, 4, 8}, evalLeaf(t, tv1, nil))

	align := fusion.ReplayTransformsOnto(tv1, tv0, fusion.PairwiseRootMap(tv1, tv0))
	assert.Equal(t, []int{3, 4, 8}, evalLeaf(t, tv0, nil))
	require.True(t, fusion.SameLeafStructure(tv1.LeafDomain(), tv0.LeafDomain()))
	for i, axis := range tv0.LeafDomain() {
		assert.Same(t, tv1.LeafDomain()[i], align[axis])
	}
}

func TestReplayAcrossTranspose(t *testing.T) {
	f := fusion.New()
	tv0 := f.NewConcreteTensor(dtypes.Float32, 8, 12)
	f.AddInput(tv0)
	tv1 := fusion.Transpose(tv0, 0, 1) // [12, 8]
	f.AddOutput(tv1)

	tv1.Split(1, 4)
	// tv1: [12, 2, 4]
	fusion.ReplayTransformsOnto(tv1, tv0, fusion.PairwiseRootMap(tv1, tv0))
	// tv0's 8-axis is split in place; without a reorder in the record the
	// target keeps its own axis order: [8/4, 4, 12].
	assert.Equal(t, []int{2, 4, 12}, evalLeaf(t, tv0, nil))

	// An explicit reorder on the reference aligns the target to its order.
	tv1.Reorder(map[int]int{0: 0, 1: 1, 2: 2})
	fusion.ReplayTransformsOnto(tv1, tv0, fusion.PairwiseRootMap(tv1, tv0))
	assert.Equal(t, []int{12, 2, 4}, evalLeaf(t, tv0, nil))
}

func TestReplayIdempotent(t *testing.T) {
	f := fusion.New()
	tv0 := f.NewConcreteTensor(dtypes.Float32, 8, 12)
	f.AddInput(tv0)
	tv1 := fusion.Cos(tv0)
	f.AddOutput(tv1)

	tv1.Split(0, 2)
	corr := fusion.PairwiseRootMap(tv1, tv0)
	fusion.ReplayTransformsOnto(tv1, tv0, corr)
	tv0.Parallelize(0, fusion.ParallelTypeBIDx)
	first := tv0.Axis(0)

	// Replaying again is a no-op: same axes, roles preserved.
	fusion.ReplayTransformsOnto(tv1, tv0, corr)
	assert.Same(t, first, tv0.Axis(0))
	assert.Equal(t, fusion.ParallelTypeBIDx, tv0.Axis(0).ParallelType())
}

func TestReplayPartialCorrespondence(t *testing.T) {
	// The reference has an axis the target doesn't know about: transforms
	// touching it are skipped, the rest replays.
	f := fusion.New()
	tv0 := f.NewConcreteTensor(dtypes.Float32, 8)
	f.AddInput(tv0)
	tv1 := fusion.Broadcast(tv0, []bool{true, false}) // [1, 8]
	tv2 := f.NewConcreteTensor(dtypes.Float32, 6, 8)
	f.AddInput(tv2)
	tv3 := fusion.Add(tv2, tv1)
	f.AddOutput(tv3)

	tv3.Split(0, 2).Split(-1, 4)
	// tv3: [3, 2, 2, 4]
	fusion.ReplayTransformsOnto(tv3, tv1, fusion.PairwiseRootMap(tv3, tv1))
	// tv1's broadcast axis corresponds to tv3's 6-axis, so it gets split
	// too (into broadcast halves); the 8-axis split replays normally.
	assert.Equal(t, []int{1, 2, 2, 4}, evalLeaf(t, tv1, nil))
	assert.True(t, tv1.LeafDomain()[0].IsBroadcast())
	assert.True(t, tv1.LeafDomain()[1].IsBroadcast())

	// tv0 only knows the 8-axis.
	fusion.ReplayTransformsOnto(tv3, tv0, map[*fusion.IterDomain]*fusion.IterDomain{
		tv3.RootDomain()[1]: tv0.RootDomain()[0],
	})
	assert.Equal(t, []int{2, 4}, evalLeaf(t, tv0, nil))
}

func TestDryReplayDoesNotModify(t *testing.T) {
	f := fusion.New()
	tv0 := f.NewConcreteTensor(dtypes.Float32, 8, 12)
	f.AddInput(tv0)
	tv1 := fusion.Sin(tv0)
	f.AddOutput(tv1)

	tv1.Split(1, 3)
	leaf, align, record := fusion.DryReplayTransforms(tv1, tv0, fusion.PairwiseRootMap(tv1, tv0))
	require.Len(t, leaf, 3)
	require.Len(t, record, 1)
	assert.Len(t, align, 3)
	// tv0 untouched.
	assert.Equal(t, 2, tv0.NumDims())
	assert.Empty(t, tv0.Transforms())
}

func TestReplaySwizzleStaysLocal(t *testing.T) {
	// A swizzle remaps how one view addresses its own tile; replaying a
	// swizzled record onto another view carries the loop transforms but not
	// the swizzle.
	f := fusion.New()
	tv0 := f.NewConcreteTensor(dtypes.Float32, 32, 32)
	f.AddInput(tv0)
	tv1 := fusion.Sin(tv0)
	f.AddOutput(tv1)

	tv1.Swizzle(fusion.SwizzleTypeTranspose, 0, 1).Split(1, 8)
	fusion.ReplayTransformsOnto(tv1, tv0, fusion.PairwiseRootMap(tv1, tv0))
	assert.Equal(t, []int{32, 4, 8}, evalLeaf(t, tv0, nil))
	for _, axis := range tv0.LeafDomain() {
		assert.Equal(t, fusion.SwizzleTypeNone, axis.Swizzle())
	}
	for _, tr := range tv0.Transforms() {
		_, isSwizzle := tr.(*fusion.SwizzleTransform)
		assert.False(t, isSwizzle, "swizzle record replayed onto %s", tv0.Name())
	}
	// The reference keeps its own marks.
	assert.Equal(t, fusion.SwizzleTypeTranspose, tv1.Axis(0).Swizzle())
}

func TestReplayInconsistencyPanics(t *testing.T) {
	f := fusion.New()
	tv0 := f.NewConcreteTensor(dtypes.Float32, 8, 12)
	f.AddInput(tv0)
	tv1 := fusion.Sin(tv0)
	f.AddOutput(tv1)

	tv1.Split(1, 4)
	corr := fusion.PairwiseRootMap(tv1, tv0)
	fusion.ReplayTransformsOnto(tv1, tv0, corr)

	// Transforming the target behind the propagation's back makes replaying
	// the same unchanged record an inconsistency.
	tv0.Split(0, 2)
	require.Panics(t, func() { fusion.ReplayTransformsOnto(tv1, tv0, corr) })

	// Once the reference's record grows, the replay is a legitimate
	// overwrite again.
	tv1.Split(0, 2)
	require.NotPanics(t, func() { fusion.ReplayTransformsOnto(tv1, tv0, fusion.PairwiseRootMap(tv1, tv0)) })
	require.True(t, fusion.SameLeafStructure(tv1.LeafDomain(), tv0.LeafDomain()))
}
