// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler_test

import (
	"testing"

	"github.com/gomlx/fuser/fusion"
	"github.com/gomlx/fuser/scheduler"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildDiamond returns a fusion with a diamond DAG:
//
//	tv0 -> tv1 -> tv3 -> tv4(out)
//	   \-> tv2 ---^
func buildDiamond() (*fusion.Fusion, []*fusion.TensorView) {
	f := fusion.New()
	tv0 := f.NewTensor(dtypes.Float32, 2)
	f.AddInput(tv0)
	tv1 := fusion.Sin(tv0)
	tv2 := fusion.Cos(tv0)
	tv3 := fusion.Add(tv1, tv2)
	tv4 := fusion.Neg(tv3)
	f.AddOutput(tv4)
	return f, []*fusion.TensorView{tv0, tv1, tv2, tv3, tv4}
}

func TestSpanningTreeOrder(t *testing.T) {
	_, tvs := buildDiamond()
	tv0, tv1, tv2, tv3, tv4 := tvs[0], tvs[1], tvs[2], tvs[3], tvs[4]

	tree := scheduler.NewSpanningTree(tv4, nil)
	// Deterministic breadth-first order: producers before consumers'
	// siblings, each view exactly once.
	assert.Equal(t, []*fusion.TensorView{tv4, tv3, tv1, tv2, tv0}, tree.Views())

	// Rebuilding gives the same order.
	assert.Equal(t, tree.Views(), scheduler.NewSpanningTree(tv4, nil).Views())
}

func TestSpanningTreeSelector(t *testing.T) {
	_, tvs := buildDiamond()
	tv0, tv1, tv2, tv3, tv4 := tvs[0], tvs[1], tvs[2], tvs[3], tvs[4]

	// Blocking tv1 forces the tree to reach tv0 through tv2.
	selector := scheduler.NewSetSelector(tv2, tv3, tv0)
	tree := scheduler.NewSpanningTree(tv4, selector)
	views := tree.Views()
	assert.NotContains(t, views, tv1)
	assert.Contains(t, views, tv0)

	// Blocking both middle views makes tv0 unreachable.
	tree = scheduler.NewSpanningTree(tv4, scheduler.NewSetSelector(tv3))
	assert.Equal(t, []*fusion.TensorView{tv4, tv3}, tree.Views())
}

func TestSpanningTreeSkipsBroadcastOnlyEdges(t *testing.T) {
	f := fusion.New()
	tv0 := f.NewTensor(dtypes.Float32, 2)
	tvs := f.NewTensor(dtypes.Float32, 0)
	f.AddInput(tv0)
	f.AddInput(tvs)
	tv1 := fusion.Broadcast(tvs, []bool{true, true})
	tv2 := fusion.Add(tv0, tv1)
	f.AddOutput(tv2)

	// The scalar is connected only through the all-broadcast edge of its
	// Broadcast: no root axes correspond, so the tree stops at tv1.
	tree := scheduler.NewSpanningTree(tv2, nil)
	assert.Equal(t, []*fusion.TensorView{tv2, tv0, tv1}, tree.Views())

	// Propagation therefore never touches the scalar.
	tv2.Split(1, 4)
	scheduler.NewTransformPropagator(tv2).PropagateFrom(nil)
	assert.Equal(t, 3, tv1.NumDims())
	assert.Equal(t, 0, tvs.NumDims())
	assert.Empty(t, tvs.Transforms())
}

func TestTransformPropagatorWholeDAG(t *testing.T) {
	f, tvs := buildDiamond()
	tv4 := tvs[4]

	tv4.Split(1, 8).Reorder(map[int]int{0: 1, 1: 0})
	scheduler.NewTransformPropagator(tv4).PropagateFrom(nil)
	for _, tv := range f.Views() {
		require.True(t, fusion.SameLeafStructure(tv4.LeafDomain(), tv.LeafDomain()),
			"%s was not propagated to", tv.Name())
	}
}

func TestParallelizeAllLike(t *testing.T) {
	f, tvs := buildDiamond()
	tv4 := tvs[4]

	tv4.Merge(0, 1).Split(0, 128)
	tv4.Parallelize(0, fusion.ParallelTypeBIDx)
	tv4.Parallelize(1, fusion.ParallelTypeTIDx)
	scheduler.NewTransformPropagator(tv4).PropagateFrom(nil)
	scheduler.ParallelizeAllLike(tv4, nil)

	for _, tv := range f.Views() {
		assert.Equal(t, fusion.ParallelTypeBIDx, tv.Axis(0).ParallelType(), tv.Name())
		assert.Equal(t, fusion.ParallelTypeTIDx, tv.Axis(1).ParallelType(), tv.Name())
	}
}

func TestParallelizeAllLikeKindsFilter(t *testing.T) {
	_, tvs := buildDiamond()
	tv3, tv4 := tvs[3], tvs[4]

	tv4.Merge(0, 1).Split(0, 128)
	tv4.Parallelize(0, fusion.ParallelTypeBIDx)
	tv4.Parallelize(1, fusion.ParallelTypeTIDx)
	scheduler.NewTransformPropagator(tv4).PropagateFrom(nil)
	scheduler.ParallelizeAllLike(tv4, []*fusion.TensorView{tv3}, fusion.ParallelTypeTIDx)

	assert.Equal(t, fusion.ParallelTypeNone, tv3.Axis(0).ParallelType())
	assert.Equal(t, fusion.ParallelTypeTIDx, tv3.Axis(1).ParallelType())
}

func TestInlineMost(t *testing.T) {
	f, tvs := buildDiamond()
	tv1, tv2, tv3, tv4 := tvs[1], tvs[2], tvs[3], tvs[4]

	tv4.Merge(0, 1).Split(0, 4)
	tv4.Parallelize(-1, fusion.ParallelTypeVectorize)
	scheduler.NewTransformPropagator(tv4).PropagateFrom(nil)
	scheduler.ParallelizeAllLike(tv4, nil)
	scheduler.InlineMost(f)

	// Everything shares tv4's loops up to, but not across, the vectorized
	// axis.
	for _, tv := range []*fusion.TensorView{tv1, tv2, tv3} {
		assert.Equal(t, 1, tv.ComputeAtPosition(), tv.Name())
		require.NotNil(t, tv.ComputeWith(), tv.Name())
	}
	assert.Same(t, tv3, tv1.ComputeWith())
	assert.Same(t, tv4, tv3.ComputeWith())
	// Inputs are never inlined.
	assert.Zero(t, tvs[0].ComputeAtPosition())
}
