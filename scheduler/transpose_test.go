// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler_test

import (
	"math"
	"testing"

	"github.com/gomlx/fuser/backends"
	"github.com/gomlx/fuser/fusion"
	"github.com/gomlx/fuser/fusion/fusiontest"
	"github.com/gomlx/fuser/scheduler"
	"github.com/gomlx/fuser/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delta = 1e-4

func scheduleAndValidate(t *testing.T, f *fusion.Fusion, inputs []*tensors.Tensor, want []*tensors.Tensor) backends.LaunchParams {
	t.Helper()
	lp, err := scheduler.ScheduleTranspose(f, inputs)
	require.NoError(t, err)
	outputs := fusiontest.CompileAndRun(t, f, lp, inputs)
	for i, w := range want {
		fusiontest.RequireSameTensor(t, w, outputs[i], delta)
	}
	return lp
}

func TestScheduleTransposeSimple(t *testing.T) {
	f := fusion.New()
	tv0 := f.NewTensor(dtypes.Float32, 2)
	f.AddInput(tv0)
	tv1 := fusion.Sin(tv0)
	tv2 := fusion.Transpose(tv1, 0, 1)
	tv3 := fusion.Cos(tv2)
	f.AddOutput(tv3)

	input := fusiontest.RandTensor(64, 96)
	want := fusiontest.MapTensor(
		fusiontest.TransposeTensor(fusiontest.MapTensor(input, math.Sin), 0, 1),
		math.Cos)

	lp := scheduleAndValidate(t, f, []*tensors.Tensor{input}, []*tensors.Tensor{want})

	// 64x96 elements in 32x32 tiles -> 2*3 blocks of 128 threads, with one
	// 32x32 float32 tile staged in shared memory.
	assert.Equal(t, 6, lp.GridDim[0])
	assert.Equal(t, 128, lp.BlockDim[0])
	assert.Equal(t, 32*32*4, lp.SmemBytes)

	// The shared tile carries a transpose swizzle in its schedule record.
	for _, tv := range f.Views() {
		if tv.MemoryType() != fusion.MemoryTypeShared {
			continue
		}
		swizzled := false
		for _, tr := range tv.Transforms() {
			if sw, ok := tr.(*fusion.SwizzleTransform); ok {
				swizzled = sw.Kind == fusion.SwizzleTypeTranspose
			}
		}
		assert.True(t, swizzled, "%s: shared tile not swizzled", tv.Name())
	}
}

func TestScheduleTransposeMultipleInput(t *testing.T) {
	f := fusion.New()
	tv0 := f.NewTensor(dtypes.Float32, 3)
	tv1 := f.NewTensor(dtypes.Float32, 3)
	f.AddInput(tv0)
	f.AddInput(tv1)
	tv2 := fusion.Add(tv0, tv1)
	tv3 := fusion.Transpose(tv2, 1, 2)
	f.AddOutput(tv3)

	in0 := fusiontest.RandTensor(16, 32, 64)
	in1 := fusiontest.RandTensor(16, 32, 64)
	want := fusiontest.TransposeTensor(
		fusiontest.ZipTensors(in0, in1, func(a, b float64) float64 { return a + b }), 1, 2)

	scheduleAndValidate(t, f, []*tensors.Tensor{in0, in1}, []*tensors.Tensor{want})
}

func TestScheduleTransposeMultipleOutput(t *testing.T) {
	f := fusion.New()
	tv0 := f.NewTensor(dtypes.Float32, 3)
	f.AddInput(tv0)
	tv1 := fusion.Sin(tv0)
	tv2 := fusion.Transpose(tv1, 1, 2)
	tv3 := fusion.Cos(tv1)
	f.AddOutput(tv2)
	f.AddOutput(tv3)

	input := fusiontest.RandTensor(16, 32, 64)
	sined := fusiontest.MapTensor(input, math.Sin)
	want2 := fusiontest.TransposeTensor(sined, 1, 2)
	want3 := fusiontest.MapTensor(input, func(x float64) float64 { return math.Cos(math.Sin(x)) })

	scheduleAndValidate(t, f, []*tensors.Tensor{input}, []*tensors.Tensor{want2, want3})
}

func TestScheduleTransposeSkipConnection(t *testing.T) {
	// tv0 feeds both a transposed and an untransposed path that rejoin.
	f := fusion.New()
	tv0 := f.NewTensor(dtypes.Float32, 2)
	f.AddInput(tv0)
	tv1 := fusion.Transpose(tv0, 0, 1)
	tv2 := fusion.Relu(tv0)
	tv3 := fusion.Transpose(tv2, 0, 1)
	tv4 := fusion.Add(tv1, tv3)
	f.AddOutput(tv4)

	input := fusiontest.RandTensor(64, 96)
	transposed := fusiontest.TransposeTensor(input, 0, 1)
	relued := fusiontest.TransposeTensor(fusiontest.MapTensor(input, func(x float64) float64 { return math.Max(x, 0) }), 0, 1)
	want := fusiontest.ZipTensors(transposed, relued, func(a, b float64) float64 { return a + b })

	scheduleAndValidate(t, f, []*tensors.Tensor{input}, []*tensors.Tensor{want})
}

func TestScheduleTransposeBroadcast(t *testing.T) {
	f := fusion.New()
	tv0 := f.NewTensor(dtypes.Float32, 2)
	tv1 := f.NewTensor(dtypes.Float32, 3)
	f.AddInput(tv0)
	f.AddInput(tv1)
	tv2 := fusion.Broadcast(tv0, []bool{false, false, true})
	tv3 := fusion.Add(tv1, tv2)
	tv4 := fusion.Transpose(tv3, 1, 2)
	f.AddOutput(tv4)

	in0 := fusiontest.RandTensor(64, 96)
	in1 := fusiontest.RandTensor(64, 96, 48)
	in0Col := tensors.FromFlatDataAndDimensions(in0.Float64Data(), 64, 96, 1)
	want := fusiontest.TransposeTensor(
		fusiontest.ZipTensors(in1, in0Col, func(a, b float64) float64 { return a + b }), 1, 2)

	scheduleAndValidate(t, f, []*tensors.Tensor{in0, in1}, []*tensors.Tensor{want})
}

func TestScheduleBroadcastOnly(t *testing.T) {
	f := fusion.New()
	tv0 := f.NewConcreteTensor(dtypes.Float32, 64, 1, 32)
	tv1 := f.NewConcreteTensor(dtypes.Float32, 64, 96, 1)
	f.AddInput(tv0)
	f.AddInput(tv1)
	tv2 := fusion.Add(tv0, tv1)
	f.AddOutput(tv2)

	in0 := fusiontest.RandTensor(64, 1, 32)
	in1 := fusiontest.RandTensor(64, 96, 1)
	want := fusiontest.ZipTensors(in0, in1, func(a, b float64) float64 { return a + b })

	scheduleAndValidate(t, f, []*tensors.Tensor{in0, in1}, []*tensors.Tensor{want})
}

func TestScheduleTransposeNoReference(t *testing.T) {
	// One group's views never see every axis of the fusion: there is no
	// valid reference tensor for it.
	f := fusion.New()
	tv0 := f.NewTensor(dtypes.Float32, 2)
	tv1 := f.NewTensor(dtypes.Float32, 2)
	f.AddInput(tv0)
	f.AddInput(tv1)
	tv2 := fusion.Broadcast(tv0, []bool{false, true, false})
	tv3 := fusion.Broadcast(tv1, []bool{false, false, true})
	tv4 := fusion.Add(tv2, tv3)
	f.AddOutput(tv4)

	in0 := fusiontest.RandTensor(64, 32)
	in1 := fusiontest.RandTensor(64, 48)
	_, err := scheduler.ScheduleTranspose(f, []*tensors.Tensor{in0, in1})
	require.ErrorContains(t, err, "reference tensor")
}

func TestSchedulePointwiseFallback(t *testing.T) {
	// No transpose anywhere: a single boundary group, flat schedule.
	f := fusion.New()
	tv0 := f.NewTensor(dtypes.Float32, 2)
	f.AddInput(tv0)
	tv1 := fusion.Sigmoid(tv0)
	f.AddOutput(tv1)

	input := fusiontest.RandTensor(64, 96)
	want := fusiontest.MapTensor(input, func(x float64) float64 { return 1 / (1 + math.Exp(-x)) })

	lp := scheduleAndValidate(t, f, []*tensors.Tensor{input}, []*tensors.Tensor{want})
	// 64*96 elements, 4-wide vectors, 128 threads.
	assert.Equal(t, 12, lp.GridDim[0])
	assert.Equal(t, 128, lp.BlockDim[0])
	assert.Zero(t, lp.SmemBytes)
}

func TestScheduleTransposeComplexDAG1(t *testing.T) {
	f := fusion.New()
	tv0 := f.NewTensor(dtypes.Float32, 3)
	tv1 := f.NewTensor(dtypes.Float32, 3)
	tv2 := f.NewTensor(dtypes.Float32, 3)
	f.AddInput(tv0)
	f.AddInput(tv1)
	f.AddInput(tv2)
	tv3 := fusion.Transpose(tv0, 1, 2)
	tv4 := fusion.Transpose(tv1, 0, 1)
	tv5 := fusion.Sigmoid(tv1)
	tv6 := fusion.Add(tv2, tv3)
	tv7 := fusion.Transpose(tv5, 0, 2)
	tv8 := fusion.Add(tv4, tv0)
	tv9 := fusion.Relu(tv8)
	f.AddOutput(tv9)
	tv10 := fusion.Sin(tv6)
	f.AddOutput(tv10)
	tv11 := fusion.Transpose(tv6, 0, 1)
	tv12 := fusion.Add(tv7, tv11)
	f.AddOutput(tv12)

	in0 := fusiontest.RandTensor(32, 64, 48)
	in1 := fusiontest.RandTensor(64, 32, 48)
	in2 := fusiontest.RandTensor(32, 48, 64)

	add := func(a, b float64) float64 { return a + b }
	t3 := fusiontest.TransposeTensor(in0, 1, 2)
	t4 := fusiontest.TransposeTensor(in1, 0, 1)
	t5 := fusiontest.MapTensor(in1, func(x float64) float64 { return 1 / (1 + math.Exp(-x)) })
	t6 := fusiontest.ZipTensors(in2, t3, add)
	t7 := fusiontest.TransposeTensor(t5, 0, 2)
	t8 := fusiontest.ZipTensors(t4, in0, add)
	t9 := fusiontest.MapTensor(t8, func(x float64) float64 { return math.Max(x, 0) })
	t10 := fusiontest.MapTensor(t6, math.Sin)
	t11 := fusiontest.TransposeTensor(t6, 0, 1)
	t12 := fusiontest.ZipTensors(t7, t11, add)

	scheduleAndValidate(t, f,
		[]*tensors.Tensor{in0, in1, in2},
		[]*tensors.Tensor{t9, t10, t12})
}

func TestManualTransposeWithSwizzle(t *testing.T) {
	// A hand-written schedule of a plain 2D transpose staged through a
	// swizzled shared-memory tile; sizes deliberately not multiples of the
	// tile.
	f := fusion.New()
	tv0 := f.NewTensor(dtypes.Float32, 2)
	f.AddInput(tv0)
	tv1 := fusion.Transpose(tv0, 0, 1)
	f.AddOutput(tv1)

	cache := tv0.CacheAfter()
	cache.SetMemoryType(fusion.MemoryTypeShared)

	// Tile tv1 (the [200, 100] output) 32x32 and propagate.
	tv1.Split(1, 32)
	tv1.Split(0, 32)
	// [200/32, 32, 100/32, 32] -> [200/32, 100/32, 32, 32]
	tv1.Reorder(map[int]int{1: 2, 2: 1})
	tv1.Merge(0, 1)
	// [ceil(200/32)*ceil(100/32), 32, 32]
	scheduler.NewTransformPropagator(tv1).PropagateFrom(nil)

	// The shared tile is written along tv0's rows but read along its
	// columns: swizzle it so both directions spread over banks.
	cache.Swizzle(fusion.SwizzleTypeTranspose, -2, -1)
	require.Equal(t, fusion.SwizzleTypeTranspose, cache.Axis(-1).Swizzle())

	// 1D thread block over the flattened tile.
	for _, tv := range []*fusion.TensorView{cache, tv1} {
		tv.Merge(-2, -1)
		tv.Split(-1, 128)
		tv.Parallelize(0, fusion.ParallelTypeBIDx)
		tv.Parallelize(-1, fusion.ParallelTypeTIDx)
	}

	input := fusiontest.RandTensor(100, 200)
	want := fusiontest.TransposeTensor(input, 0, 1)
	lp := backends.LaunchParams{GridDim: [3]int{7 * 4, 1, 1}, BlockDim: [3]int{128, 1, 1}, SmemBytes: 32 * 32 * 4}
	outputs := fusiontest.CompileAndRun(t, f, lp, []*tensors.Tensor{input})
	fusiontest.RequireSameTensor(t, want, outputs[0], delta)
}

func TestScheduleTransposeLargeNonDivisible(t *testing.T) {
	// Sizes not divisible by the tile or the vector width.
	f := fusion.New()
	tv0 := f.NewTensor(dtypes.Float32, 2)
	f.AddInput(tv0)
	tv1 := fusion.Tanh(tv0)
	tv2 := fusion.Transpose(tv1, 0, 1)
	f.AddOutput(tv2)

	input := fusiontest.RandTensor(100, 130)
	want := fusiontest.TransposeTensor(fusiontest.MapTensor(input, math.Tanh), 0, 1)

	lp := scheduleAndValidate(t, f, []*tensors.Tensor{input}, []*tensors.Tensor{want})
	assert.Equal(t, 4*5, lp.GridDim[0]) // ceil(100/32) * ceil(130/32)
}
