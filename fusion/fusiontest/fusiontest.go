// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fusiontest holds test utilities for packages that build and
// schedule fusions: a cached test backend and host-side reference
// computations to validate executions against.
package fusiontest

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gomlx/fuser/backends"
	_ "github.com/gomlx/fuser/backends/hostref"
	"github.com/gomlx/fuser/fusion"
	"github.com/gomlx/fuser/types/tensors"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/require"
)

var (
	backendOnce   sync.Once
	cachedBackend backends.Backend
)

// BuildTestBackend sets backends.DefaultConfig to "hostref" -- it can be
// overwritten by the FUSER_BACKEND environment variable -- and returns the
// cached backend.
func BuildTestBackend() backends.Backend {
	backends.DefaultConfig = "hostref"
	backendOnce.Do(func() {
		cachedBackend = backends.MustNew()
		fmt.Printf("Backend: %s\n", cachedBackend.Description())
	})
	return cachedBackend
}

// randTensorCalls seeds every RandTensor call differently, so that
// same-shaped tensors within one test hold distinct data.
var randTensorCalls atomic.Uint64

// RandTensor creates a float32 tensor with the given dimensions, filled with
// deterministic pseudo-random values in [-1, 1).
func RandTensor(dims ...int) *tensors.Tensor {
	rng := rand.New(rand.NewPCG(42, randTensorCalls.Add(1)))
	size := 1
	for _, d := range dims {
		size *= d
	}
	flat := make([]float32, size)
	for i := range flat {
		flat[i] = float32(rng.Float64()*2 - 1)
	}
	return tensors.FromFlatDataAndDimensions(flat, dims...)
}

// CompileAndRun schedules nothing: it compiles the fusion as-is on the test
// backend and runs it on inputs, failing the test on any error.
func CompileAndRun(t *testing.T, f *fusion.Fusion, params backends.LaunchParams, inputs []*tensors.Tensor) []*tensors.Tensor {
	backend := BuildTestBackend()
	exec := must.M1(backend.Compile(f, inputs, params))
	defer exec.Finalize()
	outputs, err := exec.Run(inputs)
	require.NoError(t, err)
	require.Len(t, outputs, len(f.Outputs()))
	return outputs
}

// RequireSameTensor checks got against want within delta, with readable
// failure output. Only dimensions are compared, not dtypes: reference
// values are computed in float64 whatever the fusion's dtype.
func RequireSameTensor(t *testing.T, want, got *tensors.Tensor, delta float64) {
	require.True(t, want.Shape().EqualDimensions(got.Shape()),
		"tensor shapes differ: want %s, got %s", want.Shape(), got.Shape())
	require.True(t, want.InDelta(got, delta),
		"tensor values differ beyond delta=%g:\nwant=%v\ngot=%v",
		delta, want.Float64Data(), got.Float64Data())
}

// TransposeTensor computes the reference transpose of a tensor with axes
// axisA and axisB swapped, on the host.
func TransposeTensor(in *tensors.Tensor, axisA, axisB int) *tensors.Tensor {
	inDims := in.Shape().Dimensions
	rank := len(inDims)
	if axisA < 0 {
		axisA += rank
	}
	if axisB < 0 {
		axisB += rank
	}
	outDims := append([]int(nil), inDims...)
	outDims[axisA], outDims[axisB] = outDims[axisB], outDims[axisA]
	inData := in.Float64Data()
	inStrides := rowMajorStrides(inDims)
	outStrides := rowMajorStrides(outDims)
	outData := make([]float64, len(inData))
	coords := make([]int, rank)
	for linear := range inData {
		rest := linear
		for axis, stride := range inStrides {
			coords[axis] = rest / stride
			rest %= stride
		}
		coords[axisA], coords[axisB] = coords[axisB], coords[axisA]
		offset := 0
		for axis, c := range coords {
			offset += c * outStrides[axis]
		}
		outData[offset] = inData[linear]
	}
	return tensors.FromFlatDataAndDimensions(outData, outDims...)
}

// MapTensor applies fn element-wise, on the host.
func MapTensor(in *tensors.Tensor, fn func(float64) float64) *tensors.Tensor {
	data := in.Float64Data()
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = fn(v)
	}
	return tensors.FromFlatDataAndDimensions(out, in.Shape().Dimensions...)
}

// ZipTensors applies fn element-wise over two tensors of the same
// dimensions, broadcasting size-1 axes of either side, on the host.
func ZipTensors(lhs, rhs *tensors.Tensor, fn func(a, b float64) float64) *tensors.Tensor {
	lhsDims := lhs.Shape().Dimensions
	rhsDims := rhs.Shape().Dimensions
	if len(lhsDims) != len(rhsDims) {
		panic(fmt.Sprintf("ZipTensors: rank mismatch %v vs %v", lhsDims, rhsDims))
	}
	outDims := make([]int, len(lhsDims))
	for axis := range outDims {
		outDims[axis] = max(lhsDims[axis], rhsDims[axis])
	}
	lhsData, rhsData := lhs.Float64Data(), rhs.Float64Data()
	lhsStrides := rowMajorStrides(lhsDims)
	rhsStrides := rowMajorStrides(rhsDims)
	outStrides := rowMajorStrides(outDims)
	size := 1
	for _, d := range outDims {
		size *= d
	}
	out := make([]float64, size)
	coords := make([]int, len(outDims))
	for linear := 0; linear < size; linear++ {
		rest := linear
		for axis, stride := range outStrides {
			coords[axis] = rest / stride
			rest %= stride
		}
		lhsOffset, rhsOffset := 0, 0
		for axis, c := range coords {
			if lhsDims[axis] > 1 {
				lhsOffset += c * lhsStrides[axis]
			}
			if rhsDims[axis] > 1 {
				rhsOffset += c * rhsStrides[axis]
			}
		}
		out[linear] = fn(lhsData[lhsOffset], rhsData[rhsOffset])
	}
	return tensors.FromFlatDataAndDimensions(out, outDims...)
}

func rowMajorStrides(dims []int) []int {
	strides := make([]int, len(dims))
	stride := 1
	for axis := len(dims) - 1; axis >= 0; axis-- {
		strides[axis] = stride
		stride *= dims[axis]
	}
	return strides
}
