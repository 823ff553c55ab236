// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"math/rand"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestFromFlatDataAndDimensions(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	assert.Equal(t, dtypes.Float32, tensor.DType())
	assert.Equal(t, []int{2, 3}, tensor.Shape().Dimensions)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, Flat[float32](tensor))

	require.Panics(t, func() { FromFlatDataAndDimensions([]float32{1, 2, 3}, 2, 3) })
	require.Panics(t, func() { Flat[float64](tensor) })
}

func TestFloat64Data(t *testing.T) {
	tensor := FromFlatDataAndDimensions([]float32{0.5, 1.5}, 2)
	assert.Equal(t, []float64{0.5, 1.5}, tensor.Float64Data())

	halves := []float16.Float16{float16.Fromfloat32(0.25), float16.Fromfloat32(2)}
	half := FromFlatDataAndDimensions(halves, 2)
	assert.Equal(t, []float64{0.25, 2}, half.Float64Data())
}

func TestInDelta(t *testing.T) {
	a := FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2)
	b := FromFlatDataAndDimensions([]float64{1, 2, 3, 4.00000001}, 2, 2)
	assert.True(t, a.InDelta(b, 1e-4))
	assert.False(t, a.Equal(b))

	c := FromFlatDataAndDimensions([]float32{1, 2, 3, 5}, 2, 2)
	assert.False(t, a.InDelta(c, 1e-4))

	d := FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 4)
	assert.False(t, a.InDelta(d, 1e-4))
}

func TestUniform(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tensor := Uniform(rng, dtypes.Float64, 10, 10)
	assert.Equal(t, 100, tensor.Size())
	for _, v := range Flat[float64](tensor) {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}
