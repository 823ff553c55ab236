// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	s := Make(dtypes.Float32, 3, 2)
	assert.Equal(t, 2, s.Rank())
	assert.Equal(t, 6, s.Size())
	assert.Equal(t, "(Float32)[3 2]", s.String())
	assert.True(t, s.Ok())

	require.Panics(t, func() { Make(dtypes.Float32, 3, 0) })
}

func TestDim(t *testing.T) {
	s := Make(dtypes.Float64, 7, 11, 13)
	assert.Equal(t, 7, s.Dim(0))
	assert.Equal(t, 13, s.Dim(-1))
	assert.Equal(t, 11, s.Dim(-2))
	require.Panics(t, func() { s.Dim(3) })
	require.Panics(t, func() { s.Dim(-4) })
}

func TestEqual(t *testing.T) {
	assert.True(t, Make(dtypes.Float32, 2, 3).Equal(Make(dtypes.Float32, 2, 3)))
	assert.False(t, Make(dtypes.Float32, 2, 3).Equal(Make(dtypes.Float64, 2, 3)))
	assert.False(t, Make(dtypes.Float32, 2, 3).Equal(Make(dtypes.Float32, 3, 2)))
	assert.True(t, Make(dtypes.Float32, 2, 3).EqualDimensions(Make(dtypes.Float64, 2, 3)))
}

func TestStrides(t *testing.T) {
	s := Make(dtypes.Float32, 2, 3, 4)
	assert.Equal(t, []int{12, 4, 1}, s.Strides())
	assert.Empty(t, Scalar(dtypes.Float32).Strides())
}

func TestMemory(t *testing.T) {
	s := Make(dtypes.Float32, 32, 32)
	assert.Equal(t, uintptr(4*32*32), s.Memory())
}
