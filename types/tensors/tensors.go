// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements a simple host-memory Tensor: a multidimensional
// array of one of the supported DTypes, stored flat in row-major order.
//
// Tensors are what gets fed into a compiled fusion and what comes out of it.
// The scheduling core itself only looks at their shapes (to bind symbolic
// extents); the backend reads and writes their flat data.
//
// Float16 values are stored using github.com/x448/float16.
package tensors

import (
	"math/rand"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/fuser/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
	"gonum.org/v1/gonum/floats"
)

// Tensor is a host-memory multidimensional array. The flat data is stored
// row-major ("C order").
type Tensor struct {
	shape shapes.Shape
	flat  any // []float32, []float64 or []float16.Float16, of length shape.Size().
}

// Supported lists the Go types a Tensor can hold.
type Supported interface {
	float32 | float64 | float16.Float16
}

func dtypeOf[T Supported]() dtypes.DType {
	var v T
	switch any(v).(type) {
	case float32:
		return dtypes.Float32
	case float64:
		return dtypes.Float64
	case float16.Float16:
		return dtypes.Float16
	}
	return dtypes.InvalidDType
}

// FromFlatDataAndDimensions creates a tensor with the given flat data and dimensions.
// The data slice is not copied, it is owned by the returned tensor.
func FromFlatDataAndDimensions[T Supported](data []T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypeOf[T](), dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("tensors.FromFlatDataAndDimensions: data has %d elements, but shape %s requires %d",
			len(data), shape, shape.Size())
	}
	return &Tensor{shape: shape, flat: data}
}

// New creates a zero-initialized tensor of the given dtype and dimensions.
func New(dtype dtypes.DType, dimensions ...int) *Tensor {
	shape := shapes.Make(dtype, dimensions...)
	return FromShape(shape)
}

// FromShape creates a zero-initialized tensor with the given shape.
func FromShape(shape shapes.Shape) *Tensor {
	t := &Tensor{shape: shape}
	switch shape.DType {
	case dtypes.Float32:
		t.flat = make([]float32, shape.Size())
	case dtypes.Float64:
		t.flat = make([]float64, shape.Size())
	case dtypes.Float16:
		t.flat = make([]float16.Float16, shape.Size())
	default:
		exceptions.Panicf("tensors: dtype %s not supported", shape.DType)
	}
	return t
}

// Uniform creates a tensor filled with uniform pseudo-random values in [0, 1),
// drawn from rng. Used mostly by tests and benchmarks.
func Uniform(rng *rand.Rand, dtype dtypes.DType, dimensions ...int) *Tensor {
	t := FromShape(shapes.Make(dtype, dimensions...))
	switch flat := t.flat.(type) {
	case []float32:
		for ii := range flat {
			flat[ii] = rng.Float32()
		}
	case []float64:
		for ii := range flat {
			flat[ii] = rng.Float64()
		}
	case []float16.Float16:
		for ii := range flat {
			flat[ii] = float16.Fromfloat32(rng.Float32())
		}
	}
	return t
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the tensor's elements.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank of the tensor's shape.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size is the number of elements stored.
func (t *Tensor) Size() int { return t.shape.Size() }

// Flat returns the tensor's flat data slice, asserting it holds elements of type T.
// The data is not copied: mutating it mutates the tensor.
func Flat[T Supported](t *Tensor) []T {
	flat, ok := t.flat.([]T)
	if !ok {
		exceptions.Panicf("tensors.Flat[%T]: tensor holds %s", flat, t.shape.DType)
	}
	return flat
}

// Float64Data returns a copy of the tensor's data converted to float64,
// whatever the underlying dtype. Convenient for comparisons.
func (t *Tensor) Float64Data() []float64 {
	out := make([]float64, t.Size())
	switch flat := t.flat.(type) {
	case []float32:
		for ii, v := range flat {
			out[ii] = float64(v)
		}
	case []float64:
		copy(out, flat)
	case []float16.Float16:
		for ii, v := range flat {
			out[ii] = float64(v.Float32())
		}
	}
	return out
}

// InDelta returns whether both tensors have the same shape dimensions and all
// their values are within delta of each other.
func (t *Tensor) InDelta(other *Tensor, delta float64) bool {
	if !t.shape.EqualDimensions(other.shape) {
		return false
	}
	if t.Size() == 0 {
		return true
	}
	return floats.EqualApprox(t.Float64Data(), other.Float64Data(), delta)
}

// Equal returns whether both tensors have the same shape and exactly the same values.
func (t *Tensor) Equal(other *Tensor) bool {
	if !t.shape.Equal(other.shape) {
		return false
	}
	return floats.Equal(t.Float64Data(), other.Float64Data())
}
