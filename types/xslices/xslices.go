// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provide missing functionality to the standard "slices" package.
package xslices

import (
	"github.com/gomlx/exceptions"
	"golang.org/x/exp/constraints"
)

// Number represents the types that support the basic arithmetic operations.
type Number interface {
	constraints.Integer | constraints.Float
}

// At returns the element at the given index. Negative indices are taken
// from the end -- so At(slice, -1) is the last element.
func At[T any](slice []T, index int) T {
	if index < 0 {
		index = len(slice) + index
	}
	if index < 0 || index >= len(slice) {
		exceptions.Panicf("xslices.At: index %d out-of-bounds for slice of length %d", index, len(slice))
	}
	return slice[index]
}

// Last returns the last element of the slice.
func Last[T any](slice []T) T {
	return At(slice, -1)
}

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// Iota returns a slice of incremental int values, starting with start and of the given length.
func Iota[T Number](start T, length int) (slice []T) {
	slice = make([]T, length)
	for ii := range slice {
		slice[ii] = start + T(ii)
	}
	return
}

// Reverse the order of the elements of the slice, in place.
func Reverse[T any](slice []T) {
	for ii := 0; ii < len(slice)/2; ii++ {
		jj := len(slice) - ii - 1
		slice[ii], slice[jj] = slice[jj], slice[ii]
	}
}

// Product returns the product of all elements of the slice. The product of
// an empty slice is 1.
func Product[T Number](slice []T) (product T) {
	product = T(1)
	for _, e := range slice {
		product *= e
	}
	return
}
