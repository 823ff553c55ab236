// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fusion

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/fuser/types/xslices"
	"github.com/gomlx/gopjrt/dtypes"
)

// NewTensor creates a tensor view with the given rank and fresh symbolic
// extents, to be registered as a fusion input with Fusion.AddInput. The
// concrete sizes are bound later, from sample inputs (see Fusion.BindInputs).
func (f *Fusion) NewTensor(dtype dtypes.DType, rank int) *TensorView {
	if rank < 0 {
		exceptions.Panicf("NewTensor: negative rank %d", rank)
	}
	root := make([]*IterDomain, rank)
	for axis := range root {
		root[axis] = newIterDomain(SymbolExtent(f.newSymbol()), IterTypeIteration)
	}
	return f.newView(dtype, root)
}

// NewConcreteTensor creates a tensor view with the given concrete dimensions.
// Size-1 dimensions become broadcast axes, matching their iteration semantics.
func (f *Fusion) NewConcreteTensor(dtype dtypes.DType, dimensions ...int) *TensorView {
	root := make([]*IterDomain, len(dimensions))
	for axis, dim := range dimensions {
		if dim < 1 {
			exceptions.Panicf("NewConcreteTensor: dimension %d of axis %d must be positive", dim, axis)
		}
		iterType := IterTypeIteration
		if dim == 1 {
			iterType = IterTypeBroadcast
		}
		root[axis] = newIterDomain(ConstExtent(dim), iterType)
	}
	return f.newView(dtype, root)
}

// newElementwiseRoot builds the output root domain of an element-wise
// operation: per axis, the first non-broadcast input axis wins; if all
// inputs broadcast there, the output axis is a broadcast too.
func newElementwiseRoot(inputs []*TensorView) []*IterDomain {
	rank := inputs[0].RootRank()
	root := make([]*IterDomain, rank)
	for axis := 0; axis < rank; axis++ {
		picked := inputs[0].root[axis]
		for _, in := range inputs[1:] {
			if picked.IsBroadcast() && !in.root[axis].IsBroadcast() {
				picked = in.root[axis]
			}
		}
		root[axis] = picked.clone()
	}
	return root
}

func checkSameFusionAndRank(name string, inputs ...*TensorView) *Fusion {
	f := inputs[0].fusion
	rank := inputs[0].RootRank()
	for _, in := range inputs[1:] {
		if in.fusion != f {
			exceptions.Panicf("%s: operands belong to different fusions", name)
		}
		if in.RootRank() != rank {
			exceptions.Panicf("%s: operands have different ranks (%d vs %d) -- broadcast first", name, rank, in.RootRank())
		}
		if in.dtype != inputs[0].dtype {
			exceptions.Panicf("%s: operands have different dtypes (%s vs %s)", name, inputs[0].dtype, in.dtype)
		}
	}
	return f
}

func newUnaryOp(kind UnaryOpKind, in *TensorView) *TensorView {
	f := in.fusion
	out := f.newView(in.dtype, newElementwiseRoot([]*TensorView{in}))
	f.newExpr(&Expr{
		kind:     OpKindUnary,
		unary:    kind,
		inputs:   []*TensorView{in},
		output:   out,
		axisMaps: [][]int{xslices.Iota(0, in.RootRank())},
	})
	return out
}

func newBinaryOp(kind BinaryOpKind, lhs, rhs *TensorView) *TensorView {
	f := checkSameFusionAndRank("Binary"+kind.String(), lhs, rhs)
	out := f.newView(lhs.dtype, newElementwiseRoot([]*TensorView{lhs, rhs}))
	identity := xslices.Iota(0, lhs.RootRank())
	f.newExpr(&Expr{
		kind:     OpKindBinary,
		binary:   kind,
		inputs:   []*TensorView{lhs, rhs},
		output:   out,
		axisMaps: [][]int{identity, xslices.Iota(0, rhs.RootRank())},
	})
	return out
}

// newSetOp creates an identity copy of `in`, used by caches.
func newSetOp(in *TensorView) *TensorView {
	f := in.fusion
	out := f.newView(in.dtype, newElementwiseRoot([]*TensorView{in}))
	f.newExpr(&Expr{
		kind:     OpKindSet,
		inputs:   []*TensorView{in},
		output:   out,
		axisMaps: [][]int{xslices.Iota(0, in.RootRank())},
	})
	return out
}

// Sin returns sin(in), element-wise.
func Sin(in *TensorView) *TensorView { return newUnaryOp(UnaryOpSin, in) }

// Cos returns cos(in), element-wise.
func Cos(in *TensorView) *TensorView { return newUnaryOp(UnaryOpCos, in) }

// Sigmoid returns 1/(1+exp(-in)), element-wise.
func Sigmoid(in *TensorView) *TensorView { return newUnaryOp(UnaryOpSigmoid, in) }

// Relu returns max(in, 0), element-wise.
func Relu(in *TensorView) *TensorView { return newUnaryOp(UnaryOpRelu, in) }

// Tanh returns tanh(in), element-wise.
func Tanh(in *TensorView) *TensorView { return newUnaryOp(UnaryOpTanh, in) }

// Exp returns exp(in), element-wise.
func Exp(in *TensorView) *TensorView { return newUnaryOp(UnaryOpExp, in) }

// Neg returns -in, element-wise.
func Neg(in *TensorView) *TensorView { return newUnaryOp(UnaryOpNeg, in) }

// Add returns lhs+rhs, element-wise. Operands must have the same rank;
// broadcast lower-rank operands first.
func Add(lhs, rhs *TensorView) *TensorView { return newBinaryOp(BinaryOpAdd, lhs, rhs) }

// Sub returns lhs-rhs, element-wise.
func Sub(lhs, rhs *TensorView) *TensorView { return newBinaryOp(BinaryOpSub, lhs, rhs) }

// Mul returns lhs*rhs, element-wise.
func Mul(lhs, rhs *TensorView) *TensorView { return newBinaryOp(BinaryOpMul, lhs, rhs) }

// Div returns lhs/rhs, element-wise.
func Div(lhs, rhs *TensorView) *TensorView { return newBinaryOp(BinaryOpDiv, lhs, rhs) }

// Transpose returns a view of `in` with axes axisA and axisB swapped.
//
// It is modeled as a Set expression whose output root domain is the permuted
// copy of the input's; the axis swap lives in the root-domain mapping, which
// is how it becomes visible to schedule propagation.
func Transpose(in *TensorView, axisA, axisB int) *TensorView {
	f := in.fusion
	rank := in.RootRank()
	a, b := axisA, axisB
	if a < 0 {
		a += rank
	}
	if b < 0 {
		b += rank
	}
	if a < 0 || a >= rank || b < 0 || b >= rank {
		exceptions.Panicf("Transpose(%s, %d, %d): axes out-of-range for rank %d", in.Name(), axisA, axisB, rank)
	}
	if a == b {
		exceptions.Panicf("Transpose(%s, %d, %d): axes must be distinct", in.Name(), axisA, axisB)
	}
	perm := xslices.Iota(0, rank)
	perm[a], perm[b] = perm[b], perm[a]
	root := make([]*IterDomain, rank)
	for axis := 0; axis < rank; axis++ {
		root[axis] = in.root[perm[axis]].clone()
	}
	out := f.newView(in.dtype, root)
	f.newExpr(&Expr{
		kind:     OpKindSet,
		inputs:   []*TensorView{in},
		output:   out,
		axisMaps: [][]int{perm},
	})
	return out
}

// Broadcast inserts broadcast axes into `in`: the mask has one entry per
// output axis, true marking a new broadcast axis, false consuming the next
// input axis. The number of false entries must equal the input's rank.
func Broadcast(in *TensorView, mask []bool) *TensorView {
	f := in.fusion
	concrete := 0
	for _, isBroadcast := range mask {
		if !isBroadcast {
			concrete++
		}
	}
	if concrete != in.RootRank() {
		exceptions.Panicf("Broadcast(%s): mask has %d non-broadcast entries, input has rank %d",
			in.Name(), concrete, in.RootRank())
	}
	root := make([]*IterDomain, len(mask))
	axisMap := make([]int, len(mask))
	nextInput := 0
	for axis, isBroadcast := range mask {
		if isBroadcast {
			root[axis] = newIterDomain(ConstExtent(1), IterTypeBroadcast)
			axisMap[axis] = -1
		} else {
			root[axis] = in.root[nextInput].clone()
			axisMap[axis] = nextInput
			nextInput++
		}
	}
	out := f.newView(in.dtype, root)
	f.newExpr(&Expr{
		kind:     OpKindBroadcast,
		inputs:   []*TensorView{in},
		output:   out,
		axisMaps: [][]int{axisMap},
	})
	return out
}
