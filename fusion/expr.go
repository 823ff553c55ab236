// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fusion

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
)

// OpKind identifies the class of operation an Expr performs.
type OpKind int

const (
	OpKindInvalid OpKind = iota

	// OpKindSet copies its input element-wise. Caches are Set expressions,
	// and so is transpose: a Set whose output root domain is a permutation
	// of the input's, with the permutation captured by the root-domain
	// mapping.
	OpKindSet

	// OpKindUnary applies an element-wise unary function.
	OpKindUnary

	// OpKindBinary applies an element-wise binary function.
	OpKindBinary

	// OpKindBroadcast inserts broadcast axes into its input.
	OpKindBroadcast
)

// String implements fmt.Stringer.
func (k OpKind) String() string {
	switch k {
	case OpKindSet:
		return "Set"
	case OpKindUnary:
		return "Unary"
	case OpKindBinary:
		return "Binary"
	case OpKindBroadcast:
		return "Broadcast"
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// UnaryOpKind is the element-wise unary function applied by an OpKindUnary Expr.
type UnaryOpKind int

const (
	UnaryOpSin UnaryOpKind = iota
	UnaryOpCos
	UnaryOpSigmoid
	UnaryOpRelu
	UnaryOpTanh
	UnaryOpExp
	UnaryOpNeg
)

// String implements fmt.Stringer.
func (k UnaryOpKind) String() string {
	switch k {
	case UnaryOpSin:
		return "Sin"
	case UnaryOpCos:
		return "Cos"
	case UnaryOpSigmoid:
		return "Sigmoid"
	case UnaryOpRelu:
		return "Relu"
	case UnaryOpTanh:
		return "Tanh"
	case UnaryOpExp:
		return "Exp"
	case UnaryOpNeg:
		return "Neg"
	}
	return fmt.Sprintf("UnaryOpKind(%d)", int(k))
}

// BinaryOpKind is the element-wise binary function applied by an OpKindBinary Expr.
type BinaryOpKind int

const (
	BinaryOpAdd BinaryOpKind = iota
	BinaryOpSub
	BinaryOpMul
	BinaryOpDiv
)

// String implements fmt.Stringer.
func (k BinaryOpKind) String() string {
	switch k {
	case BinaryOpAdd:
		return "Add"
	case BinaryOpSub:
		return "Sub"
	case BinaryOpMul:
		return "Mul"
	case BinaryOpDiv:
		return "Div"
	}
	return fmt.Sprintf("BinaryOpKind(%d)", int(k))
}

// Expr is one operation of the Fusion DAG: it consumes input views and
// defines exactly one output view.
//
// At creation time each Expr records its root-domain mapping: for every
// output root axis, which input root axis (if any) it derives from. This
// mapping is the only channel through which schedule decisions cross between
// views.
type Expr struct {
	fusion *Fusion
	id     int
	kind   OpKind
	unary  UnaryOpKind
	binary BinaryOpKind

	inputs []*TensorView
	output *TensorView

	// axisMaps[i][j] is the root axis of inputs[i] that output root axis j
	// derives from, or -1 if none (e.g. a broadcast axis).
	axisMaps [][]int
}

// Kind of the operation.
func (e *Expr) Kind() OpKind { return e.kind }

// UnaryKind returns the unary function; only meaningful for OpKindUnary.
func (e *Expr) UnaryKind() UnaryOpKind { return e.unary }

// BinaryKind returns the binary function; only meaningful for OpKindBinary.
func (e *Expr) BinaryKind() BinaryOpKind { return e.binary }

// Inputs of the expression. The returned slice is owned by the Expr.
func (e *Expr) Inputs() []*TensorView { return e.inputs }

// Output view defined by the expression.
func (e *Expr) Output() *TensorView { return e.output }

// AxisMap returns, for the given input, the mapping from output root axis
// position to input root axis position (-1 where the output axis has no
// counterpart). The returned slice is owned by the Expr.
func (e *Expr) AxisMap(inputIdx int) []int { return e.axisMaps[inputIdx] }

// String implements fmt.Stringer.
func (e *Expr) String() string {
	names := make([]string, 0, len(e.inputs))
	for _, in := range e.inputs {
		names = append(names, in.Name())
	}
	op := e.kind.String()
	switch e.kind {
	case OpKindUnary:
		op = e.unary.String()
	case OpKindBinary:
		op = e.binary.String()
	}
	return fmt.Sprintf("%s = %s(%s)", e.output.Name(), op, strings.Join(names, ", "))
}

// PairwiseRootMap returns the root-domain mapping between two adjacent views
// of the DAG: a map from root axes of `from` to the corresponding root axes
// of `to`. The two views must be connected by a defining expression (one is
// an input of the other's definition); it panics otherwise.
//
// Broadcast axes with no counterpart are simply absent from the map -- an
// axis missing here is skipped by propagation, never silently assigned.
func PairwiseRootMap(from, to *TensorView) map[*IterDomain]*IterDomain {
	result := make(map[*IterDomain]*IterDomain)
	if expr := to.definition; expr != nil && exprConsumes(expr, from) {
		// from is a producer of to.
		for inputIdx, input := range expr.inputs {
			if input != from {
				continue
			}
			for outAxis, inAxis := range expr.axisMaps[inputIdx] {
				if inAxis >= 0 {
					result[from.root[inAxis]] = to.root[outAxis]
				}
			}
		}
		return result
	}
	if expr := from.definition; expr != nil && exprConsumes(expr, to) {
		// from is a consumer of to.
		for inputIdx, input := range expr.inputs {
			if input != to {
				continue
			}
			for outAxis, inAxis := range expr.axisMaps[inputIdx] {
				if inAxis >= 0 {
					result[from.root[outAxis]] = to.root[inAxis]
				}
			}
		}
		return result
	}
	exceptions.Panicf("PairwiseRootMap(%s, %s): views are not connected by an expression", from.Name(), to.Name())
	return nil
}

func exprConsumes(e *Expr, tv *TensorView) bool {
	for _, in := range e.inputs {
		if in == tv {
			return true
		}
	}
	return false
}
