// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package hostref implements the reference backend: a host-side interpreter
// of fusions.
//
// It ignores the schedule -- leaf domains, parallel roles and memory
// placement don't change what a fusion computes, only how fast -- and
// evaluates the expression DAG element by element at root-domain
// granularity. That makes it the ground truth scheduled executions are
// validated against.
//
// Import it with:
//
//	import _ "github.com/gomlx/fuser/backends/hostref"
package hostref

import (
	"math"

	"github.com/gomlx/fuser/backends"
	"github.com/gomlx/fuser/fusion"
	"github.com/gomlx/fuser/types/shapes"
	"github.com/gomlx/fuser/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// BackendName to use in configuration strings (see backends.New).
const BackendName = "hostref"

func init() {
	backends.Register(BackendName, New)
}

// Backend interprets fusions on the host.
type Backend struct{}

// New creates a hostref backend. It takes no configuration.
func New(config string) (backends.Backend, error) {
	if config != "" {
		return nil, errors.Errorf("backend %q takes no configuration, got %q", BackendName, config)
	}
	return &Backend{}, nil
}

// Name implements backends.Backend.
func (b *Backend) Name() string { return BackendName }

// Description implements backends.Backend.
func (b *Backend) Description() string {
	return "Host reference interpreter (element-wise, unscheduled)"
}

// Finalize implements backends.Backend.
func (b *Backend) Finalize() {}

// Compile implements backends.Backend. The schedule's launch geometry is
// recorded for logging but not used: the interpreter runs sequentially.
func (b *Backend) Compile(f *fusion.Fusion, sampleInputs []*tensors.Tensor, params backends.LaunchParams) (backends.Executable, error) {
	bindings, err := f.BindInputs(sampleInputs)
	if err != nil {
		return nil, errors.WithMessage(err, "hostref: binding sample inputs")
	}
	for _, tv := range f.Views() {
		switch tv.DType() {
		case dtypes.Float32, dtypes.Float64, dtypes.Float16:
			// ok
		default:
			return nil, errors.Errorf("hostref: dtype %s is not implemented", tv.DType())
		}
	}
	exec := &Executable{
		id:       uuid.New(),
		fusion:   f,
		order:    f.TopologicalExprs(),
		bindings: bindings,
	}
	exec.inputShapes = make([]shapes.Shape, len(sampleInputs))
	for i, t := range sampleInputs {
		exec.inputShapes[i] = t.Shape()
	}
	klog.V(1).Infof("hostref: compiled executable %s: %d exprs, %s", exec.id, len(exec.order), params)
	return exec, nil
}

// Executable is a compiled (shape-specialized) fusion interpretation.
type Executable struct {
	id          uuid.UUID
	fusion      *fusion.Fusion
	order       []*fusion.Expr
	bindings    map[string]int
	inputShapes []shapes.Shape
}

// Finalize implements backends.Executable.
func (e *Executable) Finalize() {}

// Run implements backends.Executable.
func (e *Executable) Run(inputs []*tensors.Tensor) ([]*tensors.Tensor, error) {
	if len(inputs) != len(e.inputShapes) {
		return nil, errors.Errorf("hostref: executable %s takes %d inputs, got %d", e.id, len(e.inputShapes), len(inputs))
	}
	for i, t := range inputs {
		if !t.Shape().Equal(e.inputShapes[i]) {
			return nil, errors.Errorf("hostref: executable %s was compiled for input %d with shape %s, got %s",
				e.id, i, e.inputShapes[i], t.Shape())
		}
	}

	values := make(map[*fusion.TensorView][]float64)
	for i, tv := range e.fusion.Inputs() {
		values[tv] = inputs[i].Float64Data()
	}
	for _, expr := range e.order {
		values[expr.Output()] = e.evalExpr(expr, values)
	}

	outputs := make([]*tensors.Tensor, len(e.fusion.Outputs()))
	for i, tv := range e.fusion.Outputs() {
		data, found := values[tv]
		if !found {
			return nil, errors.Errorf("hostref: output %s was never computed -- is the fusion connected?", tv.Name())
		}
		outputs[i] = materialize(tv.DType(), e.viewDims(tv), data)
	}
	klog.V(2).Infof("hostref: executable %s ran %d exprs", e.id, len(e.order))
	return outputs, nil
}

// viewDims evaluates the root-domain extents of tv to concrete sizes.
func (e *Executable) viewDims(tv *fusion.TensorView) []int {
	dims := make([]int, tv.RootRank())
	for axis, d := range tv.RootDomain() {
		dims[axis] = d.Extent().Evaluate(e.bindings)
	}
	return dims
}

// evalExpr computes the output of expr element by element, reading input
// coordinates through the expression's root-domain mapping. Broadcast input
// axes (size 1) always read offset 0.
func (e *Executable) evalExpr(expr *fusion.Expr, values map[*fusion.TensorView][]float64) []float64 {
	outDims := e.viewDims(expr.Output())
	outStrides := rowMajorStrides(outDims)
	size := 1
	for _, d := range outDims {
		size *= d
	}

	type inputView struct {
		data    []float64
		dims    []int
		strides []int
		axisMap []int
	}
	ins := make([]inputView, len(expr.Inputs()))
	for i, in := range expr.Inputs() {
		dims := e.viewDims(in)
		ins[i] = inputView{
			data:    values[in],
			dims:    dims,
			strides: rowMajorStrides(dims),
			axisMap: expr.AxisMap(i),
		}
	}

	out := make([]float64, size)
	coords := make([]int, len(outDims))
	for linear := 0; linear < size; linear++ {
		rest := linear
		for axis, stride := range outStrides {
			coords[axis] = rest / stride
			rest %= stride
		}
		args := make([]float64, len(ins))
		for i, in := range ins {
			offset := 0
			for outAxis, inAxis := range in.axisMap {
				if inAxis < 0 {
					continue
				}
				c := coords[outAxis]
				if in.dims[inAxis] == 1 {
					c = 0
				}
				offset += c * in.strides[inAxis]
			}
			args[i] = in.data[offset]
		}
		out[linear] = apply(expr, args)
	}
	return out
}

func apply(expr *fusion.Expr, args []float64) float64 {
	switch expr.Kind() {
	case fusion.OpKindSet, fusion.OpKindBroadcast:
		return args[0]
	case fusion.OpKindUnary:
		x := args[0]
		switch expr.UnaryKind() {
		case fusion.UnaryOpSin:
			return math.Sin(x)
		case fusion.UnaryOpCos:
			return math.Cos(x)
		case fusion.UnaryOpSigmoid:
			return 1 / (1 + math.Exp(-x))
		case fusion.UnaryOpRelu:
			return math.Max(x, 0)
		case fusion.UnaryOpTanh:
			return math.Tanh(x)
		case fusion.UnaryOpExp:
			return math.Exp(x)
		case fusion.UnaryOpNeg:
			return -x
		}
	case fusion.OpKindBinary:
		lhs, rhs := args[0], args[1]
		switch expr.BinaryKind() {
		case fusion.BinaryOpAdd:
			return lhs + rhs
		case fusion.BinaryOpSub:
			return lhs - rhs
		case fusion.BinaryOpMul:
			return lhs * rhs
		case fusion.BinaryOpDiv:
			return lhs / rhs
		}
	}
	panic(errors.Errorf("hostref: cannot interpret expression %s", expr))
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

// materialize converts the interpreter's float64 buffer into a tensor of the
// view's dtype.
func materialize(dtype dtypes.DType, dims []int, data []float64) *tensors.Tensor {
	switch dtype {
	case dtypes.Float64:
		return tensors.FromFlatDataAndDimensions(append([]float64(nil), data...), dims...)
	case dtypes.Float32:
		flat := make([]float32, len(data))
		for i, v := range data {
			flat[i] = float32(v)
		}
		return tensors.FromFlatDataAndDimensions(flat, dims...)
	case dtypes.Float16:
		flat := make([]float16.Float16, len(data))
		for i, v := range data {
			flat[i] = float16.Fromfloat32(float32(v))
		}
		return tensors.FromFlatDataAndDimensions(flat, dims...)
	}
	panic(errors.Errorf("hostref: dtype %s is not implemented", dtype))
}
