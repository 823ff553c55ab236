// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fusion holds the operator DAG and per-view iteration domains of a
// fusion: the unit of work a just-in-time fusion compiler schedules and
// compiles into one kernel.
//
// A Fusion owns a set of TensorView nodes connected by Expr operations. Each
// view carries a root domain (its logical axes) and a leaf domain (the loop
// nest after schedule transforms); views derived from one another are linked
// by root-domain mappings established when the operation is created. The
// scheduler package replays transforms, parallel roles and inlining
// decisions across the DAG through those mappings, and package backends
// compiles and runs the scheduled result.
//
// Building a graph looks like:
//
//	f := fusion.New()
//	tv0 := f.NewTensor(dtypes.Float32, 2)
//	f.AddInput(tv0)
//	tv1 := fusion.Transpose(tv0, 0, 1)
//	f.AddOutput(tv1)
//
// All graph construction and scheduling is a single-threaded, synchronous
// pass: a Fusion must not be mutated concurrently. Malformed construction or
// schedule calls panic immediately with a stack trace (see
// github.com/gomlx/exceptions); they are programming errors, not runtime
// conditions.
package fusion

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/fuser/types/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Fusion is the operator DAG being scheduled. It owns its views and
// expressions; edges between them are plain references registered at
// construction time, which makes cycles impossible by construction (an
// expression can only consume already-existing views).
type Fusion struct {
	views   []*TensorView
	exprs   []*Expr
	inputs  []*TensorView
	outputs []*TensorView

	nextSymbolID int
}

// New creates an empty Fusion.
func New() *Fusion {
	return &Fusion{}
}

func (f *Fusion) newSymbol() string {
	name := fmt.Sprintf("i%d", f.nextSymbolID)
	f.nextSymbolID++
	return name
}

func (f *Fusion) newView(dtype dtypes.DType, root []*IterDomain) *TensorView {
	tv := &TensorView{
		fusion: f,
		id:     len(f.views),
		dtype:  dtype,
		root:   root,
		leaf:   append([]*IterDomain(nil), root...),
	}
	f.views = append(f.views, tv)
	return tv
}

func (f *Fusion) newExpr(e *Expr) *Expr {
	e.fusion = f
	e.id = len(f.exprs)
	for _, in := range e.inputs {
		if in.fusion != f {
			exceptions.Panicf("expression %s consumes a view from another fusion", e)
		}
		in.uses = append(in.uses, e)
	}
	if e.output.definition != nil {
		exceptions.Panicf("expression %s redefines %s", e, e.output.Name())
	}
	e.output.definition = e
	f.exprs = append(f.exprs, e)
	return e
}

// AddInput registers tv as a fusion input. Inputs must not have a defining
// expression.
func (f *Fusion) AddInput(tv *TensorView) {
	if tv.fusion != f {
		exceptions.Panicf("AddInput(%s): view belongs to another fusion", tv.Name())
	}
	if tv.definition != nil {
		exceptions.Panicf("AddInput(%s): view is defined by %s, only source views can be inputs", tv.Name(), tv.definition)
	}
	for _, in := range f.inputs {
		if in == tv {
			exceptions.Panicf("AddInput(%s): view already registered as input", tv.Name())
		}
	}
	f.inputs = append(f.inputs, tv)
}

// AddOutput registers tv as a fusion output.
func (f *Fusion) AddOutput(tv *TensorView) {
	if tv.fusion != f {
		exceptions.Panicf("AddOutput(%s): view belongs to another fusion", tv.Name())
	}
	for _, out := range f.outputs {
		if out == tv {
			exceptions.Panicf("AddOutput(%s): view already registered as output", tv.Name())
		}
	}
	f.outputs = append(f.outputs, tv)
}

// Inputs returns the fusion inputs, in registration order. The returned
// slice is owned by the Fusion.
func (f *Fusion) Inputs() []*TensorView { return f.inputs }

// Outputs returns the fusion outputs, in registration order. The returned
// slice is owned by the Fusion.
func (f *Fusion) Outputs() []*TensorView { return f.outputs }

// Views returns every view of the fusion, in creation order. The returned
// slice is owned by the Fusion.
func (f *Fusion) Views() []*TensorView { return f.views }

// Exprs returns every expression of the fusion, in creation order. The
// returned slice is owned by the Fusion.
func (f *Fusion) Exprs() []*Expr { return f.exprs }

// IsInput returns whether tv is a registered fusion input.
func (f *Fusion) IsInput(tv *TensorView) bool {
	for _, in := range f.inputs {
		if in == tv {
			return true
		}
	}
	return false
}

// IsOutput returns whether tv is a registered fusion output.
func (f *Fusion) IsOutput(tv *TensorView) bool {
	for _, out := range f.outputs {
		if out == tv {
			return true
		}
	}
	return false
}

// ViewsExcept returns every view of the fusion except the given ones, in
// creation order. Convenient for building propagation selectors.
func (f *Fusion) ViewsExcept(except ...*TensorView) []*TensorView {
	excluded := make(map[*TensorView]bool, len(except))
	for _, tv := range except {
		excluded[tv] = true
	}
	result := make([]*TensorView, 0, len(f.views))
	for _, tv := range f.views {
		if !excluded[tv] {
			result = append(result, tv)
		}
	}
	return result
}

// TopologicalExprs returns the expressions ordered so that every expression
// appears after the definitions of all its inputs. Deterministic: among
// ready expressions, creation order wins. Cache insertion rewires uses, so
// plain creation order is not always topological.
func (f *Fusion) TopologicalExprs() []*Expr {
	emitted := make(map[*Expr]bool, len(f.exprs))
	order := make([]*Expr, 0, len(f.exprs))
	for len(order) < len(f.exprs) {
		progress := false
		for _, e := range f.exprs {
			if emitted[e] {
				continue
			}
			ready := true
			for _, in := range e.inputs {
				if in.definition != nil && !emitted[in.definition] {
					ready = false
					break
				}
			}
			if ready {
				emitted[e] = true
				order = append(order, e)
				progress = true
			}
		}
		if !progress {
			exceptions.Panicf("fusion has a cycle among its expressions")
		}
	}
	return order
}

// BindInputs matches sample input tensors against the fusion inputs and
// returns the bindings from symbolic extent names to concrete sizes.
//
// It returns an error (rather than panicking) on rank or dimension
// mismatches: feeding wrong inputs is a caller-facing condition, reported at
// the schedule/compile boundary.
func (f *Fusion) BindInputs(inputs []*tensors.Tensor) (map[string]int, error) {
	if len(inputs) != len(f.inputs) {
		return nil, errors.Errorf("fusion has %d inputs, got %d sample tensors", len(f.inputs), len(inputs))
	}
	bindings := make(map[string]int)
	for inputIdx, tv := range f.inputs {
		shape := inputs[inputIdx].Shape()
		if shape.Rank() != tv.RootRank() {
			return nil, errors.Errorf("input %d (%s) has rank %d, sample tensor has rank %d",
				inputIdx, tv.Name(), tv.RootRank(), shape.Rank())
		}
		if inputs[inputIdx].DType() != tv.DType() {
			return nil, errors.Errorf("input %d (%s) has dtype %s, sample tensor has dtype %s",
				inputIdx, tv.Name(), tv.DType(), inputs[inputIdx].DType())
		}
		for axis, axisDomain := range tv.root {
			dim := shape.Dim(axis)
			extent := axisDomain.extent
			switch {
			case extent.kind == extentSymbol:
				if bound, found := bindings[extent.name]; found && bound != dim {
					return nil, errors.Errorf("input %d (%s) axis %d: symbol %s bound to both %d and %d",
						inputIdx, tv.Name(), axis, extent.name, bound, dim)
				}
				bindings[extent.name] = dim
			case extent.IsConst():
				if extent.value != dim {
					return nil, errors.Errorf("input %d (%s) axis %d: expected dimension %d, sample tensor has %d",
						inputIdx, tv.Name(), axis, extent.value, dim)
				}
			}
		}
	}
	return bindings, nil
}
