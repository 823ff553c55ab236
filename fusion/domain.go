// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fusion

import (
	"fmt"

	"github.com/gomlx/exceptions"
)

// Extent is a symbolic expression for the size of one iteration axis.
//
// Input tensors are created with symbolic extents (one fresh symbol per
// axis); concrete tensors and split factors introduce constants; splits and
// merges build ceil-division and product expressions on top. Extents are
// immutable and shared: views derived from one another alias the same
// Extent objects, which is what keeps extents consistent across the DAG.
type Extent struct {
	kind     extentKind
	value    int     // for extentConst.
	name     string  // for extentSymbol, e.g. "i3".
	lhs, rhs *Extent // for extentCeilDiv and extentMul.
}

type extentKind int

const (
	extentSymbol extentKind = iota
	extentConst
	extentCeilDiv
	extentMul
)

// SymbolExtent returns a new symbolic extent with the given name.
// Fusion.NewTensor creates these; the names are unique within a Fusion.
func SymbolExtent(name string) *Extent {
	return &Extent{kind: extentSymbol, name: name}
}

// ConstExtent returns an extent with a known constant size.
func ConstExtent(value int) *Extent {
	if value <= 0 {
		exceptions.Panicf("ConstExtent(%d): extents must be positive", value)
	}
	return &Extent{kind: extentConst, value: value}
}

// ceilDivExtent returns ceil(lhs / factor), folding constants.
func ceilDivExtent(lhs *Extent, factor int) *Extent {
	if lhs.kind == extentConst {
		return ConstExtent((lhs.value + factor - 1) / factor)
	}
	return &Extent{kind: extentCeilDiv, lhs: lhs, rhs: ConstExtent(factor)}
}

// mulExtent returns lhs*rhs, folding constants.
func mulExtent(lhs, rhs *Extent) *Extent {
	if lhs.kind == extentConst && rhs.kind == extentConst {
		return ConstExtent(lhs.value * rhs.value)
	}
	if lhs.kind == extentConst && lhs.value == 1 {
		return rhs
	}
	if rhs.kind == extentConst && rhs.value == 1 {
		return lhs
	}
	return &Extent{kind: extentMul, lhs: lhs, rhs: rhs}
}

// IsConst returns whether the extent is a known constant.
func (e *Extent) IsConst() bool { return e.kind == extentConst }

// Evaluate resolves the extent to a concrete size, looking up symbols in
// bindings (symbol name -> size). It panics on an unbound symbol: bindings
// are expected to cover every input axis, see Fusion.BindInputs.
func (e *Extent) Evaluate(bindings map[string]int) int {
	switch e.kind {
	case extentConst:
		return e.value
	case extentSymbol:
		size, found := bindings[e.name]
		if !found {
			exceptions.Panicf("Extent.Evaluate: symbol %q is not bound", e.name)
		}
		return size
	case extentCeilDiv:
		factor := e.rhs.Evaluate(bindings)
		return (e.lhs.Evaluate(bindings) + factor - 1) / factor
	case extentMul:
		return e.lhs.Evaluate(bindings) * e.rhs.Evaluate(bindings)
	}
	exceptions.Panicf("Extent.Evaluate: invalid extent kind %d", e.kind)
	return 0
}

// Equivalent returns whether two extents are structurally the same expression.
func (e *Extent) Equivalent(other *Extent) bool {
	if e == other {
		return true
	}
	if e.kind != other.kind {
		return false
	}
	switch e.kind {
	case extentConst:
		return e.value == other.value
	case extentSymbol:
		return e.name == other.name
	default:
		return e.lhs.Equivalent(other.lhs) && e.rhs.Equivalent(other.rhs)
	}
}

// String implements fmt.Stringer.
func (e *Extent) String() string {
	switch e.kind {
	case extentConst:
		return fmt.Sprintf("%d", e.value)
	case extentSymbol:
		return e.name
	case extentCeilDiv:
		return fmt.Sprintf("ceilDiv(%s,%s)", e.lhs, e.rhs)
	case extentMul:
		return fmt.Sprintf("(%s*%s)", e.lhs, e.rhs)
	}
	return "?"
}

// IterType tells whether an axis iterates over real data or is a broadcast
// placeholder. Reductions don't appear in this scheduling core.
type IterType int

//go:generate go tool enumer -type=IterType -trimprefix=IterType -output=gen_itertype_enumer.go domain.go

const (
	IterTypeIteration IterType = iota
	IterTypeBroadcast
)

// ParallelType is the execution role assigned to one leaf axis: which
// hardware index (block or thread), or which instruction-level expansion
// (vectorize, unroll, unswitch), iterates it.
type ParallelType int

//go:generate go tool enumer -type=ParallelType -trimprefix=ParallelType -output=gen_paralleltype_enumer.go domain.go

const (
	ParallelTypeNone ParallelType = iota
	ParallelTypeBIDx
	ParallelTypeBIDy
	ParallelTypeBIDz
	ParallelTypeTIDx
	ParallelTypeTIDy
	ParallelTypeVectorize
	ParallelTypeUnroll
	ParallelTypeUnswitch
)

// IsBlockDim returns whether the role is a block index (BIDx/y/z).
func (t ParallelType) IsBlockDim() bool {
	return t == ParallelTypeBIDx || t == ParallelTypeBIDy || t == ParallelTypeBIDz
}

// IsThreadDim returns whether the role is a thread index (TIDx/y).
func (t ParallelType) IsThreadDim() bool {
	return t == ParallelTypeTIDx || t == ParallelTypeTIDy
}

// IsSpatial returns whether the role maps the axis to a hardware index.
// At most one axis per leaf domain may carry each spatial role.
func (t ParallelType) IsSpatial() bool {
	return t.IsBlockDim() || t.IsThreadDim()
}

// SwizzleType is the kind of index remapping applied to a pair of axes.
// Swizzling is purely a lowering-time addressing transform: it never changes
// what is iterated, only where elements land in (shared) memory.
type SwizzleType int

//go:generate go tool enumer -type=SwizzleType -trimprefix=SwizzleType -output=gen_swizzletype_enumer.go domain.go

const (
	SwizzleTypeNone SwizzleType = iota
	// SwizzleTypeTranspose cyclically shifts rows of a 2D tile so that both
	// row-major and column-major accesses spread over memory banks.
	SwizzleTypeTranspose
	// SwizzleTypeXOR XORs the two tile coordinates to form the inner address.
	SwizzleTypeXOR
)

// IterDomain is one iteration axis of a tensor view's domain. An IterDomain
// belongs to exactly one view's domain at a time; views derived from one
// another get fresh IterDomains that alias the same Extent.
type IterDomain struct {
	extent       *Extent
	iterType     IterType
	parallelType ParallelType
	swizzle      SwizzleType
}

func newIterDomain(extent *Extent, iterType IterType) *IterDomain {
	return &IterDomain{extent: extent, iterType: iterType}
}

// clone returns a fresh IterDomain with the same extent and iteration type,
// but no parallelization or swizzle. Used when deriving a new view's domain.
func (d *IterDomain) clone() *IterDomain {
	return newIterDomain(d.extent, d.iterType)
}

// Extent of the axis.
func (d *IterDomain) Extent() *Extent { return d.extent }

// IterType of the axis.
func (d *IterDomain) IterType() IterType { return d.iterType }

// IsBroadcast returns whether the axis is a broadcast placeholder.
func (d *IterDomain) IsBroadcast() bool { return d.iterType == IterTypeBroadcast }

// ParallelType is the execution role currently assigned to the axis.
func (d *IterDomain) ParallelType() ParallelType { return d.parallelType }

// Swizzle returns the swizzle kind marked on the axis, or SwizzleTypeNone.
func (d *IterDomain) Swizzle() SwizzleType { return d.swizzle }

// StructurallyEqual compares extent, iteration type and swizzle, ignoring
// the parallel role. Transform replay uses it to decide whether a replayed
// leaf matches an existing one.
func (d *IterDomain) StructurallyEqual(other *IterDomain) bool {
	return d.iterType == other.iterType &&
		d.swizzle == other.swizzle &&
		d.extent.Equivalent(other.extent)
}

// String implements fmt.Stringer. Broadcast axes print with a "b" prefix,
// iteration axes with "i"; the parallel role, if any, is appended.
func (d *IterDomain) String() string {
	prefix := "i"
	if d.IsBroadcast() {
		prefix = "b"
	}
	str := fmt.Sprintf("%s{%s}", prefix, d.extent)
	if d.parallelType != ParallelTypeNone {
		str += ":" + d.parallelType.String()
	}
	if d.swizzle != SwizzleTypeNone {
		str += ":sw" + d.swizzle.String()
	}
	return str
}
