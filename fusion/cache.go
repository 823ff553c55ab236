// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fusion

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/fuser/types/xslices"
)

// CacheAfter inserts a cache copy between tv and all of its consumers:
// every expression that consumed tv now consumes the cache, and a new Set
// expression fills the cache from tv. Returns the cache view.
//
// The cache starts with tv's memory type; schedule heuristics typically move
// it to shared memory (see TensorView.SetMemoryType) or keep it in registers
// implicitly through inlining.
//
// tv must have at least one consumer: caching a dead view would create an
// unreachable expression.
func (tv *TensorView) CacheAfter() *TensorView {
	if len(tv.uses) == 0 {
		exceptions.Panicf("CacheAfter(%s): view has no consumers", tv.Name())
	}
	if tv.fusion.IsOutput(tv) {
		// An output with consumers would need both the cached and the
		// original value live; outputs are cached with CacheBefore instead.
		exceptions.Panicf("CacheAfter(%s): view is a fusion output, use CacheBefore", tv.Name())
	}
	consumers := tv.uses
	tv.uses = nil
	cache := newSetOp(tv)
	for _, expr := range consumers {
		for i, in := range expr.inputs {
			if in == tv {
				expr.inputs[i] = cache
			}
		}
		cache.uses = append(cache.uses, expr)
	}
	return cache
}

// CacheBefore inserts a cache copy between tv and its producer: the
// expression that defined tv now defines the cache, and a new Set expression
// copies the cache into tv. Returns the cache view.
//
// Typically applied to fusion outputs, so the epilogue write to global
// memory reads from a schedulable intermediate.
func (tv *TensorView) CacheBefore() *TensorView {
	def := tv.definition
	if def == nil {
		exceptions.Panicf("CacheBefore(%s): view has no defining expression", tv.Name())
	}
	f := tv.fusion
	cache := f.newView(tv.dtype, cloneDomain(tv.root))
	def.output = cache
	cache.definition = def
	tv.definition = nil
	f.newExpr(&Expr{
		kind:     OpKindSet,
		inputs:   []*TensorView{cache},
		output:   tv,
		axisMaps: [][]int{xslices.Iota(0, tv.RootRank())},
	})
	return cache
}

func cloneDomain(domain []*IterDomain) []*IterDomain {
	result := make([]*IterDomain, len(domain))
	for i, d := range domain {
		result[i] = d.clone()
	}
	return result
}
