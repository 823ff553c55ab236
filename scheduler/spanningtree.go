// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package scheduler decides how a fusion executes: it replays loop
// transforms across the DAG, assigns parallel roles and memory placement,
// inlines producers into consumers, and derives launch geometry. The entry
// point for transpose-heavy fusions is ScheduleTranspose.
package scheduler

import (
	"github.com/gomlx/fuser/fusion"
	"k8s.io/klog/v2"
)

// Selector restricts which views a spanning tree grows into.
type Selector interface {
	// Allow reports whether the tree may take the edge from -> to.
	Allow(from, to *fusion.TensorView) bool
}

// allowAll is the default selector.
type allowAll struct{}

func (allowAll) Allow(from, to *fusion.TensorView) bool { return true }

// SetSelector allows propagation only into a fixed set of views.
type SetSelector struct {
	allowed map[*fusion.TensorView]bool
}

// NewSetSelector creates a selector allowing exactly the given views.
// The propagation reference itself doesn't need to be in the set.
func NewSetSelector(views ...*fusion.TensorView) *SetSelector {
	s := &SetSelector{allowed: make(map[*fusion.TensorView]bool, len(views))}
	for _, tv := range views {
		s.allowed[tv] = true
	}
	return s
}

// Allow implements Selector.
func (s *SetSelector) Allow(from, to *fusion.TensorView) bool {
	return s.allowed[to]
}

// Propagator receives the edges of a spanning tree in visit order. `from`
// has already been visited when an edge is delivered, so per-view state
// computed for `from` is available when processing `to`.
type Propagator interface {
	Propagate(from, to *fusion.TensorView)
}

// SpanningTree is a breadth-first spanning tree of the fusion DAG (followed
// in both producer->consumer and consumer->producer directions) rooted at a
// reference view. Propagation passes traverse it so that every reachable
// view is processed exactly once, through a deterministic path: neighbors
// are visited producers-first, in expression input/creation order.
type SpanningTree struct {
	reference *fusion.TensorView
	edges     []treeEdge
}

type treeEdge struct {
	from, to *fusion.TensorView
}

// NewSpanningTree builds the tree rooted at reference, growing only into
// views the selector allows. A nil selector allows everything.
func NewSpanningTree(reference *fusion.TensorView, selector Selector) *SpanningTree {
	if selector == nil {
		selector = allowAll{}
	}
	tree := &SpanningTree{reference: reference}
	visited := map[*fusion.TensorView]bool{reference: true}
	frontier := []*fusion.TensorView{reference}
	for len(frontier) > 0 {
		tv := frontier[0]
		frontier = frontier[1:]
		for _, next := range neighbors(tv) {
			if visited[next] || !selector.Allow(tv, next) {
				continue
			}
			// Only edges with a non-empty root-domain mapping carry
			// propagation; an all-broadcast edge connects no axes.
			if len(fusion.PairwiseRootMap(tv, next)) == 0 {
				continue
			}
			visited[next] = true
			tree.edges = append(tree.edges, treeEdge{from: tv, to: next})
			frontier = append(frontier, next)
		}
	}
	return tree
}

// neighbors returns the views adjacent to tv in the DAG: the inputs of its
// defining expression, then the outputs of its uses, in creation order.
func neighbors(tv *fusion.TensorView) []*fusion.TensorView {
	var result []*fusion.TensorView
	if def := tv.Definition(); def != nil {
		result = append(result, def.Inputs()...)
	}
	for _, use := range tv.Uses() {
		result = append(result, use.Output())
	}
	return result
}

// Reference the tree is rooted at.
func (t *SpanningTree) Reference() *fusion.TensorView { return t.reference }

// Views returns the reference plus every view reached by the tree, in visit order.
func (t *SpanningTree) Views() []*fusion.TensorView {
	result := []*fusion.TensorView{t.reference}
	for _, edge := range t.edges {
		result = append(result, edge.to)
	}
	return result
}

// Traverse delivers the tree's edges to the propagator in visit order.
func (t *SpanningTree) Traverse(propagator Propagator) {
	for _, edge := range t.edges {
		klog.V(2).Infof("spanning tree: %s -> %s", edge.from.Name(), edge.to.Name())
		propagator.Propagate(edge.from, edge.to)
	}
}
