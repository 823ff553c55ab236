// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/fuser/fusion"
	"k8s.io/klog/v2"
)

// TransformPropagator replays the reference view's transform record onto
// every view the spanning tree reaches, so the whole (selected) DAG shares
// the reference's loop structure.
//
// As the tree is traversed it chains root-domain correspondences edge by
// edge, ending with a map from the reference's root axes to each view's;
// the replay itself is fusion.ReplayTransformsOnto. Replays are idempotent:
// a view whose leaf domain already matches is left untouched.
type TransformPropagator struct {
	reference *fusion.TensorView

	// corr[tv] maps reference root axes to tv's root axes.
	corr map[*fusion.TensorView]map[*fusion.IterDomain]*fusion.IterDomain
}

// NewTransformPropagator creates a propagator replaying from reference.
func NewTransformPropagator(reference *fusion.TensorView) *TransformPropagator {
	identity := make(map[*fusion.IterDomain]*fusion.IterDomain, reference.RootRank())
	for _, axis := range reference.RootDomain() {
		identity[axis] = axis
	}
	return &TransformPropagator{
		reference: reference,
		corr: map[*fusion.TensorView]map[*fusion.IterDomain]*fusion.IterDomain{
			reference: identity,
		},
	}
}

// Propagate implements Propagator.
func (p *TransformPropagator) Propagate(from, to *fusion.TensorView) {
	fromCorr, found := p.corr[from]
	if !found {
		exceptions.Panicf("TransformPropagator: %s reached before %s, traversal is not a spanning tree",
			to.Name(), from.Name())
	}
	pairwise := fusion.PairwiseRootMap(from, to)
	toCorr := make(map[*fusion.IterDomain]*fusion.IterDomain)
	for refAxis, fromAxis := range fromCorr {
		if toAxis, ok := pairwise[fromAxis]; ok {
			toCorr[refAxis] = toAxis
		}
	}
	p.corr[to] = toCorr
	fusion.ReplayTransformsOnto(p.reference, to, toCorr)
	klog.V(2).Infof("transform propagation %s -> %s: %s", p.reference.Name(), to.Name(), to)
}

// PropagateFrom runs the full pass: builds the spanning tree from the
// propagator's reference, restricted by selector (nil allows everything),
// and replays onto every reached view.
func (p *TransformPropagator) PropagateFrom(selector Selector) {
	NewSpanningTree(p.reference, selector).Traverse(p)
}
