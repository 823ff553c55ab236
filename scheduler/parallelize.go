// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/fuser/fusion"
	"k8s.io/klog/v2"
)

// ParallelizeAllLike copies the reference's parallel roles to the leaf axes
// of targets that align with reference leaf axes. A nil targets applies to
// every view of the fusion; a non-empty kinds restricts which roles are
// copied.
//
// A target is matched positionally: the reference's transforms are
// dry-replayed onto it and, where the computed leaf agrees axis by axis
// with the target's actual leaf, roles cross over. Targets whose leaf
// doesn't have the replayed structure (e.g. views scheduled by a different
// reference) are skipped.
func ParallelizeAllLike(reference *fusion.TensorView, targets []*fusion.TensorView, kinds ...fusion.ParallelType) {
	if targets == nil {
		targets = reference.Fusion().Views()
	}
	targetSet := make(map[*fusion.TensorView]bool, len(targets))
	for _, tv := range targets {
		targetSet[tv] = true
	}
	kindSet := make(map[fusion.ParallelType]bool, len(kinds))
	for _, kind := range kinds {
		kindSet[kind] = true
	}

	p := &parallelizePropagator{
		reference: reference,
		targets:   targetSet,
		kinds:     kindSet,
		corr: map[*fusion.TensorView]map[*fusion.IterDomain]*fusion.IterDomain{
			reference: identityCorr(reference),
		},
	}
	NewSpanningTree(reference, nil).Traverse(p)
}

func identityCorr(tv *fusion.TensorView) map[*fusion.IterDomain]*fusion.IterDomain {
	identity := make(map[*fusion.IterDomain]*fusion.IterDomain, tv.RootRank())
	for _, axis := range tv.RootDomain() {
		identity[axis] = axis
	}
	return identity
}

type parallelizePropagator struct {
	reference *fusion.TensorView
	targets   map[*fusion.TensorView]bool
	kinds     map[fusion.ParallelType]bool
	corr      map[*fusion.TensorView]map[*fusion.IterDomain]*fusion.IterDomain
}

// Propagate implements Propagator.
func (p *parallelizePropagator) Propagate(from, to *fusion.TensorView) {
	fromCorr, found := p.corr[from]
	if !found {
		exceptions.Panicf("ParallelizeAllLike: %s reached before %s, traversal is not a spanning tree",
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
	if !p.targets[to] {
		return
	}

	leaf, align, _ := fusion.DryReplayTransforms(p.reference, to, toCorr)
	actual := to.LeafDomain()
	if !fusion.SameLeafStructure(actual, leaf) {
		klog.V(2).Infof("ParallelizeAllLike: %s has a different loop structure than %s, skipped",
			to.Name(), p.reference.Name())
		return
	}
	for i, computed := range leaf {
		refAxis, ok := align[computed]
		if !ok {
			continue
		}
		role := refAxis.ParallelType()
		if role == fusion.ParallelTypeNone {
			continue
		}
		if len(p.kinds) > 0 && !p.kinds[role] {
			continue
		}
		if role == fusion.ParallelTypeVectorize && i != len(leaf)-1 {
			klog.V(2).Infof("ParallelizeAllLike: %s axis %d aligns with a vectorized axis but is not innermost, skipped",
				to.Name(), i)
			continue
		}
		to.Parallelize(i, role)
	}
}
