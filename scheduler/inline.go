// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"math"

	"github.com/gomlx/fuser/fusion"
	"k8s.io/klog/v2"
)

// InlineMost nests every intermediate view's computation as deeply as
// legally possible inside its first consumer: producer and consumer leaf
// domains are aligned through the producer's root-domain mapping and the
// inline position is the longest shared loop prefix.
//
// Fusion inputs are never inlined (there is nothing to compute), and
// vectorized axes are never crossed: vectorization changes the granularity
// of the load/store it guards, so inlining stops just outside it.
func InlineMost(f *fusion.Fusion) {
	InlineAt(f, math.MaxInt)
}

// InlineAt is InlineMost with the inline positions capped at maxPos.
func InlineAt(f *fusion.Fusion, maxPos int) {
	for _, tv := range f.Views() {
		if f.IsInput(tv) || tv.Definition() == nil || len(tv.Uses()) == 0 {
			continue
		}
		consumer := tv.Uses()[0].Output()
		pos := min(maxInlinePosition(tv, consumer), maxPos)
		tv.ComputeAt(consumer, pos)
		klog.V(2).Infof("inline: %s at position %d of %s", tv.Name(), pos, consumer.Name())
	}
}

// maxInlinePosition computes the deepest legal inline position of producer
// into consumer: the longest prefix on which their leaf domains agree,
// position by position, through the root-domain mapping.
func maxInlinePosition(producer, consumer *fusion.TensorView) int {
	corr := fusion.PairwiseRootMap(consumer, producer)
	leaf, align, _ := fusion.DryReplayTransforms(consumer, producer, corr)
	if !fusion.SameLeafStructure(producer.LeafDomain(), leaf) {
		// The producer was scheduled independently of this consumer; no
		// shared loops.
		return 0
	}
	consumerLeaf := consumer.LeafDomain()
	pos := 0
	for ; pos < len(leaf) && pos < len(consumerLeaf); pos++ {
		refAxis, ok := align[leaf[pos]]
		if !ok || refAxis != consumerLeaf[pos] {
			break
		}
		if producer.LeafDomain()[pos].ParallelType() == fusion.ParallelTypeVectorize ||
			consumerLeaf[pos].ParallelType() == fusion.ParallelTypeVectorize {
			break
		}
	}
	return pos
}
