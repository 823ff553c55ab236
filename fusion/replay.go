// Copyright 2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fusion

import (
	"slices"

	"github.com/gomlx/exceptions"
)

// Transform replay: re-applying one view's schedule record onto another view
// whose root domain partially corresponds to it.
//
// The replay walks the reference's transform record from its root domain,
// maintaining a shadow of the reference's evolving leaf domain where each
// shadow slot is tagged with the corresponding axis of the target being
// built (or untagged, when the reference axis has no counterpart in the
// target). Transforms touching only untagged slots are skipped; transforms
// touching tagged slots are re-applied to the target at the positions the
// tags currently occupy. Target axes with no counterpart in the reference
// are left alone, keeping their relative order. Swizzles are not replayed:
// they remap the addressing of one view's tile and stay local to it.

// SameLeafStructure reports whether two leaf domains match axis by axis in
// extent, iteration type and swizzle (parallel roles are ignored).
func SameLeafStructure(a, b []*IterDomain) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].StructurallyEqual(b[i]) {
			return false
		}
	}
	return true
}

// replayState carries the working target leaf and the shadow of the
// reference's leaf during one replay.
type replayState struct {
	target *TensorView

	// leaf is the target leaf domain being built.
	leaf []*IterDomain

	// shadow mirrors the reference's leaf domain as the replay advances:
	// shadow[i] is the target axis corresponding to the reference's i-th
	// leaf axis at the current step, or nil if there is none.
	shadow []*IterDomain

	record []Transform
}

func (s *replayState) indexOf(axis *IterDomain) int {
	for i, a := range s.leaf {
		if a == axis {
			return i
		}
	}
	exceptions.Panicf("transform replay on %s lost track of a working axis", s.target.Name())
	return -1
}

// applyOrder reorders the working leaf to newOrder (a permutation of the
// same axes), recording the ReorderTransform. No-op if already in order.
func (s *replayState) applyOrder(newOrder []*IterDomain) {
	if slices.Equal(s.leaf, newOrder) {
		return
	}
	perm := make([]int, len(s.leaf))
	for oldPos, axis := range s.leaf {
		perm[oldPos] = slices.Index(newOrder, axis)
	}
	s.leaf = newOrder
	s.record = append(s.record, &ReorderTransform{Old2New: perm})
}

func (s *replayState) replaySplit(t *SplitTransform) {
	tag := s.shadow[t.Axis]
	if tag == nil {
		s.shadow = slices.Insert(s.shadow, t.Axis, (*IterDomain)(nil))
		return
	}
	at := s.indexOf(tag)
	outer := newIterDomain(ceilDivExtent(tag.extent, t.Factor), tag.iterType)
	inner := newIterDomain(ConstExtent(t.Factor), tag.iterType)
	s.leaf = slices.Concat(s.leaf[:at], []*IterDomain{outer, inner}, s.leaf[at+1:])
	s.record = append(s.record, &SplitTransform{Axis: at, Factor: t.Factor})
	s.shadow[t.Axis] = outer
	s.shadow = slices.Insert(s.shadow, t.Axis+1, inner)
}

func (s *replayState) replayMerge(t *MergeTransform) {
	outerTag, innerTag := s.shadow[t.Axis], s.shadow[t.Axis+1]
	switch {
	case outerTag != nil && innerTag != nil:
		// Move the inner axis right after the outer one if they drifted
		// apart, then merge.
		newOrder := slices.Clone(s.leaf)
		newOrder = slices.Delete(newOrder, slices.Index(newOrder, innerTag), slices.Index(newOrder, innerTag)+1)
		newOrder = slices.Insert(newOrder, slices.Index(newOrder, outerTag)+1, innerTag)
		s.applyOrder(newOrder)
		at := s.indexOf(outerTag)
		merged := newIterDomain(mulExtent(outerTag.extent, innerTag.extent), mergeIterType(outerTag, innerTag))
		s.leaf = slices.Concat(s.leaf[:at], []*IterDomain{merged}, s.leaf[at+2:])
		s.record = append(s.record, &MergeTransform{Axis: at})
		s.shadow[t.Axis] = merged
	case outerTag != nil:
		s.shadow[t.Axis] = outerTag
	default:
		s.shadow[t.Axis] = innerTag // possibly nil
	}
	s.shadow = slices.Delete(s.shadow, t.Axis+1, t.Axis+2)
}

func (s *replayState) replayReorder(t *ReorderTransform) {
	newShadow := make([]*IterDomain, len(s.shadow))
	for oldPos, tag := range s.shadow {
		newShadow[t.Old2New[oldPos]] = tag
	}
	s.shadow = newShadow

	// Reorder the tagged target axes among the slots they already occupy,
	// following the shadow's new order; untagged target axes stay put.
	orderedTags := make([]*IterDomain, 0, len(s.shadow))
	for _, tag := range s.shadow {
		if tag != nil {
			orderedTags = append(orderedTags, tag)
		}
	}
	tagged := make(map[*IterDomain]bool, len(orderedTags))
	for _, tag := range orderedTags {
		tagged[tag] = true
	}
	newOrder := slices.Clone(s.leaf)
	next := 0
	for pos, axis := range s.leaf {
		if tagged[axis] {
			newOrder[pos] = orderedTags[next]
			next++
		}
	}
	s.applyOrder(newOrder)
}

// DryReplayTransforms computes, without modifying target, the leaf domain
// target would have after replaying ref's transform record onto it.
//
// rootCorr maps root axes of ref to the corresponding root axes of target
// (axes absent from the map have no counterpart). It returns the computed
// leaf domain (fresh axes, no parallel roles), the alignment from those axes
// to the ref leaf axes they correspond to, and the transform record that
// produces the leaf from target's root domain.
func DryReplayTransforms(ref, target *TensorView, rootCorr map[*IterDomain]*IterDomain) (leaf []*IterDomain, align map[*IterDomain]*IterDomain, record []Transform) {
	state := &replayState{
		target: target,
		leaf:   cloneDomain(target.root),
		shadow: make([]*IterDomain, len(ref.root)),
	}
	working := make(map[*IterDomain]*IterDomain, len(target.root)) // target root axis -> working clone
	for i, rootAxis := range target.root {
		working[rootAxis] = state.leaf[i]
	}
	for i, refRoot := range ref.root {
		if targetRoot, ok := rootCorr[refRoot]; ok {
			state.shadow[i] = working[targetRoot]
		}
	}

	for _, t := range ref.transforms {
		switch t := t.(type) {
		case *SplitTransform:
			state.replaySplit(t)
		case *MergeTransform:
			state.replayMerge(t)
		case *ReorderTransform:
			state.replayReorder(t)
		case *SwizzleTransform:
			// Addressing-only and local to the reference's own tile.
		default:
			exceptions.Panicf("DryReplayTransforms: unknown transform %s", t)
		}
	}

	if len(state.shadow) != len(ref.leaf) {
		exceptions.Panicf("transform replay of %s onto %s diverged from the reference leaf domain",
			ref.Name(), target.Name())
	}
	align = make(map[*IterDomain]*IterDomain)
	for i, tag := range state.shadow {
		if tag != nil {
			align[tag] = ref.leaf[i]
		}
	}
	return state.leaf, align, state.record
}

// ReplayTransformsOnto replays ref's transform record onto target, replacing
// target's leaf domain, and returns the alignment from target's (new) leaf
// axes to the ref leaf axes they correspond to.
//
// If target's current leaf domain already has the replayed structure the
// replay is a no-op: the existing leaf is kept, preserving its parallel
// roles, and the alignment refers to the existing axes. This makes
// propagation idempotent and lets restricted propagation passes leave
// already-scheduled views untouched.
//
// Replaying the reference's unchanged record onto a target whose leaf no
// longer matches what that record produced is an inconsistency -- the target
// was transformed behind the propagation's back -- and panics. Replays from
// a different reference, or after the reference's record grew, legitimately
// overwrite (last write wins).
func ReplayTransformsOnto(ref, target *TensorView, rootCorr map[*IterDomain]*IterDomain) map[*IterDomain]*IterDomain {
	leaf, align, record := DryReplayTransforms(ref, target, rootCorr)
	if SameLeafStructure(target.leaf, leaf) {
		remapped := make(map[*IterDomain]*IterDomain, len(align))
		for i, computed := range leaf {
			if refAxis, ok := align[computed]; ok {
				remapped[target.leaf[i]] = refAxis
			}
		}
		return remapped
	}
	if target.replayedFrom == ref && target.replayedLen == len(ref.transforms) {
		exceptions.Panicf(
			"inconsistent replay of %s onto %s: the same transform record was already replayed onto it, "+
				"but %s's leaf domain has since diverged", ref.Name(), target.Name(), target.Name())
	}
	target.setReplayedLeaf(leaf, record, ref)
	return align
}
