// Package plan implements the placement planner: a pure, single forward
// pass over a region's fragments that computes the old→new frame mapping
// compacting InUse frames into the prefix of the region. It performs no
// I/O and takes no locks on other subsystems; the region's own fragment
// list is read and written while the caller holds the region in
// region.Collecting, between the isolation walker finishing and the
// unmap phase starting, so no concurrent mutation is possible.
//
// A two-pointer front/back variant, which assigns targets from both ends
// of the window inward and reverses relative order, is intentionally not
// implemented here: it produces unstable tie-breaks when both ends
// contend for the same frame.
package plan

import (
	"errors"

	"dpucompact/pkg/frame"
	"dpucompact/pkg/region"
)

// ErrPrecondition means the region was not in region.Collecting, or held
// no fragments, when Run was called.
var ErrPrecondition = errors.New("plan: region not in Collecting state or has no fragments")

// Run assigns NewPFN to every fragment in r in a single ascending pass,
// packing InUse fragments into the low end of the window starting at
// r.BasePFN and Free fragments into the remaining high end, preserving
// the relative order within each kind. It returns the highest NewPFN
// assigned to an InUse fragment, and false if the region held no InUse
// fragments at all (an all-Free region).
func Run(r *region.Region) (lastInUsePFN frame.PFN, hasInUse bool, err error) {
	if r.State() != region.Collecting {
		return 0, false, ErrPrecondition
	}
	frags := r.Fragments()
	if len(frags) == 0 {
		return 0, false, ErrPrecondition
	}

	nextTarget := r.BasePFN
	var deferred []*frame.Record

	for _, f := range frags {
		if f.Kind == frame.InUse {
			f.NewPFN = nextTarget
			nextTarget++
			lastInUsePFN = f.NewPFN
			hasInUse = true
		} else {
			deferred = append(deferred, f)
		}
	}

	for _, f := range deferred {
		f.NewPFN = nextTarget
		nextTarget++
	}

	r.LastInUsePFN = lastInUsePFN
	r.HasInUseFragments = hasInUse
	return lastInUsePFN, hasInUse, nil
}
