package region

import (
	"fmt"

	"dpucompact/pkg/frame"
)

// ValidatePlacement checks the region's current fragment set: new_pfn
// values form a permutation of the old_pfn multiset, and every InUse
// new_pfn is less than every Free new_pfn (a compact prefix). It is
// meant for tests and for defensive assertions after pkg/plan runs; the
// planner itself is trusted to maintain these by construction.
func (r *Region) ValidatePlacement() error {
	frags := r.Fragments()

	oldSet := make(map[frame.PFN]int, len(frags))
	newSet := make(map[frame.PFN]int, len(frags))
	maxInUse := frame.PFN(0)
	haveInUse := false
	minFree := frame.PFN(0)
	haveFree := false

	for _, f := range frags {
		oldSet[f.OldPFN]++
		newSet[f.NewPFN]++
		if f.Kind == frame.InUse {
			if !haveInUse || f.NewPFN > maxInUse {
				maxInUse = f.NewPFN
				haveInUse = true
			}
		} else {
			if !haveFree || f.NewPFN < minFree {
				minFree = f.NewPFN
				haveFree = true
			}
		}
	}

	for pfn, n := range oldSet {
		if newSet[pfn] != n {
			return fmt.Errorf("region: new_pfn multiset does not match old_pfn multiset at %d", pfn)
		}
	}
	for pfn := range newSet {
		if oldSet[pfn] == 0 {
			return fmt.Errorf("region: new_pfn %d is not a permutation of old_pfn values", pfn)
		}
	}

	if haveInUse && haveFree && maxInUse >= minFree {
		return fmt.Errorf("region: InUse new_pfn %d is not below Free new_pfn %d", maxInUse, minFree)
	}
	return nil
}
