// Package protocol implements the unmap/remap coherence protocol
// wrapping the DPU-driven bulk copy: an unmap phase that turns every
// concurrent accessor into a transient waiter, and a remap phase that
// converts the placeholders back into real translations once the data
// has moved.
package protocol

import "dpucompact/pkg/frame"
import "dpucompact/pkg/hostmem"
import "dpucompact/pkg/region"

// Unmap runs the unmap phase over every InUse fragment in r, in
// frame-ascending order, installing migration placeholders ahead of the
// DPU move. It must run while r is in region.Collecting, immediately
// after the planner, and must finish before any byte is copied.
func Unmap(r *region.Region, zone hostmem.Zone) {
	for _, f := range r.Fragments() {
		if f.Kind != frame.InUse {
			continue
		}

		// suitability.ForInUseMigration already excludes KSM-shared frames
		// from ever becoming InUse fragments, so "anonymous and non-KSM"
		// collapses to "anonymous" for any fragment reaching this phase.
		if f.Anon {
			f.AnonHolder = zone.AnonRmapHolder(f.OldPFN)
		}

		if !zone.HasMapping(f.OldPFN) {
			// No virtual mapping to protect; nothing further to do for
			// this record in the unmap phase.
			continue
		}

		f.WasMapped = zone.InstallMigrationPlaceholders(f.OldPFN)
	}
}
