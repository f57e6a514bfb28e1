// Package isolate implements the isolation walker: it scans a PFN window
// and pulls candidate frames out of the buddy allocator or the LRU,
// producing the region's fragment set. Every acquisition is try-style;
// the walker never blocks.
package isolate

import (
	"dpucompact/pkg/frame"
	"dpucompact/pkg/hostmem"
	"dpucompact/pkg/region"
	"dpucompact/pkg/suitability"
)

// Walk scans [start, end) in ascending PFN order, stopping early once r
// holds region.MaxFragments records. On return, every appended fragment's
// frame is either (Free) owned by the region and absent from the
// allocator, or (InUse) isolated from the LRU and page-locked by the
// region.
func Walk(zone hostmem.Zone, r *region.Region, start, end frame.PFN) {
	for pfn := start; pfn < end; pfn++ {
		if r.AtCapacity() {
			return
		}
		if !zone.ValidPFN(pfn) {
			continue
		}

		if order, onFree := zone.IsOnFreeList(pfn); onFree {
			block, ok := zone.IsolateFreeBlock(pfn, order)
			if !ok {
				// Lost a race with a concurrent allocation; skip.
				continue
			}
			addFreeFragments(zone, r, block)
			// Advance past every frame in the block we just consumed.
			if last := block[len(block)-1]; last > pfn {
				pfn = last
			}
			continue
		}

		meta := zone.Meta(pfn)
		if !suitability.ForInUseMigration(meta) {
			continue
		}

		if !zone.IsolateLRU(pfn) {
			continue
		}
		if !zone.TryLockPage(pfn) {
			zone.PutbackLRU(pfn)
			continue
		}

		rec := frame.NewInUse(pfn, meta.Anon, meta.Dirty)
		if err := r.Add(rec); err != nil {
			zone.UnlockPage(pfn)
			zone.PutbackLRU(pfn)
			if err == region.ErrFull {
				return
			}
			continue
		}
	}
}

// addFreeFragments feeds as many single frames from block as the region
// has room for as Free fragments, releasing the remainder back to the
// allocator.
func addFreeFragments(zone hostmem.Zone, r *region.Region, block []frame.PFN) {
	for _, pfn := range block {
		if r.AtCapacity() {
			zone.ReleaseFrame(pfn)
			continue
		}
		if err := r.Add(frame.NewFree(pfn)); err != nil {
			zone.ReleaseFrame(pfn)
		}
	}
}
