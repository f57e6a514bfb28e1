package protocol

import (
	"errors"

	"dpucompact/pkg/frame"
	"dpucompact/pkg/hostmem"
	"dpucompact/pkg/region"
)

// ErrDestinationLockFailure means the non-blocking lock of the move's
// destination frame did not succeed.
var ErrDestinationLockFailure = errors.New("protocol: could not lock destination frame")

// ErrMappingSwingFailure means the page-cache radix/xarray slot could
// not be swung to the new frame.
var ErrMappingSwingFailure = errors.New("protocol: page-cache mapping swing failed")

// Disposition classifies how the remap phase disposed of one fragment.
type Disposition int

const (
	// KeptFree means the fragment was a Free record; its frame is returned
	// to the allocator unless it lies inside the compacted InUse prefix.
	// No data movement was involved.
	KeptFree Disposition = iota
	// Identity means an InUse fragment whose old_pfn == new_pfn: it never
	// moved, so only its placeholders, lock and LRU membership needed
	// restoring.
	Identity
	// Moved means an InUse fragment was relocated to new_pfn and its
	// translations resolved to point there.
	Moved
	// RolledBack means the fragment's move could not be completed and was
	// reverted to its pre-compaction state; Err names the cause.
	RolledBack
)

// Outcome records the per-fragment result of the remap phase, letting the
// caller (pkg/compact) decide whether the overall attempt is Success,
// Partial, or Complete without re-deriving it from fragment state.
type Outcome struct {
	Fragment    *frame.Record
	Disposition Disposition
	Err         error
}

// Remap runs the remap phase over every fragment in r, in frame-ascending
// order. r must be in region.Updating, i.e. the caller has already run
// the planner and the DPU submission for this attempt.
//
// A fragment's source frame is always locked before its destination is
// touched, and released in the reverse order, so two concurrent remaps
// can never wait on each other's frames.
func Remap(r *region.Region, zone hostmem.Zone) []Outcome {
	frags := r.Fragments()
	out := make([]Outcome, 0, len(frags))

	for _, f := range frags {
		if f.Kind == frame.Free {
			// old_pfn is only safe to release here when it falls outside
			// the compacted InUse prefix. Inside the prefix, old_pfn is
			// the destination some InUse fragment is about to move into
			// (or already owns via Identity); releasing it would hand out
			// a frame another fragment is in the middle of claiming.
			if !r.HasInUseFragments || f.OldPFN > r.LastInUsePFN {
				zone.ReleaseFrame(f.OldPFN)
			}
			if f.Locked {
				zone.UnlockPage(f.OldPFN)
			}
			f.Isolated = false
			out = append(out, Outcome{Fragment: f, Disposition: KeptFree})
			continue
		}

		if f.IsStay() {
			if f.WasMapped {
				zone.ResolveMigrationPlaceholders(f.OldPFN, f.NewPFN)
			}
			zone.UnlockPage(f.OldPFN)
			f.Locked = false
			zone.PutbackLRU(f.OldPFN)
			if f.AnonHolder != nil {
				f.AnonHolder.Release()
			}
			f.Isolated = false
			out = append(out, Outcome{Fragment: f, Disposition: Identity})
			continue
		}

		if !zone.TryLockPage(f.NewPFN) {
			zone.UnlockPage(f.OldPFN)
			f.Locked = false
			zone.PutbackLRU(f.OldPFN)
			zone.ReinstateOriginal(f.OldPFN)
			if f.AnonHolder != nil {
				f.AnonHolder.Release()
			}
			f.Isolated = false
			out = append(out, Outcome{Fragment: f, Disposition: RolledBack, Err: ErrDestinationLockFailure})
			continue
		}

		if zone.IsFileBacked(f.OldPFN) {
			if err := zone.SwingMappingTableEntry(f.OldPFN, f.NewPFN); err != nil {
				zone.UnlockPage(f.NewPFN)
				zone.UnlockPage(f.OldPFN)
				f.Locked = false
				zone.PutbackLRU(f.OldPFN)
				zone.ReinstateOriginal(f.OldPFN)
				if f.AnonHolder != nil {
					f.AnonHolder.Release()
				}
				f.Isolated = false
				out = append(out, Outcome{Fragment: f, Disposition: RolledBack, Err: ErrMappingSwingFailure})
				continue
			}
		}

		zone.CopyPageFlags(f.OldPFN, f.NewPFN)
		zone.InsertLRU(f.NewPFN)
		if f.WasMapped {
			zone.ResolveMigrationPlaceholders(f.OldPFN, f.NewPFN)
		}
		zone.UnlockPage(f.NewPFN)
		zone.UnlockPage(f.OldPFN)
		f.Locked = false
		if f.AnonHolder != nil {
			f.AnonHolder.Release()
		}
		// The vacated source frame joins the free suffix unless another
		// fragment's new_pfn still claims it (it is within the compacted
		// InUse prefix, so some other InUse move or Identity fragment owns
		// it instead).
		if f.OldPFN > r.LastInUsePFN {
			zone.ReleaseFrame(f.OldPFN)
		}
		f.Isolated = false
		out = append(out, Outcome{Fragment: f, Disposition: Moved})
	}

	return out
}
