// Package recovery restores every fragment a region still holds to a
// sane host state after an attempt aborts, replaying exactly the
// operations performed on each fragment rather than assuming a fixed
// set.
package recovery

import (
	"dpucompact/pkg/frame"
	"dpucompact/pkg/hostmem"
	"dpucompact/pkg/region"
)

// Cleanup walks every fragment in r and undoes whatever the unmap/remap
// protocol had done to it at the point of failure. A fragment whose
// Isolated bit is already clear was already fully disposed of by
// protocol.Remap before the failure occurred, so Cleanup skips it,
// making repeated calls, or calls after a partially successful remap
// pass, idempotent.
func Cleanup(r *region.Region, zone hostmem.Zone) {
	for _, f := range r.Fragments() {
		if !f.Isolated {
			continue
		}

		if f.Kind == frame.Free {
			zone.ReleaseFrame(f.OldPFN)
			f.Isolated = false
			continue
		}

		// InUse: reverse whatever Unmap/Remap had started.
		if f.WasMapped {
			zone.ReinstateOriginal(f.OldPFN)
		}
		if f.Locked {
			zone.UnlockPage(f.OldPFN)
			f.Locked = false
		}
		zone.PutbackLRU(f.OldPFN)
		if f.AnonHolder != nil {
			f.AnonHolder.Release()
			f.AnonHolder = nil
		}
		f.Isolated = false
	}
}
