// Package compact implements the control entry point of the compaction
// engine: TryCompact(zone, order, flags), wiring the region controller,
// isolation walker, placement planner, unmap/remap protocol, DPU
// submission, and recovery into one control flow: create region,
// isolate, plan, unmap, submit, remap, recover-or-cleanup.
package compact

import (
	"context"
	"errors"

	"dpucompact/pkg/dpu"
	"dpucompact/pkg/frame"
	"dpucompact/pkg/hostmem"
	"dpucompact/pkg/isolate"
	"dpucompact/pkg/plan"
	"dpucompact/pkg/protocol"
	"dpucompact/pkg/recovery"
	"dpucompact/pkg/region"
	"dpucompact/pkg/stats"
)

// Outcome is the coarse result TryCompact reports to the caller.
type Outcome int

const (
	// Skipped means the attempt never started: compaction is globally
	// disabled, order is below MinOrder, flags.NoSleep forbade the one
	// blocking suspension point, the zone has fewer than MinFreeFrames
	// free frames, or the isolation walker collected nothing to compact.
	Skipped Outcome = iota
	// Success means every fragment in the region moved or stayed
	// cleanly; the region reached region.Complete with zero per-fragment
	// rollbacks and at least one frame actually relocated.
	Success
	// Partial means the region reached region.Complete but one or more
	// fragments rolled back individually (DestinationLockFailure or
	// MappingSwingFailure) while the rest of the attempt proceeded.
	Partial
	// Complete means the region reached region.Complete with nothing to
	// move at all: every fragment was already in place or already free.
	Complete
	// Failed means the region transitioned to region.Failed: a planner
	// precondition violation or an accelerator error. pkg/recovery has
	// already cleaned up every fragment the region held.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "Skipped"
	case Success:
		return "Success"
	case Partial:
		return "Partial"
	case Complete:
		return "Complete"
	case Failed:
		return "Failed"
	default:
		return "Outcome(?)"
	}
}

// Config carries the process-wide knobs try_compact consults before
// committing to an attempt.
type Config struct {
	// MinOrder is the region-alignment threshold: requests for an order
	// below this are skipped without touching the zone.
	MinOrder int
	// MinFreeFrames is the original_source/ supplement: compaction is
	// skipped if the zone currently has fewer free frames than this,
	// even if otherwise eligible, since a compaction with almost no
	// free frames to land moves in cannot make useful progress.
	MinFreeFrames int
	// FrameSize is the byte size of one frame, needed to build the
	// accelerator's physical-address wire request.
	FrameSize int
}

// Flags are the per-call caller-supplied conditions governing an attempt.
type Flags struct {
	// NoSleep forbids the one blocking suspension point (DPU submission);
	// set by callers running in a context where blocking is unsafe.
	NoSleep bool
}

// ErrPlannerPrecondition surfaces plan.ErrPrecondition as a Failed
// outcome.
var ErrPlannerPrecondition = errors.New("compact: planner precondition violated")

// TryCompact runs one compaction attempt over [base, base+sizePFNs) of
// zone, at the requested order, using acc as the accelerator. reg is the
// stats registry to read the enable flag from and report outcomes to;
// pass nil to use stats.Default. zoneName identifies the zone for
// per-zone counters.
func TryCompact(ctx context.Context, reg *stats.Registry, zoneName string, zone hostmem.Zone, base, sizePFNs frame.PFN, order int, cfg Config, flags Flags, acc dpu.Accelerator) Outcome {
	if reg == nil {
		reg = stats.Default
	}

	if !reg.Enabled() {
		reg.RecordOutcome(zoneName, "Skipped")
		return Skipped
	}
	if order < cfg.MinOrder {
		reg.RecordOutcome(zoneName, "Skipped")
		return Skipped
	}
	if flags.NoSleep {
		reg.RecordOutcome(zoneName, "Skipped")
		return Skipped
	}
	if cfg.MinFreeFrames > 0 && zone.FreeFrameCount() < cfg.MinFreeFrames {
		reg.RecordOutcome(zoneName, "Skipped")
		return Skipped
	}

	reg.RecordAttempt(zoneName)

	r := region.New(base, sizePFNs)
	session, err := r.Begin()
	if err != nil {
		reg.RecordOutcome(zoneName, "Failed")
		return Failed
	}
	defer session.Release()

	r.Transition(region.Collecting)
	isolate.Walk(zone, r, base, base+sizePFNs)
	reg.RecordFragmentCount(zoneName, r.Len(), region.MaxFragments)

	if r.Len() == 0 {
		reg.RecordOutcome(zoneName, "Skipped")
		return Skipped
	}

	_, _, err = plan.Run(r)
	if err != nil {
		r.Transition(region.Failed)
		recovery.Cleanup(r, zone)
		reg.RecordOutcome(zoneName, "Failed")
		return Failed
	}

	protocol.Unmap(r, zone)

	r.Transition(region.Moving)
	if err := dpu.Submit(ctx, r, zone, acc, cfg.FrameSize); err != nil {
		r.Transition(region.Failed)
		recovery.Cleanup(r, zone)
		reg.RecordOutcome(zoneName, "Failed")
		return Failed
	}

	r.Transition(region.Updating)
	results := protocol.Remap(r, zone)
	zone.FlushTLBAll()
	r.Transition(region.Complete)

	outcome := classify(results)
	reg.RecordOutcome(zoneName, outcome.String())
	return outcome
}

func classify(results []protocol.Outcome) Outcome {
	var moved, rolledBack bool
	for _, r := range results {
		switch r.Disposition {
		case protocol.Moved:
			moved = true
		case protocol.RolledBack:
			rolledBack = true
		}
	}
	switch {
	case rolledBack:
		return Partial
	case moved:
		return Success
	default:
		return Complete
	}
}
