// Package dpu implements the DPU submission phase: filtering a region's
// fragments down to the frames that actually need a physical copy,
// handing them to an accelerator over the wire protocol in
// internal/wire, and fencing the result with a write barrier and DMA
// sync.
package dpu

import (
	"context"
	"errors"

	"dpucompact/internal/wire"
	"dpucompact/pkg/frame"
	"dpucompact/pkg/hostmem"
	"dpucompact/pkg/region"
)

// ErrAccelerator means the accelerator rejected or failed to complete a
// submitted move batch.
var ErrAccelerator = errors.New("dpu: accelerator reported a move failure")

// Accelerator is the wire-level contract a real DPU driver implements:
// submit a byte-addressed move batch and block until it completes or ctx
// is cancelled. This is the sole blocking suspension point in the
// engine.
type Accelerator interface {
	Submit(ctx context.Context, req wire.Request) error
}

// addrOf turns a frame-granularity PFN into the flat physical byte
// address the accelerator's wire protocol speaks in.
func addrOf(pfn frame.PFN, frameSize int) uint64 {
	return uint64(pfn) * uint64(frameSize)
}

// Submit filters r's fragments to InUse fragments whose old_pfn differs
// from new_pfn, builds the parallel source/destination address arrays in
// filtered order, and submits them to acc. On success it fences the
// move with a write barrier and a DMA sync over every destination frame.
// The TLB is not flushed here: that happens once, globally, after the
// remap phase resolves every fragment's mapping. On any failure it
// returns ErrAccelerator wrapping the underlying cause; the caller
// transitions the region to region.Failed and runs pkg/recovery.
func Submit(ctx context.Context, r *region.Region, zone hostmem.Zone, acc Accelerator, frameSize int) error {
	var srcs, dsts []uint64
	var destPFNs []frame.PFN

	for _, f := range r.Fragments() {
		if f.Kind != frame.InUse || f.IsStay() {
			continue
		}
		srcs = append(srcs, addrOf(f.OldPFN, frameSize))
		dsts = append(dsts, addrOf(f.NewPFN, frameSize))
		destPFNs = append(destPFNs, f.NewPFN)
	}

	if len(srcs) == 0 {
		// Nothing to move; still a valid outcome (e.g. an already-compact
		// region or an all-Free window).
		return nil
	}

	if err := acc.Submit(ctx, wire.Request{SrcAddrs: srcs, DstAddrs: dsts}); err != nil {
		return errors.Join(ErrAccelerator, err)
	}

	zone.WriteBarrier()
	if err := zone.DMASyncForCPU(destPFNs); err != nil {
		return errors.Join(ErrAccelerator, err)
	}
	return nil
}
