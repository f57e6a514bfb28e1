package dpu

import (
	"context"
	"fmt"

	"dpucompact/internal/wire"
	"dpucompact/pkg/frame"
	"dpucompact/pkg/hostmem"
)

// SimAccelerator is an in-process stand-in for a real DPU: it encodes and
// decodes every request through internal/wire exactly as an
// out-of-process driver would over a socket or MMIO ring, then performs
// the byte copy directly against a hostmem.Zone. It exists because this
// exercise has no real accelerator hardware to drive; swapping it for a
// real driver requires only a different Accelerator implementation.
type SimAccelerator struct {
	zone      hostmem.Zone
	frameSize int

	// FailAfter, if non-zero, makes the Nth Submit call and every later
	// one fail instead of copying: a test/harness hook for exercising
	// accelerator failures.
	FailAfter int
	calls     int
}

// NewSimAccelerator builds a simulator that copies frameSize-byte frames
// directly within zone.
func NewSimAccelerator(zone hostmem.Zone, frameSize int) *SimAccelerator {
	return &SimAccelerator{zone: zone, frameSize: frameSize}
}

// Submit implements Accelerator by round-tripping req through the wire
// codec and copying each source frame's bytes, as they stood before the
// batch, to its destination.
func (s *SimAccelerator) Submit(ctx context.Context, req wire.Request) error {
	s.calls++
	if s.FailAfter != 0 && s.calls >= s.FailAfter {
		return fmt.Errorf("dpu: simulated accelerator failure on call %d", s.calls)
	}

	encoded, err := wire.Encode(req)
	if err != nil {
		return err
	}
	decoded, err := wire.Decode(encoded)
	if err != nil {
		return err
	}

	srcData := make([][]byte, len(decoded.SrcAddrs))
	for i := range decoded.SrcAddrs {
		srcPFN := frame.PFN(decoded.SrcAddrs[i] / uint64(s.frameSize))
		srcData[i] = append([]byte(nil), s.zone.ReadFrame(srcPFN)...)
	}

	for i := range decoded.DstAddrs {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		dstPFN := frame.PFN(decoded.DstAddrs[i] / uint64(s.frameSize))
		s.zone.WriteFrame(dstPFN, srcData[i])
	}
	return nil
}
