package protocol

import (
	"testing"

	"dpucompact/pkg/frame"
	"dpucompact/pkg/hostmem"
	"dpucompact/pkg/plan"
	"dpucompact/pkg/region"
)

func newTestArena(t *testing.T, base frame.PFN, n int) *hostmem.Arena {
	t.Helper()
	a, err := hostmem.NewArena(hostmem.Config{Base: base, NFrames: n, FrameSize: 64})
	if err != nil {
		t.Fatalf("NewArena: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

// buildCollectingRegion mirrors pkg/isolate's output for a U/F layout
// without going through Walk, so protocol tests can exercise unmap/remap
// in isolation from the walker.
func buildCollectingRegion(t *testing.T, a *hostmem.Arena, base frame.PFN, layout string) *region.Region {
	t.Helper()
	r := region.New(base, frame.PFN(len(layout)))
	r.Transition(region.Collecting)
	for i, c := range layout {
		pfn := base + frame.PFN(i)
		switch c {
		case 'U':
			a.TryLockPage(pfn)
			if err := r.Add(frame.NewInUse(pfn, true, false)); err != nil {
				t.Fatalf("Add: %v", err)
			}
		case 'F':
			if err := r.Add(frame.NewFree(pfn)); err != nil {
				t.Fatalf("Add: %v", err)
			}
		default:
			t.Fatalf("bad layout char %q", c)
		}
	}
	return r
}

func TestUnmapInstallsPlaceholdersOnlyForMappedInUse(t *testing.T) {
	a := newTestArena(t, 1000, 5)
	r := buildCollectingRegion(t, a, 1000, "UFUFU")
	a.Map(7, 0x1000, 1000)
	// 1002 and 1004 are InUse but have no virtual mapping.

	Unmap(r, a)

	for _, f := range r.Fragments() {
		if f.Kind != frame.InUse {
			continue
		}
		switch f.OldPFN {
		case 1000:
			if !f.WasMapped {
				t.Errorf("pfn 1000: expected WasMapped true")
			}
			if f.AnonHolder == nil {
				t.Errorf("pfn 1000: expected an anon holder")
			}
		case 1002, 1004:
			if f.WasMapped {
				t.Errorf("pfn %d: expected WasMapped false, no mapping existed", f.OldPFN)
			}
		}
	}
}

func TestRemapReleasesFreeFragmentsToAllocator(t *testing.T) {
	a := newTestArena(t, 2000, 3)
	r := buildCollectingRegion(t, a, 2000, "FFF")
	if _, _, err := plan.Run(r); err != nil {
		t.Fatalf("plan.Run: %v", err)
	}
	r.Transition(region.Moving)
	r.Transition(region.Updating)

	out := Remap(r, a)
	for _, o := range out {
		if o.Disposition != KeptFree {
			t.Errorf("pfn %d: expected KeptFree, got %v", o.Fragment.OldPFN, o.Disposition)
		}
	}
	for _, f := range r.Fragments() {
		if _, ok := a.IsOnFreeList(f.OldPFN); !ok {
			t.Errorf("pfn %d: expected to be back on the free list", f.OldPFN)
		}
	}
}

func TestRemapIdentityUnlocksAndRestoresLRU(t *testing.T) {
	a := newTestArena(t, 3000, 1)
	r := buildCollectingRegion(t, a, 3000, "U")
	if _, _, err := plan.Run(r); err != nil {
		t.Fatalf("plan.Run: %v", err)
	}
	r.Transition(region.Moving)
	r.Transition(region.Updating)

	out := Remap(r, a)
	if len(out) != 1 || out[0].Disposition != Identity {
		t.Fatalf("expected a single Identity outcome, got %+v", out)
	}
	if !a.TryLockPage(3000) {
		t.Errorf("expected pfn 3000 to be unlocked after remap")
	}
	if !a.IsolateLRU(3000) {
		t.Errorf("expected pfn 3000 to be back on the LRU after remap")
	}
}

func TestRemapMovesInUseFragmentAndResolvesMapping(t *testing.T) {
	a := newTestArena(t, 4000, 4)
	r := buildCollectingRegion(t, a, 4000, "FUFU")
	a.Map(9, 0x2000, 4001)
	Unmap(r, a)
	if _, _, err := plan.Run(r); err != nil {
		t.Fatalf("plan.Run: %v", err)
	}
	r.Transition(region.Moving)
	r.Transition(region.Updating)

	out := Remap(r, a)
	var moved int
	for _, o := range out {
		if o.Disposition == Moved {
			moved++
			if o.Fragment.OldPFN != 4001 && o.Fragment.OldPFN != 4003 {
				t.Errorf("unexpected moved fragment %d", o.Fragment.OldPFN)
			}
		}
	}
	if moved != 2 {
		t.Fatalf("expected 2 moved InUse fragments, got %d", moved)
	}

	newPFN, ok := a.Translate(9, 0x2000)
	if !ok {
		t.Fatalf("expected mapping to resolve to the new frame")
	}
	if newPFN == 4001 {
		t.Errorf("mapping still points at the old frame")
	}
}

func TestRemapProducesDenseFreeSuffix(t *testing.T) {
	a := newTestArena(t, 6000, 5)
	r := buildCollectingRegion(t, a, 6000, "UFUFU")
	if _, _, err := plan.Run(r); err != nil {
		t.Fatalf("plan.Run: %v", err)
	}
	r.Transition(region.Moving)
	r.Transition(region.Updating)

	Remap(r, a)

	// 3 InUse fragments pack into the prefix [6000, 6002]; none of those
	// physical frames may be on the allocator free list, including 6001,
	// whose old_pfn belonged to a Free fragment and became an InUse
	// destination. The suffix is 6003 (a Free fragment's frame) and 6004
	// (a vacated InUse source).
	for _, pfn := range []frame.PFN{6000, 6001, 6002} {
		if _, ok := a.IsOnFreeList(pfn); ok {
			t.Errorf("pfn %d: expected to be occupied (inside the compacted prefix), found on the free list", pfn)
		}
	}
	for _, pfn := range []frame.PFN{6003, 6004} {
		if _, ok := a.IsOnFreeList(pfn); !ok {
			t.Errorf("pfn %d: expected to be on the free list (inside the compacted suffix)", pfn)
		}
	}
	if got := a.FreeFrameCount(); got != 2 {
		t.Errorf("expected 2 free frames after compaction, got %d", got)
	}
}

func TestRemapRollsBackOnDestinationLockFailure(t *testing.T) {
	a := newTestArena(t, 5000, 2)
	r := buildCollectingRegion(t, a, 5000, "FU")
	if _, _, err := plan.Run(r); err != nil {
		t.Fatalf("plan.Run: %v", err)
	}
	// Planner sends the InUse fragment (old 5001) to new_pfn 5000; lock it
	// out from under the protocol so the non-blocking lock fails.
	a.TryLockPage(5000)
	r.Transition(region.Moving)
	r.Transition(region.Updating)

	out := Remap(r, a)
	var found bool
	for _, o := range out {
		if o.Fragment.OldPFN == 5001 {
			found = true
			if o.Disposition != RolledBack || o.Err != ErrDestinationLockFailure {
				t.Errorf("expected RolledBack/ErrDestinationLockFailure, got %v/%v", o.Disposition, o.Err)
			}
		}
	}
	if !found {
		t.Fatalf("expected an outcome for pfn 5001")
	}
	if !a.TryLockPage(5001) {
		t.Errorf("expected pfn 5001 to be unlocked after rollback")
	}
}
