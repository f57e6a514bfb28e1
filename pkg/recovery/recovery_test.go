package recovery

import (
	"testing"

	"dpucompact/pkg/frame"
	"dpucompact/pkg/hostmem"
	"dpucompact/pkg/protocol"
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

func TestCleanupReinstatesAndUnlocksAfterUnmapOnly(t *testing.T) {
	a := newTestArena(t, 1000, 2)
	r := region.New(1000, 2)
	r.Transition(region.Collecting)
	a.TryLockPage(1000)
	rec := frame.NewInUse(1000, true, false)
	if err := r.Add(rec); err != nil {
		t.Fatalf("Add: %v", err)
	}
	a.Map(1, 0x4000, 1000)

	protocol.Unmap(r, a)
	if !rec.WasMapped {
		t.Fatalf("setup: expected Unmap to install a placeholder")
	}

	Cleanup(r, a)

	if rec.Isolated {
		t.Errorf("expected Isolated to be cleared after cleanup")
	}
	if rec.Locked {
		t.Errorf("expected Locked to be cleared after cleanup")
	}
	if !a.TryLockPage(1000) {
		t.Errorf("expected pfn 1000 to be unlocked after cleanup")
	}
	pfn, ok := a.Translate(1, 0x4000)
	if !ok || pfn != 1000 {
		t.Errorf("expected mapping reinstated to the original frame, got pfn=%d ok=%v", pfn, ok)
	}
}

func TestCleanupReleasesFreeFragments(t *testing.T) {
	a := newTestArena(t, 2000, 1)
	r := region.New(2000, 1)
	r.Transition(region.Collecting)
	if err := r.Add(frame.NewFree(2000)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	Cleanup(r, a)

	if _, ok := a.IsOnFreeList(2000); !ok {
		t.Errorf("expected frame 2000 back on the free list")
	}
}

func TestCleanupSkipsAlreadyDisposedFragments(t *testing.T) {
	a := newTestArena(t, 3000, 1)
	r := region.New(3000, 1)
	r.Transition(region.Collecting)
	rec := frame.NewInUse(3000, false, false)
	a.TryLockPage(3000)
	if err := r.Add(rec); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Simulate protocol.Remap already having fully processed this fragment.
	a.UnlockPage(3000)
	rec.Isolated = false
	rec.Locked = false

	Cleanup(r, a)

	// Should not have attempted to unlock an already-unlocked frame (which
	// would panic) or touch the LRU for a fragment recovery no longer owns.
	if !a.TryLockPage(3000) {
		t.Errorf("expected pfn 3000 still unlocked, cleanup must not have relocked it")
	}
}
