// Package frame defines the fragment record: the per-frame bookkeeping
// entry a region uses while planning and executing a compaction.
package frame

// PFN identifies a fixed-size physical frame.
type PFN uint64

// Kind distinguishes a fragment that holds live contents from one pulled
// out of the free-list purely to keep the region's layout contiguous.
type Kind int

const (
	// InUse fragments hold live, in-use contents that must survive the move.
	InUse Kind = iota
	// Free fragments were isolated from the allocator and carry no content.
	Free
)

func (k Kind) String() string {
	if k == InUse {
		return "InUse"
	}
	return "Free"
}

// AnonHolder is an opaque handle keeping an anonymous reverse-map
// descriptor alive across the unmap/remap interval. It is nil for
// non-anonymous or free frames. Call Release exactly once.
type AnonHolder interface {
	Release()
}

// Record is one fragment: a single frame under consideration by a region,
// its planned destination, and the bits the unmap/remap protocol flips as
// it progresses. A Record is exclusively owned by its containing region
// from creation until recovery.Cleanup destroys it.
type Record struct {
	OldPFN PFN
	NewPFN PFN
	Kind   Kind

	Anon  bool
	Dirty bool

	// WasMapped records whether Unmap replaced at least one PTE with a
	// migration placeholder for this fragment.
	WasMapped bool

	// AnonHolder keeps the anon rmap descriptor alive; nil unless Anon.
	AnonHolder AnonHolder

	// Locked is true exactly while this region holds the frame's page
	// lock. UnlockPage call sites must check this before unlocking;
	// only locked frames are ever unlocked.
	Locked bool

	// Isolated is true while the frame is isolated from the LRU (InUse)
	// or owned outright by the region, not referenced by the allocator
	// (Free). Cleared by recovery once the frame is returned.
	Isolated bool
}

// IsStay reports whether this fragment's planned destination equals its
// current location, meaning the frame does not need to move.
func (r *Record) IsStay() bool {
	return r.NewPFN == r.OldPFN
}

// NewInUse creates an InUse fragment freshly isolated from the LRU and
// page-locked by the caller; NewPFN defaults to OldPFN until planning runs.
func NewInUse(old PFN, anon, dirty bool) *Record {
	return &Record{
		OldPFN:   old,
		NewPFN:   old,
		Kind:     InUse,
		Anon:     anon,
		Dirty:    dirty,
		Locked:   true,
		Isolated: true,
	}
}

// NewFree creates a Free fragment owned by the region after buddy isolation.
func NewFree(old PFN) *Record {
	return &Record{
		OldPFN:   old,
		NewPFN:   old,
		Kind:     Free,
		Isolated: true,
	}
}
