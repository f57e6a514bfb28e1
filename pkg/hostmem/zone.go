// Package hostmem models the host-OS collaborators the compaction engine
// assumes but does not own: the buddy free-list allocator, the LRU lists,
// the reverse-map (rmap) subsystem, per-page locking, and the TLB-flush /
// write-barrier / DMA-sync primitives. Zone is the contract; Arena is a
// real, mmap-backed implementation used by tests and the demo CLI in
// place of an actual kernel.
package hostmem

import "dpucompact/pkg/frame"

// FrameMeta is the metadata suitability.ForInUseMigration reads. It
// never carries behaviour; only that predicate is meant to interpret
// it, keeping admission a side-effect-free function of plain data.
type FrameMeta struct {
	Huge        bool
	THP         bool
	Reserved    bool
	KSM         bool
	Writeback   bool
	Unevictable bool
	OnLRU       bool
	Movable     bool

	// Anon and Dirty are not suitability inputs; the isolation walker
	// copies them onto the fragment record it creates.
	Anon  bool
	Dirty bool
}

// Zone is the set of host primitives the compaction engine calls on its
// collaborators.
type Zone interface {
	// ValidPFN reports whether pfn belongs to this zone at all.
	ValidPFN(pfn frame.PFN) bool

	// Meta returns the frame's migration-relevant metadata.
	Meta(pfn frame.PFN) FrameMeta

	// IsOnFreeList reports whether pfn currently sits in the buddy
	// allocator's free lists, and at what order.
	IsOnFreeList(pfn frame.PFN) (order int, ok bool)

	// IsolateFreeBlock removes the whole free block containing pfn from
	// the allocator (__isolate_free_page) and splits it into single
	// frames (split_to_single_frames), returning every frame PFN in the
	// block in ascending order. ok is false if the block could not be
	// isolated (lost a race with another allocation).
	IsolateFreeBlock(pfn frame.PFN, order int) (block []frame.PFN, ok bool)

	// ReleaseFrame returns a single frame to the allocator's free lists.
	ReleaseFrame(pfn frame.PFN)
	// FreeFrameCount reports how many frames across the whole zone
	// currently sit in the allocator's free lists, for the MinFreeFrames
	// eligibility check at the compaction entry point.
	FreeFrameCount() int

	// IsolateLRU pulls a frame off the LRU so it cannot be reclaimed or
	// handed to a different compaction attempt.
	IsolateLRU(pfn frame.PFN) bool
	// PutbackLRU returns a frame to the LRU (failure / no-op path).
	PutbackLRU(pfn frame.PFN)
	// InsertLRU inserts a frame (typically a migration destination) into
	// the LRU for the first time.
	InsertLRU(pfn frame.PFN)

	// TryLockPage acquires the page lock without blocking.
	TryLockPage(pfn frame.PFN) bool
	// UnlockPage releases the page lock. Calling it on an unlocked frame
	// is a programming error and panics.
	UnlockPage(pfn frame.PFN)

	// HasMapping reports whether any virtual address currently
	// translates to pfn.
	HasMapping(pfn frame.PFN) bool
	// InstallMigrationPlaceholders atomically replaces every PTE mapping
	// pfn with a non-present migration placeholder, blocking faults.
	// Returns true if at least one mapping was replaced.
	InstallMigrationPlaceholders(pfn frame.PFN) bool
	// ResolveMigrationPlaceholders converts every placeholder installed
	// for oldPFN into a present translation pointing at newPFN.
	ResolveMigrationPlaceholders(oldPFN, newPFN frame.PFN)
	// ReinstateOriginal reverts every placeholder installed for oldPFN
	// back to a present translation pointing at oldPFN itself: the
	// failure-path undo of InstallMigrationPlaceholders.
	ReinstateOriginal(oldPFN frame.PFN)

	// IsFileBacked reports whether the frame belongs to a file/page-cache
	// object (as opposed to pure anonymous memory).
	IsFileBacked(pfn frame.PFN) bool
	// SwingMappingTableEntry atomically swings a page-cache radix/xarray
	// slot from oldPFN to newPFN, transferring the cache refcount.
	SwingMappingTableEntry(oldPFN, newPFN frame.PFN) error
	// CopyPageFlags copies software page flags (dirty, referenced,
	// active, swap-backed, ...) from src to dst.
	CopyPageFlags(oldPFN, newPFN frame.PFN)
	// AnonRmapHolder acquires a lifetime-extending handle on the
	// anonymous rmap descriptor for pfn. protocol.Unmap requests one only
	// for anonymous fragments; Arena returns a non-nil handle for any pfn.
	AnonRmapHolder(pfn frame.PFN) frame.AnonHolder

	// FlushTLBAll invalidates cached translations on every CPU.
	FlushTLBAll()
	// WriteBarrier orders prior writes (the DPU's copy) before any
	// subsequent read of the destination frame's contents.
	WriteBarrier()
	// DMASyncForCPU guarantees the CPU observes every byte the
	// accelerator wrote to the given frames.
	DMASyncForCPU(pfns []frame.PFN) error

	// ReadFrame and WriteFrame give the accelerator simulator and
	// integrity tests raw access to a frame's backing bytes.
	ReadFrame(pfn frame.PFN) []byte
	WriteFrame(pfn frame.PFN, data []byte)

	// Map installs a virtual-address-to-frame translation in address
	// space asid, and Translate resolves one. These are test/harness
	// setup hooks standing in for the rmap subsystem's view of "every
	// address space that maps this frame".
	Map(asid uint64, va uintptr, pfn frame.PFN)
	Translate(asid uint64, va uintptr) (frame.PFN, bool)
}
