package hostmem

import (
	"fmt"
	"sync"

	"dpucompact/pkg/frame"
)

// pageFlags are the software page bits CopyPageFlags carries across a
// move.
type pageFlags struct {
	dirty      bool
	referenced bool
	active     bool
	swapBacked bool
}

// anonHolder is the concrete frame.AnonHolder backing Arena.AnonRmapHolder.
type anonHolder struct {
	arena *Arena
	pfn   frame.PFN
}

func (h *anonHolder) Release() {
	h.arena.mu.Lock()
	defer h.arena.mu.Unlock()
	if h.arena.anonRefs[h.pfn] > 0 {
		h.arena.anonRefs[h.pfn]--
	}
}

// Config sizes an Arena: the number of frames it holds and the size in
// bytes of each frame.
type Config struct {
	Base      frame.PFN
	NFrames   int
	FrameSize int
	MaxOrder  int // largest buddy order the free-list tracks
}

// Arena is a real, mmap-backed implementation of Zone: the collection of
// host-OS collaborators the engine calls but does not own. There is no
// real kernel here to host the LRU/rmap/buddy-allocator/TLB subsystems;
// every method still does the actual bookkeeping those subsystems would,
// backed by a real mmap'd byte arena rather than a stub.
type Arena struct {
	mu sync.Mutex

	base      frame.PFN
	nframes   int
	frameSize int
	storage   *mmapStorage

	meta       map[frame.PFN]FrameMeta
	fileBacked map[frame.PFN]bool
	flags      map[frame.PFN]pageFlags
	locks      map[frame.PFN]bool
	anonRefs   map[frame.PFN]int

	lru   *lruList
	free  *buddyFreeList
	rmap  *rmapTable

	tlbGeneration uint64
}

// NewArena creates an Arena of cfg.NFrames frames, all initially absent
// from both the free list and the LRU. Callers (tests, the CLI demo
// harness) place frames on one or the other with MarkFree/MarkInUse to
// build a starting layout.
func NewArena(cfg Config) (*Arena, error) {
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = 4096
	}
	if cfg.MaxOrder <= 0 {
		cfg.MaxOrder = 10
	}
	storage, err := newMmapStorage(cfg.FrameSize, cfg.NFrames)
	if err != nil {
		return nil, err
	}
	return &Arena{
		base:       cfg.Base,
		nframes:    cfg.NFrames,
		frameSize:  cfg.FrameSize,
		storage:    storage,
		meta:       make(map[frame.PFN]FrameMeta),
		fileBacked: make(map[frame.PFN]bool),
		flags:      make(map[frame.PFN]pageFlags),
		locks:      make(map[frame.PFN]bool),
		anonRefs:   make(map[frame.PFN]int),
		lru:        newLRUList(),
		free:       newBuddyFreeList(cfg.MaxOrder),
		rmap:       newRmapTable(),
	}, nil
}

// Close releases the arena's backing mapping.
func (a *Arena) Close() error {
	return a.storage.close()
}

func (a *Arena) offset(pfn frame.PFN) int {
	return int(pfn-a.base) * a.frameSize
}

// --- setup helpers (not part of Zone; used by callers building a scenario) ---

// SetMeta records the suitability-relevant metadata for a frame.
func (a *Arena) SetMeta(pfn frame.PFN, m FrameMeta) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.meta[pfn] = m
}

// SetFileBacked marks pfn as belonging to a file/page-cache object.
func (a *Arena) SetFileBacked(pfn frame.PFN, backed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fileBacked[pfn] = backed
}

// MarkFree seeds a free buddy block starting at pfn with the given order.
func (a *Arena) MarkFree(pfn frame.PFN, order int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free.insert(pfn, order)
}

// MarkInUse puts pfn on the LRU as an already-present in-use frame.
func (a *Arena) MarkInUse(pfn frame.PFN) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lru.insert(pfn)
}

// TLBGeneration reports how many times FlushTLBAll has run; tests use it
// to confirm a flush actually happened.
func (a *Arena) TLBGeneration() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tlbGeneration
}

// --- Zone implementation ---

func (a *Arena) ValidPFN(pfn frame.PFN) bool {
	return pfn >= a.base && pfn < a.base+frame.PFN(a.nframes)
}

func (a *Arena) Meta(pfn frame.PFN) FrameMeta {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.meta[pfn]
}

func (a *Arena) IsOnFreeList(pfn frame.PFN) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, order, ok := a.free.blockContaining(pfn)
	return order, ok
}

func (a *Arena) IsolateFreeBlock(pfn frame.PFN, order int) ([]frame.PFN, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	start, foundOrder, ok := a.free.blockContaining(pfn)
	if !ok || foundOrder != order {
		return nil, false
	}
	if !a.free.isolate(start, foundOrder) {
		return nil, false
	}
	return splitToSingleFrames(start, foundOrder), true
}

func (a *Arena) ReleaseFrame(pfn frame.PFN) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free.release(pfn)
}

func (a *Arena) FreeFrameCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.free.totalFrames()
}

func (a *Arena) IsolateLRU(pfn frame.PFN) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lru.remove(pfn)
}

func (a *Arena) PutbackLRU(pfn frame.PFN) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lru.insert(pfn)
}

func (a *Arena) InsertLRU(pfn frame.PFN) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lru.insert(pfn)
}

func (a *Arena) TryLockPage(pfn frame.PFN) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.locks[pfn] {
		return false
	}
	a.locks[pfn] = true
	return true
}

func (a *Arena) UnlockPage(pfn frame.PFN) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.locks[pfn] {
		panic(fmt.Sprintf("hostmem: unlock of frame %d that was never locked", pfn))
	}
	delete(a.locks, pfn)
}

func (a *Arena) HasMapping(pfn frame.PFN) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rmap.hasMapping(pfn)
}

func (a *Arena) InstallMigrationPlaceholders(pfn frame.PFN) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rmap.installPlaceholders(pfn)
}

func (a *Arena) ResolveMigrationPlaceholders(oldPFN, newPFN frame.PFN) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rmap.resolvePlaceholders(oldPFN, newPFN)
}

func (a *Arena) ReinstateOriginal(oldPFN frame.PFN) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rmap.reinstateOriginal(oldPFN)
}

func (a *Arena) IsFileBacked(pfn frame.PFN) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fileBacked[pfn]
}

func (a *Arena) SwingMappingTableEntry(oldPFN, newPFN frame.PFN) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.fileBacked[oldPFN] {
		return fmt.Errorf("hostmem: swing requested for non-file-backed frame %d", oldPFN)
	}
	a.fileBacked[newPFN] = true
	delete(a.fileBacked, oldPFN)
	return nil
}

func (a *Arena) CopyPageFlags(oldPFN, newPFN frame.PFN) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.flags[newPFN] = a.flags[oldPFN]
}

func (a *Arena) AnonRmapHolder(pfn frame.PFN) frame.AnonHolder {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.anonRefs[pfn]++
	return &anonHolder{arena: a, pfn: pfn}
}

func (a *Arena) FlushTLBAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tlbGeneration++
}

func (a *Arena) WriteBarrier() {
	// A real smp_wmb is a CPU memory-ordering fence; DMASyncForCPU (msync)
	// already establishes the ordering the engine needs here, so this is
	// a documented no-op kept so call sites still name the step.
}

func (a *Arena) DMASyncForCPU(pfns []frame.PFN) error {
	for _, pfn := range pfns {
		if err := a.storage.sync(a.offset(pfn), a.frameSize); err != nil {
			return fmt.Errorf("hostmem: dma sync frame %d: %w", pfn, err)
		}
	}
	return nil
}

func (a *Arena) ReadFrame(pfn frame.PFN) []byte {
	off := a.offset(pfn)
	return a.storage.data[off : off+a.frameSize]
}

func (a *Arena) WriteFrame(pfn frame.PFN, data []byte) {
	off := a.offset(pfn)
	n := copy(a.storage.data[off:off+a.frameSize], data)
	for i := off + n; i < off+a.frameSize; i++ {
		a.storage.data[i] = 0
	}
}

func (a *Arena) Map(asid uint64, va uintptr, pfn frame.PFN) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rmap.add(asid, va, pfn)
}

func (a *Arena) Translate(asid uint64, va uintptr) (frame.PFN, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rmap.translate(asid, va)
}
