package hostmem

import "dpucompact/pkg/frame"

// mapping is one virtual-address translation: address space asid, virtual
// address va, pointing at a frame.
type mapping struct {
	asid uint64
	va   uintptr
}

// rmapTable is the reverse-map subsystem: for each frame it tracks every
// (address space, virtual address) pair currently translating to it, so
// install/resolve/reinstate can walk every address space that maps a
// given frame the way a real rmap subsystem does.
type rmapTable struct {
	forward map[uint64]map[uintptr]frame.PFN // asid -> va -> pfn
	reverse map[frame.PFN][]mapping          // pfn -> mappings

	// placeholders holds, per *original* source pfn, the mappings that
	// were swapped out for a migration placeholder and still await
	// resolution or reinstatement.
	placeholders map[frame.PFN][]mapping
}

func newRmapTable() *rmapTable {
	return &rmapTable{
		forward:      make(map[uint64]map[uintptr]frame.PFN),
		reverse:      make(map[frame.PFN][]mapping),
		placeholders: make(map[frame.PFN][]mapping),
	}
}

func (r *rmapTable) add(asid uint64, va uintptr, pfn frame.PFN) {
	if r.forward[asid] == nil {
		r.forward[asid] = make(map[uintptr]frame.PFN)
	}
	r.forward[asid][va] = pfn
	r.reverse[pfn] = append(r.reverse[pfn], mapping{asid: asid, va: va})
}

func (r *rmapTable) translate(asid uint64, va uintptr) (frame.PFN, bool) {
	vas, ok := r.forward[asid]
	if !ok {
		return 0, false
	}
	pfn, ok := vas[va]
	return pfn, ok
}

func (r *rmapTable) hasMapping(pfn frame.PFN) bool {
	return len(r.reverse[pfn]) > 0
}

// installPlaceholders moves every mapping of pfn into the pending
// placeholder set and clears the live reverse-map entry, modelling every
// PTE for pfn becoming a non-present migration placeholder. Returns false
// if there was nothing mapped.
func (r *rmapTable) installPlaceholders(pfn frame.PFN) bool {
	maps := r.reverse[pfn]
	if len(maps) == 0 {
		return false
	}
	for _, m := range maps {
		delete(r.forward[m.asid], m.va)
	}
	delete(r.reverse, pfn)
	r.placeholders[pfn] = maps
	return true
}

// resolvePlaceholders converts every placeholder installed for oldPFN
// into a present translation pointing at newPFN.
func (r *rmapTable) resolvePlaceholders(oldPFN, newPFN frame.PFN) {
	maps, ok := r.placeholders[oldPFN]
	if !ok {
		return
	}
	delete(r.placeholders, oldPFN)
	for _, m := range maps {
		r.add(m.asid, m.va, newPFN)
	}
}

// reinstateOriginal reverts every placeholder installed for oldPFN back to
// a present translation pointing at oldPFN: the failure-path undo.
func (r *rmapTable) reinstateOriginal(oldPFN frame.PFN) {
	maps, ok := r.placeholders[oldPFN]
	if !ok {
		return
	}
	delete(r.placeholders, oldPFN)
	for _, m := range maps {
		r.add(m.asid, m.va, oldPFN)
	}
}
