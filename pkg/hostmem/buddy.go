package hostmem

import "dpucompact/pkg/frame"

// buddyFreeList is a simplified power-of-two buddy allocator: one list
// of block-start PFNs per order, keyed by allocation order so the
// isolation walker can isolate and split an entire buddy block at once.
type buddyFreeList struct {
	maxOrder int
	byOrder  map[int][]frame.PFN // order -> block-start PFNs
	inFree   map[frame.PFN]int   // block-start PFN -> order, for membership tests
}

func newBuddyFreeList(maxOrder int) *buddyFreeList {
	return &buddyFreeList{
		maxOrder: maxOrder,
		byOrder:  make(map[int][]frame.PFN),
		inFree:   make(map[frame.PFN]int),
	}
}

// insert adds a free block of the given order, starting at pfn.
func (b *buddyFreeList) insert(pfn frame.PFN, order int) {
	b.byOrder[order] = append(b.byOrder[order], pfn)
	b.inFree[pfn] = order
}

// blockContaining reports whether the block containing pfn is free, and
// the order and start PFN of that block, by checking every free block for
// one covering pfn.
func (b *buddyFreeList) blockContaining(pfn frame.PFN) (start frame.PFN, order int, ok bool) {
	for start, order := range b.inFree {
		size := frame.PFN(1) << uint(order)
		if pfn >= start && pfn < start+size {
			return start, order, true
		}
	}
	return 0, 0, false
}

// isolate removes the block starting at start/order from the free lists.
// Returns false if it is no longer present (lost a race).
func (b *buddyFreeList) isolate(start frame.PFN, order int) bool {
	stack := b.byOrder[order]
	for i, p := range stack {
		if p == start {
			b.byOrder[order] = append(stack[:i], stack[i+1:]...)
			delete(b.inFree, start)
			return true
		}
	}
	return false
}

// splitToSingleFrames expands a block of the given order into its
// individual single-frame PFNs, in ascending order.
func splitToSingleFrames(start frame.PFN, order int) []frame.PFN {
	n := 1 << uint(order)
	out := make([]frame.PFN, n)
	for i := 0; i < n; i++ {
		out[i] = start + frame.PFN(i)
	}
	return out
}

// release returns a single frame to the free list as an order-0 block.
func (b *buddyFreeList) release(pfn frame.PFN) {
	b.insert(pfn, 0)
}

// totalFrames sums the single-frame count of every free block, across
// all orders.
func (b *buddyFreeList) totalFrames() int {
	n := 0
	for _, order := range b.inFree {
		n += 1 << uint(order)
	}
	return n
}
