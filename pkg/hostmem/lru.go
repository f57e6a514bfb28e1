package hostmem

import (
	"container/list"

	"dpucompact/pkg/frame"
)

// lruList tracks in-use frames the allocator could reclaim: a
// container/list.List of frame numbers with front = most recently used.
type lruList struct {
	order   *list.List
	element map[frame.PFN]*list.Element
}

func newLRUList() *lruList {
	return &lruList{
		order:   list.New(),
		element: make(map[frame.PFN]*list.Element),
	}
}

func (l *lruList) insert(pfn frame.PFN) {
	if _, ok := l.element[pfn]; ok {
		return
	}
	l.element[pfn] = l.order.PushFront(pfn)
}

func (l *lruList) remove(pfn frame.PFN) bool {
	e, ok := l.element[pfn]
	if !ok {
		return false
	}
	l.order.Remove(e)
	delete(l.element, pfn)
	return true
}

func (l *lruList) contains(pfn frame.PFN) bool {
	_, ok := l.element[pfn]
	return ok
}
