// Package suitability implements the pure admission predicate for
// whether a frame may be considered for in-use migration at all. It has
// no side effects and takes no locks.
package suitability

import "dpucompact/pkg/hostmem"

// ForInUseMigration reports whether m describes a frame eligible for
// in-use migration: not huge/transparently-huge, not reserved, not
// KSM-shared, not under writeback, not unevictable, and either already on
// an LRU or explicitly movable.
func ForInUseMigration(m hostmem.FrameMeta) bool {
	if m.Huge || m.THP {
		return false
	}
	if m.Reserved || m.KSM || m.Writeback || m.Unevictable {
		return false
	}
	return m.OnLRU || m.Movable
}
