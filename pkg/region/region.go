// Package region implements the region controller: the aligned physical
// window under compaction, its ordered fragment list, and its
// single-writer state machine.
package region

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"dpucompact/pkg/frame"
)

// MaxFragments bounds the fragment set of any one region.
const MaxFragments = 1024

var (
	// ErrFull is returned by Add once the region already holds
	// MaxFragments records; the walker treats this as a capacity limit
	// and simply stops early.
	ErrFull = errors.New("region: fragment capacity reached")
	// ErrOutOfRange is returned by Add for a PFN outside [base, base+size).
	ErrOutOfRange = errors.New("region: frame outside region window")
	// ErrDuplicatePFN is returned by Add for a PFN already present.
	ErrDuplicatePFN = errors.New("region: duplicate old_pfn in region")
	// ErrAlreadyOwned is returned by Begin when another session is live.
	ErrAlreadyOwned = errors.New("region: already owned by another session")
	// ErrNotOwner is returned when a call is made through a stale or
	// mismatched session.
	ErrNotOwner = errors.New("region: session does not own this region")
)

// Region is one aligned physical window under compaction.
type Region struct {
	BasePFN  frame.PFN
	SizePFNs frame.PFN

	state State

	fragMu    sync.Mutex // guards fragments and byOldPFN
	fragments []*frame.Record
	byOldPFN  map[frame.PFN]bool

	// LastInUsePFN is set by the placement planner: the highest new_pfn
	// assigned to an InUse record. Only meaningful when HasInUseFragments
	// is true; an all-Free region is represented with this explicit flag
	// instead of a "base_pfn - 1" sentinel, which would underflow at
	// base_pfn 0.
	LastInUsePFN      frame.PFN
	HasInUseFragments bool

	// AcceleratorAddrList is the flat physical-byte-address array passed
	// to the DPU, indexed to match Fragments.
	AcceleratorAddrList []uint64

	owned int32
}

// New creates a region in the Idle state for the window
// [base, base+sizePFNs).
func New(base, sizePFNs frame.PFN) *Region {
	return &Region{
		BasePFN:  base,
		SizePFNs: sizePFNs,
		state:    Idle,
		byOldPFN: make(map[frame.PFN]bool),
	}
}

// Session is the single-writer capability token: exactly one Session may
// be live for a region at a time, from creation to cleanup.
type Session struct {
	region *Region
}

// Begin acquires single-writer ownership of the region.
func (r *Region) Begin() (*Session, error) {
	if !atomic.CompareAndSwapInt32(&r.owned, 0, 1) {
		return nil, ErrAlreadyOwned
	}
	return &Session{region: r}, nil
}

// Release relinquishes ownership. Safe to call once, at the end of the
// attempt (success or failure) regardless of terminal state.
func (s *Session) Release() {
	atomic.StoreInt32(&s.region.owned, 0)
}

// Region returns the region this session owns.
func (s *Session) Region() *Region { return s.region }

// State reports the current lifecycle state.
func (r *Region) State() State { return r.state }

// Transition advances the region's state. An invalid transition is a
// programming error in the caller and panics rather than being reported
// as a recoverable error.
func (r *Region) Transition(to State) {
	if !canTransition(r.state, to) {
		panic(fmt.Sprintf("region: invalid transition %s -> %s", r.state, to))
	}
	r.state = to
}

// Add appends a fragment record, enforcing capacity, window membership,
// and old_pfn uniqueness. Callers (the isolation walker) hold fragMu
// only for the duration of this call.
func (r *Region) Add(rec *frame.Record) error {
	r.fragMu.Lock()
	defer r.fragMu.Unlock()

	if len(r.fragments) >= MaxFragments {
		return ErrFull
	}
	if rec.OldPFN < r.BasePFN || rec.OldPFN >= r.BasePFN+r.SizePFNs {
		return ErrOutOfRange
	}
	if r.byOldPFN[rec.OldPFN] {
		return ErrDuplicatePFN
	}
	r.byOldPFN[rec.OldPFN] = true
	r.fragments = append(r.fragments, rec)
	return nil
}

// Fragments returns the fragment records in frame-ascending order (the
// order the isolation walker produced them in). The returned slice aliases
// internal storage and must not be reordered by callers; mutate individual
// *frame.Record fields instead.
func (r *Region) Fragments() []*frame.Record {
	r.fragMu.Lock()
	defer r.fragMu.Unlock()
	return r.fragments
}

// Len reports the number of fragments currently held.
func (r *Region) Len() int {
	r.fragMu.Lock()
	defer r.fragMu.Unlock()
	return len(r.fragments)
}

// AtCapacity reports whether the region already holds MaxFragments
// records, the isolation walker's stopping condition.
func (r *Region) AtCapacity() bool {
	return r.Len() >= MaxFragments
}
