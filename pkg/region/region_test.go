package region

import (
	"testing"

	"dpucompact/pkg/frame"
)

func TestTransitionsFollowLifecycle(t *testing.T) {
	r := New(1000, 512)
	if r.State() != Idle {
		t.Fatalf("new region should start Idle")
	}
	r.Transition(Collecting)
	r.Transition(Moving)
	r.Transition(Updating)
	r.Transition(Complete)
	if r.State() != Complete {
		t.Fatalf("expected Complete, got %s", r.State())
	}
}

func TestInvalidTransitionPanics(t *testing.T) {
	r := New(1000, 512)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on invalid transition")
		}
	}()
	r.Transition(Moving) // Idle -> Moving is not a valid single step
}

func TestFailedReachableFromAnyNonTerminalState(t *testing.T) {
	for _, start := range []State{Collecting, Moving, Updating} {
		r := New(1000, 512)
		r.state = start
		r.Transition(Failed)
		if r.State() != Failed {
			t.Errorf("expected Failed from %s", start)
		}
	}
}

func TestAddEnforcesCapacityRangeAndUniqueness(t *testing.T) {
	r := New(1000, 4)

	if err := r.Add(frame.NewInUse(999, false, false)); err != ErrOutOfRange {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if err := r.Add(frame.NewInUse(1004, false, false)); err != ErrOutOfRange {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if err := r.Add(frame.NewInUse(1000, false, false)); err != nil {
		t.Fatalf("expected first add to succeed, got %v", err)
	}
	if err := r.Add(frame.NewInUse(1000, false, false)); err != ErrDuplicatePFN {
		t.Errorf("expected ErrDuplicatePFN, got %v", err)
	}
}

func TestAddStopsAtMaxFragments(t *testing.T) {
	r := New(0, MaxFragments+10)
	for i := 0; i < MaxFragments; i++ {
		if err := r.Add(frame.NewInUse(frame.PFN(i), false, false)); err != nil {
			t.Fatalf("unexpected error at fragment %d: %v", i, err)
		}
	}
	if err := r.Add(frame.NewInUse(frame.PFN(MaxFragments), false, false)); err != ErrFull {
		t.Errorf("expected ErrFull once capacity is reached, got %v", err)
	}
}

func TestSessionSingleWriter(t *testing.T) {
	r := New(0, 16)
	s1, err := r.Begin()
	if err != nil {
		t.Fatalf("first Begin should succeed: %v", err)
	}
	if _, err := r.Begin(); err != ErrAlreadyOwned {
		t.Errorf("expected ErrAlreadyOwned, got %v", err)
	}
	s1.Release()
	if _, err := r.Begin(); err != nil {
		t.Errorf("Begin after Release should succeed, got %v", err)
	}
}

func TestValidatePlacementCatchesPrefixViolation(t *testing.T) {
	r := New(1000, 4)
	inUse := frame.NewInUse(1000, false, false)
	inUse.NewPFN = 1003
	free := frame.NewFree(1001)
	free.NewPFN = 1000
	r.Add(inUse)
	r.Add(free)

	if err := r.ValidatePlacement(); err == nil {
		t.Fatalf("expected prefix violation to be detected")
	}
}

func TestValidatePlacementAcceptsCompactPrefix(t *testing.T) {
	r := New(1000, 4)
	inUse := frame.NewInUse(1000, false, false)
	inUse.NewPFN = 1000
	free := frame.NewFree(1001)
	free.NewPFN = 1001
	r.Add(inUse)
	r.Add(free)

	if err := r.ValidatePlacement(); err != nil {
		t.Fatalf("expected valid placement, got %v", err)
	}
}
