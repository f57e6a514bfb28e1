// Package stats holds the engine's process-wide mutable state: a single
// enable flag and monotonic per-zone attempt counters with pressure
// reporting, adapted from byte-budget accounting to frame/region-attempt
// counters, since nothing here tracks bytes of cached data.
package stats

import "sync"

// PressureCallback is invoked once, on the transition into pressure.
// It is edge-triggered, not fired on every call that happens to still
// be over threshold.
type PressureCallback func(fragments, capacity int)

// Registry tracks attempt counters for one or more named zones and the
// process-wide compaction enable flag. Tests construct their own
// Registry; production code uses the package-level Default.
type Registry struct {
	mu      sync.Mutex
	enabled bool

	attempts  map[string]uint64
	successes map[string]uint64
	partials  map[string]uint64
	failures  map[string]uint64
	skipped   map[string]uint64

	pressureThreshold float64 // fraction of region.MaxFragments
	callback          PressureCallback
	wasUnderPressure  map[string]bool
}

// NewRegistry creates a Registry with compaction enabled and the default
// 80% pressure threshold, mirroring cache.DefaultPressureThreshold.
func NewRegistry() *Registry {
	return &Registry{
		enabled:           true,
		attempts:          make(map[string]uint64),
		successes:         make(map[string]uint64),
		partials:          make(map[string]uint64),
		failures:          make(map[string]uint64),
		skipped:           make(map[string]uint64),
		pressureThreshold: 0.8,
		wasUnderPressure:  make(map[string]bool),
	}
}

// Default is the process-wide registry pkg/compact consults by default.
var Default = NewRegistry()

// Enabled reports the global compaction enable flag.
func (r *Registry) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// SetEnabled flips the global compaction enable flag.
func (r *Registry) SetEnabled(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = v
}

// SetPressureThreshold sets the fraction of capacity (0.0-1.0) at which
// RecordFragmentCount fires the pressure callback.
func (r *Registry) SetPressureThreshold(threshold float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}
	r.pressureThreshold = threshold
}

// OnPressure registers a callback fired each time a zone's fragment
// count crosses into pressure; mirrors MemoryBudget.OnPressure.
func (r *Registry) OnPressure(cb PressureCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callback = cb
}

// RecordAttempt increments zone's attempt counter.
func (r *Registry) RecordAttempt(zone string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[zone]++
}

// RecordOutcome increments the counter matching outcome's name for zone.
func (r *Registry) RecordOutcome(zone, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch outcome {
	case "Success", "Complete":
		r.successes[zone]++
	case "Partial":
		r.partials[zone]++
	case "Failed":
		r.failures[zone]++
	case "Skipped":
		r.skipped[zone]++
	}
}

// RecordFragmentCount reports zone's current fragment count against
// capacity, firing the pressure callback on the rising edge only.
func (r *Registry) RecordFragmentCount(zone string, fragments, capacity int) {
	r.mu.Lock()
	underPressure := capacity > 0 && float64(fragments) >= float64(capacity)*r.pressureThreshold
	wasUnder := r.wasUnderPressure[zone]
	r.wasUnderPressure[zone] = underPressure
	cb := r.callback
	r.mu.Unlock()

	if underPressure && !wasUnder && cb != nil {
		cb(fragments, capacity)
	}
}

// Snapshot is a point-in-time read of one zone's counters.
type Snapshot struct {
	Attempts  uint64
	Successes uint64
	Partials  uint64
	Failures  uint64
	Skipped   uint64
}

// Stats returns a copy of zone's counters.
func (r *Registry) Stats(zone string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		Attempts:  r.attempts[zone],
		Successes: r.successes[zone],
		Partials:  r.partials[zone],
		Failures:  r.failures[zone],
		Skipped:   r.skipped[zone],
	}
}
