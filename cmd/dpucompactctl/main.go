// cmd/dpucompactctl/main.go
//
// dpucompactctl - demo harness for the DPU-offloaded physical memory
// compaction engine.
//
// Usage:
//
//	dpucompactctl [-scenario name] [-order n] [-min-free n] [-frame-size n]
//
// Builds a simulated zone from a preset frame layout, runs one
// try_compact attempt against it through the in-process accelerator
// simulator, and reports the outcome and the zone's running counters.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"dpucompact/pkg/compact"
	"dpucompact/pkg/dpu"
	"dpucompact/pkg/frame"
	"dpucompact/pkg/hostmem"
	"dpucompact/pkg/stats"
)

// scenarios are preset frame layouts: U is an in-use frame eligible for
// migration, F is a free frame.
var scenarios = map[string]string{
	"interleaved":     "UFUFU",
	"already-compact": "UUUFFF",
	"all-free":        "FFFFFF",
	"mostly-full":     "UUUUUF",
	"single-move":     "FU",
}

const basePFN frame.PFN = 1000

func main() {
	var (
		scenarioName = flag.String("scenario", "interleaved", "preset frame layout: "+scenarioNames())
		order        = flag.Int("order", 0, "requested compaction order")
		minFree      = flag.Int("min-free", 0, "minimum free frames required to attempt compaction")
		frameSize    = flag.Int("frame-size", 4096, "bytes per simulated frame")
		noSleep      = flag.Bool("no-sleep", false, "forbid the blocking accelerator call, forcing a Skipped outcome")
		failAfter    = flag.Int("fail-after", 0, "make the Nth accelerator call fail (0 disables)")
	)
	flag.Parse()

	layout, ok := scenarios[*scenarioName]
	if !ok {
		fmt.Fprintf(os.Stderr, "dpucompactctl: unknown scenario %q (have: %s)\n", *scenarioName, scenarioNames())
		os.Exit(1)
	}

	arena, err := hostmem.NewArena(hostmem.Config{Base: basePFN, NFrames: len(layout), FrameSize: *frameSize})
	if err != nil {
		fmt.Fprintf(os.Stderr, "dpucompactctl: %v\n", err)
		os.Exit(1)
	}
	defer arena.Close()

	seedLayout(arena, layout)

	reg := stats.NewRegistry()
	reg.OnPressure(func(fragments, capacity int) {
		fmt.Printf("zone %q under fragmentation pressure: %d/%d fragments\n", *scenarioName, fragments, capacity)
	})

	acc := dpu.NewSimAccelerator(arena, *frameSize)
	acc.FailAfter = *failAfter

	cfg := compact.Config{MinOrder: *order, MinFreeFrames: *minFree, FrameSize: *frameSize}
	flags := compact.Flags{NoSleep: *noSleep}

	fmt.Printf("dpucompactctl: zone %q, layout %s (%d frames)\n", *scenarioName, layout, len(layout))

	outcome := compact.TryCompact(context.Background(), reg, *scenarioName, arena, basePFN, frame.PFN(len(layout)), *order, cfg, flags, acc)
	fmt.Printf("outcome: %s\n", outcome)

	snap := reg.Stats(*scenarioName)
	fmt.Printf("attempts=%d successes=%d partials=%d failures=%d skipped=%d\n",
		snap.Attempts, snap.Successes, snap.Partials, snap.Failures, snap.Skipped)
}

func scenarioNames() string {
	s := ""
	for name := range scenarios {
		if s != "" {
			s += ", "
		}
		s += name
	}
	return s
}

// seedLayout marks each frame in layout free or in-use against arena,
// starting at basePFN.
func seedLayout(a *hostmem.Arena, layout string) {
	for i, c := range layout {
		pfn := basePFN + frame.PFN(i)
		switch c {
		case 'U':
			a.SetMeta(pfn, hostmem.FrameMeta{OnLRU: true})
			a.MarkInUse(pfn)
		case 'F':
			a.MarkFree(pfn, 0)
		}
	}
}
