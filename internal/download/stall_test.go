package download

import (
	"testing"
	"time"
)

const tick = 2 * time.Second

func TestStallAccumulatesWithoutProgress(t *testing.T) {
	var tracker stallTracker

	var last time.Duration
	for i := 0; i < 15; i++ {
		last = tracker.observe(0, tick)
	}
	if last != 30*time.Second {
		t.Fatalf("Expected 30s accumulated after 15 idle ticks, got %s", last)
	}

	last = tracker.observe(0, tick)
	if last != 32*time.Second {
		t.Fatalf("Expected 32s accumulated after 16 idle ticks, got %s", last)
	}
}

func TestStallResetsOnRealProgress(t *testing.T) {
	var tracker stallTracker

	for i := 0; i < 14; i++ {
		tracker.observe(0.5, tick)
	}
	if got := tracker.observe(0.6, tick); got != 0 {
		t.Fatalf("Expected a 0.1 jump to reset the stall clock, got %s", got)
	}
	if got := tracker.observe(0.6, tick); got != tick {
		t.Fatalf("Expected accumulation to restart from the new baseline, got %s", got)
	}
}

func TestStallCreepCrossingEpsilonResets(t *testing.T) {
	var tracker stallTracker

	if got := tracker.observe(0.0006, tick); got != tick {
		t.Fatalf("Expected sub-epsilon drift to accumulate, got %s", got)
	}
	// Cumulative drift from the anchor is now 0.0012, past the epsilon.
	if got := tracker.observe(0.0012, tick); got != 0 {
		t.Fatalf("Expected cumulative drift past epsilon to reset, got %s", got)
	}
}

func TestStallOscillationWithinEpsilonAccumulates(t *testing.T) {
	var tracker stallTracker
	tracker.observe(0.5, tick) // anchor

	var last time.Duration
	for i := 0; i < 10; i++ {
		progress := 0.5
		if i%2 == 0 {
			progress = 0.5004
		}
		last = tracker.observe(progress, tick)
	}
	if last != 10*tick {
		t.Fatalf("Expected oscillation inside the epsilon to keep accumulating, got %s", last)
	}
}

func TestStallBackwardProgressCounts(t *testing.T) {
	var tracker stallTracker
	tracker.observe(0.5, tick)

	// A rewind is still a significant delta in absolute terms.
	if got := tracker.observe(0.3, tick); got != 0 {
		t.Fatalf("Expected a backward jump to reset, got %s", got)
	}
}
