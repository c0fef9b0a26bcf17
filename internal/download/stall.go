package download

import "time"

// stallEpsilon is the smallest progress delta counted as real movement.
const stallEpsilon = 0.001

// stallTracker accumulates the time during which transfer progress has
// not moved beyond stallEpsilon. The baseline only advances on a
// significant delta, so progress must drift at least the epsilon away
// from the last anchor to reset the clock.
type stallTracker struct {
	baseline   float64
	stalledFor time.Duration
}

// observe folds one poll tick into the tracker and returns the total
// accumulated stall time.
func (s *stallTracker) observe(progress float64, tick time.Duration) time.Duration {
	delta := progress - s.baseline
	if delta < 0 {
		delta = -delta
	}
	if delta < stallEpsilon {
		s.stalledFor += tick
	} else {
		s.stalledFor = 0
		s.baseline = progress
	}
	return s.stalledFor
}
