package opusloop

import "time"

// TimeProvider supplies the timestamps Process uses to measure each block
// for the block-duration histogram. Tests swap in a fake to pin durations.
// It is called from the audio thread and must not block.
type TimeProvider interface {
	// Now marks the start of a block.
	Now() time.Time
	// Since reports how long the block that started at start has run.
	Since(start time.Time) time.Duration
}

// WallClock times blocks with the monotonic reading of the system clock.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

func (WallClock) Since(start time.Time) time.Duration { return time.Since(start) }
