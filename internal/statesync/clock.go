package statesync

import (
	"math"
	"time"
)

// Ticks is a millisecond counter that wraps after about 49.7 days.
// Compare ticks only through Elapsed.
type Ticks uint32

// MaxTicks is the last value before the counter wraps to zero.
const MaxTicks Ticks = math.MaxUint32

// Elapsed returns now - since, correct across one wrap of the counter.
func Elapsed(now, since Ticks) Ticks {
	return now - since
}

// FromDuration converts a duration to ticks, saturating at MaxTicks.
func FromDuration(d time.Duration) Ticks {
	ms := d.Milliseconds()
	switch {
	case ms <= 0:
		return 0
	case ms >= int64(MaxTicks):
		return MaxTicks
	}
	return Ticks(ms)
}

// Clock supplies the current tick count.
type Clock interface {
	Now() Ticks
}

// SystemClock counts milliseconds since it was created.
type SystemClock struct {
	start time.Time
}

// NewSystemClock returns a clock starting at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// Now returns the milliseconds since creation, truncated to 32 bits.
func (c *SystemClock) Now() Ticks {
	return Ticks(uint64(time.Since(c.start).Milliseconds())) //nolint:gosec // wrap is intended
}
