package player

import (
	"runtime"
	"time"
)

// spinThreshold is how close to a deadline the player stops trusting timers
// and busy-waits instead.
const spinThreshold = 2 * time.Millisecond

// Clock is the player's time source.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	// SpinUntil returns at t without yielding to a timer.
	SpinUntil(t time.Time)
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (RealClock) SpinUntil(t time.Time) {
	for time.Now().Before(t) {
		runtime.Gosched()
	}
}
