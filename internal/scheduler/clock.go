package scheduler

import "time"

// Clock abstracts time for the dispatcher and backoff calculations.
type Clock interface {
	Now() time.Time
	// After fires once the clock reaches deadline. A deadline in the past
	// fires immediately.
	After(deadline time.Time) <-chan time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) After(deadline time.Time) <-chan time.Time {
	return time.After(time.Until(deadline))
}
