// Package clock abstracts time for testability. The gate engine and the
// checkpoint store take a Clock so tests can freeze or advance time and make
// timestamp-derived behavior (history file names, stale-lock aging)
// deterministic.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock implements Clock using the system time.
type RealClock struct{}

// Now returns the current system time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Ensure RealClock implements Clock.
var _ Clock = RealClock{}
