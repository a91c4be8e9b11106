// Package rotation implements the per-identity rotation state machine:
// the rotation counter, the cooldown and single-flight guard, and the
// bounded per-identity connection ledger.
package rotation

import "time"

// Clock abstracts time for the cooldown logic so it can be tested
// deterministically without real delays.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// realClock implements Clock using the system clock.
type realClock struct{}

// Now implements Clock.
func (realClock) Now() time.Time {
	return time.Now()
}

// RealClock returns a Clock backed by the system clock.
func RealClock() Clock {
	return realClock{}
}
