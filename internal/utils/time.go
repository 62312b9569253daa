package utils

import "time"

// Clock returns the current instant. Services take one so tests can pin
// the period phase.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
