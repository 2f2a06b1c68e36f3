package domain

import "github.com/jonboulle/clockwork"

// clock is a package-level time source so tests can freeze "today" via SetClock.
// Production code uses the real clock; tests inject a fake for deterministic pull dates.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for default pull dates. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

// Today returns the current calendar date in UTC according to the package clock.
func Today() Date {
	return DateOf(clock.Now())
}
