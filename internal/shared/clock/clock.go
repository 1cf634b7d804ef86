// Package clock abstracts the ambient time source so cadence arithmetic
// and date validation are deterministic under test.
package clock

import "time"

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
	// Today returns the current date truncated to midnight UTC.
	Today() time.Time
}

// System is the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

func (System) Today() time.Time { return Midnight(time.Now().UTC()) }

// Fixed always reports the same instant.
type Fixed struct {
	T time.Time
}

// At creates a fixed clock pinned to t.
func At(t time.Time) Fixed { return Fixed{T: t.UTC()} }

func (f Fixed) Now() time.Time { return f.T }

func (f Fixed) Today() time.Time { return Midnight(f.T) }

// Midnight truncates t to the start of its day in UTC.
func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
