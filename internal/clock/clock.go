// Package clock abstracts wall-clock access so expiry computations and
// checks are deterministic under test.
package clock

import "time"

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// System reads the real wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fixed always returns the same instant. Tests advance it explicitly.
type Fixed struct {
	At time.Time
}

func (f *Fixed) Now() time.Time { return f.At }

// Advance moves the fixed clock forward by d.
func (f *Fixed) Advance(d time.Duration) { f.At = f.At.Add(d) }
