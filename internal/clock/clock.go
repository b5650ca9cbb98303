// Package clock provides the engine's notion of "now": wall time for live
// sessions and a settable simulated time for backtests.
package clock

import (
	"fmt"
	"time"

	"backtestCore/internal/ports"
)

// Clock returns the current timestamp.
type Clock interface {
	Now() time.Time
}

// Settable is a Clock whose time is advanced explicitly.
type Settable interface {
	Clock
	Set(t time.Time) error
}

// Real reads the wall clock.
type Real struct{}

// Now returns time.Now.
func (Real) Now() time.Time {
	return time.Now()
}

// Simulated is a settable clock that only moves forward.
type Simulated struct {
	now time.Time
}

// NewSimulated creates a simulated clock starting at start.
func NewSimulated(start time.Time) *Simulated {
	return &Simulated{now: start}
}

// Now returns the simulated time.
func (c *Simulated) Now() time.Time {
	return c.now
}

// Set moves the clock to t. Moving backwards fails with ports.ErrClockDirection.
func (c *Simulated) Set(t time.Time) error {
	if t.Before(c.now) {
		return fmt.Errorf("set clock to %s while at %s: %w", t.Format(time.RFC3339Nano), c.now.Format(time.RFC3339Nano), ports.ErrClockDirection)
	}
	c.now = t
	return nil
}
