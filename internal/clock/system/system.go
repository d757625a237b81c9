// Package system provides the wall clock used for lineage, run and fetch
// timestamps.
package system

import "time"

// Clock reports the current time in UTC.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Stepping is a deterministic clock that advances by Step on every call.
type Stepping struct {
	next time.Time
	step time.Duration
}

// NewStepping returns a clock starting at start.
func NewStepping(start time.Time, step time.Duration) *Stepping {
	return &Stepping{next: start.UTC(), step: step}
}

// Now returns the current reading and advances the clock. Not safe for
// concurrent use.
func (s *Stepping) Now() time.Time {
	now := s.next
	s.next = s.next.Add(s.step)
	return now
}
