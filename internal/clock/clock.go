package clock

import (
	"sync"
	"time"
)

// Clock abstracts time operations for testability.
type Clock interface {
	Now() time.Time
}

// Real is a Clock backed by the system clock.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time { return time.Now() }

// Mock is a Clock that always returns a fixed time.
type Mock struct {
	T time.Time
}

// Now returns the fixed time.
func (m Mock) Now() time.Time { return m.T }

// Step is a Clock that moves forward by Interval on every call, starting at Start.
// Bid timestamps in tests come from it so arrival order is visible in the data.
type Step struct {
	mu       sync.Mutex
	next     time.Time
	Start    time.Time
	Interval time.Duration
	started  bool
}

// NewStep returns a Step clock.
func NewStep(start time.Time, interval time.Duration) *Step {
	return &Step{Start: start, Interval: interval}
}

// Now returns the current step and advances the clock.
func (s *Step) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.next = s.Start
		s.started = true
	}
	t := s.next
	s.next = s.next.Add(s.Interval)
	return t
}
