// Package ratelimit provides the rate limiting state machines attached to
// log sites and the protocol used to combine them.
//
// Each limiter reports a Status for a log statement. A nil Status means the
// limiter is not active, Disallow suppresses the statement, and any other
// value is pending: the statement may be emitted, after which Reset must be
// called exactly once on the combined status.
package ratelimit

import "sync/atomic"

// Status is the decision reported by a limiter for one log statement.
type Status interface {
	// Reset returns the contributing limiters to their limiting state.
	// It is only called on a status that allowed emission.
	Reset()
}

type sentinel struct{ name string }

func (*sentinel) Reset() {}

func (s *sentinel) String() string { return s.name }

var (
	// Disallow suppresses the statement.
	Disallow Status = &sentinel{name: "Disallow"}

	// Allow permits the statement without any state to reset. It is mostly
	// useful for custom limiters.
	Allow Status = &sentinel{name: "Allow"}
)

type combined struct {
	a, b Status
}

func (c *combined) Reset() {
	c.a.Reset()
	c.b.Reset()
}

// Combine merges the statuses of two limiters:
//
//  1. if either is nil the other is returned,
//  2. if either is Allow the other is returned,
//  3. if either is Disallow the result is Disallow,
//  4. otherwise the result is pending and resets both.
func Combine(a, b Status) Status {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a == Allow {
		return b
	}
	if b == Allow {
		return a
	}
	if a == Disallow || b == Disallow {
		return Disallow
	}
	return &combined{a: a, b: b}
}

// SkipCounter counts statements suppressed at a log site since its last
// emission.
type SkipCounter struct {
	n atomic.Int64
}

// Increment records one suppressed statement.
func (c *SkipCounter) Increment() { c.n.Add(1) }

// Load returns the current count.
func (c *SkipCounter) Load() int { return int(c.n.Load()) }

// take returns the current count and sets it to zero.
func (c *SkipCounter) take() int { return int(c.n.Swap(0)) }

// CheckStatus finalizes a combined status.
//
// For Disallow it increments skipped and returns -1. Otherwise it resets
// status once and returns the number of statements skipped since the last
// emission. skipped may be nil when no count is tracked.
func CheckStatus(status Status, skipped *SkipCounter) int {
	if status == Disallow {
		if skipped != nil {
			skipped.Increment()
		}
		return -1
	}
	if status != nil {
		status.Reset()
	}
	if skipped == nil {
		return 0
	}
	return skipped.take()
}
