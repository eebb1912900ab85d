package ratelimit

import (
	"math"
	"strconv"
	"sync/atomic"
)

// CountLimiter emits the first of every n statements at a log site.
//
// The invocation count starts high so the first check is pending. Each
// check increments it and reports pending once it reaches n; Reset sets it
// back to zero.
type CountLimiter struct {
	invocations atomic.Int64
}

// NewCountLimiter returns a limiter whose first check is pending.
func NewCountLimiter() *CountLimiter {
	l := &CountLimiter{}
	l.invocations.Store(math.MaxInt64 / 2)
	return l
}

// Check records one statement and reports its status under p. An inactive
// policy reports nil.
func (l *CountLimiter) Check(p Every) Status {
	if !p.Active() {
		return nil
	}
	if l.invocations.Add(1) >= p.n {
		return l
	}
	return Disallow
}

// Reset implements Status.
func (l *CountLimiter) Reset() { l.invocations.Store(0) }

func (l *CountLimiter) String() string {
	return "CountLimiter{invocations=" + strconv.FormatInt(l.invocations.Load(), 10) + "}"
}
