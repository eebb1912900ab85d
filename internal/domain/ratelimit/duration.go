package ratelimit

import (
	"math"
	"strconv"
	"sync/atomic"
)

// DurationLimiter emits at most one statement per period at a log site.
//
// last holds the timestamp of the last emission, in caller supplied
// monotonic nanoseconds. While pending it holds -(ts)-1 instead, where ts is
// the timestamp of the latest pending check; the initial value -1 is
// "pending at 0" so the first check always emits.
type DurationLimiter struct {
	last atomic.Int64
}

// NewDurationLimiter returns a limiter whose first check is pending.
func NewDurationLimiter() *DurationLimiter {
	l := &DurationLimiter{}
	l.last.Store(-1)
	return l
}

// Check reports the status of a statement at nowNanos under p. Negative
// timestamps are treated as zero. An inactive policy reports nil.
func (l *DurationLimiter) Check(p AtMostEvery, nowNanos int64) Status {
	if !p.Active() {
		return nil
	}
	if nowNanos < 0 {
		nowNanos = 0
	}
	last := l.last.Load()
	if last >= 0 {
		period := int64(p.period)
		if last > math.MaxInt64-period || nowNanos < last+period {
			return Disallow
		}
	}
	// A lost race means another check already moved the state; this one
	// stays pending either way.
	l.last.CompareAndSwap(last, -nowNanos-1)
	return l
}

// Reset implements Status. The timestamp of the last pending check becomes
// the anchor of the next window. Resetting a limiter that is not pending is
// a no-op.
func (l *DurationLimiter) Reset() {
	for {
		v := l.last.Load()
		if v >= 0 {
			return
		}
		if l.last.CompareAndSwap(v, -v-1) {
			return
		}
	}
}

// Pending reports whether the limiter is waiting for a Reset.
func (l *DurationLimiter) Pending() bool { return l.last.Load() < 0 }

func (l *DurationLimiter) String() string {
	v := l.last.Load()
	if v < 0 {
		return "DurationLimiter{pending=" + strconv.FormatInt(-v-1, 10) + "}"
	}
	return "DurationLimiter{last=" + strconv.FormatInt(v, 10) + "}"
}
