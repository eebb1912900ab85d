package ratelimit

import (
	"math/rand/v2"
	"strconv"
	"sync/atomic"
)

// SamplingLimiter emits one in n statements on average.
//
// Each check succeeds with probability 1/n and adds a pending emission; the
// limiter stays pending while emissions are owed. Unlike the other limiters
// there is no guarantee that the first statement is emitted.
type SamplingLimiter struct {
	pending atomic.Int32
}

// NewSamplingLimiter returns an idle limiter.
func NewSamplingLimiter() *SamplingLimiter { return &SamplingLimiter{} }

// Check reports the status of one statement under p. An inactive policy
// reports nil.
func (l *SamplingLimiter) Check(p OnAverageEvery) Status {
	if !p.Active() {
		return nil
	}
	if rand.IntN(p.n) == 0 {
		l.pending.Add(1)
	}
	if l.pending.Load() > 0 {
		return l
	}
	return Disallow
}

// Reset implements Status. It settles one owed emission, if any.
func (l *SamplingLimiter) Reset() {
	for {
		v := l.pending.Load()
		if v <= 0 {
			return
		}
		if l.pending.CompareAndSwap(v, v-1) {
			return
		}
	}
}

func (l *SamplingLimiter) String() string {
	return "SamplingLimiter{pending=" + strconv.Itoa(int(l.pending.Load())) + "}"
}
