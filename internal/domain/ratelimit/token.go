package ratelimit

import (
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// TokenLimiter emits statements while tokens are available in a token
// bucket. A check is pending when a token is available at its timestamp and
// Reset consumes that token.
type TokenLimiter struct {
	bucket *rate.Limiter

	// pendingAt is the timestamp of the latest pending check plus one, or
	// zero when no token is owed.
	pendingAt atomic.Int64
}

// NewTokenLimiter returns a limiter with a full bucket for p.
func NewTokenLimiter(p WithinRate) *TokenLimiter {
	return &TokenLimiter{bucket: rate.NewLimiter(p.limit, p.burst)}
}

// Check reports the status of a statement at nowNanos. An inactive policy
// reports nil.
func (l *TokenLimiter) Check(p WithinRate, nowNanos int64) Status {
	if !p.Active() {
		return nil
	}
	if nowNanos < 0 {
		nowNanos = 0
	}
	if l.bucket.TokensAt(time.Unix(0, nowNanos)) < 1 {
		return Disallow
	}
	l.pendingAt.Store(nowNanos + 1)
	return l
}

// Reset implements Status. It consumes the token owed by the latest pending
// check; a second Reset is a no-op.
func (l *TokenLimiter) Reset() {
	at := l.pendingAt.Swap(0)
	if at == 0 {
		return
	}
	l.bucket.AllowN(time.Unix(0, at-1), 1)
}

func (l *TokenLimiter) String() string {
	return "TokenLimiter{limit=" + strconv.FormatFloat(float64(l.bucket.Limit()), 'g', -1, 64) + "/s}"
}
