package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Sentinel-Gate/ratelog/internal/domain/logsite"
	"github.com/Sentinel-Gate/ratelog/internal/domain/ratelimit"
)

// Clock supplies monotonic timestamps in nanoseconds.
type Clock interface {
	NowNanos() int64
}

type monotonicClock struct {
	start time.Time
}

func (c monotonicClock) NowNanos() int64 { return int64(time.Since(c.start)) }

// NewMonotonicClock returns a clock counting nanoseconds since its creation.
func NewMonotonicClock() Clock {
	return monotonicClock{start: time.Now()}
}

// Statement describes one occurrence of a log statement and the policies
// attached to it.
type Statement struct {
	// Site identifies the call site. A nil site disables every policy.
	Site logsite.Key

	// Qualifiers are the aggregation keys and scopes applied to the site,
	// in the order they were supplied.
	Qualifiers []logsite.Specializer

	Every          ratelimit.Every
	AtMostEvery    ratelimit.AtMostEvery
	OnAverageEvery ratelimit.OnAverageEvery
	WithinRate     ratelimit.WithinRate
}

// Limited reports whether any policy is active for the statement.
func (st Statement) Limited() bool {
	return st.Every.Active() || st.AtMostEvery.Active() ||
		st.OnAverageEvery.Active() || st.WithinRate.Active()
}

// Decision is the outcome for one statement.
type Decision struct {
	// Emit reports whether the statement should be logged.
	Emit bool

	// Skipped is the number of statements suppressed at the same
	// specialized site since its previous emission. Only meaningful when
	// Emit is true.
	Skipped int

	// Key is the specialized site key the decision was made for.
	Key logsite.Key
}

// LimiterService owns the per-site limiter state of a logger and decides
// whether statements are emitted.
//
// It is safe for concurrent use. State lives in the injected stores, so
// independent services never share limiter state.
type LimiterService struct {
	stores ratelimit.Stores
	clock  Clock
	stats  *StatsService
	logger *slog.Logger
}

// LimiterOption configures a LimiterService.
type LimiterOption func(*LimiterService)

// WithClock sets the clock used by Decide. Defaults to a monotonic clock.
func WithClock(c Clock) LimiterOption {
	return func(s *LimiterService) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithStats records every decision in stats.
func WithStats(stats *StatsService) LimiterOption {
	return func(s *LimiterService) {
		s.stats = stats
	}
}

// NewLimiterService creates a new LimiterService backed by stores.
// Every store in stores must be set.
func NewLimiterService(stores ratelimit.Stores, logger *slog.Logger, opts ...LimiterOption) *LimiterService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &LimiterService{
		stores: stores,
		clock:  NewMonotonicClock(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clock returns the service clock.
func (s *LimiterService) Clock() Clock { return s.clock }

// CheckEvery returns the status of the count limiter for key under p.
func (s *LimiterService) CheckEvery(p ratelimit.Every, key logsite.Key) ratelimit.Status {
	if key == nil || !p.Active() {
		return nil
	}
	return s.stores.Counts.Get(key, ratelimit.NewCountLimiter).Check(p)
}

// CheckAtMostEvery returns the status of the duration limiter for key under
// p at nowNanos.
func (s *LimiterService) CheckAtMostEvery(p ratelimit.AtMostEvery, key logsite.Key, nowNanos int64) ratelimit.Status {
	if key == nil || !p.Active() {
		return nil
	}
	return s.stores.Durations.Get(key, ratelimit.NewDurationLimiter).Check(p, nowNanos)
}

// CheckOnAverageEvery returns the status of the sampling limiter for key
// under p.
func (s *LimiterService) CheckOnAverageEvery(p ratelimit.OnAverageEvery, key logsite.Key) ratelimit.Status {
	if key == nil || !p.Active() {
		return nil
	}
	return s.stores.Samples.Get(key, ratelimit.NewSamplingLimiter).Check(p)
}

// CheckWithinRate returns the status of the token limiter for key under p at
// nowNanos. Each distinct policy used at a site has its own bucket.
func (s *LimiterService) CheckWithinRate(p ratelimit.WithinRate, key logsite.Key, nowNanos int64) ratelimit.Status {
	if key == nil || !p.Active() {
		return nil
	}
	l := s.stores.Tokens.Get(logsite.Specialize(key, p), func() *ratelimit.TokenLimiter {
		return ratelimit.NewTokenLimiter(p)
	})
	return l.Check(p, nowNanos)
}

// Combine merges two statuses, see ratelimit.Combine.
func (s *LimiterService) Combine(a, b ratelimit.Status) ratelimit.Status {
	return ratelimit.Combine(a, b)
}

// FinalizeAndReset completes the decision for key. A Disallow status counts
// one more skipped statement and returns (-1, false). Any other status is
// reset and the number of statements skipped since the previous emission is
// returned with true. Without a key no skips are counted.
func (s *LimiterService) FinalizeAndReset(status ratelimit.Status, key logsite.Key) (int, bool) {
	if key == nil {
		n := ratelimit.CheckStatus(status, nil)
		return n, n >= 0
	}
	skipped := ratelimit.CheckStatus(status, s.stores.Skips.Get(key, newSkipCounter))
	return skipped, skipped >= 0
}

// Decide applies the statement's policies at the current clock time.
//
// The site key is specialized by each qualifier in order, then the duration,
// count, sampling and rate policies are checked and their statuses combined.
func (s *LimiterService) Decide(st Statement) Decision {
	if st.Site == nil {
		return Decision{Emit: true}
	}

	key := st.Site
	for _, q := range st.Qualifiers {
		if q != nil {
			key = q.Specialize(key)
		}
	}

	if !st.Limited() {
		if s.stats != nil {
			s.stats.RecordUnlimited()
		}
		return Decision{Emit: true, Key: key}
	}

	now := s.clock.NowNanos()
	status := s.CheckAtMostEvery(st.AtMostEvery, key, now)
	status = ratelimit.Combine(status, s.CheckEvery(st.Every, key))
	status = ratelimit.Combine(status, s.CheckOnAverageEvery(st.OnAverageEvery, key))
	status = ratelimit.Combine(status, s.CheckWithinRate(st.WithinRate, key, now))

	skipped, emit := s.FinalizeAndReset(status, key)
	if !emit {
		if s.stats != nil {
			s.stats.RecordSuppress(key)
		}
		return Decision{Key: key}
	}

	if s.stats != nil {
		s.stats.RecordEmit(key, skipped)
	}
	if skipped > 0 && s.logger.Enabled(context.Background(), slog.LevelDebug) {
		s.logger.Debug("log site resumed after suppression",
			"site", key.String(),
			"skipped", skipped)
	}
	return Decision{Emit: true, Skipped: skipped, Key: key}
}

// StoreSizes reports the number of entries per limiter store.
type StoreSizes struct {
	Count    int `json:"count"`
	Duration int `json:"duration"`
	Sampling int `json:"sampling"`
	Token    int `json:"token"`
	Skip     int `json:"skip"`
}

// StoreSizes returns the current number of entries in each store.
func (s *LimiterService) StoreSizes() StoreSizes {
	return StoreSizes{
		Count:    s.stores.Counts.Len(),
		Duration: s.stores.Durations.Len(),
		Sampling: s.stores.Samples.Len(),
		Token:    s.stores.Tokens.Len(),
		Skip:     s.stores.Skips.Len(),
	}
}

func newSkipCounter() *ratelimit.SkipCounter { return &ratelimit.SkipCounter{} }
