package ratelimit

import "github.com/Sentinel-Gate/ratelog/internal/domain/logsite"

// Store holds lazily created per-site state of type V.
//
// Implementations must be safe for concurrent use. Get returns the value
// already stored for key or stores and returns create(); concurrent first
// accesses for the same key observe a single published value. Entries for
// keys carrying a logsite.Lifetime qualifier are removed when that lifetime
// ends; there is no other eviction.
type Store[V any] interface {
	Get(key logsite.Key, create func() V) V
	Len() int
}

// Stores groups the per-site state stores used by a limiter registry.
type Stores struct {
	Counts    Store[*CountLimiter]
	Durations Store[*DurationLimiter]
	Samples   Store[*SamplingLimiter]
	Tokens    Store[*TokenLimiter]
	Skips     Store[*SkipCounter]
}

// Len returns the total number of entries across all stores.
func (s Stores) Len() int {
	n := 0
	for _, l := range []interface{ Len() int }{s.Counts, s.Durations, s.Samples, s.Tokens, s.Skips} {
		if l != nil {
			n += l.Len()
		}
	}
	return n
}
