// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"sync"
	"sync/atomic"

	"github.com/Sentinel-Gate/ratelog/internal/domain/logsite"
	"github.com/Sentinel-Gate/ratelog/internal/domain/ratelimit"
)

// SiteMap implements ratelimit.Store using a sync.Map keyed by log site.
// Thread-safe for concurrent access.
//
// Entries are created lazily and only removed when a lifetime qualifier of
// their key (a scope token) ends. Unscoped keys stay for the life of the map.
// V must be comparable, typically a pointer.
type SiteMap[V any] struct {
	entries sync.Map // logsite.Key -> V
	size    atomic.Int64
}

// NewSiteMap creates an empty site map.
func NewSiteMap[V any]() *SiteMap[V] {
	return &SiteMap[V]{}
}

// Get returns the value stored for key, creating it with create on first
// access. Racing first accesses publish a single value.
func (m *SiteMap[V]) Get(key logsite.Key, create func() V) V {
	if v, ok := m.entries.Load(key); ok {
		return v.(V)
	}
	v, loaded := m.entries.LoadOrStore(key, create())
	if loaded {
		return v.(V)
	}
	m.size.Add(1)

	for _, lt := range logsite.Lifetimes(key) {
		lt.OnClose(func() {
			if m.entries.CompareAndDelete(key, v) {
				m.size.Add(-1)
			}
		})
	}
	return v.(V)
}

// Len returns the current number of entries.
// Useful for testing and monitoring memory usage.
func (m *SiteMap[V]) Len() int {
	return int(m.size.Load())
}

// Range calls fn for every entry until fn returns false.
func (m *SiteMap[V]) Range(fn func(key logsite.Key, value V) bool) {
	m.entries.Range(func(k, v any) bool {
		return fn(k.(logsite.Key), v.(V))
	})
}

// NewStores returns a fresh set of in-memory limiter stores.
func NewStores() ratelimit.Stores {
	return ratelimit.Stores{
		Counts:    NewSiteMap[*ratelimit.CountLimiter](),
		Durations: NewSiteMap[*ratelimit.DurationLimiter](),
		Samples:   NewSiteMap[*ratelimit.SamplingLimiter](),
		Tokens:    NewSiteMap[*ratelimit.TokenLimiter](),
		Skips:     NewSiteMap[*ratelimit.SkipCounter](),
	}
}

// Compile-time interface verification.
var (
	_ ratelimit.Store[*ratelimit.CountLimiter] = (*SiteMap[*ratelimit.CountLimiter])(nil)
	_ ratelimit.Store[*ratelimit.SkipCounter]  = (*SiteMap[*ratelimit.SkipCounter])(nil)
)
