// Package service contains application services.
package service

import (
	"sync"
	"sync/atomic"

	"github.com/Sentinel-Gate/ratelog/internal/domain/logsite"
	"github.com/Sentinel-Gate/ratelog/internal/port/outbound"
)

// StatsService tracks log emission statistics using lock-free atomic counters.
// All counter operations are safe for concurrent access from multiple goroutines.
type StatsService struct {
	emitted    atomic.Int64
	suppressed atomic.Int64
	unlimited  atomic.Int64
	skipped    atomic.Int64

	// Per-site counters (mutex-protected maps), only kept when trackSites is set.
	trackSites bool
	mu         sync.Mutex
	sites      map[string]outbound.SiteCounts
	deltas     map[string]outbound.SiteCounts
}

// NewStatsService creates a new StatsService with all counters initialized to zero.
// When trackSites is true counters are also kept per base log site.
func NewStatsService(trackSites bool) *StatsService {
	return &StatsService{
		trackSites: trackSites,
		sites:      make(map[string]outbound.SiteCounts),
		deltas:     make(map[string]outbound.SiteCounts),
	}
}

// RecordEmit records an emitted statement that reports skipped suppressed
// statements before it.
func (s *StatsService) RecordEmit(key logsite.Key, skipped int) {
	s.emitted.Add(1)
	if skipped > 0 {
		s.skipped.Add(int64(skipped))
	}
	s.recordSite(key, 1, 0)
}

// RecordSuppress records a suppressed statement.
func (s *StatsService) RecordSuppress(key logsite.Key) {
	s.suppressed.Add(1)
	s.recordSite(key, 0, 1)
}

// RecordUnlimited records a statement logged without any active policy.
func (s *StatsService) RecordUnlimited() {
	s.unlimited.Add(1)
}

func (s *StatsService) recordSite(key logsite.Key, emitted, suppressed int64) {
	if !s.trackSites || key == nil {
		return
	}
	name := logsite.Base(key).String()

	s.mu.Lock()
	c := s.sites[name]
	c.Emitted += emitted
	c.Suppressed += suppressed
	s.sites[name] = c

	d := s.deltas[name]
	d.Emitted += emitted
	d.Suppressed += suppressed
	s.deltas[name] = d
	s.mu.Unlock()
}

// Stats holds a snapshot of all counters at a point in time.
type Stats struct {
	Emitted    int64                          `json:"emitted" yaml:"emitted"`
	Suppressed int64                          `json:"suppressed" yaml:"suppressed"`
	Unlimited  int64                          `json:"unlimited" yaml:"unlimited"`
	Skipped    int64                          `json:"skipped" yaml:"skipped"`
	Sites      map[string]outbound.SiteCounts `json:"sites,omitempty" yaml:"sites,omitempty"`
}

// GetStats returns a snapshot of all counters.
// The snapshot is consistent per-counter but not atomically across all counters.
func (s *StatsService) GetStats() Stats {
	s.mu.Lock()
	sites := make(map[string]outbound.SiteCounts, len(s.sites))
	for k, v := range s.sites {
		sites[k] = v
	}
	s.mu.Unlock()

	return Stats{
		Emitted:    s.emitted.Load(),
		Suppressed: s.suppressed.Load(),
		Unlimited:  s.unlimited.Load(),
		Skipped:    s.skipped.Load(),
		Sites:      sites,
	}
}

// TakeDeltas returns the per-site counters accumulated since the previous
// call and starts a new accumulation.
func (s *StatsService) TakeDeltas() map[string]outbound.SiteCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.deltas) == 0 {
		return nil
	}
	d := s.deltas
	s.deltas = make(map[string]outbound.SiteCounts, len(d))
	return d
}

// RestoreDeltas merges deltas that could not be exported back into the
// pending accumulation.
func (s *StatsService) RestoreDeltas(deltas map[string]outbound.SiteCounts) {
	s.mu.Lock()
	for name, c := range deltas {
		d := s.deltas[name]
		d.Emitted += c.Emitted
		d.Suppressed += c.Suppressed
		s.deltas[name] = d
	}
	s.mu.Unlock()
}

// Reset sets all counters to zero.
func (s *StatsService) Reset() {
	s.emitted.Store(0)
	s.suppressed.Store(0)
	s.unlimited.Store(0)
	s.skipped.Store(0)

	s.mu.Lock()
	s.sites = make(map[string]outbound.SiteCounts)
	s.deltas = make(map[string]outbound.SiteCounts)
	s.mu.Unlock()
}
