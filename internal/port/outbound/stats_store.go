// Package outbound defines the outbound port interfaces for exporting
// log-site statistics.
package outbound

import "context"

// SiteCounts holds emission counters for one log site.
type SiteCounts struct {
	Emitted    int64 `json:"emitted" yaml:"emitted"`
	Suppressed int64 `json:"suppressed" yaml:"suppressed"`
}

// StatsStore is the outbound port for persisting log-site statistics.
// Adapters implement this to export counters to shared storage (Redis).
type StatsStore interface {
	// Add increments the stored counters by deltas, keyed by site name.
	Add(ctx context.Context, deltas map[string]SiteCounts) error

	// Load returns the stored counters for every site.
	Load(ctx context.Context) (map[string]SiteCounts, error)

	// Close releases the underlying connection.
	Close() error
}
