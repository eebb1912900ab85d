package ratelog

import (
	"github.com/Sentinel-Gate/ratelog/internal/domain/bucketing"
	"github.com/Sentinel-Gate/ratelog/internal/domain/scope"
	"github.com/Sentinel-Gate/ratelog/internal/service"
)

type (
	// Limiter owns per-site limiter state.
	Limiter = service.LimiterService
	// Clock supplies monotonic timestamps in nanoseconds.
	Clock = service.Clock
	// Stats counts emitted and suppressed statements.
	Stats = service.StatsService
	// Scope bounds the lifetime of aggregated state.
	Scope = scope.Scope
	// ScopeType names a kind of scope found through a context.
	ScopeType = scope.Type
	// Strategy maps aggregation keys to a bounded set of buckets.
	Strategy = bucketing.Strategy
)

// Request is the scope type installed by request middleware.
var Request = scope.Request

// NewScope creates a scope. An empty label is replaced by a random UUID.
func NewScope(label string) *Scope { return scope.Create(label) }

// NewScopeType returns a new scope type.
func NewScopeType(name string) *ScopeType { return scope.NewType(name) }

// NewStats returns a statistics collector. With trackSites counters are
// also kept per call site.
func NewStats(trackSites bool) *Stats { return service.NewStatsService(trackSites) }

// Strategies.
var (
	KnownBounded = bucketing.KnownBounded
	ByClass      = bucketing.ByClass
	ByClassName  = bucketing.ByClassName
	ByHashCode   = bucketing.ByHashCode
	ForKnownKeys = bucketing.ForKnownKeys
	StrategyFunc = bucketing.Func
)
