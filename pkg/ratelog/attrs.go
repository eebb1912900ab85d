package ratelog

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Sentinel-Gate/ratelog/internal/domain/bucketing"
	"github.com/Sentinel-Gate/ratelog/internal/domain/logsite"
	"github.com/Sentinel-Gate/ratelog/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/ratelog/internal/domain/scope"
)

// Attribute keys used when policy attributes reach a handler other than
// Handler.
const (
	KeyEvery          = "ratelog.every"
	KeyAtMostEvery    = "ratelog.at_most_every"
	KeyOnAverageEvery = "ratelog.on_average_every"
	KeyWithinRate     = "ratelog.within_rate"
	KeyPer            = "ratelog.per"

	// KeySkipped is added to emitted records that follow suppressed ones.
	KeySkipped = "skipped"
)

// Every emits the first of every n occurrences at a site.
// It panics if n <= 0; n == 1 logs every occurrence.
func Every(n int) slog.Attr {
	return slog.Any(KeyEvery, must(ratelimit.NewEvery(n)))
}

// AtMostEvery emits at most once per n units of time at a site.
// It panics if n < 0 or unit <= 0; n == 0 disables the limit.
func AtMostEvery(n int64, unit time.Duration) slog.Attr {
	return slog.Any(KeyAtMostEvery, must(ratelimit.NewAtMostEvery(n, unit)))
}

// OnAverageEvery emits a random one in n occurrences on average.
// It panics if n <= 0; n == 1 logs every occurrence.
func OnAverageEvery(n int) slog.Attr {
	return slog.Any(KeyOnAverageEvery, must(ratelimit.NewOnAverageEvery(n)))
}

// WithinRate emits at most events occurrences per period, with bursts of up
// to burst occurrences. It panics on non-positive arguments.
func WithinRate(events int, per time.Duration, burst int) slog.Attr {
	return slog.Any(KeyWithinRate, must(ratelimit.NewWithinRate(events, per, burst)))
}

// Per aggregates state at a site by the bucket strategy assigns to key.
// A nil strategy or a key with no bucket leaves the site unchanged.
func Per(key any, strategy Strategy) slog.Attr {
	return slog.Any(KeyPer, qualifier{specializer: bucketing.Per(key, strategy)})
}

// PerKey aggregates state at a site by key itself. Only use it with keys
// drawn from a small fixed set, such as enum constants.
func PerKey(key any) slog.Attr {
	return Per(key, bucketing.KnownBounded())
}

// PerScope aggregates state at a site by s. The state is released when s is
// closed. A nil scope leaves the site unchanged.
func PerScope(s *Scope) slog.Attr {
	q := qualifier{}
	if s != nil {
		q.specializer = s
	}
	return slog.Any(KeyPer, q)
}

// PerScopeType aggregates state at a site by the scope of type t found in
// the context passed to the logger. Statements logged without such a scope
// are not aggregated.
func PerScopeType(t *ScopeType) slog.Attr {
	return slog.Any(KeyPer, qualifier{scopeType: t})
}

// qualifier is either a fixed specializer or a scope type resolved from the
// record context.
type qualifier struct {
	specializer logsite.Specializer
	scopeType   *scope.Type
}

func (q qualifier) String() string {
	switch {
	case q.specializer != nil:
		return fmt.Sprint(q.specializer)
	case q.scopeType != nil:
		return q.scopeType.String()
	default:
		return "none"
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic("ratelog: " + err.Error())
	}
	return v
}
