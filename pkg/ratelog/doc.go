// Package ratelog adds per-call-site rate limiting to log/slog.
//
// A Handler wraps any slog.Handler. Policies are attached to individual log
// statements as attributes and are stripped before the record reaches the
// wrapped handler:
//
//	logger := slog.New(ratelog.NewHandler(slog.NewJSONHandler(os.Stderr, nil)))
//
//	for _, item := range batch {
//	    logger.Warn("slow item", "id", item.ID,
//	        ratelog.AtMostEvery(30, time.Second))
//	}
//
// State is kept per call site (the record PC). When a statement is emitted
// after others at the same site were suppressed, the record carries a
// "skipped" attribute with their number.
//
// # Policies
//
//	Every(n)                   - first of every n occurrences
//	AtMostEvery(n, unit)       - at most once per n*unit
//	OnAverageEvery(n)          - random sample, one in n on average
//	WithinRate(events, per, b) - token bucket with burst b
//
// When several policies are given a statement is emitted only when all of
// them allow it.
//
// # Aggregation
//
// Per, PerKey, PerScope and PerScopeType split the state of one call site
// into independent buckets, for example one per user class or one per
// request. State bound to a scope is released when the scope is closed.
package ratelog
