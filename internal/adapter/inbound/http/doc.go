// Package http serves the operational surface of a process using ratelog.
//
// # Usage
//
// Create and start a server:
//
//	srv := http.NewServer(
//	    http.WithAddr("127.0.0.1:9464"),
//	    http.WithLimiter(limiter),
//	    http.WithStats(stats),
//	    http.WithLogger(logger),
//	)
//	err := srv.Start(ctx)
//
// # Endpoints
//
//	GET /metrics  - Prometheus exposition of statement, limiter state and scope metrics
//	GET /health   - JSON health report, 503 when a dependency is down
//	GET /stats    - JSON snapshot of emitted and suppressed counts per log site
//
// Any extra handler passed with WithHandler is mounted on "/" behind the
// request-scope middleware, so every request gets its own logging scope.
//
// # Request Headers
//
//	X-Request-ID: <id>   - Used as the request scope label, generated when absent
//
// # Response Headers
//
//	X-Request-ID: <id>   - Echoes the request ID for correlation
package http
