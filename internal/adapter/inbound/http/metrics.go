// Package http provides the HTTP adapter exposing metrics, health and the
// request-scope middleware.
package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Sentinel-Gate/ratelog/internal/domain/scope"
	"github.com/Sentinel-Gate/ratelog/internal/service"
)

const namespace = "ratelog"

// Metrics holds all Prometheus metrics for ratelog.
// Statement and state metrics are read from the services at scrape time.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	StatementsEmitted    prometheus.CounterFunc
	StatementsSuppressed prometheus.CounterFunc
	StatementsUnlimited  prometheus.CounterFunc
	StatementsSkipped    prometheus.CounterFunc

	// SiteStates holds one gauge per limiter store, keyed by store name.
	SiteStates map[string]prometheus.GaugeFunc

	ScopesCreated prometheus.CounterFunc
	ScopesClosed  prometheus.CounterFunc
	ScopesOpen    prometheus.GaugeFunc
}

// NewMetrics creates and registers all metrics with the given registry.
// limiter and stats may be nil, their metrics are then not registered.
func NewMetrics(reg prometheus.Registerer, limiter *service.LimiterService, stats *service.StatsService) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "status"}, // status=ok/error
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ScopesCreated: f.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scopes_created_total",
				Help:      "Total logging scopes created",
			},
			func() float64 { return float64(scope.LoadStats().Created) },
		),
		ScopesClosed: f.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scopes_closed_total",
				Help:      "Total logging scopes closed, explicitly or after collection",
			},
			func() float64 { return float64(scope.LoadStats().Closed) },
		),
		ScopesOpen: f.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "scopes_open",
				Help:      "Number of logging scopes not yet closed",
			},
			func() float64 { return float64(scope.LoadStats().Open()) },
		),
	}

	if stats != nil {
		counter := func(name, help string, value func(service.Stats) int64) prometheus.CounterFunc {
			return f.NewCounterFunc(
				prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help},
				func() float64 { return float64(value(stats.GetStats())) },
			)
		}
		m.StatementsEmitted = counter("statements_emitted_total",
			"Total rate limited statements emitted",
			func(s service.Stats) int64 { return s.Emitted })
		m.StatementsSuppressed = counter("statements_suppressed_total",
			"Total statements suppressed by a rate limit",
			func(s service.Stats) int64 { return s.Suppressed })
		m.StatementsUnlimited = counter("statements_unlimited_total",
			"Total statements logged without any rate limit",
			func(s service.Stats) int64 { return s.Unlimited })
		m.StatementsSkipped = counter("statements_skipped_reported_total",
			"Total skipped counts reported on emitted statements",
			func(s service.Stats) int64 { return s.Skipped })
	}

	if limiter != nil {
		stores := map[string]func(service.StoreSizes) int{
			"count":    func(s service.StoreSizes) int { return s.Count },
			"duration": func(s service.StoreSizes) int { return s.Duration },
			"sampling": func(s service.StoreSizes) int { return s.Sampling },
			"token":    func(s service.StoreSizes) int { return s.Token },
			"skip":     func(s service.StoreSizes) int { return s.Skip },
		}
		m.SiteStates = make(map[string]prometheus.GaugeFunc, len(stores))
		for name, size := range stores {
			m.SiteStates[name] = f.NewGaugeFunc(
				prometheus.GaugeOpts{
					Namespace:   namespace,
					Name:        "site_states",
					Help:        "Number of per-site limiter states held",
					ConstLabels: prometheus.Labels{"store": name},
				},
				func() float64 { return float64(size(limiter.StoreSizes())) },
			)
		}
	}

	return m
}
