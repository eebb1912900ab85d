package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Sentinel-Gate/ratelog/internal/service"
)

// Server exposes metrics, health and stats over HTTP.
type Server struct {
	addr          string
	logger        *slog.Logger
	limiter       *service.LimiterService
	stats         *service.StatsService
	healthChecker *HealthChecker
	handler       http.Handler // Optional application handler mounted on "/"

	registry *prometheus.Registry
	metrics  *Metrics

	mu     sync.Mutex
	server *http.Server
}

// Option is a functional option for configuring Server.
type Option func(*Server)

// WithAddr sets the listen address.
// Default is "127.0.0.1:9464" (localhost only).
func WithAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithLimiter exposes limiter state metrics for l.
func WithLimiter(l *service.LimiterService) Option {
	return func(s *Server) {
		s.limiter = l
	}
}

// WithStats exposes statement counters and the /stats endpoint for stats.
func WithStats(stats *service.StatsService) Option {
	return func(s *Server) {
		s.stats = stats
	}
}

// WithHealthChecker sets the /health handler.
func WithHealthChecker(hc *HealthChecker) Option {
	return func(s *Server) {
		s.healthChecker = hc
	}
}

// WithHandler mounts h on "/" behind the metrics and request-scope
// middleware.
func WithHandler(h http.Handler) Option {
	return func(s *Server) {
		s.handler = h
	}
}

// NewServer creates a Server. Metrics are registered on a private registry
// together with the Go and process collectors.
func NewServer(opts ...Option) *Server {
	s := &Server{
		addr:   "127.0.0.1:9464",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = NewMetrics(s.registry, s.limiter, s.stats)
	if s.healthChecker == nil {
		s.healthChecker = NewHealthChecker(s.limiter, nil, "")
	}
	return s
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Handler builds the routing tree.
//
// Middleware order (outermost first): metrics, then request scope, then the
// mounted handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health", s.healthChecker.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		Registry: s.registry,
	}))
	if s.stats != nil {
		mux.Handle("/stats", statsHandler(s.stats))
	}
	if s.handler != nil {
		mux.Handle("/", s.handler)
	}

	var h http.Handler = mux
	h = RequestScopeMiddleware(s.logger)(h)
	h = MetricsMiddleware(s.metrics)(h)
	return h
}

// Start listens on the configured address and serves until ctx is cancelled
// or the server fails.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled or the server fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = server
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down HTTP server")
		return s.shutdown(server)
	case err := <-errCh:
		return err
	}
}

func (s *Server) shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		s.logger.Error("error during server shutdown", "error", err)
		return err
	}

	s.logger.Info("HTTP server shutdown complete")
	return nil
}

// Close gracefully shuts down the server. It is safe to call concurrently
// with Serve and is a no-op before Serve.
func (s *Server) Close() error {
	s.mu.Lock()
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	return s.shutdown(server)
}

func statsHandler(stats *service.StatsService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats.GetStats())
	})
}
