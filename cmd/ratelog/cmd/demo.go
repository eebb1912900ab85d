package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	httpadapter "github.com/Sentinel-Gate/ratelog/internal/adapter/inbound/http"
	"github.com/Sentinel-Gate/ratelog/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/ratelog/internal/adapter/outbound/redis"
	"github.com/Sentinel-Gate/ratelog/internal/adapter/outbound/tracing"
	"github.com/Sentinel-Gate/ratelog/internal/config"
	"github.com/Sentinel-Gate/ratelog/internal/domain/scope"
	"github.com/Sentinel-Gate/ratelog/internal/service"
	"github.com/Sentinel-Gate/ratelog/pkg/ratelog"
)

var (
	demoWorkers  int
	demoRequests int
	demoServe    bool
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a synthetic HTTP workload through the rate limited logger",
	Long: `Start the metrics server with a demo endpoint, send it requests from
concurrent workers and print a summary of emitted and suppressed statements.

Every request runs in its own logging scope. The endpoint logs:
  - an info line every N requests per user bucket
  - a warning at most once per period
  - a sampled debug line
  - a per-request retry line limited to once per request

With --serve the server keeps running after the workload so /metrics,
/health and /stats can be inspected.`,
	RunE: runDemo,
}

func init() {
	demoCmd.Flags().IntVar(&demoWorkers, "workers", 0, "number of concurrent workers (default from config)")
	demoCmd.Flags().IntVar(&demoRequests, "requests", 0, "requests per worker (default from config)")
	demoCmd.Flags().BoolVar(&demoServe, "serve", false, "keep serving after the workload until interrupted")
	rootCmd.AddCommand(demoCmd)
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if demoWorkers > 0 {
		cfg.Demo.Workers = demoWorkers
	}
	if demoRequests > 0 {
		cfg.Demo.Requests = demoRequests
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	defer stop()

	base := newBaseHandler(cfg.Logging)
	logger := slog.New(base)
	if file := config.ConfigFileUsed(); file != "" {
		logger.Info("loaded config", "file", file)
	}

	scope.SetDrainInterval(cfg.Scope.DrainInterval)

	tracer, err := tracing.New(cfg.Tracing.Enabled, os.Stdout)
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	defer func() {
		if err := tracer.Shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	stats := service.NewStatsService(cfg.Stats.TrackSites)
	limiter := service.NewLimiterService(memory.NewStores(), logger, service.WithStats(stats))
	logger = newAppLogger(base, limiter)

	var pinger httpadapter.Pinger
	if cfg.Stats.Enabled {
		store, exporter, err := startStatsExport(ctx, cfg, stats, logger)
		if err != nil {
			logger.Warn("stats export disabled", "error", err)
		} else {
			defer func() {
				exporter.Stop()
				_ = store.Close()
			}()
			pinger = store
		}
	}

	app, err := newDemoApp(logger, tracer, cfg.Demo)
	if err != nil {
		return err
	}

	addr := cfg.Metrics.Addr
	if !cfg.Metrics.Enabled {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	srv := httpadapter.NewServer(
		httpadapter.WithLogger(logger),
		httpadapter.WithLimiter(limiter),
		httpadapter.WithStats(stats),
		httpadapter.WithHealthChecker(httpadapter.NewHealthChecker(limiter, pinger, Version)),
		httpadapter.WithHandler(app),
	)
	srvCtx, cancelSrv := context.WithCancel(ctx)
	defer cancelSrv()
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Serve(srvCtx, ln) }()

	start := time.Now()
	sent := driveWorkload(ctx, "http://"+ln.Addr().String()+"/work", cfg.Demo)
	logger.Info("workload finished", "requests", sent, "elapsed", time.Since(start).Round(time.Millisecond))

	if err := printSummary(cmd.OutOrStdout(), stats, limiter); err != nil {
		return err
	}

	if demoServe && cfg.Metrics.Enabled {
		logger.Info("serving until interrupted", "addr", ln.Addr().String())
		<-ctx.Done()
	}
	cancelSrv()
	return <-srvErr
}

func startStatsExport(ctx context.Context, cfg *config.Config, stats *service.StatsService, logger *slog.Logger) (*redis.StatsStore, *service.StatsExporter, error) {
	ttl, flush, _ := cfg.Durations()

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	store, err := redis.Dial(dialCtx, cfg.Stats.RedisAddr, cfg.Stats.RedisPassword, cfg.Stats.RedisDB,
		redis.WithPrefix(cfg.Stats.Prefix),
		redis.WithTTL(ttl),
	)
	if err != nil {
		return nil, nil, err
	}

	exporter := service.NewStatsExporter(stats, store, flush, logger)
	exporter.Start(ctx)
	logger.Info("exporting stats", "redis", cfg.Stats.RedisAddr, "interval", flush)
	return store, exporter, nil
}

// newDemoApp returns the handler serving /work?user=<n>.
func newDemoApp(logger *slog.Logger, tracer *tracing.Tracer, cfg config.DemoConfig) (http.Handler, error) {
	buckets, err := ratelog.ByHashCode(cfg.Buckets)
	if err != nil {
		return nil, fmt.Errorf("demo buckets: %w", err)
	}
	atMostEvery, err := time.ParseDuration(cfg.AtMostEvery)
	if err != nil {
		return nil, fmt.Errorf("demo at_most_every: %w", err)
	}

	// Shared by every request: the base attributes carry the sampling
	// policy for debug lines.
	debug := logger.With(ratelog.OnAverageEvery(cfg.SampleEvery), "component", "demo")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "demo.work")
		defer span.End()

		user, err := strconv.Atoi(r.URL.Query().Get("user"))
		if err != nil {
			http.Error(w, "user must be an integer", http.StatusBadRequest)
			return
		}

		logger.InfoContext(ctx, "handling request", "user", user,
			ratelog.Every(cfg.Every),
			ratelog.Per(user, buckets))

		if user%7 == 0 {
			logger.WarnContext(ctx, "slow dependency", "user", user,
				ratelog.AtMostEvery(int64(atMostEvery), time.Nanosecond))
		}

		for attempt := 1; attempt <= 3; attempt++ {
			logger.InfoContext(ctx, "retrying backend call", "attempt", attempt,
				ratelog.Every(3),
				ratelog.PerScopeType(ratelog.Request))
		}

		debug.DebugContext(ctx, "request details", "user", user, "path", r.URL.Path)

		w.WriteHeader(http.StatusNoContent)
	}), nil
}

// driveWorkload sends cfg.Requests requests from each of cfg.Workers workers
// and returns how many were sent.
func driveWorkload(ctx context.Context, url string, cfg config.DemoConfig) int {
	client := &http.Client{Timeout: 5 * time.Second}
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sent int
	)
	for w := range cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range cfg.Requests {
				if ctx.Err() != nil {
					return
				}
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"?user="+strconv.Itoa(w*cfg.Requests+i), nil)
				if err != nil {
					return
				}
				resp, err := client.Do(req)
				if err != nil {
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				_ = resp.Body.Close()
				mu.Lock()
				sent++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return sent
}

type demoSummary struct {
	Statements service.Stats      `yaml:"statements"`
	State      service.StoreSizes `yaml:"limiter_state"`
	Scopes     struct {
		Created uint64 `yaml:"created"`
		Closed  uint64 `yaml:"closed"`
	} `yaml:"scopes"`
}

func printSummary(w io.Writer, stats *service.StatsService, limiter *service.LimiterService) error {
	var s demoSummary
	s.Statements = stats.GetStats()
	s.State = limiter.StoreSizes()
	st := scope.LoadStats()
	s.Scopes.Created = st.Created
	s.Scopes.Closed = st.Closed

	out, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("failed to render summary: %w", err)
	}
	_, err = w.Write(out)
	return err
}

// newAppLogger routes logs through the rate limited handler backed by
// limiter. The limiter keeps logging to base directly.
func newAppLogger(base slog.Handler, limiter *service.LimiterService) *slog.Logger {
	return slog.New(ratelog.NewHandler(base, ratelog.WithLimiter(limiter)))
}
