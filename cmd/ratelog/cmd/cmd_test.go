package cmd

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"gopkg.in/yaml.v3"

	httpadapter "github.com/Sentinel-Gate/ratelog/internal/adapter/inbound/http"
	"github.com/Sentinel-Gate/ratelog/internal/adapter/outbound/tracing"
	"github.com/Sentinel-Gate/ratelog/internal/config"
	"github.com/Sentinel-Gate/ratelog/internal/domain/logsite"
	"github.com/Sentinel-Gate/ratelog/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/ratelog/internal/service"
	"github.com/Sentinel-Gate/ratelog/pkg/ratelog"
	ratelogclient "github.com/Sentinel-Gate/ratelog/pkg/client"
)

func TestCommands_Registered(t *testing.T) {
	want := map[string]bool{"demo": false, "stats": false, "config": false, "version": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("%s command not registered with rootCmd", name)
		}
	}
}

func TestDemoCmd_FlagDefaults(t *testing.T) {
	workers, err := demoCmd.Flags().GetInt("workers")
	if err != nil {
		t.Fatalf("failed to get workers flag: %v", err)
	}
	if workers != 0 {
		t.Errorf("workers default = %d, want 0 (from config)", workers)
	}
	serve, err := demoCmd.Flags().GetBool("serve")
	if err != nil {
		t.Fatalf("failed to get serve flag: %v", err)
	}
	if serve {
		t.Error("serve should default to false")
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestVersionCmd_Output(t *testing.T) {
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	defer versionCmd.SetOut(nil)

	versionCmd.Run(versionCmd, nil)

	if !strings.HasPrefix(buf.String(), "ratelog "+Version) {
		t.Errorf("version output = %q", buf.String())
	}
}

func TestRenderConfig_RedactsPassword(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Stats.RedisPassword = "hunter2"
	cfg.Stats.RedisAddr = "cache:6379"

	out, err := renderConfig(cfg)
	if err != nil {
		t.Fatalf("renderConfig() error: %v", err)
	}
	if strings.Contains(string(out), "hunter2") {
		t.Error("rendered config leaks the Redis password")
	}
	if cfg.Stats.RedisPassword != "hunter2" {
		t.Error("renderConfig() must not modify its argument")
	}

	var back config.Config
	if err := yaml.Unmarshal(out, &back); err != nil {
		t.Fatalf("rendered config is not YAML: %v", err)
	}
	if back.Stats.RedisAddr != "cache:6379" {
		t.Errorf("stats.redis_addr = %q, want cache:6379", back.Stats.RedisAddr)
	}
}

func newTestDemoApp(t *testing.T, buf *bytes.Buffer) (http.Handler, *service.StatsService) {
	t.Helper()

	tracer, err := tracing.New(false, nil)
	if err != nil {
		t.Fatalf("tracing.New() error: %v", err)
	}
	var cfg config.Config
	cfg.SetDefaults()

	stats := service.NewStatsService(false)
	base := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	limiter := ratelog.NewLimiter(nil, service.WithStats(stats))
	app, err := newDemoApp(slog.New(ratelog.NewHandler(base, ratelog.WithLimiter(limiter))), tracer, cfg.Demo)
	if err != nil {
		t.Fatalf("newDemoApp() error: %v", err)
	}
	return httpadapter.RequestScopeMiddleware(slog.New(base))(app), stats
}

func TestDemoApp_LogsRetryOncePerRequest(t *testing.T) {
	var buf bytes.Buffer
	app, stats := newTestDemoApp(t, &buf)

	for user := 1; user <= 6; user++ {
		rec := httptest.NewRecorder()
		app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/work?user="+strconv.Itoa(user), nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d, want 204", rec.Code)
		}
	}

	if n := strings.Count(buf.String(), "retrying backend call"); n != 6 {
		t.Errorf("retry lines = %d, want one per request", n)
	}
	if strings.Contains(buf.String(), "ratelog.") {
		t.Error("policy attributes leaked into the output")
	}
	if s := stats.GetStats(); s.Suppressed == 0 {
		t.Error("expected suppressed statements")
	}
}

func TestDemoApp_BadUser(t *testing.T) {
	var buf bytes.Buffer
	app, _ := newTestDemoApp(t, &buf)

	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/work?user=abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestDriveWorkload(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sent := driveWorkload(t.Context(), srv.URL, config.DemoConfig{Workers: 3, Requests: 4})
	if sent != 12 || hits.Load() != 12 {
		t.Errorf("sent = %d, hits = %d, want 12", sent, hits.Load())
	}
}

func TestPrintSummary(t *testing.T) {
	stats := service.NewStatsService(false)
	limiter := ratelog.NewLimiter(nil, service.WithStats(stats))
	every, err := ratelimit.NewEvery(2)
	if err != nil {
		t.Fatalf("NewEvery() error: %v", err)
	}
	limiter.Decide(service.Statement{Site: logsite.Site{Function: "summary", Line: 1}, Every: every})

	var buf bytes.Buffer
	if err := printSummary(&buf, stats, limiter); err != nil {
		t.Fatalf("printSummary() error: %v", err)
	}
	for _, want := range []string{"statements:", "emitted: 1", "limiter_state:", "scopes:"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("summary missing %q:\n%s", want, buf.String())
		}
	}
}

func TestStatsAgainstServer(t *testing.T) {
	stats := service.NewStatsService(true)
	limiter := ratelog.NewLimiter(nil, service.WithStats(stats))
	every, err := ratelimit.NewEvery(4)
	if err != nil {
		t.Fatalf("NewEvery() error: %v", err)
	}
	site := logsite.Site{Function: "noisy", File: "noisy.go", Line: 7}
	for range 8 {
		limiter.Decide(service.Statement{Site: site, Every: every})
	}

	srv := httpadapter.NewServer(httpadapter.WithStats(stats), httpadapter.WithLimiter(limiter))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := ratelogclient.NewClient(ratelogclient.WithServerAddr(ts.URL))
	health, err := client.Health(t.Context())
	if err != nil {
		t.Fatalf("Health() error: %v", err)
	}
	got, err := client.Stats(t.Context())
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}

	var buf bytes.Buffer
	printStats(&buf, health, got, 5)
	for _, want := range []string{"status:     healthy", "emitted:    2", "suppressed: 6 (75.0%)", "emitted=2 suppressed=6"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("output missing %q:\n%s", want, buf.String())
		}
	}
}

func TestPrintStats_SiteLimit(t *testing.T) {
	stats := &ratelogclient.Stats{Sites: map[string]ratelogclient.SiteCounts{
		"a": {Suppressed: 1},
		"b": {Suppressed: 9},
		"c": {Suppressed: 5},
	}}

	var buf bytes.Buffer
	printStats(&buf, &ratelogclient.Health{Status: "healthy"}, stats, 2)
	out := buf.String()
	if strings.Contains(out, "  a ") {
		t.Errorf("site limit not applied:\n%s", out)
	}
	if strings.Index(out, "  b ") > strings.Index(out, "  c ") {
		t.Errorf("sites not ordered by suppressed count:\n%s", out)
	}
}

func TestNewAppLogger(t *testing.T) {
	var buf bytes.Buffer
	stats := service.NewStatsService(false)
	limiter := ratelog.NewLimiter(nil, service.WithStats(stats))
	logger := newAppLogger(slog.NewTextHandler(&buf, nil), limiter)

	for range 4 {
		logger.Info("stats flush failed", ratelog.Every(2))
	}
	logger.Info("loaded config")

	if n := strings.Count(buf.String(), "stats flush failed"); n != 2 {
		t.Errorf("limited lines = %d, want 2:\n%s", n, buf.String())
	}
	if !strings.Contains(buf.String(), "loaded config") {
		t.Error("unlimited statement was dropped")
	}
	s := stats.GetStats()
	if s.Emitted != 2 || s.Suppressed != 2 || s.Unlimited != 1 {
		t.Errorf("stats = %+v, want 2 emitted, 2 suppressed, 1 unlimited", s)
	}
}
