package ratelog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"
)

// recorder is a slog.Handler keeping every record it receives.
type recorder struct {
	mu      *sync.Mutex
	records *[]slog.Record
	attrs   []slog.Attr
	groups  []string
}

func newRecorder() *recorder {
	return &recorder{mu: &sync.Mutex{}, records: &[]slog.Record{}}
}

func (r *recorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *recorder) Handle(_ context.Context, rec slog.Record) error {
	r.mu.Lock()
	*r.records = append(*r.records, rec.Clone())
	r.mu.Unlock()
	return nil
}

func (r *recorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	r2 := *r
	r2.attrs = append(append([]slog.Attr{}, r.attrs...), attrs...)
	return &r2
}

func (r *recorder) WithGroup(name string) slog.Handler {
	r2 := *r
	r2.groups = append(append([]string{}, r.groups...), name)
	return &r2
}

func (r *recorder) all() []slog.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]slog.Record(nil), *r.records...)
}

func attrsOf(rec slog.Record) map[string]slog.Value {
	out := make(map[string]slog.Value)
	rec.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value
		return true
	})
	return out
}

type fakeClock struct{ now atomic.Int64 }

func (c *fakeClock) NowNanos() int64 { return c.now.Load() }
func (c *fakeClock) advance(d time.Duration) { c.now.Add(int64(d)) }

func TestHandler_Every(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	logger := slog.New(NewHandler(rec))

	for i := 1; i <= 7; i++ {
		logger.Info("tick", "i", i, Every(3))
	}

	got := rec.all()
	if len(got) != 3 {
		t.Fatalf("emitted %d records, want 3", len(got))
	}
	wantI := []int64{1, 4, 7}
	wantSkipped := []int64{0, 2, 2}
	for n, r := range got {
		a := attrsOf(r)
		if a["i"].Int64() != wantI[n] {
			t.Errorf("record %d: i = %v, want %d", n, a["i"], wantI[n])
		}
		if _, ok := a[KeyEvery]; ok {
			t.Errorf("record %d: policy attribute not stripped", n)
		}
		s, ok := a[KeySkipped]
		if wantSkipped[n] == 0 {
			if ok {
				t.Errorf("record %d: unexpected skipped = %v", n, s)
			}
		} else if !ok || s.Int64() != wantSkipped[n] {
			t.Errorf("record %d: skipped = %v, want %d", n, s, wantSkipped[n])
		}
	}
}

func TestHandler_AtMostEvery(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	clock := &fakeClock{}
	logger := slog.New(NewHandler(rec, WithClock(clock)))

	for range 10 {
		logger.Warn("slow", AtMostEvery(2, time.Second))
		clock.advance(300 * time.Millisecond)
	}

	// 0s, then the first tick at or after 2s (2.1s)
	got := rec.all()
	if len(got) != 2 {
		t.Fatalf("emitted %d records, want 2", len(got))
	}
	if s := attrsOf(got[1])[KeySkipped]; s.Int64() != 6 {
		t.Errorf("skipped = %v, want 6", s)
	}
}

func TestHandler_SitesAreIndependent(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	logger := slog.New(NewHandler(rec))

	for range 4 {
		logger.Info("a", Every(10))
		logger.Info("b", Every(10))
	}

	if n := len(rec.all()); n != 2 {
		t.Errorf("emitted %d records, want one per site", n)
	}
}

func TestHandler_NoPolicyPassesThrough(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	stats := NewStats(false)
	logger := slog.New(NewHandler(rec, WithStats(stats)))

	for range 5 {
		logger.Info("plain", "k", "v")
	}

	if n := len(rec.all()); n != 5 {
		t.Errorf("emitted %d records, want 5", n)
	}
	if got := stats.GetStats().Unlimited; got != 5 {
		t.Errorf("unlimited = %d, want 5", got)
	}
}

func TestHandler_NoSiteAlwaysEmits(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	h := NewHandler(rec)

	for range 3 {
		r := slog.NewRecord(time.Now(), slog.LevelInfo, "no pc", 0)
		r.AddAttrs(Every(100))
		if err := h.Handle(context.Background(), r); err != nil {
			t.Fatalf("Handle() error: %v", err)
		}
	}

	got := rec.all()
	if len(got) != 3 {
		t.Fatalf("emitted %d records, want 3", len(got))
	}
	if _, ok := attrsOf(got[0])[KeyEvery]; ok {
		t.Error("policy attribute should be stripped even without a site")
	}
}

func TestHandler_WithAttrsPolicies(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	logger := slog.New(NewHandler(rec)).With(Every(2), "component", "db")

	for range 4 {
		logger.Info("query")
	}

	if n := len(rec.all()); n != 2 {
		t.Errorf("emitted %d records, want 2", n)
	}

	wrapped := logger.Handler().(*Handler)
	inner := wrapped.next.(*recorder)
	if len(inner.attrs) != 1 || inner.attrs[0].Key != "component" {
		t.Errorf("attrs passed on = %v, want only component", inner.attrs)
	}
}

func TestHandler_RecordPolicyOverridesHandlerPolicy(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	logger := slog.New(NewHandler(rec)).With(Every(100))

	for range 4 {
		logger.Info("override", Every(2))
	}

	if n := len(rec.all()); n != 2 {
		t.Errorf("emitted %d records, want 2", n)
	}
}

func TestHandler_WithGroup(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	h := NewHandler(rec)
	if h.WithGroup("") != h {
		t.Error("WithGroup(\"\") should return the handler unchanged")
	}
	logger := slog.New(h).WithGroup("req")
	logger.Info("grouped", Every(5))

	inner := logger.Handler().(*Handler).next.(*recorder)
	if len(inner.groups) != 1 || inner.groups[0] != "req" {
		t.Errorf("groups = %v, want [req]", inner.groups)
	}
	if len(rec.all()) != 1 {
		t.Error("first grouped record should be emitted")
	}
}

func TestHandler_PerKey(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	logger := slog.New(NewHandler(rec))

	for range 3 {
		for _, kind := range []string{"read", "write"} {
			logger.Info("op", "kind", kind, Every(10), PerKey(kind))
		}
	}

	if n := len(rec.all()); n != 2 {
		t.Errorf("emitted %d records, want one per key", n)
	}
}

func TestHandler_PerHashBuckets(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	logger := slog.New(NewHandler(rec))
	strategy, err := ByHashCode(4)
	if err != nil {
		t.Fatalf("ByHashCode() error: %v", err)
	}

	for user := range 100 {
		logger.Info("user", Every(1000), Per(user, strategy))
	}

	if n := len(rec.all()); n != 4 {
		t.Errorf("emitted %d records, want one per bucket", n)
	}
}

func TestHandler_PerScopeType(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	h := NewHandler(rec)
	logger := slog.New(h)

	for range 2 {
		ctx, s := Request.NewContext(context.Background())
		for range 3 {
			logger.InfoContext(ctx, "in request", Every(10), PerScopeType(Request))
		}
		s.Close()
	}

	if n := len(rec.all()); n != 2 {
		t.Errorf("emitted %d records, want one per request", n)
	}
	if sizes := h.Limiter().StoreSizes(); sizes.Count != 0 || sizes.Skip != 0 {
		t.Errorf("state after close = %+v, want empty", sizes)
	}
}

func TestHandler_PerScopeTypeWithoutScope(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	logger := slog.New(NewHandler(rec))

	for range 4 {
		logger.Info("outside", Every(2), PerScopeType(Request))
	}

	if n := len(rec.all()); n != 2 {
		t.Errorf("emitted %d records, want 2", n)
	}
}

func TestHandler_PerScope(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	h := NewHandler(rec)
	logger := slog.New(h)

	s := NewScope("batch")
	for range 3 {
		logger.Info("scoped", Every(10), PerScope(s))
	}
	if sizes := h.Limiter().StoreSizes(); sizes.Count != 1 {
		t.Errorf("count states = %d, want 1", sizes.Count)
	}
	s.Close()
	if sizes := h.Limiter().StoreSizes(); sizes.Count != 0 {
		t.Errorf("count states after close = %d, want 0", sizes.Count)
	}

	logger.Info("nil scope", Every(10), PerScope(nil))
	if n := len(rec.all()); n != 2 {
		t.Errorf("emitted %d records, want 2", n)
	}
}

func TestHandler_SharedLimiter(t *testing.T) {
	t.Parallel()

	limiter := NewLimiter(nil)
	a := newRecorder()
	b := newRecorder()
	la := slog.New(NewHandler(a, WithLimiter(limiter)))
	lb := slog.New(NewHandler(b, WithLimiter(limiter)))

	for range 3 {
		la.Info("a", Every(5))
		lb.Info("b", Every(5))
	}

	if la.Handler().(*Handler).Limiter() != limiter {
		t.Error("Limiter() should return the shared limiter")
	}
	if sizes := limiter.StoreSizes(); sizes.Count != 2 {
		t.Errorf("shared count states = %d, want 2", sizes.Count)
	}
}

func TestHandler_SuppressedSpanEvent(t *testing.T) {
	t.Parallel()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	rec := newRecorder()
	logger := slog.New(NewHandler(rec))

	ctx, span := tp.Tracer("ratelog-test").Start(context.Background(), "work")
	for range 3 {
		logger.WarnContext(ctx, "retrying", Every(5))
	}
	span.End()

	ended := sr.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	events := ended[0].Events()
	if len(events) != 2 {
		t.Fatalf("span events = %d, want 2 suppressed", len(events))
	}
	ev := events[0]
	if ev.Name != SuppressedEvent {
		t.Errorf("event name = %q, want %q", ev.Name, SuppressedEvent)
	}
	found := map[string]string{}
	for _, kv := range ev.Attributes {
		found[string(kv.Key)] = kv.Value.AsString()
	}
	if found["log.message"] != "retrying" || found["log.level"] != "WARN" {
		t.Errorf("event attributes = %v", found)
	}
	if found["log.site"] == "" {
		t.Error("event should carry the log site")
	}
}

func TestHandler_Concurrent(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := newRecorder()
	logger := slog.New(NewHandler(rec))

	const workers, perWorker = 8, 250
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				logger.Info("hot", Every(100))
			}
		}()
	}
	wg.Wait()

	got := rec.all()
	// 2000 calls with every(100): 20 emissions when serialized; racing
	// checks may only emit more, never fewer.
	if len(got) < 20 {
		t.Errorf("emitted %d records, want at least 20", len(got))
	}
	var total int64
	for _, r := range got {
		total += attrsOf(r)[KeySkipped].Int64()
	}
	if total+int64(len(got)) > workers*perWorker {
		t.Errorf("emitted %d + skipped %d exceeds %d calls", len(got), total, workers*perWorker)
	}
}
