package ratelog

import (
	"context"
	"io"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sentinel-Gate/ratelog/internal/adapter/outbound/memory"
	"github.com/Sentinel-Gate/ratelog/internal/domain/logsite"
	"github.com/Sentinel-Gate/ratelog/internal/domain/ratelimit"
	"github.com/Sentinel-Gate/ratelog/internal/service"
)

// SuppressedEvent is the name of the span event added for every suppressed
// record logged with a context carrying a recording span.
const SuppressedEvent = "log.suppressed"

// Handler is a slog.Handler applying rate limit policies per call site.
type Handler struct {
	next    slog.Handler
	limiter *Limiter

	// policies and qualifiers captured by WithAttrs
	base       policies
	qualifiers []qualifier
}

type policies struct {
	every          ratelimit.Every
	atMostEvery    ratelimit.AtMostEvery
	onAverageEvery ratelimit.OnAverageEvery
	withinRate     ratelimit.WithinRate
}

// Option configures a Handler.
type Option func(*handlerOptions)

type handlerOptions struct {
	limiter *Limiter
	clock   Clock
	stats   *Stats
}

// WithLimiter shares limiter state with other handlers. Handlers created
// without it own a private limiter.
func WithLimiter(l *Limiter) Option {
	return func(o *handlerOptions) { o.limiter = l }
}

// WithClock sets the clock of the private limiter. Ignored with WithLimiter.
func WithClock(c Clock) Option {
	return func(o *handlerOptions) { o.clock = c }
}

// WithStats records decisions of the private limiter in stats. Ignored with
// WithLimiter.
func WithStats(stats *Stats) Option {
	return func(o *handlerOptions) { o.stats = stats }
}

// NewHandler returns a Handler forwarding emitted records to next.
func NewHandler(next slog.Handler, opts ...Option) *Handler {
	var o handlerOptions
	for _, opt := range opts {
		opt(&o)
	}
	l := o.limiter
	if l == nil {
		var lopts []service.LimiterOption
		if o.clock != nil {
			lopts = append(lopts, service.WithClock(o.clock))
		}
		if o.stats != nil {
			lopts = append(lopts, service.WithStats(o.stats))
		}
		// Limiter diagnostics bypass rate limiting.
		l = service.NewLimiterService(memory.NewStores(), slog.New(next), lopts...)
	}
	return &Handler{next: next, limiter: l}
}

// NewLimiter returns a limiter backed by in-memory site maps, to be shared
// between handlers with WithLimiter.
func NewLimiter(logger *slog.Logger, opts ...service.LimiterOption) *Limiter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return service.NewLimiterService(memory.NewStores(), logger, opts...)
}

// Limiter returns the limiter used by h.
func (h *Handler) Limiter() *Limiter { return h.limiter }

// Enabled implements slog.Handler.
func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler. Suppressed records are dropped silently.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	p := h.base
	quals := h.qualifiers
	var kept []slog.Attr
	captured := false
	r.Attrs(func(a slog.Attr) bool {
		if q, ok := p.capture(a); ok {
			if q != nil {
				quals = append(slices.Clip(quals), *q)
			}
			captured = true
			return true
		}
		kept = append(kept, a)
		return true
	})

	st := service.Statement{
		Every:          p.every,
		AtMostEvery:    p.atMostEvery,
		OnAverageEvery: p.onAverageEvery,
		WithinRate:     p.withinRate,
	}
	if r.PC != 0 {
		st.Site = logsite.PC(r.PC)
	}
	for _, q := range quals {
		switch {
		case q.specializer != nil:
			st.Qualifiers = append(st.Qualifiers, q.specializer)
		case q.scopeType != nil:
			if s := q.scopeType.Current(ctx); s != nil {
				st.Qualifiers = append(st.Qualifiers, s)
			}
		}
	}

	d := h.limiter.Decide(st)
	if !d.Emit {
		recordSuppressed(ctx, r, d.Key)
		return nil
	}

	if captured {
		out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
		out.AddAttrs(kept...)
		r = out
	} else if d.Skipped > 0 {
		r = r.Clone()
	}
	if d.Skipped > 0 {
		r.AddAttrs(slog.Int(KeySkipped, d.Skipped))
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs implements slog.Handler. Policy attributes apply to every record
// logged through the returned handler; other attributes are passed on.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	var rest []slog.Attr
	for _, a := range attrs {
		if q, ok := h2.base.capture(a); ok {
			if q != nil {
				h2.qualifiers = append(slices.Clip(h2.qualifiers), *q)
			}
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) > 0 {
		h2.next = h.next.WithAttrs(rest)
	}
	return &h2
}

// WithGroup implements slog.Handler.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.next = h.next.WithGroup(name)
	return &h2
}

// capture records a policy attribute in p. A qualifier attribute is
// returned rather than stored.
func (p *policies) capture(a slog.Attr) (*qualifier, bool) {
	if a.Value.Kind() != slog.KindAny {
		return nil, false
	}
	switch v := a.Value.Any().(type) {
	case ratelimit.Every:
		p.every = v
	case ratelimit.AtMostEvery:
		p.atMostEvery = v
	case ratelimit.OnAverageEvery:
		p.onAverageEvery = v
	case ratelimit.WithinRate:
		p.withinRate = v
	case qualifier:
		return &v, true
	default:
		return nil, false
	}
	return nil, true
}

func recordSuppressed(ctx context.Context, r slog.Record, key logsite.Key) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("log.level", r.Level.String()),
		attribute.String("log.message", r.Message),
	}
	if key != nil {
		attrs = append(attrs, attribute.String("log.site", key.String()))
	}
	span.AddEvent(SuppressedEvent, trace.WithAttributes(attrs...))
}

// Compile-time interface verification.
var _ slog.Handler = (*Handler)(nil)
