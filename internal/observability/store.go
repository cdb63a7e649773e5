package observability

import (
	"context"
	"time"

	"gatekeeper/internal/ratelimit"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStore wraps a ratelimit.Store with a span, a latency
// histogram and an error counter per CheckAndIncrement call.
type InstrumentedStore struct {
	inner    ratelimit.Store
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
	denied   metric.Int64Counter
}

var _ ratelimit.Store = (*InstrumentedStore)(nil)

func NewInstrumentedStore(inner ratelimit.Store, opts ...InstrumentOption) (*InstrumentedStore, error) {
	cfg := newInstrumentConfig(opts)
	meter := cfg.meterProvider.Meter(instrumentationName + "/ratelimit")

	duration, err := meter.Float64Histogram(
		"ratelimit.store.duration",
		metric.WithDescription("Duration of rate limit counter operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"ratelimit.store.errors",
		metric.WithDescription("Number of failed rate limit counter operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	denied, err := meter.Int64Counter(
		"ratelimit.store.denied",
		metric.WithDescription("Number of requests over their window limit"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStore{
		inner:    inner,
		tracer:   cfg.tracerProvider.Tracer(instrumentationName + "/ratelimit"),
		duration: duration,
		errors:   errCounter,
		denied:   denied,
	}, nil
}

func (s *InstrumentedStore) CheckAndIncrement(ctx context.Context, key string, rule ratelimit.Rule) (ratelimit.Decision, error) {
	ctx, span := s.tracer.Start(ctx, "ratelimit.CheckAndIncrement",
		trace.WithAttributes(
			attribute.Int("ratelimit.max_requests", rule.MaxRequests),
			attribute.String("ratelimit.window", rule.Window.String()),
		),
	)
	defer span.End()

	start := time.Now()
	d, err := s.inner.CheckAndIncrement(ctx, key, rule)
	elapsed := time.Since(start).Seconds()

	attrs := metric.WithAttributes(attribute.String("operation", "check_and_increment"))
	s.duration.Record(ctx, elapsed, attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return d, err
	}

	span.SetAttributes(
		attribute.Bool("ratelimit.allowed", d.Allowed),
		attribute.Int("ratelimit.count", d.Count),
	)
	if !d.Allowed {
		s.denied.Add(ctx, 1)
	}
	span.SetStatus(codes.Ok, "")
	return d, nil
}

func (s *InstrumentedStore) Len() int {
	return s.inner.Len()
}

func (s *InstrumentedStore) Close() {
	s.inner.Close()
}
