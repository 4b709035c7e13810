package observability

import (
	"context"
	"time"

	"captcha/internal/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedStore wraps a session.Store with spans, an operation latency
// histogram and an error counter.
type InstrumentedStore struct {
	inner    session.Store
	backend  string
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var _ session.Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps inner; backend labels every span and metric.
func NewInstrumentedStore(inner session.Store, backend string) (*InstrumentedStore, error) {
	meter := otel.Meter(instrumentationName + "/session")

	duration, err := meter.Float64Histogram(
		"session.operation.duration",
		metric.WithDescription("Duration of session store operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"session.operation.errors",
		metric.WithDescription("Number of session store operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStore{
		inner:    inner,
		backend:  backend,
		tracer:   otel.Tracer(instrumentationName + "/session"),
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStore) startSpan(ctx context.Context, operation, key string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("session.operation", operation),
		attribute.String("session.backend", s.backend),
	}
	if key != "" {
		attrs = append(attrs, attribute.String("session.attribute", key))
	}
	return s.tracer.Start(ctx, "session."+operation, trace.WithAttributes(attrs...))
}

func (s *InstrumentedStore) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("backend", s.backend),
	)

	s.duration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func (s *InstrumentedStore) Get(ctx context.Context, sessionID, key string) (string, bool, error) {
	ctx, span := s.startSpan(ctx, "Get", key)
	start := time.Now()
	v, ok, err := s.inner.Get(ctx, sessionID, key)
	span.SetAttributes(attribute.Bool("session.hit", ok))
	s.record(ctx, span, "Get", start, err)
	return v, ok, err
}

func (s *InstrumentedStore) Set(ctx context.Context, sessionID, key, value string) error {
	ctx, span := s.startSpan(ctx, "Set", key)
	start := time.Now()
	err := s.inner.Set(ctx, sessionID, key, value)
	s.record(ctx, span, "Set", start, err)
	return err
}

func (s *InstrumentedStore) Delete(ctx context.Context, sessionID, key string) error {
	ctx, span := s.startSpan(ctx, "Delete", key)
	start := time.Now()
	err := s.inner.Delete(ctx, sessionID, key)
	s.record(ctx, span, "Delete", start, err)
	return err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping", "")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
