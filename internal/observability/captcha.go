package observability

import (
	"context"
	"errors"
	"time"

	"captcha/internal/captcha"
	"captcha/internal/challenge"
	"captcha/internal/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedService wraps the captcha service with spans and protocol
// counters: generations, admission denials and verifications by result.
type InstrumentedService struct {
	inner         captcha.ServiceInterface
	tracer        trace.Tracer
	generated     metric.Int64Counter
	rateLimited   metric.Int64Counter
	verifications metric.Int64Counter
	duration      metric.Float64Histogram
}

var _ captcha.ServiceInterface = (*InstrumentedService)(nil)

func NewInstrumentedService(inner captcha.ServiceInterface) (*InstrumentedService, error) {
	meter := otel.Meter(instrumentationName)

	generated, err := meter.Int64Counter("captcha.generated",
		metric.WithDescription("Number of captchas issued"),
		metric.WithUnit("{captcha}"))
	if err != nil {
		return nil, err
	}
	rateLimited, err := meter.Int64Counter("captcha.rate_limited",
		metric.WithDescription("Number of generate requests denied by the token bucket"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	verifications, err := meter.Int64Counter("captcha.verifications",
		metric.WithDescription("Number of verification attempts by result"),
		metric.WithUnit("{attempt}"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("captcha.operation.duration",
		metric.WithDescription("Duration of captcha operations in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &InstrumentedService{
		inner:         inner,
		tracer:        otel.Tracer(instrumentationName),
		generated:     generated,
		rateLimited:   rateLimited,
		verifications: verifications,
		duration:      duration,
	}, nil
}

func (s *InstrumentedService) Generate(ctx context.Context, sessionID string, testMode bool) (*captcha.GenerateResult, error) {
	ctx, span := s.tracer.Start(ctx, "captcha.Generate",
		trace.WithAttributes(attribute.Bool("captcha.test_mode", testMode)))
	defer span.End()
	start := time.Now()

	res, err := s.inner.Generate(ctx, sessionID, testMode)

	outcome := "issued"
	var svcErr *captcha.ServiceError
	switch {
	case err == nil:
		s.generated.Add(ctx, 1)
		span.SetAttributes(attribute.Int("ratelimit.remaining", res.RateLimit.Remaining))
		span.SetStatus(codes.Ok, "")
	case errors.As(err, &svcErr) && svcErr.Code == models.ErrorCodeRateLimited:
		outcome = "rate_limited"
		s.rateLimited.Add(ctx, 1)
		span.SetAttributes(attribute.Bool("captcha.rate_limited", true))
	default:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	s.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("operation", "generate"),
		attribute.String("outcome", outcome),
	))
	return res, err
}

func (s *InstrumentedService) Verify(ctx context.Context, sessionID string, submitted *string, testMode bool) (*models.VerifyResponse, error) {
	ctx, span := s.tracer.Start(ctx, "captcha.Verify",
		trace.WithAttributes(attribute.Bool("captcha.test_mode", testMode)))
	defer span.End()
	start := time.Now()

	resp, err := s.inner.Verify(ctx, sessionID, submitted, testMode)

	outcome := "error"
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		outcome = "invalid"
		if resp.Valid {
			outcome = "valid"
		}
		s.verifications.Add(ctx, 1, metric.WithAttributes(attribute.String("result", outcome)))
		span.SetAttributes(attribute.Bool("captcha.valid", resp.Valid))
		span.SetStatus(codes.Ok, "")
	}

	s.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("operation", "verify"),
		attribute.String("outcome", outcome),
	))
	return resp, err
}

// InstrumentedGenerator records render latency.
type InstrumentedGenerator struct {
	inner    captcha.Generator
	tracer   trace.Tracer
	duration metric.Float64Histogram
}

var _ captcha.Generator = (*InstrumentedGenerator)(nil)

func NewInstrumentedGenerator(inner captcha.Generator) (*InstrumentedGenerator, error) {
	duration, err := otel.Meter(instrumentationName).Float64Histogram("captcha.render.duration",
		metric.WithDescription("Time to draw and encode a captcha image in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &InstrumentedGenerator{
		inner:    inner,
		tracer:   otel.Tracer(instrumentationName),
		duration: duration,
	}, nil
}

func (g *InstrumentedGenerator) Generate(ctx context.Context) (*challenge.Challenge, error) {
	ctx, span := g.tracer.Start(ctx, "captcha.Render")
	defer span.End()
	start := time.Now()

	c, err := g.inner.Generate(ctx)
	g.duration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("captcha.image_bytes", len(c.Image)))
	return c, nil
}
