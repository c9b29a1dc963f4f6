// Package telemetry provides OpenTelemetry tracing and Prometheus metrics for the API client.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/erp/appinv/internal/infrastructure/config"
)

// TracerName is the instrumentation name of every span started here
const TracerName = "github.com/erp/appinv"

// Tracing owns the span exporter of one process
type Tracing struct {
	mu       sync.Mutex
	provider *sdktrace.TracerProvider
	logger   *zap.Logger
}

// SetupTracing installs the W3C propagators and, when cfg.TracingEnabled,
// an OTLP/gRPC exporter as the global tracer provider. Spans started while
// tracing is disabled go to the otel no-op provider.
func SetupTracing(ctx context.Context, cfg config.TelemetryConfig, serviceName string, logger *zap.Logger) (*Tracing, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t := &Tracing{logger: logger}
	if !cfg.TracingEnabled {
		return t, nil
	}
	if serviceName == "" {
		serviceName = cfg.ServiceName
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRatio))),
	)
	otel.SetTracerProvider(t.provider)

	logger.Info("Tracing enabled",
		zap.String("service", serviceName),
		zap.String("collector", cfg.CollectorEndpoint),
		zap.Float64("sampling_ratio", cfg.SamplingRatio),
	)
	return t, nil
}

// Enabled reports whether spans are exported
func (t *Tracing) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.provider != nil
}

// Shutdown flushes pending spans. Calling it twice, or with tracing disabled, is a no-op.
func (t *Tracing) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	provider := t.provider
	t.provider = nil
	t.mu.Unlock()

	if provider == nil {
		return nil
	}
	if err := provider.Shutdown(ctx); err != nil {
		t.logger.Error("Failed to flush spans", zap.Error(err))
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	return nil
}

// StartSpan starts an internal span. The caller ends it with Finish.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartRequestSpan starts the client span of an outgoing API call, named "HTTP <METHOD>"
func StartRequestSpan(ctx context.Context, method, url string) (context.Context, trace.Span) {
	return otel.Tracer(TracerName).Start(ctx, "HTTP "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", url),
		),
	)
}

// InjectHeaders writes the trace context of ctx into h
func InjectHeaders(ctx context.Context, h http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
}

// SetStatusCode records the HTTP status of a response on span
func SetStatusCode(span trace.Span, status int) {
	span.SetAttributes(attribute.Int("http.response.status_code", status))
}

// Finish sets the span status from err and ends it. A canceled context is
// not an error: the caller abandoned the request.
func Finish(span trace.Span, err error) {
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, context.Canceled):
		span.SetAttributes(attribute.Bool("canceled", true))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
