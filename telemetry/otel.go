package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/studioloom/aicore/core"
)

// StdoutEndpoint routes traces to the console exporter instead of a
// collector. Intended for local development.
const StdoutEndpoint = "stdout"

// OTelProvider implements core.Telemetry with OpenTelemetry.
type OTelProvider struct {
	tracer        trace.Tracer
	instruments   *MetricInstruments
	traceProvider *sdktrace.TracerProvider
	kinds         map[string]string
}

// NewOTelProvider creates a provider exporting to the given OTLP endpoint,
// or to stdout when the endpoint is StdoutEndpoint.
func NewOTelProvider(serviceName, endpoint string) (*OTelProvider, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := newTraceExporter(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &OTelProvider{
		tracer:        tp.Tracer("aicore-telemetry"),
		instruments:   NewMetricInstruments("aicore-telemetry"),
		traceProvider: tp,
		kinds:         make(map[string]string),
	}, nil
}

func newTraceExporter(endpoint string) (sdktrace.SpanExporter, error) {
	if endpoint == StdoutEndpoint {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	return otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
}

// declareKind records an instrument type for a metric name. Undeclared
// metrics default to counters.
func (o *OTelProvider) declareKind(name, kind string) {
	o.kinds[name] = kind
}

// StartSpan starts a traced span.
func (o *OTelProvider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := o.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric records a metric through the declared instrument type.
func (o *OTelProvider) RecordMetric(name string, value float64, labels map[string]string) {
	_ = o.recordMetric(name, value, labels)
}

// recordMetric is RecordMetric with the instrument error surfaced, so the
// registry can count and log emission failures.
func (o *OTelProvider) recordMetric(name string, value float64, labels map[string]string) error {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	ctx := context.Background()

	switch o.kinds[name] {
	case "histogram":
		return o.instruments.RecordHistogram(ctx, name, value, metric.WithAttributes(attrs...))
	case "gauge":
		return o.instruments.RecordGauge(ctx, name, value, metric.WithAttributes(attrs...))
	default:
		return o.instruments.RecordCounter(ctx, name, value, metric.WithAttributes(attrs...))
	}
}

// Shutdown flushes and stops the trace provider.
func (o *OTelProvider) Shutdown(ctx context.Context) error {
	return o.traceProvider.Shutdown(ctx)
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) { s.span.RecordError(err) }
