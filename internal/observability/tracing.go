package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer, matching the teacher's Tracer
// shape (TraceConfig + NewTracer + Start + span-attribute helpers).
// Unlike the teacher, which exports over OTLP/gRPC, agentkit exports
// via stdouttrace — the service has no collector dependency in scope,
// so stdout (still a real OpenTelemetry exporter, not a stub) keeps the
// tracing surface real without requiring a gRPC endpoint to be running.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// TraceConfig configures NewTracer.
type TraceConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRate   float64
	Enabled        bool
}

// NewTracer builds a Tracer. If config.Enabled is false, a no-op tracer
// bound to the global otel.Tracer is returned and the shutdown func is
// a no-op.
func NewTracer(config TraceConfig) (*Tracer, func(context.Context) error) {
	if !config.Enabled {
		return &Tracer{tracer: otel.Tracer(config.ServiceName)}, func(context.Context) error { return nil }
	}

	if config.SamplingRate == 0 {
		config.SamplingRate = 1.0
	}
	if config.ServiceName == "" {
		config.ServiceName = "agentkit"
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return &Tracer{tracer: otel.Tracer(config.ServiceName)}, func(context.Context) error { return nil }
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	}
	if config.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(config.Environment))
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(attrs...))
	if err != nil {
		res = resource.Default()
	}

	var sampler sdktrace.Sampler
	switch {
	case config.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case config.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)

	return &Tracer{provider: provider, tracer: provider.Tracer(config.ServiceName)}, provider.Shutdown
}

// Start creates a span and returns the updated context.
func (t *Tracer) Start(ctx context.Context, name string, kind trace.SpanKind) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithSpanKind(kind))
}

// RecordError records err on span and marks it failed, if err is non-nil.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceTurn starts a span covering one session turn.
func (t *Tracer) TraceTurn(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	ctx, span := t.Start(ctx, "session.turn", trace.SpanKindInternal)
	span.SetAttributes(attribute.String("session.id", sessionID))
	return ctx, span
}

// TraceToolExecution starts a span covering one tool invocation.
func (t *Tracer) TraceToolExecution(ctx context.Context, toolName string) (context.Context, trace.Span) {
	ctx, span := t.Start(ctx, fmt.Sprintf("tool.%s", toolName), trace.SpanKindInternal)
	span.SetAttributes(attribute.String("tool.name", toolName))
	return ctx, span
}

// TraceHookDispatch starts a span covering one hook-kind dispatch.
func (t *Tracer) TraceHookDispatch(ctx context.Context, kind string) (context.Context, trace.Span) {
	ctx, span := t.Start(ctx, fmt.Sprintf("hook.%s", kind), trace.SpanKindInternal)
	span.SetAttributes(attribute.String("hook.kind", kind))
	return ctx, span
}

// TraceDatabaseQuery starts a span covering one store operation.
func (t *Tracer) TraceDatabaseQuery(ctx context.Context, operation, table string) (context.Context, trace.Span) {
	ctx, span := t.Start(ctx, fmt.Sprintf("db.%s", operation), trace.SpanKindClient)
	span.SetAttributes(
		attribute.String("db.operation", operation),
		attribute.String("db.table", table),
	)
	return ctx, span
}
