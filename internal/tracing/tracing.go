package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/contractpilot/orchestrator/internal/config"
)

var tracer oteltrace.Tracer

// Initialize sets up OTLP tracing when enabled. A tracer handle is always
// installed so Start never panics with tracing disabled.
func Initialize(cfg config.TracingConfig, logger *zap.Logger) (func(context.Context) error, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "contractpilot-orchestrator"
	}
	tracer = otel.Tracer(name)

	if !cfg.Enabled {
		logger.Info("Tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	endpoint := cfg.OTLPEndpoint
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	exporter, err := otlptracegrpc.New(
		context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(name),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer(name)

	logger.Info("Tracing initialized", zap.String("endpoint", endpoint))
	return tp.Shutdown, nil
}

// Start creates a new span with the given name.
func Start(ctx context.Context, spanName string) (context.Context, oteltrace.Span) {
	if tracer == nil {
		tracer = otel.Tracer("contractpilot-orchestrator")
	}
	return tracer.Start(ctx, spanName)
}

// StartTaskSpan creates a span for a single task attempt.
func StartTaskSpan(ctx context.Context, executionID, taskID, role string) (context.Context, oteltrace.Span) {
	ctx, span := Start(ctx, "workflow.task")
	span.SetAttributes(
		attribute.String("execution.id", executionID),
		attribute.String("task.id", taskID),
		attribute.String("agent.role", role),
	)
	return ctx, span
}

// StartModelSpan creates a span for a model invocation.
func StartModelSpan(ctx context.Context, modelID, provider string) (context.Context, oteltrace.Span) {
	ctx, span := Start(ctx, "router.generate")
	span.SetAttributes(
		attribute.String("model.id", modelID),
		attribute.String("model.provider", provider),
	)
	return ctx, span
}
