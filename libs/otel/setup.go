package otelx

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// Config is filled by the service from its own settings.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string // deployment.environment, e.g. "staging"
	ClinicTimezone string // recorded on every span's resource
	OTLPEndpoint   string // host:port, e.g. jaeger:4317
	SampleRatio    float64
}

// Sampler honours the caller's decision and samples new roots at SampleRatio.
func (c Config) Sampler() sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case c.SampleRatio >= 1:
		root = sdktrace.AlwaysSample()
	case c.SampleRatio <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(c.SampleRatio)
	}
	return sdktrace.ParentBased(root)
}

// Attributes describes the service on the trace resource. Empty values are left out.
func (c Config) Attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(c.ServiceName)}
	if c.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(c.ServiceVersion))
	}
	if c.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(c.Environment))
	}
	if c.ClinicTimezone != "" {
		attrs = append(attrs, attribute.String("clinic.timezone", c.ClinicTimezone))
	}
	return attrs
}

// Setup configures a global tracer provider + propagators.
// Call the returned shutdown func during graceful shutdown.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithTimeout(3*time.Second),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(cfg.Attributes()...))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(cfg.Sampler()),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
