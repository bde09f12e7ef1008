// Package telemetry sets up OpenTelemetry tracing for flowcheck runs.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ServiceName identifies flowcheck spans.
const ServiceName = "flowcheck"

// Options configures the tracer provider
type Options struct {
	// Version is recorded as service.version.
	Version string

	// Output receives exported spans as JSON. Nil writes to stderr.
	Output io.Writer

	// Pretty indents exported spans.
	Pretty bool

	// Global registers the provider with otel.SetTracerProvider.
	Global bool
}

// TracerProvider wraps the SDK provider and whatever it writes to.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	closer   io.Closer
}

// NewTracerProvider creates a provider exporting spans with the stdout exporter.
func NewTracerProvider(opts Options) (*TracerProvider, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	exportOpts := []stdouttrace.Option{stdouttrace.WithWriter(out)}
	if opts.Pretty {
		exportOpts = append(exportOpts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(exportOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", version),
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	if opts.Global {
		otel.SetTracerProvider(provider)
	}

	return &TracerProvider{provider: provider}, nil
}

// NewFileTracerProvider exports spans to path, creating or truncating it.
func NewFileTracerProvider(path string, opts Options) (*TracerProvider, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace output: %w", err)
	}
	opts.Output = f
	tp, err := NewTracerProvider(opts)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	tp.closer = f
	return tp, nil
}

// Tracer returns a named tracer from the provider.
func (tp *TracerProvider) Tracer(name string) trace.Tracer {
	return tp.provider.Tracer(name)
}

// Shutdown flushes pending spans and closes the output file, if any.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	err := tp.provider.Shutdown(ctx)
	if tp.closer != nil {
		err = errors.Join(err, tp.closer.Close())
	}
	return err
}

// Disabled returns a tracer that records nothing.
func Disabled() trace.Tracer {
	return noop.NewTracerProvider().Tracer(ServiceName)
}
