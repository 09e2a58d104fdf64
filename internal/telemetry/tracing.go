package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

var ErrUnknownExporter = errors.New("unknown trace exporter")

type Options struct {
	Exporter    string
	ServiceName string

	// Writer receives stdout exporter output; nil means os.Stdout.
	Writer io.Writer
}

// ShutdownFunc flushes pending spans and releases the exporter.
type ShutdownFunc func(context.Context) error

// SetupTracing installs a global TracerProvider and W3C trace-context
// propagator. With ExporterNone the global no-op provider is left in place.
func SetupTracing(ctx context.Context, opts Options) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	var (
		exp sdktrace.SpanExporter
		err error
	)
	switch opts.Exporter {
	case ExporterNone, "":
		return func(context.Context) error { return nil }, nil
	case ExporterStdout:
		w := opts.Writer
		if w == nil {
			w = os.Stdout
		}
		exp, err = stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	case ExporterOTLP:
		// endpoint and headers come from OTEL_EXPORTER_OTLP_* env vars
		exp, err = otlptracehttp.New(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, opts.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", opts.Exporter, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(newResource(opts.ServiceName)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

func newResource(serviceName string) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
	)
}
