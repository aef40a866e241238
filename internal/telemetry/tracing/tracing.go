// Package tracing configures the OpenTelemetry tracer and meter providers
// for xrpcd. Grounded on the teacher pack's telemetry.Init shape (resource
// construction, provider registration, a combined shutdown func), adapted
// from OTLP HTTP exporters to the stdout exporters since xrpcd's
// TelemetryConfig supports only an in-process "print spans/metrics to the
// log" mode — there is no OTLP collector endpoint in scope.
package tracing

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Shutdown flushes and stops whatever providers Init installed.
type Shutdown func(ctx context.Context) error

// noopShutdown is returned when tracing is disabled, so callers can defer
// Shutdown unconditionally.
func noopShutdown(context.Context) error { return nil }

// Init installs a TracerProvider (if tracingEnabled) and a MeterProvider
// (if metricsEnabled) using the stdout exporters, writing newline-delimited
// JSON spans/metrics to w. Passing w=nil or both flags false returns a
// no-op shutdown and leaves the global otel providers untouched.
func Init(ctx context.Context, serviceName string, tracingEnabled, metricsEnabled bool, w io.Writer) (Shutdown, error) {
	if (!tracingEnabled && !metricsEnabled) || w == nil {
		return noopShutdown, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	var shutdowns []Shutdown

	if tracingEnabled {
		traceExp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("tracing: create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExp, sdktrace.WithBatchTimeout(5*time.Second)),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		shutdowns = append(shutdowns, tp.Shutdown)
	}

	if metricsEnabled {
		metricExp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("tracing: create metric exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(15*time.Second))),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	return func(ctx context.Context) error {
		var firstErr error
		for _, fn := range shutdowns {
			if err := fn(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}, nil
}

// Tracer returns the named tracer from the global TracerProvider. Safe to
// call whether or not Init installed a real provider: otel's default
// global provider is a no-op.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
