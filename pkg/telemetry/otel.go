package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
)

// Options selects what the providers are labelled with and where spans go
type Options struct {
	ServiceName    string
	ServiceVersion string
	// Output receives spans and bridged log records as JSON lines. Nil discards them;
	// the client owns stdout for its shell.
	Output io.Writer
}

// Telemetry owns the installed providers
type Telemetry struct {
	tracer *sdktrace.TracerProvider
	meter  *sdkmetric.MeterProvider
	logs   *sdklog.LoggerProvider
}

// Setup installs global tracer, meter and logger providers.
// Metrics are exported through the default Prometheus registry.
func Setup(opts Options) (*Telemetry, error) {
	out := opts.Output
	if out == nil {
		out = io.Discard
	}

	attrs := []resource.Option{resource.WithAttributes(semconv.ServiceNameKey.String(opts.ServiceName))}
	if opts.ServiceVersion != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersionKey.String(opts.ServiceVersion)))
	}
	res, err := resource.New(context.Background(), attrs...)
	if err != nil {
		return nil, fmt.Errorf("resource: %w", err)
	}

	spans, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return nil, fmt.Errorf("span exporter: %w", err)
	}
	records, err := stdoutlog.New(stdoutlog.WithWriter(out))
	if err != nil {
		return nil, fmt.Errorf("log exporter: %w", err)
	}
	reader, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("prometheus reader: %w", err)
	}

	t := &Telemetry{
		tracer: sdktrace.NewTracerProvider(sdktrace.WithBatcher(spans), sdktrace.WithResource(res)),
		meter:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader), sdkmetric.WithResource(res)),
		logs: sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(records)),
			sdklog.WithResource(res),
		),
	}
	otel.SetTracerProvider(t.tracer)
	otel.SetMeterProvider(t.meter)
	global.SetLoggerProvider(t.logs)

	if err := GetGlobalMetrics().InitMetrics(t.meter.Meter(opts.ServiceName)); err != nil {
		return nil, multierr.Append(fmt.Errorf("session metrics: %w", err), t.Shutdown(context.Background()))
	}
	return t, nil
}

// Shutdown flushes pending spans and records, then stops every provider
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return multierr.Combine(
		wrap("tracer", t.tracer.Shutdown(ctx)),
		wrap("meter", t.meter.Shutdown(ctx)),
		wrap("logger", t.logs.Shutdown(ctx)),
	)
}

func wrap(provider string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s provider shutdown: %w", provider, err)
}

// GetMeter returns a meter from the global provider
func GetMeter(name string) metric.Meter {
	return otel.GetMeterProvider().Meter(name)
}

// GetTracer returns a tracer from the global provider
func GetTracer(name string) trace.Tracer {
	return otel.GetTracerProvider().Tracer(name)
}
