// Package observability exports host telemetry over OTLP: one span per
// contract invocation, RED counters, and the supply the contract minted or
// burned.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/sealcoin/seal/pkg/contract"
)

const scope = "github.com/sealcoin/seal/host"

const exportInterval = 15 * time.Second

// Config selects where telemetry goes. Telemetry is off unless Enabled.
type Config struct {
	Enabled        bool          `yaml:"enabled"`
	OTLPEndpoint   string        `yaml:"otlp_endpoint"`
	Insecure       bool          `yaml:"insecure"`
	ServiceName    string        `yaml:"service_name"`
	ServiceVersion string        `yaml:"service_version"`
	Environment    string        `yaml:"environment"`
	SampleRate     float64       `yaml:"sample_rate"`
	BatchTimeout   time.Duration `yaml:"batch_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		OTLPEndpoint:   "localhost:4317",
		ServiceName:    "seal-host",
		ServiceVersion: "1.0.0",
		Environment:    "development",
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
	}
}

// Provider owns the SDK providers and the host's instruments. A disabled
// Provider records into no-op instruments.
type Provider struct {
	tp     *sdktrace.TracerProvider
	mp     *sdkmetric.MeterProvider
	tracer trace.Tracer

	calls    metric.Int64Counter
	failures metric.Int64Counter
	inFlight metric.Int64UpDownCounter
	latency  metric.Float64Histogram
	readings metric.Int64Counter
	minted   metric.Int64Counter
	burned   metric.Int64Counter
}

// New builds a Provider from cfg and installs it as the global otel
// provider when enabled.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if !cfg.Enabled {
		p := &Provider{tracer: tracenoop.NewTracerProvider().Tracer(scope)}
		return p, p.instruments(noop.NewMeterProvider().Meter(scope))
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: resource: %w", err)
	}

	spanExp, err := otlptracegrpc.New(ctx, traceOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("observability: trace exporter: %w", err)
	}
	metricExp, err := otlpmetricgrpc.New(ctx, metricOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("observability: metric exporter: %w", err)
	}

	p := &Provider{
		tp: sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sampler(cfg.SampleRate)),
			sdktrace.WithBatcher(spanExp, sdktrace.WithBatchTimeout(cfg.BatchTimeout)),
		),
		mp: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(exportInterval))),
		),
	}
	otel.SetTracerProvider(p.tp)
	otel.SetMeterProvider(p.mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	p.tracer = p.tp.Tracer(scope, trace.WithInstrumentationVersion(cfg.ServiceVersion))
	if err := p.instruments(p.mp.Meter(scope, metric.WithInstrumentationVersion(cfg.ServiceVersion))); err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "telemetry exporting", "endpoint", cfg.OTLPEndpoint, "service", cfg.ServiceName, "sample_rate", cfg.SampleRate)
	return p, nil
}

// NewWithReader reports metrics to reader and leaves the otel globals alone.
func NewWithReader(reader sdkmetric.Reader) (*Provider, error) {
	p := &Provider{
		tp: sdktrace.NewTracerProvider(),
		mp: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}
	p.tracer = p.tp.Tracer(scope)
	return p, p.instruments(p.mp.Meter(scope))
}

func traceOptions(cfg *Config) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return opts
}

func metricOptions(cfg *Config) []otlpmetricgrpc.Option {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return opts
}

func sampler(rate float64) sdktrace.Sampler {
	if rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	if rate <= 0 {
		return sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

func (p *Provider) instruments(m metric.Meter) error {
	var errs []error
	counter := func(name, desc, unit string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		errs = append(errs, err)
		return c
	}

	p.calls = counter("seal.invocations.total", "Contract invocations processed", "{invocation}")
	p.failures = counter("seal.invocation.errors.total", "Contract invocations that aborted", "{error}")
	p.readings = counter("seal.readings.accepted", "Sea-ice extent readings accepted", "{reading}")
	p.minted = counter("seal.supply.minted", "Base units minted by supply decisions", "{base_unit}")
	p.burned = counter("seal.supply.burned", "Base units burned by supply decisions", "{base_unit}")

	var err error
	p.inFlight, err = m.Int64UpDownCounter("seal.invocations.active",
		metric.WithDescription("Invocations in flight"), metric.WithUnit("{invocation}"))
	errs = append(errs, err)
	p.latency, err = m.Float64Histogram("seal.invocation.duration",
		metric.WithDescription("Invocation duration"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("observability: instruments: %w", err)
	}
	return nil
}

// Shutdown flushes pending spans and metrics.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tp != nil {
		errs = append(errs, p.tp.Shutdown(ctx))
	}
	if p.mp != nil {
		errs = append(errs, p.mp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// TrackInvocation opens a span for function. Call the returned func once
// with the invocation's error.
func (p *Provider) TrackInvocation(ctx context.Context, function string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	attrs = append(attrs, attribute.String("seal.function", function))
	set := metric.WithAttributes(attrs...)
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "seal.invoke/"+function, trace.WithAttributes(attrs...))
	p.calls.Add(ctx, 1, set)
	p.inFlight.Add(ctx, 1, set)

	return ctx, func(err error) {
		defer span.End()
		p.inFlight.Add(ctx, -1, set)
		p.latency.Record(ctx, time.Since(start).Seconds(), set)
		if err == nil {
			return
		}
		kind := string(contract.KindOf(err))
		span.RecordError(err)
		span.SetAttributes(attribute.String("seal.error_kind", kind))
		p.failures.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("seal.error_kind", kind))...))
	}
}

// RecordSupply counts an accepted reading and the supply it moved.
func (p *Provider) RecordSupply(ctx context.Context, d contract.SupplyDecision) {
	p.readings.Add(ctx, 1)
	switch d.Action {
	case contract.ActionMint:
		p.minted.Add(ctx, d.Amount())
	case contract.ActionBurn:
		p.burned.Add(ctx, d.Amount())
	}
}
