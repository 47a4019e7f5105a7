// Copyright 2025 The Stratum Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package telemetry bootstraps the OpenTelemetry meter and tracer providers.
// Exporters are chosen through the standard OTEL_* environment variables via
// autoexport; when none are set, nothing is exported. Disabled telemetry
// yields inert providers so callers never branch.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const defaultServiceName = "stratum"

// Config switches telemetry on and names the service.
type Config struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

// Providers holds the constructed OTel providers. The zero value is inert:
// accessors fall back to the globals and Shutdown is a no-op.
type Providers struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

type options struct {
	spanExporter sdktrace.SpanExporter
	metricReader sdkmetric.Reader
}

// Option overrides parts of the bootstrap, mainly for tests.
type Option func(*options)

// WithSpanExporter bypasses autoexport and exports spans synchronously to the
// given exporter.
func WithSpanExporter(exp sdktrace.SpanExporter) Option {
	return func(o *options) { o.spanExporter = exp }
}

// WithMetricReader bypasses autoexport and collects metrics through the given
// reader.
func WithMetricReader(r sdkmetric.Reader) Option {
	return func(o *options) { o.metricReader = r }
}

// Init builds and globally registers the meter and tracer providers. With
// cfg.Enabled false it returns inert providers without touching the globals.
func Init(ctx context.Context, cfg Config, opts ...Option) (*Providers, error) {
	if !cfg.Enabled {
		return &Providers{}, nil
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	if env := os.Getenv("OTEL_SERVICE_NAME"); env != "" {
		serviceName = env
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	p := &Providers{}
	if err := p.initTracing(ctx, res, &o); err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	if err := p.initMetrics(ctx, res, &o); err != nil {
		return nil, fmt.Errorf("initializing metrics: %w", err)
	}

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return p, nil
}

func (p *Providers) initTracing(ctx context.Context, res *resource.Resource, o *options) error {
	if o.spanExporter != nil {
		// Synchronous export keeps test assertions free of flush timing.
		p.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(o.spanExporter),
			sdktrace.WithResource(res),
		)
		return nil
	}

	// Without an explicit exporter choice nothing should leave the process.
	if os.Getenv("OTEL_TRACES_EXPORTER") == "" {
		os.Setenv("OTEL_TRACES_EXPORTER", "none")
	}
	exp, err := autoexport.NewSpanExporter(ctx)
	if err != nil {
		return err
	}
	p.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	return nil
}

func (p *Providers) initMetrics(ctx context.Context, res *resource.Resource, o *options) error {
	reader := o.metricReader
	if reader == nil {
		if os.Getenv("OTEL_METRICS_EXPORTER") == "" {
			os.Setenv("OTEL_METRICS_EXPORTER", "none")
		}
		var err error
		if reader, err = autoexport.NewMetricReader(ctx); err != nil {
			return err
		}
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	return nil
}

// TracerProvider returns the constructed tracer provider, or the global one
// when telemetry is disabled.
func (p *Providers) TracerProvider() trace.TracerProvider {
	if p == nil || p.tracerProvider == nil {
		return otel.GetTracerProvider()
	}
	return p.tracerProvider
}

// MeterProvider returns the constructed meter provider, or the global one
// when telemetry is disabled.
func (p *Providers) MeterProvider() metric.MeterProvider {
	if p == nil || p.meterProvider == nil {
		return otel.GetMeterProvider()
	}
	return p.meterProvider
}

// Meter returns the module's meter.
func (p *Providers) Meter() metric.Meter {
	return p.MeterProvider().Meter("github.com/stratumdb/stratum")
}

// Shutdown flushes and stops the providers. Safe on inert providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tracerProvider != nil {
		if err := p.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down tracer provider: %w", err))
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
