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

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitDisabledIsInert(t *testing.T) {
	p, err := Init(t.Context(), Config{Enabled: false})
	require.NoError(t, err)

	assert.NotNil(t, p.TracerProvider())
	assert.NotNil(t, p.MeterProvider())
	assert.NoError(t, p.Shutdown(t.Context()))

	var nilProviders *Providers
	assert.NoError(t, nilProviders.Shutdown(t.Context()))
	assert.NotNil(t, nilProviders.TracerProvider())
}

func TestInitExportsSpansAndMetrics(t *testing.T) {
	ctx := t.Context()
	spans := tracetest.NewInMemoryExporter()
	reader := sdkmetric.NewManualReader()

	p, err := Init(ctx, Config{Enabled: true, ServiceName: "stratum-test"},
		WithSpanExporter(spans), WithMetricReader(reader))
	require.NoError(t, err)
	// t.Context() is canceled before cleanups run; shut down with a live one.
	t.Cleanup(func() { assert.NoError(t, p.Shutdown(context.Background())) })

	_, span := p.TracerProvider().Tracer("test").Start(ctx, "checkout")
	span.End()

	stubs := spans.GetSpans()
	require.Len(t, stubs, 1)
	assert.Equal(t, "checkout", stubs[0].Name)
	assert.Contains(t, stubs[0].Resource.Attributes(),
		attribute.String("service.name", "stratum-test"))

	counter, err := p.Meter().Int64Counter("test.acquisitions")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)

	sum, ok := rm.ScopeMetrics[0].Metrics[0].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}

func TestInitServiceNameFromEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "env-service")

	spans := tracetest.NewInMemoryExporter()
	p, err := Init(t.Context(), Config{Enabled: true, ServiceName: "ignored"},
		WithSpanExporter(spans), WithMetricReader(sdkmetric.NewManualReader()))
	require.NoError(t, err)
	// t.Context() is canceled before cleanups run; shut down with a live one.
	t.Cleanup(func() { assert.NoError(t, p.Shutdown(context.Background())) })

	_, span := p.TracerProvider().Tracer("test").Start(t.Context(), "noop")
	span.End()

	stubs := spans.GetSpans()
	require.Len(t, stubs, 1)
	assert.Contains(t, stubs[0].Resource.Attributes(),
		attribute.String("service.name", "env-service"))
}

func TestInitDefaultsExportersToNone(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")

	p, err := Init(t.Context(), Config{Enabled: true})
	require.NoError(t, err)

	// Nothing is exported, but the providers are real and shut down cleanly.
	assert.NotNil(t, p.TracerProvider())
	assert.NotNil(t, p.MeterProvider())
	assert.NoError(t, p.Shutdown(t.Context()))
}
