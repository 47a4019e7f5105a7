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

package connpool

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys and state values follow the OTel database client semantic
// conventions for connection pools.
const (
	metricConnectionCount = "db.client.connection.count"
	metricAcquisitions    = "db.client.connection.acquisitions"

	attrKeyPoolName = "db.client.connection.pool.name"
	attrKeyState    = "db.client.connection.state"

	stateIdle = "idle"
	stateUsed = "used"
)

// Metrics records pool activity on OTel instruments. All methods are no-ops
// on a nil receiver so pools can run unmetered.
type Metrics struct {
	pool         string
	count        metric.Int64UpDownCounter
	acquisitions metric.Int64Counter
}

// NewMetrics creates the pool instruments on the given meter.
func NewMetrics(m metric.Meter, pool string) (*Metrics, error) {
	count, err := m.Int64UpDownCounter(
		metricConnectionCount,
		metric.WithDescription("The number of connections that are currently in state described by the state attribute."),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, err
	}
	acq, err := m.Int64Counter(
		metricAcquisitions,
		metric.WithDescription("The cumulative number of successful connection acquisitions."),
		metric.WithUnit("{acquisition}"),
	)
	if err != nil {
		return nil, err
	}
	return &Metrics{pool: pool, count: count, acquisitions: acq}, nil
}

// ConnUsed adjusts the count of borrowed connections.
func (m *Metrics) ConnUsed(ctx context.Context, delta int64) {
	m.add(ctx, stateUsed, delta)
}

// ConnIdle adjusts the count of idle connections.
func (m *Metrics) ConnIdle(ctx context.Context, delta int64) {
	m.add(ctx, stateIdle, delta)
}

// Acquired records one successful acquisition.
func (m *Metrics) Acquired(ctx context.Context) {
	if m == nil {
		return
	}
	m.acquisitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrKeyPoolName, m.pool),
	))
}

func (m *Metrics) add(ctx context.Context, state string, delta int64) {
	if m == nil {
		return
	}
	m.count.Add(ctx, delta, metric.WithAttributes(
		attribute.String(attrKeyPoolName, m.pool),
		attribute.String(attrKeyState, state),
	))
}
