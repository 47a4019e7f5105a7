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

// Package events provides the synchronous telemetry event layer: immutable
// event records with correlation IDs, and a dispatcher that isolates listener
// failures from each other and from the caller.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is an immutable record of something the database layer did.
type Event interface {
	// Name identifies the event type, e.g. "query.executed".
	Name() string
	// CorrelationID ties together events emitted while serving one logical
	// operation.
	CorrelationID() string
	// OccurredAt is the creation time of the event.
	OccurredAt() time.Time
	// Payload returns a fresh map describing the event. Mutating the returned
	// map has no effect on the event.
	Payload() map[string]any
}

type correlationKey struct{}

// WithCorrelationID returns a context carrying a correlation ID, reusing the
// one already present if any, and the ID itself.
func WithCorrelationID(ctx context.Context) (context.Context, string) {
	if id := CorrelationIDFrom(ctx); id != "" {
		return ctx, id
	}
	id := uuid.NewString()
	return context.WithValue(ctx, correlationKey{}, id), id
}

// CorrelationIDFrom returns the correlation ID carried by ctx, or "".
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// meta carries the fields shared by all events. Constructors stamp it once;
// it is never modified afterwards.
type meta struct {
	name          string
	correlationID string
	occurredAt    time.Time
}

func newMeta(ctx context.Context, name string) meta {
	id := CorrelationIDFrom(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	return meta{name: name, correlationID: id, occurredAt: time.Now()}
}

func (m meta) Name() string          { return m.name }
func (m meta) CorrelationID() string { return m.correlationID }
func (m meta) OccurredAt() time.Time { return m.occurredAt }

// basePayload seeds a payload map with the shared fields.
func (m meta) basePayload() map[string]any {
	return map[string]any{
		"event":          m.name,
		"correlation_id": m.correlationID,
		"occurred_at":    m.occurredAt,
	}
}
