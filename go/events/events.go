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

package events

import (
	"context"
	"slices"
	"time"

	"github.com/stratumdb/stratum/go/sqltypes"
)

// Event names dispatched by this module.
const (
	NameConnectionOpened      = "connection.opened"
	NameConnectionClosed      = "connection.closed"
	NamePoolSaturated         = "pool.saturated"
	NameQueryExecuted         = "query.executed"
	NameTransactionBegun      = "transaction.begun"
	NameTransactionCommitted  = "transaction.committed"
	NameTransactionRolledBack = "transaction.rolledback"
)

// ConnectionOpened records that a pool spawned a new physical connection.
type ConnectionOpened struct {
	meta
	Pool   string
	Driver string
}

func NewConnectionOpened(ctx context.Context, pool, driver string) *ConnectionOpened {
	return &ConnectionOpened{meta: newMeta(ctx, NameConnectionOpened), Pool: pool, Driver: driver}
}

func (e *ConnectionOpened) Payload() map[string]any {
	p := e.basePayload()
	p["pool"] = e.Pool
	p["driver"] = e.Driver
	return p
}

// ConnectionClosed records that a pool destroyed a physical connection,
// whether by pruning, recycling a dead connection, or shutdown.
type ConnectionClosed struct {
	meta
	Pool   string
	Driver string
}

func NewConnectionClosed(ctx context.Context, pool, driver string) *ConnectionClosed {
	return &ConnectionClosed{meta: newMeta(ctx, NameConnectionClosed), Pool: pool, Driver: driver}
}

func (e *ConnectionClosed) Payload() map[string]any {
	p := e.basePayload()
	p["pool"] = e.Pool
	p["driver"] = e.Driver
	return p
}

// PoolSaturated records an acquisition denied because the pool was at
// capacity.
type PoolSaturated struct {
	meta
	Pool  string
	Limit int
}

func NewPoolSaturated(ctx context.Context, pool string, limit int) *PoolSaturated {
	return &PoolSaturated{meta: newMeta(ctx, NamePoolSaturated), Pool: pool, Limit: limit}
}

func (e *PoolSaturated) Payload() map[string]any {
	p := e.basePayload()
	p["pool"] = e.Pool
	p["limit"] = e.Limit
	return p
}

// QueryExecuted records a completed statement. Bindings hold redacted
// placeholders unless the producing dispatcher was built WithRawBindings.
type QueryExecuted struct {
	meta
	Pool     string
	SQL      string
	Bindings []any
	Duration time.Duration
	Rows     int64
}

// NewQueryExecuted builds the event from raw bind values. When redact is
// true, which is the default everywhere, the values are replaced by
// placeholders before they are stored.
func NewQueryExecuted(ctx context.Context, pool, sql string, bindings []any, redact bool, duration time.Duration, rows int64) *QueryExecuted {
	vals := slices.Clone(bindings)
	if redact {
		vals = sqltypes.RedactValues(bindings)
	}
	return &QueryExecuted{
		meta:     newMeta(ctx, NameQueryExecuted),
		Pool:     pool,
		SQL:      sql,
		Bindings: vals,
		Duration: duration,
		Rows:     rows,
	}
}

func (e *QueryExecuted) Payload() map[string]any {
	p := e.basePayload()
	p["pool"] = e.Pool
	p["sql"] = e.SQL
	p["bindings"] = slices.Clone(e.Bindings)
	p["duration"] = e.Duration
	p["rows"] = e.Rows
	return p
}

// TransactionBegun records a top-level physical BEGIN. Nested begins that
// only deepen the counter do not emit events.
type TransactionBegun struct {
	meta
	Pool string
}

func NewTransactionBegun(ctx context.Context, pool string) *TransactionBegun {
	return &TransactionBegun{meta: newMeta(ctx, NameTransactionBegun), Pool: pool}
}

func (e *TransactionBegun) Payload() map[string]any {
	p := e.basePayload()
	p["pool"] = e.Pool
	return p
}

// TransactionCommitted records a top-level physical COMMIT.
type TransactionCommitted struct {
	meta
	Pool string
}

func NewTransactionCommitted(ctx context.Context, pool string) *TransactionCommitted {
	return &TransactionCommitted{meta: newMeta(ctx, NameTransactionCommitted), Pool: pool}
}

func (e *TransactionCommitted) Payload() map[string]any {
	p := e.basePayload()
	p["pool"] = e.Pool
	return p
}

// TransactionRolledBack records a physical ROLLBACK. A rollback at any
// nesting level aborts the whole tree, so at most one of these is emitted per
// transaction.
type TransactionRolledBack struct {
	meta
	Pool string
}

func NewTransactionRolledBack(ctx context.Context, pool string) *TransactionRolledBack {
	return &TransactionRolledBack{meta: newMeta(ctx, NameTransactionRolledBack), Pool: pool}
}

func (e *TransactionRolledBack) Payload() map[string]any {
	p := e.basePayload()
	p["pool"] = e.Pool
	return p
}
