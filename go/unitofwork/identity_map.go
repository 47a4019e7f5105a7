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

// Package unitofwork defers write statements and flushes them as a single
// transaction. Mutations are queued in scheduling order and either all apply
// or none do.
package unitofwork

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/stratumdb/stratum/go/dberrors"
	"github.com/stratumdb/stratum/go/sqltypes"
	"github.com/stratumdb/stratum/go/txn"
)

// Op classifies a deferred mutation.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Deferred is one queued mutation. It is immutable once scheduled.
type Deferred struct {
	Op       Op
	SQL      string
	Bindings sqltypes.Bag
}

// Execer runs a single write statement. *executor.Executor satisfies it.
type Execer interface {
	Exec(ctx context.Context, query string, bindings sqltypes.Bag) (sqltypes.Result, error)
}

// IdentityMap queues deferred mutations for a single session. The manager and
// executor must be bound to the same connection so that Flush runs every
// queued statement inside the one transaction the manager opens.
type IdentityMap struct {
	mgr    *txn.Manager
	ex     Execer
	logger *slog.Logger

	// flushMu serializes whole flushes so a batch is never executed twice;
	// mu guards only the queue, so Schedule stays non-blocking mid-flush.
	flushMu sync.Mutex
	mu      sync.Mutex
	queue   []Deferred
}

// Option configures an IdentityMap.
type Option func(*IdentityMap)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *IdentityMap) { m.logger = logger }
}

// New returns an empty IdentityMap flushing through mgr and ex.
func New(mgr *txn.Manager, ex Execer, opts ...Option) *IdentityMap {
	m := &IdentityMap{mgr: mgr, ex: ex, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Schedule appends a mutation to the queue. It never touches the database.
func (m *IdentityMap) Schedule(op Op, sql string, bindings sqltypes.Bag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, Deferred{Op: op, SQL: sql, Bindings: bindings})
}

// Len returns the number of queued mutations.
func (m *IdentityMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Pending returns a copy of the queue in scheduling order.
func (m *IdentityMap) Pending() []Deferred {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.queue)
}

// Flush executes every queued mutation in scheduling order inside one
// transaction. An empty queue is a no-op that never opens a transaction. On
// the first failure the transaction rolls back and the queue is retained, so
// the caller may retry the whole batch. On success the flushed batch is
// removed from the queue; mutations scheduled while the flush was running
// stay queued for the next one.
func (m *IdentityMap) Flush(ctx context.Context) error {
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	m.mu.Lock()
	batch := slices.Clone(m.queue)
	m.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	err := m.mgr.Run(ctx, func(ctx context.Context) error {
		for _, d := range batch {
			res, execErr := m.ex.Exec(ctx, d.SQL, d.Bindings)
			if execErr != nil {
				return &dberrors.TxError{Op: "flush", Depth: m.mgr.Depth(), Err: execErr}
			}
			if !res.Success {
				return &dberrors.TxError{
					Op:    "flush",
					Depth: m.mgr.Depth(),
					Err:   fmt.Errorf("statement reported failure: %s", d.SQL),
				}
			}
		}
		return nil
	})
	if err != nil {
		m.logger.Warn("flush rolled back, queue retained",
			"queued", m.Len(), "batch", len(batch), "error", err)
		return err
	}

	m.mu.Lock()
	m.queue = m.queue[len(batch):]
	m.mu.Unlock()
	m.logger.Debug("flush committed", "batch", len(batch))
	return nil
}
