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

// Package txn manages transactions on a single pinned session. Nested
// transactions are flattened onto one physical transaction: only the
// outermost Begin and Commit touch the database, and a rollback at any depth
// aborts the whole tree. Savepoint-based partial rollback is deliberately not
// provided.
package txn

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	"github.com/stratumdb/stratum/go/dberrors"
	"github.com/stratumdb/stratum/go/events"
)

// Session is the pinned connection transactional statements run on. BEGIN,
// COMMIT and ROLLBACK are issued as plain statements so everything else
// executed on the same session between them joins the transaction.
type Session interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Manager tracks transaction nesting for one session.
type Manager struct {
	sess       Session
	pool       string
	logger     *slog.Logger
	dispatcher *events.Dispatcher

	mu    sync.Mutex
	depth int
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithDispatcher wires transaction lifecycle events.
func WithDispatcher(d *events.Dispatcher) Option {
	return func(m *Manager) { m.dispatcher = d }
}

// WithPoolName labels events and logs with the owning pool.
func WithPoolName(pool string) Option {
	return func(m *Manager) { m.pool = pool }
}

// NewManager returns a Manager for the given session with depth zero.
func NewManager(sess Session, opts ...Option) *Manager {
	m := &Manager{sess: sess, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin starts a transaction or deepens an existing one. The physical BEGIN
// is issued only on the transition from depth zero; deeper calls are counted
// and otherwise free. If the physical BEGIN fails, the depth stays at zero.
func (m *Manager) Begin(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.depth == 0 {
		if _, err := m.sess.ExecContext(ctx, "BEGIN"); err != nil {
			return &dberrors.TxError{Op: "begin", Depth: 0, Err: err}
		}
		m.dispatcher.Dispatch(ctx, events.NewTransactionBegun(ctx, m.pool))
		m.logger.Debug("transaction begun", "pool", m.pool)
	}
	m.depth++
	return nil
}

// Commit closes one nesting level. The physical COMMIT is issued only when
// the outermost level commits. Committing with no transaction in progress is
// an error.
func (m *Manager) Commit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.depth == 0:
		return &dberrors.TxError{Op: "commit", Depth: 0, Err: dberrors.ErrNoTransaction}
	case m.depth == 1:
		if _, err := m.sess.ExecContext(ctx, "COMMIT"); err != nil {
			// A failed COMMIT leaves no transaction to salvage: the server
			// has already aborted it. Reset so the session is reusable.
			m.depth = 0
			return &dberrors.TxError{Op: "commit", Depth: 1, Err: err}
		}
		m.depth = 0
		m.dispatcher.Dispatch(ctx, events.NewTransactionCommitted(ctx, m.pool))
		m.logger.Debug("transaction committed", "pool", m.pool)
	default:
		m.depth--
	}
	return nil
}

// Rollback aborts the entire transaction tree from any nesting level: one
// physical ROLLBACK, depth reset to zero. There is no partial rollback of an
// inner level. Rolling back with no transaction in progress is an error.
func (m *Manager) Rollback(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.depth == 0 {
		return &dberrors.TxError{Op: "rollback", Depth: 0, Err: dberrors.ErrNoTransaction}
	}
	depth := m.depth
	m.depth = 0
	if _, err := m.sess.ExecContext(ctx, "ROLLBACK"); err != nil {
		return &dberrors.TxError{Op: "rollback", Depth: depth, Err: err}
	}
	m.dispatcher.Dispatch(ctx, events.NewTransactionRolledBack(ctx, m.pool))
	m.logger.Debug("transaction rolled back", "pool", m.pool, "from_depth", depth)
	return nil
}

// Depth returns the current nesting level. Zero means no transaction.
func (m *Manager) Depth() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.depth
}

// Run executes fn inside a transaction. On error the transaction rolls back
// and fn's error is returned unchanged; a rollback failure is logged, never
// substituted for the original error. On success the transaction commits and
// a commit failure is returned. A panic in fn rolls back and re-panics.
func (m *Manager) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := m.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			if rbErr := m.Rollback(ctx); rbErr != nil {
				m.logger.Error("rollback after panic failed", "pool", m.pool, "error", rbErr)
			}
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		if rbErr := m.Rollback(ctx); rbErr != nil {
			m.logger.Error("rollback after failure also failed",
				"pool", m.pool, "rollback_error", rbErr, "cause", err)
		}
		return err
	}
	return m.Commit(ctx)
}

// RunValue is Run for callbacks producing a value.
func RunValue[T any](ctx context.Context, m *Manager, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := m.Run(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
