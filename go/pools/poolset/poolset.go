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

// Package poolset manages the configured named pools as one unit: it dials
// each database, builds a session pool per name, and routes acquisitions by
// pool name.
package poolset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"

	"github.com/stratumdb/stratum/go/config"
	"github.com/stratumdb/stratum/go/dbconn"
	"github.com/stratumdb/stratum/go/dberrors"
	"github.com/stratumdb/stratum/go/events"
	"github.com/stratumdb/stratum/go/pools/connpool"
)

// Dialer opens the database behind one pool. Replaced in tests to avoid real
// networks.
type Dialer func(ctx context.Context, name string, cfg config.PoolConfig, logger *slog.Logger) (*dbconn.DB, error)

func defaultDialer(ctx context.Context, name string, cfg config.PoolConfig, logger *slog.Logger) (*dbconn.DB, error) {
	return dbconn.Open(ctx, name, cfg.ConnConfig(), cfg.MaxConnections, logger)
}

type entry struct {
	db   *dbconn.DB
	pool *connpool.Pool[*dbconn.Conn]
}

// Set owns one database handle and one session pool per configured name.
type Set struct {
	logger     *slog.Logger
	dispatcher *events.Dispatcher
	meter      metric.Meter
	dialer     Dialer

	pools  map[string]*entry
	closed atomic.Bool
}

// Option configures a Set.
type Option func(*Set)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Set) { s.logger = logger }
}

// WithDispatcher wires connection lifecycle events.
func WithDispatcher(d *events.Dispatcher) Option {
	return func(s *Set) { s.dispatcher = d }
}

// WithMeter enables per-pool connection metrics.
func WithMeter(m metric.Meter) Option {
	return func(s *Set) { s.meter = m }
}

// WithDialer replaces how databases are dialed.
func WithDialer(d Dialer) Option {
	return func(s *Set) { s.dialer = d }
}

// Open dials every configured pool's database and builds its session pool.
// Pools are opened in name order; the first failure closes whatever was
// already opened and is returned.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Set, error) {
	s := &Set{
		logger: slog.Default(),
		dialer: defaultDialer,
		pools:  make(map[string]*entry, len(cfg.Pools)),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, name := range slices.Sorted(maps.Keys(cfg.Pools)) {
		pc := cfg.Pools[name]

		db, err := s.dialer(ctx, name, pc, s.logger)
		if err != nil {
			s.Close()
			return nil, err
		}

		var metrics *connpool.Metrics
		if s.meter != nil {
			if metrics, err = connpool.NewMetrics(s.meter, name); err != nil {
				_ = db.Close()
				s.Close()
				return nil, fmt.Errorf("pool %q: %w", name, err)
			}
		}

		pool, err := connpool.New(connpool.Config[*dbconn.Conn]{
			Name:          name,
			Capacity:      pc.MaxConnections,
			MaxIdleTime:   pc.MaxIdleTime,
			MaxLifetime:   pc.MaxLifetime,
			PruneInterval: pc.PruneInterval,
			Connector:     s.connector(name, db),
			OnClose:       s.onClose(name, db),
			Metrics:       metrics,
			Logger:        s.logger,
		})
		if err != nil {
			_ = db.Close()
			s.Close()
			return nil, err
		}

		s.pools[name] = &entry{db: db, pool: pool}
		s.logger.Info("pool opened", "pool", name, "capacity", pc.MaxConnections)
	}
	return s, nil
}

// connector pins a fresh session from the pool's database handle.
func (s *Set) connector(name string, db *dbconn.DB) connpool.Connector[*dbconn.Conn] {
	return func(ctx context.Context) (*dbconn.Conn, error) {
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, err
		}
		s.dispatcher.Dispatch(ctx, events.NewConnectionOpened(ctx, name, db.DriverName()))
		return conn, nil
	}
}

func (s *Set) onClose(name string, db *dbconn.DB) func(*dbconn.Conn) {
	return func(*dbconn.Conn) {
		ctx := context.Background()
		s.dispatcher.Dispatch(ctx, events.NewConnectionClosed(ctx, name, db.DriverName()))
	}
}

// Names returns the configured pool names in sorted order.
func (s *Set) Names() []string {
	return slices.Sorted(maps.Keys(s.pools))
}

func (s *Set) entry(name string) (*entry, error) {
	if s.closed.Load() {
		return nil, dberrors.ErrPoolClosed
	}
	e, ok := s.pools[name]
	if !ok {
		return nil, fmt.Errorf("pool %q: %w", name, dberrors.ErrUnknownPool)
	}
	return e, nil
}

// Acquire checks a session out of the named pool. Saturation surfaces as the
// pool's typed limit error and additionally raises a pool.saturated event.
func (s *Set) Acquire(ctx context.Context, name string) (*connpool.Pooled[*dbconn.Conn], error) {
	e, err := s.entry(name)
	if err != nil {
		return nil, err
	}

	pc, err := e.pool.Get(ctx)
	if err != nil {
		var limitErr *dberrors.PoolLimitError
		if errors.As(err, &limitErr) {
			s.dispatcher.Dispatch(ctx, events.NewPoolSaturated(ctx, limitErr.Pool, limitErr.Limit))
			s.logger.Warn("pool saturated", "pool", name, "limit", limitErr.Limit)
		}
		return nil, err
	}
	return pc, nil
}

// Release returns a session to its pool.
func (s *Set) Release(name string, pooled *connpool.Pooled[*dbconn.Conn]) {
	if pooled == nil {
		return
	}
	pooled.Recycle()
	s.logger.Debug("session released", "pool", name)
}

// WithConn runs fn with a session from the named pool, returning it on every
// exit path including a panic in fn.
func (s *Set) WithConn(ctx context.Context, name string, fn func(ctx context.Context, conn *dbconn.Conn) error) error {
	pooled, err := s.Acquire(ctx, name)
	if err != nil {
		return err
	}
	defer pooled.Recycle()
	return fn(ctx, pooled.Conn())
}

// PruneStale sweeps every pool once and reports how many sessions were
// closed.
func (s *Set) PruneStale(ctx context.Context) int {
	if s.closed.Load() {
		return 0
	}
	pruned := 0
	for _, name := range s.Names() {
		pruned += s.pools[name].pool.Prune(ctx)
	}
	return pruned
}

// StartPruning starts each pool's background prune loop. The loops stop when
// ctx is cancelled or the set is closed.
func (s *Set) StartPruning(ctx context.Context) {
	if s.closed.Load() {
		return
	}
	for _, e := range s.pools {
		e.pool.StartPruning(ctx)
	}
}

// Stats snapshots every pool's counters, keyed by pool name.
func (s *Set) Stats() map[string]connpool.PoolStats {
	out := make(map[string]connpool.PoolStats, len(s.pools))
	for name, e := range s.pools {
		out[name] = e.pool.Stats()
	}
	return out
}

// Close closes every pool and database handle. Idempotent.
func (s *Set) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	for _, name := range slices.Sorted(maps.Keys(s.pools)) {
		e := s.pools[name]
		e.pool.Close()
		if err := e.db.Close(); err != nil {
			s.logger.Warn("closing database handle", "pool", name, "error", err)
		}
	}
}
