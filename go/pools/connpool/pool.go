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

// Package connpool implements a bounded connection pool with fail-fast
// backpressure. The pool never queues acquisitions: when every slot is in
// use, Get returns a typed limit error immediately and the caller decides
// whether to back off, fall over to another pool, or surface the error.
package connpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stratumdb/stratum/go/dberrors"
	"github.com/stratumdb/stratum/go/tools/timer"
)

// Connection is the resource managed by the pool.
type Connection interface {
	// IsClosed reports whether the connection is no longer usable.
	IsClosed() bool
	// Close releases the underlying resource. Close must be idempotent.
	Close() error
}

// Connector creates a new connection. It is called while the pool holds a
// reserved capacity slot; a returned error releases the slot.
type Connector[C Connection] func(ctx context.Context) (C, error)

// Config configures a Pool.
type Config[C Connection] struct {
	// Name identifies the pool in errors, logs and metrics.
	Name string
	// Capacity is the maximum number of connections the pool may own,
	// borrowed and idle combined. Must be at least 1.
	Capacity int
	// MaxIdleTime is how long a connection may sit idle before Prune closes
	// it. Zero disables idle pruning.
	MaxIdleTime time.Duration
	// MaxLifetime is the maximum age of a connection regardless of use.
	// Zero disables the age limit.
	MaxLifetime time.Duration
	// PruneInterval is the period of the background prune loop started by
	// StartPruning. Defaults to 30 seconds.
	PruneInterval time.Duration
	// Connector creates new connections.
	Connector Connector[C]
	// OnClose, if set, is invoked after the pool destroys a connection.
	OnClose func(conn C)
	// Metrics, if set, records connection counts and acquisitions. A nil
	// Metrics is a no-op.
	Metrics *Metrics
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Pool is a bounded pool of connections. It hands out idle connections in
// LIFO order so that rarely needed connections go cold and get pruned.
type Pool[C Connection] struct {
	name        string
	capacity    int
	maxIdleTime time.Duration
	maxLifetime time.Duration
	connector   Connector[C]
	onClose     func(conn C)
	metrics     *Metrics
	logger      *slog.Logger
	pruner      *timer.Runner

	mu           sync.Mutex
	idle         []*Pooled[C]
	borrowed     int
	acquisitions uint64

	closed atomic.Bool
}

// PoolStats is a point-in-time snapshot of pool counters.
type PoolStats struct {
	// Name is the pool name.
	Name string
	// Capacity is the configured maximum.
	Capacity int
	// Spawned is the number of connections the pool currently owns.
	Spawned int
	// Active is the number of connections checked out right now.
	Active int
	// Idle is the number of connections waiting in the pool.
	Idle int
	// Acquisitions is the cumulative number of successful Gets.
	Acquisitions uint64
	// MaxIdleTime is the configured idle cutoff.
	MaxIdleTime time.Duration
}

const defaultPruneInterval = 30 * time.Second

// New validates cfg and returns an open pool.
func New[C Connection](cfg Config[C]) (*Pool[C], error) {
	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("pool %q: capacity must be at least 1, got %d", cfg.Name, cfg.Capacity)
	}
	if cfg.Connector == nil {
		return nil, fmt.Errorf("pool %q: connector is required", cfg.Name)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.PruneInterval
	if interval <= 0 {
		interval = defaultPruneInterval
	}
	return &Pool[C]{
		name:        cfg.Name,
		capacity:    cfg.Capacity,
		maxIdleTime: cfg.MaxIdleTime,
		maxLifetime: cfg.MaxLifetime,
		connector:   cfg.Connector,
		onClose:     cfg.OnClose,
		metrics:     cfg.Metrics,
		logger:      logger,
		pruner:      timer.NewRunner(interval),
		idle:        make([]*Pooled[C], 0, cfg.Capacity),
	}, nil
}

// Name returns the pool name.
func (p *Pool[C]) Name() string { return p.name }

// Get returns a connection, reusing the most recently returned idle one when
// available and spawning a new one otherwise. When the pool already owns
// Capacity connections, Get fails immediately with a *dberrors.PoolLimitError;
// it never blocks waiting for a slot.
func (p *Pool[C]) Get(ctx context.Context) (*Pooled[C], error) {
	if p.closed.Load() {
		return nil, dberrors.ErrPoolClosed
	}

	for {
		p.mu.Lock()
		n := len(p.idle)
		if n == 0 {
			break // mu still held
		}
		pc := p.idle[n-1]
		p.idle = p.idle[:n-1]
		if pc.conn.IsClosed() || p.pastLifetime(pc, time.Now()) {
			p.mu.Unlock()
			p.metrics.ConnIdle(ctx, -1)
			p.destroy(pc)
			continue
		}
		p.borrowed++
		p.acquisitions++
		p.mu.Unlock()
		p.metrics.ConnIdle(ctx, -1)
		p.metrics.ConnUsed(ctx, 1)
		p.metrics.Acquired(ctx)
		return pc, nil
	}

	// Idle list empty. Spawn if a slot is free, reserving it up front so a
	// slow connector cannot oversubscribe the pool.
	if p.borrowed >= p.capacity {
		limit := p.capacity
		p.mu.Unlock()
		return nil, &dberrors.PoolLimitError{Pool: p.name, Limit: limit}
	}
	p.borrowed++
	p.mu.Unlock()

	conn, err := p.connector(ctx)
	if err != nil {
		p.mu.Lock()
		p.borrowed--
		p.mu.Unlock()
		return nil, err
	}

	p.mu.Lock()
	p.acquisitions++
	p.mu.Unlock()
	p.metrics.ConnUsed(ctx, 1)
	p.metrics.Acquired(ctx)
	p.logger.Debug("connection spawned", "pool", p.name)
	return newPooled(p, conn), nil
}

// Put returns a borrowed connection to the pool. Dead or over-age
// connections are destroyed instead of re-idled. Returning a connection to a
// closed pool destroys it.
func (p *Pool[C]) Put(pc *Pooled[C]) {
	if pc == nil {
		return
	}
	pc.touch()

	if p.closed.Load() {
		p.mu.Lock()
		p.borrowed--
		p.mu.Unlock()
		p.metrics.ConnUsed(context.Background(), -1)
		p.destroy(pc)
		return
	}

	p.mu.Lock()
	if pc.conn.IsClosed() || p.pastLifetime(pc, time.Now()) {
		p.borrowed--
		p.mu.Unlock()
		p.metrics.ConnUsed(context.Background(), -1)
		p.destroy(pc)
		return
	}
	p.borrowed--
	p.idle = append(p.idle, pc)
	p.mu.Unlock()
	p.metrics.ConnUsed(context.Background(), -1)
	p.metrics.ConnIdle(context.Background(), 1)
}

// Prune closes idle connections whose idle time exceeds MaxIdleTime or whose
// age exceeds MaxLifetime. Borrowed connections are never touched. Returns
// the number of connections destroyed.
func (p *Pool[C]) Prune(ctx context.Context) int {
	if p.closed.Load() {
		return 0
	}
	now := time.Now()

	p.mu.Lock()
	var victims []*Pooled[C]
	kept := p.idle[:0]
	for _, pc := range p.idle {
		if p.pastIdle(pc, now) || p.pastLifetime(pc, now) || pc.conn.IsClosed() {
			victims = append(victims, pc)
			continue
		}
		kept = append(kept, pc)
	}
	p.idle = kept
	p.mu.Unlock()

	for _, pc := range victims {
		p.metrics.ConnIdle(ctx, -1)
		p.destroy(pc)
	}
	if len(victims) > 0 {
		p.logger.Debug("pruned stale connections", "pool", p.name, "count", len(victims))
	}
	return len(victims)
}

// StartPruning launches the background prune loop. It runs until Close. The
// callback context derives from ctx, so callers should hand in a context that
// outlives request scope.
func (p *Pool[C]) StartPruning(ctx context.Context) {
	p.pruner.Start(ctx, func(ctx context.Context) {
		p.Prune(ctx)
	})
}

// Stats returns a snapshot of the pool counters.
func (p *Pool[C]) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Name:         p.name,
		Capacity:     p.capacity,
		Spawned:      p.borrowed + len(p.idle),
		Active:       p.borrowed,
		Idle:         len(p.idle),
		Acquisitions: p.acquisitions,
		MaxIdleTime:  p.maxIdleTime,
	}
}

// Close marks the pool closed, stops the prune loop and destroys all idle
// connections. Borrowed connections are destroyed as they come back through
// Put. Close is idempotent.
func (p *Pool[C]) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.pruner.Stop()

	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, pc := range idle {
		p.metrics.ConnIdle(context.Background(), -1)
		p.destroy(pc)
	}
	p.logger.Info("connection pool closed", "pool", p.name, "destroyed_idle", len(idle))
}

// IsClosed reports whether Close has been called.
func (p *Pool[C]) IsClosed() bool {
	return p.closed.Load()
}

func (p *Pool[C]) pastIdle(pc *Pooled[C], now time.Time) bool {
	return p.maxIdleTime > 0 && now.Sub(pc.lastUsed()) > p.maxIdleTime
}

func (p *Pool[C]) pastLifetime(pc *Pooled[C], now time.Time) bool {
	return p.maxLifetime > 0 && now.Sub(pc.createdAt) > p.maxLifetime
}

// destroy closes the connection and fires the OnClose hook. Called without
// holding mu.
func (p *Pool[C]) destroy(pc *Pooled[C]) {
	if err := pc.conn.Close(); err != nil && !errors.Is(err, dberrors.ErrConnClosed) {
		p.logger.Warn("closing pooled connection", "pool", p.name, "error", err)
	}
	if p.onClose != nil {
		p.onClose(pc.conn)
	}
}
