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

// Package dbconn opens physical database handles and pins individual
// sessions. A Conn wraps a dedicated *sql.Conn so that session state,
// including an open transaction, stays on one physical connection for as
// long as the pool lends it out.
package dbconn

import (
	"context"
	"database/sql"
	"log/slog"
	"sync/atomic"

	"github.com/XSAM/otelsql"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"

	"github.com/stratumdb/stratum/go/dberrors"

	// Drivers selectable via Config.Driver.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// DB is an open database handle for one configured pool. The underlying
// *sql.DB keeps no idle connections of its own: session lifetime is owned by
// the pool layer, and closing a Conn closes the physical connection.
type DB struct {
	db     *sql.DB
	driver string
	pool   string
}

// Open establishes a database handle and verifies connectivity. maxConns
// caps the driver-level open connections to the pool capacity so the two
// layers agree on the bound. Dial failures come back as
// *dberrors.ConnectionError.
func Open(ctx context.Context, pool string, cfg Config, maxConns int, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	dsn, err := cfg.DSN()
	if err != nil {
		return nil, &dberrors.ConnectionError{Pool: pool, Driver: cfg.Driver, Err: err}
	}

	var db *sql.DB
	if cfg.InstrumentDriver {
		db, err = otelsql.Open(cfg.Driver, dsn, otelsql.WithAttributes(
			attribute.String("db.system", cfg.Driver),
			attribute.String("db.client.connection.pool.name", pool),
		))
	} else {
		db, err = sql.Open(cfg.Driver, dsn)
	}
	if err != nil {
		return nil, &dberrors.ConnectionError{Pool: pool, Driver: cfg.Driver, Err: err}
	}

	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	// The pool layer holds the idle sessions; a Conn returned to database/sql
	// must close physically rather than linger in a second idle pool.
	db.SetMaxIdleConns(0)

	ping := func() error {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
		return db.PingContext(pingCtx)
	}
	if cfg.ConnectAttempts > 1 {
		bo := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(cfg.ConnectAttempts-1)), ctx)
		err = backoff.Retry(ping, bo)
	} else {
		err = ping()
	}
	if err != nil {
		_ = db.Close()
		return nil, &dberrors.ConnectionError{Pool: pool, Driver: cfg.Driver, Err: err}
	}

	logger.Info("database reachable", "pool", pool, "target", cfg.Redacted())
	return &DB{db: db, driver: cfg.Driver, pool: pool}, nil
}

// NewDB wraps an already-open *sql.DB. Used by tests and by callers that
// manage the handle themselves.
func NewDB(db *sql.DB, driver, pool string) *DB {
	return &DB{db: db, driver: driver, pool: pool}
}

// Conn pins a dedicated session and returns it wrapped.
func (d *DB) Conn(ctx context.Context) (*Conn, error) {
	sc, err := d.db.Conn(ctx)
	if err != nil {
		return nil, &dberrors.ConnectionError{Pool: d.pool, Driver: d.driver, Err: err}
	}
	return NewConn(sc, d.driver, d.pool), nil
}

// DriverName returns the database/sql driver name.
func (d *DB) DriverName() string { return d.driver }

// PoolName returns the pool this handle belongs to.
func (d *DB) PoolName() string { return d.pool }

// Close closes the underlying handle.
func (d *DB) Close() error { return d.db.Close() }

// Conn is a dedicated database session. It satisfies the pool's Connection
// interface and is the execution surface shared by the executor and the
// transaction manager: statements issued through the same Conn run on the
// same physical connection.
type Conn struct {
	conn   *sql.Conn
	driver string
	pool   string
	closed atomic.Bool
}

// NewConn wraps a pinned *sql.Conn.
func NewConn(conn *sql.Conn, driver, pool string) *Conn {
	return &Conn{conn: conn, driver: driver, pool: pool}
}

// ExecContext runs a statement that returns no rows.
func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c.closed.Load() {
		return nil, dberrors.ErrConnClosed
	}
	return c.conn.ExecContext(ctx, query, args...)
}

// QueryContext runs a statement that returns rows.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if c.closed.Load() {
		return nil, dberrors.ErrConnClosed
	}
	return c.conn.QueryContext(ctx, query, args...)
}

// PingContext verifies the session is alive.
func (c *Conn) PingContext(ctx context.Context) error {
	if c.closed.Load() {
		return dberrors.ErrConnClosed
	}
	return c.conn.PingContext(ctx)
}

// DriverName returns the driver this session speaks, used to pick the SQL
// grammar.
func (c *Conn) DriverName() string { return c.driver }

// PoolName returns the owning pool's name.
func (c *Conn) PoolName() string { return c.pool }

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool { return c.closed.Load() }

// Close releases the session. With the handle keeping zero idle connections,
// this closes the physical connection. Close is idempotent.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.conn.Close()
}
