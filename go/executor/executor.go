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

// Package executor runs SQL statements against a single pinned session.
// Failures come back as *dberrors.QueryError carrying the statement and
// redacted bind values.
package executor

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/stratumdb/stratum/go/dberrors"
	"github.com/stratumdb/stratum/go/sqltypes"
)

// Session is the execution surface: one pinned database session. Both the
// executor and the transaction manager operate on the same Session, which is
// what keeps transactional statements on the transaction's connection.
type Session interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	DriverName() string
}

// Executor executes statements on one session.
type Executor struct {
	sess   Session
	logger *slog.Logger
}

// New returns an Executor bound to sess. A nil logger falls back to
// slog.Default().
func New(sess Session, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{sess: sess, logger: logger}
}

// Query runs a row-returning statement and materializes every row, in result
// order, as a column-name-to-value map.
func (e *Executor) Query(ctx context.Context, query string, bindings sqltypes.Bag) ([]sqltypes.Row, error) {
	start := time.Now()
	args := bindings.Values()

	rows, err := e.sess.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dberrors.NewQueryError(query, args, err)
	}
	defer rows.Close()

	out := []sqltypes.Row{}
	for rows.Next() {
		row := sqltypes.Row{}
		if err := sqlx.MapScan(rows, row); err != nil {
			return nil, dberrors.NewQueryError(query, args, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, dberrors.NewQueryError(query, args, err)
	}

	e.logger.Debug("query executed",
		"sql", query,
		"bindings", sqltypes.RedactValues(args),
		"rows", len(out),
		"duration", time.Since(start),
	)
	return out, nil
}

// Exec runs a mutation statement and reports the affected row count.
func (e *Executor) Exec(ctx context.Context, query string, bindings sqltypes.Bag) (sqltypes.Result, error) {
	start := time.Now()
	args := bindings.Values()

	res, err := e.sess.ExecContext(ctx, query, args...)
	if err != nil {
		return sqltypes.Result{}, dberrors.NewQueryError(query, args, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		// Some drivers cannot report the count. The statement itself
		// succeeded, so the result stays successful.
		e.logger.Warn("driver does not report affected rows", "sql", query, "error", err)
		affected = 0
	}

	e.logger.Debug("statement executed",
		"sql", query,
		"bindings", sqltypes.RedactValues(args),
		"affected", affected,
		"duration", time.Since(start),
	)
	return sqltypes.Result{Success: true, RowsAffected: affected}, nil
}

// DriverName reports the session's driver, used to select a SQL grammar.
func (e *Executor) DriverName() string { return e.sess.DriverName() }
