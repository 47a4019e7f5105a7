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

// Package dberrors defines the error taxonomy of the database layer. Every
// failure mode callers are expected to branch on is either a sentinel or a
// typed error carrying the relevant context, reachable through errors.Is and
// errors.As.
package dberrors

import (
	"errors"
	"fmt"
	"slices"

	"github.com/stratumdb/stratum/go/sqltypes"
)

var (
	// ErrPoolExhausted is reported when a pool is at capacity and cannot
	// serve another connection. The concrete error is a *PoolLimitError.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrPoolClosed is returned on acquisition from a closed pool.
	ErrPoolClosed = errors.New("connection pool is closed")

	// ErrConnClosed is returned when a statement runs on a closed connection.
	ErrConnClosed = errors.New("connection is closed")

	// ErrNoTransaction is returned when commit or rollback is requested with
	// no transaction in progress.
	ErrNoTransaction = errors.New("no transaction in progress")

	// ErrUnknownPool is returned when a pool name has no configuration.
	ErrUnknownPool = errors.New("unknown pool")
)

// ConnectionError reports a failure to establish or validate a physical
// database connection. The message never includes credentials.
type ConnectionError struct {
	Pool   string
	Driver string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("pool %q: connect via %s driver: %v", e.Pool, e.Driver, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// PoolLimitError reports that an acquisition was denied because the pool
// already owns its maximum number of connections. The caller sees the denial
// immediately; the pool never queues acquisitions internally.
type PoolLimitError struct {
	Pool  string
	Limit int
}

func (e *PoolLimitError) Error() string {
	return fmt.Sprintf("pool %q has reached its limit of %d connections", e.Pool, e.Limit)
}

// Is reports ErrPoolExhausted so callers can branch with errors.Is without
// unpacking the struct.
func (e *PoolLimitError) Is(target error) bool { return target == ErrPoolExhausted }

// QueryError wraps a driver failure with the statement that caused it. Bind
// values are held privately: Error and Bindings expose only redacted
// placeholders, RawBindings is the explicit opt-in for the original values.
type QueryError struct {
	SQL      string
	bindings []any
	Err      error
}

// NewQueryError builds a QueryError from the statement, its raw bind values
// and the driver error.
func NewQueryError(sql string, bindings []any, err error) *QueryError {
	return &QueryError{SQL: sql, bindings: slices.Clone(bindings), Err: err}
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v (sql: %s, bindings: %v)", e.Err, e.SQL, e.Bindings())
}

// Bindings returns the bind values with every element redacted.
func (e *QueryError) Bindings() []any { return sqltypes.RedactValues(e.bindings) }

// RawBindings returns a copy of the original bind values. Callers opting in
// here are responsible for keeping them out of logs.
func (e *QueryError) RawBindings() []any { return slices.Clone(e.bindings) }

func (e *QueryError) Unwrap() error { return e.Err }

// TxError reports a transaction protocol failure: a physical BEGIN, COMMIT or
// ROLLBACK that failed, an operation attempted outside a transaction, or a
// deferred flush that aborted.
type TxError struct {
	// Op is the operation that failed: begin, commit, rollback or flush.
	Op string
	// Depth is the nesting level at the time of the failure.
	Depth int
	Err   error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("transaction %s at depth %d: %v", e.Op, e.Depth, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }
