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

// Package querybuilder composes SQL statements fluently and runs them through
// the executor and transaction manager of one pinned session. Statement text
// is produced by a dialect grammar; the builder itself never concatenates
// user values into SQL, it only lines bind values up with the placeholders
// the grammar emits.
package querybuilder

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/stratumdb/stratum/go/events"
	"github.com/stratumdb/stratum/go/executor"
	"github.com/stratumdb/stratum/go/querybuilder/grammar"
	"github.com/stratumdb/stratum/go/sqltypes"
	"github.com/stratumdb/stratum/go/txn"
	"github.com/stratumdb/stratum/go/unitofwork"
)

// Builder accumulates one statement's clauses and executes it. Terminals
// consume the accumulated state, so the builder is immediately reusable for
// the next statement whatever the outcome. A Builder is not safe for
// concurrent use.
type Builder struct {
	ex         *executor.Executor
	mgr        *txn.Manager
	g          grammar.Grammar
	dispatcher *events.Dispatcher
	logger     *slog.Logger
	pool       string
	im         *unitofwork.IdentityMap

	table   string
	columns []string
	wheres  []grammar.WhereNode
	joins   []grammar.JoinNode
	orders  []grammar.OrderNode
	limit   int
}

// Option configures a Builder.
type Option func(*Builder)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) { b.logger = logger }
}

// WithDispatcher wires query.executed events.
func WithDispatcher(d *events.Dispatcher) Option {
	return func(b *Builder) { b.dispatcher = d }
}

// WithPoolName labels events with the owning pool.
func WithPoolName(pool string) Option {
	return func(b *Builder) { b.pool = pool }
}

// New returns a Builder executing through ex and mgr. When g is nil the
// grammar is chosen by the executor's driver name.
func New(ex *executor.Executor, mgr *txn.Manager, g grammar.Grammar, opts ...Option) (*Builder, error) {
	if g == nil {
		var err error
		if g, err = grammar.ForDriver(ex.DriverName()); err != nil {
			return nil, err
		}
	}
	b := &Builder{ex: ex, mgr: mgr, g: g, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Grammar returns the dialect grammar the builder compiles with.
func (b *Builder) Grammar() grammar.Grammar { return b.g }

// Table sets the table the statement targets.
func (b *Builder) Table(name string) *Builder {
	b.table = name
	return b
}

// Select sets the columns a Get returns. Without it the statement selects *.
func (b *Builder) Select(cols ...string) *Builder {
	b.columns = append(b.columns, cols...)
	return b
}

// Where adds an AND-joined comparison clause.
func (b *Builder) Where(column, operator string, value any) *Builder {
	b.wheres = append(b.wheres, grammar.WhereNode{
		Kind: grammar.WhereBasic, Conj: grammar.ConjAnd,
		Column: column, Operator: operator, Value: value,
	})
	return b
}

// OrWhere adds an OR-joined comparison clause.
func (b *Builder) OrWhere(column, operator string, value any) *Builder {
	b.wheres = append(b.wheres, grammar.WhereNode{
		Kind: grammar.WhereBasic, Conj: grammar.ConjOr,
		Column: column, Operator: operator, Value: value,
	})
	return b
}

// WhereIn adds an AND-joined membership clause. Compilation rejects an empty
// value list.
func (b *Builder) WhereIn(column string, values ...any) *Builder {
	b.wheres = append(b.wheres, grammar.WhereNode{
		Kind: grammar.WhereIn, Conj: grammar.ConjAnd,
		Column: column, Values: slices.Clone(values),
	})
	return b
}

// WhereNull adds an AND-joined IS NULL clause.
func (b *Builder) WhereNull(column string) *Builder {
	b.wheres = append(b.wheres, grammar.WhereNode{
		Kind: grammar.WhereNull, Conj: grammar.ConjAnd, Column: column,
	})
	return b
}

// WhereNotNull adds an AND-joined IS NOT NULL clause.
func (b *Builder) WhereNotNull(column string) *Builder {
	b.wheres = append(b.wheres, grammar.WhereNode{
		Kind: grammar.WhereNotNull, Conj: grammar.ConjAnd, Column: column,
	})
	return b
}

// Join adds an inner join.
func (b *Builder) Join(table, left, operator, right string) *Builder {
	return b.join(grammar.JoinInner, table, left, operator, right)
}

// LeftJoin adds a left outer join.
func (b *Builder) LeftJoin(table, left, operator, right string) *Builder {
	return b.join(grammar.JoinLeft, table, left, operator, right)
}

// RightJoin adds a right outer join.
func (b *Builder) RightJoin(table, left, operator, right string) *Builder {
	return b.join(grammar.JoinRight, table, left, operator, right)
}

func (b *Builder) join(kind grammar.JoinKind, table, left, operator, right string) *Builder {
	b.joins = append(b.joins, grammar.JoinNode{
		Kind: kind, Table: table, LeftColumn: left, Operator: operator, RightColumn: right,
	})
	return b
}

// OrderBy adds an ordering term.
func (b *Builder) OrderBy(column string, dir grammar.Direction) *Builder {
	b.orders = append(b.orders, grammar.OrderNode{Column: column, Dir: dir})
	return b
}

// Limit caps the number of rows a Get returns. Non-positive values are
// ignored.
func (b *Builder) Limit(n int) *Builder {
	if n > 0 {
		b.limit = n
	}
	return b
}

// Reset discards the accumulated statement state.
func (b *Builder) Reset() *Builder {
	b.table = ""
	b.columns = nil
	b.wheres = nil
	b.joins = nil
	b.orders = nil
	b.limit = 0
	return b
}

// take snapshots the statement state into a query and resets the builder.
// Reset nils the slice fields, so the query owns them exclusively.
func (b *Builder) take() *grammar.Query {
	q := &grammar.Query{
		Table:   b.table,
		Columns: b.columns,
		Wheres:  b.wheres,
		Joins:   b.joins,
		Orders:  b.orders,
		LimitN:  b.limit,
	}
	b.Reset()
	return q
}

// Get compiles and executes the accumulated SELECT. Selects always execute
// immediately, also on a deferred builder.
func (b *Builder) Get(ctx context.Context) ([]sqltypes.Row, error) {
	q := b.take()
	stmt, err := b.g.CompileSelect(q)
	if err != nil {
		return nil, err
	}
	binds, err := whereBindings(q.Wheres)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rows, err := b.ex.Query(ctx, stmt, sqltypes.NewBag(binds...))
	if err != nil {
		return nil, err
	}
	b.dispatchExecuted(ctx, stmt, binds, time.Since(start), int64(len(rows)))
	return rows, nil
}

// Insert writes one row. Columns are sorted so equal value maps always
// produce identical SQL; bind values follow the same order.
func (b *Builder) Insert(ctx context.Context, values map[string]any) (sqltypes.Result, error) {
	q := b.take()
	cols := slices.Sorted(maps.Keys(values))
	stmt, err := b.g.CompileInsert(q, cols)
	if err != nil {
		return sqltypes.Result{}, err
	}
	binds := make([]any, 0, len(cols))
	for _, c := range cols {
		binds = append(binds, values[c])
	}
	return b.mutate(ctx, unitofwork.OpInsert, stmt, binds)
}

// Update rewrites matching rows. Bind order is the sorted column values
// followed by the where values.
func (b *Builder) Update(ctx context.Context, values map[string]any) (sqltypes.Result, error) {
	q := b.take()
	cols := slices.Sorted(maps.Keys(values))
	stmt, err := b.g.CompileUpdate(q, cols)
	if err != nil {
		return sqltypes.Result{}, err
	}
	whereBinds, err := whereBindings(q.Wheres)
	if err != nil {
		return sqltypes.Result{}, err
	}
	binds := make([]any, 0, len(cols)+len(whereBinds))
	for _, c := range cols {
		binds = append(binds, values[c])
	}
	binds = append(binds, whereBinds...)
	return b.mutate(ctx, unitofwork.OpUpdate, stmt, binds)
}

// Delete removes matching rows.
func (b *Builder) Delete(ctx context.Context) (sqltypes.Result, error) {
	q := b.take()
	stmt, err := b.g.CompileDelete(q)
	if err != nil {
		return sqltypes.Result{}, err
	}
	binds, err := whereBindings(q.Wheres)
	if err != nil {
		return sqltypes.Result{}, err
	}
	return b.mutate(ctx, unitofwork.OpDelete, stmt, binds)
}

// mutate executes a write immediately or, on a deferred builder, schedules it
// on the identity map and reports success without touching the database.
func (b *Builder) mutate(ctx context.Context, op unitofwork.Op, stmt string, binds []any) (sqltypes.Result, error) {
	if b.im != nil {
		b.im.Schedule(op, stmt, sqltypes.NewBag(binds...))
		b.logger.Debug("mutation deferred", "op", string(op), "pool", b.pool)
		return sqltypes.Result{Success: true}, nil
	}

	start := time.Now()
	res, err := b.ex.Exec(ctx, stmt, sqltypes.NewBag(binds...))
	if err != nil {
		return sqltypes.Result{}, err
	}
	b.dispatchExecuted(ctx, stmt, binds, time.Since(start), res.RowsAffected)
	return res, nil
}

// Deferred returns a copy of the builder whose mutations are scheduled on the
// identity map instead of executed. The copy shares the session but not the
// statement state.
func (b *Builder) Deferred(im *unitofwork.IdentityMap) *Builder {
	c := b.clone()
	c.im = im
	return c
}

// Transaction runs fn inside a transaction on the builder's session, handing
// it a fresh builder view. Mutations on the view execute immediately within
// the transaction, also when Transaction was called on a deferred builder.
func (b *Builder) Transaction(ctx context.Context, fn func(ctx context.Context, tx *Builder) error) error {
	return b.mgr.Run(ctx, func(ctx context.Context) error {
		view := b.clone().Reset()
		view.im = nil
		return fn(ctx, view)
	})
}

func (b *Builder) clone() *Builder {
	c := *b
	c.columns = slices.Clone(b.columns)
	c.wheres = slices.Clone(b.wheres)
	c.joins = slices.Clone(b.joins)
	c.orders = slices.Clone(b.orders)
	return &c
}

func (b *Builder) dispatchExecuted(ctx context.Context, stmt string, binds []any, elapsed time.Duration, rows int64) {
	if b.dispatcher == nil {
		return
	}
	b.dispatcher.Dispatch(ctx, events.NewQueryExecuted(
		ctx, b.pool, stmt, binds, b.dispatcher.RedactBindings(), elapsed, rows))
}

// whereBindings collects bind values in the order the grammar will emit
// placeholders for them.
func whereBindings(wheres []grammar.WhereNode) ([]any, error) {
	var out []any
	for _, w := range wheres {
		switch w.Kind {
		case grammar.WhereBasic:
			out = append(out, w.Value)
		case grammar.WhereIn:
			out = append(out, w.Values...)
		case grammar.WhereNull, grammar.WhereNotNull:
		default:
			return nil, fmt.Errorf("%w: where kind %d", grammar.ErrUnknownNode, w.Kind)
		}
	}
	return out, nil
}
