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

package txn

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/go/dbconn"
	"github.com/stratumdb/stratum/go/dberrors"
	"github.com/stratumdb/stratum/go/events"
)

func newTestManager(t *testing.T, opts ...Option) (*Manager, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sc, err := db.Conn(t.Context())
	require.NoError(t, err)
	conn := dbconn.NewConn(sc, "postgres", "primary")
	t.Cleanup(func() { _ = conn.Close() })

	return NewManager(conn, append([]Option{WithPoolName("primary")}, opts...)...), mock
}

func TestNestedBeginCommitIssuesOnePhysicalPair(t *testing.T) {
	mgr, mock := newTestManager(t)
	ctx := t.Context()

	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, mgr.Begin(ctx))
	assert.Equal(t, 1, mgr.Depth())
	require.NoError(t, mgr.Begin(ctx))
	assert.Equal(t, 2, mgr.Depth())

	require.NoError(t, mgr.Commit(ctx))
	assert.Equal(t, 1, mgr.Depth())
	require.NoError(t, mgr.Commit(ctx))
	assert.Equal(t, 0, mgr.Depth())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitWithoutTransaction(t *testing.T) {
	mgr, mock := newTestManager(t)

	err := mgr.Commit(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, dberrors.ErrNoTransaction)

	var txErr *dberrors.TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "commit", txErr.Op)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRollbackWithoutTransaction(t *testing.T) {
	mgr, mock := newTestManager(t)

	err := mgr.Rollback(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, dberrors.ErrNoTransaction)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRollbackAbortsWholeTree(t *testing.T) {
	mgr, mock := newTestManager(t)
	ctx := t.Context()

	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, mgr.Begin(ctx))
	require.NoError(t, mgr.Begin(ctx))
	require.NoError(t, mgr.Begin(ctx))
	assert.Equal(t, 3, mgr.Depth())

	require.NoError(t, mgr.Rollback(ctx))
	assert.Equal(t, 0, mgr.Depth())

	// The tree is gone; the levels above the rollback cannot commit.
	err := mgr.Commit(ctx)
	assert.ErrorIs(t, err, dberrors.ErrNoTransaction)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginFailureLeavesDepthZero(t *testing.T) {
	mgr, mock := newTestManager(t)
	ctx := t.Context()

	boom := errors.New("connection reset")
	mock.ExpectExec("BEGIN").WillReturnError(boom)
	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))

	err := mgr.Begin(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, mgr.Depth())

	var txErr *dberrors.TxError
	require.ErrorAs(t, err, &txErr)
	assert.Equal(t, "begin", txErr.Op)

	// A failed begin must not poison the manager.
	require.NoError(t, mgr.Begin(ctx))
	assert.Equal(t, 1, mgr.Depth())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitFailureResetsDepth(t *testing.T) {
	mgr, mock := newTestManager(t)
	ctx := t.Context()

	boom := errors.New("serialization failure")
	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("COMMIT").WillReturnError(boom)

	require.NoError(t, mgr.Begin(ctx))
	err := mgr.Commit(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, mgr.Depth())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRollbackFailureStillResetsDepth(t *testing.T) {
	mgr, mock := newTestManager(t)
	ctx := t.Context()

	boom := errors.New("connection reset")
	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK").WillReturnError(boom)

	require.NoError(t, mgr.Begin(ctx))
	err := mgr.Rollback(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, mgr.Depth())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunCommitsOnSuccess(t *testing.T) {
	mgr, mock := newTestManager(t)

	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO audit").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

	var ran bool
	err := mgr.Run(t.Context(), func(ctx context.Context) error {
		ran = true
		assert.Equal(t, 1, mgr.Depth())
		_, execErr := mgr.sess.ExecContext(ctx, "INSERT INTO audit VALUES (1)")
		return execErr
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 0, mgr.Depth())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRollsBackOnError(t *testing.T) {
	mgr, mock := newTestManager(t)

	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	boom := errors.New("constraint violated")
	err := mgr.Run(t.Context(), func(ctx context.Context) error {
		return boom
	})
	assert.Same(t, boom, err)
	assert.Equal(t, 0, mgr.Depth())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunPreservesCallbackErrorWhenRollbackFails(t *testing.T) {
	mgr, mock := newTestManager(t)

	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK").WillReturnError(errors.New("connection reset"))

	boom := errors.New("constraint violated")
	err := mgr.Run(t.Context(), func(ctx context.Context) error {
		return boom
	})
	// The callback's error wins; the rollback failure is only logged.
	assert.Same(t, boom, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunRollsBackOnPanic(t *testing.T) {
	mgr, mock := newTestManager(t)

	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	require.PanicsWithValue(t, "boom", func() {
		_ = mgr.Run(t.Context(), func(ctx context.Context) error {
			panic("boom")
		})
	})
	assert.Equal(t, 0, mgr.Depth())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNestedRunSharesOnePhysicalTransaction(t *testing.T) {
	mgr, mock := newTestManager(t)

	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

	err := mgr.Run(t.Context(), func(ctx context.Context) error {
		return mgr.Run(ctx, func(ctx context.Context) error {
			assert.Equal(t, 2, mgr.Depth())
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 0, mgr.Depth())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunValue(t *testing.T) {
	mgr, mock := newTestManager(t)

	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))

	got, err := RunValue(t.Context(), mgr, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	boom := errors.New("lookup failed")
	got, err = RunValue(t.Context(), mgr, func(ctx context.Context) (int, error) {
		return 42, boom
	})
	assert.Same(t, boom, err)
	assert.Zero(t, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionEventsFireOnOuterTransitionsOnly(t *testing.T) {
	var names []string
	d := events.NewDispatcher()
	d.OnAll(func(ctx context.Context, ev events.Event) error {
		names = append(names, ev.Name())
		return nil
	})

	mgr, mock := newTestManager(t, WithDispatcher(d))
	ctx := t.Context()

	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("COMMIT").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("BEGIN").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ROLLBACK").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, mgr.Begin(ctx))
	require.NoError(t, mgr.Begin(ctx))
	require.NoError(t, mgr.Commit(ctx))
	require.NoError(t, mgr.Commit(ctx))

	require.NoError(t, mgr.Begin(ctx))
	require.NoError(t, mgr.Rollback(ctx))

	assert.Equal(t, []string{
		events.NameTransactionBegun,
		events.NameTransactionCommitted,
		events.NameTransactionBegun,
		events.NameTransactionRolledBack,
	}, names)

	assert.NoError(t, mock.ExpectationsWereMet())
}
