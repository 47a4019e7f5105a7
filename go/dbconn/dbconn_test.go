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

package dbconn

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/go/dberrors"
)

// newMockConn pins a session on a sqlmock-backed handle.
func newMockConn(t *testing.T, opts ...func(*sqlmock.Sqlmock)) (*Conn, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, opt := range opts {
		opt(&mock)
	}

	sc, err := db.Conn(t.Context())
	require.NoError(t, err)

	conn := NewConn(sc, "postgres", "primary")
	t.Cleanup(func() { _ = conn.Close() })
	return conn, mock
}

func TestConnPassesStatementsThrough(t *testing.T) {
	conn, mock := newMockConn(t)
	mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

	res, err := conn.ExecContext(t.Context(), "UPDATE users SET active = true")
	require.NoError(t, err)
	affected, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	rows, err := conn.QueryContext(t.Context(), "SELECT 1")
	require.NoError(t, err)
	require.True(t, rows.Next())
	require.NoError(t, rows.Close())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnPing(t *testing.T) {
	conn, mock := newMockConn(t, func(m *sqlmock.Sqlmock) {
		(*m).ExpectPing()
	})

	assert.NoError(t, conn.PingContext(t.Context()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnRejectsWorkAfterClose(t *testing.T) {
	conn, _ := newMockConn(t)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close(), "close must be idempotent")

	assert.True(t, conn.IsClosed())

	_, err := conn.ExecContext(t.Context(), "SELECT 1")
	assert.ErrorIs(t, err, dberrors.ErrConnClosed)

	_, err = conn.QueryContext(t.Context(), "SELECT 1")
	assert.ErrorIs(t, err, dberrors.ErrConnClosed)

	assert.ErrorIs(t, conn.PingContext(t.Context()), dberrors.ErrConnClosed)
}

func TestConnIdentity(t *testing.T) {
	conn, _ := newMockConn(t)

	assert.Equal(t, "postgres", conn.DriverName())
	assert.Equal(t, "primary", conn.PoolName())
}

func TestDBPinsSessions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	mock.ExpectExec("SET application_name").WillReturnResult(sqlmock.NewResult(0, 0))

	handle := NewDB(db, "postgres", "primary")
	assert.Equal(t, "postgres", handle.DriverName())
	assert.Equal(t, "primary", handle.PoolName())

	conn, err := handle.Conn(t.Context())
	require.NoError(t, err)

	_, err = conn.ExecContext(t.Context(), "SET application_name = 'stratum'")
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	assert.NoError(t, mock.ExpectationsWereMet())
}
