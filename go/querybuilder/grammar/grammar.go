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

// Package grammar compiles dialect-independent query descriptions into SQL
// text for a concrete dialect. Grammars produce only the statement string;
// bind values travel separately and the clause order here defines the order
// the caller must supply them in: insert/update column values first, then
// where values in declaration order.
package grammar

import (
	"errors"
	"fmt"
)

// Compilation errors. Grammars wrap these with the offending detail.
var (
	// ErrUnknownNode reports an enum value outside the closed node sets.
	ErrUnknownNode = errors.New("unknown query node")
	// ErrEmptyIn reports an IN clause with no values, which has no valid SQL
	// rendering.
	ErrEmptyIn = errors.New("empty IN list")
	// ErrNoTable reports a statement compiled without a table.
	ErrNoTable = errors.New("no table specified")
	// ErrNoColumns reports an INSERT or UPDATE with no column values.
	ErrNoColumns = errors.New("no columns specified")
)

// Grammar is the dialect boundary. Implementations are stateless values; the
// compile methods are pure functions of the query.
type Grammar interface {
	// Name identifies the dialect, matching the driver name it serves.
	Name() string
	// Wrap quotes an identifier, handling table.column paths and leaving *
	// untouched.
	Wrap(identifier string) string
	// Placeholder renders the 1-based ordinal bind marker.
	Placeholder(ordinal int) string

	CompileSelect(q *Query) (string, error)
	CompileInsert(q *Query, cols []string) (string, error)
	CompileUpdate(q *Query, cols []string) (string, error)
	CompileDelete(q *Query) (string, error)
}

// ForDriver returns the grammar serving the given driver name.
func ForDriver(driver string) (Grammar, error) {
	switch driver {
	case "postgres", "pgx":
		return Postgres{}, nil
	case "mysql":
		return MySQL{}, nil
	default:
		return nil, fmt.Errorf("no grammar for driver %q", driver)
	}
}
