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

package grammar

import "strconv"

// Postgres compiles for PostgreSQL: double-quoted identifiers and numbered
// $1..$n placeholders.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Wrap(identifier string) string { return wrapIdent(identifier, `"`) }

func (Postgres) Placeholder(ordinal int) string { return "$" + strconv.Itoa(ordinal) }

func (g Postgres) CompileSelect(q *Query) (string, error) { return compileSelect(g, q) }

func (g Postgres) CompileInsert(q *Query, cols []string) (string, error) {
	return compileInsert(g, q, cols)
}

func (g Postgres) CompileUpdate(q *Query, cols []string) (string, error) {
	return compileUpdate(g, q, cols)
}

func (g Postgres) CompileDelete(q *Query) (string, error) { return compileDelete(g, q) }
