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

// MySQL compiles for MySQL: backtick-quoted identifiers and positional ?
// placeholders.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) Wrap(identifier string) string { return wrapIdent(identifier, "`") }

func (MySQL) Placeholder(int) string { return "?" }

func (g MySQL) CompileSelect(q *Query) (string, error) { return compileSelect(g, q) }

func (g MySQL) CompileInsert(q *Query, cols []string) (string, error) {
	return compileInsert(g, q, cols)
}

func (g MySQL) CompileUpdate(q *Query, cols []string) (string, error) {
	return compileUpdate(g, q, cols)
}

func (g MySQL) CompileDelete(q *Query) (string, error) { return compileDelete(g, q) }
