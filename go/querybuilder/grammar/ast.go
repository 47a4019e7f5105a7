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

// WhereKind discriminates the closed set of where-clause shapes. Compilation
// switches over it exhaustively and rejects values outside the set, so adding
// a kind means teaching every grammar about it.
type WhereKind int

const (
	WhereBasic WhereKind = iota // column <operator> value
	WhereIn                     // column IN (values...)
	WhereNull                   // column IS NULL
	WhereNotNull                // column IS NOT NULL
)

// Conjunction joins a where clause to the one before it.
type Conjunction int

const (
	ConjAnd Conjunction = iota
	ConjOr
)

// WhereNode is one clause of a WHERE condition. Value is set for WhereBasic,
// Values for WhereIn; the null kinds carry only the column.
type WhereNode struct {
	Kind     WhereKind
	Conj     Conjunction
	Column   string
	Operator string
	Value    any
	Values   []any
}

// JoinKind discriminates the supported join types.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	JoinRight
)

// JoinNode is one JOIN ... ON left <operator> right clause.
type JoinNode struct {
	Kind        JoinKind
	Table       string
	LeftColumn  string
	Operator    string
	RightColumn string
}

// Direction orders a result column.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// OrderNode is one ORDER BY term.
type OrderNode struct {
	Column string
	Dir    Direction
}

// Query is the dialect-independent statement description grammars compile
// from. Nodes are values and are never mutated after construction; the
// builder assembling a Query owns its slices.
type Query struct {
	Table   string
	Columns []string
	Wheres  []WhereNode
	Joins   []JoinNode
	Orders  []OrderNode
	// LimitN caps the row count when positive. Zero means no LIMIT clause.
	LimitN int
}
