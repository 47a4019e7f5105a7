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

// Package sqltypes holds the value types shared by the pool, executor and
// query builder: ordered bind-value bags, result rows, and mutation results.
package sqltypes

import "slices"

// Bag is an ordered, immutable collection of bind values. The order values
// are added is the order placeholders must appear in the statement. All
// methods return a new Bag; an existing Bag is never mutated, so a Bag can be
// shared across goroutines and retained inside deferred work records.
type Bag struct {
	values []any
}

// NewBag returns a Bag holding the given values in order.
func NewBag(values ...any) Bag {
	return Bag{values: slices.Clone(values)}
}

// Append returns a new Bag with the given values appended.
func (b Bag) Append(values ...any) Bag {
	out := make([]any, 0, len(b.values)+len(values))
	out = append(out, b.values...)
	out = append(out, values...)
	return Bag{values: out}
}

// Merge returns a new Bag holding this bag's values followed by other's.
func (b Bag) Merge(other Bag) Bag {
	return b.Append(other.values...)
}

// Values returns a copy of the bind values in placeholder order.
func (b Bag) Values() []any {
	return slices.Clone(b.values)
}

// Len returns the number of bind values.
func (b Bag) Len() int {
	return len(b.values)
}
