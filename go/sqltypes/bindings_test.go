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

package sqltypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBagPreservesOrder(t *testing.T) {
	bag := NewBag(1, "two", 3.0)
	assert.Equal(t, []any{1, "two", 3.0}, bag.Values())
	assert.Equal(t, 3, bag.Len())
}

func TestBagAppendDoesNotMutate(t *testing.T) {
	base := NewBag("a")
	grown := base.Append("b", "c")

	assert.Equal(t, []any{"a"}, base.Values())
	assert.Equal(t, []any{"a", "b", "c"}, grown.Values())
}

func TestBagMergeOrdersLeftThenRight(t *testing.T) {
	left := NewBag(1, 2)
	right := NewBag(3, 4)
	merged := left.Merge(right)

	assert.Equal(t, []any{1, 2, 3, 4}, merged.Values())
	// Neither input changed.
	assert.Equal(t, []any{1, 2}, left.Values())
	assert.Equal(t, []any{3, 4}, right.Values())
}

func TestBagValuesReturnsCopy(t *testing.T) {
	bag := NewBag("a", "b")
	vals := bag.Values()
	vals[0] = "mutated"

	assert.Equal(t, []any{"a", "b"}, bag.Values())
}

func TestRedactValues(t *testing.T) {
	out := RedactValues([]any{"secret", 42, nil})
	require.Len(t, out, 3)
	for _, v := range out {
		assert.Equal(t, Redacted, v)
	}

	assert.Nil(t, RedactValues(nil))
	assert.Nil(t, RedactValues([]any{}))
}
