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

// Row is a single result record mapping column names to driver values.
// Values pass through from the driver untouched.
type Row map[string]any

// Result reports the outcome of a mutation statement.
type Result struct {
	// Success is true when the driver executed the statement without error.
	Success bool
	// RowsAffected is the driver-reported affected row count. Zero when the
	// driver does not support it.
	RowsAffected int64
}

// Redacted is the placeholder substituted for bind values in error messages
// and telemetry events.
const Redacted = "[REDACTED]"

// RedactValues returns a slice of the same length as values with every
// element replaced by the Redacted placeholder. Sensitive bind values never
// reach logs or listeners through this path.
func RedactValues(values []any) []any {
	if len(values) == 0 {
		return nil
	}
	out := make([]any, len(values))
	for i := range out {
		out[i] = Redacted
	}
	return out
}
