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

package connpool

import (
	"sync/atomic"
	"time"
)

// Pooled wraps a connection checked out of a Pool, tracking its age and idle
// time. The wrapper belongs to exactly one pool for its whole life.
type Pooled[C Connection] struct {
	pool      *Pool[C]
	conn      C
	createdAt time.Time
	// lastUsedAt is unix nanos, updated on every return to the pool.
	lastUsedAt atomic.Int64
}

func newPooled[C Connection](pool *Pool[C], conn C) *Pooled[C] {
	pc := &Pooled[C]{pool: pool, conn: conn, createdAt: time.Now()}
	pc.touch()
	return pc
}

// Conn returns the wrapped connection.
func (pc *Pooled[C]) Conn() C { return pc.conn }

// Age returns how long ago the connection was created.
func (pc *Pooled[C]) Age() time.Duration {
	return time.Since(pc.createdAt)
}

// IdleTime returns how long the connection has been unused.
func (pc *Pooled[C]) IdleTime() time.Duration {
	return time.Since(pc.lastUsed())
}

// Recycle returns the connection to its pool.
func (pc *Pooled[C]) Recycle() {
	pc.pool.Put(pc)
}

func (pc *Pooled[C]) touch() {
	pc.lastUsedAt.Store(time.Now().UnixNano())
}

func (pc *Pooled[C]) lastUsed() time.Time {
	return time.Unix(0, pc.lastUsedAt.Load())
}
