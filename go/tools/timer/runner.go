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

// Package timer provides Runner for executing a callback at regular
// intervals, used by the connection pools to prune stale connections.
package timer

import (
	"context"
	"sync"
	"time"
)

// Runner executes a callback every interval. The next run is scheduled only
// after the current one completes, so a slow callback stretches the period
// instead of piling up executions. Stop cancels the callback context and
// waits for an in-flight run to finish. A stopped Runner can be started
// again.
type Runner struct {
	interval time.Duration

	mu       sync.Mutex
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	timer    *time.Timer
	callback func(ctx context.Context)
	wg       sync.WaitGroup
}

// NewRunner returns a Runner with the given interval. The interval must be
// positive.
func NewRunner(interval time.Duration) *Runner {
	return &Runner{interval: interval}
}

// Start begins executing callback every interval. The callback receives a
// context derived from ctx that is cancelled by Stop. Returns false if the
// runner is already running.
func (r *Runner) Start(ctx context.Context, callback func(ctx context.Context)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return false
	}
	r.running = true
	r.callback = callback
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.schedule()
	return true
}

// Stop cancels the callback context, prevents further runs, and waits for an
// in-flight run to complete. Stop is idempotent.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.ctx = nil
	r.cancel = nil
	r.callback = nil
	r.mu.Unlock()

	r.wg.Wait()
}

// Running reports whether the runner is currently started.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// schedule arms the timer for the next run. Callers must hold r.mu.
func (r *Runner) schedule() {
	r.timer = time.AfterFunc(r.interval, r.run)
}

func (r *Runner) run() {
	r.mu.Lock()
	if !r.running || r.ctx == nil {
		r.mu.Unlock()
		return
	}
	r.wg.Add(1)
	defer r.wg.Done()

	callback := r.callback
	ctx := r.ctx
	// Run without the lock so Stop is never blocked behind the callback.
	r.mu.Unlock()

	callback(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.schedule()
}
