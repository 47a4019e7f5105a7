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

package events

import (
	"context"
	"log/slog"
	"sync"
)

// Listener handles one event. A listener returning an error or panicking is
// logged and never affects the caller or other listeners.
type Listener func(ctx context.Context, ev Event) error

// subscription keeps a listener together with the event name it matches.
// An empty name matches every event. Keeping all subscriptions in one slice
// preserves overall registration order across On and OnAll.
type subscription struct {
	name     string
	listener Listener
}

// Dispatcher delivers events synchronously, in registration order, with each
// listener running inside its own failure boundary. A nil *Dispatcher is
// valid and drops all events, so components can hold one unconditionally.
type Dispatcher struct {
	logger      *slog.Logger
	rawBindings bool

	mu   sync.RWMutex
	subs []subscription
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger used to report listener failures.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithRawBindings opts event producers into embedding raw bind values in
// query events instead of redacted placeholders. Off by default.
func WithRawBindings() DispatcherOption {
	return func(d *Dispatcher) { d.rawBindings = true }
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher(opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RedactBindings reports whether query events produced for this dispatcher
// should carry redacted bind values. True unless WithRawBindings was set, and
// true for a nil dispatcher.
func (d *Dispatcher) RedactBindings() bool {
	return d == nil || !d.rawBindings
}

// On registers a listener for events with the given name.
func (d *Dispatcher) On(name string, l Listener) {
	if d == nil || l == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, subscription{name: name, listener: l})
}

// OnAll registers a listener for every event.
func (d *Dispatcher) OnAll(l Listener) {
	d.On("", l)
}

// Dispatch delivers ev to all matching listeners in registration order. It
// always returns normally: listener errors and panics are logged and
// contained per listener, so a failing listener cannot starve the ones
// registered after it.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	if d == nil || ev == nil {
		return
	}
	d.mu.RLock()
	subs := make([]subscription, len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()

	for _, s := range subs {
		if s.name != "" && s.name != ev.Name() {
			continue
		}
		d.deliver(ctx, ev, s.listener)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event, l Listener) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event listener panicked",
				"event", ev.Name(),
				"correlation_id", ev.CorrelationID(),
				"panic", r,
			)
		}
	}()
	if err := l(ctx, ev); err != nil {
		d.logger.Error("event listener failed",
			"event", ev.Name(),
			"correlation_id", ev.CorrelationID(),
			"error", err,
		)
	}
}
