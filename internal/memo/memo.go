/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package memo provides run-scoped memoization with request coalescing.
//
// A Group stores the in-flight call for a key, not just its eventual value,
// so a caller asking for a key that is still being computed attaches to the
// pending call instead of issuing a second one. Results, including errors,
// are kept for the lifetime of the Group.
package memo

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"
)

// Observer is notified of every lookup. hit is false for the caller that
// started the computation and true for every caller that reused it.
type Observer interface {
	ObserveCacheLookup(cache string, hit bool)
}

type call[V any] struct {
	done chan struct{}
	val  V
	err  error
}

// Group memoizes one call per key.
type Group[K comparable, V any] struct {
	name     string
	observer Observer
	calls    *xsync.Map[K, *call[V]]
	started  atomic.Int64
}

// New creates a Group. observer may be nil.
func New[K comparable, V any](name string, observer Observer) *Group[K, V] {
	return &Group[K, V]{
		name:     name,
		observer: observer,
		calls:    xsync.NewMap[K, *call[V]](),
	}
}

// Do returns the memoized result for key, running fn if no call for key has
// been started yet. fn runs on the goroutine of the first caller; later
// callers block until it finishes or their own ctx is done.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func(context.Context) (V, error)) (V, error) {
	c := &call[V]{done: make(chan struct{})}
	actual, loaded := g.calls.LoadOrStore(key, c)
	if g.observer != nil {
		g.observer.ObserveCacheLookup(g.name, loaded)
	}

	if !loaded {
		g.started.Add(1)
		g.run(ctx, c, fn)
	}

	select {
	case <-actual.done:
		return actual.val, actual.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (g *Group[K, V]) run(ctx context.Context, c *call[V], fn func(context.Context) (V, error)) {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			c.err = fmt.Errorf("%s: call panicked: %v", g.name, r)
			panic(r)
		}
	}()
	c.val, c.err = fn(ctx)
}

// Started reports how many distinct computations the Group has started.
func (g *Group[K, V]) Started() int {
	return int(g.started.Load())
}

// Lazy memoizes a single value with the same coalescing rules as Group.
type Lazy[V any] struct {
	g *Group[struct{}, V]
}

// NewLazy creates a Lazy. observer may be nil.
func NewLazy[V any](name string, observer Observer) *Lazy[V] {
	return &Lazy[V]{g: New[struct{}, V](name, observer)}
}

// Get returns the memoized value, computing it with fn on first use.
func (l *Lazy[V]) Get(ctx context.Context, fn func(context.Context) (V, error)) (V, error) {
	return l.g.Do(ctx, struct{}{}, fn)
}

// Started reports whether the value has been requested (0 or 1).
func (l *Lazy[V]) Started() int {
	return l.g.Started()
}
