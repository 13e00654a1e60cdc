// Package scheduler defines the deferred-execution contract the deletion
// machinery hands work off to: a named unit of work invoked later with
// serialized arguments, delivered at least once. An in-process
// implementation backed by goroutines is included for tests and embedded
// use; production deployments plug in their own transport.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Scheduler enqueues a named unit of work to run after a delay with the
// given serialized arguments. Delivery is at-least-once: handlers must be
// safe to re-run with the same arguments.
type Scheduler interface {
	RunAfter(ctx context.Context, delay time.Duration, name string, args []byte) error
}

// HandlerFunc is one named unit of work.
type HandlerFunc func(ctx context.Context, args []byte) error

// Registry maps unit-of-work names to handlers. Registration happens at
// startup; lookups are concurrency-safe.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]HandlerFunc)}
}

// Register binds a handler to a name. Registering a name twice is a
// programming error and panics.
func (r *Registry) Register(name string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[name]; ok {
		panic(fmt.Sprintf("scheduler: handler %q registered twice", name))
	}
	r.handlers[name] = fn
}

// Lookup returns the handler bound to name.
func (r *Registry) Lookup(name string) (HandlerFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("scheduler: no handler registered for %q", name)
	}
	return fn, nil
}
