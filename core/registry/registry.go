// Package registry maps component names to factories. Components are built on
// first lookup and the result is memoised, so a factory runs at most once per
// registry. Lookups are safe for concurrent use.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrNotFound is returned when no factory is registered under a name.
var ErrNotFound = errors.New("component not registered")

// Factory builds a component.
type Factory[T any] func() (T, error)

type entry[T any] struct {
	factory Factory[T]
	once    sync.Once
	value   T
	err     error
}

// Registry is an in-memory name to component mapping.
type Registry[T any] struct {
	kind    string
	mu      sync.RWMutex
	entries map[string]*entry[T]
}

// New creates an empty registry. kind names the component type in errors.
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{
		kind:    kind,
		entries: make(map[string]*entry[T]),
	}
}

// Register adds a factory. Registering the same name twice is an error.
func (r *Registry[T]) Register(name string, factory Factory[T]) error {
	if name == "" {
		return fmt.Errorf("%s name must not be empty", r.kind)
	}
	if factory == nil {
		return fmt.Errorf("%s %q: factory must not be nil", r.kind, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%s %q is already registered", r.kind, name)
	}
	r.entries[name] = &entry[T]{factory: factory}
	return nil
}

// MustRegister is Register that panics on error. Meant for package level
// registration of static components.
func (r *Registry[T]) MustRegister(name string, factory Factory[T]) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// RegisterValue registers an already built component.
func (r *Registry[T]) RegisterValue(name string, value T) error {
	return r.Register(name, func() (T, error) { return value, nil })
}

// Get returns the component registered under name, building it on first use.
// A factory error is returned on every subsequent Get as well.
func (r *Registry[T]) Get(name string) (T, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s %q: %w", r.kind, name, ErrNotFound)
	}
	e.once.Do(func() {
		e.value, e.err = e.factory()
		if e.err != nil {
			e.err = fmt.Errorf("failed to build %s %q: %w", r.kind, name, e.err)
		}
	})
	return e.value, e.err
}

// Has reports whether name is registered.
func (r *Registry[T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Names returns the registered names in ascending order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}
