// Package registry holds the runtime's capability collections: a generic
// named registry and the Catalog that attaches plugin bundles atomically.
package registry

import (
	"fmt"
	"sync"
)

// Registry is a concurrency-safe named collection that remembers insertion
// order. Register refuses duplicates; Set overwrites, for collections with
// last-registration-wins semantics.
type Registry[T any] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string
}

// New returns an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{
		items: make(map[string]T),
	}
}

// Register adds an item under a unique name.
func (r *Registry[T]) Register(name string, item T) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; exists {
		return fmt.Errorf("item with name '%s' already registered", name)
	}

	r.items[name] = item
	r.order = append(r.order, name)
	return nil
}

// Set adds or replaces an item, keeping the original insertion position on
// replace. Returns true when an existing item was overwritten.
func (r *Registry[T]) Set(name string, item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.items[name]
	if !exists {
		r.order = append(r.order, name)
	}
	r.items[name] = item
	return exists
}

// Get returns the item registered under name.
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.items[name]
	return item, exists
}

// Names returns the registered names in insertion order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Values returns the items in insertion order. The slice is a snapshot:
// safe to iterate without holding any lock.
func (r *Registry[T]) Values() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]T, 0, len(r.order))
	for _, name := range r.order {
		items = append(items, r.items[name])
	}
	return items
}

// Remove deletes an item by name.
func (r *Registry[T]) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; !exists {
		return fmt.Errorf("item '%s' not found", name)
	}

	delete(r.items, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of registered items.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.items)
}
