package object

import (
	"fmt"

	"nucleus/kernel/fatal"
)

// Kind pairs a private id allocator with a registry for all objects of one
// kind. The kernel owns one Kind per object type; objects register when
// they are created and deregister when they are destroyed.
type Kind[T any] struct {
	name string
	ids  *Allocator
	pool *Pool[T]
}

// NewKind returns a kind that holds at most max live objects.
func NewKind[T any](name string, max int) *Kind[T] {
	return &Kind[T]{
		name: name,
		ids:  NewAllocator(max),
		pool: NewPool[T](),
	}
}

// Name returns the kind name used in diagnostics.
func (k *Kind[T]) Name() string { return k.name }

// Register assigns obj a fresh id and makes it reachable through Lookup.
func (k *Kind[T]) Register(obj T) (ID, error) {
	id, err := k.ids.Alloc()
	if err != nil {
		return InvalidID, fmt.Errorf("%s: %w", k.name, err)
	}
	if !k.pool.Insert(id, obj) {
		fatal.Raise("object", "%s id %d registered twice", k.name, id)
	}
	return id, nil
}

// Deregister removes id and releases it for reuse.
func (k *Kind[T]) Deregister(id ID) error {
	if _, ok := k.pool.Remove(id); !ok {
		return fmt.Errorf("%s: deregister %d: %w", k.name, id, ErrNotAllocated)
	}
	return k.ids.Free(id)
}

// Lookup returns the live object named by id.
func (k *Kind[T]) Lookup(id ID) (T, bool) { return k.pool.Lookup(id) }

// Len returns the number of live objects.
func (k *Kind[T]) Len() int { return k.pool.Len() }

// Cap returns the maximum number of live objects.
func (k *Kind[T]) Cap() int { return k.ids.Cap() }

// Each visits live objects in id order.
func (k *Kind[T]) Each(fn func(ID, T) bool) { k.pool.Ascend(fn) }
