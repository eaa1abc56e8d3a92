package object

import "github.com/google/btree"

type poolItem[T any] struct {
	id  ID
	obj T
}

func lessItem[T any](a, b poolItem[T]) bool { return a.id < b.id }

// Pool is an ordered index from id to object.
//
// Lookups are O(log n). A Pool is not safe for concurrent use; mutation
// happens only when objects of its kind are created or destroyed.
type Pool[T any] struct {
	tree *btree.BTreeG[poolItem[T]]
}

// NewPool returns an empty pool.
func NewPool[T any]() *Pool[T] {
	return &Pool[T]{tree: btree.NewG[poolItem[T]](8, lessItem[T])}
}

// Insert adds obj under id. It reports false if id is already taken, in
// which case the pool is unchanged.
func (p *Pool[T]) Insert(id ID, obj T) bool {
	if id == InvalidID {
		return false
	}
	if p.tree.Has(poolItem[T]{id: id}) {
		return false
	}
	p.tree.ReplaceOrInsert(poolItem[T]{id: id, obj: obj})
	return true
}

// Remove drops id from the pool and returns the object it named.
func (p *Pool[T]) Remove(id ID) (T, bool) {
	it, ok := p.tree.Delete(poolItem[T]{id: id})
	return it.obj, ok
}

// Lookup returns the object named by id.
func (p *Pool[T]) Lookup(id ID) (T, bool) {
	it, ok := p.tree.Get(poolItem[T]{id: id})
	return it.obj, ok
}

// Len returns the number of registered objects.
func (p *Pool[T]) Len() int { return p.tree.Len() }

// Ascend calls fn for each object in id order until fn returns false.
func (p *Pool[T]) Ascend(fn func(ID, T) bool) {
	p.tree.Ascend(func(it poolItem[T]) bool { return fn(it.id, it.obj) })
}
