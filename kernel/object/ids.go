// Package object hands out small integer identities for kernel objects and
// maps them back to the objects they name.
package object

import (
	"errors"
	"fmt"
	"math/bits"
)

// ID identifies a kernel object among the live objects of its kind.
type ID uint32

// InvalidID is never assigned.
const InvalidID ID = 0

var (
	ErrExhausted    = errors.New("object: id space exhausted")
	ErrInvalidID    = errors.New("object: id out of range")
	ErrNotAllocated = errors.New("object: id not allocated")
)

// Allocator manages a fixed set of ids in [1, max].
//
// Alloc always returns the lowest free id. A rolling first-free hint keeps
// repeated allocation cheap.
type Allocator struct {
	max       ID
	used      []uint64
	firstFree ID
	inUse     int
}

// NewAllocator returns an allocator for ids 1..max.
func NewAllocator(max int) *Allocator {
	if max <= 0 {
		max = 1
	}
	return &Allocator{
		max:       ID(max),
		used:      make([]uint64, (max+1+63)/64),
		firstFree: 1,
	}
}

// Cap returns the number of ids the allocator can hand out.
func (a *Allocator) Cap() int { return int(a.max) }

// InUse returns the number of outstanding ids.
func (a *Allocator) InUse() int { return a.inUse }

func (a *Allocator) valid(id ID) bool { return id >= 1 && id <= a.max }

func (a *Allocator) isUsed(id ID) bool {
	return a.used[id/64]&(1<<(id%64)) != 0
}

// Alloc reserves the lowest free id.
func (a *Allocator) Alloc() (ID, error) {
	if !a.valid(a.firstFree) {
		return InvalidID, ErrExhausted
	}
	id := a.firstFree
	a.used[id/64] |= 1 << (id % 64)
	a.inUse++
	a.firstFree = a.nextFree(id + 1)
	return id, nil
}

// nextFree scans for the first free id at or above from, a whole word at a time.
func (a *Allocator) nextFree(from ID) ID {
	for from <= a.max {
		word := a.used[from/64] | (1<<(from%64) - 1)
		if word != ^uint64(0) {
			id := from&^63 + ID(bits.TrailingZeros64(^word))
			if id > a.max {
				break
			}
			return id
		}
		from = (from | 63) + 1
	}
	return a.max + 1
}

// Free releases id for reuse.
func (a *Allocator) Free(id ID) error {
	if !a.valid(id) {
		return fmt.Errorf("free %d: %w", id, ErrInvalidID)
	}
	if !a.isUsed(id) {
		return fmt.Errorf("free %d: %w", id, ErrNotAllocated)
	}
	a.used[id/64] &^= 1 << (id % 64)
	a.inUse--
	if id < a.firstFree {
		a.firstFree = id
	}
	return nil
}

// Allocated reports whether id is currently outstanding.
func (a *Allocator) Allocated(id ID) bool {
	return a.valid(id) && a.isUsed(id)
}
