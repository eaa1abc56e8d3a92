// Package sched implements the round-robin CPU scheduler.
//
// Every listed entry receives one full lap of time before any entry gets a
// second one. The idle entry runs when nothing else is runnable; an optional
// VM entry takes precedence over idle but never joins the round robin.
package sched

import "nucleus/kernel/fatal"

// Role is the part an entry plays in a scheduler.
type Role uint8

const (
	RoleNone Role = iota
	RoleIdle
	RoleVM
	RoleNormal
)

func (r Role) String() string {
	switch r {
	case RoleIdle:
		return "idle"
	case RoleVM:
		return "vm"
	case RoleNormal:
		return "normal"
	default:
		return "none"
	}
}

// Scheduler picks the next entry to run.
//
// It is not safe for concurrent use; the kernel calls it from one
// control path at a time.
type Scheduler[T any] struct {
	idle    *Entry[T]
	vm      *Entry[T]
	entries list[T]
	lap     uint
}

// New returns a scheduler with the mandatory idle entry and the time every
// entry gets per lap.
func New[T any](idle *Entry[T], lap uint) *Scheduler[T] {
	fatal.Assert(idle != nil, "sched", "missing idle entry")
	fatal.Assert(lap > 0, "sched", "zero lap time")
	return &Scheduler[T]{idle: idle, lap: lap}
}

// Lap returns the quantum granted per lap.
func (s *Scheduler[T]) Lap() uint { return s.lap }

// Len returns the number of entries in the round robin.
func (s *Scheduler[T]) Len() int { return s.entries.n }

// Idle returns the idle entry.
func (s *Scheduler[T]) Idle() *Entry[T] { return s.idle }

// NextEntry charges consumed time to the current head and returns the entry
// to run next along with the time it may use.
func (s *Scheduler[T]) NextEntry(consumed uint) (*Entry[T], uint) {
	e := s.entries.head
	if e == nil {
		if s.vm != nil {
			return s.vm, s.lap
		}
		return s.idle, s.lap
	}
	e.consume(consumed)
	for e.quota == 0 {
		e.quota = s.lap
		s.entries.headToTail()
		e = s.entries.head
	}
	return e, e.quota
}

// CurrentEntry returns the entry that runs now, without changing state.
func (s *Scheduler[T]) CurrentEntry() *Entry[T] {
	if e := s.entries.head; e != nil {
		return e
	}
	if s.vm != nil {
		return s.vm
	}
	return s.idle
}

// Insert makes e runnable with a full quantum at the end of the lap.
// Inserting the idle or VM entry is a no-op.
func (s *Scheduler[T]) Insert(e *Entry[T]) {
	if e == s.idle || e == s.vm {
		return
	}
	e.quota = s.lap
	s.entries.insertTail(e)
}

// Remove takes e out of the round robin.
func (s *Scheduler[T]) Remove(e *Entry[T]) { s.entries.remove(e) }

// Yield gives up the rest of the head's quantum; it cycles out at the next
// NextEntry call.
func (s *Scheduler[T]) Yield() {
	if e := s.entries.head; e != nil {
		e.quota = 0
	}
}

// SetVM installs e as the VM entry, or clears it when e is nil.
func (s *Scheduler[T]) SetVM(e *Entry[T]) {
	if e != nil {
		s.entries.remove(e)
	}
	s.vm = e
}

// VM returns the VM entry, if any.
func (s *Scheduler[T]) VM() *Entry[T] { return s.vm }

// Role reports how e participates in this scheduler.
func (s *Scheduler[T]) Role(e *Entry[T]) Role {
	switch {
	case e == s.idle:
		return RoleIdle
	case e == s.vm:
		return RoleVM
	case e.list == &s.entries:
		return RoleNormal
	default:
		return RoleNone
	}
}

// Each visits the run list from head to tail until fn returns false.
func (s *Scheduler[T]) Each(fn func(*Entry[T]) bool) {
	for e := s.entries.head; e != nil; e = e.next {
		if !fn(e) {
			return
		}
	}
}
