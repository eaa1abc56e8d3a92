// Package irq binds hardware interrupt lines to their exclusive owners.
package irq

import (
	"errors"
	"fmt"

	"nucleus/kernel/fatal"
	"nucleus/kernel/object"
)

var (
	ErrOwned      = errors.New("irq: line owned by another entity")
	ErrNotOwner   = errors.New("irq: caller does not own the line")
	ErrNoIRQ      = errors.New("irq: caller owns no line")
	ErrHasIRQ     = errors.New("irq: caller already owns a different line")
	ErrNoSuchLine = errors.New("irq: no such line")
)

// Controller is the interrupt controller the table arms and disarms lines on.
// Lines 0 through Lines()-1 exist.
type Controller interface {
	Mask(irq uint)
	Unmask(irq uint)
	Lines() uint
}

// Handler is told when its owner starts waiting and when the line fired.
type Handler interface {
	AwaitsIRQ()
	ReceivedIRQ()
}

// ToID translates an interrupt number into its registry id. Id 0 stays
// reserved, so line n is registered under n+1.
func ToID(irq uint) object.ID { return object.ID(irq + 1) }

// FromID is the inverse of ToID.
func FromID(id object.ID) uint { return uint(id - 1) }

// Table is the registry of claimed lines.
type Table struct {
	owners *object.Pool[*Owner]
	pic    Controller
}

// NewTable returns an empty table driving pic.
func NewTable(pic Controller) *Table {
	return &Table{owners: object.NewPool[*Owner](), pic: pic}
}

// Owner returns the owner of irq, if any.
func (t *Table) Owner(irq uint) (*Owner, bool) {
	if irq >= t.pic.Lines() {
		return nil, false
	}
	return t.owners.Lookup(ToID(irq))
}

// Receive is called from the interrupt dispatch path. It masks the line
// and wakes its owner if the owner was waiting. It reports whether an owner
// was woken.
func (t *Table) Receive(irq uint) bool {
	o, ok := t.Owner(irq)
	if !ok {
		return false
	}
	fatal.Assert(o.id == ToID(irq), "irq", "owner of line %d registered as %d", irq, o.id)
	t.pic.Mask(irq)
	if !o.waiting {
		o.pending = true
		return false
	}
	o.waiting = false
	o.h.ReceivedIRQ()
	return true
}

// Owner is the IRQ slot of one entity. It owns at most one line.
type Owner struct {
	t       *Table
	h       Handler
	id      object.ID
	waiting bool
	pending bool
}

// Init attaches the slot to a table.
func (o *Owner) Init(t *Table, h Handler) {
	*o = Owner{t: t, h: h}
}

// Handler returns the entity the slot belongs to.
func (o *Owner) Handler() Handler { return o.h }

// IRQ returns the owned line.
func (o *Owner) IRQ() (uint, bool) {
	if o.id == object.InvalidID {
		return 0, false
	}
	return FromID(o.id), true
}

// Waiting reports whether the owner is blocked on its line.
func (o *Owner) Waiting() bool { return o.waiting }

// Allocate claims irq. Claiming the line o already owns succeeds. The line
// stays masked until the owner awaits it.
func (o *Owner) Allocate(irq uint) error {
	if irq >= o.t.pic.Lines() {
		return fmt.Errorf("allocate %d: %w", irq, ErrNoSuchLine)
	}
	id := ToID(irq)
	if o.id != object.InvalidID {
		if o.id == id {
			return nil
		}
		return fmt.Errorf("allocate %d: %w", irq, ErrHasIRQ)
	}
	if !o.t.owners.Insert(id, o) {
		return fmt.Errorf("allocate %d: %w", irq, ErrOwned)
	}
	o.t.pic.Mask(irq)
	o.id = id
	o.pending = false
	return nil
}

// Free releases irq if o owns it.
func (o *Owner) Free(irq uint) error {
	if o.id == object.InvalidID || o.id != ToID(irq) {
		return fmt.Errorf("free %d: %w", irq, ErrNotOwner)
	}
	o.t.pic.Mask(irq)
	o.t.owners.Remove(o.id)
	o.id = object.InvalidID
	o.waiting = false
	o.pending = false
	return nil
}

// Await arms the owned line and blocks the owner until it fires. An
// occurrence that arrived while the owner was not waiting completes the
// wait at once.
func (o *Owner) Await() error {
	irq, ok := o.IRQ()
	if !ok {
		return ErrNoIRQ
	}
	if o.pending {
		o.pending = false
		o.h.ReceivedIRQ()
		return nil
	}
	o.waiting = true
	o.h.AwaitsIRQ()
	o.t.pic.Unmask(irq)
	return nil
}

// Cancel ends a wait without an occurrence. It reports whether o was waiting.
func (o *Owner) Cancel() bool {
	if !o.waiting {
		return false
	}
	o.waiting = false
	if irq, ok := o.IRQ(); ok {
		o.t.pic.Mask(irq)
	}
	return true
}
