package irq

import (
	"errors"
	"testing"
)

type fakePIC struct {
	masked map[uint]bool
}

func newFakePIC() *fakePIC { return &fakePIC{masked: map[uint]bool{}} }

func (p *fakePIC) Mask(irq uint)   { p.masked[irq] = true }
func (p *fakePIC) Unmask(irq uint) { p.masked[irq] = false }
func (p *fakePIC) Lines() uint     { return 16 }

type waiter struct {
	blocked bool
	fired   int
}

func (w *waiter) AwaitsIRQ()   { w.blocked = true }
func (w *waiter) ReceivedIRQ() { w.blocked = false; w.fired++ }

func newOwner(t *Table) (*Owner, *waiter) {
	w := &waiter{}
	o := &Owner{}
	o.Init(t, w)
	return o, w
}

func TestAllocateIsExclusive(t *testing.T) {
	tab := NewTable(newFakePIC())
	a, _ := newOwner(tab)
	b, _ := newOwner(tab)

	if err := a.Allocate(5); err != nil {
		t.Fatalf("a.Allocate(5) = %v", err)
	}
	if err := b.Allocate(5); !errors.Is(err, ErrOwned) {
		t.Fatalf("b.Allocate(5) = %v, want ErrOwned", err)
	}
	if err := a.Allocate(5); err != nil {
		t.Fatalf("re-allocating own line = %v, want nil", err)
	}
	if err := a.Allocate(6); !errors.Is(err, ErrHasIRQ) {
		t.Fatalf("a.Allocate(6) = %v, want ErrHasIRQ", err)
	}
	if err := b.Free(5); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("b.Free(5) = %v, want ErrNotOwner", err)
	}
	if err := a.Free(5); err != nil {
		t.Fatalf("a.Free(5) = %v", err)
	}
	if err := b.Allocate(5); err != nil {
		t.Fatalf("b.Allocate(5) after free = %v", err)
	}
	if o, ok := tab.Owner(5); !ok || o != b {
		t.Fatalf("Owner(5) = %p, %v; want b", o, ok)
	}
}

func TestAllocateRejectsUnknownLine(t *testing.T) {
	pic := newFakePIC()
	tab := NewTable(pic)
	o, _ := newOwner(tab)

	for _, line := range []uint{16, 40} {
		if err := o.Allocate(line); !errors.Is(err, ErrNoSuchLine) {
			t.Fatalf("Allocate(%d) = %v, want ErrNoSuchLine", line, err)
		}
		if _, ok := tab.Owner(line); ok {
			t.Fatalf("Owner(%d) reports an owner", line)
		}
		if pic.masked[line] {
			t.Fatalf("line %d touched at the controller", line)
		}
	}
	if _, ok := o.IRQ(); ok {
		t.Fatal("IRQ() reports a line after rejected allocations")
	}
	if err := o.Allocate(15); err != nil {
		t.Fatalf("Allocate(15) = %v", err)
	}
}

func TestLineZeroUsesReservedOffset(t *testing.T) {
	if ToID(0) != 1 || FromID(ToID(0)) != 0 {
		t.Fatalf("ToID(0) = %d", ToID(0))
	}
	tab := NewTable(newFakePIC())
	o, _ := newOwner(tab)
	if err := o.Allocate(0); err != nil {
		t.Fatalf("Allocate(0) = %v", err)
	}
	if irq, ok := o.IRQ(); !ok || irq != 0 {
		t.Fatalf("IRQ() = %d, %v", irq, ok)
	}
}

func TestAwaitAndReceive(t *testing.T) {
	pic := newFakePIC()
	tab := NewTable(pic)
	o, w := newOwner(tab)

	if err := o.Await(); !errors.Is(err, ErrNoIRQ) {
		t.Fatalf("Await() without line = %v, want ErrNoIRQ", err)
	}
	o.Allocate(9)
	if !pic.masked[9] {
		t.Fatal("allocated line not masked")
	}
	if err := o.Await(); err != nil {
		t.Fatalf("Await() = %v", err)
	}
	if !w.blocked || pic.masked[9] {
		t.Fatalf("after Await blocked=%v masked=%v", w.blocked, pic.masked[9])
	}
	if !tab.Receive(9) {
		t.Fatal("Receive(9) did not wake the owner")
	}
	if w.blocked || w.fired != 1 || !pic.masked[9] {
		t.Fatalf("after Receive blocked=%v fired=%d masked=%v", w.blocked, w.fired, pic.masked[9])
	}
	if tab.Receive(3) {
		t.Fatal("Receive on unowned line woke someone")
	}
}

func TestLatchedOccurrenceCompletesAwait(t *testing.T) {
	tab := NewTable(newFakePIC())
	o, w := newOwner(tab)
	o.Allocate(2)
	if tab.Receive(2) {
		t.Fatal("Receive woke an owner that was not waiting")
	}
	o.Await()
	if w.blocked || w.fired != 1 {
		t.Fatalf("latched occurrence: blocked=%v fired=%d", w.blocked, w.fired)
	}
}

func TestCancel(t *testing.T) {
	tab := NewTable(newFakePIC())
	o, _ := newOwner(tab)
	if o.Cancel() {
		t.Fatal("Cancel() on idle owner = true")
	}
	o.Allocate(4)
	o.Await()
	if !o.Cancel() || o.Waiting() {
		t.Fatal("Cancel() did not end the wait")
	}
}
