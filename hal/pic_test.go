package hal

import "testing"

func TestVirtualPICStartsMasked(t *testing.T) {
	p := NewVirtualPIC()
	p.Raise(IRQKeyboard)
	if _, ok := p.Take(); ok {
		t.Fatal("Take() returned a masked line")
	}
	if !p.Pending(IRQKeyboard) {
		t.Fatal("masked occurrence was dropped")
	}
	p.Unmask(IRQKeyboard)
	if irq, ok := p.Take(); !ok || irq != IRQKeyboard {
		t.Fatalf("Take() = %d, %v; want %d, true", irq, ok, IRQKeyboard)
	}
	if _, ok := p.Take(); ok {
		t.Fatal("Take() returned a line twice")
	}
}

func TestVirtualPICTakesLowestLine(t *testing.T) {
	p := NewVirtualPIC()
	for _, irq := range []uint{5, 2, 9} {
		p.Unmask(irq)
		p.Raise(irq)
	}
	p.Raise(2)
	var got []uint
	for {
		irq, ok := p.Take()
		if !ok {
			break
		}
		got = append(got, irq)
	}
	want := []uint{2, 5, 9}
	if len(got) != len(want) {
		t.Fatalf("Take() order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Take() order = %v, want %v", got, want)
		}
	}
	if p.Raised(2) != 2 {
		t.Fatalf("Raised(2) = %d, want 2", p.Raised(2))
	}
}

func TestVirtualPICMask(t *testing.T) {
	p := NewVirtualPIC()
	p.Unmask(3)
	if p.Masked(3) {
		t.Fatal("Masked(3) = true after Unmask")
	}
	p.Raise(3)
	p.Mask(3)
	if _, ok := p.Take(); ok {
		t.Fatal("Take() returned a line masked after it was raised")
	}
}

func TestVirtualPICRejectsBadLine(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Raise(NumIRQs) did not panic")
		}
	}()
	NewVirtualPIC().Raise(NumIRQs)
}
