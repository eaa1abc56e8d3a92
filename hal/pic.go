package hal

import (
	"fmt"
	"sync"
)

// VirtualPIC is a level-less interrupt controller: peripherals Raise a line
// from any goroutine, and the kernel Takes the lowest pending unmasked line
// between steps. Lines start masked.
type VirtualPIC struct {
	mu      sync.Mutex
	masked  uint32
	pending uint32
	raised  [NumIRQs]uint64
}

// NewVirtualPIC returns a controller with every line masked.
func NewVirtualPIC() *VirtualPIC {
	return &VirtualPIC{masked: ^uint32(0)}
}

func checkLine(irq uint) {
	if irq >= NumIRQs {
		panic(fmt.Sprintf("hal: irq %d out of range", irq))
	}
}

// Lines returns the number of lines the controller has.
func (p *VirtualPIC) Lines() uint { return NumIRQs }

// Mask stops irq from being taken. An occurrence stays pending.
func (p *VirtualPIC) Mask(irq uint) {
	checkLine(irq)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.masked |= 1 << irq
}

// Unmask lets a pending irq be taken.
func (p *VirtualPIC) Unmask(irq uint) {
	checkLine(irq)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.masked &^= 1 << irq
}

// Masked reports whether irq is masked.
func (p *VirtualPIC) Masked(irq uint) bool {
	checkLine(irq)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.masked&(1<<irq) != 0
}

// Raise marks irq pending. Raising a pending line again is absorbed.
func (p *VirtualPIC) Raise(irq uint) {
	checkLine(irq)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending |= 1 << irq
	p.raised[irq]++
}

// Take acknowledges the lowest pending unmasked line.
func (p *VirtualPIC) Take() (uint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ready := p.pending &^ p.masked
	if ready == 0 {
		return 0, false
	}
	for irq := uint(0); irq < NumIRQs; irq++ {
		if ready&(1<<irq) != 0 {
			p.pending &^= 1 << irq
			return irq, true
		}
	}
	return 0, false
}

// Pending reports whether irq was raised and not yet taken.
func (p *VirtualPIC) Pending(irq uint) bool {
	checkLine(irq)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending&(1<<irq) != 0
}

// Raised returns how often irq was raised.
func (p *VirtualPIC) Raised(irq uint) uint64 {
	checkLine(irq)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.raised[irq]
}
