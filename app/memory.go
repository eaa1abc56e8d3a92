package app

import (
	"nucleus/kernel"
	"nucleus/kernel/tlb"
)

// Physical memory map of the demo board.
const (
	ramBase = 0x00000000
	ramSize = 0x04000000

	mmioBase = 0x10000000
	mmioSize = tlb.SectionSize

	coreTable     = 0x00004000
	userTableBase = 0x00008000

	tableMemBase = 0x00100000
	tableMemSize = 0x00010000

	frameBase = 0x01000000
	frameSize = 0x01000000
)

// Virtual layout of user protection domains.
const (
	heapBase = 0x00400000
	heapSize = 0x00400000
)

// frameAllocator hands out small pages of user memory to the pager.
type frameAllocator struct {
	pool *tlb.BlockPool
}

func newFrameAllocator() *frameAllocator {
	return &frameAllocator{pool: tlb.NewBlockPool(frameBase, frameSize, tlb.SmallPageSizeLog2)}
}

// resolve decides a fault: heap addresses get a fresh writable page,
// anything else is denied.
func (a *frameAllocator) resolve(f kernel.Pagefault) kernel.Mapping {
	if f.VA < heapBase || f.VA-heapBase >= heapSize {
		return kernel.Mapping{Deny: true}
	}
	b, ok := a.pool.Donate(tlb.SmallPageSizeLog2)
	if !ok {
		return kernel.Mapping{Deny: true}
	}
	return kernel.Mapping{PA: b.Base, SizeLog2: tlb.SmallPageSizeLog2, Writable: true}
}

func coreAreas() []kernel.Area {
	return []kernel.Area{
		{Base: ramBase, Size: ramSize},
		{Base: mmioBase, Size: mmioSize, IO: true},
	}
}
