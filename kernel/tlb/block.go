package tlb

import "nucleus/kernel/fatal"

// Block is a naturally aligned range of physical memory handed to or
// regained from a table.
type Block struct {
	Base uint32
	Size uint32
}

// Donor supplies memory for second-level tables on demand.
type Donor interface {
	Donate(sizeLog2 uint) (Block, bool)
}

// BlockPool hands out fixed-size blocks carved from one region and takes
// regained blocks back for reuse.
type BlockPool struct {
	next     uint64
	end      uint64
	sizeLog2 uint
	freed    []Block
	out      int
}

// NewBlockPool carves blocks of 2^sizeLog2 bytes from [base, base+size).
func NewBlockPool(base, size uint32, sizeLog2 uint) *BlockPool {
	bs := uint32(1) << sizeLog2
	if base&(bs-1) != 0 {
		fatal.Raise("tlb", "block pool base %#x not aligned to %#x", base, bs)
	}
	return &BlockPool{
		next:     uint64(base),
		end:      uint64(base) + uint64(size&^(bs-1)),
		sizeLog2: sizeLog2,
	}
}

// Donate returns a block of at least 2^sizeLog2 bytes. Requests larger
// than the pool's block size cannot be served.
func (p *BlockPool) Donate(sizeLog2 uint) (Block, bool) {
	if sizeLog2 > p.sizeLog2 {
		return Block{}, false
	}
	if n := len(p.freed); n > 0 {
		b := p.freed[n-1]
		p.freed = p.freed[:n-1]
		p.out++
		return b, true
	}
	bs := uint64(1) << p.sizeLog2
	if p.next+bs > p.end {
		return Block{}, false
	}
	b := Block{Base: uint32(p.next), Size: uint32(bs)}
	p.next += bs
	p.out++
	return b, true
}

// Reclaim takes back a block previously donated by p.
func (p *BlockPool) Reclaim(b Block) {
	if b.Size != 1<<p.sizeLog2 {
		fatal.Raise("tlb", "reclaimed block %#x has size %#x, pool serves %#x", b.Base, b.Size, 1<<p.sizeLog2)
	}
	if p.out == 0 {
		fatal.Raise("tlb", "reclaimed block %#x was never donated", b.Base)
	}
	p.out--
	p.freed = append(p.freed, b)
}

// Available returns how many blocks can still be donated.
func (p *BlockPool) Available() int {
	return len(p.freed) + int((p.end-p.next)>>p.sizeLog2)
}

// Outstanding returns how many donated blocks have not come back.
func (p *BlockPool) Outstanding() int { return p.out }
