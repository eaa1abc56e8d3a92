package tlb

import "nucleus/kernel/fatal"

const (
	PageTableSizeLog2 = 10
	PageTableSize     = 1 << PageTableSizeLog2

	SmallPageSizeLog2 = 12
	SmallPageSize     = 1 << SmallPageSizeLog2

	pageTableEntries   = PageTableSize / 4
	pageTableMaxOffset = pageTableEntries<<SmallPageSizeLog2 - 1
	smallPageOffMask   = SmallPageSize - 1
)

// Second-level descriptor types.
type pageKind uint8

const (
	pageFault pageKind = iota
	pageSmall
	pageLarge
)

var (
	ptType1 = bitfield{1, 1}
	ptType2 = bitfield{0, 1}

	smallPagePA = bitfield{12, 20}

	smallPageLayout = layout{
		xn:   bitfield{0, 1},
		b:    bitfield{2, 1},
		c:    bitfield{3, 1},
		ap10: bitfield{4, 2},
		tex:  bitfield{6, 3},
		ap2:  bitfield{9, 1},
		s:    bitfield{10, 1},
		ng:   bitfield{11, 1},
	}
)

func pageKindOf(d uint32) pageKind {
	if ptType1.get(d) == 1 {
		return pageSmall
	}
	if ptType2.get(d) == 1 {
		return pageLarge
	}
	return pageFault
}

func smallPage(f Flags, pa uint32, cacheSupport bool) uint32 {
	d := smallPageLayout.encode(f, cacheSupport) | smallPagePA.masked(pa)
	ptType1.set(&d, 1)
	return d
}

// PageTable is a second-level table translating one 1MB section in 4KB pages.
type PageTable struct {
	base    uint32
	cache   bool
	entries [pageTableEntries]uint32
}

func newPageTable(base uint32, cacheSupport bool) *PageTable {
	if base&(PageTableSize-1) != 0 {
		fatal.Raise("tlb", "insufficient page table alignment at %#x", base)
	}
	return &PageTable{base: base, cache: cacheSupport}
}

// Base returns the physical address the table lives at.
func (pt *PageTable) Base() uint32 { return pt.base }

func (pt *PageTable) insertTranslation(vo, pa uint32, sizeLog2 uint, flags Flags) {
	if vo > pageTableMaxOffset {
		fatal.Raise("tlb", "invalid page table offset %#x", vo)
	}
	if sizeLog2 != SmallPageSizeLog2 {
		fatal.Raise("tlb", "translation size 2^%d not supported by page table", sizeLog2)
	}
	i := vo >> SmallPageSizeLog2
	d := smallPage(flags, pa, pt.cache)
	if pageKindOf(pt.entries[i]) != pageFault {
		// Threads faulting on the same page race to insert the same entry.
		if pt.entries[i] == d {
			return
		}
		fatal.Raise("tlb", "couldn't override page entry %#x with %#x at offset %#x", pt.entries[i], d, vo)
	}
	pt.entries[i] = d
}

func (pt *PageTable) removeRegion(vo uint32, size uint64) {
	end := uint64(vo) + size
	for off := uint64(vo); off < end && off <= pageTableMaxOffset; off = off&^smallPageOffMask + SmallPageSize {
		i := off >> SmallPageSizeLog2
		switch pageKindOf(pt.entries[i]) {
		case pageSmall:
			pt.entries[i] = 0
		case pageLarge:
			fatal.Raise("tlb", "removal of large pages not implemented (offset %#x)", off)
		}
	}
}

// Empty reports whether the table holds no valid translation.
func (pt *PageTable) Empty() bool {
	return pt.Pages() == 0
}

// Pages returns the number of valid translations.
func (pt *PageTable) Pages() int {
	n := 0
	for _, d := range pt.entries {
		if pageKindOf(d) != pageFault {
			n++
		}
	}
	return n
}

func (pt *PageTable) translate(vo uint32) (uint32, Flags, bool) {
	d := pt.entries[(vo&pageTableMaxOffset)>>SmallPageSizeLog2]
	if pageKindOf(d) != pageSmall {
		return 0, 0, false
	}
	return smallPagePA.masked(d) | vo&smallPageOffMask, smallPageLayout.decode(d), true
}

func pageTranslationSizeL2(vo, size uint32) uint {
	if vo&smallPageOffMask == 0 && size >= SmallPageSize {
		return SmallPageSizeLog2
	}
	fatal.Raise("tlb", "insufficient alignment or size: vo=%#x size=%#x", vo, size)
	return 0
}
