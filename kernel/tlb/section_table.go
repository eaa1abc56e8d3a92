package tlb

import (
	"fmt"

	"nucleus/kernel/fatal"
)

const (
	SectionTableSizeLog2 = 14
	SectionTableSize     = 1 << SectionTableSizeLog2

	SectionSizeLog2 = 20
	SectionSize     = 1 << SectionSizeLog2

	sectionTableEntries = SectionTableSize / 4
	sectionOffMask      = SectionSize - 1

	// MaxCostsPerTranslation is the most table memory one insertion may need.
	MaxCostsPerTranslation = PageTableSize
)

// SlotKind is the type of a first-level descriptor.
type SlotKind uint8

const (
	SlotFault SlotKind = iota
	SlotPageTable
	SlotSection
	SlotSupersection
)

func (k SlotKind) String() string {
	switch k {
	case SlotFault:
		return "fault"
	case SlotPageTable:
		return "page-table"
	case SlotSection:
		return "section"
	case SlotSupersection:
		return "supersection"
	}
	return fmt.Sprintf("SlotKind(%d)", uint8(k))
}

var (
	sectionType     = bitfield{0, 2}
	supersectionBit = bitfield{18, 1}

	linkDomain = bitfield{5, 4}
	linkPA     = bitfield{10, 22}

	sectionDomain = bitfield{5, 4}
	sectionPA     = bitfield{20, 12}

	sectionLayout = layout{
		xn:   bitfield{4, 1},
		b:    bitfield{2, 1},
		c:    bitfield{3, 1},
		ap10: bitfield{10, 2},
		tex:  bitfield{12, 3},
		ap2:  bitfield{15, 1},
		s:    bitfield{16, 1},
		ng:   bitfield{17, 1},
	}
)

func slotKindOf(d uint32) SlotKind {
	switch sectionType.get(d) {
	case 1:
		return SlotPageTable
	case 2:
		if supersectionBit.get(d) == 1 {
			return SlotSupersection
		}
		return SlotSection
	}
	return SlotFault
}

func pageTableLink(pa uint32) uint32 {
	return sectionType.bits(1) | linkDomain.bits(0) | linkPA.masked(pa)
}

func section(f Flags, pa uint32, cacheSupport bool) uint32 {
	return sectionType.bits(2) | sectionDomain.bits(0) | sectionLayout.encode(f, cacheSupport) | sectionPA.masked(pa)
}

// MemoryRequest reports that an operation needs 2^SizeLog2 bytes of table
// memory to proceed at virtual address VO.
type MemoryRequest struct {
	VO       uint32
	SizeLog2 uint
}

func (r *MemoryRequest) Error() string {
	return fmt.Sprintf("tlb: %#x needs %d bytes of table memory", r.VO, 1<<r.SizeLog2)
}

// SectionTable is a first-level translation table.
type SectionTable struct {
	base    uint32
	cache   bool
	entries [sectionTableEntries]uint32
	tables  map[uint32]*PageTable
}

// NewSectionTable returns an empty table that lives at the physical address
// base. cacheSupport selects whether cacheable flags produce cached memory
// attributes.
func NewSectionTable(base uint32, cacheSupport bool) *SectionTable {
	if base&(SectionTableSize-1) != 0 {
		fatal.Raise("tlb", "insufficient section table alignment at %#x", base)
	}
	return &SectionTable{base: base, cache: cacheSupport, tables: make(map[uint32]*PageTable)}
}

// Base returns the physical address the table lives at.
func (st *SectionTable) Base() uint32 { return st.base }

// InsertTranslation maps 2^sizeLog2 bytes at vo to pa. Page translations
// need a second-level table. If none exists yet, extra must provide the
// memory for one; without it the call changes nothing and returns the size
// needed with ok false. extra is left untouched when it is not needed, so
// callers probe with nil first.
//
// Re-inserting an identical translation is a no-op. Any other overlap with
// a valid translation is fatal.
func (st *SectionTable) InsertTranslation(vo, pa uint32, sizeLog2 uint, flags Flags, extra *Block) (needLog2 uint, ok bool) {
	i := vo >> SectionSizeLog2
	switch {
	case sizeLog2 < SectionSizeLog2:
		d := st.entries[i]
		if slotKindOf(d) == SlotPageTable {
			st.tables[linkPA.masked(d)].insertTranslation(vo&sectionOffMask, pa, sizeLog2, flags)
			return 0, true
		}
		if slotKindOf(d) != SlotFault {
			fatal.Raise("tlb", "couldn't override %v entry %#x at %#x with a page table", slotKindOf(d), d, vo)
		}
		if extra == nil {
			return PageTableSizeLog2, false
		}
		if extra.Size < PageTableSize {
			fatal.Raise("tlb", "donated block %#x too small for a page table", extra.Base)
		}
		pt := newPageTable(extra.Base, st.cache)
		// The table is complete before the link is published.
		pt.insertTranslation(vo&sectionOffMask, pa, sizeLog2, flags)
		st.tables[pt.base] = pt
		st.entries[i] = pageTableLink(pt.base)
		return 0, true

	case sizeLog2 == SectionSizeLog2:
		d := section(flags, pa, st.cache)
		if slotKindOf(st.entries[i]) != SlotFault {
			if st.entries[i] == d {
				return 0, true
			}
			fatal.Raise("tlb", "couldn't override entry %#x with %#x at %#x", st.entries[i], d, vo)
		}
		st.entries[i] = d
		return 0, true
	}
	fatal.Raise("tlb", "translation size 2^%d not supported", sizeLog2)
	return 0, false
}

// Accepts reports whether InsertTranslation would take the translation
// without a fatal error: the size is a small page or a section, vo and pa
// are aligned to it, and any valid entry in its place is identical.
func (st *SectionTable) Accepts(vo, pa uint32, sizeLog2 uint, flags Flags) bool {
	d := st.entries[vo>>SectionSizeLog2]
	switch sizeLog2 {
	case SmallPageSizeLog2:
		if (vo|pa)&smallPageOffMask != 0 {
			return false
		}
		switch slotKindOf(d) {
		case SlotFault:
			return true
		case SlotPageTable:
			pt := st.tables[linkPA.masked(d)]
			e := pt.entries[(vo&sectionOffMask)>>SmallPageSizeLog2]
			return pageKindOf(e) == pageFault || e == smallPage(flags, pa, pt.cache)
		}
		return false
	case SectionSizeLog2:
		if (vo|pa)&sectionOffMask != 0 {
			return false
		}
		return slotKindOf(d) == SlotFault || d == section(flags, pa, st.cache)
	}
	return false
}

// RemoveRegion invalidates every translation that overlaps [vo, vo+size).
// Touched leaves are removed whole. Emptied second-level tables stay linked
// until RegainMemory collects them.
func (st *SectionTable) RemoveRegion(vo, size uint32) {
	end := uint64(vo) + uint64(size)
	for off := uint64(vo); off < end && off < 1<<32; off = off&^sectionOffMask + SectionSize {
		i := off >> SectionSizeLog2
		d := st.entries[i]
		switch slotKindOf(d) {
		case SlotPageTable:
			st.tables[linkPA.masked(d)].removeRegion(uint32(off&sectionOffMask), end-off)
		case SlotSection:
			st.entries[i] = 0
		case SlotSupersection:
			fatal.Raise("tlb", "removal of supersections not implemented (%#x)", off)
		}
	}
}

// RegainMemory unlinks one empty second-level table and returns its memory.
// Call it repeatedly until it reports false to collect them all.
func (st *SectionTable) RegainMemory() (Block, bool) {
	for i, d := range st.entries {
		if slotKindOf(d) != SlotPageTable {
			continue
		}
		pa := linkPA.masked(d)
		pt := st.tables[pa]
		if !pt.Empty() {
			continue
		}
		st.entries[i] = 0
		delete(st.tables, pa)
		return Block{Base: pa, Size: PageTableSize}, true
	}
	return Block{}, false
}

// TranslationSizeL2 returns the largest translation size usable at vo for a
// region of size bytes. vo must be at least page aligned and size at least
// one page.
func (st *SectionTable) TranslationSizeL2(vo, size uint32) uint {
	if vo&sectionOffMask == 0 && size >= SectionSize {
		return SectionSizeLog2
	}
	return pageTranslationSizeL2(vo, size)
}

// MapCoreArea identity maps [vo, vo+size) with core flags, using the
// largest translations alignment allows. Table memory comes from donor; with
// a nil or exhausted donor the first missing table ends the walk with a
// *MemoryRequest. Mappings installed before that point stay in place.
func (st *SectionTable) MapCoreArea(vo, size uint32, ioMem bool, donor Donor) error {
	flags := CoreAreaFlags(ioMem)
	next := uint64(vo)
	rest := uint64(size)
	for rest > 0 {
		a := uint32(next)
		tsl2 := st.TranslationSizeL2(a, uint32(min(rest, 1<<32-1)))
		if need, ok := st.InsertTranslation(a, a, tsl2, flags, nil); !ok {
			if donor == nil {
				return &MemoryRequest{VO: a, SizeLog2: need}
			}
			b, ok := donor.Donate(need)
			if !ok {
				return &MemoryRequest{VO: a, SizeLog2: need}
			}
			st.InsertTranslation(a, a, tsl2, flags, &b)
		}
		ts := uint64(1) << tsl2
		next += ts
		if ts >= rest {
			break
		}
		rest -= ts
	}
	return nil
}

// Translate resolves va to its physical address and flags.
func (st *SectionTable) Translate(va uint32) (pa uint32, flags Flags, ok bool) {
	d := st.entries[va>>SectionSizeLog2]
	switch slotKindOf(d) {
	case SlotSection:
		return sectionPA.masked(d) | va&sectionOffMask, sectionLayout.decode(d), true
	case SlotPageTable:
		return st.tables[linkPA.masked(d)].translate(va & sectionOffMask)
	}
	return 0, 0, false
}

// Slot describes one first-level entry.
type Slot struct {
	VO    uint32
	Kind  SlotKind
	PA    uint32 // section base or page table address
	Flags Flags  // section flags
	Pages int    // valid pages of a linked page table
}

// Walk calls fn for every non-fault first-level entry in address order
// until fn returns false.
func (st *SectionTable) Walk(fn func(Slot) bool) {
	for i, d := range st.entries {
		s := Slot{VO: uint32(i) << SectionSizeLog2, Kind: slotKindOf(d)}
		switch s.Kind {
		case SlotFault:
			continue
		case SlotPageTable:
			s.PA = linkPA.masked(d)
			s.Pages = st.tables[s.PA].Pages()
		case SlotSection, SlotSupersection:
			s.PA = sectionPA.masked(d)
			s.Flags = sectionLayout.decode(d)
		}
		if !fn(s) {
			return
		}
	}
}

// PageTables returns the number of linked second-level tables.
func (st *SectionTable) PageTables() int { return len(st.tables) }
