package tlb

// bitfield is a range of bits within a 32-bit descriptor.
type bitfield struct {
	shift uint
	width uint
}

func (b bitfield) mask() uint32 { return (1<<b.width - 1) << b.shift }

// bits places v into the field.
func (b bitfield) bits(v uint32) uint32 { return (v << b.shift) & b.mask() }

// get extracts the field from d.
func (b bitfield) get(d uint32) uint32 { return (d & b.mask()) >> b.shift }

// masked keeps only the field's bits of an address-like value.
func (b bitfield) masked(v uint32) uint32 { return v & b.mask() }

func (b bitfield) set(d *uint32, v uint32) { *d = (*d &^ b.mask()) | b.bits(v) }

func boolBits(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Access permission encodings shared by sections and small pages.
const (
	apUserNoAccess   = 1
	apUserRO         = 2
	apKernelAndUser  = 3
	ap2KernelRWOrNo  = 0
	ap2KernelRO      = 1
	texDevice        = 2
	texNonCacheable  = 4
	texWriteBackNoWA = 6
)

// layout names the permission and attribute fields of one descriptor format.
type layout struct {
	xn, b, c, ap10, tex, ap2, s, ng bitfield
}

// AP[1:0]/AP[2] by [writable][privileged].
var apTable = [2][2][2]uint32{
	{{apUserRO, ap2KernelRWOrNo}, {apUserNoAccess, ap2KernelRO}},
	{{apKernelAndUser, ap2KernelRWOrNo}, {apUserNoAccess, ap2KernelRWOrNo}},
}

func (l layout) permissions(f Flags) uint32 {
	ap := apTable[boolBits(f.Writable())][boolBits(f.Privileged())]
	return l.xn.bits(boolBits(!f.Executable())) | l.ap10.bits(ap[0]) | l.ap2.bits(ap[1])
}

func (l layout) attributes(f Flags, cacheSupport bool) uint32 {
	switch {
	case f.Device():
		return l.tex.bits(texDevice)
	case cacheSupport && f.Cacheable():
		return l.tex.bits(texWriteBackNoWA) | l.c.bits(1)
	default:
		return l.tex.bits(texNonCacheable)
	}
}

func (l layout) encode(f Flags, cacheSupport bool) uint32 {
	return l.permissions(f) | l.attributes(f, cacheSupport) | l.ng.bits(boolBits(!f.Global())) | l.s.bits(0)
}

// decode recovers the flags a descriptor was built from.
func (l layout) decode(d uint32) Flags {
	var f Flags
	ap10, ap2 := l.ap10.get(d), l.ap2.get(d)
	switch {
	case ap10 == apKernelAndUser:
		f |= flagW
	case ap10 == apUserNoAccess && ap2 == ap2KernelRWOrNo:
		f |= flagW | flagK
	case ap10 == apUserNoAccess && ap2 == ap2KernelRO:
		f |= flagK
	}
	if l.xn.get(d) == 0 {
		f |= flagX
	}
	if l.ng.get(d) == 0 {
		f |= flagG
	}
	switch tex := l.tex.get(d); {
	case tex == texDevice:
		f |= flagD
	case tex == texWriteBackNoWA && l.c.get(d) == 1:
		f |= flagC
	}
	return f
}
