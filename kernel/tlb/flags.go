// Package tlb builds and tears down ARM short-descriptor translation tables.
//
// A SectionTable is the 16KB first-level table. Each of its 4096 slots is a
// fault, a 1MB section, or a link to a 1KB second-level PageTable of 256
// small-page (4KB) descriptors. Second-level tables are placed in memory the
// caller donates and are handed back by RegainMemory once empty.
package tlb

// Flags describe how a translation may be used. Build them only through
// FaultFlags, CoreAreaFlags and ModeTransitionFlags.
type Flags uint8

const (
	flagW Flags = 1 << iota // writable
	flagX                   // executable
	flagK                   // privileged
	flagG                   // global
	flagD                   // device
	flagC                   // cacheable
)

func bit(b bool, f Flags) Flags {
	if b {
		return f
	}
	return 0
}

// FaultFlags are the flags of a mapping a pager installs to resolve a fault.
func FaultFlags(writable, writeCombined, ioMem bool) Flags {
	return bit(writable, flagW) | flagX | bit(ioMem, flagD) | bit(!writeCombined && !ioMem, flagC)
}

// CoreAreaFlags are the flags of the kernel's own identity mappings.
func CoreAreaFlags(ioMem bool) Flags {
	return flagW | flagX | bit(ioMem, flagD) | bit(!ioMem, flagC)
}

// ModeTransitionFlags are the flags of the region shared by kernel and user
// mode during mode transitions.
func ModeTransitionFlags() Flags {
	return flagW | flagX | flagK | flagG | flagC
}

func (f Flags) Writable() bool   { return f&flagW != 0 }
func (f Flags) Executable() bool { return f&flagX != 0 }
func (f Flags) Privileged() bool { return f&flagK != 0 }
func (f Flags) Global() bool     { return f&flagG != 0 }
func (f Flags) Device() bool     { return f&flagD != 0 }
func (f Flags) Cacheable() bool  { return f&flagC != 0 }

func (f Flags) String() string {
	const names = "wxkgdc"
	b := []byte("------")
	for i := range names {
		if f&(1<<i) != 0 {
			b[i] = names[i]
		}
	}
	return string(b)
}
