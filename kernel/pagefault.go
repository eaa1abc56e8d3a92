package kernel

import (
	"encoding/binary"

	"nucleus/kernel/object"
)

// Pagefault is the record a pager receives for a faulting thread.
type Pagefault struct {
	Thread object.ID
	PD     object.ID
	IP     uint32
	VA     uint32
	Write  bool
}

// PagefaultSize is the encoded size of a Pagefault.
const PagefaultSize = 17

// Encode writes f into buf and returns the number of bytes written.
//
// Layout (little-endian):
//   - u32: thread id
//   - u32: pd id
//   - u32: ip
//   - u32: va
//   - u8: write (0/1)
func (f Pagefault) Encode(buf []byte) int {
	_ = buf[PagefaultSize-1]
	binary.LittleEndian.PutUint32(buf[0:4], uint32(f.Thread))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(f.PD))
	binary.LittleEndian.PutUint32(buf[8:12], f.IP)
	binary.LittleEndian.PutUint32(buf[12:16], f.VA)
	buf[16] = boolByte(f.Write)
	return PagefaultSize
}

// DecodePagefault decodes an encoded Pagefault.
func DecodePagefault(payload []byte) (Pagefault, bool) {
	if len(payload) < PagefaultSize {
		return Pagefault{}, false
	}
	return Pagefault{
		Thread: object.ID(binary.LittleEndian.Uint32(payload[0:4])),
		PD:     object.ID(binary.LittleEndian.Uint32(payload[4:8])),
		IP:     binary.LittleEndian.Uint32(payload[8:12]),
		VA:     binary.LittleEndian.Uint32(payload[12:16]),
		Write:  payload[16] != 0,
	}, true
}

// Mapping is a pager's answer to a Pagefault.
type Mapping struct {
	PA            uint32
	SizeLog2      uint8
	Writable      bool
	WriteCombined bool
	IOMem         bool

	// Deny leaves the faulting thread paused.
	Deny bool
}

// MappingSize is the encoded size of a Mapping.
const MappingSize = 6

const (
	mapWritable = 1 << iota
	mapWriteCombined
	mapIOMem
	mapDeny
)

// Encode writes m into buf and returns the number of bytes written.
//
// Layout (little-endian):
//   - u32: pa
//   - u8: size log2
//   - u8: flags (writable, write-combined, io-mem, deny)
func (m Mapping) Encode(buf []byte) int {
	_ = buf[MappingSize-1]
	binary.LittleEndian.PutUint32(buf[0:4], m.PA)
	buf[4] = m.SizeLog2
	var f byte
	if m.Writable {
		f |= mapWritable
	}
	if m.WriteCombined {
		f |= mapWriteCombined
	}
	if m.IOMem {
		f |= mapIOMem
	}
	if m.Deny {
		f |= mapDeny
	}
	buf[5] = f
	return MappingSize
}

// DecodeMapping decodes an encoded Mapping.
func DecodeMapping(payload []byte) (Mapping, bool) {
	if len(payload) < MappingSize {
		return Mapping{}, false
	}
	f := payload[5]
	return Mapping{
		PA:            binary.LittleEndian.Uint32(payload[0:4]),
		SizeLog2:      payload[4],
		Writable:      f&mapWritable != 0,
		WriteCombined: f&mapWriteCombined != 0,
		IOMem:         f&mapIOMem != 0,
		Deny:          f&mapDeny != 0,
	}, true
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
