package kernel

import "nucleus/kernel/tlb"

const (
	DefaultMaxThreads = 256
	DefaultMaxPDs     = 256

	// DefaultLapTime is the user time slice in ticks (1 tick = 1ms).
	DefaultLapTime = 10

	maxConsoleLine = 128

	// quietLines is the line count of the controller used without a PIC.
	quietLines = 32
)

// Logger is a line-oriented sink.
type Logger interface {
	WriteLineString(s string)
}

// PIC is the interrupt controller the kernel takes interrupts from.
type PIC interface {
	Mask(irq uint)
	Unmask(irq uint)
	Lines() uint

	// Take returns and acknowledges the lowest pending unmasked line.
	Take() (irq uint, ok bool)
}

// Area is a physical range the core protection domain maps one to one.
type Area struct {
	Base uint32
	Size uint32
	IO   bool
}

// Config configures a Kernel. Zero numeric fields take their defaults.
type Config struct {
	LapTime    uint
	MaxThreads int
	MaxPDs     int

	// CacheSupport selects cached memory attributes for cacheable mappings.
	CacheSupport bool

	// CoreTable is the 16KB aligned physical base of the core section table.
	CoreTable uint32
	CoreAreas []Area

	// TableMemory supplies second-level tables. Regained tables go back to it.
	TableMemory *tlb.BlockPool

	PIC     PIC
	Logger  Logger // kernel trace, nil disables
	Console Logger // print_char output, defaults to Logger
}

// DefaultConfig returns the stock configuration without memory or devices.
func DefaultConfig() Config {
	return Config{
		LapTime:      DefaultLapTime,
		MaxThreads:   DefaultMaxThreads,
		MaxPDs:       DefaultMaxPDs,
		CacheSupport: true,
	}
}

func (c Config) withDefaults() Config {
	if c.LapTime == 0 {
		c.LapTime = DefaultLapTime
	}
	if c.MaxThreads <= 0 {
		c.MaxThreads = DefaultMaxThreads
	}
	if c.MaxPDs <= 0 {
		c.MaxPDs = DefaultMaxPDs
	}
	if c.PIC == nil {
		c.PIC = quietPIC{}
	}
	if c.Console == nil {
		c.Console = c.Logger
	}
	return c
}

// quietPIC is used when no controller is configured: no line ever fires.
type quietPIC struct{}

func (quietPIC) Mask(uint)          {}
func (quietPIC) Unmask(uint)        {}
func (quietPIC) Take() (uint, bool) { return 0, false }
func (quietPIC) Lines() uint        { return quietLines }
