package kernel

import (
	"fmt"

	"nucleus/kernel/tlb"
)

// Exception is the reason a thread left user mode.
type Exception uint8

const (
	// ExceptionNone means the thread ran until its quantum was used up.
	ExceptionNone Exception = iota
	ExceptionSupervisorCall
	ExceptionPrefetchAbort
	ExceptionDataAbort
	ExceptionInterruptRequest
	ExceptionFastInterruptRequest
	ExceptionUndefined
)

func (e Exception) String() string {
	switch e {
	case ExceptionNone:
		return "none"
	case ExceptionSupervisorCall:
		return "supervisor_call"
	case ExceptionPrefetchAbort:
		return "prefetch_abort"
	case ExceptionDataAbort:
		return "data_abort"
	case ExceptionInterruptRequest:
		return "interrupt_request"
	case ExceptionFastInterruptRequest:
		return "fast_interrupt_request"
	case ExceptionUndefined:
		return "undefined"
	default:
		return fmt.Sprintf("Exception(%d)", uint8(e))
	}
}

// Context is the user execution context of a thread. Arg[0] carries the
// call number into the kernel and the result back out.
type Context struct {
	IP  uint32
	SP  uint32
	Arg [5]uint32

	Exception  Exception
	FaultAddr  uint32
	FaultWrite bool
	IRQ        uint
}

// UTCBSize is the size of a user thread control block.
const UTCBSize = 512

// UTCB is the per-thread message area shared by kernel and user mode.
type UTCB [UTCBSize]byte

// Program is the user code of a thread. Run executes until the thread
// traps: it returns after CPU.Syscall, after a failed CPU.Access, or when
// it has nothing more to do in this quantum.
type Program interface {
	Run(cpu *CPU)
}

// ProgramFunc adapts a function to Program.
type ProgramFunc func(cpu *CPU)

func (f ProgramFunc) Run(cpu *CPU) { f(cpu) }

// CPU is the machine as a running program sees it.
type CPU struct {
	ctx   *Context
	utcb  *UTCB
	table *tlb.SectionTable
}

// Context returns the register file.
func (c *CPU) Context() *Context { return c.ctx }

// UTCB returns the thread's message area.
func (c *CPU) UTCB() *UTCB { return c.utcb }

// Result returns the value the last system call left in Arg[0].
func (c *CPU) Result() uint32 { return c.ctx.Arg[0] }

// Syscall traps into the kernel. The program must return afterwards.
func (c *CPU) Syscall(call Syscall, args ...uint32) {
	c.ctx.Arg = [5]uint32{uint32(call)}
	copy(c.ctx.Arg[1:], args)
	c.ctx.Exception = ExceptionSupervisorCall
}

// Access emulates a load or store at va. An access the protection domain
// does not permit raises a data abort; the program must then return and
// repeat the access once it is scheduled again.
func (c *CPU) Access(va uint32, write bool) bool {
	if c.table != nil {
		if _, f, ok := c.table.Translate(va); ok && (!write || f.Writable()) {
			return true
		}
	}
	c.ctx.Exception = ExceptionDataAbort
	c.ctx.FaultAddr = va
	c.ctx.FaultWrite = write
	return false
}

// Fetch is Access for instruction fetches. Failing fetches raise a
// prefetch abort.
func (c *CPU) Fetch(va uint32) bool {
	if c.table != nil {
		if _, f, ok := c.table.Translate(va); ok && f.Executable() {
			return true
		}
	}
	c.ctx.Exception = ExceptionPrefetchAbort
	c.ctx.FaultAddr = va
	c.ctx.FaultWrite = false
	return false
}
