package kernel

import (
	"encoding/binary"
	"fmt"

	"nucleus/kernel/fatal"
	"nucleus/kernel/ipc"
	"nucleus/kernel/irq"
	"nucleus/kernel/object"
	"nucleus/kernel/sched"
	"nucleus/kernel/tlb"
)

// State is the scheduling state of a thread.
type State uint8

const (
	Stopped State = iota
	Active
	AwaitIPC
	AwaitResumption
	AwaitIRQ
	AwaitSignal
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Active:
		return "active"
	case AwaitIPC:
		return "await_ipc"
	case AwaitResumption:
		return "await_resumption"
	case AwaitIRQ:
		return "await_irq"
	case AwaitSignal:
		return "await_signal"
	default:
		return "unknown"
	}
}

func (s State) blocked() bool {
	return s == AwaitIPC || s == AwaitIRQ || s == AwaitSignal
}

// Outcome tells a woken thread why its wait ended.
type Outcome uint8

const (
	OutcomeNone Outcome = iota
	OutcomeReceived
	OutcomeIRQ
	OutcomeSignal
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeReceived:
		return "received"
	case OutcomeIRQ:
		return "irq"
	case OutcomeSignal:
		return "signal"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Values a blocking system call leaves in Arg[0] besides a size.
const (
	ReturnOK        uint32 = 0
	ReturnError     uint32 = 0xffffffff
	ReturnCancelled uint32 = 0xfffffffe
)

// Signal is a record delivered to a thread waiting for signals.
type Signal struct {
	Imprint uint32
	Num     uint32
}

// SignalSize is the encoded size of a Signal in the UTCB.
const SignalSize = 8

// Thread is the kernel representation of a user execution context.
type Thread struct {
	k     *Kernel
	id    object.ID
	label string
	state State

	ctx      Context
	prog     Program
	pd       object.ID
	pager    object.ID
	utcb     *UTCB
	virtUTCB uint32
	cpu      uint

	entry sched.Entry[*Thread]
	node  ipc.Node
	irq   irq.Owner

	fault    Pagefault
	faulting bool
	outcome  Outcome
	signals  []Signal
	console  []byte
}

// ID returns the thread's identity.
func (t *Thread) ID() object.ID { return t.id }

// Label returns the name the thread was created with.
func (t *Thread) Label() string { return t.label }

// State returns the thread's scheduling state.
func (t *Thread) State() State { return t.state }

// Outcome returns why the thread's last wait ended.
func (t *Thread) Outcome() Outcome { return t.outcome }

// Context returns the thread's register file.
func (t *Thread) Context() *Context { return &t.ctx }

// UTCB returns the thread's message area.
func (t *Thread) UTCB() *UTCB { return t.utcb }

// VirtUTCB returns the address the UTCB is mapped at in the thread's PD.
func (t *Thread) VirtUTCB() uint32 { return t.virtUTCB }

// PD returns the identity of the thread's protection domain.
func (t *Thread) PD() object.ID { return t.pd }

// IPCState returns the state of the thread's IPC node.
func (t *Thread) IPCState() ipc.State { return t.node.State() }

// IRQ returns the interrupt line the thread owns.
func (t *Thread) IRQ() (uint, bool) { return t.irq.IRQ() }

// LastPagefault returns the last fault the thread raised.
func (t *Thread) LastPagefault() Pagefault { return t.fault }

// SetPager names the thread that resolves t's page faults.
func (t *Thread) SetPager(pager object.ID) { t.pager = pager }

// Pager returns the identity of t's pager.
func (t *Thread) Pager() object.ID { return t.pager }

func (t *Thread) String() string {
	if t == nil {
		return "thread <nil>"
	}
	return fmt.Sprintf("thread %d %q", t.id, t.label)
}

func (t *Thread) activate(o Outcome) {
	t.outcome = o
	if t.state == Active {
		return
	}
	t.state = Active
	t.k.sched.Insert(&t.entry)
}

func (t *Thread) block(s State) {
	t.state = s
	t.k.sched.Remove(&t.entry)
}

// InitContext sets the initial instruction and stack pointer and assigns
// the thread to a protection domain.
func (t *Thread) InitContext(ip, sp uint32, pd object.ID) {
	t.ctx = Context{IP: ip, SP: sp}
	t.pd = pd
}

// Start initializes the thread's context and makes it runnable. Starting a
// thread that was not stopped fails with ErrAlreadyStarted.
func (t *Thread) Start(ip, sp uint32, cpu uint, pd object.ID, utcb *UTCB, virtUTCB uint32) error {
	if t.state != Stopped {
		return fmt.Errorf("start %v: %w", t, ErrAlreadyStarted)
	}
	if cpu != 0 {
		return fmt.Errorf("start %v on cpu %d: %w", t, cpu, ErrNoSuchCPU)
	}
	if _, ok := t.k.pds.Lookup(pd); !ok {
		return fmt.Errorf("start %v in pd %d: %w", t, pd, ErrNoSuchPD)
	}
	if utcb == nil {
		utcb = new(UTCB)
	}
	t.InitContext(ip, sp, pd)
	t.cpu = cpu
	t.utcb = utcb
	t.virtUTCB = virtUTCB
	t.outcome = OutcomeNone
	t.k.logf("%v start ip=%#x sp=%#x pd=%d", t, ip, sp, pd)
	t.activate(OutcomeNone)
	return nil
}

// Pause takes an active thread off the CPU until it is resumed.
func (t *Thread) Pause() error {
	switch {
	case t.state == Stopped:
		return fmt.Errorf("pause %v: %w", t, ErrNotStarted)
	case t.state.blocked():
		return fmt.Errorf("pause %v in %v: %w", t, t.state, ErrBlocked)
	case t.state == Active:
		t.block(AwaitResumption)
	}
	return nil
}

// Stop takes the thread off the CPU and abandons any wait. A stopped
// thread can be started again.
func (t *Thread) Stop() {
	t.node.Cancel()
	t.irq.Cancel()
	t.faulting = false
	t.block(Stopped)
	t.k.logf("%v stop", t)
}

// Resume continues a paused thread. A thread blocked in a wait has its wait
// cancelled.
func (t *Thread) Resume() error {
	switch {
	case t.state == Stopped:
		return fmt.Errorf("resume %v: %w", t, ErrNotStarted)
	case t.state == AwaitResumption:
		t.activate(OutcomeNone)
	case t.state.blocked():
		return t.CancelBlocking()
	}
	return nil
}

// CancelBlocking ends the thread's wait without its completion event. The
// woken thread finds OutcomeCancelled and ReturnCancelled in Arg[0].
func (t *Thread) CancelBlocking() error {
	switch t.state {
	case AwaitIPC:
		t.node.Cancel()
		t.faulting = false
	case AwaitIRQ:
		t.irq.Cancel()
	case AwaitSignal:
	default:
		return fmt.Errorf("cancel %v in %v: %w", t, t.state, ErrNotBlocked)
	}
	t.ctx.Arg[0] = ReturnCancelled
	t.k.logf("%v wait cancelled", t)
	t.activate(OutcomeCancelled)
	return nil
}

// RequestAndWait sends the first size bytes of the UTCB to dest and blocks
// until dest replies into the UTCB.
func (t *Thread) RequestAndWait(dest object.ID, size int) error {
	if size < 0 || size > UTCBSize {
		return fmt.Errorf("request of %d bytes: %w", size, ErrMessageSize)
	}
	if err := t.node.SendRequestAwaitReply(dest, t.utcb[:size], t.utcb[:]); err != nil {
		return fmt.Errorf("%v request to %d: %w", t, dest, err)
	}
	return nil
}

// WaitForRequest blocks until a request arrives in the UTCB.
func (t *Thread) WaitForRequest() {
	t.node.AwaitRequest(t.utcb[:])
}

// Reply answers the request t is handling with the first size bytes of the
// UTCB. With awaitRequest the thread then waits for the next request.
func (t *Thread) Reply(size int, awaitRequest bool) error {
	if size < 0 || size > UTCBSize {
		return fmt.Errorf("reply of %d bytes: %w", size, ErrMessageSize)
	}
	t.node.SendReply(t.utcb[:size])
	if awaitRequest {
		t.WaitForRequest()
	}
	return nil
}

// SendNote queues the first size bytes of the UTCB at dest without
// blocking. The bytes must stay unchanged until dest has received them.
func (t *Thread) SendNote(dest object.ID, size int) error {
	if size < 0 || size > UTCBSize {
		return fmt.Errorf("note of %d bytes: %w", size, ErrMessageSize)
	}
	if err := t.node.SendNote(dest, t.utcb[:size]); err != nil {
		return fmt.Errorf("%v note to %d: %w", t, dest, err)
	}
	return nil
}

// Received returns the last message delivered into the UTCB.
func (t *Thread) Received() []byte { return t.node.Received() }

// AwaitsReceipt is called by the IPC node when it starts waiting.
func (t *Thread) AwaitsReceipt() { t.block(AwaitIPC) }

// HasReceived is called by the IPC node when n bytes landed in the UTCB.
func (t *Thread) HasReceived(n int) {
	if t.faulting {
		t.faulting = false
		t.resolveFault()
		return
	}
	t.ctx.Arg[0] = uint32(n)
	if t.node.State() == ipc.PrepareReply {
		t.ctx.Arg[1] = uint32(t.node.Origin())
	}
	t.activate(OutcomeReceived)
}

// AwaitsIRQ is called by the IRQ owner when it starts waiting.
func (t *Thread) AwaitsIRQ() { t.block(AwaitIRQ) }

// ReceivedIRQ is called by the IRQ owner when its line fired.
func (t *Thread) ReceivedIRQ() {
	t.ctx.Arg[0] = ReturnOK
	t.activate(OutcomeIRQ)
}

// AllocateIRQ claims an interrupt line for t.
func (t *Thread) AllocateIRQ(line uint) error { return t.irq.Allocate(line) }

// FreeIRQ releases an interrupt line t owns.
func (t *Thread) FreeIRQ(line uint) error { return t.irq.Free(line) }

// AwaitIRQ blocks until t's line fires.
func (t *Thread) AwaitIRQ() error { return t.irq.Await() }

// AwaitSignal blocks until a signal is delivered. A signal submitted while
// t was not waiting is delivered at once.
func (t *Thread) AwaitSignal() {
	if len(t.signals) > 0 {
		s := t.signals[0]
		t.signals = t.signals[1:]
		t.writeSignal(s)
		t.activate(OutcomeSignal)
		return
	}
	t.block(AwaitSignal)
}

// ReceiveSignal delivers s to a thread waiting for a signal.
func (t *Thread) ReceiveSignal(s Signal) {
	fatal.Assert(t.state == AwaitSignal, "kernel", "%v receives signal in state %v", t, t.state)
	t.writeSignal(s)
	t.activate(OutcomeSignal)
}

// Layout (little-endian): u32 imprint, u32 num.
func (t *Thread) writeSignal(s Signal) {
	binary.LittleEndian.PutUint32(t.utcb[0:4], s.Imprint)
	binary.LittleEndian.PutUint32(t.utcb[4:8], s.Num)
	t.ctx.Arg[0] = SignalSize
}

// Pagefault handles a translation fault at va. Faults of privileged threads
// are resolved by mapping the page directly. Others are sent to the pager,
// and the thread waits for its decision.
func (t *Thread) Pagefault(va uint32, write bool) error {
	t.fault = Pagefault{Thread: t.id, PD: t.pd, IP: t.ctx.IP, VA: va, Write: write}
	t.k.logf("%v pagefault ip=%#x va=%#x w=%v", t, t.ctx.IP, va, write)

	pd, ok := t.k.pds.Lookup(t.pd)
	if !ok {
		fatal.Raise("kernel", "%v faults in missing pd %d", t, t.pd)
	}
	if pd.Privileged() {
		page := va &^ (tlb.SmallPageSize - 1)
		if !t.k.Insert(pd, page, page, tlb.SmallPageSizeLog2, tlb.FaultFlags(true, false, false)) {
			t.block(AwaitResumption)
			return fmt.Errorf("%v core fault at %#x: %w", t, va, ErrNoTableMemory)
		}
		return nil
	}

	if _, ok := t.k.threads.Lookup(t.pager); !ok {
		t.block(AwaitResumption)
		return fmt.Errorf("%v fault at %#x: %w", t, va, ErrNoPager)
	}
	n := t.fault.Encode(t.utcb[:])
	t.faulting = true
	if err := t.node.SendRequestAwaitReply(t.pager, t.utcb[:n], t.utcb[:]); err != nil {
		t.faulting = false
		t.block(AwaitResumption)
		return fmt.Errorf("%v fault at %#x: %w", t, va, err)
	}
	return nil
}

func (t *Thread) resolveFault() {
	m, ok := DecodeMapping(t.node.Received())
	if !ok || m.Deny {
		t.k.logf("%v fault at %#x denied", t, t.fault.VA)
		t.state = AwaitResumption
		return
	}
	pd, ok := t.k.pds.Lookup(t.pd)
	if !ok {
		t.state = AwaitResumption
		return
	}
	vo := t.fault.VA &^ (uint32(1)<<m.SizeLog2 - 1)
	flags := tlb.FaultFlags(m.Writable, m.WriteCombined, m.IOMem)
	if !pd.table.Accepts(vo, m.PA, uint(m.SizeLog2), flags) {
		t.k.logf("%v fault at %#x: unusable mapping %#x/2^%d denied", t, t.fault.VA, m.PA, m.SizeLog2)
		t.state = AwaitResumption
		return
	}
	if !t.k.Insert(pd, vo, m.PA, uint(m.SizeLog2), flags) {
		t.k.logf("%v fault at %#x waits for table memory", t, t.fault.VA)
		t.state = AwaitResumption
		return
	}
	t.activate(OutcomeReceived)
}

// ScheduledNext runs the thread's program in user mode until it traps.
func (t *Thread) ScheduledNext() {
	t.ctx.Exception = ExceptionNone
	if t.prog == nil {
		return
	}
	var table *tlb.SectionTable
	if pd, ok := t.k.pds.Lookup(t.pd); ok {
		table = pd.table
	}
	t.prog.Run(&CPU{ctx: &t.ctx, utcb: t.utcb, table: table})
}

// HandleException handles the trap that took the thread out of user mode.
func (t *Thread) HandleException() {
	switch t.ctx.Exception {
	case ExceptionNone:
	case ExceptionSupervisorCall:
		t.k.syscall(t)
	case ExceptionPrefetchAbort, ExceptionDataAbort:
		if err := t.Pagefault(t.ctx.FaultAddr, t.ctx.FaultWrite); err != nil {
			t.k.logf("%v", err)
		}
	case ExceptionInterruptRequest, ExceptionFastInterruptRequest:
		t.k.interrupt(t.ctx.IRQ)
	default:
		fatal.Raise("kernel", "%v raised %v at ip=%#x", t, t.ctx.Exception, t.ctx.IP)
	}
	t.ctx.Exception = ExceptionNone
}
