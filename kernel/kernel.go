// Package kernel composes the core objects into a running kernel: threads
// scheduled round robin, synchronous IPC between them, exclusive interrupt
// ownership, and protection domains backed by translation tables.
//
// All kernel paths run on one goroutine. Step is the only entry that
// executes user code; the remaining methods are called between steps.
package kernel

import (
	"fmt"

	"nucleus/kernel/ipc"
	"nucleus/kernel/irq"
	"nucleus/kernel/object"
	"nucleus/kernel/sched"
	"nucleus/kernel/tlb"
)

// Kernel owns every kernel object and the single CPU's scheduler.
type Kernel struct {
	cfg Config

	threads *object.Kind[*Thread]
	pds     *object.Kind[*PD]
	sched   *sched.Scheduler[*Thread]
	irqs    *irq.Table

	idle    *Thread
	core    *PD
	current *Thread
	ticks   uint64
	tickets uint64

	panicked     bool
	panicHandler func(PanicInfo)
}

// New builds a kernel: the idle thread, and the core protection domain with
// every configured area mapped one to one.
func New(cfg Config) (*Kernel, error) {
	cfg = cfg.withDefaults()
	k := &Kernel{
		cfg:     cfg,
		threads: object.NewKind[*Thread]("thread", cfg.MaxThreads),
		pds:     object.NewKind[*PD]("pd", cfg.MaxPDs),
		irqs:    irq.NewTable(cfg.PIC),
	}

	core, err := k.NewPD("core", cfg.CoreTable)
	if err != nil {
		return nil, err
	}
	k.core = core
	for _, a := range cfg.CoreAreas {
		var donor tlb.Donor
		if cfg.TableMemory != nil {
			donor = cfg.TableMemory
		}
		if err := core.table.MapCoreArea(a.Base, a.Size, a.IO, donor); err != nil {
			return nil, fmt.Errorf("map core area %#x+%#x: %w", a.Base, a.Size, err)
		}
	}

	idle, err := k.newThread("idle", nil)
	if err != nil {
		return nil, err
	}
	k.idle = idle
	k.sched = sched.New(&idle.entry, cfg.LapTime)
	idle.InitContext(0, 0, core.id)
	idle.state = Active
	k.current = idle
	return k, nil
}

func (k *Kernel) logf(format string, args ...any) {
	if k.cfg.Logger == nil {
		return
	}
	k.cfg.Logger.WriteLineString("kernel: " + fmt.Sprintf(format, args...))
}

// Node resolves an IPC node by thread identity.
func (k *Kernel) Node(id object.ID) (*ipc.Node, bool) {
	t, ok := k.threads.Lookup(id)
	if !ok {
		return nil, false
	}
	return &t.node, true
}

// NextTicket numbers an IPC request uniquely for the kernel's lifetime.
func (k *Kernel) NextTicket() uint64 {
	k.tickets++
	return k.tickets
}

// NewThread creates a stopped thread running prog.
func (k *Kernel) NewThread(label string, prog Program) (*Thread, error) {
	return k.newThread(label, prog)
}

func (k *Kernel) newThread(label string, prog Program) (*Thread, error) {
	t := &Thread{k: k, label: label, prog: prog, state: Stopped}
	id, err := k.threads.Register(t)
	if err != nil {
		return nil, fmt.Errorf("new thread %q: %w", label, err)
	}
	t.id = id
	t.entry.Init(t)
	t.node.Init(id, k, t)
	t.irq.Init(k.irqs, t)
	return t, nil
}

// Thread returns the thread named by id.
func (k *Kernel) Thread(id object.ID) (*Thread, bool) { return k.threads.Lookup(id) }

// Threads returns the number of live threads, the idle thread included.
func (k *Kernel) Threads() int { return k.threads.Len() }

// Idle returns the idle thread.
func (k *Kernel) Idle() *Thread { return k.idle }

// DestroyThread stops t and releases everything it holds. Threads left
// waiting for a reply from t have their wait cancelled.
func (k *Kernel) DestroyThread(t *Thread) error {
	if t == k.idle {
		return fmt.Errorf("destroy %v: %w", t, ErrNoSuchThread)
	}
	if _, ok := k.threads.Lookup(t.id); !ok {
		return fmt.Errorf("destroy %v: %w", t, ErrNoSuchThread)
	}
	t.Stop()
	for _, id := range t.node.Detach() {
		if w, ok := k.threads.Lookup(id); ok && w.state == AwaitIPC {
			w.CancelBlocking()
		}
	}
	if line, ok := t.irq.IRQ(); ok {
		t.irq.Free(line)
	}
	if k.sched.VM() == &t.entry {
		k.sched.SetVM(nil)
	}
	if k.current == t {
		k.current = k.idle
	}
	k.logf("%v destroyed", t)
	return k.threads.Deregister(t.id)
}

// SetVM makes t the VM thread that runs instead of idle. A nil t clears it.
func (k *Kernel) SetVM(t *Thread) {
	if t == nil {
		k.sched.SetVM(nil)
		return
	}
	k.sched.SetVM(&t.entry)
}

// Current returns the thread that runs now.
func (k *Kernel) Current() *Thread {
	return k.sched.CurrentEntry().Owner()
}

// Runnable returns the threads in the round robin, head first.
func (k *Kernel) Runnable() []*Thread {
	var out []*Thread
	k.sched.Each(func(e *sched.Entry[*Thread]) bool {
		out = append(out, e.Owner())
		return true
	})
	return out
}

// Ticks returns the time charged to threads so far.
func (k *Kernel) Ticks() uint64 { return k.ticks }

// Step charges consumed ticks to the running thread, picks the next one
// and runs it until it traps, then handles the trap. A pending interrupt
// preempts the chosen thread before it runs. Step returns the thread that
// was dispatched, or nil in panic mode.
//
// A kernel panic puts the kernel in panic mode, calls the panic handler,
// and continues to unwind.
func (k *Kernel) Step(consumed uint) *Thread {
	if k.panicked {
		return nil
	}
	var ran *Thread
	k.guard(func() {
		k.ticks += uint64(consumed)
		e, _ := k.sched.NextEntry(consumed)
		t := e.Owner()
		if t.state != Active {
			// A blocked VM thread stays installed but does not run.
			t = k.idle
		}
		k.current = t
		ran = t
		if line, ok := k.cfg.PIC.Take(); ok {
			t.ctx.Exception = ExceptionInterruptRequest
			t.ctx.IRQ = line
		} else {
			t.ScheduledNext()
		}
		t.HandleException()
	})
	return ran
}

// Guard runs fn as a kernel path: a kernel panic it raises enters panic
// mode like one raised under Step.
func (k *Kernel) Guard(fn func()) { k.guard(fn) }

func (k *Kernel) interrupt(line uint) {
	if !k.irqs.Receive(line) {
		k.logf("irq %d without waiting owner", line)
	}
}

// IRQOwner returns the thread that owns line.
func (k *Kernel) IRQOwner(line uint) (*Thread, bool) {
	o, ok := k.irqs.Owner(line)
	if !ok {
		return nil, false
	}
	t, ok := o.Handler().(*Thread)
	return t, ok
}

// SubmitSignal delivers s to the thread named by id, or keeps it until the
// thread waits for a signal.
func (k *Kernel) SubmitSignal(id object.ID, s Signal) error {
	t, ok := k.threads.Lookup(id)
	if !ok {
		return fmt.Errorf("signal %d: %w", id, ErrNoSuchThread)
	}
	if t.state == AwaitSignal {
		t.ReceiveSignal(s)
		return nil
	}
	t.signals = append(t.signals, s)
	return nil
}

// printChar collects t's output into lines of at most maxConsoleLine bytes.
func (k *Kernel) printChar(t *Thread, c byte) {
	if c != '\n' {
		t.console = append(t.console, c)
		if len(t.console) < maxConsoleLine {
			return
		}
	}
	if k.cfg.Console != nil {
		k.cfg.Console.WriteLineString(string(t.console))
	}
	t.console = t.console[:0]
}
