// Package app boots a demo system on the kernel: a pager serving a user
// protection domain, an echo server and its client, and a keyboard driver,
// with their console output on the host framebuffer.
package app

import (
	"fmt"

	"nucleus/hal"
	"nucleus/kernel"
	"nucleus/kernel/fatal"
	"nucleus/kernel/object"
	"nucleus/kernel/tlb"
)

type Config struct {
	// LapTime is the quantum in kernel ticks. Zero selects the kernel default.
	LapTime uint

	// StepsPerFrame is the number of kernel steps run per host frame.
	StepsPerFrame int

	// Trace sends kernel trace lines to the host log.
	Trace bool

	// PanicDemo adds a thread that crashes the kernel after a few quanta.
	PanicDemo bool
}

// DefaultConfig returns the configuration the host binary starts with.
func DefaultConfig() Config {
	return Config{LapTime: kernel.DefaultLapTime, StepsPerFrame: 32}
}

type system struct {
	h       hal.HAL
	cfg     Config
	k       *kernel.Kernel
	console *console
	user    *kernel.PD

	pager  *pager
	server *echoServer
	client *client
	kbd    *keyboardDriver
}

// New initializes the system with the default config and returns its step
// function.
func New(h hal.HAL) hal.StepFunc {
	return NewWithConfig(h, DefaultConfig())
}

// NewWithConfig initializes the system and returns its step function. A
// boot failure is reported by the first step.
func NewWithConfig(h hal.HAL, cfg Config) hal.StepFunc {
	s, err := newSystem(h, cfg)
	if err != nil {
		if l := h.Logger(); l != nil {
			l.WriteLineString("boot: " + err.Error())
		}
		return func() error { return err }
	}
	return s.step
}

func newSystem(h hal.HAL, cfg Config) (*system, error) {
	if cfg.StepsPerFrame <= 0 {
		cfg.StepsPerFrame = 1
	}
	s := &system{h: h, cfg: cfg, console: newConsole(h)}

	kcfg := kernel.DefaultConfig()
	if cfg.LapTime > 0 {
		kcfg.LapTime = cfg.LapTime
	}
	kcfg.CoreTable = coreTable
	kcfg.CoreAreas = coreAreas()
	kcfg.TableMemory = tlb.NewBlockPool(tableMemBase, tableMemSize, tlb.PageTableSizeLog2)
	kcfg.PIC = h.PIC()
	kcfg.Console = s.console
	if cfg.Trace {
		kcfg.Logger = h.Logger()
	}

	k, err := kernel.New(kcfg)
	if err != nil {
		return nil, fmt.Errorf("kernel: %w", err)
	}
	s.k = k
	installPanicHandler(h, k)

	core := k.CorePD().ID()
	user, err := k.NewPD("user", userTableBase)
	if err != nil {
		return nil, err
	}
	s.user = user

	s.pager = &pager{frames: newFrameAllocator()}
	pagerThread, err := s.spawn("pager", s.pager, core)
	if err != nil {
		return nil, err
	}
	s.server = &echoServer{}
	serverThread, err := s.spawn("echo", s.server, core)
	if err != nil {
		return nil, err
	}
	s.client = &client{server: serverThread.ID(), pages: 4}
	clientThread, err := s.spawn("client", s.client, user.ID())
	if err != nil {
		return nil, err
	}
	clientThread.SetPager(pagerThread.ID())

	var kbd hal.Keyboard
	if in := h.Input(); in != nil {
		kbd = in.Keyboard()
	}
	s.kbd = &keyboardDriver{kbd: kbd}
	if _, err := s.spawn("kbd", s.kbd, core); err != nil {
		return nil, err
	}

	if cfg.PanicDemo {
		if _, err := s.spawn("faulty", &faulty{after: 8}, core); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *system) spawn(label string, prog kernel.Program, pd object.ID) (*kernel.Thread, error) {
	t, err := s.k.NewThread(label, prog)
	if err != nil {
		return nil, err
	}
	utcb := uint32(0x7f000000) - uint32(t.ID())*kernel.UTCBSize
	if err := t.Start(0x1000, utcb, 0, pd, nil, utcb); err != nil {
		return nil, err
	}
	return t, nil
}

// step runs one host frame worth of kernel steps, charging one tick each.
func (s *system) step() error {
	if s.k.InPanicMode() {
		return hal.ErrHalted
	}
	defer s.console.flush()
	for i := 0; i < s.cfg.StepsPerFrame; i++ {
		if err := fatal.Catch(func() { s.k.Step(1) }); err != nil {
			return fmt.Errorf("%v: %w", err, hal.ErrHalted)
		}
	}
	return nil
}

// Table is a protection domain's translation table as left after a run.
type Table struct {
	Label string
	Table *tlb.SectionTable
}

// Snapshot boots the system on h, runs frames host frames and returns the
// translation tables of every protection domain.
func Snapshot(h hal.HAL, cfg Config, frames int) ([]Table, error) {
	s, err := newSystem(h, cfg)
	if err != nil {
		return nil, err
	}
	for i := 0; i < frames; i++ {
		if err := s.step(); err != nil {
			return nil, err
		}
	}
	var out []Table
	s.k.EachPD(func(pd *kernel.PD) bool {
		out = append(out, Table{Label: pd.Label(), Table: pd.Table()})
		return true
	})
	return out, nil
}
