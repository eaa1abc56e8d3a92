package app

import (
	"bytes"
	"fmt"

	"nucleus/hal"
	"nucleus/kernel"
	"nucleus/kernel/object"
)

// printer feeds a line to the kernel console one print_char call per
// activation.
type printer struct {
	buf []byte
}

func (p *printer) printf(format string, args ...any) {
	p.buf = append(p.buf, fmt.Sprintf(format, args...)...)
	p.buf = append(p.buf, '\n')
}

// step issues the next print_char. It reports false when nothing is left.
func (p *printer) step(c *kernel.CPU) bool {
	if len(p.buf) == 0 {
		return false
	}
	c.Syscall(kernel.SyscallPrintChar, uint32(p.buf[0]))
	p.buf = p.buf[1:]
	return true
}

// pager answers page faults of user threads.
type pager struct {
	frames  *frameAllocator
	started bool
	faults  int
	denied  int
}

func (p *pager) Run(c *kernel.CPU) {
	if !p.started {
		p.started = true
		c.Syscall(kernel.SyscallWaitForRequest)
		return
	}
	u := c.UTCB()
	f, ok := kernel.DecodePagefault(u[:c.Result()])
	m := kernel.Mapping{Deny: true}
	if ok {
		p.faults++
		m = p.frames.resolve(f)
	}
	if m.Deny {
		p.denied++
	}
	n := m.Encode(u[:])
	c.Syscall(kernel.SyscallReply, uint32(n), 1)
}

// echoServer replies to every request with its bytes upper-cased.
type echoServer struct {
	started bool
	served  int
}

func (s *echoServer) Run(c *kernel.CPU) {
	if !s.started {
		s.started = true
		c.Syscall(kernel.SyscallWaitForRequest)
		return
	}
	u := c.UTCB()
	n := c.Result()
	copy(u[:n], bytes.ToUpper(u[:n]))
	s.served++
	c.Syscall(kernel.SyscallReply, n, 1)
}

type clientPhase uint8

const (
	clientTouch clientPhase = iota
	clientRequest
	clientPrint
)

// client writes to its heap, asks the echo server, and prints the answer.
type client struct {
	server object.ID
	pages  int

	phase  clientPhase
	round  int
	out    printer
	echoed int
}

func (cl *client) Run(c *kernel.CPU) {
	for {
		switch cl.phase {
		case clientTouch:
			va := uint32(heapBase + (cl.round%cl.pages)*4096)
			if !c.Access(va, true) {
				return
			}
			cl.phase = clientRequest

		case clientRequest:
			cl.round++
			msg := fmt.Sprintf("ping %d", cl.round)
			n := copy(c.UTCB()[:], msg)
			c.Syscall(kernel.SyscallRequestAndWait, uint32(cl.server), uint32(n))
			cl.phase = clientPrint
			return

		case clientPrint:
			if cl.out.buf == nil {
				n := c.Result()
				if n == kernel.ReturnError || n == kernel.ReturnCancelled {
					cl.out.printf("client: request failed")
				} else {
					cl.out.printf("echo: %s", c.UTCB()[:n])
					cl.echoed++
				}
			}
			if cl.out.step(c) {
				return
			}
			cl.out.buf = nil
			cl.phase = clientTouch
			c.Syscall(kernel.SyscallYield)
			return
		}
	}
}

// keyboardDriver owns the keyboard line and prints every key typed.
type keyboardDriver struct {
	kbd   hal.Keyboard
	armed bool
	out   printer
	keys  int
}

func (d *keyboardDriver) Run(c *kernel.CPU) {
	if !d.armed {
		d.armed = true
		c.Syscall(kernel.SyscallAllocateIRQ, uint32(hal.IRQKeyboard))
		return
	}
	if d.out.step(c) {
		return
	}
	d.drain()
	if d.out.step(c) {
		return
	}
	c.Syscall(kernel.SyscallAwaitIRQ)
}

func (d *keyboardDriver) drain() {
	if d.kbd == nil {
		return
	}
	for {
		select {
		case ev := <-d.kbd.Events():
			if !ev.Press {
				continue
			}
			d.keys++
			if ev.Rune != 0 {
				d.out.printf("key: %q", ev.Rune)
			} else {
				d.out.printf("key: code %d", ev.Code)
			}
		default:
			return
		}
	}
}

// faulty executes an undefined instruction after a few quanta.
type faulty struct {
	after int
	runs  int
}

func (f *faulty) Run(c *kernel.CPU) {
	f.runs++
	if f.runs > f.after {
		c.Context().Exception = kernel.ExceptionUndefined
		return
	}
	c.Syscall(kernel.SyscallYield)
}
