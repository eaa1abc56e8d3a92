package hal

import (
	"fmt"
	"io"
	"os"
	"sync"
)

type hostHAL struct {
	logger *hostLogger
	fb     *hostFramebuffer
	kbd    *hostKeyboard
	t      *hostTime
	pic    *VirtualPIC
}

// New returns a host HAL implementation writing its log to stdout.
func New() HAL {
	return newHost(os.Stdout)
}

func newHost(w io.Writer) *hostHAL {
	pic := NewVirtualPIC()
	return &hostHAL{
		logger: &hostLogger{w: w},
		fb:     newHostFramebuffer(320, 240),
		kbd:    newHostKeyboard(pic),
		t:      newHostTime(),
		pic:    pic,
	}
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) Display() Display { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Input() Input     { return hostInput{kbd: h.kbd} }
func (h *hostHAL) Time() Time       { return h.t }
func (h *hostHAL) PIC() *VirtualPIC { return h.pic }

// tick advances host time by n ticks and raises the timer line.
func (h *hostHAL) tick(n uint64) {
	if n == 0 {
		return
	}
	h.t.stepN(n)
	h.pic.Raise(IRQTimer)
}

type hostDisplay struct {
	fb *hostFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostInput struct {
	kbd *hostKeyboard
}

func (in hostInput) Keyboard() Keyboard { return in.kbd }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer

	// raw terminals need an explicit carriage return.
	crlf bool
}

func (l *hostLogger) eol() string {
	if l.crlf {
		return "\r\n"
	}
	return "\n"
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.w, s, l.eol())
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	io.WriteString(l.w, l.eol())
}
