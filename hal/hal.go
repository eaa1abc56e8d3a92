// Package hal is the host machine the kernel runs on: a line logger, a
// tick source, a framebuffer for the console, keyboard input, and a virtual
// interrupt controller that peripherals raise lines on.
package hal

import "errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

var (
	ErrNotImplemented = errors.New("not implemented")

	// ErrHalted is returned by a step function once the machine stopped for
	// good. Runners stop stepping but keep the display up.
	ErrHalted = errors.New("hal: machine halted")
)

// StepFunc advances the machine by one host frame.
type StepFunc func() error

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// KeyCode is a minimal key identifier.
type KeyCode uint16

const (
	KeyUnknown KeyCode = iota
	KeyEnter
	KeyEscape
	KeyBackspace
	KeyTab
)

// KeyEvent is a keyboard event.
type KeyEvent struct {
	Code  KeyCode
	Press bool
	Rune  rune
}

// Keyboard provides key events. Every queued event also raises IRQKeyboard.
type Keyboard interface {
	Events() <-chan KeyEvent
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// Input provides access to input devices (if available).
type Input interface {
	Keyboard() Keyboard
}

// Time provides a base tick stream and the ticks elapsed between polls.
//
// One tick is one millisecond of host time.
type Time interface {
	Ticks() <-chan uint64
	Now() uint64
}

// Interrupt lines of the host machine.
const (
	IRQTimer    uint = 0
	IRQKeyboard uint = 1

	NumIRQs = 32
)

// HAL provides the only contact point between the kernel and the outside
// world.
type HAL interface {
	Logger() Logger
	Display() Display
	Input() Input
	Time() Time
	PIC() *VirtualPIC
}
