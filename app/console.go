package app

import (
	"nucleus/hal"

	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"
)

var consoleFont = &proggy.TinySZ8pt7b

const (
	consoleFontHeight = 10
	consoleFontOffset = 6

	consoleHistory = 64
)

// console receives the lines threads print through the kernel. Lines go to
// the host log and, when there is a framebuffer, to a terminal on it.
type console struct {
	log   hal.Logger
	d     *fbDisplay
	t     *tinyterm.Terminal
	rows  int
	row   int
	lines []string
	dirty bool
}

func newConsole(h hal.HAL) *console {
	c := &console{log: h.Logger()}
	if disp := h.Display(); disp != nil {
		if fb := disp.Framebuffer(); fb != nil {
			c.d = newFBDisplay(fb)
			c.reset()
		}
	}
	return c
}

func (c *console) reset() {
	c.t = tinyterm.NewTerminal(c.d)
	c.t.Configure(&tinyterm.Config{
		Font:       consoleFont,
		FontHeight: consoleFontHeight,
		FontOffset: consoleFontOffset,
	})
	c.rows = c.d.fb.Height() / consoleFontHeight
	c.row = 0
	c.d.fb.ClearRGB(0, 0, 0)
	_ = c.d.fb.Present()
}

// WriteLineString implements kernel.Logger.
func (c *console) WriteLineString(s string) {
	c.lines = append(c.lines, s)
	if len(c.lines) > consoleHistory {
		c.lines = c.lines[len(c.lines)-consoleHistory:]
	}
	if c.log != nil {
		c.log.WriteLineString("console: " + s)
	}
	if c.t != nil {
		// The framebuffer cannot scroll; start over on a full screen.
		if c.row >= c.rows-1 {
			c.reset()
		}
		c.t.Write([]byte("\n" + s))
		c.row++
		c.dirty = true
	}
}

// flush presents what was written since the last flush.
func (c *console) flush() {
	if !c.dirty {
		return
	}
	_ = c.d.Display()
	c.dirty = false
}

// Lines returns the most recent lines.
func (c *console) Lines() []string { return c.lines }
