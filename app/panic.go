package app

import (
	"fmt"
	"image/color"
	"strings"
	"unicode/utf8"

	"nucleus/hal"
	"nucleus/kernel"

	"tinygo.org/x/tinyfont"
)

const maxPanicStackLines = 12

func installPanicHandler(h hal.HAL, k *kernel.Kernel) {
	k.SetPanicHandler(func(info kernel.PanicInfo) {
		lines := panicLines(info)
		if l := h.Logger(); l != nil {
			for _, line := range lines {
				l.WriteLineString(line)
			}
		}
		if disp := h.Display(); disp != nil {
			if fb := disp.Framebuffer(); fb != nil {
				drawPanicScreen(newFBDisplay(fb), lines)
			}
		}
	})
}

func panicLines(info kernel.PanicInfo) []string {
	lines := []string{
		"Kernel panic:",
		fmt.Sprintf("thread: %d", info.ThreadID),
		fmt.Sprintf("error: %v", info.Err),
	}
	if len(info.Stack) == 0 {
		return append(lines, "stack: unavailable")
	}
	lines = append(lines, "stack:")
	n := 0
	for _, line := range strings.Split(string(info.Stack), "\n") {
		if line == "" {
			continue
		}
		if n == maxPanicStackLines {
			lines = append(lines, "...")
			break
		}
		lines = append(lines, strings.ReplaceAll(line, "\t", "  "))
		n++
	}
	return lines
}

// drawPanicScreen fills the display and writes lines top to bottom,
// wrapping at the display width. Lines that do not fit are dropped.
func drawPanicScreen(d *fbDisplay, lines []string) {
	maxW, maxH := d.Size()
	_ = d.FillRectangle(0, 0, maxW, maxH, color.RGBA{R: 0x80, A: 255})

	_, outboxWidth := tinyfont.LineWidth(consoleFont, "0")
	fontWidth := int16(outboxWidth)
	if fontWidth <= 0 {
		_ = d.Display()
		return
	}
	cols := maxW / fontWidth
	if cols <= 0 {
		cols = 1
	}

	fg := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	y := int16(0)
	for _, line := range lines {
		for len(line) > 0 {
			if y+consoleFontHeight > maxH {
				_ = d.Display()
				return
			}
			chunk, rest := takeRunes(line, cols)
			x := int16(0)
			for _, r := range chunk {
				tinyfont.DrawChar(d, consoleFont, x, y+consoleFontOffset, r, fg)
				x += fontWidth
			}
			y += consoleFontHeight
			line = strings.TrimLeft(rest, " ")
		}
	}
	_ = d.Display()
}

func takeRunes(s string, n int16) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	var i int
	var count int16
	for i < len(s) && count < n {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
		count++
	}
	return s[:i], s[i:]
}
