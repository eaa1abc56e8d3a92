//go:build !tinygo

// Command tlbmap boots the demo system headless for a number of frames and
// renders the first-level translation table of every protection domain to a
// PNG: one cell per 1 MiB section, colored by descriptor kind.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fogleman/gg"

	"nucleus/app"
	"nucleus/hal"
	"nucleus/kernel/tlb"
)

const (
	gridCols = 64
	gridRows = tlb.SectionTableSize / 4 / gridCols
	cellSize = 8
	header   = 20
	legendH  = 24
	margin   = 8

	panelW = gridCols * cellSize
	panelH = header + gridRows*cellSize
)

type rgb struct{ r, g, b float64 }

var (
	colorBackground = rgb{0.08, 0.08, 0.10}
	colorFault      = rgb{0.18, 0.18, 0.20}
	colorSection    = rgb{0.20, 0.65, 0.30}
	colorDevice     = rgb{0.90, 0.55, 0.15}
	colorSuper      = rgb{0.60, 0.35, 0.80}
	colorPageTable  = rgb{0.20, 0.45, 0.90}
	colorText       = rgb{0.95, 0.95, 0.95}
)

func main() {
	var out string
	var frames int
	cfg := app.DefaultConfig()
	flag.StringVar(&out, "out", "tlbmap.png", "Output PNG path.")
	flag.IntVar(&frames, "frames", 8, "Host frames to run before the snapshot.")
	flag.IntVar(&cfg.StepsPerFrame, "steps", cfg.StepsPerFrame, "Kernel steps per frame.")
	flag.Parse()

	if out == "" {
		fmt.Fprintln(os.Stderr, "error: -out is required")
		os.Exit(2)
	}
	tables, err := app.Snapshot(hal.New(), cfg, frames)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	if err := render(tables).SavePNG(out); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d tables)\n", out, len(tables))
}

func setColor(dc *gg.Context, c rgb) { dc.SetRGB(c.r, c.g, c.b) }

// slotColor shades page-table cells by how many of their 256 pages are in
// use.
func slotColor(s tlb.Slot) rgb {
	switch s.Kind {
	case tlb.SlotPageTable:
		f := 0.35 + 0.65*float64(s.Pages)/256
		return rgb{colorPageTable.r * f, colorPageTable.g * f, colorPageTable.b * f}
	case tlb.SlotSection:
		if s.Flags.Device() {
			return colorDevice
		}
		return colorSection
	case tlb.SlotSupersection:
		return colorSuper
	}
	return colorFault
}

// cellOrigin returns the top-left corner of the cell for vo inside a panel
// whose top-left corner is (x0, y0).
func cellOrigin(x0, y0 int, vo uint32) (int, int) {
	i := int(vo >> tlb.SectionSizeLog2)
	return x0 + (i%gridCols)*cellSize, y0 + header + (i/gridCols)*cellSize
}

func panelOrigin(i int) (int, int) {
	return margin + i*(panelW+margin), margin
}

func render(tables []app.Table) *gg.Context {
	n := len(tables)
	if n == 0 {
		n = 1
	}
	w := margin + n*(panelW+margin)
	h := margin + panelH + margin + legendH
	dc := gg.NewContext(w, h)
	setColor(dc, colorBackground)
	dc.Clear()

	for i, t := range tables {
		x0, y0 := panelOrigin(i)
		setColor(dc, colorText)
		dc.DrawString(fmt.Sprintf("%s  table=%#x  pts=%d", t.Label, t.Table.Base(), t.Table.PageTables()), float64(x0), float64(y0+14))

		setColor(dc, colorFault)
		dc.DrawRectangle(float64(x0), float64(y0+header), panelW, gridRows*cellSize)
		dc.Fill()

		t.Table.Walk(func(s tlb.Slot) bool {
			x, y := cellOrigin(x0, y0, s.VO)
			setColor(dc, slotColor(s))
			dc.DrawRectangle(float64(x), float64(y), cellSize-1, cellSize-1)
			dc.Fill()
			return true
		})
	}
	drawLegend(dc, margin, margin+panelH+margin)
	return dc
}

func drawLegend(dc *gg.Context, x, y int) {
	items := []struct {
		label string
		c     rgb
	}{
		{"fault", colorFault},
		{"section", colorSection},
		{"device", colorDevice},
		{"supersection", colorSuper},
		{"page table", colorPageTable},
	}
	fx := float64(x)
	for _, it := range items {
		setColor(dc, it.c)
		dc.DrawRectangle(fx, float64(y+4), 12, 12)
		dc.Fill()
		setColor(dc, colorText)
		dc.DrawString(it.label, fx+16, float64(y+15))
		tw, _ := dc.MeasureString(it.label)
		fx += 16 + tw + 16
	}
}
