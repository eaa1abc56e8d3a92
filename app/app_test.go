package app

import (
	"errors"
	"image/color"
	"strings"
	"testing"

	"nucleus/hal"
	"nucleus/kernel"
)

type testLog struct{ lines []string }

func (l *testLog) WriteLineString(s string) { l.lines = append(l.lines, s) }
func (l *testLog) WriteLineBytes(b []byte)  { l.lines = append(l.lines, string(b)) }

type testFB struct {
	w, h int
	buf  []byte
}

func newTestFB(w, h int) *testFB { return &testFB{w: w, h: h, buf: make([]byte, w*h*2)} }

func (f *testFB) Width() int              { return f.w }
func (f *testFB) Height() int             { return f.h }
func (f *testFB) Format() hal.PixelFormat { return hal.PixelFormatRGB565 }
func (f *testFB) StrideBytes() int        { return f.w * 2 }
func (f *testFB) Buffer() []byte          { return f.buf }
func (f *testFB) Present() error          { return nil }

func (f *testFB) ClearRGB(r, g, b uint8) {
	p := hal.RGB565(r, g, b)
	for i := 0; i < len(f.buf); i += 2 {
		f.buf[i], f.buf[i+1] = byte(p), byte(p>>8)
	}
}

func (f *testFB) drawn() int {
	n := 0
	for _, b := range f.buf {
		if b != 0 {
			n++
		}
	}
	return n
}

func (f *testFB) count(pixel uint16) int {
	n := 0
	for i := 0; i+1 < len(f.buf); i += 2 {
		if uint16(f.buf[i])|uint16(f.buf[i+1])<<8 == pixel {
			n++
		}
	}
	return n
}

type testKeyboard struct{ ch chan hal.KeyEvent }

func (k testKeyboard) Events() <-chan hal.KeyEvent { return k.ch }

type testTime struct{}

func (testTime) Ticks() <-chan uint64 { return nil }
func (testTime) Now() uint64          { return 0 }

type testHAL struct {
	log *testLog
	fb  *testFB
	kbd testKeyboard
	pic *hal.VirtualPIC
}

func newTestHAL() *testHAL {
	return &testHAL{
		log: &testLog{},
		fb:  newTestFB(320, 240),
		kbd: testKeyboard{ch: make(chan hal.KeyEvent, 8)},
		pic: hal.NewVirtualPIC(),
	}
}

func (h *testHAL) Logger() hal.Logger           { return h.log }
func (h *testHAL) Display() hal.Display         { return h }
func (h *testHAL) Framebuffer() hal.Framebuffer { return h.fb }
func (h *testHAL) Input() hal.Input             { return h }
func (h *testHAL) Keyboard() hal.Keyboard       { return h.kbd }
func (h *testHAL) Time() hal.Time               { return testTime{} }
func (h *testHAL) PIC() *hal.VirtualPIC         { return h.pic }

func bootTest(t *testing.T, h *testHAL, cfg Config) *system {
	t.Helper()
	s, err := newSystem(h, cfg)
	if err != nil {
		t.Fatalf("newSystem() = %v", err)
	}
	return s
}

func runFrames(t *testing.T, s *system, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := s.step(); err != nil {
			t.Fatalf("step() = %v", err)
		}
	}
}

func TestDemoEchoesThroughPager(t *testing.T) {
	h := newTestHAL()
	s := bootTest(t, h, Config{StepsPerFrame: 64})
	runFrames(t, s, 5)

	lines := s.console.Lines()
	if len(lines) < 4 {
		t.Fatalf("console lines = %q, want at least 4", lines)
	}
	for i, want := range []string{"echo: PING 1", "echo: PING 2", "echo: PING 3", "echo: PING 4"} {
		if lines[i] != want {
			t.Fatalf("console line %d = %q, want %q", i, lines[i], want)
		}
	}
	if s.pager.faults != s.client.pages || s.pager.denied != 0 {
		t.Fatalf("pager faults=%d denied=%d, want %d faults", s.pager.faults, s.pager.denied, s.client.pages)
	}
	if s.server.served != s.client.echoed {
		t.Fatalf("served=%d echoed=%d", s.server.served, s.client.echoed)
	}

	user := s.user
	for i := 0; i < s.client.pages; i++ {
		va := uint32(heapBase + i*4096)
		pa, f, ok := user.Table().Translate(va)
		if !ok || !f.Writable() || pa < frameBase || pa >= frameBase+frameSize {
			t.Fatalf("Translate(%#x) = %#x, %v, %v", va, pa, f, ok)
		}
	}
	if h.fb.drawn() == 0 {
		t.Fatal("console drew nothing")
	}
}

func TestKeyboardDriverPrintsKeys(t *testing.T) {
	h := newTestHAL()
	s := bootTest(t, h, Config{StepsPerFrame: 64})
	runFrames(t, s, 1)

	h.kbd.ch <- hal.KeyEvent{Press: true, Rune: 'x'}
	h.kbd.ch <- hal.KeyEvent{Press: false, Rune: 'x'}
	h.pic.Raise(hal.IRQKeyboard)
	runFrames(t, s, 2)

	if s.kbd.keys != 1 {
		t.Fatalf("keys = %d, want 1", s.kbd.keys)
	}
	found := false
	for _, l := range s.console.Lines() {
		if l == "key: 'x'" {
			found = true
		}
	}
	if !found {
		t.Fatalf("console lines = %q, want key: 'x'", s.console.Lines())
	}
	if owner, ok := s.k.IRQOwner(hal.IRQKeyboard); !ok || owner.Label() != "kbd" {
		t.Fatalf("IRQOwner(keyboard) = %v, %v", owner, ok)
	}
}

func TestPanicDemoHalts(t *testing.T) {
	h := newTestHAL()
	s := bootTest(t, h, Config{StepsPerFrame: 64, PanicDemo: true})

	var err error
	for i := 0; i < 50 && err == nil; i++ {
		err = s.step()
	}
	if !errors.Is(err, hal.ErrHalted) {
		t.Fatalf("step() = %v, want ErrHalted", err)
	}
	if !s.k.InPanicMode() {
		t.Fatal("kernel not in panic mode")
	}
	if err := s.step(); !errors.Is(err, hal.ErrHalted) {
		t.Fatalf("step() after panic = %v, want ErrHalted", err)
	}
	if len(h.log.lines) == 0 || h.log.lines[0] != "Kernel panic:" {
		t.Fatalf("log = %q", h.log.lines)
	}
	if h.fb.count(hal.RGB565(0x80, 0, 0)) == 0 || h.fb.count(0xFFFF) == 0 {
		t.Fatal("panic screen not drawn")
	}
}

func TestNewWithConfigReturnsStep(t *testing.T) {
	h := newTestHAL()
	step := NewWithConfig(h, Config{LapTime: 1, StepsPerFrame: 1})
	if err := step(); err != nil {
		t.Fatalf("step() = %v", err)
	}
}

func TestFrameAllocatorResolve(t *testing.T) {
	a := newFrameAllocator()
	m := a.resolve(kernel.Pagefault{VA: heapBase + 0x123})
	if m.Deny || m.PA != frameBase || m.SizeLog2 != 12 || !m.Writable {
		t.Fatalf("resolve(heap) = %+v", m)
	}
	if m := a.resolve(kernel.Pagefault{VA: heapBase + heapSize}); !m.Deny {
		t.Fatalf("resolve(beyond heap) = %+v, want deny", m)
	}
	if m := a.resolve(kernel.Pagefault{VA: 0}); !m.Deny {
		t.Fatalf("resolve(0) = %+v, want deny", m)
	}
}

func TestPanicLines(t *testing.T) {
	info := kernel.PanicInfo{ThreadID: 4, Stack: []byte("a\n\tb\n\n" + strings.Repeat("x\n", 20))}
	lines := panicLines(info)
	if lines[1] != "thread: 4" || lines[3] != "stack:" || lines[5] != "  b" {
		t.Fatalf("panicLines() = %q", lines)
	}
	if len(lines) != 4+maxPanicStackLines+1 || lines[len(lines)-1] != "..." {
		t.Fatalf("panicLines() has %d lines", len(lines))
	}
	if got := panicLines(kernel.PanicInfo{}); got[len(got)-1] != "stack: unavailable" {
		t.Fatalf("panicLines() without stack = %q", got)
	}
}

func TestTakeRunes(t *testing.T) {
	tests := []struct {
		s          string
		n          int16
		head, tail string
	}{
		{"hello", 3, "hel", "lo"},
		{"hi", 5, "hi", ""},
		{"äöü", 2, "äö", "ü"},
		{"x", 0, "", "x"},
	}
	for _, tt := range tests {
		head, tail := takeRunes(tt.s, tt.n)
		if head != tt.head || tail != tt.tail {
			t.Fatalf("takeRunes(%q, %d) = %q, %q; want %q, %q", tt.s, tt.n, head, tail, tt.head, tt.tail)
		}
	}
}

func TestFBDisplay(t *testing.T) {
	fb := newTestFB(4, 4)
	d := newFBDisplay(fb)
	d.FillRectangle(1, 1, 10, 10, colorRGBA(255, 255, 255))
	if d.pixelAt(0, 0) != 0 || d.pixelAt(3, 3) != 0xFFFF {
		t.Fatalf("pixels = %#x %#x", d.pixelAt(0, 0), d.pixelAt(3, 3))
	}
	d.SetPixel(-1, 0, colorRGBA(255, 0, 0))
	d.SetPixel(0, 0, colorRGBA(255, 0, 0))
	if d.pixelAt(0, 0) != 0xF800 {
		t.Fatalf("pixel = %#x, want 0xf800", d.pixelAt(0, 0))
	}
	if x, y := d.Size(); x != 4 || y != 4 {
		t.Fatalf("Size() = %d, %d", x, y)
	}
}

func colorRGBA(r, g, b uint8) color.RGBA { return color.RGBA{R: r, G: g, B: b, A: 255} }

func TestSnapshotListsTables(t *testing.T) {
	tables, err := Snapshot(newTestHAL(), Config{StepsPerFrame: 64}, 3)
	if err != nil {
		t.Fatalf("Snapshot() = %v", err)
	}
	if len(tables) != 2 || tables[0].Label != "core" || tables[1].Label != "user" {
		t.Fatalf("Snapshot() = %+v, want core and user", tables)
	}
	if _, _, ok := tables[1].Table.Translate(heapBase); !ok {
		t.Fatal("user heap not mapped after run")
	}
}
