package hal

import "time"

const tickDur = time.Millisecond

type hostTime struct {
	ch  chan uint64
	seq uint64

	last time.Time
	acc  time.Duration
}

func newHostTime() *hostTime {
	return &hostTime{ch: make(chan uint64, 1024)}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

func (t *hostTime) Now() uint64 { return t.seq }

// elapsed returns the whole ticks of wall time passed since the previous
// call. The first call returns min.
func (t *hostTime) elapsed(now time.Time, min uint64) uint64 {
	if t.last.IsZero() {
		t.last = now
		t.acc = 0
		return min
	}
	t.acc += now.Sub(t.last)
	t.last = now

	ticks := uint64(t.acc / tickDur)
	t.acc %= tickDur
	if ticks < min {
		ticks = min
	}
	return ticks
}

func (t *hostTime) stepN(n uint64) {
	for i := uint64(0); i < n; i++ {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
		}
	}
}
