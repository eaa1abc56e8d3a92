package kernel

import (
	"nucleus/kernel/fatal"
	"nucleus/kernel/object"
)

// PanicInfo contains details about a kernel panic.
type PanicInfo struct {
	ThreadID object.ID
	Err      *fatal.Error
	Stack    []byte
}

// InPanicMode reports whether the kernel has panicked. A panicked kernel
// schedules nothing.
func (k *Kernel) InPanicMode() bool {
	return k.panicked
}

// SetPanicHandler installs the handler invoked on the first kernel panic.
// It must not panic.
func (k *Kernel) SetPanicHandler(fn func(PanicInfo)) {
	k.panicHandler = fn
}

func (k *Kernel) triggerPanic(info PanicInfo) {
	if k.panicked {
		return
	}
	k.panicked = true
	info.Stack = captureStack()
	k.logf("panic in thread %d: %v", info.ThreadID, info.Err)
	if k.panicHandler != nil {
		k.panicHandler(info)
	}
}

// guard turns a kernel panic raised by fn into panic mode, then lets the
// panic continue.
func (k *Kernel) guard(fn func()) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := fatal.From(r); ok {
			var id object.ID
			if k.current != nil {
				id = k.current.id
			}
			k.triggerPanic(PanicInfo{ThreadID: id, Err: e})
		}
		panic(r)
	}()
	fn()
}
