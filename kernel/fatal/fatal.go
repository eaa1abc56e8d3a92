// Package fatal is the kernel-panic primitive.
//
// Invariant violations inside the kernel core (misplaced tables, conflicting
// translations, illegal IPC transitions, ...) never return to the caller.
// They unwind with an *Error carrying the component and a diagnostic, which
// keeps them apart from recoverable results and from blocked thread states.
package fatal

import "fmt"

// Error is the value a kernel panic unwinds with.
type Error struct {
	Component string
	Msg       string
}

func (e *Error) Error() string {
	return "kernel panic: " + e.Component + ": " + e.Msg
}

// Raise halts the current kernel control path.
func Raise(component, format string, args ...any) {
	panic(&Error{Component: component, Msg: fmt.Sprintf(format, args...)})
}

// Assert raises if cond does not hold.
func Assert(cond bool, component, format string, args ...any) {
	if !cond {
		Raise(component, format, args...)
	}
}

// From reports whether a recovered value is a kernel panic.
func From(r any) (*Error, bool) {
	e, ok := r.(*Error)
	return e, ok
}

// Catch runs fn and returns the kernel panic it raised, if any.
// Other panics propagate unchanged.
func Catch(fn func()) (err *Error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		e, ok := From(r)
		if !ok {
			panic(r)
		}
		err = e
	}()
	fn()
	return nil
}
