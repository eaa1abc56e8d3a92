package kernel

import (
	"errors"
	"fmt"

	"nucleus/kernel/object"
)

// Syscall numbers a program passes in Arg[0].
type Syscall uint32

const (
	SyscallYield Syscall = iota + 1
	SyscallCurrentThreadID
	SyscallPauseThread
	SyscallResumeThread
	SyscallRequestAndWait
	SyscallWaitForRequest
	SyscallReply
	SyscallSendNote
	SyscallSetPager
	SyscallAllocateIRQ
	SyscallFreeIRQ
	SyscallAwaitIRQ
	SyscallAwaitSignal
	SyscallSubmitSignal
	SyscallPrintChar
)

func (s Syscall) String() string {
	switch s {
	case SyscallYield:
		return "yield"
	case SyscallCurrentThreadID:
		return "current_thread_id"
	case SyscallPauseThread:
		return "pause_thread"
	case SyscallResumeThread:
		return "resume_thread"
	case SyscallRequestAndWait:
		return "request_and_wait"
	case SyscallWaitForRequest:
		return "wait_for_request"
	case SyscallReply:
		return "reply"
	case SyscallSendNote:
		return "send_note"
	case SyscallSetPager:
		return "set_pager"
	case SyscallAllocateIRQ:
		return "allocate_irq"
	case SyscallFreeIRQ:
		return "free_irq"
	case SyscallAwaitIRQ:
		return "await_irq"
	case SyscallAwaitSignal:
		return "await_signal"
	case SyscallSubmitSignal:
		return "submit_signal"
	case SyscallPrintChar:
		return "print_char"
	default:
		return fmt.Sprintf("Syscall(%d)", uint32(s))
	}
}

// target resolves a thread argument; 0 names the caller.
func (k *Kernel) target(caller *Thread, id uint32) (*Thread, error) {
	if id == 0 {
		return caller, nil
	}
	t, ok := k.threads.Lookup(object.ID(id))
	if !ok || t == k.idle {
		return nil, fmt.Errorf("thread %d: %w", id, ErrNoSuchThread)
	}
	return t, nil
}

func result(err error) uint32 {
	if err != nil {
		return ReturnError
	}
	return ReturnOK
}

// syscall executes the call t trapped with. Results go to Arg[0]. Calls
// that block leave their result to the event that wakes the thread.
func (k *Kernel) syscall(t *Thread) {
	a := &t.ctx.Arg
	call := Syscall(a[0])
	var err error

	switch call {
	case SyscallYield:
		k.sched.Yield()
		a[0] = ReturnOK

	case SyscallCurrentThreadID:
		a[0] = uint32(t.id)

	case SyscallPauseThread:
		var target *Thread
		if target, err = k.target(t, a[1]); err == nil {
			err = target.Pause()
		}
		a[0] = result(err)

	case SyscallResumeThread:
		var target *Thread
		if target, err = k.target(t, a[1]); err == nil {
			err = target.Resume()
		}
		a[0] = result(err)

	case SyscallRequestAndWait:
		if err = t.RequestAndWait(object.ID(a[1]), int(a[2])); err != nil {
			a[0] = ReturnError
		}

	case SyscallWaitForRequest:
		t.WaitForRequest()

	case SyscallReply:
		await := a[2] != 0
		if err = t.Reply(int(a[1]), await); err != nil || !await {
			a[0] = result(err)
		}

	case SyscallSendNote:
		err = t.SendNote(object.ID(a[1]), int(a[2]))
		a[0] = result(err)

	case SyscallSetPager:
		var target *Thread
		if target, err = k.target(t, a[1]); err == nil {
			if _, ok := k.threads.Lookup(object.ID(a[2])); !ok {
				err = fmt.Errorf("pager %d: %w", a[2], ErrNoSuchThread)
			} else {
				target.SetPager(object.ID(a[2]))
			}
		}
		a[0] = result(err)

	case SyscallAllocateIRQ:
		err = t.AllocateIRQ(uint(a[1]))
		a[0] = result(err)

	case SyscallFreeIRQ:
		err = t.FreeIRQ(uint(a[1]))
		a[0] = result(err)

	case SyscallAwaitIRQ:
		if err = t.AwaitIRQ(); err != nil {
			a[0] = ReturnError
		}

	case SyscallAwaitSignal:
		t.AwaitSignal()

	case SyscallSubmitSignal:
		err = k.SubmitSignal(object.ID(a[1]), Signal{Imprint: a[2], Num: a[3]})
		a[0] = result(err)

	case SyscallPrintChar:
		k.printChar(t, byte(a[1]))
		a[0] = ReturnOK

	default:
		err = errUnknownSyscall
		a[0] = ReturnError
	}

	if err != nil {
		k.logf("%v %v: %v", t, call, err)
	}
}

var errUnknownSyscall = errors.New("unknown system call")
