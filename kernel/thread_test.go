package kernel

import (
	"encoding/binary"
	"errors"
	"testing"

	"nucleus/kernel/fatal"
	"nucleus/kernel/ipc"
	"nucleus/kernel/irq"
)

func TestStartLifecycle(t *testing.T) {
	k := newKernel(t, nil)
	core := k.CorePD().ID()
	th, _ := k.NewThread("t", nil)

	if err := th.Resume(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Resume() before start = %v, want ErrNotStarted", err)
	}
	if err := th.Pause(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("Pause() before start = %v, want ErrNotStarted", err)
	}
	if err := th.Start(0, 0, 1, core, nil, 0); !errors.Is(err, ErrNoSuchCPU) {
		t.Fatalf("Start() on cpu 1 = %v, want ErrNoSuchCPU", err)
	}
	if err := th.Start(0, 0, 0, 99, nil, 0); !errors.Is(err, ErrNoSuchPD) {
		t.Fatalf("Start() in pd 99 = %v, want ErrNoSuchPD", err)
	}
	if err := th.Start(0x1000, 0x2000, 0, core, nil, 0x7000); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if th.State() != Active || th.Context().IP != 0x1000 || th.Context().SP != 0x2000 {
		t.Fatalf("after Start state=%v ctx=%+v", th.State(), *th.Context())
	}
	if th.UTCB() == nil || th.VirtUTCB() != 0x7000 || th.PD() != core {
		t.Fatal("Start() did not record utcb and pd")
	}
	if err := th.Start(0, 0, 0, core, nil, 0); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start() = %v, want ErrAlreadyStarted", err)
	}

	th.Stop()
	if th.State() != Stopped || len(k.Runnable()) != 0 {
		t.Fatalf("after Stop state=%v runnable=%v", th.State(), k.Runnable())
	}
	if err := th.Start(0x3000, 0x4000, 0, core, nil, 0); err != nil {
		t.Fatalf("Start() after Stop = %v", err)
	}
}

func TestPauseResume(t *testing.T) {
	k := newKernel(t, nil)
	th := spawn(t, k, "t", nil, k.CorePD().ID())

	if err := th.Pause(); err != nil {
		t.Fatalf("Pause() = %v", err)
	}
	if th.State() != AwaitResumption || len(k.Runnable()) != 0 {
		t.Fatalf("after Pause state=%v runnable=%d", th.State(), len(k.Runnable()))
	}
	if err := th.Pause(); err != nil {
		t.Fatalf("Pause() while paused = %v", err)
	}
	if err := th.Resume(); err != nil {
		t.Fatalf("Resume() = %v", err)
	}
	if th.State() != Active || len(k.Runnable()) != 1 {
		t.Fatalf("after Resume state=%v runnable=%d", th.State(), len(k.Runnable()))
	}
	if err := th.Resume(); err != nil {
		t.Fatalf("Resume() while active = %v", err)
	}
	if len(k.Runnable()) != 1 {
		t.Fatalf("Resume() while active changed the run list: %d", len(k.Runnable()))
	}

	th.WaitForRequest()
	if err := th.Pause(); !errors.Is(err, ErrBlocked) {
		t.Fatalf("Pause() while blocked = %v, want ErrBlocked", err)
	}
}

func TestRequestReplyBetweenThreads(t *testing.T) {
	k := newKernel(t, nil)
	core := k.CorePD().ID()
	client := spawn(t, k, "client", nil, core)
	server := spawn(t, k, "server", nil, core)

	server.WaitForRequest()
	if server.State() != AwaitIPC || server.IPCState() != ipc.AwaitRequest {
		t.Fatalf("server state=%v ipc=%v", server.State(), server.IPCState())
	}

	copy(client.UTCB()[:], "ping")
	if err := client.RequestAndWait(server.ID(), 4); err != nil {
		t.Fatalf("RequestAndWait() = %v", err)
	}
	if client.State() != AwaitIPC {
		t.Fatalf("client state = %v, want await_ipc", client.State())
	}
	if server.State() != Active || string(server.Received()) != "ping" {
		t.Fatalf("server state=%v received=%q", server.State(), server.Received())
	}
	if server.Context().Arg[0] != 4 || server.Context().Arg[1] != uint32(client.ID()) {
		t.Fatalf("server args = %v", server.Context().Arg)
	}

	copy(server.UTCB()[:], "pong!")
	if err := server.Reply(5, false); err != nil {
		t.Fatalf("Reply() = %v", err)
	}
	if client.State() != Active || client.Outcome() != OutcomeReceived {
		t.Fatalf("client state=%v outcome=%v", client.State(), client.Outcome())
	}
	if string(client.Received()) != "pong!" || client.Context().Arg[0] != 5 {
		t.Fatalf("client received %q arg0=%d", client.Received(), client.Context().Arg[0])
	}
	if client.IPCState() != ipc.Inactive || server.IPCState() != ipc.Inactive {
		t.Fatalf("ipc states client=%v server=%v", client.IPCState(), server.IPCState())
	}
}

func TestRequestErrors(t *testing.T) {
	k := newKernel(t, nil)
	th := spawn(t, k, "t", nil, k.CorePD().ID())
	if err := th.RequestAndWait(77, 0); !errors.Is(err, ipc.ErrNoDestination) {
		t.Fatalf("RequestAndWait(77) = %v, want ErrNoDestination", err)
	}
	if err := th.RequestAndWait(th.ID(), UTCBSize+1); !errors.Is(err, ErrMessageSize) {
		t.Fatalf("oversized request = %v, want ErrMessageSize", err)
	}
	if th.State() != Active {
		t.Fatalf("failed request left state %v", th.State())
	}
}

func TestCancelBlockingIsObservable(t *testing.T) {
	k := newKernel(t, nil)
	core := k.CorePD().ID()
	client := spawn(t, k, "client", nil, core)
	server := spawn(t, k, "server", nil, core)

	if err := client.CancelBlocking(); !errors.Is(err, ErrNotBlocked) {
		t.Fatalf("CancelBlocking() while active = %v, want ErrNotBlocked", err)
	}

	client.RequestAndWait(server.ID(), 0)
	if err := client.CancelBlocking(); err != nil {
		t.Fatalf("CancelBlocking() = %v", err)
	}
	if client.State() != Active || client.Outcome() != OutcomeCancelled || client.Context().Arg[0] != ReturnCancelled {
		t.Fatalf("client state=%v outcome=%v arg0=%#x", client.State(), client.Outcome(), client.Context().Arg[0])
	}

	// The withdrawn request is not delivered.
	server.WaitForRequest()
	if server.State() != AwaitIPC {
		t.Fatalf("server state = %v, want await_ipc", server.State())
	}
	if err := server.Resume(); err != nil {
		t.Fatalf("Resume() of blocked server = %v", err)
	}
	if server.Outcome() != OutcomeCancelled || server.IPCState() != ipc.Inactive {
		t.Fatalf("server outcome=%v ipc=%v", server.Outcome(), server.IPCState())
	}
}

func TestNoteDoesNotBlock(t *testing.T) {
	k := newKernel(t, nil)
	core := k.CorePD().ID()
	sender := spawn(t, k, "sender", nil, core)
	receiver := spawn(t, k, "receiver", nil, core)

	copy(sender.UTCB()[:], "hey")
	if err := sender.SendNote(receiver.ID(), 3); err != nil {
		t.Fatalf("SendNote() = %v", err)
	}
	if sender.State() != Active {
		t.Fatalf("sender state = %v", sender.State())
	}
	receiver.WaitForRequest()
	if string(receiver.Received()) != "hey" || receiver.IPCState() != ipc.Inactive {
		t.Fatalf("receiver got %q ipc=%v", receiver.Received(), receiver.IPCState())
	}
}

func TestDestroyThreadCancelsRequesters(t *testing.T) {
	k := newKernel(t, nil)
	core := k.CorePD().ID()
	client := spawn(t, k, "client", nil, core)
	server := spawn(t, k, "server", nil, core)

	client.RequestAndWait(server.ID(), 0)
	id := server.ID()
	if err := k.DestroyThread(server); err != nil {
		t.Fatalf("DestroyThread() = %v", err)
	}
	if client.State() != Active || client.Outcome() != OutcomeCancelled {
		t.Fatalf("client state=%v outcome=%v", client.State(), client.Outcome())
	}
	if _, ok := k.Thread(id); ok {
		t.Fatal("destroyed thread still resolves")
	}
	if err := k.DestroyThread(server); !errors.Is(err, ErrNoSuchThread) {
		t.Fatalf("second DestroyThread() = %v, want ErrNoSuchThread", err)
	}
	if err := k.DestroyThread(k.Idle()); !errors.Is(err, ErrNoSuchThread) {
		t.Fatalf("DestroyThread(idle) = %v, want ErrNoSuchThread", err)
	}
}

func TestReplyDoesNotReachRecycledRequester(t *testing.T) {
	k := newKernel(t, nil)
	core := k.CorePD().ID()
	old := spawn(t, k, "old", nil, core)
	server := spawn(t, k, "server", nil, core)

	server.WaitForRequest()
	n := copy(old.UTCB()[:], "from old")
	if err := old.RequestAndWait(server.ID(), n); err != nil {
		t.Fatalf("RequestAndWait() = %v", err)
	}
	oldID := old.ID()
	if err := k.DestroyThread(old); err != nil {
		t.Fatalf("DestroyThread() = %v", err)
	}

	fresh := spawn(t, k, "fresh", nil, core)
	if fresh.ID() != oldID {
		t.Fatalf("fresh id = %d, want recycled %d", fresh.ID(), oldID)
	}
	n = copy(fresh.UTCB()[:], "from fresh")
	if err := fresh.RequestAndWait(server.ID(), n); err != nil {
		t.Fatalf("RequestAndWait() = %v", err)
	}

	n = copy(server.UTCB()[:], "answer-for-old")
	server.Reply(n, false)
	if fresh.State() != AwaitIPC {
		t.Fatalf("fresh state = %v, want await_ipc", fresh.State())
	}
	if got := server.node.Pending(); got != 1 {
		t.Fatalf("server Pending() = %d, want 1", got)
	}

	server.WaitForRequest()
	if got := string(server.Received()); got != "from fresh" {
		t.Fatalf("server received %q, want %q", got, "from fresh")
	}
	n = copy(server.UTCB()[:], "answer-for-fresh")
	server.Reply(n, false)
	if fresh.State() != Active || string(fresh.Received()) != "answer-for-fresh" {
		t.Fatalf("fresh state=%v received=%q", fresh.State(), fresh.Received())
	}
}

func TestAllocateIRQBeyondController(t *testing.T) {
	k := newKernel(t, func(c *Config) { c.PIC = newTestPIC() })
	th := spawn(t, k, "driver", nil, k.CorePD().ID())

	if err := th.AllocateIRQ(40); !errors.Is(err, irq.ErrNoSuchLine) {
		t.Fatalf("AllocateIRQ(40) = %v, want ErrNoSuchLine", err)
	}
	if _, ok := th.IRQ(); ok {
		t.Fatal("thread holds a line after a rejected allocation")
	}
	if _, ok := k.IRQOwner(40); ok {
		t.Fatal("IRQOwner(40) reports an owner")
	}
	if err := th.AllocateIRQ(3); err != nil {
		t.Fatalf("AllocateIRQ(3) = %v", err)
	}
}

func TestSignals(t *testing.T) {
	k := newKernel(t, nil)
	th := spawn(t, k, "t", nil, k.CorePD().ID())

	th.AwaitSignal()
	if th.State() != AwaitSignal {
		t.Fatalf("state = %v, want await_signal", th.State())
	}
	if err := k.SubmitSignal(th.ID(), Signal{Imprint: 0xabc, Num: 2}); err != nil {
		t.Fatalf("SubmitSignal() = %v", err)
	}
	u := th.UTCB()
	if th.State() != Active || th.Outcome() != OutcomeSignal {
		t.Fatalf("state=%v outcome=%v", th.State(), th.Outcome())
	}
	if binary.LittleEndian.Uint32(u[0:4]) != 0xabc || binary.LittleEndian.Uint32(u[4:8]) != 2 {
		t.Fatalf("utcb signal = % x", u[:8])
	}

	// A signal submitted early is kept for the next wait.
	k.SubmitSignal(th.ID(), Signal{Imprint: 1, Num: 1})
	th.AwaitSignal()
	if th.State() != Active || th.Outcome() != OutcomeSignal {
		t.Fatalf("latched signal: state=%v outcome=%v", th.State(), th.Outcome())
	}

	if err := fatal.Catch(func() { th.ReceiveSignal(Signal{}) }); err == nil {
		t.Fatal("ReceiveSignal() on a thread not waiting did not panic")
	}
	if err := k.SubmitSignal(99, Signal{}); !errors.Is(err, ErrNoSuchThread) {
		t.Fatalf("SubmitSignal(99) = %v, want ErrNoSuchThread", err)
	}
}

func TestIRQOwnershipThroughThreads(t *testing.T) {
	k := newKernel(t, nil)
	core := k.CorePD().ID()
	a := spawn(t, k, "a", nil, core)
	b := spawn(t, k, "b", nil, core)

	if err := a.AllocateIRQ(3); err != nil {
		t.Fatalf("a.AllocateIRQ(3) = %v", err)
	}
	if err := b.AllocateIRQ(3); err == nil {
		t.Fatal("b.AllocateIRQ(3) succeeded while a owns it")
	}
	if o, ok := k.IRQOwner(3); !ok || o != a {
		t.Fatalf("IRQOwner(3) = %v, %v; want a", o, ok)
	}
	if err := a.FreeIRQ(3); err != nil {
		t.Fatalf("a.FreeIRQ(3) = %v", err)
	}
	if err := b.AllocateIRQ(3); err != nil {
		t.Fatalf("b.AllocateIRQ(3) after free = %v", err)
	}
	if o, ok := k.IRQOwner(3); !ok || o != b {
		t.Fatalf("IRQOwner(3) = %v, %v; want b", o, ok)
	}
	if o, ok := k.IRQOwner(9); ok {
		t.Fatalf("IRQOwner(9) = %v, want no owner", o)
	}

	b.AwaitIRQ()
	if b.State() != AwaitIRQ {
		t.Fatalf("state = %v, want await_irq", b.State())
	}
	b.CancelBlocking()
	if b.Outcome() != OutcomeCancelled {
		t.Fatalf("outcome = %v, want cancelled", b.Outcome())
	}

	k.DestroyThread(b)
	if _, ok := k.IRQOwner(3); ok {
		t.Fatal("destroyed thread still owns irq 3")
	}
}
