package hal

type hostKeyboard struct {
	ch  chan KeyEvent
	pic *VirtualPIC
}

func newHostKeyboard(pic *VirtualPIC) *hostKeyboard {
	return &hostKeyboard{ch: make(chan KeyEvent, 64), pic: pic}
}

func (k *hostKeyboard) Events() <-chan KeyEvent { return k.ch }

// push queues ev and raises the keyboard line. A full queue drops ev.
func (k *hostKeyboard) push(ev KeyEvent) bool {
	select {
	case k.ch <- ev:
	default:
		return false
	}
	k.pic.Raise(IRQKeyboard)
	return true
}
