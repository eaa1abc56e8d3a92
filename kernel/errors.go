package kernel

import "errors"

var (
	ErrAlreadyStarted = errors.New("kernel: thread already started")
	ErrNotStarted     = errors.New("kernel: thread not started")
	ErrBlocked        = errors.New("kernel: thread is blocked")
	ErrNotBlocked     = errors.New("kernel: thread is not blocked")
	ErrNoSuchThread   = errors.New("kernel: no such thread")
	ErrNoSuchPD       = errors.New("kernel: no such protection domain")
	ErrNoSuchCPU      = errors.New("kernel: no such cpu")
	ErrPDInUse        = errors.New("kernel: protection domain in use")
	ErrNoPager        = errors.New("kernel: thread has no pager")
	ErrNoTableMemory  = errors.New("kernel: out of translation table memory")
	ErrMessageSize    = errors.New("kernel: message exceeds utcb")
)
