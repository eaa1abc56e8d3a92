// Package ipc implements synchronous rendezvous message passing between
// kernel IPC nodes.
//
// A node sends a request and blocks until the destination replies, or
// waits for requests, handles one, and replies. Requests that arrive while
// the destination is busy queue up in strict FIFO order. Notes are
// unacknowledged requests: the sender does not block and the receiver owes
// no reply.
//
// Payloads are described in place and copied only when they are delivered
// into the receiver's inbound buffer. The sender of a note must keep the
// payload unchanged until the destination has received it.
package ipc

import (
	"errors"

	"nucleus/kernel/fatal"
	"nucleus/kernel/object"
)

var (
	ErrNoDestination = errors.New("ipc: no such destination")
	ErrSelfRequest   = errors.New("ipc: request to self")
)

// State is the node's position in the rendezvous protocol.
type State uint8

const (
	Inactive State = iota + 1
	AwaitReply
	AwaitRequest
	PrepareReply
	PrepareAndAwaitReply
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case AwaitReply:
		return "await_reply"
	case AwaitRequest:
		return "await_request"
	case PrepareReply:
		return "prepare_reply"
	case PrepareAndAwaitReply:
		return "prepare_and_await_reply"
	default:
		return "invalid"
	}
}

// Directory resolves node identities. Nodes never hold pointers to one
// another; every peer is looked up when it is needed, so a destroyed peer
// simply stops resolving.
//
// NextTicket numbers requests. Tickets must be unique across every node of
// the directory for its whole lifetime: identities are recycled, and a
// reply only lands if the requester still waits on the same ticket.
type Directory interface {
	Node(id object.ID) (*Node, bool)
	NextTicket() uint64
}

// Handler is the owner of a node. It learns when the node starts waiting
// and when a message has landed in the node's inbound buffer.
type Handler interface {
	AwaitsReceipt()
	HasReceived(n int)
}

type message struct {
	payload []byte
	origin  object.ID
	ticket  uint64
	note    bool
}

// Node is the IPC state of one thread. The zero value is unusable; call Init.
type Node struct {
	id    object.ID
	dir   Directory
	h     Handler
	state State

	queue []*message

	inbuf    []byte
	inLen    int
	inOrigin object.ID
	inTicket uint64

	out  message
	dest object.ID
}

// Init makes n an inactive node named id.
func (n *Node) Init(id object.ID, dir Directory, h Handler) {
	*n = Node{id: id, dir: dir, h: h, state: Inactive}
}

// ID returns the node's identity.
func (n *Node) ID() object.ID { return n.id }

// State returns the current protocol state.
func (n *Node) State() State { return n.state }

// Received returns the bytes of the last message delivered to the node.
func (n *Node) Received() []byte { return n.inbuf[:n.inLen] }

// Origin returns the sender of the last request the node received.
func (n *Node) Origin() object.ID { return n.inOrigin }

// Pending returns the number of queued requests.
func (n *Node) Pending() int { return len(n.queue) }

func (n *Node) awaitsReply() bool {
	return n.state == AwaitReply || n.state == PrepareAndAwaitReply
}

func (n *Node) resolve(id object.ID) (*Node, error) {
	if id == n.id {
		return nil, ErrSelfRequest
	}
	d, ok := n.dir.Node(id)
	if !ok {
		return nil, ErrNoDestination
	}
	return d, nil
}

// SendRequestAwaitReply hands req to dest and blocks until dest replies
// into inbuf. A missing destination is reported and leaves n unchanged.
func (n *Node) SendRequestAwaitReply(dest object.ID, req, inbuf []byte) error {
	if n.state != Inactive && n.state != PrepareReply {
		fatal.Raise("ipc", "node %d: send request in state %s", n.id, n.state)
	}
	d, err := n.resolve(dest)
	if err != nil {
		return err
	}

	n.out = message{payload: req, origin: n.id, ticket: n.dir.NextTicket()}
	n.dest = dest
	n.inbuf = inbuf
	n.inLen = 0

	if n.state == PrepareReply {
		n.state = PrepareAndAwaitReply
	} else {
		n.state = AwaitReply
	}
	n.h.AwaitsReceipt()

	d.announce(&n.out)
	return nil
}

// AwaitRequest loads the oldest queued request into inbuf, or blocks until
// one arrives.
func (n *Node) AwaitRequest(inbuf []byte) {
	if n.state != Inactive {
		fatal.Raise("ipc", "node %d: await request in state %s", n.id, n.state)
	}
	n.inbuf = inbuf
	n.inLen = 0

	if len(n.queue) > 0 {
		m := n.queue[0]
		n.queue[0] = nil
		n.queue = n.queue[1:]
		n.receiveRequest(m)
		n.h.HasReceived(n.inLen)
		return
	}
	n.state = AwaitRequest
	n.h.AwaitsReceipt()
}

// SendReply answers the request n is handling. A requester that stopped
// waiting in the meantime receives nothing. Replying without a pending
// request is a no-op.
func (n *Node) SendReply(reply []byte) {
	switch n.state {
	case Inactive:
		return
	case PrepareReply:
		n.deliverReply(reply)
		n.state = Inactive
	case PrepareAndAwaitReply:
		n.deliverReply(reply)
		n.state = AwaitReply
	default:
		fatal.Raise("ipc", "node %d: send reply in state %s", n.id, n.state)
	}
}

// SendNote queues payload at dest without blocking. The caller keeps
// payload valid until dest has received it.
func (n *Node) SendNote(dest object.ID, payload []byte) error {
	if n.state != Inactive && n.state != PrepareReply {
		fatal.Raise("ipc", "node %d: send note in state %s", n.id, n.state)
	}
	d, err := n.resolve(dest)
	if err != nil {
		return err
	}
	d.announce(&message{payload: payload, origin: n.id, note: true})
	return nil
}

// Cancel ends a wait without its completion event. It reports whether the
// node was waiting.
func (n *Node) Cancel() bool {
	switch n.state {
	case AwaitReply, PrepareAndAwaitReply:
		if d, ok := n.dir.Node(n.dest); ok {
			d.withdraw(&n.out)
		}
		if n.state == PrepareAndAwaitReply {
			n.state = PrepareReply
		} else {
			n.state = Inactive
		}
		return true
	case AwaitRequest:
		n.state = Inactive
		return true
	}
	return false
}

// Detach cancels n's own wait and drops everything queued at it. It returns
// the requesters that were left waiting for a reply from n.
func (n *Node) Detach() []object.ID {
	var stranded []object.ID
	if n.state == PrepareReply || n.state == PrepareAndAwaitReply {
		stranded = append(stranded, n.inOrigin)
	}
	n.Cancel()
	for _, m := range n.queue {
		if !m.note {
			stranded = append(stranded, m.origin)
		}
	}
	n.queue = nil
	n.inOrigin = object.InvalidID
	n.state = Inactive
	return stranded
}

func (n *Node) announce(m *message) {
	if n.state == AwaitRequest {
		n.receiveRequest(m)
		n.h.HasReceived(n.inLen)
		return
	}
	n.queue = append(n.queue, m)
}

func (n *Node) withdraw(m *message) {
	for i, q := range n.queue {
		if q == m {
			copy(n.queue[i:], n.queue[i+1:])
			n.queue[len(n.queue)-1] = nil
			n.queue = n.queue[:len(n.queue)-1]
			return
		}
	}
}

func (n *Node) receiveRequest(m *message) {
	if len(m.payload) > len(n.inbuf) {
		fatal.Raise("ipc", "node %d: request of %d bytes exceeds inbound buffer of %d", n.id, len(m.payload), len(n.inbuf))
	}
	n.inLen = copy(n.inbuf, m.payload)
	n.inOrigin = m.origin
	n.inTicket = m.ticket
	if m.note {
		n.state = Inactive
	} else {
		n.state = PrepareReply
	}
}

func (n *Node) deliverReply(reply []byte) {
	origin, ticket := n.inOrigin, n.inTicket
	n.inOrigin = object.InvalidID
	o, ok := n.dir.Node(origin)
	if !ok || !o.awaitsReply() || o.out.ticket != ticket {
		return
	}
	o.receiveReply(reply)
}

func (n *Node) receiveReply(reply []byte) {
	if len(reply) > len(n.inbuf) {
		fatal.Raise("ipc", "node %d: reply of %d bytes exceeds inbound buffer of %d", n.id, len(reply), len(n.inbuf))
	}
	n.inLen = copy(n.inbuf, reply)
	if n.state == PrepareAndAwaitReply {
		n.state = PrepareReply
	} else {
		n.state = Inactive
	}
	n.h.HasReceived(n.inLen)
}
