package sched

// Entry is the intrusive scheduling state of one schedulable object.
// Embed it by value in the owner and initialize it with Init.
type Entry[T any] struct {
	next *Entry[T]
	prev *Entry[T]
	list *list[T]

	quota uint // time left in the current lap

	owner T
}

// Init binds the entry to its owner.
func (e *Entry[T]) Init(owner T) { e.owner = owner }

// Owner returns the object this entry schedules.
func (e *Entry[T]) Owner() T { return e.owner }

// Quota returns the time left in the entry's current lap.
func (e *Entry[T]) Quota() uint { return e.quota }

// Listed reports whether the entry is in a run list.
func (e *Entry[T]) Listed() bool { return e.list != nil }

func (e *Entry[T]) consume(t uint) {
	if e.quota > t {
		e.quota -= t
		return
	}
	e.quota = 0
}

// list is a doubly linked list of entries.
type list[T any] struct {
	head *Entry[T]
	tail *Entry[T]
	n    int
}

// insertTail appends e, taking it off any other list first.
func (l *list[T]) insertTail(e *Entry[T]) {
	if e.list != nil {
		e.list.remove(e)
	}
	e.prev = l.tail
	e.next = nil
	e.list = l
	if l.tail != nil {
		l.tail.next = e
	} else {
		l.head = e
	}
	l.tail = e
	l.n++
}

func (l *list[T]) remove(e *Entry[T]) {
	if l.head == nil || e.list != l {
		return
	}
	if e != l.tail {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
	if e != l.head {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}
	e.next, e.prev, e.list = nil, nil, nil
	l.n--
}

// headToTail rotates the head to the end of the list.
func (l *list[T]) headToTail() {
	if l.head == nil || l.head == l.tail {
		return
	}
	e := l.head
	l.head = e.next
	l.head.prev = nil
	e.next = nil
	l.tail.next = e
	e.prev = l.tail
	l.tail = e
}
