package statesync

import "github.com/nerrad567/knx-statemonitor/internal/bridges/knx"

// ReadQueue is a fixed-capacity circular FIFO of group addresses waiting
// for a read request. An address is never held twice.
//
// head is the next insert position and tail the next removal; count
// disambiguates empty from full when head == tail.
type ReadQueue struct {
	buf   []knx.GroupAddress
	head  int
	tail  int
	count int
}

// NewReadQueue creates a queue holding at most capacity addresses.
func NewReadQueue(capacity int) *ReadQueue {
	return &ReadQueue{buf: make([]knx.GroupAddress, max(capacity, 0))}
}

// IsEmpty reports whether no address is queued.
func (q *ReadQueue) IsEmpty() bool {
	return q.count == 0
}

// Len returns the number of queued addresses.
func (q *ReadQueue) Len() int {
	return q.count
}

// Cap returns the queue capacity.
func (q *ReadQueue) Cap() int {
	return len(q.buf)
}

// Contains reports whether addr is queued. It walks the live arc from tail
// towards head, wrapping at the end of the buffer.
func (q *ReadQueue) Contains(addr knx.GroupAddress) bool {
	for i, pos := 0, q.tail; i < q.count; i++ {
		if q.buf[pos] == addr {
			return true
		}
		pos = q.next(pos)
	}
	return false
}

// Push appends addr. It is a no-op, returning false, for the none address,
// an address already queued, or a full queue.
func (q *ReadQueue) Push(addr knx.GroupAddress) bool {
	if addr.IsZero() || q.count == len(q.buf) || q.Contains(addr) {
		return false
	}

	q.buf[q.head] = addr
	q.head = q.next(q.head)
	q.count++
	return true
}

// Pop removes and returns the oldest address. ok is false when empty.
func (q *ReadQueue) Pop() (addr knx.GroupAddress, ok bool) {
	if q.count == 0 {
		return knx.GroupAddress{}, false
	}

	addr = q.buf[q.tail]
	q.buf[q.tail] = knx.GroupAddress{}
	q.tail = q.next(q.tail)
	q.count--
	return addr, true
}

// Retain drops every queued address for which keep returns false,
// preserving the order of the rest. Returns the number dropped.
func (q *ReadQueue) Retain(keep func(knx.GroupAddress) bool) int {
	n := q.count
	kept := make([]knx.GroupAddress, 0, n)
	for i := 0; i < n; i++ {
		addr, _ := q.Pop()
		if keep(addr) {
			kept = append(kept, addr)
		}
	}
	for _, addr := range kept {
		q.Push(addr)
	}
	return n - len(kept)
}

func (q *ReadQueue) next(pos int) int {
	pos++
	if pos == len(q.buf) {
		return 0
	}
	return pos
}
