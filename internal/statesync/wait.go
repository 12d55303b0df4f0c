package statesync

import "github.com/nerrad567/knx-statemonitor/internal/bridges/knx"

// Wait tracks the single read request in flight. The zero value is idle.
type Wait struct {
	addr    knx.GroupAddress
	since   Ticks
	waiting bool
}

// Idle reports whether no read is outstanding.
func (w *Wait) Idle() bool {
	return !w.waiting
}

// Awaited returns the address being waited for.
func (w *Wait) Awaited() (knx.GroupAddress, bool) {
	return w.addr, w.waiting
}

// Arm starts waiting for addr. It refuses, returning false, while another
// read is outstanding.
func (w *Wait) Arm(addr knx.GroupAddress, now Ticks) bool {
	if w.waiting || addr.IsZero() {
		return false
	}
	w.addr = addr
	w.since = now
	w.waiting = true
	return true
}

// Resolve clears the wait if addr is the awaited address.
func (w *Wait) Resolve(addr knx.GroupAddress) bool {
	if !w.waiting || w.addr != addr {
		return false
	}
	w.clear()
	return true
}

// Expired clears the wait once more than timeout ticks have passed since it
// was armed, and returns the address so the caller can queue it again.
func (w *Wait) Expired(now, timeout Ticks) (knx.GroupAddress, bool) {
	if !w.waiting || Elapsed(now, w.since) <= timeout {
		return knx.GroupAddress{}, false
	}
	addr := w.addr
	w.clear()
	return addr, true
}

func (w *Wait) clear() {
	*w = Wait{}
}
