package statesync

import (
	"testing"

	"github.com/nerrad567/knx-statemonitor/internal/bridges/knx"
)

func ga(main, middle, sub uint8) knx.GroupAddress {
	return knx.GroupAddress{Main: main, Middle: middle, Sub: sub}
}

func TestReadQueueFIFO(t *testing.T) {
	q := NewReadQueue(4)
	want := []knx.GroupAddress{ga(1, 0, 1), ga(1, 0, 2), ga(1, 0, 3), ga(1, 0, 4)}

	for _, a := range want {
		if !q.Push(a) {
			t.Fatalf("Push(%s) = false, want true", a)
		}
	}
	if q.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", q.Len())
	}

	for _, a := range want {
		got, ok := q.Pop()
		if !ok || got != a {
			t.Errorf("Pop() = %s, %v; want %s, true", got, ok, a)
		}
	}
	if !q.IsEmpty() {
		t.Error("IsEmpty() = false after draining")
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on empty queue returned ok")
	}
}

func TestReadQueueDedup(t *testing.T) {
	q := NewReadQueue(4)
	a := ga(2, 1, 7)

	if !q.Push(a) {
		t.Fatal("first Push() = false")
	}
	for i := 0; i < 5; i++ {
		if q.Push(a) {
			t.Fatalf("duplicate Push() #%d = true", i)
		}
	}
	if q.Len() != 1 {
		t.Errorf("Len() = %d, want 1", q.Len())
	}

	// Once popped it may be queued again
	q.Pop()
	if !q.Push(a) {
		t.Error("Push() after Pop() = false, want true")
	}
}

func TestReadQueueIgnoresNone(t *testing.T) {
	q := NewReadQueue(2)
	if q.Push(knx.GroupAddress{}) {
		t.Error("Push(0/0/0) = true, want false")
	}
	if !q.IsEmpty() {
		t.Error("queue not empty after pushing none")
	}
}

func TestReadQueueContainsAcrossWrap(t *testing.T) {
	q := NewReadQueue(3)

	// Advance tail and head so the live arc wraps the end of the buffer
	q.Push(ga(1, 0, 1))
	q.Push(ga(1, 0, 2))
	q.Pop()
	q.Pop()
	q.Push(ga(1, 0, 3)) // index 2
	q.Push(ga(1, 0, 4)) // index 0 (wrapped)
	q.Push(ga(1, 0, 5)) // index 1

	for _, a := range []knx.GroupAddress{ga(1, 0, 3), ga(1, 0, 4), ga(1, 0, 5)} {
		if !q.Contains(a) {
			t.Errorf("Contains(%s) = false, want true", a)
		}
		if q.Push(a) {
			t.Errorf("Push(%s) duplicate across wrap = true", a)
		}
	}
	// Popped entries are no longer contained
	if q.Contains(ga(1, 0, 1)) || q.Contains(ga(1, 0, 2)) {
		t.Error("Contains() reports a popped address")
	}

	for _, want := range []knx.GroupAddress{ga(1, 0, 3), ga(1, 0, 4), ga(1, 0, 5)} {
		if got, _ := q.Pop(); got != want {
			t.Errorf("Pop() = %s, want %s", got, want)
		}
	}
}

func TestReadQueueFullAbsorbsPush(t *testing.T) {
	q := NewReadQueue(2)
	q.Push(ga(1, 0, 1))
	q.Push(ga(1, 0, 2))

	if q.Push(ga(1, 0, 3)) {
		t.Error("Push() on full queue = true, want false")
	}
	if got, _ := q.Pop(); got != ga(1, 0, 1) {
		t.Errorf("Pop() = %s, want 1/0/1 (full push must not overwrite)", got)
	}
}

func TestReadQueueRetain(t *testing.T) {
	q := NewReadQueue(4)
	// Wrap the ring before filtering
	q.Push(ga(9, 0, 0))
	q.Push(ga(9, 0, 1))
	q.Pop()
	q.Pop()
	for _, a := range []knx.GroupAddress{ga(1, 0, 1), ga(1, 0, 2), ga(1, 0, 3), ga(1, 0, 4)} {
		q.Push(a)
	}

	dropped := q.Retain(func(a knx.GroupAddress) bool { return a.Sub%2 == 0 })
	if dropped != 2 {
		t.Errorf("Retain() = %d, want 2", dropped)
	}
	if q.Len() != 2 || q.Contains(ga(1, 0, 1)) {
		t.Fatalf("after Retain() Len = %d, Contains(1/0/1) = %v", q.Len(), q.Contains(ga(1, 0, 1)))
	}
	for _, want := range []knx.GroupAddress{ga(1, 0, 2), ga(1, 0, 4)} {
		if got, _ := q.Pop(); got != want {
			t.Errorf("Pop() = %s, want %s", got, want)
		}
	}
}

func TestReadQueueZeroCapacity(t *testing.T) {
	q := NewReadQueue(0)
	if q.Push(ga(1, 0, 1)) {
		t.Error("Push() on zero-capacity queue = true")
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on zero-capacity queue returned ok")
	}
}
