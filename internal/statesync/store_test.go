package statesync

import (
	"errors"
	"testing"

	"github.com/nerrad567/knx-statemonitor/internal/bridges/knx"
)

func ptr(a knx.GroupAddress) *knx.GroupAddress { return &a }

func TestStoreConfigure(t *testing.T) {
	s := NewStore(4)

	enqueue, err := s.Configure(1, ptr(ga(1, 2, 3)), ptr(ga(1, 2, 4)))
	if err != nil {
		t.Fatalf("Configure() error: %v", err)
	}
	if enqueue != ga(1, 2, 4) {
		t.Errorf("enqueue = %s, want 1/2/4", enqueue)
	}

	got, ok := s.Get(1)
	if !ok {
		t.Fatal("Get(1) ok = false")
	}
	if got.CommandAddress != ga(1, 2, 3) || got.StateAddress != ga(1, 2, 4) {
		t.Errorf("Get(1) = %+v", got)
	}
	if got.Updated || got.CurrentState {
		t.Errorf("new slot should be never-updated and false, got %+v", got)
	}

	// Same state address again: nothing to refresh
	enqueue, _ = s.Configure(1, nil, ptr(ga(1, 2, 4)))
	if !enqueue.IsZero() {
		t.Errorf("unchanged state address enqueue = %s, want none", enqueue)
	}

	// Nil fields stay as they were
	s.Configure(1, nil, nil)
	if got, _ := s.Get(1); got.CommandAddress != ga(1, 2, 3) {
		t.Errorf("CommandAddress changed by nil update: %s", got.CommandAddress)
	}

	// Clearing the state address does not enqueue
	enqueue, _ = s.Configure(1, nil, ptr(knx.GroupAddress{}))
	if !enqueue.IsZero() {
		t.Errorf("clearing state address enqueue = %s, want none", enqueue)
	}
}

func TestStoreConfigureInvalidSlot(t *testing.T) {
	s := NewStore(2)

	for _, slot := range []int{0, 3, -1} {
		_, err := s.Configure(slot, ptr(ga(1, 0, 1)), ptr(ga(1, 0, 2)))
		if !errors.Is(err, ErrInvalidSlot) {
			t.Errorf("Configure(%d) error = %v, want ErrInvalidSlot", slot, err)
		}
	}
	for slot := 1; slot <= 2; slot++ {
		if got, _ := s.Get(slot); got != (AddressState{}) {
			t.Errorf("slot %d modified by invalid configure: %+v", slot, got)
		}
	}
	if _, ok := s.Get(3); ok {
		t.Error("Get(3) ok = true on 2-slot store")
	}
}

func TestStoreApplyUpdateSharedAddress(t *testing.T) {
	s := NewStore(3)
	s.Configure(1, nil, ptr(ga(2, 0, 1)))
	s.Configure(2, nil, ptr(ga(2, 0, 1)))
	s.Configure(3, nil, ptr(ga(2, 0, 2)))

	if n := s.ApplyUpdate(ga(2, 0, 1), true, 42); n != 2 {
		t.Errorf("ApplyUpdate() = %d, want 2", n)
	}

	for _, slot := range []int{1, 2} {
		got, _ := s.Get(slot)
		if !got.CurrentState || got.LastUpdate != 42 || !got.Updated {
			t.Errorf("slot %d = %+v, want state true at 42", slot, got)
		}
	}
	if got, _ := s.Get(3); got.Updated {
		t.Errorf("slot 3 updated by another address: %+v", got)
	}

	if n := s.ApplyUpdate(knx.GroupAddress{}, true, 50); n != 0 {
		t.Errorf("ApplyUpdate(none) = %d, want 0", n)
	}
}

func TestStoreStateAddresses(t *testing.T) {
	s := NewStore(4)
	s.Configure(1, nil, ptr(ga(2, 0, 1)))
	s.Configure(2, nil, ptr(ga(2, 0, 1)))
	s.Configure(4, nil, ptr(ga(2, 0, 3)))

	got := s.StateAddresses()
	want := []knx.GroupAddress{ga(2, 0, 1), ga(2, 0, 3)}
	if len(got) != len(want) {
		t.Fatalf("StateAddresses() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("StateAddresses()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestStoreHasStateAddress(t *testing.T) {
	s := NewStore(2)
	s.Configure(1, nil, ptr(ga(2, 0, 1)))
	s.Configure(2, ptr(ga(1, 0, 2)), nil)

	tests := []struct {
		addr knx.GroupAddress
		want bool
	}{
		{ga(2, 0, 1), true},
		{ga(1, 0, 2), false},
		{ga(2, 0, 2), false},
		{knx.GroupAddress{}, false},
	}
	for _, tt := range tests {
		if got := s.HasStateAddress(tt.addr); got != tt.want {
			t.Errorf("HasStateAddress(%s) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}
