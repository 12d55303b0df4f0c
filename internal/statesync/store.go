package statesync

import (
	"fmt"

	"github.com/nerrad567/knx-statemonitor/internal/bridges/knx"
)

// AddressState is the synchronisation record of one input slot.
// A zero group address means "none".
type AddressState struct {
	// CommandAddress receives telegrams produced by the slot's input events.
	CommandAddress knx.GroupAddress

	// StateAddress is where the actuator reports its state. None means the
	// slot is not synchronised: never queued, never matched, never stale.
	StateAddress knx.GroupAddress

	// CurrentState is the last boolean seen on StateAddress.
	CurrentState bool

	// LastUpdate is when CurrentState was last set from the bus.
	// Only meaningful when Updated is true.
	LastUpdate Ticks

	// Updated is false until the first state telegram arrives.
	Updated bool
}

// Store is a fixed table of AddressState indexed by 1-based slot.
type Store struct {
	slots []AddressState
}

// NewStore allocates a store for slots 1..n.
func NewStore(n int) *Store {
	return &Store{slots: make([]AddressState, max(n, 0))}
}

// Slots returns the number of slots.
func (s *Store) Slots() int {
	return len(s.slots)
}

func (s *Store) index(slot int) (int, error) {
	if slot < 1 || slot > len(s.slots) {
		return 0, fmt.Errorf("%w: %d (have 1-%d)", ErrInvalidSlot, slot, len(s.slots))
	}
	return slot - 1, nil
}

// Configure sets the addresses of a slot. A nil pointer leaves that field
// unchanged. When the state address changes to a non-none value, that
// address is returned so the caller can queue an immediate refresh.
//
// Returns:
//   - enqueue: state address to refresh, zero if none
//   - error: ErrInvalidSlot; the store is unchanged
func (s *Store) Configure(slot int, cmd, state *knx.GroupAddress) (knx.GroupAddress, error) {
	i, err := s.index(slot)
	if err != nil {
		return knx.GroupAddress{}, err
	}

	entry := &s.slots[i]
	if cmd != nil {
		entry.CommandAddress = *cmd
	}

	var enqueue knx.GroupAddress
	if state != nil && *state != entry.StateAddress {
		entry.StateAddress = *state
		// The previous value belonged to another address
		entry.Updated = false
		entry.CurrentState = false
		enqueue = *state
	}
	return enqueue, nil
}

// Get returns a copy of the slot's record.
func (s *Store) Get(slot int) (AddressState, bool) {
	i, err := s.index(slot)
	if err != nil {
		return AddressState{}, false
	}
	return s.slots[i], true
}

// ApplyUpdate records value for every slot whose state address is addr.
// Returns the number of slots updated.
func (s *Store) ApplyUpdate(addr knx.GroupAddress, value bool, now Ticks) int {
	if addr.IsZero() {
		return 0
	}

	n := 0
	for i := range s.slots {
		if s.slots[i].StateAddress != addr {
			continue
		}
		s.slots[i].CurrentState = value
		s.slots[i].LastUpdate = now
		s.slots[i].Updated = true
		n++
	}
	return n
}

// HasStateAddress reports whether any slot synchronises addr.
func (s *Store) HasStateAddress(addr knx.GroupAddress) bool {
	if addr.IsZero() {
		return false
	}
	for i := range s.slots {
		if s.slots[i].StateAddress == addr {
			return true
		}
	}
	return false
}

// StateAddresses returns the distinct non-none state addresses in slot order.
func (s *Store) StateAddresses() []knx.GroupAddress {
	seen := make(map[knx.GroupAddress]struct{}, len(s.slots))
	var out []knx.GroupAddress
	for _, e := range s.slots {
		if e.StateAddress.IsZero() {
			continue
		}
		if _, ok := seen[e.StateAddress]; ok {
			continue
		}
		seen[e.StateAddress] = struct{}{}
		out = append(out, e.StateAddress)
	}
	return out
}
