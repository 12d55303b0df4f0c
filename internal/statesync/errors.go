package statesync

import "errors"

// Domain errors for the statesync package.
var (
	// ErrInvalidSlot is returned for a slot index outside 1..Slots().
	ErrInvalidSlot = errors.New("statesync: invalid slot")
)
