package monitor

import "errors"

// Domain errors for the monitor package.
var (
	// ErrInvalidPayload is returned when an MQTT payload is not valid JSON
	// for its topic.
	ErrInvalidPayload = errors.New("monitor: invalid payload")

	// ErrInvalidSlot is returned for a slot index outside 1..slots.
	ErrInvalidSlot = errors.New("monitor: invalid slot")

	// ErrInvalidCommandValue is returned for a knxValue other than
	// on, off, up or down.
	ErrInvalidCommandValue = errors.New("monitor: invalid command value")

	// ErrStopped is returned when a message arrives after Stop.
	ErrStopped = errors.New("monitor: stopped")
)
