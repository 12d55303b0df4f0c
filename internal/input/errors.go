package input

import "errors"

// Domain errors for the input package.
var (
	// ErrInvalidInputType is returned when an input type name is unknown.
	ErrInvalidInputType = errors.New("input: invalid input type")

	// ErrNoExpanders is returned when an I2C scan finds no MCP23017.
	ErrNoExpanders = errors.New("input: no expanders found")

	// ErrInvalidPin is returned for a pin outside the source's range.
	ErrInvalidPin = errors.New("input: invalid pin")

	// ErrUnsupported is returned on platforms without the hardware interface.
	ErrUnsupported = errors.New("input: not supported on this platform")
)
