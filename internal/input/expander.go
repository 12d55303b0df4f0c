package input

import (
	"errors"
	"fmt"
)

// MCP23017 register addresses (IOCON.BANK = 0).
const (
	mcpIODIRA = 0x00
	mcpGPPUA  = 0x0C
	mcpGPIOA  = 0x12

	// MCP23017 base and last I2C addresses (A2..A0 strapping).
	mcpFirstAddress = 0x20
	mcpLastAddress  = 0x27
)

// I2CBus is a Linux i2c-dev style bus: select a device, then transfer.
type I2CBus interface {
	SetAddress(addr uint8) error
	Write(b []byte) error
	Read(b []byte) error
	Close() error
}

// Expander reads the MCP23017 I/O expanders found on an I2C bus. Each chip
// provides one bank of 16 pins, in address order.
type Expander struct {
	bus       I2CBus
	addresses []uint8
}

// NewExpander scans 0x20-0x27 on bus and configures every chip that
// answers as 16 inputs with pull-ups. Returns ErrNoExpanders when nothing
// answers.
func NewExpander(bus I2CBus) (*Expander, error) {
	e := &Expander{bus: bus}

	for addr := uint8(mcpFirstAddress); addr <= mcpLastAddress; addr++ {
		if err := e.configure(addr); err != nil {
			continue // nothing at this address
		}
		e.addresses = append(e.addresses, addr)
	}

	if len(e.addresses) == 0 {
		return nil, ErrNoExpanders
	}
	return e, nil
}

func (e *Expander) configure(addr uint8) error {
	if err := e.bus.SetAddress(addr); err != nil {
		return err
	}
	// IODIRA/IODIRB all inputs
	if err := e.bus.Write([]byte{mcpIODIRA, 0xFF, 0xFF}); err != nil {
		return err
	}
	// GPPUA/GPPUB pull-ups on
	return e.bus.Write([]byte{mcpGPPUA, 0xFF, 0xFF})
}

// Addresses returns the I2C addresses of the expanders in bank order.
func (e *Expander) Addresses() []uint8 {
	return append([]uint8(nil), e.addresses...)
}

// Pins returns 16 pins per expander.
func (e *Expander) Pins() int {
	return len(e.addresses) * PinsPerBank
}

// Sample reads GPIOA and GPIOB of every expander. Port A is the low byte.
func (e *Expander) Sample() ([]uint16, error) {
	out := make([]uint16, len(e.addresses))
	buf := make([]byte, 2)

	for i, addr := range e.addresses {
		if err := e.bus.SetAddress(addr); err != nil {
			return nil, fmt.Errorf("select expander 0x%02X: %w", addr, err)
		}
		if err := e.bus.Write([]byte{mcpGPIOA}); err != nil {
			return nil, fmt.Errorf("expander 0x%02X register select: %w", addr, err)
		}
		if err := e.bus.Read(buf); err != nil {
			return nil, fmt.Errorf("expander 0x%02X read: %w", addr, err)
		}
		out[i] = uint16(buf[0]) | uint16(buf[1])<<8
	}
	return out, nil
}

// Close releases the bus.
func (e *Expander) Close() error {
	if e.bus == nil {
		return nil
	}
	return e.bus.Close()
}

// OpenExpander opens /dev/i2c-<bus> and scans it for expanders.
func OpenExpander(busNumber int) (*Expander, error) {
	bus, err := OpenI2CBus(busNumber)
	if err != nil {
		return nil, err
	}

	e, err := NewExpander(bus)
	if err != nil {
		return nil, errors.Join(err, bus.Close())
	}
	return e, nil
}
