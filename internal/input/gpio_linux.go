//go:build linux

package input

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOSource reads input lines of a GPIO character device, one pin per
// line in the order given.
type GPIOSource struct {
	chip  *gpiocdev.Chip
	lines *gpiocdev.Lines
	vals  []int
}

// OpenGPIO requests offsets on chip (e.g. "gpiochip0") as inputs with
// pull-ups.
func OpenGPIO(chip string, offsets []int) (*GPIOSource, error) {
	if len(offsets) == 0 {
		return nil, fmt.Errorf("%w: no gpio lines configured", ErrInvalidPin)
	}

	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	lines, err := c.RequestLines(offsets, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("request gpio lines %v: %w", offsets, err)
	}

	return &GPIOSource{chip: c, lines: lines, vals: make([]int, len(offsets))}, nil
}

// Pins returns the number of requested lines.
func (g *GPIOSource) Pins() int {
	return len(g.vals)
}

// Sample reads all lines and packs them into banks of 16.
func (g *GPIOSource) Sample() ([]uint16, error) {
	if err := g.lines.Values(g.vals); err != nil {
		return nil, fmt.Errorf("read gpio lines: %w", err)
	}
	return packLevels(g.vals), nil
}

// Close releases the lines, leaving them as pulled-up inputs.
func (g *GPIOSource) Close() error {
	var errs []error

	if g.lines != nil {
		if err := g.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close lines: %w", err))
		}
	}
	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
