//go:build !linux

package input

// GPIOSource is not available on non-Linux platforms.
type GPIOSource struct{}

// OpenGPIO returns ErrUnsupported on non-Linux platforms.
func OpenGPIO(string, []int) (*GPIOSource, error) {
	return nil, ErrUnsupported
}

// Pins returns 0.
func (g *GPIOSource) Pins() int { return 0 }

// Sample is not implemented on non-Linux platforms.
func (g *GPIOSource) Sample() ([]uint16, error) { return nil, ErrUnsupported }

// Close is a no-op.
func (g *GPIOSource) Close() error { return nil }
