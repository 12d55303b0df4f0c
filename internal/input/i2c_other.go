//go:build !linux

package input

// OpenI2CBus is not available on non-Linux platforms.
func OpenI2CBus(int) (I2CBus, error) {
	return nil, ErrUnsupported
}
