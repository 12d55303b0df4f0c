//go:build linux

package input

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// i2cSlave is the i2c-dev ioctl selecting the target device address.
const i2cSlave = 0x0703

// devI2C is an I2CBus on a Linux i2c-dev character device.
type devI2C struct {
	fd   int
	path string
}

// OpenI2CBus opens /dev/i2c-<n>.
func OpenI2CBus(n int) (I2CBus, error) {
	path := fmt.Sprintf("/dev/i2c-%d", n)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &devI2C{fd: fd, path: path}, nil
}

func (d *devI2C) SetAddress(addr uint8) error {
	if err := unix.IoctlSetInt(d.fd, i2cSlave, int(addr)); err != nil {
		return fmt.Errorf("%s: select 0x%02X: %w", d.path, addr, err)
	}
	return nil
}

func (d *devI2C) Write(b []byte) error {
	n, err := unix.Write(d.fd, b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("%s: short write %d/%d", d.path, n, len(b))
	}
	return nil
}

func (d *devI2C) Read(b []byte) error {
	n, err := unix.Read(d.fd, b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return fmt.Errorf("%s: short read %d/%d", d.path, n, len(b))
	}
	return nil
}

func (d *devI2C) Close() error {
	return unix.Close(d.fd)
}
