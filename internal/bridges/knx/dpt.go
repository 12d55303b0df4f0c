package knx

import "fmt"

// DPT represents a KNX Datapoint Type identifier.
//
// Format: "major.minor" (e.g., "1.001", "3.007")
type DPT string

// Datapoint types exchanged by the state monitor.
const (
	// 1-bit types (DPT 1.xxx)
	DPTSwitch DPT = "1.001" // 0=Off, 1=On
	DPTUpDown DPT = "1.008" // 0=Up, 1=Down

	// 4-bit types (DPT 3.xxx)
	DPTDimmingControl DPT = "3.007" // Direction + steps
)

// dpt3StepMask selects the step code bits of a DPT 3 value.
const dpt3StepMask = 0x07

// EncodeDPT1 encodes a boolean value to 1-bit KNX format.
//
// Parameters:
//   - value: Boolean value to encode
//
// Returns:
//   - []byte: Single byte with LSB set to 0 or 1
func EncodeDPT1(value bool) []byte {
	if value {
		return []byte{0x01}
	}
	return []byte{0x00}
}

// DecodeDPT1 decodes a 1-bit KNX value to boolean.
func DecodeDPT1(data []byte) (bool, error) {
	if len(data) < 1 {
		return false, fmt.Errorf("%w: DPT1 requires 1 byte, got %d", ErrDecodingFailed, len(data))
	}
	return (data[0] & 0x01) != 0, nil
}

// EncodeDPT3 encodes a relative dimming/blind control value.
//
// Parameters:
//   - increase: True for increase/up, false for decrease/down
//   - steps: Step code (0-7, where 0 means stop)
//
// Returns:
//   - []byte: Single byte with control bits
func EncodeDPT3(increase bool, steps uint8) []byte {
	var value byte
	if increase {
		value = 0x08 // Bit 3 = direction (1=increase)
	}
	value |= steps & dpt3StepMask
	return []byte{value}
}

// DecodeDPT3 decodes a relative dimming/blind control value.
func DecodeDPT3(data []byte) (increase bool, steps uint8, err error) {
	if len(data) < 1 {
		return false, 0, fmt.Errorf("%w: DPT3 requires 1 byte, got %d", ErrDecodingFailed, len(data))
	}
	increase = (data[0] & 0x08) != 0
	steps = data[0] & dpt3StepMask
	return increase, steps, nil
}
