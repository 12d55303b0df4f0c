package knx

import (
	"fmt"
	"strconv"
	"strings"
)

// GroupAddress represents a KNX group address in 3-level format.
//
// Format: Main/Middle/Sub
//   - Main:   0-31 (5 bits)
//   - Middle: 0-7  (3 bits)
//   - Sub:    0-255 (8 bits)
//
// The zero value (0/0/0) is never used as a functional address on the bus
// and stands for "not configured" throughout this module.
type GroupAddress struct {
	Main   uint8
	Middle uint8
	Sub    uint8
}

// IndividualAddress represents a KNX device address in Area.Line.Member format.
//
// Format: Area.Line.Member
//   - Area:   0-15 (4 bits)
//   - Line:   0-15 (4 bits)
//   - Member: 0-255 (8 bits)
type IndividualAddress struct {
	Area   uint8
	Line   uint8
	Member uint8
}

// Address limits per KNX specification.
const (
	maxMain   = 31
	maxMiddle = 7
	maxSub    = 255

	maxArea   = 15
	maxLine   = 15
	maxMember = 255

	// levelCount is the number of levels in both address notations.
	levelCount = 3

	// Bit masks for extracting group address parts from uint16.
	gaMainMask   = 0x1F // 5 bits
	gaMiddleMask = 0x07 // 3 bits
	gaSubMask    = 0xFF // 8 bits

	// Bit masks for extracting individual address parts from uint16.
	iaAreaMask   = 0x0F
	iaLineMask   = 0x0F
	iaMemberMask = 0xFF
)

// DefaultIndividualAddress is the bus address used until one is configured.
var DefaultIndividualAddress = IndividualAddress{Area: 1, Line: 1, Member: 244}

// ParseGroupAddress parses a 3-level group address string.
//
// Accepts formats:
//   - "1/2/3": standard 3-level format
//
// Parameters:
//   - s: Group address string
//
// Returns:
//   - GroupAddress: Parsed address
//   - error: ErrInvalidGroupAddress if parsing fails
func ParseGroupAddress(s string) (GroupAddress, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != levelCount {
		return GroupAddress{}, fmt.Errorf("%w: expected 3-level format (main/middle/sub), got %q", ErrInvalidGroupAddress, s)
	}

	main, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil || main > maxMain {
		return GroupAddress{}, fmt.Errorf("%w: main group must be 0-%d, got %q", ErrInvalidGroupAddress, maxMain, parts[0])
	}

	middle, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil || middle > maxMiddle {
		return GroupAddress{}, fmt.Errorf("%w: middle group must be 0-%d, got %q", ErrInvalidGroupAddress, maxMiddle, parts[1])
	}

	sub, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil || sub > maxSub {
		return GroupAddress{}, fmt.Errorf("%w: sub group must be 0-%d, got %q", ErrInvalidGroupAddress, maxSub, parts[2])
	}

	return GroupAddress{
		Main:   uint8(main),
		Middle: uint8(middle),
		Sub:    uint8(sub),
	}, nil
}

// String returns the group address in 3-level format.
//
// Example: "1/2/3"
func (ga GroupAddress) String() string {
	return fmt.Sprintf("%d/%d/%d", ga.Main, ga.Middle, ga.Sub)
}

// IsZero reports whether the address is 0/0/0, i.e. unconfigured.
func (ga GroupAddress) IsZero() bool {
	return ga == GroupAddress{}
}

// ToUint16 converts the group address to a 16-bit integer.
//
// Layout: MMMM MSSS SSSS SSSS
//   - M = Main (5 bits)
//   - S = Middle (3 bits) + Sub (8 bits)
func (ga GroupAddress) ToUint16() uint16 {
	return uint16(ga.Main)<<11 | uint16(ga.Middle)<<8 | uint16(ga.Sub)
}

// GroupAddressFromUint16 creates a GroupAddress from a 16-bit integer.
func GroupAddressFromUint16(value uint16) GroupAddress {
	return GroupAddress{
		Main:   uint8((value >> 11) & gaMainMask),  //nolint:gosec // masked to 5 bits (0-31)
		Middle: uint8((value >> 8) & gaMiddleMask), //nolint:gosec // masked to 3 bits (0-7)
		Sub:    uint8(value & gaSubMask),           //nolint:gosec // masked to 8 bits (0-255)
	}
}

// IsValid returns true if the group address values are within valid ranges.
func (ga GroupAddress) IsValid() bool {
	return ga.Main <= maxMain && ga.Middle <= maxMiddle
}

// ParseIndividualAddress parses an "area.line.member" device address.
//
// Example:
//
//	ia, err := ParseIndividualAddress("1.1.244")
func ParseIndividualAddress(s string) (IndividualAddress, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != levelCount {
		return IndividualAddress{}, fmt.Errorf("%w: expected area.line.member, got %q", ErrInvalidIndividualAddress, s)
	}

	area, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil || area > maxArea {
		return IndividualAddress{}, fmt.Errorf("%w: area must be 0-%d, got %q", ErrInvalidIndividualAddress, maxArea, parts[0])
	}

	line, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil || line > maxLine {
		return IndividualAddress{}, fmt.Errorf("%w: line must be 0-%d, got %q", ErrInvalidIndividualAddress, maxLine, parts[1])
	}

	member, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil || member > maxMember {
		return IndividualAddress{}, fmt.Errorf("%w: member must be 0-%d, got %q", ErrInvalidIndividualAddress, maxMember, parts[2])
	}

	return IndividualAddress{
		Area:   uint8(area),
		Line:   uint8(line),
		Member: uint8(member),
	}, nil
}

// String returns the individual address in "A.L.M" format.
func (ia IndividualAddress) String() string {
	return fmt.Sprintf("%d.%d.%d", ia.Area, ia.Line, ia.Member)
}

// ToUint16 converts the individual address to its 16-bit wire form.
//
// Layout: AAAA LLLL MMMM MMMM
func (ia IndividualAddress) ToUint16() uint16 {
	return uint16(ia.Area&iaAreaMask)<<12 | uint16(ia.Line&iaLineMask)<<8 | uint16(ia.Member)
}

// IndividualAddressFromUint16 decodes a 16-bit individual address.
func IndividualAddressFromUint16(value uint16) IndividualAddress {
	return IndividualAddress{
		Area:   uint8((value >> 12) & iaAreaMask), //nolint:gosec // masked to 4 bits
		Line:   uint8((value >> 8) & iaLineMask),  //nolint:gosec // masked to 4 bits
		Member: uint8(value & iaMemberMask),       //nolint:gosec // masked to 8 bits
	}
}
