package knx

import (
	"encoding/binary"
	"fmt"
	"time"
)

// knxd protocol message types.
const (
	// EIBOpenGroupCon opens a group socket for sending/receiving group telegrams.
	// Format: type(2) + reserved(1) + write_only(1) + reserved(1)
	EIBOpenGroupCon uint16 = 0x0026

	// EIBGroupPacket is used to send and receive group telegrams.
	// Payload format: GA(2) + APDU (2+ bytes)
	EIBGroupPacket uint16 = 0x0027

	// EIBClose closes the knxd connection gracefully.
	EIBClose uint16 = 0x0006
)

// APCI (Application Protocol Control Information) codes.
const (
	// APCIRead is a group read request (asks device for current value).
	APCIRead byte = 0x00

	// APCIResponse is a group read response (device answers read request).
	APCIResponse byte = 0x40

	// APCIWrite is a group write (sends value to devices listening on GA).
	APCIWrite byte = 0x80
)

// Frame layout constants.
const (
	// knxdHeaderSize is the size of the knxd message header (size + type).
	knxdHeaderSize = 4

	// groupPacketMinLen is source(2) + dest(2) + TPCI(1) + APCI(1).
	groupPacketMinLen = 6

	// shortDataMask selects the 6 data bits carried in the APCI byte.
	shortDataMask = 0x3F

	// apciMask selects the two APCI bits of the second APDU byte.
	apciMask = 0xC0

	// tpciAPCIMask selects the two high APCI bits carried in the TPCI byte.
	// They are zero for group read, response and write.
	tpciAPCIMask = 0x03

	// standardFrameHeader is control(1) + source(2) + dest(2) + DAF/hops/length(1).
	standardFrameHeader = 6

	// standardControl is a standard frame, not repeated, low priority.
	standardControl = 0xBC

	// controlStandardMask/controlStandardValue identify a standard L_Data frame.
	controlStandardMask  = 0xD3
	controlStandardValue = 0x90

	// dafGroupBit marks a multicast (group) destination in byte 5.
	dafGroupBit = 0x80

	// defaultHopCount is the routing counter for frames we originate.
	defaultHopCount = 6

	// frameLengthMask selects the TPDU length bits of byte 5.
	frameLengthMask = 0x0F
)

// Telegram represents a KNX telegram.
//
// A telegram is the basic unit of communication on the KNX bus.
// It carries a command (read/write/response) and optional data
// to a destination address.
type Telegram struct {
	// Source is the sender's individual address.
	// Only populated for received telegrams.
	Source IndividualAddress

	// Destination is the target group address. Only meaningful when
	// GroupTarget is true.
	Destination GroupAddress

	// GroupTarget is true when the destination is a multicast group address.
	GroupTarget bool

	// APCI indicates the telegram type (read, response, or write).
	APCI byte

	// Data contains the DPT-encoded payload (may be empty for reads).
	Data []byte

	// ShortFrame is true when the value was carried in the low 6 bits of
	// the APCI byte (1-bit, 4-bit and other sub-byte datapoints).
	ShortFrame bool

	// Timestamp records when the telegram was received or created.
	Timestamp time.Time
}

// ParseTelegram parses a raw knxd group packet into a Telegram.
//
// The received format (EIB_OPEN_GROUPCON / EIB_GROUP_PACKET) is:
//
//	Byte 0-1: Source individual address (big-endian)
//	Byte 2-3: Destination group address (big-endian)
//	Byte 4:   TPCI (transport control, usually 0x00)
//	Byte 5:   APCI (upper 2 bits) | data (lower 6 bits) for short frames
//	Byte 6+:  Additional data bytes for long frames
//
// Note: The receive format includes a source address prefix that the send
// format does not. This is an asymmetry in knxd's GROUPCON protocol.
func ParseTelegram(data []byte) (Telegram, error) {
	if len(data) < groupPacketMinLen {
		return Telegram{}, fmt.Errorf("%w: too short (%d bytes, need at least %d)", ErrInvalidTelegram, len(data), groupPacketMinLen)
	}

	t := Telegram{
		Source:      IndividualAddressFromUint16(binary.BigEndian.Uint16(data[0:2])),
		Destination: GroupAddressFromUint16(binary.BigEndian.Uint16(data[2:4])),
		GroupTarget: true, // GROUPCON only ever delivers group telegrams
		Timestamp:   time.Now(),
	}
	var err error
	if t.APCI, t.Data, t.ShortFrame, err = decodeAPDU(data[4:]); err != nil {
		return Telegram{}, err
	}
	return t, nil
}

// decodeAPDU splits a TPDU (TPCI, APCI and any trailing data bytes). Other
// application services such as memory or property access are rejected.
func decodeAPDU(tpdu []byte) (apci byte, payload []byte, short bool, err error) {
	if high := tpdu[0] & tpciAPCIMask; high != 0 {
		return 0, nil, false, fmt.Errorf("%w: unsupported APCI 0x%03X", ErrInvalidTelegram, uint16(high)<<8|uint16(tpdu[1]&apciMask))
	}
	apciLow, rest := tpdu[1], tpdu[2:]
	apci = apciLow & apciMask

	switch {
	case len(rest) > 0:
		payload = make([]byte, len(rest))
		copy(payload, rest)
	case apci == APCIWrite || apci == APCIResponse:
		payload = []byte{apciLow & shortDataMask}
		short = true
	}
	// For APCIRead, payload stays nil
	return apci, payload, short, nil
}

// encodeAPDU builds TPCI + APCI (+data) for a group telegram.
func (t Telegram) encodeAPDU() []byte {
	smallData := len(t.Data) == 1 && t.Data[0] <= shortDataMask

	if len(t.Data) == 0 || smallData {
		apdu := []byte{0x00, t.APCI}
		if smallData {
			apdu[1] = t.APCI | (t.Data[0] & shortDataMask)
		}
		return apdu
	}

	apdu := make([]byte, 2+len(t.Data))
	apdu[1] = t.APCI
	copy(apdu[2:], t.Data)
	return apdu
}

// Encode encodes a Telegram to knxd wire format for EIB_OPEN_GROUPCON.
//
// The output format is suitable for sending via EIB_GROUP_PACKET on a GROUPCON socket:
//
//	Byte 0-1: Destination group address (big-endian)
//	Byte 2+:  APDU (2+ bytes): [TPCI|APCI_high, APCI_low|data, extra_data...]
func (t Telegram) Encode() []byte {
	apdu := t.encodeAPDU()
	buf := make([]byte, 2+len(apdu))
	binary.BigEndian.PutUint16(buf[0:2], t.Destination.ToUint16())
	copy(buf[2:], apdu)
	return buf
}

// EncodeFrame encodes the telegram as a standard KNX L_Data frame originating
// from src, including the trailing checksum. This is the form a TP-UART
// transceiver puts on the twisted pair.
//
//	Byte 0:   Control field (0xBC)
//	Byte 1-2: Source individual address
//	Byte 3-4: Destination group address
//	Byte 5:   DAF(1) | hop count(3) | TPDU length - 1 (4)
//	Byte 6+:  TPDU
//	Last:     Checksum (inverted XOR of all preceding bytes)
func (t Telegram) EncodeFrame(src IndividualAddress) []byte {
	apdu := t.encodeAPDU()
	frame := make([]byte, standardFrameHeader+len(apdu)+1)

	frame[0] = standardControl
	binary.BigEndian.PutUint16(frame[1:3], src.ToUint16())
	binary.BigEndian.PutUint16(frame[3:5], t.Destination.ToUint16())
	frame[5] = dafGroupBit | defaultHopCount<<4 | byte(len(apdu)-1)&frameLengthMask //nolint:gosec // APDU length bounded by frame size
	copy(frame[standardFrameHeader:], apdu)
	frame[len(frame)-1] = frameChecksum(frame[:len(frame)-1])

	return frame
}

// ParseFrame decodes a standard KNX L_Data frame including its checksum.
func ParseFrame(frame []byte) (Telegram, error) {
	if len(frame) < standardFrameHeader+3 {
		return Telegram{}, fmt.Errorf("%w: frame too short (%d bytes)", ErrInvalidTelegram, len(frame))
	}
	if frame[0]&controlStandardMask != controlStandardValue {
		return Telegram{}, fmt.Errorf("%w: not a standard frame (control 0x%02X)", ErrInvalidTelegram, frame[0])
	}

	want := standardFrameLength(frame[5])
	if len(frame) != want {
		return Telegram{}, fmt.Errorf("%w: length mismatch (declared %d, got %d)", ErrInvalidTelegram, want, len(frame))
	}
	if sum := frameChecksum(frame[:len(frame)-1]); sum != frame[len(frame)-1] {
		return Telegram{}, fmt.Errorf("%w: checksum 0x%02X, want 0x%02X", ErrInvalidTelegram, frame[len(frame)-1], sum)
	}

	t := Telegram{
		Source:      IndividualAddressFromUint16(binary.BigEndian.Uint16(frame[1:3])),
		Destination: GroupAddressFromUint16(binary.BigEndian.Uint16(frame[3:5])),
		GroupTarget: frame[5]&dafGroupBit != 0,
		Timestamp:   time.Now(),
	}
	var err error
	if t.APCI, t.Data, t.ShortFrame, err = decodeAPDU(frame[standardFrameHeader : len(frame)-1]); err != nil {
		return Telegram{}, err
	}
	return t, nil
}

// standardFrameLength returns the full frame size implied by byte 5.
func standardFrameLength(lengthByte byte) int {
	return standardFrameHeader + int(lengthByte&frameLengthMask) + 1 + 1
}

// frameChecksum computes the KNX odd-parity checksum byte.
func frameChecksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum ^= v
	}
	return ^sum
}

// IsWrite returns true if this is a group write telegram.
func (t Telegram) IsWrite() bool {
	return t.APCI == APCIWrite
}

// IsRead returns true if this is a group read request.
func (t Telegram) IsRead() bool {
	return t.APCI == APCIRead
}

// IsResponse returns true if this is a group read response.
func (t Telegram) IsResponse() bool {
	return t.APCI == APCIResponse
}

// BoolValue returns the payload as a 1-bit boolean. ok is false unless the
// telegram carries exactly one bit of data in a short frame.
func (t Telegram) BoolValue() (value, ok bool) {
	if !t.ShortFrame || len(t.Data) != 1 || t.Data[0] > 1 {
		return false, false
	}
	return t.Data[0] == 1, true
}

// String returns a human-readable representation of the telegram.
func (t Telegram) String() string {
	apciStr := "UNKNOWN"
	switch t.APCI {
	case APCIRead:
		apciStr = "READ"
	case APCIResponse:
		apciStr = "RESPONSE"
	case APCIWrite:
		apciStr = "WRITE"
	}

	return fmt.Sprintf("Telegram{Src:%s, GA:%s, APCI:%s, Data:%X}", t.Source, t.Destination, apciStr, t.Data)
}

// NewWriteTelegram creates a new write telegram.
func NewWriteTelegram(dest GroupAddress, data []byte) Telegram {
	return Telegram{
		Destination: dest,
		GroupTarget: true,
		APCI:        APCIWrite,
		Data:        data,
		ShortFrame:  len(data) == 1 && data[0] <= shortDataMask,
		Timestamp:   time.Now(),
	}
}

// NewReadTelegram creates a new read request telegram.
func NewReadTelegram(dest GroupAddress) Telegram {
	return Telegram{
		Destination: dest,
		GroupTarget: true,
		APCI:        APCIRead,
		Timestamp:   time.Now(),
	}
}

// EncodeKNXDMessage wraps a payload in the knxd message format.
//
// Format:
//
//	Byte 0-1: Size of type + payload (big-endian)
//	Byte 2-3: Message type (big-endian)
//	Byte 4+:  Payload
func EncodeKNXDMessage(msgType uint16, payload []byte) []byte {
	buf := make([]byte, knxdHeaderSize+len(payload))

	// Size field = type(2) + payload length (does NOT include size field itself)
	binary.BigEndian.PutUint16(buf[0:2], uint16(2+len(payload))) //nolint:gosec // bounded by small message sizes
	binary.BigEndian.PutUint16(buf[2:4], msgType)
	copy(buf[4:], payload)

	return buf
}

// ParseKNXDMessage parses a raw knxd message from the socket.
func ParseKNXDMessage(data []byte) (msgType uint16, payload []byte, err error) {
	if len(data) < knxdHeaderSize {
		return 0, nil, fmt.Errorf("%w: message too short (%d bytes)", ErrInvalidTelegram, len(data))
	}

	declaredSize := binary.BigEndian.Uint16(data[0:2])
	expectedSize := len(data) - 2
	if int(declaredSize) != expectedSize {
		return 0, nil, fmt.Errorf("%w: size mismatch (declared %d, expected %d)",
			ErrInvalidTelegram, declaredSize, expectedSize)
	}

	msgType = binary.BigEndian.Uint16(data[2:4])
	if len(data) > knxdHeaderSize {
		payload = data[knxdHeaderSize:]
	}

	return msgType, payload, nil
}
