package knx

import "errors"

// Domain errors for the KNX package.
var (
	// ErrNotConnected is returned when an operation requires a bus connection
	// but the transport is not connected.
	ErrNotConnected = errors.New("knx: not connected")

	// ErrConnectionFailed is returned when opening the transport fails.
	ErrConnectionFailed = errors.New("knx: connection failed")

	// ErrInvalidGroupAddress is returned when a group address string
	// cannot be parsed.
	ErrInvalidGroupAddress = errors.New("knx: invalid group address")

	// ErrInvalidIndividualAddress is returned when a device address string
	// cannot be parsed.
	ErrInvalidIndividualAddress = errors.New("knx: invalid individual address")

	// ErrDecodingFailed is returned when decoding KNX data to a value fails.
	ErrDecodingFailed = errors.New("knx: decoding failed")

	// ErrTelegramFailed is returned when sending a telegram to the bus fails.
	ErrTelegramFailed = errors.New("knx: telegram send failed")

	// ErrTimeout is returned when an operation times out.
	ErrTimeout = errors.New("knx: operation timed out")

	// ErrInvalidTelegram is returned when a received telegram is malformed.
	ErrInvalidTelegram = errors.New("knx: invalid telegram")

	// ErrProtocolDesync is returned when the byte stream can no longer be
	// framed and the transport must be reopened.
	ErrProtocolDesync = errors.New("knx: protocol desync")

	// ErrNotConfirmed is returned when the transceiver reports that a frame
	// was not acknowledged on the bus.
	ErrNotConfirmed = errors.New("knx: frame not confirmed")
)
