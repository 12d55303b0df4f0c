package input

import (
	"fmt"
	"strings"
)

// InputType selects how a pin's transitions are classified into events.
type InputType uint8

// Input types. The zero value is not a valid type.
const (
	TypeButton InputType = iota + 1
	TypeContact
	TypePress
	TypeRotary
	TypeSecurity
	TypeSwitch
	TypeToggle
)

var typeNames = map[InputType]string{
	TypeButton:   "button",
	TypeContact:  "contact",
	TypePress:    "press",
	TypeRotary:   "rotary",
	TypeSecurity: "security",
	TypeSwitch:   "switch",
	TypeToggle:   "toggle",
}

// ParseInputType parses a lowercase type name such as "button".
func ParseInputType(s string) (InputType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range typeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidInputType, s)
}

// String returns the type name, or "error" for an unknown type.
func (t InputType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "error"
}

// Valid reports whether t is one of the defined input types.
func (t InputType) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// EventCode is a type-specific event. Button press counts use 1..MaxPresses;
// the named events start at EventLow so the two ranges never overlap.
type EventCode uint8

// Event codes.
const (
	// MaxPresses is the highest multi-press count a button reports.
	MaxPresses EventCode = 5

	EventLow    EventCode = 0x10 // closed / up / alarm / on, depending on type
	EventHigh   EventCode = 0x11 // open / down / normal / off
	EventHold   EventCode = 0x12
	EventTamper EventCode = 0x13
	EventShort  EventCode = 0x14
	EventFault  EventCode = 0x15
)

// IsPressCount reports whether e is a button multi-press count.
func (e EventCode) IsPressCount() bool {
	return e >= 1 && e <= MaxPresses
}

var pressNames = [...]string{"", "single", "double", "triple", "quad", "penta"}

// EventName returns the published name of an event for the given type,
// or "error" if the combination is not defined.
func EventName(t InputType, e EventCode) string {
	switch t {
	case TypeButton:
		if e == EventHold {
			return "hold"
		}
		if e.IsPressCount() {
			return pressNames[e]
		}
	case TypeContact:
		switch e {
		case EventLow:
			return "closed"
		case EventHigh:
			return "open"
		}
	case TypePress:
		return "press"
	case TypeRotary:
		switch e {
		case EventLow:
			return "up"
		case EventHigh:
			return "down"
		}
	case TypeSecurity:
		switch e {
		case EventHigh:
			return "normal"
		case EventLow:
			return "alarm"
		case EventTamper:
			return "tamper"
		case EventShort:
			return "short"
		case EventFault:
			return "fault"
		}
	case TypeSwitch:
		switch e {
		case EventLow:
			return "on"
		case EventHigh:
			return "off"
		}
	case TypeToggle:
		return "toggle"
	}
	return "error"
}

// slotsPerPort is the number of slots grouped under one port number in
// published events.
const slotsPerPort = 4

// Event is a classified transition on one slot.
type Event struct {
	Slot int // 1-based
	Type InputType
	Code EventCode
}

// Location returns the port (1-based group of four slots) and channel
// (1..4 within the port) of the event's slot.
func (e Event) Location() (port, channel int) {
	port = (e.Slot-1)/slotsPerPort + 1
	channel = e.Slot - (port-1)*slotsPerPort
	return port, channel
}
