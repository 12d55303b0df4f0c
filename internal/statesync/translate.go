package statesync

import "github.com/nerrad567/knx-statemonitor/internal/input"

// RuleKind selects what telegram, if any, an input event produces.
type RuleKind uint8

// Rule kinds.
const (
	// RuleIgnore sends nothing.
	RuleIgnore RuleKind = iota

	// RuleWriteBool writes Rule.Value.
	RuleWriteBool

	// RuleToggle writes the negation of the slot's cached state.
	RuleToggle

	// RuleRelativeStep writes a 4-bit relative dimming step.
	RuleRelativeStep
)

// String returns a short name for logs.
func (k RuleKind) String() string {
	switch k {
	case RuleIgnore:
		return "ignore"
	case RuleWriteBool:
		return "write"
	case RuleToggle:
		return "toggle"
	case RuleRelativeStep:
		return "step"
	default:
		return "unknown"
	}
}

// Rule is one entry of the translation table.
type Rule struct {
	Kind     RuleKind
	Value    bool  // RuleWriteBool
	Increase bool  // RuleRelativeStep
	Steps    uint8 // RuleRelativeStep step code
}

// RotaryStepCode is the DPT 3 step code sent for each rotary detent.
const RotaryStepCode = 5

var (
	ignore     = Rule{Kind: RuleIgnore}
	toggle     = Rule{Kind: RuleToggle}
	writeTrue  = Rule{Kind: RuleWriteBool, Value: true}
	writeFalse = Rule{Kind: RuleWriteBool, Value: false}
)

// Translate returns the rule for an event of the given input type.
//
// Security tamper, short and fault all write true, the same as alarm: the
// outgoing telegram is a single boolean.
func Translate(t input.InputType, e input.EventCode) Rule {
	switch t {
	case input.TypeButton:
		if e.IsPressCount() {
			return toggle
		}
		return ignore

	case input.TypePress, input.TypeToggle:
		return toggle

	case input.TypeRotary:
		switch e {
		case input.EventLow:
			return Rule{Kind: RuleRelativeStep, Increase: true, Steps: RotaryStepCode}
		case input.EventHigh:
			return Rule{Kind: RuleRelativeStep, Increase: false, Steps: RotaryStepCode}
		}
		return ignore

	case input.TypeContact, input.TypeSwitch:
		return lowHigh(e)

	case input.TypeSecurity:
		switch e {
		case input.EventTamper, input.EventShort, input.EventFault:
			return writeTrue
		}
		return lowHigh(e)
	}
	return ignore
}

// lowHigh maps a low edge to true and a high edge to false.
func lowHigh(e input.EventCode) Rule {
	switch e {
	case input.EventLow:
		return writeTrue
	case input.EventHigh:
		return writeFalse
	}
	return ignore
}
