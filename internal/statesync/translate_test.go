package statesync

import (
	"testing"

	"github.com/nerrad567/knx-statemonitor/internal/input"
)

func TestTranslate(t *testing.T) {
	step := func(increase bool) Rule {
		return Rule{Kind: RuleRelativeStep, Increase: increase, Steps: RotaryStepCode}
	}

	tests := []struct {
		name string
		typ  input.InputType
		code input.EventCode
		want Rule
	}{
		{"switch on", input.TypeSwitch, input.EventLow, writeTrue},
		{"switch off", input.TypeSwitch, input.EventHigh, writeFalse},
		{"contact closed", input.TypeContact, input.EventLow, writeTrue},
		{"contact open", input.TypeContact, input.EventHigh, writeFalse},
		{"button single", input.TypeButton, 1, toggle},
		{"button penta", input.TypeButton, input.MaxPresses, toggle},
		{"button hold", input.TypeButton, input.EventHold, ignore},
		{"button beyond max presses", input.TypeButton, input.MaxPresses + 1, ignore},
		{"press", input.TypePress, input.EventLow, toggle},
		{"toggle", input.TypeToggle, input.EventHigh, toggle},
		{"rotary up", input.TypeRotary, input.EventLow, step(true)},
		{"rotary down", input.TypeRotary, input.EventHigh, step(false)},
		{"rotary hold", input.TypeRotary, input.EventHold, ignore},
		{"security alarm", input.TypeSecurity, input.EventLow, writeTrue},
		{"security normal", input.TypeSecurity, input.EventHigh, writeFalse},
		{"security tamper", input.TypeSecurity, input.EventTamper, writeTrue},
		{"security short", input.TypeSecurity, input.EventShort, writeTrue},
		{"security fault", input.TypeSecurity, input.EventFault, writeTrue},
		{"unknown type", input.InputType(0), input.EventLow, ignore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Translate(tt.typ, tt.code); got != tt.want {
				t.Errorf("Translate(%s, %d) = %+v, want %+v", tt.typ, tt.code, got, tt.want)
			}
		})
	}
}

func TestRuleKindString(t *testing.T) {
	if got := RuleRelativeStep.String(); got != "step" {
		t.Errorf("RuleRelativeStep.String() = %q", got)
	}
	if got := RuleKind(99).String(); got != "unknown" {
		t.Errorf("RuleKind(99).String() = %q", got)
	}
}
