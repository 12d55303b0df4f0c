package monitor

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/nerrad567/knx-statemonitor/internal/input"
)

func TestKNXCommandBool(t *testing.T) {
	tests := []struct {
		value   string
		want    bool
		wantErr bool
	}{
		{"on", true, false},
		{"ON", true, false},
		{"down", true, false},
		{"off", false, false},
		{" up ", false, false},
		{"1", false, true},
		{"", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			got, err := KNXCommand{GroupAddress: "1/2/3", Value: tt.value}.Bool()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCommandValue) {
					t.Errorf("Bool() error = %v, want ErrInvalidCommandValue", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Bool() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Bool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEventMessage(t *testing.T) {
	tests := []struct {
		name string
		ev   input.Event
		want EventMessage
	}{
		{
			name: "first slot",
			ev:   input.Event{Slot: 1, Type: input.TypeSwitch, Code: input.EventLow},
			want: EventMessage{Port: 1, Channel: 1, Index: 1, Type: "switch", Event: "on"},
		},
		{
			name: "second port",
			ev:   input.Event{Slot: 6, Type: input.TypeContact, Code: input.EventHigh},
			want: EventMessage{Port: 2, Channel: 2, Index: 6, Type: "contact", Event: "open"},
		},
		{
			name: "button hold",
			ev:   input.Event{Slot: 8, Type: input.TypeButton, Code: input.EventHold},
			want: EventMessage{Port: 2, Channel: 4, Index: 8, Type: "button", Event: "hold"},
		},
		{
			name: "security tamper",
			ev:   input.Event{Slot: 9, Type: input.TypeSecurity, Code: input.EventTamper},
			want: EventMessage{Port: 3, Channel: 1, Index: 9, Type: "security", Event: "tamper"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewEventMessage(tt.ev); got != tt.want {
				t.Errorf("NewEventMessage() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestConfigMessageAbsentFields(t *testing.T) {
	var msg ConfigMessage
	payload := `{"inputs":[{"index":2,"knxStateAddress":""}]}`
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if msg.KNXDeviceAddress != nil || msg.DefaultInputType != nil {
		t.Error("absent top-level fields should be nil")
	}
	if len(msg.Inputs) != 1 {
		t.Fatalf("len(Inputs) = %d, want 1", len(msg.Inputs))
	}
	in := msg.Inputs[0]
	if in.Index != 2 {
		t.Errorf("Index = %d, want 2", in.Index)
	}
	if in.Type != nil || in.Invert != nil || in.KNXCommandAddress != nil {
		t.Error("absent input fields should be nil")
	}
	if in.KNXStateAddress == nil || *in.KNXStateAddress != "" {
		t.Errorf("KNXStateAddress = %v, want empty string", in.KNXStateAddress)
	}
}

func TestCommandMessageDecode(t *testing.T) {
	var cmd CommandMessage
	payload := `{"forceFailover":false,"knxCommands":[{"knxGroupAddress":"1/2/3","knxValue":"on"}]}`
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if cmd.ForceFailover == nil || *cmd.ForceFailover {
		t.Errorf("ForceFailover = %v, want false", cmd.ForceFailover)
	}
	want := KNXCommand{GroupAddress: "1/2/3", Value: "on"}
	if len(cmd.KNXCommands) != 1 || cmd.KNXCommands[0] != want {
		t.Errorf("KNXCommands = %+v, want [%+v]", cmd.KNXCommands, want)
	}
}
