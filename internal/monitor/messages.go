package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/knx-statemonitor/internal/input"
)

// ConfigMessage is received on the device's conf topic. Absent fields leave
// the current setting unchanged.
//
//	{"knxDeviceAddress":"1.1.244","defaultInputType":"switch",
//	 "inputs":[{"index":1,"type":"button","knxCommandAddress":"1/2/3",
//	            "knxStateAddress":"1/2/4","knxFailoverOnly":false}]}
type ConfigMessage struct {
	// KNXDeviceAddress is the individual address used on the bus.
	KNXDeviceAddress *string `json:"knxDeviceAddress,omitempty"`

	// DefaultInputType applies to every slot without its own type.
	DefaultInputType *string `json:"defaultInputType,omitempty"`

	Inputs []InputConfig `json:"inputs,omitempty"`
}

// InputConfig configures one slot. An empty address string clears it.
type InputConfig struct {
	Index             int     `json:"index"`
	Type              *string `json:"type,omitempty"`
	Invert            *bool   `json:"invert,omitempty"`
	Disabled          *bool   `json:"disabled,omitempty"`
	KNXCommandAddress *string `json:"knxCommandAddress,omitempty"`
	KNXStateAddress   *string `json:"knxStateAddress,omitempty"`
	KNXFailoverOnly   *bool   `json:"knxFailoverOnly,omitempty"`
}

// CommandMessage is received on the device's cmnd topic.
//
//	{"forceFailover":true,"knxCommands":[{"knxGroupAddress":"1/2/3","knxValue":"on"}]}
type CommandMessage struct {
	// ForceFailover sends every input event to KNX regardless of MQTT.
	ForceFailover *bool `json:"forceFailover,omitempty"`

	// KNXCommands are written to the bus directly.
	KNXCommands []KNXCommand `json:"knxCommands,omitempty"`
}

// KNXCommand is a manual 1-bit group write.
type KNXCommand struct {
	GroupAddress string `json:"knxGroupAddress"`
	Value        string `json:"knxValue"`
}

// Bool returns the DPT 1 value of the command: on and down are true,
// off and up are false.
func (c KNXCommand) Bool() (bool, error) {
	switch strings.ToLower(strings.TrimSpace(c.Value)) {
	case "on", "down":
		return true, nil
	case "off", "up":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidCommandValue, c.Value)
	}
}

// EventMessage is published on the device's stat topic for each input event.
type EventMessage struct {
	Port    int    `json:"port"`
	Channel int    `json:"channel"`
	Index   int    `json:"index"`
	Type    string `json:"type"`
	Event   string `json:"event"`
}

// NewEventMessage builds the published form of an input event.
func NewEventMessage(ev input.Event) EventMessage {
	port, channel := ev.Location()
	return EventMessage{
		Port:    port,
		Channel: channel,
		Index:   ev.Slot,
		Type:    ev.Type.String(),
		Event:   input.EventName(ev.Type, ev.Code),
	}
}

// HealthStatus represents the operational status of the monitor.
type HealthStatus string

const (
	// HealthHealthy indicates MQTT and the KNX transport are both up.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates one side is down; events still flow to
	// whichever side remains.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting is published once when the monitor starts.
	HealthStarting HealthStatus = "starting"

	// HealthStopping is published once when the monitor stops.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published on the device's tele topic.
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Device        string       `json:"device"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Failover      bool         `json:"failover"`

	Transport *TransportStatus  `json:"transport,omitempty"`
	Engine    *EngineStatistics `json:"engine,omitempty"`
	Inputs    *InputStatistics  `json:"inputs,omitempty"`

	// Reason explains a degraded status.
	Reason string `json:"reason,omitempty"`
}

// TransportStatus describes the KNX transport.
type TransportStatus struct {
	Status            string     `json:"status"`
	TelegramsTx       uint64     `json:"telegrams_tx"`
	TelegramsRx       uint64     `json:"telegrams_rx"`
	TelegramsFiltered uint64     `json:"telegrams_filtered"`
	TelegramsDropped  uint64     `json:"telegrams_dropped"`
	Errors            uint64     `json:"errors"`
	Reconnects        uint64     `json:"reconnects"`
	LastActivity      *time.Time `json:"last_activity,omitempty"`
}

// EngineStatistics mirrors the state engine's counters.
type EngineStatistics struct {
	Slots          int    `json:"slots"`
	QueueLength    int    `json:"queue_length"`
	Waiting        bool   `json:"waiting"`
	AwaitedAddress string `json:"awaited_address,omitempty"`
	Reads          uint64 `json:"reads"`
	Timeouts       uint64 `json:"timeouts"`
	Updates        uint64 `json:"updates"`
}

// InputStatistics counts input events by outcome.
type InputStatistics struct {
	Events           uint64 `json:"events"`
	Published        uint64 `json:"published"`
	SentToKNX        uint64 `json:"sent_to_knx"`
	EventsDropped    uint64 `json:"events_dropped"`
	TelegramsDropped uint64 `json:"telegrams_dropped"`
}
