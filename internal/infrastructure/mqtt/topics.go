package mqtt

import "fmt"

// TopicPrefix is the root of every topic the monitor uses.
//
// Topics follow a per-device scheme: statemonitor/{device_id}/{category}
const TopicPrefix = "statemonitor"

// Topic categories.
const (
	categoryConfig  = "conf" // inbound slot configuration
	categoryCommand = "cmnd" // inbound commands
	categoryEvent   = "stat" // outbound input events
	categoryHealth  = "tele" // outbound health telemetry
	categoryStatus  = "status"
)

// Topics builds the topics of one device.
//
//	topics := mqtt.Topics{Device: "hall"}
//	topics.Event() // "statemonitor/hall/stat"
type Topics struct {
	Device string
}

func (t Topics) topic(category string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefix, t.Device, category)
}

// Config returns the topic carrying slot configuration payloads.
func (t Topics) Config() string { return t.topic(categoryConfig) }

// Command returns the topic carrying command payloads.
func (t Topics) Command() string { return t.topic(categoryCommand) }

// Event returns the topic input events are published to.
func (t Topics) Event() string { return t.topic(categoryEvent) }

// Health returns the topic health reports are published to.
func (t Topics) Health() string { return t.topic(categoryHealth) }

// Status returns the retained online/offline topic, also used for the LWT.
func (t Topics) Status() string { return t.topic(categoryStatus) }
