package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the monitor.
const (
	MeasurementState  = "knx_state"
	MeasurementInput  = "input_event"
	MeasurementHealth = "monitor_health"
)

// WriteStateUpdate records a state value received from the bus for a slot.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteStateUpdate("hall", 3, "1/2/3", true)
func (c *Client) WriteStateUpdate(deviceID string, slot int, address string, value bool) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(stateUpdatePoint(deviceID, slot, address, value, time.Now()))
}

func stateUpdatePoint(deviceID string, slot int, address string, value bool, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementState,
		map[string]string{
			"device_id": deviceID,
			"slot":      strconv.Itoa(slot),
			"address":   address,
		},
		map[string]interface{}{
			"value": value,
		},
		ts,
	)
}

// WriteInputEvent records a classified input event.
//
// Parameters:
//   - deviceID: Monitor device identifier
//   - slot: 1-based slot number
//   - inputType: Input type name (e.g. "button")
//   - event: Event name (e.g. "double")
//   - knx: True when the event was also sent as a KNX telegram
func (c *Client) WriteInputEvent(deviceID string, slot int, inputType, event string, knx bool) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(inputEventPoint(deviceID, slot, inputType, event, knx, time.Now()))
}

func inputEventPoint(deviceID string, slot int, inputType, event string, knx bool, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementInput,
		map[string]string{
			"device_id": deviceID,
			"slot":      strconv.Itoa(slot),
			"type":      inputType,
		},
		map[string]interface{}{
			"event": event,
			"knx":   knx,
		},
		ts,
	)
}

// WriteHealth records a set of health counters for the device.
func (c *Client) WriteHealth(deviceID string, fields map[string]interface{}) {
	if !c.IsConnected() || len(fields) == 0 {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementHealth,
		map[string]string{"device_id": deviceID},
		fields,
		time.Now(),
	))
}
