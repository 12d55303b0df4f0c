// Package influxdb provides InfluxDB connectivity for monitor telemetry.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes, and health checks.
//
// # Measurements
//
//	knx_state       state values received from the bus, tagged by slot and address
//	input_event     classified input events, tagged by slot and input type
//	monitor_health  periodic engine and transport counters
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteStateUpdate(cfg.Device.ID, 3, "1/2/3", true)
//
// # Error Handling
//
// Write operations are non-blocking; batch errors are delivered to the
// callback installed with SetOnError. Connection and health check errors
// are returned directly.
package influxdb
