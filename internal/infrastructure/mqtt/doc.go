// Package mqtt provides MQTT client connectivity for the state monitor.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retain
//   - Subscriptions renewed after every reconnect
//   - A retained status with Last Will and Testament (LWT)
//
// # Topics
//
// Every device uses five topics under statemonitor/{device_id}/:
//
//	conf    inbound slot configuration (JSON)
//	cmnd    inbound commands (failover, KNX writes)
//	stat    outbound input events
//	tele    outbound health reports
//	status  retained online/offline, also the LWT
//
// The monitor publishes input events here first. When publishing fails,
// events fall back to direct KNX telegrams.
//
// # Usage
//
//	topics := mqtt.Topics{Device: cfg.Device.ID}
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.Config(), 1, handleConfig)
//
//	client.Publish(topics.Event(), payload, 0, false)
package mqtt
