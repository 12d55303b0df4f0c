// Package monitor connects the input classifier, the KNX state engine, the
// KNX transport and MQTT into one running device.
//
// # Ownership
//
// One goroutine owns the state engine and the slot table. The transport
// delivers accepted telegrams into a bounded inbox; the loop handles at most
// one per tick, then advances the engine and sends any read request it asks
// for. Input events and MQTT payloads reach the loop through their own
// channels.
//
// # Routing
//
// Each input event is published to {prefix}/{device}/stat. The monitor is in
// failover when the publish fails or failover is forced through the cmnd
// topic. In failover every slot with a command address writes to KNX;
// otherwise only slots not marked failover-only do.
//
// # Topics
//
//	statemonitor/{device}/conf    slot and device configuration (subscribe)
//	statemonitor/{device}/cmnd    failover and manual KNX writes (subscribe)
//	statemonitor/{device}/stat    input events (publish)
//	statemonitor/{device}/tele    health, retained (publish)
//	statemonitor/{device}/status  online/offline, retained (LWT)
//
// Slot settings received on conf are persisted through a SlotRepository and
// restored at start, after the settings from the configuration file.
package monitor
