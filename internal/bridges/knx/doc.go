// Package knx implements the KNX bus side of the state monitor.
//
// It covers addressing, the group telegram codec, the two datapoint types
// the monitor exchanges, and two transports that satisfy Connector:
//
//	┌──────────────┐  Connector  ┌──────────────┐  knxd   ┌─────────┐
//	│   monitor    │◄───────────►│  KNXDClient  │◄───────►│         │
//	│  (statesync) │             ├──────────────┤         │ KNX bus │
//	│              │◄───────────►│ TPUARTClient │◄───────►│         │
//	└──────────────┘             └──────────────┘ serial  └─────────┘
//
// # Group Addresses
//
// Group addresses use the 3-level format Main/Middle/Sub (e.g. "1/2/3").
// The zero address 0/0/0 means "not configured". Device (individual)
// addresses use Area.Line.Member (e.g. "1.1.244").
//
//	addr, err := knx.ParseGroupAddress("1/2/3")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(addr.String()) // "1/2/3"
//
// # Datapoint Types
//
//   - DPT 1.xxx: 1-bit boolean (switch, up/down)
//   - DPT 3.007: 4-bit relative dimming (direction + step code)
//
// # Interest Filter
//
// A transport consults the filter installed with SetFilter before a
// telegram is delivered. The TP-UART transport must answer the transceiver
// with an acknowledge service within a few bit times, so the filter is
// called on the read goroutine and must not block.
//
// # References
//
//   - KNX Specification: https://www.knx.org
//   - knxd daemon: https://github.com/knxd/knxd
package knx
