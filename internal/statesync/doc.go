// Package statesync keeps per-slot input state consistent with actuator
// state advertised on the KNX bus.
//
// The Engine combines four pieces:
//
//   - Store: the configured command/state group addresses of each slot and
//     the last boolean state seen for its state address.
//   - ReadQueue: a deduplicating FIFO of state addresses waiting for a
//     group read.
//   - Wait: the single read request in flight and its timeout.
//   - Scan: re-queues state addresses that have not been updated within
//     the staleness window.
//
// One read is in flight at a time. A read that times out is queued again
// without limit, so a slot stays stale rather than failing.
//
// # Concurrency
//
// Engine is owned by a single goroutine. Every method except ShouldAccept
// must be called from that goroutine. ShouldAccept reads an immutable
// address set that is swapped atomically on each configuration change, so
// a transport may call it from its own read loop.
package statesync
