package statesync

// Scan queues the state address of every synchronised slot that was never
// updated or whose last update is more than expiry ticks old. It does
// nothing unless the wait is idle and the queue empty, so a refresh never
// competes with pending work. Returns the number of addresses queued.
func Scan(store *Store, queue *ReadQueue, wait *Wait, now, expiry Ticks) int {
	if !wait.Idle() || !queue.IsEmpty() {
		return 0
	}

	pushed := 0
	for slot := 1; slot <= store.Slots(); slot++ {
		entry, _ := store.Get(slot)
		if entry.StateAddress.IsZero() {
			continue
		}
		if entry.Updated && Elapsed(now, entry.LastUpdate) <= expiry {
			continue
		}
		if queue.Push(entry.StateAddress) {
			pushed++
		}
	}
	return pushed
}
