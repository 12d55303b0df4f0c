package statesync

import (
	"sync/atomic"
	"time"

	"github.com/nerrad567/knx-statemonitor/internal/bridges/knx"
	"github.com/nerrad567/knx-statemonitor/internal/input"
)

// Defaults for EngineConfig.
const (
	DefaultReadTimeout = 5 * time.Second
	DefaultStaleAfter  = 65 * time.Minute
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// Slots is the number of input slots; it also sizes the read queue.
	Slots int

	// ReadTimeout is how long to wait for a read response before the
	// address is queued again. Default: 5 seconds.
	ReadTimeout time.Duration

	// StaleAfter is the age at which a slot's state is refreshed.
	// Default: 65 minutes.
	StaleAfter time.Duration

	// Clock supplies ticks for Now. Default: a SystemClock.
	Clock Clock

	// Logger is optional.
	Logger Logger
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Slots          int
	QueueLen       int
	Waiting        bool
	AwaitedAddress knx.GroupAddress
	Reads          uint64
	Timeouts       uint64
	Updates        uint64
}

// addressSet is an immutable set of state addresses.
type addressSet map[knx.GroupAddress]struct{}

// Engine synchronises slot state with the bus. See the package
// documentation for its ownership rules.
type Engine struct {
	store *Store
	queue *ReadQueue
	wait  Wait

	readTimeout Ticks
	staleAfter  Ticks
	clock       Clock
	logger      Logger

	// interest is read by ShouldAccept from the transport goroutine.
	interest atomic.Pointer[addressSet]

	reads    uint64
	timeouts uint64
	updates  uint64
}

// NewEngine creates an engine with all slots unconfigured.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.Clock == nil {
		cfg.Clock = NewSystemClock()
	}

	e := &Engine{
		store:       NewStore(cfg.Slots),
		queue:       NewReadQueue(cfg.Slots),
		readTimeout: FromDuration(cfg.ReadTimeout),
		staleAfter:  FromDuration(cfg.StaleAfter),
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
	e.interest.Store(&addressSet{})
	return e
}

// Now returns the engine clock's current tick.
func (e *Engine) Now() Ticks {
	return e.clock.Now()
}

// Slots returns the number of slots.
func (e *Engine) Slots() int {
	return e.store.Slots()
}

// Get returns a copy of a slot's record.
func (e *Engine) Get(slot int) (AddressState, bool) {
	return e.store.Get(slot)
}

// Configure sets a slot's addresses (nil leaves a field unchanged), queues
// a refresh for a newly set state address and rebuilds the interest set.
// An address no slot synchronises any more is dropped from the queue and
// an outstanding read for it is abandoned. An invalid slot leaves
// everything unchanged.
func (e *Engine) Configure(slot int, cmd, state *knx.GroupAddress) error {
	enqueue, err := e.store.Configure(slot, cmd, state)
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}

	e.rebuildInterest()
	e.dropOrphans()
	if e.queue.Push(enqueue) {
		e.logDebug("state address queued for refresh", "slot", slot, "address", enqueue.String())
	}
	return nil
}

// dropOrphans removes pending work for addresses no slot synchronises.
func (e *Engine) dropOrphans() {
	if n := e.queue.Retain(e.store.HasStateAddress); n > 0 {
		e.logDebug("unconfigured addresses dropped from queue", "count", n)
	}
	if awaited, waiting := e.wait.Awaited(); waiting && !e.store.HasStateAddress(awaited) {
		e.wait.Resolve(awaited)
		e.logDebug("read abandoned for unconfigured address", "address", awaited.String())
	}
}

func (e *Engine) rebuildInterest() {
	set := make(addressSet)
	for _, addr := range e.store.StateAddresses() {
		set[addr] = struct{}{}
	}
	e.interest.Store(&set)
}

// ShouldAccept reports whether a telegram targets a configured state
// address. Safe for concurrent use.
func (e *Engine) ShouldAccept(t knx.Telegram) bool {
	if !t.GroupTarget {
		return false
	}
	set := *e.interest.Load()
	_, ok := set[t.Destination]
	return ok
}

// HandleTelegram applies an inbound write or response carrying a 1-bit
// value to every slot sharing its address, and ends the outstanding read
// for that address. Anything else is ignored. Returns true if state changed.
func (e *Engine) HandleTelegram(t knx.Telegram, now Ticks) bool {
	if !e.ShouldAccept(t) {
		return false
	}
	if !t.IsWrite() && !t.IsResponse() {
		return false
	}
	value, ok := t.BoolValue()
	if !ok {
		return false
	}

	n := e.store.ApplyUpdate(t.Destination, value, now)
	e.updates++
	if e.wait.Resolve(t.Destination) {
		e.logDebug("read answered", "address", t.Destination.String(), "value", value)
	}
	return n > 0
}

// Tick advances the read state machine by one step:
//
//  1. an outstanding read older than the read timeout is queued again
//     while some slot still synchronises its address;
//  2. if idle, the next still-configured address is popped and returned
//     so the caller issues the read request;
//  3. if still idle with an empty queue, stale slots are queued.
//
// ok is true when the caller must send a read for addr.
func (e *Engine) Tick(now Ticks) (addr knx.GroupAddress, ok bool) {
	if expired, timedOut := e.wait.Expired(now, e.readTimeout); timedOut {
		e.timeouts++
		if e.store.HasStateAddress(expired) {
			e.queue.Push(expired)
			e.logDebug("read timed out, requeued", "address", expired.String())
		}
	}

	if !e.wait.Idle() {
		return knx.GroupAddress{}, false
	}

	for {
		next, popped := e.queue.Pop()
		if !popped {
			break
		}
		if !e.store.HasStateAddress(next) {
			continue
		}
		e.wait.Arm(next, now)
		e.reads++
		return next, true
	}

	if n := Scan(e.store, e.queue, &e.wait, now, e.staleAfter); n > 0 {
		e.logDebug("stale state queued", "count", n)
	}
	return knx.GroupAddress{}, false
}

// TranslateEvent returns the telegram an input event on slot produces.
// ok is false when the slot has no command address or the rule ignores
// the event. A toggle writes the negation of the cached state without
// changing it; the cache follows the bus.
func (e *Engine) TranslateEvent(slot int, t input.InputType, code input.EventCode) (knx.Telegram, bool) {
	entry, found := e.store.Get(slot)
	if !found || entry.CommandAddress.IsZero() {
		return knx.Telegram{}, false
	}

	rule := Translate(t, code)
	switch rule.Kind {
	case RuleWriteBool:
		return knx.NewWriteTelegram(entry.CommandAddress, knx.EncodeDPT1(rule.Value)), true
	case RuleToggle:
		return knx.NewWriteTelegram(entry.CommandAddress, knx.EncodeDPT1(!entry.CurrentState)), true
	case RuleRelativeStep:
		return knx.NewWriteTelegram(entry.CommandAddress, knx.EncodeDPT3(rule.Increase, rule.Steps)), true
	default:
		return knx.Telegram{}, false
	}
}

// Snapshot returns current statistics.
func (e *Engine) Snapshot() Stats {
	awaited, waiting := e.wait.Awaited()
	return Stats{
		Slots:          e.store.Slots(),
		QueueLen:       e.queue.Len(),
		Waiting:        waiting,
		AwaitedAddress: awaited,
		Reads:          e.reads,
		Timeouts:       e.timeouts,
		Updates:        e.updates,
	}
}

func (e *Engine) logDebug(msg string, keysAndValues ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, keysAndValues...)
	}
}
