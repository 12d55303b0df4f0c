package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/knx-statemonitor/internal/bridges/knx"
	"github.com/nerrad567/knx-statemonitor/internal/infrastructure/mqtt"
	"github.com/nerrad567/knx-statemonitor/internal/input"
	"github.com/nerrad567/knx-statemonitor/internal/statesync"
)

// Monitor operation constants.
const (
	// DefaultTickInterval is how often the state engine is advanced.
	DefaultTickInterval = 10 * time.Millisecond

	// DefaultHealthInterval is how often health is published.
	DefaultHealthInterval = 30 * time.Second

	// inboxSize bounds telegrams waiting for the next tick.
	inboxSize = 64

	// eventQueueSize bounds input events waiting for the loop.
	eventQueueSize = 64

	// messageQueueSize bounds config and command payloads.
	messageQueueSize = 8

	// sendTimeout bounds a single bus write or read request.
	sendTimeout = 2 * time.Second

	// saveTimeout bounds persisting one slot.
	saveTimeout = 2 * time.Second

	// checkTimeout bounds one dependency health check.
	checkTimeout = 5 * time.Second
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the subset of the MQTT client the monitor uses.
// *mqtt.Client satisfies it.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// Telemetry records time-series points. *influxdb.Client satisfies it.
type Telemetry interface {
	WriteStateUpdate(deviceID string, slot int, address string, value bool)
	WriteInputEvent(deviceID string, slot int, inputType, event string, knx bool)
	WriteHealth(deviceID string, fields map[string]interface{})
}

// HealthChecker is a dependency checked for the health report.
// *database.DB and *influxdb.Client satisfy it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Recorder stores accepted bus traffic. *knx.BusRecorder satisfies it.
type Recorder interface {
	Record(t knx.Telegram)
}

// addressSetter is implemented by transports whose source address can be
// changed at runtime.
type addressSetter interface {
	SetIndividualAddress(addr knx.IndividualAddress)
}

// Config holds the monitor's static settings.
type Config struct {
	DeviceID string
	Version  string
	Topics   mqtt.Topics

	// QoS is used for event publication.
	QoS byte

	TickInterval   time.Duration
	HealthInterval time.Duration

	// ForceFailover starts the monitor with failover forced on.
	ForceFailover bool

	// DefaultType applies to slots without their own type. Default: switch.
	DefaultType input.InputType

	// Slots is the configuration from the config file, applied before any
	// persisted slot settings.
	Slots []SlotSettings
}

// Options holds the collaborators of a monitor. Engine, Classifier and
// Connector are required; the rest are optional.
type Options struct {
	Config     Config
	Engine     *statesync.Engine
	Classifier *input.Classifier
	Connector  knx.Connector

	MQTT      MQTTClient
	Telemetry Telemetry
	Recorder  Recorder
	Slots     SlotRepository
	Logger    Logger

	// HealthChecks run every health interval, keyed by the name used in
	// the degraded reason.
	HealthChecks map[string]HealthChecker
}

type namedCheck struct {
	name    string
	checker HealthChecker
}

// Monitor runs the state engine against the bus and routes input events to
// MQTT and KNX.
//
// A single goroutine owns the engine, the classifier configuration and the
// slot table. Telegrams, input events and MQTT payloads reach it through
// bounded channels; at most one telegram is handled per tick.
//
// Routing of an input event: it is published to MQTT first. The monitor is
// in failover when failover is forced or that publish failed. A slot's
// telegram is sent when the monitor is in failover or the slot is not
// marked failover-only.
type Monitor struct {
	cfg        Config
	engine     *statesync.Engine
	classifier *input.Classifier
	knx        knx.Connector
	mqtt       MQTTClient
	telemetry  Telemetry
	recorder   Recorder
	repo       SlotRepository
	checks     []namedCheck

	// checkFailure is the reason of the last failed dependency check,
	// nil when all passed.
	checkFailure atomic.Pointer[string]

	// Owned by the loop goroutine once started.
	slots         []SlotSettings
	defaultType   input.InputType
	forceFailover bool

	inbox    chan knx.Telegram
	events   chan input.Event
	configs  chan ConfigMessage
	commands chan CommandMessage

	startTime time.Time

	eventsTotal      atomic.Uint64
	eventsPublished  atomic.Uint64
	eventsSent       atomic.Uint64
	eventsDropped    atomic.Uint64
	telegramsDropped atomic.Uint64

	// Shutdown coordination
	ctx       context.Context
	ctxCancel context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	// reads tracks the read request in flight; reading caps it at one.
	reads   sync.WaitGroup
	reading atomic.Bool

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a monitor. Call Start to begin operation.
func New(opts Options) (*Monitor, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if opts.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if opts.Connector == nil {
		return nil, fmt.Errorf("connector is required")
	}

	cfg := opts.Config
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = DefaultHealthInterval
	}
	if !cfg.DefaultType.Valid() {
		cfg.DefaultType = input.TypeSwitch
	}

	slots := make([]SlotSettings, opts.Engine.Slots())
	for i := range slots {
		slots[i].Slot = i + 1
	}

	checks := make([]namedCheck, 0, len(opts.HealthChecks))
	for name, c := range opts.HealthChecks {
		if c != nil {
			checks = append(checks, namedCheck{name: name, checker: c})
		}
	}
	sort.Slice(checks, func(i, j int) bool { return checks[i].name < checks[j].name })

	ctx, cancel := context.WithCancel(context.Background())

	m := &Monitor{
		cfg:           cfg,
		engine:        opts.Engine,
		classifier:    opts.Classifier,
		knx:           opts.Connector,
		mqtt:          opts.MQTT,
		telemetry:     opts.Telemetry,
		recorder:      opts.Recorder,
		repo:          opts.Slots,
		checks:        checks,
		slots:         slots,
		defaultType:   cfg.DefaultType,
		forceFailover: cfg.ForceFailover,
		inbox:         make(chan knx.Telegram, inboxSize),
		events:        make(chan input.Event, eventQueueSize),
		configs:       make(chan ConfigMessage, messageQueueSize),
		commands:      make(chan CommandMessage, messageQueueSize),
		startTime:     time.Now(),
		ctx:           ctx,
		ctxCancel:     cancel,
		logger:        opts.Logger,
	}
	return m, nil
}

// Start restores slot configuration, installs the transport callbacks,
// subscribes to the conf and cmnd topics and starts the loop.
// MQTT failures are logged; the monitor then runs in failover.
func (m *Monitor) Start(ctx context.Context) error {
	started := false
	m.startOnce.Do(func() {
		started = true
		m.restore(ctx)

		m.knx.SetFilter(m.engine.ShouldAccept)
		m.knx.SetOnTelegram(m.enqueueTelegram)

		if m.mqtt != nil {
			m.subscribe()
			if err := m.publishHealth(HealthStarting, "monitor starting"); err != nil {
				m.logWarn("failed to publish starting status", "error", err)
			}
		}

		m.wg.Add(1)
		go m.loop(ctx)
		if len(m.checks) > 0 {
			m.wg.Add(1)
			go m.checkLoop(ctx)
		}

		m.logInfo("monitor started",
			"device", m.cfg.DeviceID,
			"slots", len(m.slots),
			"default_type", m.defaultType.String())
	})
	if !started {
		return fmt.Errorf("monitor already started")
	}
	return nil
}

// Stop ends the loop and publishes a final stopping status.
// Safe to call multiple times.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.ctxCancel()
		m.wg.Wait()
		m.reads.Wait()

		m.knx.SetOnTelegram(nil)

		if m.mqtt != nil {
			//nolint:errcheck // Best-effort during shutdown
			m.publishHealth(HealthStopping, "")
		}
		m.logInfo("monitor stopped")
	})
}

// restore applies the file configuration, then the persisted settings.
func (m *Monitor) restore(ctx context.Context) {
	if err := m.classifier.SetDefaultType(m.defaultType); err != nil {
		m.logWarn("invalid default input type", "error", err)
	}
	for _, s := range m.slots {
		m.configurePin(s)
	}

	for _, s := range m.cfg.Slots {
		m.applySlot(s, false)
	}

	if m.repo == nil {
		return
	}
	stored, err := m.repo.Load(ctx)
	if err != nil {
		m.logWarn("failed to load slot configuration", "error", err)
		return
	}
	for _, s := range stored {
		m.applySlot(s, false)
	}
	if len(stored) > 0 {
		m.logInfo("restored slot configuration", "slots", len(stored))
	}
}

func (m *Monitor) subscribe() {
	topics := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{m.cfg.Topics.Config(), m.HandleConfigMessage},
		{m.cfg.Topics.Command(), m.HandleCommandMessage},
	}
	for _, sub := range topics {
		if err := m.mqtt.Subscribe(sub.topic, 1, sub.handler); err != nil {
			m.logWarn("subscribe failed", "topic", sub.topic, "error", err)
			continue
		}
		m.logInfo("subscribed", "topic", sub.topic)
	}
}

// loop is the single owner of the engine.
func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	tick := time.NewTicker(m.cfg.TickInterval)
	defer tick.Stop()
	health := time.NewTicker(m.cfg.HealthInterval)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		case <-tick.C:
			m.tick(ctx)
		case ev := <-m.events:
			m.handleEvent(ctx, ev)
		case msg := <-m.configs:
			m.applyConfig(msg)
		case cmd := <-m.commands:
			m.handleCommand(ctx, cmd)
		case <-health.C:
			m.reportHealth()
		}
	}
}

// tick handles at most one inbound telegram, then advances the engine and
// starts the read request it asks for. The request runs outside the loop so
// a slow bus never delays events; at most one is outstanding.
func (m *Monitor) tick(ctx context.Context) {
	select {
	case t := <-m.inbox:
		m.handleTelegram(t)
	default:
	}

	addr, ok := m.engine.Tick(m.engine.Now())
	if !ok {
		return
	}

	if !m.reading.CompareAndSwap(false, true) {
		// The wait stays armed; the read is retried after the timeout.
		m.logDebug("read request skipped, previous still pending", "address", addr.String())
		return
	}
	m.reads.Add(1)
	go m.sendRead(ctx, addr)
}

// sendRead issues one read request, bounded by sendTimeout and cancelled
// by Stop.
func (m *Monitor) sendRead(ctx context.Context, addr knx.GroupAddress) {
	defer m.reads.Done()
	defer m.reading.Store(false)

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	defer context.AfterFunc(m.ctx, cancel)()

	if err := m.knx.SendRead(sendCtx, addr); err != nil {
		// The wait stays armed; the read is retried after the timeout.
		m.logDebug("read request failed", "address", addr.String(), "error", err)
		return
	}
	m.logDebug("read request sent", "address", addr.String())
}

// enqueueTelegram is the transport callback. It never blocks.
func (m *Monitor) enqueueTelegram(t knx.Telegram) {
	select {
	case m.inbox <- t:
	default:
		m.telegramsDropped.Add(1)
	}
}

func (m *Monitor) handleTelegram(t knx.Telegram) {
	if m.recorder != nil {
		m.recorder.Record(t)
	}

	if !m.engine.HandleTelegram(t, m.engine.Now()) {
		return
	}

	value, _ := t.BoolValue()
	m.logDebug("state updated", "address", t.Destination.String(), "value", value)

	if m.telemetry == nil {
		return
	}
	for _, s := range m.slots {
		if s.StateAddress == t.Destination {
			m.telemetry.WriteStateUpdate(m.cfg.DeviceID, s.Slot, t.Destination.String(), value)
		}
	}
}

// HandleInputEvent queues an input event for the loop. It never blocks and
// is suitable as the emit function of input.Poll.
func (m *Monitor) HandleInputEvent(ev input.Event) {
	select {
	case m.events <- ev:
	default:
		m.eventsDropped.Add(1)
	}
}

func (m *Monitor) handleEvent(ctx context.Context, ev input.Event) {
	s, ok := m.slot(ev.Slot)
	if !ok {
		m.logWarn("event for unknown slot", "slot", ev.Slot)
		return
	}
	m.eventsTotal.Add(1)

	msg := NewEventMessage(ev)
	published := m.publishEvent(msg)

	failover := m.forceFailover || !published
	sent := false
	if failover || !s.FailoverOnly {
		sent = m.sendEvent(ctx, ev)
	}

	m.logDebug("input event",
		"slot", ev.Slot,
		"type", msg.Type,
		"event", msg.Event,
		"published", published,
		"knx", sent)

	if m.telemetry != nil {
		m.telemetry.WriteInputEvent(m.cfg.DeviceID, ev.Slot, msg.Type, msg.Event, sent)
	}
}

func (m *Monitor) publishEvent(msg EventMessage) bool {
	if m.mqtt == nil || !m.mqtt.IsConnected() {
		return false
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		m.logError("failed to marshal event", err)
		return false
	}
	if err := m.mqtt.Publish(m.cfg.Topics.Event(), payload, m.cfg.QoS, false); err != nil {
		m.logWarn("event publish failed, using KNX", "slot", msg.Index, "error", err)
		return false
	}
	m.eventsPublished.Add(1)
	return true
}

func (m *Monitor) sendEvent(ctx context.Context, ev input.Event) bool {
	t, ok := m.engine.TranslateEvent(ev.Slot, ev.Type, ev.Code)
	if !ok {
		return false
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := m.knx.Send(sendCtx, t.Destination, t.Data); err != nil {
		m.logWarn("event telegram failed", "slot", ev.Slot, "address", t.Destination.String(), "error", err)
		return false
	}
	m.eventsSent.Add(1)
	return true
}

// HandleConfigMessage is the MQTT handler for the conf topic.
func (m *Monitor) HandleConfigMessage(_ string, payload []byte) error {
	var msg ConfigMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: config: %w", ErrInvalidPayload, err)
	}
	if m.ctx.Err() != nil {
		return ErrStopped
	}

	select {
	case m.configs <- msg:
		return nil
	case <-m.ctx.Done():
		return ErrStopped
	}
}

// HandleCommandMessage is the MQTT handler for the cmnd topic.
func (m *Monitor) HandleCommandMessage(_ string, payload []byte) error {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: command: %w", ErrInvalidPayload, err)
	}
	if m.ctx.Err() != nil {
		return ErrStopped
	}

	select {
	case m.commands <- cmd:
		return nil
	case <-m.ctx.Done():
		return ErrStopped
	}
}

// applyConfig applies a configuration payload. Invalid entries and fields
// are logged and skipped; the rest of the payload still applies.
func (m *Monitor) applyConfig(msg ConfigMessage) {
	if msg.KNXDeviceAddress != nil {
		m.applyIndividualAddress(*msg.KNXDeviceAddress)
	}

	if msg.DefaultInputType != nil {
		t, err := input.ParseInputType(*msg.DefaultInputType)
		if err != nil {
			m.logWarn("ignoring default input type", "error", err)
		} else {
			m.setDefaultType(t)
		}
	}

	for _, in := range msg.Inputs {
		s, ok := m.slot(in.Index)
		if !ok {
			m.logWarn("ignoring input config", "index", in.Index, "error", ErrInvalidSlot)
			continue
		}
		m.applySlot(m.mergeInput(s, in), true)
	}
}

// mergeInput returns s with the fields present in in applied.
func (m *Monitor) mergeInput(s SlotSettings, in InputConfig) SlotSettings {
	if in.Type != nil {
		if *in.Type == "" {
			s.Type = 0
		} else if t, err := input.ParseInputType(*in.Type); err != nil {
			m.logWarn("ignoring input type", "index", in.Index, "error", err)
		} else {
			s.Type = t
		}
	}
	if in.Invert != nil {
		s.Invert = *in.Invert
	}
	if in.Disabled != nil {
		s.Disabled = *in.Disabled
	}
	if in.KNXFailoverOnly != nil {
		s.FailoverOnly = *in.KNXFailoverOnly
	}
	if in.KNXCommandAddress != nil {
		if ga, err := parseOptionalAddress(*in.KNXCommandAddress); err != nil {
			m.logWarn("ignoring command address", "index", in.Index, "error", err)
		} else {
			s.CommandAddress = ga
		}
	}
	if in.KNXStateAddress != nil {
		if ga, err := parseOptionalAddress(*in.KNXStateAddress); err != nil {
			m.logWarn("ignoring state address", "index", in.Index, "error", err)
		} else {
			s.StateAddress = ga
		}
	}
	return s
}

// applySlot configures the engine and classifier for one slot and records
// the settings. persist stores them in the slot repository.
func (m *Monitor) applySlot(s SlotSettings, persist bool) {
	if s.Slot < 1 || s.Slot > len(m.slots) {
		m.logWarn("ignoring slot settings", "slot", s.Slot, "error", ErrInvalidSlot)
		return
	}

	cmd, state := s.CommandAddress, s.StateAddress
	if err := m.engine.Configure(s.Slot, &cmd, &state); err != nil {
		m.logWarn("engine rejected slot", "slot", s.Slot, "error", err)
		return
	}
	m.slots[s.Slot-1] = s
	m.configurePin(s)

	if persist && m.repo != nil {
		ctx, cancel := context.WithTimeout(m.ctx, saveTimeout)
		defer cancel()
		if err := m.repo.Save(ctx, s); err != nil {
			m.logWarn("failed to persist slot", "slot", s.Slot, "error", err)
		}
	}
}

func (m *Monitor) configurePin(s SlotSettings) {
	pin := s.Slot - 1
	if pin >= m.classifier.Pins() {
		return
	}
	t := s.Type
	if !t.Valid() {
		t = m.defaultType
	}
	err := m.classifier.Configure(pin, input.PinConfig{Type: t, Invert: s.Invert, Disabled: s.Disabled})
	if err != nil {
		m.logWarn("classifier rejected slot", "slot", s.Slot, "error", err)
	}
}

func (m *Monitor) setDefaultType(t input.InputType) {
	m.defaultType = t
	for _, s := range m.slots {
		m.configurePin(s)
	}
	m.logInfo("default input type set", "type", t.String())
}

func (m *Monitor) applyIndividualAddress(s string) {
	addr, err := knx.ParseIndividualAddress(s)
	if err != nil {
		m.logWarn("ignoring device address", "error", err)
		return
	}
	setter, ok := m.knx.(addressSetter)
	if !ok {
		m.logInfo("transport assigns its own device address", "requested", addr.String())
		return
	}
	setter.SetIndividualAddress(addr)
	m.logInfo("device address set", "address", addr.String())
}

func (m *Monitor) handleCommand(ctx context.Context, cmd CommandMessage) {
	if cmd.ForceFailover != nil && *cmd.ForceFailover != m.forceFailover {
		m.forceFailover = *cmd.ForceFailover
		m.logInfo("failover forced", "enabled", m.forceFailover)
	}

	for _, c := range cmd.KNXCommands {
		ga, err := knx.ParseGroupAddress(c.GroupAddress)
		if err != nil {
			m.logWarn("ignoring KNX command", "error", err)
			continue
		}
		value, err := c.Bool()
		if err != nil {
			m.logWarn("ignoring KNX command", "address", ga.String(), "error", err)
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		err = m.knx.Send(sendCtx, ga, knx.EncodeDPT1(value))
		cancel()
		if err != nil {
			m.logWarn("KNX command failed", "address", ga.String(), "error", err)
			continue
		}
		m.logDebug("KNX command sent", "address", ga.String(), "value", value)
	}
}

// slot returns the settings of a 1-based slot.
func (m *Monitor) slot(index int) (SlotSettings, bool) {
	if index < 1 || index > len(m.slots) {
		return SlotSettings{}, false
	}
	return m.slots[index-1], true
}

func parseOptionalAddress(s string) (knx.GroupAddress, error) {
	if s == "" {
		return knx.GroupAddress{}, nil
	}
	return knx.ParseGroupAddress(s)
}

// SetLogger sets the logger for the monitor.
func (m *Monitor) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

func (m *Monitor) getLogger() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	return m.logger
}

func (m *Monitor) logInfo(msg string, keysAndValues ...any) {
	if logger := m.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (m *Monitor) logWarn(msg string, keysAndValues ...any) {
	if logger := m.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (m *Monitor) logDebug(msg string, keysAndValues ...any) {
	if logger := m.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (m *Monitor) logError(msg string, err error) {
	if logger := m.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}
