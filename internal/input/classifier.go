package input

import (
	"fmt"
	"sync"
	"time"
)

// PinsPerBank is the number of pins in one raw sample word.
const PinsPerBank = 16

// Defaults for ClassifierConfig.
const (
	DefaultDebounce         = 20 * time.Millisecond
	DefaultHoldTime         = 500 * time.Millisecond
	DefaultMultiPressWindow = 300 * time.Millisecond
)

// ClassifierConfig tunes gesture timing.
type ClassifierConfig struct {
	// Debounce is how long a level must be stable before it is accepted.
	Debounce time.Duration

	// HoldTime is how long a button must stay pressed to report a hold.
	HoldTime time.Duration

	// MultiPressWindow is the quiet time after a release that ends a
	// multi-press sequence.
	MultiPressWindow time.Duration

	// DefaultType is applied to every pin at creation. Default: TypeSwitch.
	DefaultType InputType
}

// PinConfig is the per-pin classification setup.
type PinConfig struct {
	Type     InputType
	Invert   bool
	Disabled bool
}

// pinState tracks the debounced level and gesture progress of one pin.
type pinState struct {
	cfg PinConfig

	baselined    bool
	stable       bool // true = high (inactive with pull-ups)
	pending      bool
	pendingSince time.Time
	changing     bool

	// button
	pressedAt  time.Time
	pressed    bool
	holdFired  bool
	presses    EventCode
	releasedAt time.Time

	// security pair
	lastSecurity EventCode
}

// Classifier turns raw pin samples into input events. Pins are numbered
// from 0; the event slot is pin+1.
//
// Inputs are active low. Rotary and security inputs use a pin pair: the
// even pin carries the type and reports the events, its odd partner is the
// second signal (rotary B phase, security tamper loop) and reports nothing
// on its own.
//
// Thread Safety: all methods are safe for concurrent use.
type Classifier struct {
	cfg  ClassifierConfig
	mu   sync.Mutex
	pins []pinState
}

// NewClassifier creates a classifier for n pins.
func NewClassifier(n int, cfg ClassifierConfig) *Classifier {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.HoldTime <= 0 {
		cfg.HoldTime = DefaultHoldTime
	}
	if cfg.MultiPressWindow <= 0 {
		cfg.MultiPressWindow = DefaultMultiPressWindow
	}
	if !cfg.DefaultType.Valid() {
		cfg.DefaultType = TypeSwitch
	}

	c := &Classifier{cfg: cfg, pins: make([]pinState, max(n, 0))}
	for i := range c.pins {
		c.pins[i].cfg.Type = cfg.DefaultType
	}
	return c
}

// Pins returns the number of pins.
func (c *Classifier) Pins() int {
	return len(c.pins)
}

// Configure replaces a pin's configuration. Gesture progress is reset so
// a type change never completes a gesture begun under the old type.
func (c *Classifier) Configure(pin int, cfg PinConfig) error {
	if !cfg.Type.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidInputType, cfg.Type)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.pin(pin)
	if err != nil {
		return err
	}
	p.cfg = cfg
	p.resetGesture()
	return nil
}

// SetDefaultType applies t to every pin, keeping invert and disabled.
func (c *Classifier) SetDefaultType(t InputType) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidInputType, t)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i := range c.pins {
		c.pins[i].cfg.Type = t
		c.pins[i].resetGesture()
	}
	return nil
}

// PinConfig returns a pin's configuration.
func (c *Classifier) PinConfig(pin int) (PinConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.pin(pin)
	if err != nil {
		return PinConfig{}, err
	}
	return p.cfg, nil
}

func (c *Classifier) pin(pin int) (*pinState, error) {
	if pin < 0 || pin >= len(c.pins) {
		return nil, fmt.Errorf("%w: %d (have 0-%d)", ErrInvalidPin, pin, len(c.pins)-1)
	}
	return &c.pins[pin], nil
}

// Process classifies one raw sample word covering pins bank*16 .. bank*16+15.
// It must be called periodically even when nothing changes, since holds
// and multi-press sequences complete on time alone.
func (c *Classifier) Process(bank int, sample uint16, now time.Time) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	first := bank * PinsPerBank
	if bank < 0 || first >= len(c.pins) {
		return nil
	}
	last := min(first+PinsPerBank, len(c.pins))

	edges := make([]bool, last-first)
	for i := first; i < last; i++ {
		raw := sample&(1<<uint(i-first)) != 0
		edges[i-first] = c.debounce(&c.pins[i], raw, now)
	}

	var events []Event
	for i := first; i < last; i++ {
		p := &c.pins[i]
		if i%2 == 1 && c.pins[i-1].cfg.Type.paired() {
			continue // partner of a pair
		}

		var partner *pinState
		partnerEdge := false
		if p.cfg.Type.paired() && i+1 < last {
			partner = &c.pins[i+1]
			partnerEdge = edges[i+1-first]
		}

		code, ok := c.classify(p, edges[i-first], partner, partnerEdge, now)
		if ok && !p.cfg.Disabled {
			events = append(events, Event{Slot: i + 1, Type: p.cfg.Type, Code: code})
		}
	}
	return events
}

// debounce updates the stable level and reports whether it just changed.
// The first sample becomes the baseline without an edge.
func (c *Classifier) debounce(p *pinState, raw bool, now time.Time) bool {
	level := raw != p.cfg.Invert

	if !p.baselined {
		p.stable = level
		p.baselined = true
		return false
	}
	if level == p.stable {
		p.changing = false
		return false
	}
	if !p.changing || p.pending != level {
		p.changing = true
		p.pending = level
		p.pendingSince = now
	}
	if now.Sub(p.pendingSince) < c.cfg.Debounce {
		return false
	}

	p.stable = level
	p.changing = false
	return true
}

func (c *Classifier) classify(p *pinState, edge bool, partner *pinState, partnerEdge bool, now time.Time) (EventCode, bool) {
	low := !p.stable

	switch p.cfg.Type {
	case TypeSwitch, TypeContact, TypeToggle:
		if !edge {
			return 0, false
		}
		if low {
			return EventLow, true
		}
		return EventHigh, true

	case TypePress:
		return EventLow, edge && low

	case TypeButton:
		return c.button(p, edge, now)

	case TypeRotary:
		// Count on the falling edge of the A phase; B gives direction
		if partner == nil || !edge || !low {
			return 0, false
		}
		if partner.stable {
			return EventLow, true
		}
		return EventHigh, true

	case TypeSecurity:
		if partner == nil || (!edge && !partnerEdge) {
			return 0, false
		}
		code := securityState(p.stable, partner.stable)
		if code == p.lastSecurity {
			return 0, false
		}
		p.lastSecurity = code
		return code, true
	}
	return 0, false
}

func (c *Classifier) button(p *pinState, edge bool, now time.Time) (EventCode, bool) {
	low := !p.stable

	switch {
	case edge && low:
		p.pressed = true
		p.pressedAt = now
		p.holdFired = false

	case edge && !low:
		p.pressed = false
		if p.holdFired {
			p.holdFired = false
			return 0, false
		}
		p.presses++
		p.releasedAt = now
		if p.presses == MaxPresses {
			p.presses = 0
			return MaxPresses, true
		}

	case p.pressed && !p.holdFired && now.Sub(p.pressedAt) >= c.cfg.HoldTime:
		p.holdFired = true
		p.presses = 0
		return EventHold, true

	case !p.pressed && p.presses > 0 && now.Sub(p.releasedAt) >= c.cfg.MultiPressWindow:
		count := p.presses
		p.presses = 0
		return count, true
	}
	return 0, false
}

// securityState maps the alarm loop and tamper loop levels to an event.
// Both loops are normally closed (low); both open means the wiring failed.
func securityState(alarmOpen, tamperOpen bool) EventCode {
	switch {
	case alarmOpen && tamperOpen:
		return EventFault
	case tamperOpen:
		return EventTamper
	case alarmOpen:
		return EventLow
	default:
		return EventHigh
	}
}

func (p *pinState) resetGesture() {
	p.pressed = false
	p.holdFired = false
	p.presses = 0
	p.lastSecurity = 0
}

// paired reports whether the type uses the next pin as a second signal.
func (t InputType) paired() bool {
	return t == TypeRotary || t == TypeSecurity
}
