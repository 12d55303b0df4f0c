package input

import (
	"context"
	"time"
)

// Source reads raw pin levels from input hardware.
type Source interface {
	// Pins returns the number of pins the source provides.
	Pins() int

	// Sample returns one word per bank of 16 pins; bit n of word b is pin
	// b*16+n, set when the pin reads high.
	Sample() ([]uint16, error)

	// Close releases the hardware.
	Close() error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// DefaultPollInterval is how often Poll samples the source.
const DefaultPollInterval = 5 * time.Millisecond

// Poll samples src every interval, classifies the samples and passes each
// event to emit. A failed sample is logged and skipped. Poll returns when
// ctx is cancelled.
func Poll(ctx context.Context, src Source, c *Classifier, interval time.Duration, emit func(Event), logger Logger) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			banks, err := src.Sample()
			if err != nil {
				if !failing && logger != nil {
					logger.Error("input sample failed", "error", err)
				}
				failing = true
				continue
			}
			if failing && logger != nil {
				logger.Info("input sampling recovered")
			}
			failing = false

			for bank, word := range banks {
				for _, ev := range c.Process(bank, word, now) {
					emit(ev)
				}
			}
		}
	}
}
