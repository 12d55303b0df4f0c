package input

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestPollEmitsEvents(t *testing.T) {
	src := NewFakeSource(16, []uint16{0xFFFF}, []uint16{0xFFFF}, []uint16{0xFFFE})
	c := NewClassifier(src.Pins(), ClassifierConfig{DefaultType: TypeSwitch})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan Event, 4)
	done := make(chan struct{})
	go func() {
		Poll(ctx, src, c, time.Millisecond, func(e Event) { events <- e }, nil)
		close(done)
	}()

	select {
	case e := <-events:
		if e.Slot != 1 || e.Code != EventLow {
			t.Errorf("event = %+v, want slot 1 EventLow", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Poll did not return after cancel")
	}
}

type countingLogger struct {
	mu     sync.Mutex
	errors int
}

func (l *countingLogger) Debug(string, ...any) {}
func (l *countingLogger) Info(string, ...any)  {}
func (l *countingLogger) Warn(string, ...any)  {}
func (l *countingLogger) Error(string, ...any) {
	l.mu.Lock()
	l.errors++
	l.mu.Unlock()
}

func TestPollLogsSampleFailureOnce(t *testing.T) {
	src := NewFakeSource(16)
	src.SampleError = errors.New("bus gone")
	logger := &countingLogger{}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	Poll(ctx, src, NewClassifier(16, ClassifierConfig{}), time.Millisecond, func(Event) {
		t.Error("event emitted from failing source")
	}, logger)

	if logger.errors != 1 {
		t.Errorf("logged %d errors, want 1", logger.errors)
	}
}
