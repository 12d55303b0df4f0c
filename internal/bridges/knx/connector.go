package knx

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// callbackQueueSize is the buffer size for the telegram callback queue.
	callbackQueueSize = 100
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Connector is the bus transport contract shared by the knxd and TP-UART
// clients. It allows mocking the bus in tests.
type Connector interface {
	Send(ctx context.Context, ga GroupAddress, data []byte) error
	SendRead(ctx context.Context, ga GroupAddress) error
	SetOnTelegram(callback func(Telegram))

	// SetFilter installs the interest predicate. Telegrams it rejects are
	// neither acknowledged nor delivered. The filter runs on the transport's
	// read goroutine and must not block.
	SetFilter(filter func(Telegram) bool)

	IsConnected() bool
	Stats() TransportStats
	Close() error
}

// TransportStats holds operational statistics of a bus transport.
type TransportStats struct {
	TelegramsTx       uint64
	TelegramsRx       uint64
	TelegramsFiltered uint64 // Telegrams rejected by the interest filter
	TelegramsDropped  uint64 // Telegrams dropped due to full callback queue
	ErrorsTotal       uint64
	ReconnectsTotal   uint64 // Successful reconnections
	LastActivity      time.Time
	Connected         bool
	Reconnecting      bool // True if currently attempting to reconnect
}

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// logSink holds an optional Logger behind a lock.
type logSink struct {
	logger   Logger
	loggerMu sync.RWMutex
}

// SetLogger sets the logger.
func (l *logSink) SetLogger(logger Logger) {
	l.loggerMu.Lock()
	l.logger = logger
	l.loggerMu.Unlock()
}

func (l *logSink) current() Logger {
	l.loggerMu.RLock()
	defer l.loggerMu.RUnlock()
	return l.logger
}

// logInfo logs an info message if logger is set.
func (l *logSink) logInfo(msg string, keysAndValues ...any) {
	if logger := l.current(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logDebug logs a debug message if logger is set.
func (l *logSink) logDebug(msg string, keysAndValues ...any) {
	if logger := l.current(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (l *logSink) logError(msg string, err error) {
	if logger := l.current(); logger != nil {
		logger.Error(msg, "error", err)
	}
}

// dispatcher gates received telegrams through the interest filter and hands
// accepted ones to the callback on a single worker, preserving bus order.
type dispatcher struct {
	filter     func(Telegram) bool
	onTelegram func(Telegram)
	mu         sync.RWMutex

	queue chan Telegram

	telegramsRx       atomic.Uint64
	telegramsFiltered atomic.Uint64
	telegramsDropped  atomic.Uint64
	lastActivity      atomic.Int64 // Unix timestamp
}

func newDispatcher() *dispatcher {
	d := &dispatcher{queue: make(chan Telegram, callbackQueueSize)}
	d.touch()
	return d
}

// SetOnTelegram sets the callback for received telegrams.
//
// The callback is invoked on a dedicated goroutine, one telegram at a time.
// Panics in the callback are recovered and logged.
func (d *dispatcher) SetOnTelegram(callback func(Telegram)) {
	d.mu.Lock()
	d.onTelegram = callback
	d.mu.Unlock()
}

// SetFilter sets the interest predicate. A nil filter accepts everything.
func (d *dispatcher) SetFilter(filter func(Telegram) bool) {
	d.mu.Lock()
	d.filter = filter
	d.mu.Unlock()
}

// accepts reports whether the telegram passes the interest filter.
func (d *dispatcher) accepts(t Telegram) bool {
	d.mu.RLock()
	filter := d.filter
	d.mu.RUnlock()

	if filter == nil || filter(t) {
		return true
	}
	d.telegramsFiltered.Add(1)
	return false
}

// deliver queues an accepted telegram without blocking the read loop.
// Returns false when the telegram was dropped.
func (d *dispatcher) deliver(t Telegram) bool {
	d.telegramsRx.Add(1)
	d.touch()

	d.mu.RLock()
	hasCallback := d.onTelegram != nil
	d.mu.RUnlock()
	if !hasCallback {
		return true
	}

	select {
	case d.queue <- t:
		return true
	default:
		d.telegramsDropped.Add(1)
		return false
	}
}

// run drains the callback queue until done is closed.
func (d *dispatcher) run(done <-chan struct{}, log *logSink) {
	for {
		select {
		case <-done:
			d.drain()
			return
		case t := <-d.queue:
			d.mu.RLock()
			callback := d.onTelegram
			d.mu.RUnlock()

			if callback == nil {
				continue
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.logError("telegram callback panic", fmt.Errorf("%v", r))
					}
				}()
				callback(t)
			}()
		}
	}
}

// drain removes and discards any remaining items from the callback queue.
func (d *dispatcher) drain() {
	for {
		select {
		case <-d.queue:
		default:
			return
		}
	}
}

func (d *dispatcher) touch() {
	d.lastActivity.Store(time.Now().Unix())
}
