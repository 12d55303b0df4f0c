package knx

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial.v1"
)

// TP-UART host services (host → transceiver).
const (
	uResetReq        = 0x01
	uStateReq        = 0x02
	uAckInfoBase     = 0x10
	uAckAddressed    = 0x01
	uLDataStartReq   = 0x80
	uLDataEndReq     = 0x40
	uLDataIndexMask  = 0x3F
	uLDataMaxIndex   = 63
	tpuartBaudRate   = 19200
	tpuartDataBits   = 8
	tpuartBufferSize = 64
)

// TP-UART indications (transceiver → host).
const (
	uResetInd       = 0x03
	uStateIndMask   = 0x07
	uStateIndValue  = 0x07
	uDataConMask    = 0x7F
	uDataConValue   = 0x0B
	uDataConPosBit  = 0x80
	defaultConfirm  = 3 * time.Second
	defaultReset    = 2 * time.Second
	defaultReopen   = 5 * time.Second
	confirmChanSize = 1
)

// TPUARTConfig holds the serial transceiver configuration.
type TPUARTConfig struct {
	// Port is the serial device, e.g. "/dev/ttyAMA0".
	Port string

	// Address is the individual address used as source of outgoing frames.
	// Default: 1.1.244.
	Address IndividualAddress

	// ConfirmTimeout bounds the wait for L_Data.con after a send.
	// Default: 3 seconds.
	ConfirmTimeout time.Duration

	// ReopenInterval is the delay between attempts to reopen a lost port.
	// Default: 5 seconds.
	ReopenInterval time.Duration
}

// PortOpener opens the byte stream to the transceiver.
type PortOpener func() (io.ReadWriteCloser, error)

// SerialOpener returns a PortOpener for a TP-UART on a serial device,
// configured for 19200 baud, 8 data bits, even parity, one stop bit.
func SerialOpener(device string) PortOpener {
	return func() (io.ReadWriteCloser, error) {
		mode := &serial.Mode{
			BaudRate: tpuartBaudRate,
			DataBits: tpuartDataBits,
			Parity:   serial.EvenParity,
			StopBits: serial.OneStopBit,
		}
		port, err := serial.Open(device, mode)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", device, err)
		}
		return port, nil
	}
}

// Ensure TPUARTClient implements Connector.
var _ Connector = (*TPUARTClient)(nil)

// TPUARTClient drives a TP-UART bus coupling unit over a serial line.
//
// Unlike knxd, the transceiver expects the host to decide whether each
// frame is addressed to it. The interest filter is consulted as soon as the
// destination bytes arrive and the acknowledge service is written before the
// rest of the frame is read.
type TPUARTClient struct {
	logSink
	*dispatcher

	cfg  TPUARTConfig
	open PortOpener

	port   io.ReadWriteCloser
	portMu sync.RWMutex

	// sendMu serialises frames; the transceiver confirms one at a time.
	sendMu    sync.Mutex
	confirmCh chan bool
	resetCh   chan struct{}

	// source is the individual address stamped on sent frames.
	source atomic.Uint32

	connected atomic.Bool
	reopening atomic.Bool

	done *closeOnce
	wg   sync.WaitGroup

	telegramsTx     atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
}

// OpenTPUART opens the serial device and resets the transceiver.
func OpenTPUART(ctx context.Context, cfg TPUARTConfig) (*TPUARTClient, error) {
	return NewTPUARTClient(ctx, cfg, SerialOpener(cfg.Port))
}

// NewTPUARTClient starts a client on the stream returned by open.
//
// Parameters:
//   - ctx: Bounds the initial reset handshake
//   - cfg: Transceiver configuration
//   - open: Opens (and later reopens) the byte stream
//
// Returns:
//   - *TPUARTClient: Running client
//   - error: ErrConnectionFailed if the port cannot be opened or reset
func NewTPUARTClient(ctx context.Context, cfg TPUARTConfig, open PortOpener) (*TPUARTClient, error) {
	if cfg.Address == (IndividualAddress{}) {
		cfg.Address = DefaultIndividualAddress
	}
	if cfg.ConfirmTimeout == 0 {
		cfg.ConfirmTimeout = defaultConfirm
	}
	if cfg.ReopenInterval == 0 {
		cfg.ReopenInterval = defaultReopen
	}

	port, err := open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &TPUARTClient{
		dispatcher: newDispatcher(),
		cfg:        cfg,
		open:       open,
		port:       port,
		confirmCh:  make(chan bool, confirmChanSize),
		resetCh:    make(chan struct{}, 1),
		done:       newCloseOnce(),
	}
	c.source.Store(uint32(cfg.Address.ToUint16()))

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.run(c.done.Done(), &c.logSink)
	}()
	go c.receiveLoop(port)

	if err := c.reset(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	c.connected.Store(true)

	return c, nil
}

// reset sends U_Reset.req and waits for U_Reset.ind.
func (c *TPUARTClient) reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultReset)
	defer cancel()

	if err := c.write([]byte{uResetReq}); err != nil {
		return fmt.Errorf("reset request: %w", err)
	}

	select {
	case <-c.resetCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("reset indication: %w", ErrTimeout)
	}
}

// write writes raw bytes to the current port.
func (c *TPUARTClient) write(b []byte) error {
	c.portMu.RLock()
	port := c.port
	c.portMu.RUnlock()

	if port == nil {
		return ErrNotConnected
	}
	_, err := port.Write(b)
	return err
}

// receiveLoop reads the transceiver byte stream until the port fails or
// the client is closed, then reopens the port.
func (c *TPUARTClient) receiveLoop(port io.ReadWriteCloser) {
	defer c.wg.Done()

	for {
		err := c.readStream(bufio.NewReaderSize(port, tpuartBufferSize))
		if c.isClosed() {
			return
		}

		c.logError("serial read failed", err)
		c.errorsTotal.Add(1)
		c.connected.Store(false)

		port = c.reopen()
		if port == nil {
			return
		}
	}
}

// readStream dispatches on the first byte of each service.
func (c *TPUARTClient) readStream(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}

		switch {
		case b == uResetInd:
			c.notifyReset()
		case b&uDataConMask == uDataConValue:
			c.notifyConfirm(b&uDataConPosBit != 0)
		case b&uStateIndMask == uStateIndValue:
			c.logDebug("tpuart state indication", "state", fmt.Sprintf("0x%02X", b))
		case b&controlStandardMask == controlStandardValue:
			if err := c.readFrame(b, r); err != nil {
				return err
			}
		default:
			// Extended frames and unknown services are not handled
			c.errorsTotal.Add(1)
		}
	}
}

// readFrame reads a standard frame whose control byte has already been
// consumed. The acknowledge service is sent as soon as the destination is
// known.
func (c *TPUARTClient) readFrame(control byte, r *bufio.Reader) error {
	frame := make([]byte, standardFrameHeader, standardFrameHeader+frameLengthMask+3)
	frame[0] = control
	if _, err := io.ReadFull(r, frame[1:standardFrameHeader]); err != nil {
		return err
	}

	header := Telegram{
		Destination: GroupAddressFromUint16(uint16(frame[3])<<8 | uint16(frame[4])),
		GroupTarget: frame[5]&dafGroupBit != 0,
	}
	accepted := header.GroupTarget && c.accepts(header)

	ack := byte(uAckInfoBase)
	if accepted {
		ack |= uAckAddressed
	}
	if err := c.write([]byte{ack}); err != nil {
		return err
	}

	rest := make([]byte, standardFrameLength(frame[5])-standardFrameHeader)
	if _, err := io.ReadFull(r, rest); err != nil {
		return err
	}
	if !accepted {
		return nil
	}

	telegram, err := ParseFrame(append(frame, rest...))
	if err != nil {
		c.logError("parse frame failed", err)
		c.errorsTotal.Add(1)
		return nil
	}
	if !c.deliver(telegram) {
		c.logError("callback queue full, dropping telegram", nil)
		c.errorsTotal.Add(1)
	}
	return nil
}

func (c *TPUARTClient) notifyReset() {
	select {
	case c.resetCh <- struct{}{}:
	default:
	}
}

func (c *TPUARTClient) notifyConfirm(positive bool) {
	select {
	case c.confirmCh <- positive:
	default:
		// Nobody waiting; confirmation for an abandoned send
	}
}

// reopen retries opening the port until it succeeds or the client closes.
func (c *TPUARTClient) reopen() io.ReadWriteCloser {
	c.reopening.Store(true)
	defer c.reopening.Store(false)

	c.portMu.Lock()
	if c.port != nil {
		c.port.Close()
		c.port = nil
	}
	c.portMu.Unlock()

	for attempt := 1; ; attempt++ {
		select {
		case <-c.done.Done():
			return nil
		case <-time.After(c.cfg.ReopenInterval):
		}

		c.logInfo("reopening tpuart", "attempt", attempt)
		port, err := c.open()
		if err != nil {
			c.logError("reopen failed", err)
			c.errorsTotal.Add(1)
			continue
		}

		c.portMu.Lock()
		if c.isClosed() {
			c.portMu.Unlock()
			port.Close()
			return nil
		}
		c.port = port
		c.portMu.Unlock()

		// Reset indication arrives on the new stream; no need to wait here
		if err := c.write([]byte{uResetReq}); err != nil {
			c.logError("reset after reopen failed", err)
		}
		c.connected.Store(true)
		c.reconnectsTotal.Add(1)
		c.touch()
		return port
	}
}

// encodeHostFrame wraps a bus frame in U_L_DataStart/Continue/End services.
func encodeHostFrame(frame []byte) []byte {
	out := make([]byte, 0, 2*len(frame))
	last := len(frame) - 1
	for i, b := range frame {
		service := byte(uLDataStartReq | (i & uLDataIndexMask))
		if i == last {
			service = byte(uLDataEndReq | (i & uLDataIndexMask))
		}
		out = append(out, service, b)
	}
	return out
}

// Send sends a group write telegram and waits for the bus confirmation.
func (c *TPUARTClient) Send(ctx context.Context, ga GroupAddress, data []byte) error {
	return c.sendTelegram(ctx, NewWriteTelegram(ga, data))
}

// SendRead sends a group read request.
func (c *TPUARTClient) SendRead(ctx context.Context, ga GroupAddress) error {
	return c.sendTelegram(ctx, NewReadTelegram(ga))
}

func (c *TPUARTClient) sendTelegram(ctx context.Context, t Telegram) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTelegramFailed, err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	frame := t.EncodeFrame(c.IndividualAddress())
	if len(frame) > uLDataMaxIndex+1 {
		return fmt.Errorf("%w: frame too long (%d bytes)", ErrTelegramFailed, len(frame))
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	// Discard a stale confirmation from an earlier timed-out send
	select {
	case <-c.confirmCh:
	default:
	}

	if err := c.write(encodeHostFrame(frame)); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %w", ErrTelegramFailed, err)
	}

	timer := time.NewTimer(c.cfg.ConfirmTimeout)
	defer timer.Stop()

	select {
	case positive := <-c.confirmCh:
		if !positive {
			c.errorsTotal.Add(1)
			return fmt.Errorf("%w: %s", ErrNotConfirmed, t.Destination)
		}
	case <-timer.C:
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: confirmation for %s", ErrTimeout, t.Destination)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrTelegramFailed, ctx.Err())
	case <-c.done.Done():
		return ErrNotConnected
	}

	c.telegramsTx.Add(1)
	c.touch()
	c.logDebug("telegram sent", "telegram", t.String())
	return nil
}

// SetIndividualAddress changes the source address of subsequent frames.
// The zero address is ignored.
func (c *TPUARTClient) SetIndividualAddress(addr IndividualAddress) {
	if addr == (IndividualAddress{}) {
		return
	}
	c.source.Store(uint32(addr.ToUint16()))
}

// IndividualAddress returns the source address used for sent frames.
func (c *TPUARTClient) IndividualAddress() IndividualAddress {
	return IndividualAddressFromUint16(uint16(c.source.Load())) // #nosec G115 -- stored from a uint16
}

// RequestState asks the transceiver for a U_State.ind; the answer is logged.
func (c *TPUARTClient) RequestState() error {
	return c.write([]byte{uStateReq})
}

func (c *TPUARTClient) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// IsConnected returns true while the serial port is open and reset.
func (c *TPUARTClient) IsConnected() bool {
	return c.connected.Load() && !c.isClosed()
}

// Close stops the client and closes the serial port.
// Safe to call multiple times.
func (c *TPUARTClient) Close() error {
	c.done.Close()
	c.connected.Store(false)

	c.portMu.Lock()
	if c.port != nil {
		c.port.Close()
		c.port = nil
	}
	c.portMu.Unlock()

	c.wg.Wait()
	c.logInfo("tpuart closed")
	return nil
}

// Stats returns current operational statistics.
func (c *TPUARTClient) Stats() TransportStats {
	return TransportStats{
		TelegramsTx:       c.telegramsTx.Load(),
		TelegramsRx:       c.telegramsRx.Load(),
		TelegramsFiltered: c.telegramsFiltered.Load(),
		TelegramsDropped:  c.telegramsDropped.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
		ReconnectsTotal:   c.reconnectsTotal.Load(),
		LastActivity:      time.Unix(c.lastActivity.Load(), 0),
		Connected:         c.IsConnected(),
		Reconnecting:      c.reopening.Load(),
	}
}
