package knx

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"time"
)

// Default timeouts and intervals for knxd communication.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultReadTimeout is the timeout for individual read operations.
	defaultReadTimeout = 30 * time.Second

	// defaultWriteTimeout is the timeout for write operations.
	defaultWriteTimeout = 5 * time.Second

	// defaultReconnectInterval is the initial delay between reconnection attempts.
	defaultReconnectInterval = 5 * time.Second

	// maxReconnectInterval is the maximum delay between reconnection attempts.
	maxReconnectInterval = 2 * time.Minute

	// readBufferSize is the size of the read buffer for incoming messages.
	readBufferSize = 256

	// DefaultKNXDConnection is used when no connection URL is configured.
	DefaultKNXDConnection = "unix:///run/knxd"
)

// KNXDConfig holds knxd connection configuration.
//
//nolint:revive // KNXDConfig is clearer than DConfig for external use
type KNXDConfig struct {
	// Connection is the knxd connection URL.
	// Supported formats:
	//   - "unix:///run/knxd" (Unix socket)
	//   - "tcp://localhost:6720" (TCP)
	Connection string

	// ConnectTimeout is the maximum time to wait for connection.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// ReadTimeout is the timeout for read operations.
	// Default: 30 seconds.
	ReadTimeout time.Duration

	// ReconnectInterval is the initial delay between reconnection attempts.
	// Default: 5 seconds.
	ReconnectInterval time.Duration
}

// Ensure KNXDClient implements Connector.
var _ Connector = (*KNXDClient)(nil)

// KNXDClient provides a connection to the knxd daemon.
//
// knxd owns the physical bus and acknowledges frames itself, so the interest
// filter here only decides which group packets reach the callback.
//
// Auto-Reconnection:
//   - When the connection is lost, the client automatically attempts to reconnect.
//   - Uses exponential backoff starting at ReconnectInterval up to 2 minutes.
//   - Reconnection stops only when Close() is called.
//
//nolint:revive // KNXDClient is clearer than DClient for external use
type KNXDClient struct {
	logSink
	*dispatcher

	cfg  KNXDConfig
	conn net.Conn

	connMu    sync.RWMutex
	connected bool

	reconnecting atomic.Bool

	done *closeOnce
	wg   sync.WaitGroup

	telegramsTx     atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
}

// Connect establishes connection to knxd daemon.
//
// After connecting, it opens group communication mode and starts
// a goroutine to receive incoming telegrams.
//
// Parameters:
//   - ctx: Context for cancellation (used for initial connection)
//   - cfg: Connection configuration
//
// Returns:
//   - *KNXDClient: Connected client ready for use
//   - error: If connection or handshake fails
func Connect(ctx context.Context, cfg KNXDConfig) (*KNXDClient, error) {
	if cfg.Connection == "" {
		cfg.Connection = DefaultKNXDConnection
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}

	network, address, err := parseConnectionURL(cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(connectCtx, network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial failed: %w", ErrConnectionFailed, err)
	}

	client := &KNXDClient{
		dispatcher: newDispatcher(),
		cfg:        cfg,
		conn:       conn,
		done:       newCloseOnce(),
	}

	if err := client.openGroupCon(connectCtx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: handshake failed: %w", ErrConnectionFailed, err)
	}

	client.connMu.Lock()
	client.connected = true
	client.connMu.Unlock()

	client.wg.Add(2)
	go func() {
		defer client.wg.Done()
		client.run(client.done.Done(), &client.logSink)
	}()
	go client.receiveLoop()

	return client, nil
}

// parseConnectionURL parses a knxd connection URL into network and address.
func parseConnectionURL(connURL string) (network, address string, err error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "unix":
		return "unix", u.Path, nil
	case "tcp":
		host := u.Host
		if host == "" {
			host = "localhost:6720"
		}
		return "tcp", host, nil
	default:
		return "", "", fmt.Errorf("unsupported scheme %q (use unix or tcp)", u.Scheme)
	}
}

// openGroupCon sends EIB_OPEN_GROUPCON and waits for knxd to echo it.
//
// Payload: reserved(1) + write_only(1) + reserved(1). write_only=0x00
// enables both directions on the group socket.
func (c *KNXDClient) openGroupCon(ctx context.Context, conn net.Conn) error {
	msg := EncodeKNXDMessage(EIBOpenGroupCon, []byte{0x00, 0x00, 0x00})

	deadline := time.Now().Add(c.cfg.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	defer conn.SetDeadline(time.Time{}) //nolint:errcheck // best-effort reset

	if _, err := conn.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	buf := make([]byte, readBufferSize)
	msgType, _, err := readKNXDMessage(conn, buf)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if msgType != EIBOpenGroupCon {
		return fmt.Errorf("unexpected response type: 0x%04X", msgType)
	}
	return nil
}

// readKNXDMessage reads one size-prefixed knxd message from r.
// An oversized message returns ErrProtocolDesync: the remaining stream
// cannot be framed safely.
func readKNXDMessage(r io.Reader, buf []byte) (uint16, []byte, error) {
	if _, err := io.ReadFull(r, buf[:2]); err != nil {
		return 0, nil, fmt.Errorf("read size: %w", err)
	}

	// Size field = type(2) + payload, NOT including size field itself
	msgSize := binary.BigEndian.Uint16(buf[:2])
	if msgSize < 2 {
		return 0, nil, fmt.Errorf("%w: invalid message size %d", ErrProtocolDesync, msgSize)
	}
	totalLen := 2 + int(msgSize)
	if totalLen > len(buf) {
		return 0, nil, fmt.Errorf("%w: size %d exceeds buffer %d", ErrProtocolDesync, totalLen, len(buf))
	}

	if _, err := io.ReadFull(r, buf[2:totalLen]); err != nil {
		return 0, nil, fmt.Errorf("read message: %w", err)
	}
	return ParseKNXDMessage(buf[:totalLen])
}

// receiveLoop continuously reads telegrams from knxd.
// On connection loss, it reconnects with exponential backoff.
func (c *KNXDClient) receiveLoop() {
	defer c.wg.Done()

	buf := make([]byte, readBufferSize)

	for !c.isClosed() {
		c.connMu.RLock()
		conn := c.conn
		c.connMu.RUnlock()

		if conn == nil {
			if !c.reconnect() {
				return
			}
			continue
		}

		if err := conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			c.logError("set read deadline failed", err)
		}

		msgType, payload, err := readKNXDMessage(conn, buf)
		if err != nil {
			if c.isClosed() {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}

			c.logError("read failed", err)
			c.errorsTotal.Add(1)
			c.handleDisconnect()
			continue
		}

		// GROUPCON receive format: src(2) + GA(2) + APDU(2+)
		if msgType == EIBGroupPacket && len(payload) >= groupPacketMinLen {
			c.handleGroupPacket(payload)
		}
	}
}

// handleGroupPacket filters and delivers a received group telegram.
func (c *KNXDClient) handleGroupPacket(payload []byte) {
	telegram, err := ParseTelegram(payload)
	if err != nil {
		c.logError("parse telegram failed", err)
		c.errorsTotal.Add(1)
		return
	}

	if !c.accepts(telegram) {
		return
	}
	if !c.deliver(telegram) {
		c.logError("callback queue full, dropping telegram", nil)
		c.errorsTotal.Add(1)
	}
}

// handleDisconnect closes the socket and marks the client disconnected.
func (c *KNXDClient) handleDisconnect() {
	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	if wasConnected {
		c.logInfo("connection lost, will attempt reconnection")
	}
}

// reconnect re-establishes the knxd connection with exponential backoff.
// Returns false if shutdown was signalled.
func (c *KNXDClient) reconnect() bool {
	c.reconnecting.Store(true)
	defer c.reconnecting.Store(false)

	network, address, err := parseConnectionURL(c.cfg.Connection)
	if err != nil {
		c.logError("reconnect: invalid connection URL", err)
		return false
	}

	backoff := c.cfg.ReconnectInterval
	for attempt := 1; ; attempt++ {
		if c.isClosed() {
			return false
		}
		c.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		err := c.dialAndOpen(network, address)
		if err == nil {
			c.reconnectsTotal.Add(1)
			c.touch()
			c.logInfo("reconnection successful", "total_reconnects", c.reconnectsTotal.Load())
			return true
		}

		c.logError("reconnect failed", err)
		c.errorsTotal.Add(1)

		select {
		case <-c.done.Done():
			return false
		case <-time.After(backoff):
		}

		backoff = min(time.Duration(float64(backoff)*1.5), maxReconnectInterval)
	}
}

// dialAndOpen dials knxd and performs the GROUPCON handshake.
func (c *KNXDClient) dialAndOpen(network, address string) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return fmt.Errorf("dial %s://%s: %w", network, address, err)
	}
	if err := c.openGroupCon(ctx, conn); err != nil {
		conn.Close()
		return fmt.Errorf("handshake: %w", err)
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.isClosed() {
		conn.Close()
		return ErrNotConnected
	}
	c.conn = conn
	c.connected = true
	return nil
}

// isClosed returns true if the client has been closed.
func (c *KNXDClient) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Close gracefully closes the connection.
// Safe to call multiple times.
func (c *KNXDClient) Close() error {
	c.done.Close()

	c.connMu.Lock()
	c.connected = false
	if c.conn != nil {
		// Best-effort EIB_CLOSE before dropping the socket
		c.conn.SetWriteDeadline(time.Now().Add(time.Second)) //nolint:errcheck // shutting down
		c.conn.Write(EncodeKNXDMessage(EIBClose, nil))       //nolint:errcheck // shutting down
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.wg.Wait()

	c.logInfo("knxd connection closed")
	return nil
}

// Send sends a group write telegram to the KNX bus.
//
// Parameters:
//   - ctx: Context for cancellation
//   - ga: Target group address
//   - data: DPT-encoded payload
//
// Returns:
//   - error: If sending fails or client is not connected
func (c *KNXDClient) Send(ctx context.Context, ga GroupAddress, data []byte) error {
	return c.sendTelegram(ctx, NewWriteTelegram(ga, data))
}

// SendRead sends a group read request to the KNX bus.
func (c *KNXDClient) SendRead(ctx context.Context, ga GroupAddress) error {
	return c.sendTelegram(ctx, NewReadTelegram(ga))
}

// sendTelegram sends a telegram to knxd.
func (c *KNXDClient) sendTelegram(ctx context.Context, t Telegram) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrTelegramFailed, err)
	}

	c.connMu.RLock()
	conn := c.conn
	connected := c.connected
	c.connMu.RUnlock()
	if !connected || conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(defaultWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: set deadline: %w", ErrTelegramFailed, err)
	}

	if _, err := conn.Write(EncodeKNXDMessage(EIBGroupPacket, t.Encode())); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: write: %w", ErrTelegramFailed, err)
	}

	c.telegramsTx.Add(1)
	c.touch()
	c.logDebug("telegram sent", "telegram", t.String())
	return nil
}

// IsConnected returns true if connected to knxd.
func (c *KNXDClient) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns current operational statistics.
func (c *KNXDClient) Stats() TransportStats {
	return TransportStats{
		TelegramsTx:       c.telegramsTx.Load(),
		TelegramsRx:       c.telegramsRx.Load(),
		TelegramsFiltered: c.telegramsFiltered.Load(),
		TelegramsDropped:  c.telegramsDropped.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
		ReconnectsTotal:   c.reconnectsTotal.Load(),
		LastActivity:      time.Unix(c.lastActivity.Load(), 0),
		Connected:         c.IsConnected(),
		Reconnecting:      c.reconnecting.Load(),
	}
}
