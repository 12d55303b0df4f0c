package knx

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// BusRecorder passively records the group addresses and source devices seen
// in accepted telegrams. The resulting tables show which state addresses
// actually answer read requests, which helps diagnose slots that keep timing out.
//
// Thread Safety: All methods are safe for concurrent use.
type BusRecorder struct {
	db     *sql.DB
	logger Logger

	// Prepared statements for upserts (created once, reused)
	gaUpsertStmt     *sql.Stmt
	deviceUpsertStmt *sql.Stmt
	stmtMu           sync.Mutex

	closed bool
	mu     sync.RWMutex
}

// RecordedAddress is one row of the group address table.
type RecordedAddress struct {
	Address         GroupAddress
	LastSeen        time.Time
	MessageCount    int64
	LastValue       []byte
	HasReadResponse bool
}

// NewBusRecorder creates a recorder on a database that has the bus_group_addresses
// and bus_devices tables (see migrations).
func NewBusRecorder(db *sql.DB) *BusRecorder {
	return &BusRecorder{db: db}
}

// SetLogger sets the logger for the recorder.
func (r *BusRecorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Start prepares the recorder for use.
// Must be called before Record.
func (r *BusRecorder) Start() error {
	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.gaUpsertStmt != nil {
		return nil // Already started
	}

	gaStmt, err := r.db.Prepare(`
		INSERT INTO bus_group_addresses (group_address, last_seen, message_count, last_value, has_read_response)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(group_address) DO UPDATE SET
			last_seen = excluded.last_seen,
			message_count = message_count + 1,
			last_value = COALESCE(excluded.last_value, last_value),
			has_read_response = MAX(has_read_response, excluded.has_read_response)
	`)
	if err != nil {
		return fmt.Errorf("preparing group address upsert: %w", err)
	}

	deviceStmt, err := r.db.Prepare(`
		INSERT INTO bus_devices (individual_address, last_seen, message_count)
		VALUES (?, ?, 1)
		ON CONFLICT(individual_address) DO UPDATE SET
			last_seen = excluded.last_seen,
			message_count = message_count + 1
	`)
	if err != nil {
		gaStmt.Close()
		return fmt.Errorf("preparing device upsert: %w", err)
	}

	r.gaUpsertStmt = gaStmt
	r.deviceUpsertStmt = deviceStmt

	r.mu.Lock()
	r.closed = false
	r.mu.Unlock()
	r.log("bus recorder started")
	return nil
}

// Stop closes the recorder and releases resources.
func (r *BusRecorder) Stop() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	r.stmtMu.Lock()
	defer r.stmtMu.Unlock()

	if r.gaUpsertStmt != nil {
		r.gaUpsertStmt.Close()
		r.gaUpsertStmt = nil
	}
	if r.deviceUpsertStmt != nil {
		r.deviceUpsertStmt.Close()
		r.deviceUpsertStmt = nil
	}

	r.log("bus recorder stopped")
}

// Record stores the source device and destination address of a telegram.
// Reads carry no value and only bump the counters.
func (r *BusRecorder) Record(t Telegram) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed || !t.GroupTarget {
		return
	}

	r.stmtMu.Lock()
	gaStmt := r.gaUpsertStmt
	deviceStmt := r.deviceUpsertStmt
	r.stmtMu.Unlock()

	if gaStmt == nil || deviceStmt == nil {
		return // Not started
	}

	now := time.Now().Unix()

	// 0.0.0 is never a real sender
	if t.Source != (IndividualAddress{}) {
		if _, err := deviceStmt.Exec(t.Source.String(), now); err != nil {
			r.logError("recording device", err)
		}
	}

	var value any // NULL keeps the previous value
	if !t.IsRead() {
		value = t.Data
	}
	hasResponse := 0
	if t.IsResponse() {
		hasResponse = 1
	}
	if _, err := gaStmt.Exec(t.Destination.String(), now, value, hasResponse); err != nil {
		r.logError("recording group address", err)
	}
}

// Addresses returns recorded group addresses, most recently seen first.
func (r *BusRecorder) Addresses(ctx context.Context, limit int) ([]RecordedAddress, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT group_address, last_seen, message_count, last_value, has_read_response
		FROM bus_group_addresses
		ORDER BY last_seen DESC, group_address ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecordedAddress
	for rows.Next() {
		var (
			addr     string
			lastSeen int64
			rec      RecordedAddress
			response int
		)
		if err := rows.Scan(&addr, &lastSeen, &rec.MessageCount, &rec.LastValue, &response); err != nil {
			return nil, err
		}
		ga, err := ParseGroupAddress(addr)
		if err != nil {
			r.logError("skipping malformed recorded address", err)
			continue
		}
		rec.Address = ga
		rec.LastSeen = time.Unix(lastSeen, 0)
		rec.HasReadResponse = response != 0
		out = append(out, rec)
	}

	return out, rows.Err()
}

// GroupAddressCount returns the number of recorded group addresses.
func (r *BusRecorder) GroupAddressCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bus_group_addresses`).Scan(&count)
	return count, err
}

// DeviceCount returns the number of recorded source devices.
func (r *BusRecorder) DeviceCount(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bus_devices`).Scan(&count)
	return count, err
}

func (r *BusRecorder) log(msg string, keysAndValues ...any) {
	if r.logger != nil {
		r.logger.Info(msg, keysAndValues...)
	}
}

func (r *BusRecorder) logError(msg string, err error) {
	if r.logger != nil {
		r.logger.Error(msg, "error", err)
	}
}
