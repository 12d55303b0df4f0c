package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/knx-statemonitor/internal/bridges/knx"
	"github.com/nerrad567/knx-statemonitor/internal/input"
)

// SlotSettings is the complete configuration of one slot.
type SlotSettings struct {
	Slot int // 1-based

	// Type is the slot's own input type; zero means the default type.
	Type     input.InputType
	Invert   bool
	Disabled bool

	CommandAddress knx.GroupAddress
	StateAddress   knx.GroupAddress

	// FailoverOnly sends events to KNX only while MQTT is unavailable
	// or failover is forced.
	FailoverOnly bool
}

// SlotRepository persists slot settings so the last applied configuration
// survives a restart.
type SlotRepository interface {
	// Load returns all stored slots ordered by slot number.
	Load(ctx context.Context) ([]SlotSettings, error)

	// Save inserts or replaces the settings of one slot.
	Save(ctx context.Context, s SlotSettings) error
}

// SQLiteSlotRepository implements SlotRepository on the slot_config table.
type SQLiteSlotRepository struct {
	db *sql.DB
}

// NewSQLiteSlotRepository creates a repository on a migrated database.
func NewSQLiteSlotRepository(db *sql.DB) *SQLiteSlotRepository {
	return &SQLiteSlotRepository{db: db}
}

// Load returns all stored slots ordered by slot number. Rows holding an
// unknown type or malformed address load with that field cleared.
func (r *SQLiteSlotRepository) Load(ctx context.Context) ([]SlotSettings, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT slot, input_type, invert, disabled, command_address, state_address, failover_only
		FROM slot_config
		ORDER BY slot`)
	if err != nil {
		return nil, fmt.Errorf("querying slot config: %w", err)
	}
	defer rows.Close()

	var out []SlotSettings
	for rows.Next() {
		var (
			s                          SlotSettings
			typeName, command, state   string
			invert, disabled, failover int
		)
		if err := rows.Scan(&s.Slot, &typeName, &invert, &disabled, &command, &state, &failover); err != nil {
			return nil, fmt.Errorf("scanning slot config: %w", err)
		}
		if typeName != "" {
			if t, err := input.ParseInputType(typeName); err == nil {
				s.Type = t
			}
		}
		s.Invert = invert != 0
		s.Disabled = disabled != 0
		s.FailoverOnly = failover != 0
		s.CommandAddress = parseStoredAddress(command)
		s.StateAddress = parseStoredAddress(state)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating slot config: %w", err)
	}
	return out, nil
}

// Save inserts or replaces the settings of one slot.
func (r *SQLiteSlotRepository) Save(ctx context.Context, s SlotSettings) error {
	typeName := ""
	if s.Type.Valid() {
		typeName = s.Type.String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO slot_config (slot, input_type, invert, disabled, command_address, state_address, failover_only, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			input_type = excluded.input_type,
			invert = excluded.invert,
			disabled = excluded.disabled,
			command_address = excluded.command_address,
			state_address = excluded.state_address,
			failover_only = excluded.failover_only,
			updated_at = excluded.updated_at`,
		s.Slot, typeName, boolToInt(s.Invert), boolToInt(s.Disabled),
		storedAddress(s.CommandAddress), storedAddress(s.StateAddress),
		boolToInt(s.FailoverOnly), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("saving slot %d: %w", s.Slot, err)
	}
	return nil
}

func storedAddress(ga knx.GroupAddress) string {
	if ga.IsZero() {
		return ""
	}
	return ga.String()
}

func parseStoredAddress(s string) knx.GroupAddress {
	if s == "" {
		return knx.GroupAddress{}
	}
	ga, err := knx.ParseGroupAddress(s)
	if err != nil {
		return knx.GroupAddress{}
	}
	return ga
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
