package monitor

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/knx-statemonitor/internal/input"
)

// setupSlotDB creates an in-memory SQLite database with the slot_config table.
func setupSlotDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	// Each connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE slot_config (
			slot INTEGER PRIMARY KEY,
			input_type TEXT NOT NULL DEFAULT '',
			invert INTEGER NOT NULL DEFAULT 0,
			disabled INTEGER NOT NULL DEFAULT 0,
			command_address TEXT NOT NULL DEFAULT '',
			state_address TEXT NOT NULL DEFAULT '',
			failover_only INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteSlotRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteSlotRepository(setupSlotDB(t))

	settings := []SlotSettings{
		{Slot: 3, Type: input.TypeRotary, CommandAddress: ga(2, 1, 0)},
		{
			Slot:           1,
			Type:           input.TypeButton,
			Invert:         true,
			CommandAddress: ga(1, 2, 3),
			StateAddress:   ga(1, 2, 4),
			FailoverOnly:   true,
		},
		{Slot: 2, Disabled: true},
	}
	for _, s := range settings {
		if err := repo.Save(ctx, s); err != nil {
			t.Fatalf("Save(%d) error: %v", s.Slot, err)
		}
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Load() returned %d slots, want 3", len(got))
	}
	want := []SlotSettings{settings[1], settings[2], settings[0]}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slot %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSQLiteSlotRepositorySaveReplaces(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteSlotRepository(setupSlotDB(t))

	if err := repo.Save(ctx, SlotSettings{Slot: 1, Type: input.TypeContact, StateAddress: ga(1, 2, 4)}); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	updated := SlotSettings{Slot: 1, Type: input.TypeSwitch}
	if err := repo.Save(ctx, updated); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(got) != 1 || got[0] != updated {
		t.Errorf("Load() = %+v, want [%+v]", got, updated)
	}
}

func TestSQLiteSlotRepositoryClearsMalformedRows(t *testing.T) {
	ctx := context.Background()
	db := setupSlotDB(t)
	repo := NewSQLiteSlotRepository(db)

	_, err := db.Exec(`
		INSERT INTO slot_config (slot, input_type, command_address, state_address, invert, updated_at)
		VALUES (5, 'lever', 'garbage', '1/2/4', 1, 0)`)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := repo.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := SlotSettings{Slot: 5, Invert: true, StateAddress: ga(1, 2, 4)}
	if len(got) != 1 || got[0] != want {
		t.Errorf("Load() = %+v, want [%+v]", got, want)
	}
}

func TestSQLiteSlotRepositoryEmpty(t *testing.T) {
	repo := NewSQLiteSlotRepository(setupSlotDB(t))

	got, err := repo.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Load() = %+v, want empty", got)
	}
}
