package database

import (
	"context"
	"testing"
	"testing/fstest"
)

func useMigrations(t *testing.T, fsys fstest.MapFS) {
	t.Helper()
	origFS, origDir := MigrationsFS, MigrationsDir
	t.Cleanup(func() {
		MigrationsFS, MigrationsDir = origFS, origDir
	})
	MigrationsFS = fsys
	MigrationsDir = "testdata"
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master query: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"testdata/20260301_090100_add_invert.up.sql": &fstest.MapFile{
			Data: []byte(`ALTER TABLE test_slots ADD COLUMN invert INTEGER NOT NULL DEFAULT 0;`),
		},
		"testdata/20260301_090000_create_slots.up.sql": &fstest.MapFile{
			Data: []byte(`CREATE TABLE test_slots (slot INTEGER PRIMARY KEY, state_address TEXT NOT NULL);`),
		},
		"testdata/notes.txt": &fstest.MapFile{Data: []byte("ignored")},
	})
	db := openTestDB(t)
	ctx := context.Background()

	// Out-of-order names still apply oldest first
	n, err := db.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Migrate() applied %d, want 2", n)
	}
	if _, err := db.Exec("INSERT INTO test_slots (slot, state_address, invert) VALUES (1, '1/2/3', 1)"); err != nil {
		t.Errorf("migrated schema rejects insert: %v", err)
	}

	n, err = db.Migrate(ctx)
	if err != nil || n != 0 {
		t.Errorf("second Migrate() = %d, %v; want 0, nil", n, err)
	}
}

func TestMigrateFailureRollsBack(t *testing.T) {
	useMigrations(t, fstest.MapFS{
		"testdata/20260301_090000_good.up.sql": &fstest.MapFile{
			Data: []byte(`CREATE TABLE good (id INTEGER);`),
		},
		"testdata/20260301_090100_bad.up.sql": &fstest.MapFile{
			Data: []byte(`CREATE TABLE half (id INTEGER); NOT VALID SQL;`),
		},
	})
	db := openTestDB(t)

	n, err := db.Migrate(context.Background())
	if err == nil {
		t.Fatal("Migrate() should fail on invalid SQL")
	}
	if n != 1 {
		t.Errorf("Migrate() applied %d before failing, want 1", n)
	}
	if !tableExists(t, db, "good") {
		t.Error("earlier migration not committed")
	}
	if tableExists(t, db, "half") {
		t.Error("failed migration not rolled back")
	}
}

func TestMigrateWithoutFiles(t *testing.T) {
	origFS := MigrationsFS
	t.Cleanup(func() { MigrationsFS = origFS })
	MigrationsFS = nil

	db := openTestDB(t)
	if n, err := db.Migrate(context.Background()); err != nil || n != 0 {
		t.Errorf("Migrate() = %d, %v; want 0, nil", n, err)
	}
	if !tableExists(t, db, "schema_migrations") {
		t.Error("schema_migrations not created")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename    string
		wantVersion string
		wantName    string
		wantOK      bool
	}{
		{"20260301_120000_bus_recorder.up.sql", "20260301_120000", "bus_recorder", true},
		{"20260301_120000.up.sql", "20260301_120000", "", true},
		{"20260301_120000_bus_recorder.down.sql", "", "", false},
		{"20260301_120000_bus_recorder.sql", "", "", false},
		{"readme.up.sql", "", "", false},
		{"notes.txt", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.filename)
			if version != tt.wantVersion || name != tt.wantName || ok != tt.wantOK {
				t.Errorf("parseMigrationFilename() = %q, %q, %v; want %q, %q, %v",
					version, name, ok, tt.wantVersion, tt.wantName, tt.wantOK)
			}
		})
	}
}
