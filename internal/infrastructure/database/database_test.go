package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	return db
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name string
		rel  string
		wal  bool
	}{
		{"file in existing directory", "test.db", true},
		{"nested directory created", filepath.Join("a", "b", "test.db"), true},
		{"rollback journal", "journal.db", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dbPath := filepath.Join(t.TempDir(), tt.rel)
			db, err := Open(Config{Path: dbPath, WALMode: tt.wal, BusyTimeout: 1})
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer db.Close() //nolint:errcheck // Test cleanup

			info, err := os.Stat(dbPath)
			if err != nil {
				t.Fatalf("database file not created: %v", err)
			}
			if perm := info.Mode().Perm(); perm != filePermissions {
				t.Errorf("file mode = %o, want %o", perm, filePermissions)
			}

			var mode string
			if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
				t.Fatalf("journal_mode query: %v", err)
			}
			if want := map[bool]string{true: "wal", false: "delete"}[tt.wal]; mode != want {
				t.Errorf("journal_mode = %q, want %q", mode, want)
			}
		})
	}
}

func TestOpenUnwritableDirectory(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(parent, nil, 0600); err != nil {
		t.Fatal(err)
	}
	// A regular file cannot be a directory
	if _, err := Open(Config{Path: filepath.Join(parent, "test.db")}); err == nil {
		t.Error("Open() under a regular file should fail")
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	db.Close() //nolint:errcheck // Closing to force a failure
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() on closed database should fail")
	}
}

func TestCloseZeroValue(t *testing.T) {
	var db DB
	if err := db.Close(); err != nil {
		t.Errorf("Close() on zero DB = %v", err)
	}
}
