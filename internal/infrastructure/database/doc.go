// Package database provides the SQLite store for the monitor's local state.
//
// The monitor keeps two kinds of data here:
//   - the last applied slot configuration, restored at startup so inputs
//     work before the configuration is received again over MQTT
//   - the bus recorder tables (group addresses and devices seen on the bus)
//
// This package manages:
//   - Database connection with WAL mode and a busy timeout
//   - Schema migrations from an fs.FS (see the migrations package)
//   - A health check reported in the monitor's status
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are forward-only .up.sql files. New columns must be NULLABLE
// or carry a DEFAULT so an older row set still loads.
package database
