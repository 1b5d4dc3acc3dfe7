// Package database provides the SQLite connection backing the descriptor
// store.
//
// This package manages:
//   - Connection setup with WAL mode for concurrent reads
//   - Schema migrations applied from an embedded filesystem
//   - Connection lifecycle and health checks
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.Files()); err != nil {
//	    return err
//	}
//
// Migration files are named NNN_description.up.sql with an optional
// matching .down.sql and are applied in version order, each in its own
// transaction.
package database
