// Package database provides SQLite connectivity for the airlink bridge.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - A single-connection pool (SQLite has one writer)
//   - Schema migrations read from a registered filesystem
//
// The database holds the appliance registry, last-known appliance state and
// the last values requested through the UI. It never stores sensor history.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql. The migrations package registers its
// embedded files from init; importing it for side effects is enough.
package database
