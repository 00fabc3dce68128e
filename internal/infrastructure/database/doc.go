// Package database provides the SQLite connection used for the
// device state-change journal.
//
// The journal is write-mostly: every accepted state change is appended and
// the admin API reads recent history back. State is never restored from it
// at startup.
//
// # Migrations
//
// Schema changes live in the top-level migrations package as
// YYYYMMDD_HHMMSS_name.up.sql / .down.sql pairs embedded into the binary:
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/fauxmo.db", WALMode: true})
//	if err != nil {
//	    return err
//	}
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
