// Package database provides SQLite connectivity for netpulse core.
//
// It wraps database/sql with lifecycle management, health checks and an
// embedded-migration runner. The relational store holds the configuration
// side of the system — metric definitions, thresholds and charts — while
// the measurements themselves live in the time-series backend.
//
// # Usage
//
//	db, err := database.Open(database.Config{
//	    Path:        "./data/netpulse.db",
//	    WALMode:     true,
//	    BusyTimeout: 5,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Migrations
//
// Migration files are embedded into the binary by the migrations package
// and named YYYYMMDD_HHMMSS_description.up.sql (with an optional matching
// .down.sql). Each migration runs in its own transaction and is recorded
// in the schema_migrations table.
//
// # Concurrency
//
// SQLite supports a single writer. The pool is limited to one open
// connection; WAL mode allows concurrent readers during writes.
package database
