// Package database owns the SQLite handle shared by the slot registry, the
// telemetry and alert repositories, the camera store and the user store.
//
// Writers are serialised through a single pooled connection, and WAL mode is
// enabled so dashboard reads are not blocked by listener writes.
//
// Schema changes live in the top-level migrations package as
// YYYYMMDD_HHMMSS_name.up.sql / .down.sql pairs, embedded into the binary
// and applied by Migrate at startup:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Dependent rows (readings, camera images, alerts) carry no foreign keys to
// slots; cascades are performed explicitly inside WithTx.
package database
