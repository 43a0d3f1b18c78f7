// Package database provides the console's local SQLite store.
//
// The store holds the setpoint command audit trail. It is opened in WAL
// mode with a single pooled connection, and its schema is managed by
// versioned migrations supplied as an fs.FS (see package migrations).
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive. New columns must be nullable or carry a
// default, and every .up.sql has a matching .down.sql.
package database
