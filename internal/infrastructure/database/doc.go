// Package database opens the bridge's SQLite database and applies its
// schema migrations.
//
// The database holds little: the addresses of speakers the bridge has
// attached, so they can be reattached at startup without waiting for
// discovery. WAL mode and a busy timeout keep the REST API's reads from
// blocking on the adapter's writes.
//
// Migrations are plain SQL files in an fs.FS, normally the embedded
// migrations package:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
