// Package database opens the SQLite file that holds the audit journal and
// applies its schema.
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are forward-only *.up.sql files applied in version order, each
// in its own transaction. New columns must be nullable or carry a default.
package database
