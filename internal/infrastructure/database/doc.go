// Package database provides SQLite connectivity for the FleetDesk client.
//
// The client keeps a small amount of durable state between runs (the
// session token and the signed-in user). This package owns the
// connection and the schema; the key/value layer on top lives in
// internal/kvstore.
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Storage.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are forward-only files named YYYYMMDD_HHMMSS_name.up.sql.
// Applied versions are recorded in schema_migrations.
package database
