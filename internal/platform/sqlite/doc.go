// Package sqlite opens embedded sqlite databases (modernc.org/sqlite, no cgo)
// and applies golang-migrate migrations from an fs.FS.
//
//	db, err := sqlite.Open(ctx, "data/history.db")
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	if err := sqlite.ApplyMigrations(db, migrations, "migrations"); err != nil {
//		return err
//	}
package sqlite
