// Package migrations owns the SQLite schema for the session store.
//
// Schema files are embedded and applied with golang-migrate through Driver,
// which speaks database/sql to the ncruces (CGO-free) sqlite3 driver. The
// stock golang-migrate sqlite3 driver is not used because it links
// mattn/go-sqlite3, which registers under the same driver name.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/zjrosen/vibe/internal/log"
)

//go:embed *.sql
var schemaFiles embed.FS

// FS exposes the embedded migration files.
func FS() fs.FS { return schemaFiles }

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(schemaFiles, ".")
	if err != nil {
		return nil, fmt.Errorf("loading embedded migrations: %w", err)
	}
	drv, err := WithDB(db, DriverOptions{})
	if err != nil {
		return nil, err
	}
	return migrate.NewWithInstance("iofs", src, "sqlite3", drv)
}

// RunMigrations brings db up to the latest schema. An already current
// database is not an error.
func RunMigrations(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	version, dirty, err := m.Version()
	if err == nil {
		log.Debug(log.CatDB, "Schema up to date", "version", version, "dirty", dirty)
	}
	return nil
}

// Status reports the applied schema version. ok is false for a database that
// has never been migrated.
func Status(db *sql.DB) (version uint, dirty bool, ok bool, err error) {
	m, err := newMigrate(db)
	if err != nil {
		return 0, false, false, err
	}
	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, err
	}
	return version, dirty, true, nil
}
