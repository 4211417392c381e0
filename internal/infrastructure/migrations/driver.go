package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/golang-migrate/migrate/v4/database"
)

// DefaultVersionTable records the applied schema version.
const DefaultVersionTable = "schema_migrations"

// ErrNoDB is returned when WithDB is given a nil connection.
var ErrNoDB = errors.New("migrations: nil database")

// DriverOptions tunes the migration driver.
type DriverOptions struct {
	// VersionTable overrides DefaultVersionTable.
	VersionTable string
	// NoTransaction runs each migration file outside a transaction. Needed for
	// statements SQLite refuses inside one, such as VACUUM.
	NoTransaction bool
}

// Driver applies golang-migrate migrations over a database/sql handle opened
// with the ncruces sqlite3 driver.
type Driver struct {
	db    *sql.DB
	table string
	noTx  bool

	// lock guards a migration run within this process. SQLite itself
	// serializes writers across processes.
	lock chan struct{}
}

var _ database.Driver = (*Driver)(nil)

// WithDB wraps an open connection and makes sure the version table exists.
func WithDB(db *sql.DB, opts DriverOptions) (*Driver, error) {
	if db == nil {
		return nil, ErrNoDB
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("migrations: ping: %w", err)
	}

	d := &Driver{
		db:    db,
		table: opts.VersionTable,
		noTx:  opts.NoTransaction,
		lock:  make(chan struct{}, 1),
	}
	if d.table == "" {
		d.table = DefaultVersionTable
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (version INTEGER NOT NULL, dirty INTEGER NOT NULL);
CREATE UNIQUE INDEX IF NOT EXISTS %[1]s_version ON %[1]s (version);`, d.table)
	if _, err := db.Exec(ddl); err != nil {
		return nil, &database.Error{OrigErr: err, Query: []byte(ddl), Err: "creating version table"}
	}
	return d, nil
}

// Open is part of database.Driver. URLs are not supported; use WithDB.
func (d *Driver) Open(string) (database.Driver, error) {
	return nil, errors.New("migrations: open by URL is not supported, use WithDB")
}

// Close closes the wrapped connection.
func (d *Driver) Close() error { return d.db.Close() }

// Lock is part of database.Driver.
func (d *Driver) Lock() error {
	select {
	case d.lock <- struct{}{}:
		return nil
	default:
		return database.ErrLocked
	}
}

// Unlock is part of database.Driver. Unlocking twice is an error.
func (d *Driver) Unlock() error {
	select {
	case <-d.lock:
		return nil
	default:
		return database.ErrNotLocked
	}
}

// Run executes one migration file.
func (d *Driver) Run(r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	query := string(body)
	if strings.TrimSpace(query) == "" {
		return nil
	}

	if d.noTx {
		if _, err := d.db.Exec(query); err != nil {
			return &database.Error{OrigErr: err, Query: body}
		}
		return nil
	}
	return d.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(query); err != nil {
			return &database.Error{OrigErr: err, Query: body}
		}
		return nil
	})
}

// SetVersion replaces the recorded version. A NilVersion that is dirty is
// still written so a failed first down migration stays visible.
func (d *Driver) SetVersion(version int, dirty bool) error {
	return d.inTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM " + d.table); err != nil { //nolint:gosec // table name comes from options
			return &database.Error{OrigErr: err, Err: "clearing version"}
		}
		if version < 0 && !(version == database.NilVersion && dirty) {
			return nil
		}
		insert := "INSERT INTO " + d.table + " (version, dirty) VALUES (?, ?)" //nolint:gosec // table name comes from options
		if _, err := tx.Exec(insert, version, dirty); err != nil {
			return &database.Error{OrigErr: err, Query: []byte(insert)}
		}
		return nil
	})
}

// Version reports the recorded version, or NilVersion when none is recorded.
func (d *Driver) Version() (int, bool, error) {
	var version int
	var dirty bool
	err := d.db.QueryRow("SELECT version, dirty FROM " + d.table + " LIMIT 1").Scan(&version, &dirty) //nolint:gosec // table name comes from options
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return database.NilVersion, false, nil
	case err != nil:
		return 0, false, &database.Error{OrigErr: err, Err: "reading version"}
	}
	return version, dirty, nil
}

// Drop removes every user table, including the version table.
func (d *Driver) Drop() error {
	rows, err := d.db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return &database.Error{OrigErr: err, Err: "listing tables"}
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return err
		}
		tables = append(tables, name)
	}
	if err := errors.Join(rows.Err(), rows.Close()); err != nil {
		return &database.Error{OrigErr: err, Err: "listing tables"}
	}
	if len(tables) == 0 {
		return nil
	}

	err = d.inTx(func(tx *sql.Tx) error {
		for _, name := range tables {
			if _, err := tx.Exec(`DROP TABLE IF EXISTS "` + name + `"`); err != nil {
				return &database.Error{OrigErr: err, Err: "dropping " + name}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	_, err = d.db.Exec("VACUUM")
	return err
}

func (d *Driver) inTx(fn func(*sql.Tx) error) error {
	tx, err := d.db.BeginTx(context.Background(), nil)
	if err != nil {
		return &database.Error{OrigErr: err, Err: "begin transaction"}
	}
	if err := fn(tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return &database.Error{OrigErr: err, Err: "commit transaction"}
	}
	return nil
}
