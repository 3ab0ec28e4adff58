package ledger

import (
	"database/sql"
	"fmt"
	"io"
	"strings"

	"github.com/golang-migrate/migrate/v4/database"
)

// sqliteInstanceDriver adapts an already-open *sql.DB (opened against
// modernc.org/sqlite, a pure-Go driver with no cgo dependency) to
// golang-migrate's database.Driver interface, the same WithInstance
// pattern golang-migrate's own database drivers expose for callers that
// already hold an open connection rather than a DSN golang-migrate should
// dial itself.
type sqliteInstanceDriver struct {
	db *sql.DB
}

// WithInstance wraps db for use with migrate.NewWithInstance.
func WithInstance(db *sql.DB) (database.Driver, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL, dirty INTEGER NOT NULL)`); err != nil {
		return nil, fmt.Errorf("failed to prepare schema_migrations table: %w", err)
	}
	return &sqliteInstanceDriver{db: db}, nil
}

func (d *sqliteInstanceDriver) Open(url string) (database.Driver, error) {
	return nil, fmt.Errorf("sqliteInstanceDriver does not support Open(url); use ledger.WithInstance")
}

func (d *sqliteInstanceDriver) Close() error { return nil }

func (d *sqliteInstanceDriver) Lock() error   { return nil }
func (d *sqliteInstanceDriver) Unlock() error { return nil }

// Run applies one migration file's contents. Statements are separated by
// semicolons at end-of-line, which is how every migration in
// ledger/migrations is written; this keeps the driver independent of any
// sqlite-specific multi-statement Exec support.
func (d *sqliteInstanceDriver) Run(migration io.Reader) error {
	data, err := io.ReadAll(migration)
	if err != nil {
		return err
	}
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	for _, stmt := range strings.Split(string(data), ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.Exec(stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("executing migration statement %q: %w", stmt, err)
		}
	}
	return tx.Commit()
}

func (d *sqliteInstanceDriver) SetVersion(version int, dirty bool) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM schema_migrations`); err != nil {
		_ = tx.Rollback()
		return err
	}
	dirtyInt := 0
	if dirty {
		dirtyInt = 1
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)`, version, dirtyInt); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (d *sqliteInstanceDriver) Version() (int, bool, error) {
	row := d.db.QueryRow(`SELECT version, dirty FROM schema_migrations LIMIT 1`)
	var version int
	var dirtyInt int
	if err := row.Scan(&version, &dirtyInt); err != nil {
		if err == sql.ErrNoRows {
			return -1, false, nil
		}
		return 0, false, err
	}
	return version, dirtyInt != 0, nil
}

func (d *sqliteInstanceDriver) Drop() error {
	_, err := d.db.Exec(`DROP TABLE IF EXISTS runs; DELETE FROM schema_migrations;`)
	return err
}
