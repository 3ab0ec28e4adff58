// Package ledger records one row per build run -- timestamp, version,
// command, phases completed, artifacts directory, success/failure -- in a
// local SQLite database, giving a build directory a queryable history
// without any server process. It is purely additive: nothing about a
// build's outcome depends on the ledger being present or writable.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banksean/clrm/phase"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Entry is one row of the ledger.
type Entry struct {
	RunName          string
	StartedAt        time.Time
	Version          string
	Command          string
	PhasesCompleted  []phase.Phase
	ArtifactsDir     string
	Success          bool
	Error            string
}

// Ledger is a handle to the build-history database.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if necessary) the ledger database at path and
// applies any pending migrations.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Ledger{db: db}, nil
}

func applyMigrations(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading embedded migrations: %w", err)
	}
	dbDriver, err := WithInstance(db)
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", source, "clrm", dbDriver)
	if err != nil {
		return fmt.Errorf("preparing migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record inserts e as a new row, overwriting any existing row with the
// same RunName.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	names := make([]string, len(e.PhasesCompleted))
	for i, p := range e.PhasesCompleted {
		names[i] = p.String()
	}
	success := 0
	if e.Success {
		success = 1
	}
	_, err := l.db.ExecContext(ctx, `
INSERT INTO runs (run_name, started_at, version, command, phases_completed, artifacts_dir, success, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_name) DO UPDATE SET
  started_at=excluded.started_at, version=excluded.version, command=excluded.command,
  phases_completed=excluded.phases_completed, artifacts_dir=excluded.artifacts_dir,
  success=excluded.success, error=excluded.error`,
		e.RunName, e.StartedAt.Format(time.RFC3339), e.Version, e.Command,
		strings.Join(names, ","), e.ArtifactsDir, success, e.Error)
	if err != nil {
		return fmt.Errorf("recording run %q: %w", e.RunName, err)
	}
	return nil
}

// List returns every recorded run, most recent first.
func (l *Ledger) List(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT run_name, started_at, version, command, phases_completed, artifacts_dir, success, error
FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var startedAt, phasesCSV string
		var success int
		if err := rows.Scan(&e.RunName, &startedAt, &e.Version, &e.Command, &phasesCSV, &e.ArtifactsDir, &success, &e.Error); err != nil {
			return nil, err
		}
		e.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		e.Success = success != 0
		if phasesCSV != "" {
			for _, name := range strings.Split(phasesCSV, ",") {
				if p, err := phase.Parse(name); err == nil {
					e.PhasesCompleted = append(e.PhasesCompleted, p)
				}
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
