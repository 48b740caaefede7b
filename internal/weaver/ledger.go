package weaver

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Ledger records weave request outcomes in a SQLite database. It exists for
// inspection after the fact; engine behavior never depends on it, and a
// broken ledger only costs a log line.
type Ledger struct {
	db *sql.DB
}

// Entry is one recorded request outcome.
type Entry struct {
	ID           int64
	Unit         string
	Kind         string
	FragmentHash string
	Outcome      string
	Detail       string
	CreatedAt    time.Time
}

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS units (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	unit          TEXT NOT NULL,
	kind          TEXT NOT NULL,
	fragment_hash TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	detail        TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS units_outcome ON units(outcome);
`

// OpenLedger opens (and if needed initializes) a ledger database at path.
// ":memory:" gives a process-private ledger, which tests use.
func OpenLedger(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger %s: %w", path, err)
	}
	// modernc/sqlite serializes at the driver level, but a single connection
	// avoids SQLITE_BUSY on concurrent writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing ledger %s: %w", path, err)
	}
	return &Ledger{db: db}, nil
}

// Close releases the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record appends one outcome row.
func (l *Ledger) Record(e Entry) error {
	_, err := l.db.Exec(
		`INSERT INTO units (unit, kind, fragment_hash, outcome, detail) VALUES (?, ?, ?, ?, ?)`,
		e.Unit, e.Kind, e.FragmentHash, e.Outcome, e.Detail,
	)
	if err != nil {
		return fmt.Errorf("recording %s: %w", e.Unit, err)
	}
	return nil
}

// List returns the most recent entries, newest first. limit <= 0 means all.
func (l *Ledger) List(limit int) ([]Entry, error) {
	q := `SELECT id, unit, kind, fragment_hash, outcome, detail, created_at FROM units ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := l.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("listing ledger: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Unit, &e.Kind, &e.FragmentHash, &e.Outcome, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
