// Package ledger stores expense entries in a local SQLite database and
// exposes the ledger_upsert tool over it.
package ledger

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL,
	merchant TEXT NOT NULL,
	amount REAL NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	note TEXT NOT NULL DEFAULT '',
	updated_at TEXT NOT NULL DEFAULT (datetime('now')),
	UNIQUE(date, merchant, amount)
);
`

// Entry is a single expense record.
type Entry struct {
	Date     string
	Merchant string
	Amount   float64
	Category string
	Note     string
}

// Store wraps the SQLite database holding ledger entries.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if needed creates) the ledger database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize ledger schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts the entry, or updates category and note when an entry with
// the same date, merchant, and amount already exists. It reports whether a
// new row was created.
func (s *Store) Upsert(ctx context.Context, e Entry) (inserted bool, err error) {
	var existing int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entries WHERE date = ? AND merchant = ? AND amount = ?`,
		e.Date, e.Merchant, e.Amount,
	).Scan(&existing)
	if err != nil {
		return false, fmt.Errorf("check entry: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries (date, merchant, amount, category, note)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date, merchant, amount) DO UPDATE SET
			category = excluded.category,
			note = excluded.note,
			updated_at = datetime('now')
	`, e.Date, e.Merchant, e.Amount, e.Category, e.Note)
	if err != nil {
		return false, fmt.Errorf("upsert entry: %w", err)
	}
	return existing == 0, nil
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Get fetches the entry matching the natural key, for tests and inspection.
func (s *Store) Get(ctx context.Context, date, merchant string, amount float64) (*Entry, error) {
	var e Entry
	err := s.db.QueryRowContext(ctx, `
		SELECT date, merchant, amount, category, note
		FROM entries WHERE date = ? AND merchant = ? AND amount = ?
	`, date, merchant, amount).Scan(&e.Date, &e.Merchant, &e.Amount, &e.Category, &e.Note)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
