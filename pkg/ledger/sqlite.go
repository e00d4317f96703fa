package ledger

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cashflowhq/ledgersync/pkg/syncerrors"
)

// SQLiteStore persists the ledger in a local SQLite database. Saves replace
// the whole collection inside one transaction, so a failed save leaves the
// previous state intact.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
    id             TEXT PRIMARY KEY,
    date           TEXT NOT NULL,
    type           TEXT NOT NULL,
    amount         REAL NOT NULL,
    customer       TEXT,
    supplier       TEXT,
    var_symbol     TEXT,
    description    TEXT,
    payment_status TEXT,
    source_file    TEXT,
    created_at     TEXT
);
CREATE INDEX IF NOT EXISTS idx_transactions_source ON transactions(source_file);
`

// OpenSQLite opens (creating if needed) the ledger database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeConfig, "failed to open ledger database").
			WithDetail("path", path)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeConfig, "failed to initialize ledger schema")
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadEntries loads the full ledger ordered by date, then creation time.
func (s *SQLiteStore) LoadEntries() ([]Entry, error) {
	rows, err := s.db.Query(`
		SELECT id, date, type, amount, customer, supplier, var_symbol,
		       description, payment_status, source_file, created_at
		FROM transactions
		ORDER BY date, created_at`)
	if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeInternal, "failed to load ledger entries")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.Date, &e.Direction, &e.Amount, &e.Customer,
			&e.Supplier, &e.VarSymbol, &e.Description, &e.PaymentStatus,
			&e.Source, &createdAt); err != nil {
			return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeInternal, "failed to scan ledger entry")
		}
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			e.CreatedAt = ts
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeInternal, "failed to read ledger entries")
	}

	return entries, nil
}

// SaveEntries replaces the full ledger collection atomically.
func (s *SQLiteStore) SaveEntries(entries []Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeInternal, "failed to begin ledger save")
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM transactions`); err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeInternal, "failed to clear ledger")
	}

	stmt, err := tx.Prepare(`
		INSERT INTO transactions
		    (id, date, type, amount, customer, supplier, var_symbol,
		     description, payment_status, source_file, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeInternal, "failed to prepare ledger insert")
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(e.ID, e.Date, string(e.Direction), e.Amount,
			e.Customer, e.Supplier, e.VarSymbol, e.Description,
			string(e.PaymentStatus), e.Source,
			e.CreatedAt.Format(time.RFC3339)); err != nil {
			return syncerrors.Wrap(err, syncerrors.ErrorTypeInternal, "failed to insert ledger entry").
				WithDetail("entry_id", e.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return syncerrors.Wrap(err, syncerrors.ErrorTypeInternal, "failed to commit ledger save")
	}
	return nil
}
