// Package store persists exchange history to a local SQLite database,
// grounded on the teacher's internal/engine/state package: the same
// modernc.org/sqlite driver, the same upsert-via-ON-CONFLICT pattern, and
// the same withTx transaction helper shape, repurposed from download state
// to HTTP exchange history.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ExchangeRecord is one logged HTTP/1.1 exchange, the unit `wirehttp
// history` lists and `wirehttp exchange` appends after each request.
type ExchangeRecord struct {
	ID         string
	Method     string
	URL        string
	StatusCode int
	RequestAt  time.Time
	DurationMS int64
	BytesIn    int64
	BytesOut   int64
	Reused     bool
	Err        string
}

// Store wraps the database handle every operation runs against.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite has no built-in connection pool locking
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS exchanges (
			id TEXT PRIMARY KEY,
			method TEXT NOT NULL,
			url TEXT NOT NULL,
			status_code INTEGER NOT NULL,
			requested_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			bytes_in INTEGER NOT NULL DEFAULT 0,
			bytes_out INTEGER NOT NULL DEFAULT 0,
			reused INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("store: migrating schema: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success and rolling
// back on any error, including a panic (which is re-raised after
// rollback) — matching the teacher's withTx shape in internal/engine/state.
func (s *Store) withTx(fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Save upserts rec by ID.
func (s *Store) Save(rec ExchangeRecord) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO exchanges (
				id, method, url, status_code, requested_at, duration_ms, bytes_in, bytes_out, reused, error
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				method=excluded.method,
				url=excluded.url,
				status_code=excluded.status_code,
				requested_at=excluded.requested_at,
				duration_ms=excluded.duration_ms,
				bytes_in=excluded.bytes_in,
				bytes_out=excluded.bytes_out,
				reused=excluded.reused,
				error=excluded.error
		`, rec.ID, rec.Method, rec.URL, rec.StatusCode, rec.RequestAt.Unix(), rec.DurationMS, rec.BytesIn, rec.BytesOut, rec.Reused, rec.Err)
		if err != nil {
			return fmt.Errorf("store: upserting exchange %s: %w", rec.ID, err)
		}
		return nil
	})
}

// List returns the most recent limit exchanges, newest first.
func (s *Store) List(limit int) ([]ExchangeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, method, url, status_code, requested_at, duration_ms, bytes_in, bytes_out, reused, error
		FROM exchanges ORDER BY requested_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: listing exchanges: %w", err)
	}
	defer rows.Close()

	var out []ExchangeRecord
	for rows.Next() {
		var rec ExchangeRecord
		var requestedAt int64
		if err := rows.Scan(&rec.ID, &rec.Method, &rec.URL, &rec.StatusCode, &requestedAt, &rec.DurationMS, &rec.BytesIn, &rec.BytesOut, &rec.Reused, &rec.Err); err != nil {
			return nil, fmt.Errorf("store: scanning exchange row: %w", err)
		}
		rec.RequestAt = time.Unix(requestedAt, 0)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating exchange rows: %w", err)
	}
	return out, nil
}
