// Package history persists completed enhancements in a local SQLite
// database: the (original, enhanced) text pair plus the mode and file
// type they were produced with.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/refinekit/refine"
)

// ErrNotFound indicates the record does not exist.
var ErrNotFound = errors.New("record not found")

// Record is one stored enhancement.
type Record struct {
	ID        string
	Original  string
	Enhanced  string
	Mode      refine.Mode
	FileType  string
	CreatedAt time.Time
}

// Store handles record persistence.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS enhancements (
		id TEXT PRIMARY KEY,
		original TEXT NOT NULL,
		enhanced TEXT NOT NULL,
		mode TEXT NOT NULL,
		file_type TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_enhancements_created_at ON enhancements(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts a record, filling in ID and CreatedAt when zero, and
// returns the stored record.
func (s *Store) Save(rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO enhancements (id, original, enhanced, mode, file_type, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Original, rec.Enhanced, string(rec.Mode), rec.FileType, rec.CreatedAt,
	)
	if err != nil {
		return Record{}, fmt.Errorf("save record: %w", err)
	}
	return rec, nil
}

// Get returns the record with the given ID.
func (s *Store) Get(id string) (Record, error) {
	row := s.db.QueryRow(
		`SELECT id, original, enhanced, mode, file_type, created_at FROM enhancements WHERE id = ?`, id)
	return scanRecord(row.Scan)
}

// List returns the most recent records, newest first. limit <= 0 means
// no limit.
func (s *Store) List(limit int) ([]Record, error) {
	q := `SELECT id, original, enhanced, mode, file_type, created_at FROM enhancements ORDER BY created_at DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = s.db.Query(q+` LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(q)
	}
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Delete removes the record with the given ID.
func (s *Store) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM enhancements WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRecord(scan func(dest ...any) error) (Record, error) {
	var rec Record
	var mode string
	err := scan(&rec.ID, &rec.Original, &rec.Enhanced, &mode, &rec.FileType, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("scan record: %w", err)
	}
	rec.Mode = refine.Mode(mode)
	return rec, nil
}
