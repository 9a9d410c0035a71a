package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"rnseaudit/internal/merkle"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS registrations (
  run_id        TEXT PRIMARY KEY,
  profile       TEXT NOT NULL,
  batch_size    INTEGER NOT NULL,
  policy        TEXT NOT NULL,
  roots         TEXT NOT NULL,
  head          TEXT NOT NULL,
  registered_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS registrations_head ON registrations (head);`

// SQLiteRegistry stores registrations in a SQLite database.
type SQLiteRegistry struct {
	sqlDB *sql.DB
}

// OpenSQLiteRegistry opens the database at path and applies the schema.
func OpenSQLiteRegistry(path string) (*SQLiteRegistry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(FULL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteRegistry{sqlDB: sqlDB}, nil
}

func (s *SQLiteRegistry) Register(ctx context.Context, r Registration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid registration: %w", err)
	}
	roots, err := json.Marshal(r.Roots)
	if err != nil {
		return fmt.Errorf("marshal roots: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO registrations (run_id, profile, batch_size, policy, roots, head, registered_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Profile, r.BatchSize, r.Policy, string(roots), r.Head.String(), r.RegisteredAt.UTC().UnixMilli(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("run %s: %w", r.RunID, ErrAlreadyRegistered)
	}
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

const selectRegistration = `SELECT run_id, profile, batch_size, policy, roots, head, registered_at FROM registrations`

func (s *SQLiteRegistry) Lookup(ctx context.Context, runID string) (Registration, error) {
	row := s.sqlDB.QueryRowContext(ctx, selectRegistration+` WHERE run_id = ?`, runID)
	r, err := scanRegistration(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Registration{}, fmt.Errorf("registration %s: %w", runID, ErrNotFound)
	}
	return r, err
}

// LookupByHead returns the registrations that announced head.
func (s *SQLiteRegistry) LookupByHead(ctx context.Context, head merkle.Hash) ([]Registration, error) {
	return s.query(ctx, selectRegistration+` WHERE head = ? ORDER BY run_id`, head.String())
}

func (s *SQLiteRegistry) List(ctx context.Context) ([]Registration, error) {
	return s.query(ctx, selectRegistration+` ORDER BY run_id`)
}

func (s *SQLiteRegistry) query(ctx context.Context, q string, args ...any) ([]Registration, error) {
	rows, err := s.sqlDB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query registrations: %w", err)
	}
	defer rows.Close()
	var out []Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteRegistry) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRegistration(sc scanner) (Registration, error) {
	var (
		r        Registration
		roots    string
		head     string
		registMs int64
	)
	if err := sc.Scan(&r.RunID, &r.Profile, &r.BatchSize, &r.Policy, &roots, &head, &registMs); err != nil {
		return Registration{}, err
	}
	if err := json.Unmarshal([]byte(roots), &r.Roots); err != nil {
		return Registration{}, fmt.Errorf("decode roots of %s: %w", r.RunID, err)
	}
	h, err := merkle.ParseHash(head)
	if err != nil {
		return Registration{}, fmt.Errorf("decode head of %s: %w", r.RunID, err)
	}
	r.Head = h
	r.RegisteredAt = time.UnixMilli(registMs).UTC()
	return r, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
