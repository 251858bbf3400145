package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/michaelbrown/mcpm/internal/storage"

	_ "modernc.org/sqlite"
)

// timestamps are stored in UTC with a fixed width so they sort as text
const timeLayout = "2006-01-02T15:04:05.000000Z"

const checkColumns = `id, client, server, state, server_name, server_version, reason, elapsed_ms, checked_at`

// SQLiteStore implements storage.Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and runs migrations.
// Use ":memory:" for an in-memory database (useful for testing).
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if dbPath == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) RecordCheck(ctx context.Context, r *storage.CheckRecord) error {
	if r.ID == "" {
		return errors.New("check record has no id")
	}
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now()
	}
	r.CheckedAt = r.CheckedAt.UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checks (`+checkColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Client, r.Server, r.State, r.ServerName, r.ServerVersion, r.Reason,
		r.ElapsedMS, r.CheckedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting check: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetCheck(ctx context.Context, id string) (*storage.CheckRecord, error) {
	rec, err := scanCheck(s.db.QueryRowContext(ctx, `SELECT `+checkColumns+` FROM checks WHERE id = ?`, id))
	if err == nil {
		return rec, nil
	}

	// Prefix match
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+checkColumns+` FROM checks WHERE id LIKE ? || '%'`, id)
	if err != nil {
		return nil, fmt.Errorf("querying check: %w", err)
	}
	defer rows.Close()

	var matches []*storage.CheckRecord
	for rows.Next() {
		rec, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("check not found: %s", id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("ambiguous check prefix %q matches %d checks", id, len(matches))
	}
}

func (s *SQLiteStore) ListChecks(ctx context.Context, opts storage.CheckListOptions) ([]storage.CheckRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + checkColumns + ` FROM checks WHERE 1 = 1`
	var args []any

	if opts.Server != "" {
		query += ` AND server = ?`
		args = append(args, opts.Server)
	}
	if opts.Client != "" {
		query += ` AND client = ?`
		args = append(args, opts.Client)
	}

	query += ` ORDER BY checked_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	return s.queryChecks(ctx, query, args...)
}

func (s *SQLiteStore) LatestChecks(ctx context.Context) ([]storage.CheckRecord, error) {
	return s.queryChecks(ctx, `
		SELECT `+checkColumns+` FROM checks c
		WHERE c.rowid = (
			SELECT rowid FROM checks
			WHERE client = c.client AND server = c.server
			ORDER BY checked_at DESC, rowid DESC LIMIT 1
		)
		ORDER BY client, server`)
}

func (s *SQLiteStore) DeleteChecks(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checks WHERE checked_at < ?`, before.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("deleting checks: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) queryChecks(ctx context.Context, query string, args ...any) ([]storage.CheckRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing checks: %w", err)
	}
	defer rows.Close()

	var out []storage.CheckRecord
	for rows.Next() {
		rec, err := scanCheck(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Scanner interface to work with both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanCheck(s scanner) (*storage.CheckRecord, error) {
	var r storage.CheckRecord
	var checkedAt string
	err := s.Scan(&r.ID, &r.Client, &r.Server, &r.State, &r.ServerName, &r.ServerVersion,
		&r.Reason, &r.ElapsedMS, &checkedAt)
	if err != nil {
		return nil, err
	}
	r.CheckedAt, _ = time.Parse(timeLayout, checkedAt)
	return &r, nil
}
