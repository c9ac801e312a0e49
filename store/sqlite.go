package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteJar keeps entries in a cookies table. An empty path opens an
// in-memory database.
type SQLiteJar struct {
	db  *sql.DB
	now func() time.Time
}

func OpenSQLiteJar(ctx context.Context, path string) (*SQLiteJar, error) {
	trimmed := strings.TrimSpace(path)
	inMemory := false
	if trimmed == "" {
		trimmed = ":memory:"
		inMemory = true
	}
	if strings.Contains(trimmed, "mode=memory") || trimmed == ":memory:" || trimmed == "file::memory:" {
		inMemory = true
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if !inMemory {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	j := &SQLiteJar{db: db, now: time.Now}
	if err := j.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *SQLiteJar) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS cookies (
            name TEXT PRIMARY KEY,
            value BLOB NOT NULL,
            expires_at INTEGER NOT NULL,
            updated_at INTEGER NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS idx_cookies_expires ON cookies(expires_at);`,
	}
	for _, statement := range statements {
		if _, err := j.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (j *SQLiteJar) Get(ctx context.Context, name string) ([]byte, bool, error) {
	var value []byte
	err := j.db.QueryRowContext(ctx,
		`SELECT value FROM cookies WHERE name = ? AND expires_at > ?;`,
		name, j.now().UnixMilli(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get cookie: %w", err)
	}
	return value, true, nil
}

func (j *SQLiteJar) Set(ctx context.Context, name string, value []byte, expires time.Time) error {
	query := `INSERT INTO cookies (name, value, expires_at, updated_at)
        VALUES (?, ?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET value = excluded.value,
            expires_at = excluded.expires_at, updated_at = excluded.updated_at;`
	_, err := j.db.ExecContext(ctx, query, name, value, expires.UnixMilli(), j.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("set cookie: %w", err)
	}
	return nil
}

func (j *SQLiteJar) Delete(ctx context.Context, name string) error {
	if _, err := j.db.ExecContext(ctx, `DELETE FROM cookies WHERE name = ?;`, name); err != nil {
		return fmt.Errorf("delete cookie: %w", err)
	}
	return nil
}

func (j *SQLiteJar) Sweep(ctx context.Context) (int, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM cookies WHERE expires_at <= ?;`, j.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sweep cookies: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

func (j *SQLiteJar) Close() error {
	return j.db.Close()
}
