package versionindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ruteri/storage-adapter/interfaces"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS version_counters (
	stable_key TEXT PRIMARY KEY,
	last       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS file_versions (
	stable_key TEXT    NOT NULL,
	version    INTEGER NOT NULL,
	reference  TEXT    NOT NULL,
	PRIMARY KEY (stable_key, version)
);`

// SQLiteIndex stores version sets in a SQLite database.
type SQLiteIndex struct {
	sqlDB *sql.DB
}

// NewSQLiteIndex opens the database at path and creates the schema.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps the upsert counter free of SQLITE_BUSY retries
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteIndex{sqlDB: sqlDB}, nil
}

// Reserve bumps the counter of stable with a single upsert.
func (idx *SQLiteIndex) Reserve(ctx context.Context, stable interfaces.BackendKey) (uint64, error) {
	var next uint64
	err := idx.sqlDB.QueryRowContext(ctx, `
		INSERT INTO version_counters (stable_key, last) VALUES (?, 1)
		ON CONFLICT (stable_key) DO UPDATE SET last = last + 1
		RETURNING last`, string(stable)).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("reserve version: %w", err)
	}
	return next, nil
}

// Commit stores ref under its version index and raises the counter to at
// least that index.
func (idx *SQLiteIndex) Commit(ctx context.Context, stable interfaces.BackendKey, ref interfaces.StoredFileReference) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return fmt.Errorf("failed to encode reference: %w", err)
	}

	tx, err := idx.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO file_versions (stable_key, version, reference) VALUES (?, ?, ?)
		ON CONFLICT (stable_key, version) DO UPDATE SET reference = excluded.reference`,
		string(stable), int64(ref.Version), string(data)); err != nil {
		return fmt.Errorf("commit version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO version_counters (stable_key, last) VALUES (?, ?)
		ON CONFLICT (stable_key) DO UPDATE SET last = MAX(last, excluded.last)`,
		string(stable), int64(ref.Version)); err != nil {
		return fmt.Errorf("commit version: %w", err)
	}
	return tx.Commit()
}

// List returns the committed versions of stable, oldest first.
func (idx *SQLiteIndex) List(ctx context.Context, stable interfaces.BackendKey) ([]interfaces.StoredFileReference, error) {
	rows, err := idx.sqlDB.QueryContext(ctx, `
		SELECT reference FROM file_versions
		WHERE stable_key = ?
		ORDER BY version ASC`, string(stable))
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var refs []interfaces.StoredFileReference
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("list versions: %w", err)
		}
		var ref interfaces.StoredFileReference
		if err := json.Unmarshal([]byte(raw), &ref); err != nil {
			return nil, fmt.Errorf("corrupt version of %s: %w", stable, err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	if len(refs) == 0 {
		return nil, interfaces.ErrContentNotFound
	}
	return refs, nil
}

// Remove deletes the counter and every version of stable.
func (idx *SQLiteIndex) Remove(ctx context.Context, stable interfaces.BackendKey) error {
	tx, err := idx.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_versions WHERE stable_key = ?`, string(stable)); err != nil {
		return fmt.Errorf("remove versions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM version_counters WHERE stable_key = ?`, string(stable)); err != nil {
		return fmt.Errorf("remove versions: %w", err)
	}
	return tx.Commit()
}

// Close closes the SQLite handle.
func (idx *SQLiteIndex) Close() error {
	if idx == nil || idx.sqlDB == nil {
		return nil
	}
	return idx.sqlDB.Close()
}
