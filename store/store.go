// Package store is the durable baseline of (library_id, path) -> last-seen
// object identity, used to tell "never seen" apart from "deleted since
// last sync". It wraps a single embedded SQLite database, the way the
// teacher's db package wraps *sql.DB, but with the schema applied through
// golang-migrate instead of an inline CREATE TABLE block.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/seasync/seasync/model"
	"github.com/seasync/seasync/store/migrations"
)

// Store is the durable baseline store (C1 in the design). Opened once at
// process start, closed at shutdown; only the orchestrator writes to it.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// brings its schema up to date.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating state store: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetState returns the last persisted baseline for a library, or
// (SyncState{}, false, nil) if the library has never been synced
// successfully. A persisted timestamp with zero baseline rows is treated
// as absent (see spec §4.1 and the open question in §9).
func (s *Store) GetState(libraryID string) (model.SyncState, bool, error) {
	rows, err := s.db.Query(
		`SELECT path, object_id, mtime, size, is_directory FROM synced_files WHERE library_id = ?`,
		libraryID,
	)
	if err != nil {
		return model.SyncState{}, false, fmt.Errorf("reading baseline rows: %w", err)
	}
	defer rows.Close()

	var files []model.SyncedFile
	for rows.Next() {
		var f model.SyncedFile
		var isDir int
		if err := rows.Scan(&f.Path, &f.ObjectID, &f.MTime, &f.Size, &isDir); err != nil {
			return model.SyncState{}, false, fmt.Errorf("scanning baseline row: %w", err)
		}
		f.LibraryID = libraryID
		f.IsDir = isDir != 0
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return model.SyncState{}, false, fmt.Errorf("iterating baseline rows: %w", err)
	}

	if len(files) == 0 {
		return model.SyncState{}, false, nil
	}

	var lastSync int64
	row := s.db.QueryRow(`SELECT last_sync_time FROM sync_state WHERE library_id = ?`, libraryID)
	if err := row.Scan(&lastSync); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.SyncState{}, false, fmt.Errorf("reading last sync time: %w", err)
	}

	return model.SyncState{LibraryID: libraryID, LastSyncTime: lastSync, Files: files}, true, nil
}

// SaveState atomically replaces both the last-sync timestamp and the full
// set of baseline rows for state.LibraryID: upsert-timestamp, then
// delete-all-rows-for-library, then bulk-insert, inside one transaction.
// Any failure here is fatal to the current cycle; the caller must not
// proceed as if the baseline had been written.
func (s *Store) SaveState(state model.SyncState) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning baseline transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO sync_state (library_id, last_sync_time) VALUES (?, ?)`,
		state.LibraryID, state.LastSyncTime,
	); err != nil {
		return fmt.Errorf("upserting last sync time: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM synced_files WHERE library_id = ?`, state.LibraryID); err != nil {
		return fmt.Errorf("clearing previous baseline: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO synced_files (library_id, path, object_id, mtime, size, is_directory) VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("preparing baseline insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range state.Files {
		isDir := 0
		if f.IsDir {
			isDir = 1
		}
		if _, err := stmt.Exec(state.LibraryID, f.Path, f.ObjectID, f.MTime, f.Size, isDir); err != nil {
			return fmt.Errorf("inserting baseline row %s: %w", f.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing baseline: %w", err)
	}
	return nil
}

// GetFile is a point lookup against the current baseline.
func (s *Store) GetFile(libraryID, path string) (model.SyncedFile, bool, error) {
	var f model.SyncedFile
	var isDir int
	row := s.db.QueryRow(
		`SELECT path, object_id, mtime, size, is_directory FROM synced_files WHERE library_id = ? AND path = ?`,
		libraryID, path,
	)
	err := row.Scan(&f.Path, &f.ObjectID, &f.MTime, &f.Size, &isDir)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SyncedFile{}, false, nil
	}
	if err != nil {
		return model.SyncedFile{}, false, fmt.Errorf("reading baseline file %s: %w", path, err)
	}
	f.LibraryID = libraryID
	f.IsDir = isDir != 0
	return f, true, nil
}

// DeleteAll wipes all state store rows. Used on logout.
func (s *Store) DeleteAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete-all transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM synced_files`); err != nil {
		return fmt.Errorf("clearing synced_files: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM sync_state`); err != nil {
		return fmt.Errorf("clearing sync_state: %w", err)
	}
	return tx.Commit()
}

// DB exposes the underlying connection for collaborators (the secret
// store) that share this database file.
func (s *Store) DB() *sql.DB {
	return s.db
}
