// Package secret defines the keyed secret store capability the sync core
// depends on (spec §1, §6) and a default SQLite-backed implementation.
// The core never constructs a Store itself or assumes a specific backend;
// it is handed one at construction time, following the "shared-singleton
// stores" pattern in the spec's design notes.
package secret

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/seasync/seasync/model"
)

// Store is the get/put/delete capability for account and per-library
// secrets. Absent entries return ok=false, never an error.
type Store interface {
	LoadAccount() (model.Account, bool, error)
	SaveAccount(model.Account) error
	DeleteAccount() error

	LoadLibraryPassword(libraryID string) (string, bool, error)
	SaveLibraryPassword(libraryID, password string) error
	DeleteLibraryPassword(libraryID string) error
}

const accountKey = "account"

func libraryKey(libraryID string) string {
	return "library:" + libraryID
}

// SQLiteStore implements Store on top of the same database file the state
// store uses, the way the teacher's models.Load/models.Save keep
// configuration in a key/value `config` table alongside the sync tables.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an already-open database connection (typically
// store.Store.DB()) as a secret store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) get(key string) (string, bool, error) {
	var value string
	row := s.db.QueryRow(`SELECT value FROM secrets WHERE key = ?`, key)
	err := row.Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading secret %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) put(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO secrets (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("saving secret %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM secrets WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting secret %s: %w", key, err)
	}
	return nil
}

// LoadAccount returns the persisted account, or ok=false if none was ever
// saved.
func (s *SQLiteStore) LoadAccount() (model.Account, bool, error) {
	raw, ok, err := s.get(accountKey)
	if err != nil || !ok {
		return model.Account{}, ok, err
	}
	var acct model.Account
	if err := json.Unmarshal([]byte(raw), &acct); err != nil {
		return model.Account{}, false, fmt.Errorf("decoding account: %w", err)
	}
	return acct, true, nil
}

// SaveAccount persists the account, overwriting any previous one.
func (s *SQLiteStore) SaveAccount(acct model.Account) error {
	raw, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("encoding account: %w", err)
	}
	return s.put(accountKey, string(raw))
}

// DeleteAccount removes the persisted account (logout).
func (s *SQLiteStore) DeleteAccount() error {
	return s.delete(accountKey)
}

// LoadLibraryPassword returns the saved password for an encrypted
// library, or ok=false if none was ever saved.
func (s *SQLiteStore) LoadLibraryPassword(libraryID string) (string, bool, error) {
	return s.get(libraryKey(libraryID))
}

// SaveLibraryPassword persists the password used to unlock an encrypted
// library.
func (s *SQLiteStore) SaveLibraryPassword(libraryID, password string) error {
	return s.put(libraryKey(libraryID), password)
}

// DeleteLibraryPassword removes a saved library password.
func (s *SQLiteStore) DeleteLibraryPassword(libraryID string) error {
	return s.delete(libraryKey(libraryID))
}
