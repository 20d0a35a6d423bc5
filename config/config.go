// Package config holds the file-level configuration constants from
// spec §6, decoded from a TOML file the way theanswer42-bt-go's
// internal/config package decodes its own settings.
package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config mirrors the "Configuration (compile-time / file-level
// constants)" table in spec §6.
type Config struct {
	LocalSyncPath             string  `toml:"local_sync_path"`
	SyncIntervalSeconds       int     `toml:"sync_interval_seconds"`
	ConflictStrategy          string  `toml:"conflict_strategy"`
	FileChangeDebounceSeconds float64 `toml:"file_change_debounce_seconds"`
	MaxConcurrentTransfers    int     `toml:"max_concurrent_transfers"`
	DatabasePath              string  `toml:"database_path"`

	ServerURL string `toml:"server_url"`
}

// Default returns the defaults listed in spec §6.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		LocalSyncPath:             "/Volumes/Normal stor/Seafile",
		SyncIntervalSeconds:       300,
		ConflictStrategy:          "last_modified_wins",
		FileChangeDebounceSeconds: 2.0,
		MaxConcurrentTransfers:    4,
		DatabasePath:              home + "/Library/Application Support/SeaSync/sync_state.sqlite",
	}
}

// SyncInterval returns SyncIntervalSeconds as a time.Duration.
func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

// DebounceWindow returns FileChangeDebounceSeconds as a time.Duration.
func (c Config) DebounceWindow() time.Duration {
	return time.Duration(c.FileChangeDebounceSeconds * float64(time.Second))
}

// Read decodes a Config from r, starting from Default() so a partial file
// still yields every other default.
func Read(r io.Reader) (Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// ReadFromFile reads a Config from path. A missing file yields Default(),
// not an error — first run has nothing to configure yet.
func ReadFromFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("opening config %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Write encodes cfg to w.
func Write(w io.Writer, cfg Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// WriteToFile persists cfg to path, creating it if necessary.
func WriteToFile(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config %s: %w", path, err)
	}
	defer f.Close()
	return Write(f, cfg)
}
