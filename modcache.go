package bridge

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Pure-Go SQLite driver for database/sql (used by ModuleCache).
	_ "github.com/glebarez/sqlite"
)

// ModuleCache persists fetched module sources across contexts so the
// dynamic-import host loop can avoid refetching. Entries are keyed by
// specifier; the transformed source is what gets cached.
type ModuleCache struct {
	db *sql.DB
}

const moduleCacheSchema = `
CREATE TABLE IF NOT EXISTS modules (
	specifier  TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	fetched_at INTEGER NOT NULL
);`

// validateCacheDir rejects directories that would escape the data root.
func validateCacheDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("cache directory must not be empty")
	}
	if strings.ContainsRune(dir, 0) {
		return fmt.Errorf("cache directory contains null byte")
	}
	return nil
}

// OpenModuleCache opens (or creates) the cache database under dir at
// modules.sqlite3.
func OpenModuleCache(dir string) (*ModuleCache, error) {
	if err := validateCacheDir(dir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "modules.sqlite3"))
	if err != nil {
		return nil, fmt.Errorf("opening module cache: %w", err)
	}
	// WAL keeps concurrent contexts from blocking each other on reads.
	_, _ = db.Exec("PRAGMA journal_mode=WAL")
	if _, err := db.Exec(moduleCacheSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating module cache schema: %w", err)
	}
	return &ModuleCache{db: db}, nil
}

// Get returns the cached source for specifier, or ok=false on a miss.
func (m *ModuleCache) Get(specifier string) (source string, ok bool, err error) {
	row := m.db.QueryRow("SELECT source FROM modules WHERE specifier = ?", specifier)
	switch err := row.Scan(&source); {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("reading module cache for %q: %w", specifier, err)
	}
	return source, true, nil
}

// Put stores (or replaces) the source for specifier.
func (m *ModuleCache) Put(specifier, source string) error {
	_, err := m.db.Exec(
		"INSERT INTO modules (specifier, source, fetched_at) VALUES (?, ?, ?) "+
			"ON CONFLICT(specifier) DO UPDATE SET source = excluded.source, fetched_at = excluded.fetched_at",
		specifier, source, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("writing module cache for %q: %w", specifier, err)
	}
	return nil
}

// Close closes the underlying database.
func (m *ModuleCache) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
