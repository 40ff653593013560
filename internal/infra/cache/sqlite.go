package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"
)

const (
	// CurrentSchemaVersion is the current database schema version.
	CurrentSchemaVersion = "1"

	// DefaultDBPath is the default path for the cache database.
	DefaultDBPath = "data/offline.db"
)

// DB represents the SQLite cache database.
type DB struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewDB creates a new cache database instance.
func NewDB(path string) *DB {
	if path == "" {
		path = DefaultDBPath
	}
	return &DB{
		path: path,
		now:  time.Now,
	}
}

// Open opens the database and initializes the schema.
func (d *DB) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", d.path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open cache database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	d.db = db

	if err := d.initSchema(); err != nil {
		d.db.Close()
		d.db = nil
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", d.path).Msg("Cache database opened")
	return nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		err := d.db.Close()
		d.db = nil
		return err
	}
	return nil
}

// SQL returns the underlying connection so other stores can share the file.
func (d *DB) SQL() *sql.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

func (d *DB) initSchema() error {
	currentVersion := d.getSchemaVersion()

	if currentVersion == "" {
		if err := d.createSchema(); err != nil {
			return err
		}
		return d.setMeta("schema_version", CurrentSchemaVersion)
	}

	if currentVersion != CurrentSchemaVersion {
		log.Info().
			Str("current", currentVersion).
			Str("target", CurrentSchemaVersion).
			Msg("Migrating cache schema")
		return d.setMeta("schema_version", CurrentSchemaVersion)
	}

	return nil
}

func (d *DB) createSchema() error {
	schema := `
	-- Stored responses, one logical cache per name
	CREATE TABLE IF NOT EXISTS cache_entries (
		cache_name TEXT NOT NULL,
		key TEXT NOT NULL,
		method TEXT NOT NULL,
		url TEXT NOT NULL,
		status INTEGER NOT NULL,
		header TEXT,
		body BLOB,
		size INTEGER DEFAULT 0,
		stored_at INTEGER NOT NULL,
		accessed_at INTEGER NOT NULL,
		PRIMARY KEY (cache_name, key)
	);

	-- Mutations waiting for connectivity
	CREATE TABLE IF NOT EXISTS retry_queue (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL UNIQUE,
		method TEXT NOT NULL,
		url TEXT NOT NULL,
		header TEXT,
		body BLOB,
		attempts INTEGER DEFAULT 0,
		last_error TEXT,
		created_at TEXT DEFAULT CURRENT_TIMESTAMP,
		updated_at TEXT DEFAULT CURRENT_TIMESTAMP
	);

	-- Cache metadata
	CREATE TABLE IF NOT EXISTS cache_meta (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at TEXT DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_cache_entries_accessed ON cache_entries(cache_name, accessed_at);
	`

	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	log.Info().Msg("Cache schema created")
	return nil
}

func (d *DB) getSchemaVersion() string {
	var version string
	err := d.db.QueryRow("SELECT value FROM cache_meta WHERE key = 'schema_version'").Scan(&version)
	if err != nil {
		return ""
	}
	return version
}

// setMeta sets a metadata value.
func (d *DB) setMeta(key, value string) error {
	now := d.now().Format(time.RFC3339)
	_, err := d.db.Exec(`
		INSERT INTO cache_meta (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = ?
	`, key, value, now, value, now)
	return err
}

// getMeta gets a metadata value.
func (d *DB) getMeta(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM cache_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// Activate makes name the active cache and deletes every entry stored
// under any other name. It returns the number of entries purged.
func (d *DB) Activate(name string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return 0, ErrNotOpen
	}

	res, err := d.db.Exec("DELETE FROM cache_entries WHERE cache_name != ?", name)
	if err != nil {
		return 0, fmt.Errorf("purge old caches: %w", err)
	}
	purged, _ := res.RowsAffected()

	if err := d.setMeta("active_cache", name); err != nil {
		return purged, fmt.Errorf("record active cache: %w", err)
	}
	d.setMeta("last_updated", d.now().Format(time.RFC3339))

	log.Info().Str("cache", name).Int64("purged", purged).Msg("Cache activated")
	return purged, nil
}

// ActiveCache returns the name set by the last Activate, or "".
func (d *DB) ActiveCache() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return "", ErrNotOpen
	}
	return d.getMeta("active_cache")
}

// CacheNames lists every cache name holding entries.
func (d *DB) CacheNames() ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := d.db.Query("SELECT DISTINCT cache_name FROM cache_entries ORDER BY cache_name")
	if err != nil {
		return nil, fmt.Errorf("query cache names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// GetStats returns cache statistics.
func (d *DB) GetStats() (*Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, ErrNotOpen
	}

	stats := &Stats{}
	stats.ActiveCache, _ = d.getMeta("active_cache")

	err := d.db.QueryRow(
		"SELECT COUNT(*), COALESCE(SUM(size), 0) FROM cache_entries WHERE cache_name = ?",
		stats.ActiveCache,
	).Scan(&stats.Entries, &stats.Bytes)
	if err != nil {
		return nil, err
	}

	err = d.db.QueryRow(
		"SELECT COUNT(*) FROM cache_entries WHERE cache_name != ?",
		stats.ActiveCache,
	).Scan(&stats.StaleEntries)
	if err != nil {
		return nil, err
	}

	if err := d.db.QueryRow("SELECT COUNT(*) FROM retry_queue").Scan(&stats.PendingRetries); err != nil {
		return nil, err
	}

	stats.SchemaVersion, _ = d.getMeta("schema_version")

	lastUpdated, _ := d.getMeta("last_updated")
	if lastUpdated != "" {
		stats.LastUpdated, _ = time.Parse(time.RFC3339, lastUpdated)
	}

	return stats, nil
}

// Clear removes every cached response. Pending retries are kept.
func (d *DB) Clear() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return ErrNotOpen
	}

	if _, err := d.db.Exec("DELETE FROM cache_entries"); err != nil {
		return fmt.Errorf("failed to clear cache_entries: %w", err)
	}

	d.setMeta("last_updated", d.now().Format(time.RFC3339))

	log.Info().Msg("Cache cleared")
	return nil
}
