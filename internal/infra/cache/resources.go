package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Cache is one named, capacity-bounded set of stored responses.
type Cache struct {
	db       *DB
	name     string
	capacity int // max entries, 0 means unbounded
}

// Cache returns a handle for the cache called name.
func (d *DB) Cache(name string, capacity int) *Cache {
	return &Cache{db: d, name: name, capacity: capacity}
}

// Name returns the cache name.
func (c *Cache) Name() string {
	return c.name
}

// Match returns the entry stored under key and marks it as recently used.
func (c *Cache) Match(key string) (*Entry, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	if c.db.db == nil {
		return nil, ErrNotOpen
	}

	row := c.db.db.QueryRow(`
		SELECT cache_name, key, method, url, status, header, body, size, stored_at, accessed_at
		FROM cache_entries
		WHERE cache_name = ? AND key = ?
	`, c.name, key)

	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query entry: %w", err)
	}

	now := c.db.now()
	if _, err := c.db.db.Exec(
		"UPDATE cache_entries SET accessed_at = ? WHERE cache_name = ? AND key = ?",
		now.UnixNano(), c.name, key,
	); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Failed to touch cache entry")
	}
	entry.AccessedAt = now

	return entry, nil
}

// Put stores e, replacing any entry with the same key, then evicts the
// least recently used entries beyond capacity.
func (c *Cache) Put(e *Entry) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	if c.db.db == nil {
		return ErrNotOpen
	}

	header, err := json.Marshal(e.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	now := c.db.now()
	e.CacheName = c.name
	e.Size = int64(len(e.Body))
	e.StoredAt = now
	e.AccessedAt = now

	_, err = c.db.db.Exec(`
		INSERT OR REPLACE INTO cache_entries
		(cache_name, key, method, url, status, header, body, size, stored_at, accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.name,
		e.Key,
		e.Method,
		e.URL,
		e.Status,
		string(header),
		e.Body,
		e.Size,
		now.UnixNano(),
		now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	return c.evictLocked()
}

func (c *Cache) evictLocked() error {
	if c.capacity <= 0 {
		return nil
	}

	res, err := c.db.db.Exec(`
		DELETE FROM cache_entries
		WHERE cache_name = ? AND key IN (
			SELECT key FROM cache_entries
			WHERE cache_name = ?
			ORDER BY accessed_at DESC, rowid DESC
			LIMIT -1 OFFSET ?
		)
	`, c.name, c.name, c.capacity)
	if err != nil {
		return fmt.Errorf("evict: %w", err)
	}

	if n, _ := res.RowsAffected(); n > 0 {
		log.Debug().Str("cache", c.name).Int64("evicted", n).Msg("Evicted cache entries")
	}
	return nil
}

// Delete removes the entry stored under key.
func (c *Cache) Delete(key string) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	if c.db.db == nil {
		return ErrNotOpen
	}

	if _, err := c.db.db.Exec("DELETE FROM cache_entries WHERE cache_name = ? AND key = ?", c.name, key); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// Keys lists the stored keys, most recently used first.
func (c *Cache) Keys() ([]string, error) {
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	if c.db.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := c.db.db.Query(
		"SELECT key FROM cache_entries WHERE cache_name = ? ORDER BY accessed_at DESC, rowid DESC",
		c.name,
	)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Len returns the number of entries in the cache.
func (c *Cache) Len() (int, error) {
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	if c.db.db == nil {
		return 0, ErrNotOpen
	}

	var n int
	err := c.db.db.QueryRow("SELECT COUNT(*) FROM cache_entries WHERE cache_name = ?", c.name).Scan(&n)
	return n, err
}

func scanEntry(row *sql.Row) (*Entry, error) {
	var e Entry
	var header sql.NullString
	var storedAt, accessedAt int64

	err := row.Scan(
		&e.CacheName,
		&e.Key,
		&e.Method,
		&e.URL,
		&e.Status,
		&header,
		&e.Body,
		&e.Size,
		&storedAt,
		&accessedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Header = decodeHeader(header)
	e.StoredAt = time.Unix(0, storedAt)
	e.AccessedAt = time.Unix(0, accessedAt)
	return &e, nil
}

func decodeHeader(s sql.NullString) http.Header {
	h := http.Header{}
	if !s.Valid || s.String == "" || s.String == "null" {
		return h
	}
	if err := json.Unmarshal([]byte(s.String), &h); err != nil {
		log.Warn().Err(err).Msg("Discarding malformed stored header")
		return http.Header{}
	}
	return h
}
