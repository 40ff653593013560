package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RetryQueue is the durable FIFO of requests waiting for connectivity.
type RetryQueue struct {
	db *DB
}

// RetryQueue returns the retry queue stored in d.
func (d *DB) RetryQueue() *RetryQueue {
	return &RetryQueue{db: d}
}

// Enqueue appends e. ID and Seq are assigned here.
func (q *RetryQueue) Enqueue(e *RetryEntry) error {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()

	if q.db.db == nil {
		return ErrNotOpen
	}

	header, err := json.Marshal(e.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	var seq int64
	if err := q.db.db.QueryRow("SELECT COALESCE(MAX(seq), 0) + 1 FROM retry_queue").Scan(&seq); err != nil {
		return fmt.Errorf("next seq: %w", err)
	}

	now := q.db.now()
	e.ID = uuid.New().String()
	e.Seq = seq
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err = q.db.db.Exec(`
		INSERT INTO retry_queue (id, seq, method, url, header, body, attempts, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID,
		e.Seq,
		e.Method,
		e.URL,
		string(header),
		e.Body,
		e.Attempts,
		e.LastError,
		formatTime(e.CreatedAt),
		formatTime(e.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert retry: %w", err)
	}
	return nil
}

// Pending returns every entry in FIFO order.
func (q *RetryQueue) Pending() ([]*RetryEntry, error) {
	q.db.mu.RLock()
	defer q.db.mu.RUnlock()

	if q.db.db == nil {
		return nil, ErrNotOpen
	}

	rows, err := q.db.db.Query(`
		SELECT id, seq, method, url, header, body, attempts, last_error, created_at, updated_at
		FROM retry_queue
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pending retries: %w", err)
	}
	defer rows.Close()

	var entries []*RetryEntry
	for rows.Next() {
		e, err := scanRetry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan retry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the entry with id.
func (q *RetryQueue) Get(id string) (*RetryEntry, error) {
	q.db.mu.RLock()
	defer q.db.mu.RUnlock()

	if q.db.db == nil {
		return nil, ErrNotOpen
	}

	row := q.db.db.QueryRow(`
		SELECT id, seq, method, url, header, body, attempts, last_error, created_at, updated_at
		FROM retry_queue
		WHERE id = ?
	`, id)

	e, err := scanRetry(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query retry: %w", err)
	}
	return e, nil
}

// MarkAttempt records a failed replay of id.
func (q *RetryQueue) MarkAttempt(id string, cause error) error {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()

	if q.db.db == nil {
		return ErrNotOpen
	}

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	_, err := q.db.db.Exec(`
		UPDATE retry_queue
		SET attempts = attempts + 1, last_error = ?, updated_at = ?
		WHERE id = ?
	`, msg, formatTime(q.db.now()), id)
	if err != nil {
		return fmt.Errorf("update retry: %w", err)
	}
	return nil
}

// Remove deletes id after a confirmed replay.
func (q *RetryQueue) Remove(id string) error {
	q.db.mu.Lock()
	defer q.db.mu.Unlock()

	if q.db.db == nil {
		return ErrNotOpen
	}

	if _, err := q.db.db.Exec("DELETE FROM retry_queue WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete retry: %w", err)
	}
	return nil
}

// Len returns the number of pending entries.
func (q *RetryQueue) Len() (int, error) {
	q.db.mu.RLock()
	defer q.db.mu.RUnlock()

	if q.db.db == nil {
		return 0, ErrNotOpen
	}

	var n int
	err := q.db.db.QueryRow("SELECT COUNT(*) FROM retry_queue").Scan(&n)
	return n, err
}

// Helper functions

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// scannable is an interface for both *sql.Row and *sql.Rows
type scannable interface {
	Scan(dest ...interface{}) error
}

func scanRetry(row scannable) (*RetryEntry, error) {
	var e RetryEntry
	var header, lastError sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&e.ID,
		&e.Seq,
		&e.Method,
		&e.URL,
		&header,
		&e.Body,
		&e.Attempts,
		&lastError,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Header = decodeHeader(header)
	e.LastError = lastError.String
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}
