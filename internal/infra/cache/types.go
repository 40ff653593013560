// Package cache provides the SQLite-backed resource cache: versioned
// response entries and the durable queue of requests awaiting replay.
package cache

import (
	"errors"
	"net/http"
	"time"
)

var (
	// ErrNotFound is returned when no entry matches.
	ErrNotFound = errors.New("cache entry not found")

	// ErrNotOpen is returned when the database has not been opened.
	ErrNotOpen = errors.New("database not open")
)

// Entry is a stored response, keyed by request identity.
type Entry struct {
	CacheName  string      `json:"cacheName"`
	Key        string      `json:"key"`
	Method     string      `json:"method"`
	URL        string      `json:"url"`
	Status     int         `json:"status"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"-"`
	Size       int64       `json:"size"`
	StoredAt   time.Time   `json:"storedAt"`
	AccessedAt time.Time   `json:"accessedAt"`
}

// RetryEntry is a mutating request that failed for lack of connectivity.
type RetryEntry struct {
	ID        string      `json:"id"`
	Seq       int64       `json:"seq"` // FIFO order
	Method    string      `json:"method"`
	URL       string      `json:"url"`
	Header    http.Header `json:"header"`
	Body      []byte      `json:"-"`
	Attempts  int         `json:"attempts"`
	LastError string      `json:"lastError,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Stats summarises the database contents.
type Stats struct {
	ActiveCache    string    `json:"activeCache"`
	Entries        int       `json:"entries"`
	Bytes          int64     `json:"bytes"`
	StaleEntries   int       `json:"staleEntries"` // entries outside the active cache
	PendingRetries int       `json:"pendingRetries"`
	SchemaVersion  string    `json:"schemaVersion"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// Key builds the request identity used for lookups.
func Key(method, url string) string {
	if method == "" {
		method = http.MethodGet
	}
	return method + " " + url
}
