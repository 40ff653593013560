// Package history keeps the bounded, most-recent-first list of played tracks.
package history

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/edumarques81/stellar-offline-player/internal/domain/track"
	"github.com/edumarques81/stellar-offline-player/internal/infra/kv"
	"github.com/rs/zerolog/log"
)

const (
	// Key is the persisted aggregate name.
	Key = "history"

	// DefaultCapacity is the number of tracks retained.
	DefaultCapacity = 20
)

// History is a deduplicated play history. Recording a track id already
// present moves it to the front; the oldest entries fall off past capacity.
type History struct {
	store    kv.Store
	capacity int

	mu      sync.RWMutex
	entries []track.Track
}

// Option configures a History.
type Option func(*History)

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(h *History) {
		if n > 0 {
			h.capacity = n
		}
	}
}

// New restores the history from store. Absent or malformed content
// yields an empty history.
func New(store kv.Store, opts ...Option) *History {
	h := &History{
		store:    store,
		capacity: DefaultCapacity,
		entries:  []track.Track{},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.load()
	return h
}

// Record puts t at the front of the history.
func (h *History) Record(t track.Track) {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := make([]track.Track, 0, len(h.entries)+1)
	next = append(next, t)
	for _, e := range h.entries {
		if e.Key() != t.Key() {
			next = append(next, e)
		}
	}
	if len(next) > h.capacity {
		next = next[:h.capacity]
	}
	h.entries = next

	log.Debug().
		Str("id", t.ID).
		Str("title", t.Title).
		Int("size", len(h.entries)).
		Msg("Recorded play history")

	h.saveLocked()
}

// List returns the history, most recent first.
func (h *History) List() []track.Track {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]track.Track, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of recorded tracks.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Clear removes all history.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = []track.Track{}
	h.saveLocked()
	log.Info().Msg("Playback history cleared")
}

func (h *History) load() {
	data, err := h.store.Get(Key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			log.Warn().Err(err).Msg("Failed to read playback history")
		}
		return
	}

	var entries []track.Track
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Warn().Err(err).Msg("Failed to parse playback history, starting empty")
		return
	}

	valid := entries[:0]
	for _, e := range entries {
		if e.ID != "" {
			valid = append(valid, e)
		}
	}
	if len(valid) > h.capacity {
		valid = valid[:h.capacity]
	}

	h.entries = valid
	log.Info().Int("count", len(valid)).Msg("Loaded playback history")
}

// saveLocked hands the current entries to the store. With a write-behind
// store this does not touch the disk.
func (h *History) saveLocked() {
	data, err := json.Marshal(h.entries)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal playback history")
		return
	}
	if err := h.store.Put(Key, data); err != nil {
		log.Warn().Err(err).Msg("Failed to save playback history")
	}
}
