// Package library keeps the user's uploaded tracks.
package library

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/edumarques81/stellar-offline-player/internal/domain/track"
	"github.com/edumarques81/stellar-offline-player/internal/infra/kv"
	"github.com/rs/zerolog/log"
)

// Key is the persisted aggregate name.
const Key = "library"

// Library is an unbounded, ordered list of uploaded tracks.
type Library struct {
	store kv.Store

	mu     sync.RWMutex
	tracks []track.Track
}

// New restores the library from store. Absent or malformed content yields
// an empty library.
func New(store kv.Store) *Library {
	l := &Library{store: store, tracks: []track.Track{}}
	l.load()
	return l
}

// Add appends t, or replaces the entry with the same id in place.
func (l *Library) Add(t track.Track) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i := track.IndexOfTrack(l.tracks, t); i >= 0 {
		l.tracks[i] = t
	} else {
		l.tracks = append(l.tracks, t)
	}
	log.Info().Str("id", t.ID).Str("title", t.Title).Msg("Added track to library")
	l.saveLocked()
}

// Replace swaps the whole library, e.g. after listing the service.
func (l *Library) Replace(tracks []track.Track) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.tracks = make([]track.Track, len(tracks))
	copy(l.tracks, tracks)
	l.saveLocked()
}

// Remove deletes the track with id. It reports whether it was present.
func (l *Library) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := track.IndexOf(l.tracks, id)
	if i < 0 {
		return false
	}
	l.tracks = append(l.tracks[:i:i], l.tracks[i+1:]...)
	l.saveLocked()
	return true
}

// Get returns the track with id.
func (l *Library) Get(id string) (track.Track, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if i := track.IndexOf(l.tracks, id); i >= 0 {
		return l.tracks[i], true
	}
	return track.Track{}, false
}

// List returns a copy of the library in insertion order.
func (l *Library) List() []track.Track {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]track.Track, len(l.tracks))
	copy(out, l.tracks)
	return out
}

func (l *Library) load() {
	data, err := l.store.Get(Key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			log.Warn().Err(err).Msg("Failed to read library")
		}
		return
	}

	var tracks []track.Track
	if err := json.Unmarshal(data, &tracks); err != nil {
		log.Warn().Err(err).Msg("Failed to parse library, starting empty")
		return
	}
	l.tracks = tracks
	log.Info().Int("count", len(tracks)).Msg("Loaded library")
}

func (l *Library) saveLocked() {
	data, err := json.Marshal(l.tracks)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal library")
		return
	}
	if err := l.store.Put(Key, data); err != nil {
		log.Warn().Err(err).Msg("Failed to save library")
	}
}
