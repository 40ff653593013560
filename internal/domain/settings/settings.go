// Package settings persists the session preferences: volume, shuffle and
// repeat mode, each under its own key.
package settings

import (
	"errors"
	"math"
	"strconv"

	"github.com/edumarques81/stellar-offline-player/internal/domain/player"
	"github.com/edumarques81/stellar-offline-player/internal/infra/kv"
	"github.com/rs/zerolog/log"
)

// Persisted keys
const (
	KeyVolume  = "volume"
	KeyShuffle = "shuffle"
	KeyRepeat  = "repeat"
)

// Store reads and writes preferences.
type Store struct {
	kv       kv.Store
	defaults player.Preferences
}

// NewStore creates a preference store on top of store. defaultVolume is
// used when no volume was persisted; values outside [0,1] fall back to
// player.DefaultVolume.
func NewStore(store kv.Store, defaultVolume float64) *Store {
	d := player.DefaultPreferences()
	if defaultVolume >= 0 && defaultVolume <= 1 {
		d.Volume = defaultVolume
	}
	return &Store{kv: store, defaults: d}
}

// Load returns the persisted preferences. Each key falls back to its
// default independently when absent or malformed.
func (s *Store) Load() player.Preferences {
	p := s.defaults

	if raw, ok := s.read(KeyVolume); ok {
		v, err := strconv.ParseFloat(raw, 64)
		if err == nil && !math.IsNaN(v) && v >= 0 && v <= 1 {
			p.Volume = v
		} else {
			log.Warn().Str("value", raw).Msg("Ignoring malformed persisted volume")
		}
	}

	if raw, ok := s.read(KeyShuffle); ok {
		if b, err := strconv.ParseBool(raw); err == nil {
			p.Shuffle = b
		} else {
			log.Warn().Str("value", raw).Msg("Ignoring malformed persisted shuffle")
		}
	}

	if raw, ok := s.read(KeyRepeat); ok {
		if n, err := strconv.Atoi(raw); err == nil {
			p.Repeat = player.ParseRepeatMode(n)
		} else {
			log.Warn().Str("value", raw).Msg("Ignoring malformed persisted repeat mode")
		}
	}

	return p
}

// Save writes all three preferences.
func (s *Store) Save(p player.Preferences) {
	writes := map[string]string{
		KeyVolume:  strconv.FormatFloat(p.Volume, 'f', -1, 64),
		KeyShuffle: strconv.FormatBool(p.Shuffle),
		KeyRepeat:  strconv.Itoa(int(p.Repeat)),
	}
	for key, value := range writes {
		if err := s.kv.Put(key, []byte(value)); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to save preference")
		}
	}
}

func (s *Store) read(key string) (string, bool) {
	data, err := s.kv.Get(key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			log.Warn().Err(err).Str("key", key).Msg("Failed to read preference")
		}
		return "", false
	}
	return string(data), true
}
