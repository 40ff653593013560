package player

import (
	"context"
	"errors"

	"github.com/edumarques81/stellar-offline-player/internal/apperr"
	"github.com/edumarques81/stellar-offline-player/internal/domain/track"
	"github.com/rs/zerolog/log"
)

// ErrSuperseded is returned when a newer play request won while a
// resolution was in flight. The late result is dropped.
var ErrSuperseded = errors.New("superseded by a newer request")

// Resolver turns a catalog id into a playable stream URL.
type Resolver interface {
	Resolve(ctx context.Context, id string) (string, error)
}

// ResolveAndPlay resolves pending's stream URL, then plays the resolved
// track unless another play request was issued meanwhile. The session is
// not locked while the resolver runs.
func (s *Session) ResolveAndPlay(ctx context.Context, r Resolver, pending track.Track) error {
	s.mu.Lock()
	s.state, _ = Reduce(s.state, BeginRequest{}, s.picker)
	token := s.state.Token
	s.mu.Unlock()

	url, err := r.Resolve(ctx, pending.ID)
	if err == nil && url == "" {
		err = errors.New("no stream url")
	}

	s.mu.Lock()
	if s.state.Token != token {
		s.mu.Unlock()
		log.Warn().Err(err).Str("id", pending.ID).Msg("Discarding stale resolution")
		return ErrSuperseded
	}
	if err != nil {
		s.mu.Unlock()
		if apperr.KindOf(err) == "" {
			err = apperr.WithSubject(apperr.KindResolution, "resolve", pending.ID, err)
		}
		log.Warn().Err(err).Str("id", pending.ID).Msg("Resolution failed")
		s.notifyFailures(err)
		return err
	}

	resolved := pending.WithStreamURL(url)
	failures := s.applyLocked(PlayTrack{Track: resolved})
	snap := s.state.Snapshot()
	s.mu.Unlock()

	s.notify(snap, failures)
	return errors.Join(failures...)
}
