package player

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"github.com/edumarques81/stellar-offline-player/internal/apperr"
	"github.com/edumarques81/stellar-offline-player/internal/domain/track"
	"github.com/rs/zerolog/log"
)

// ErrNoDuration is returned by Seek before the transport reports a duration.
var ErrNoDuration = errors.New("duration not known yet")

// Transport is the media playback capability driven by the session.
type Transport interface {
	Load(url string) error
	Play() error
	Pause() error
	Seek(seconds float64) error
	SetVolume(v float64) error
	Events() <-chan Event
}

// HistoryRecorder receives tracks that started playing.
type HistoryRecorder interface {
	Record(t track.Track)
}

// SettingsSaver persists preference changes.
type SettingsSaver interface {
	Save(p Preferences)
}

type globalPicker struct{}

func (globalPicker) Intn(n int) int { return rand.Intn(n) }

// Session owns the playback state and drives a Transport. Every operation
// runs to completion under one lock, so listeners never observe a
// half-applied transition.
type Session struct {
	mu        sync.Mutex
	state     State
	transport Transport
	history   HistoryRecorder
	settings  SettingsSaver
	picker    Picker

	lmu              sync.RWMutex
	stateListeners   []func(Snapshot)
	failureListeners []func(error)
}

// Option configures a Session.
type Option func(*Session)

// WithPreferences restores persisted volume, shuffle and repeat.
func WithPreferences(p Preferences) Option {
	return func(s *Session) { s.state = NewState(p) }
}

// WithHistory records every track that starts playing.
func WithHistory(h HistoryRecorder) Option {
	return func(s *Session) { s.history = h }
}

// WithSettings persists preference changes.
func WithSettings(saver SettingsSaver) Option {
	return func(s *Session) { s.settings = saver }
}

// WithPicker replaces the random source used in shuffle mode.
func WithPicker(p Picker) Option {
	return func(s *Session) { s.picker = p }
}

// WithStateListener is called with a snapshot after every state change.
func WithStateListener(fn func(Snapshot)) Option {
	return func(s *Session) { s.stateListeners = append(s.stateListeners, fn) }
}

// WithFailureListener is called for every reported playback failure.
func WithFailureListener(fn func(error)) Option {
	return func(s *Session) { s.failureListeners = append(s.failureListeners, fn) }
}

// NewSession creates a session driving transport.
func NewSession(transport Transport, opts ...Option) *Session {
	s := &Session{
		state:     NewState(DefaultPreferences()),
		transport: transport,
		picker:    globalPicker{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe adds listeners after construction. Either may be nil.
func (s *Session) Subscribe(onState func(Snapshot), onFailure func(error)) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	if onState != nil {
		s.stateListeners = append(s.stateListeners, onState)
	}
	if onFailure != nil {
		s.failureListeners = append(s.failureListeners, onFailure)
	}
}

// Run applies transport events until ctx is done or the event channel closes.
// The transport is first brought to the session's audible volume.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	vol := s.state.AudibleVolume()
	s.mu.Unlock()
	if err := s.transport.SetVolume(vol); err != nil {
		log.Warn().Err(err).Msg("Failed to apply initial volume")
	}

	events := s.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.HandleEvent(ev); err != nil {
				log.Warn().Err(err).Msg("Playback event reported failure")
			}
		}
	}
}

// HandleEvent applies a single transport event.
func (s *Session) HandleEvent(ev Event) error {
	return s.dispatch(ev)
}

// PlayTrack plays t, queueing it alone unless it is already queued.
func (s *Session) PlayTrack(t track.Track) error {
	if err := t.Validate(); err != nil {
		failure := apperr.WithSubject(apperr.KindTransport, "play", t.ID, err)
		s.notifyFailures(failure)
		return failure
	}
	log.Info().Str("id", t.ID).Str("title", t.Title).Msg("Play track")
	return s.dispatch(PlayTrack{Track: t})
}

// PlayQueue replaces the queue with tracks and plays tracks[index].
// An out-of-range index leaves the session untouched.
func (s *Session) PlayQueue(tracks []track.Track, index int) error {
	log.Info().Int("tracks", len(tracks)).Int("index", index).Msg("Play queue")
	return s.dispatch(PlayQueue{Tracks: tracks, Index: index})
}

// PlayFromLibrary plays the library as the queue, starting at id.
func (s *Session) PlayFromLibrary(tracks []track.Track, id string) error {
	i := track.IndexOf(tracks, id)
	if i < 0 {
		log.Debug().Str("id", id).Msg("Track not in library")
		return nil
	}
	return s.PlayQueue(tracks, i)
}

func (s *Session) TogglePlayPause() error {
	return s.dispatch(TogglePlayPause{})
}

func (s *Session) Next() error {
	return s.dispatch(Advance{Direction: Next})
}

func (s *Session) Previous() error {
	return s.dispatch(Advance{Direction: Previous})
}

// JumpTo plays the queue entry at index. Out-of-range is ignored.
func (s *Session) JumpTo(index int) error {
	return s.dispatch(JumpTo{Index: index})
}

func (s *Session) Stop() error {
	return s.dispatch(Stop{})
}

func (s *Session) SetShuffle(on bool) error {
	log.Info().Bool("enabled", on).Msg("Set shuffle")
	return s.dispatch(SetShuffle{On: on})
}

// CycleRepeat advances the repeat mode and returns the new one.
func (s *Session) CycleRepeat() (RepeatMode, error) {
	err := s.dispatch(CycleRepeat{})
	mode := s.Snapshot().Repeat
	log.Info().Str("mode", mode.String()).Msg("Cycle repeat")
	return mode, err
}

// SetVolume sets the volume, clamped to [0,1]. It also unmutes.
func (s *Session) SetVolume(v float64) error {
	return s.dispatch(SetVolume{Value: v})
}

func (s *Session) NudgeVolume(delta float64) error {
	return s.dispatch(NudgeVolume{Delta: delta})
}

func (s *Session) ToggleMute() error {
	return s.dispatch(ToggleMute{})
}

// Seek moves to fraction of the track duration.
func (s *Session) Seek(fraction float64) error {
	if s.Snapshot().Duration <= 0 {
		return ErrNoDuration
	}
	return s.dispatch(Seek{Fraction: fraction})
}

// SeekBy moves relative to the current position, clamped to the track.
func (s *Session) SeekBy(seconds float64) error {
	if s.Snapshot().Duration <= 0 {
		return ErrNoDuration
	}
	return s.dispatch(SeekBy{Seconds: seconds})
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Snapshot()
}

// Queue returns a copy of the play queue.
func (s *Session) Queue() []track.Track {
	return s.Snapshot().Queue
}

// dispatch reduces in, executes the resulting commands and notifies
// listeners once the lock is released.
func (s *Session) dispatch(in Input) error {
	s.mu.Lock()
	failures := s.applyLocked(in)
	snap := s.state.Snapshot()
	s.mu.Unlock()

	s.notify(snap, failures)
	return errors.Join(failures...)
}

func (s *Session) applyLocked(in Input) []error {
	next, cmds := Reduce(s.state, in, s.picker)
	s.state = next

	var failures []error
	for _, cmd := range cmds {
		err := s.execLocked(cmd)
		if err == nil {
			continue
		}

		var report reportedError
		if errors.As(err, &report) {
			failures = append(failures, report.err)
			continue
		}

		switch cmd.(type) {
		case LoadCmd, PlayCmd:
			// Same recovery as a transport error event.
			log.Warn().Err(err).Msg("Transport rejected playback")
			return append(failures, s.applyLocked(Errored{Err: err})...)
		default:
			log.Warn().Err(err).Msg("Transport command failed")
			failures = append(failures, apperr.New(apperr.KindTransport, "transport", err))
		}
	}
	return failures
}

type reportedError struct{ err error }

func (r reportedError) Error() string { return r.err.Error() }

func (s *Session) execLocked(cmd Command) error {
	switch c := cmd.(type) {
	case LoadCmd:
		return s.transport.Load(c.URL)
	case PlayCmd:
		return s.transport.Play()
	case PauseCmd:
		return s.transport.Pause()
	case SeekCmd:
		return s.transport.Seek(c.Seconds)
	case VolumeCmd:
		return s.transport.SetVolume(c.Value)
	case RecordCmd:
		if s.history != nil {
			s.history.Record(c.Track)
		}
	case PersistCmd:
		if s.settings != nil {
			s.settings.Save(c.Preferences)
		}
	case ReportCmd:
		log.Warn().Err(c.Err).Msg("Playback failed")
		return reportedError{err: c.Err}
	}
	return nil
}

func (s *Session) notify(snap Snapshot, failures []error) {
	s.lmu.RLock()
	listeners := s.stateListeners
	s.lmu.RUnlock()

	for _, fn := range listeners {
		fn(snap)
	}
	s.notifyFailures(failures...)
}

func (s *Session) notifyFailures(failures ...error) {
	if len(failures) == 0 {
		return
	}
	s.lmu.RLock()
	listeners := s.failureListeners
	s.lmu.RUnlock()

	for _, err := range failures {
		for _, fn := range listeners {
			fn(err)
		}
	}
}
