package player

import (
	"errors"
	"math"

	"github.com/edumarques81/stellar-offline-player/internal/apperr"
	"github.com/edumarques81/stellar-offline-player/internal/domain/track"
)

// ErrPlaybackFailed is reported when the transport rejects or drops a track.
var ErrPlaybackFailed = errors.New("playback failed")

// Picker chooses the next index in shuffle mode. *rand.Rand satisfies it.
type Picker interface {
	Intn(n int) int
}

// Reduce computes the next state and the commands to run for in.
// It never mutates s.
func Reduce(s State, in Input, pick Picker) (State, []Command) {
	s = s.clone()

	switch in := in.(type) {
	case PlayTrack:
		if i := track.IndexOfTrack(s.Queue, in.Track); i >= 0 {
			s.Queue[i] = in.Track
			return playAt(s, i)
		}
		s.Queue = []track.Track{in.Track}
		return playAt(s, 0)

	case PlayQueue:
		if in.Index < 0 || in.Index >= len(in.Tracks) {
			return s, nil
		}
		s.Queue = make([]track.Track, len(in.Tracks))
		copy(s.Queue, in.Tracks)
		return playAt(s, in.Index)

	case TogglePlayPause:
		if s.Active == nil {
			return s, nil
		}
		switch s.Status {
		case StatusPlay:
			return s, []Command{PauseCmd{}}
		case StatusLoading:
			return s, nil
		}
		if s.Loaded {
			return s, []Command{PlayCmd{}}
		}
		return playAt(s, s.Cursor)

	case Advance:
		n := len(s.Queue)
		if n == 0 {
			return s, nil
		}
		switch {
		case in.Direction == Previous:
			return playAt(s, (s.Cursor-1+n)%n)
		case s.Shuffle:
			return playAt(s, pick.Intn(n))
		default:
			return playAt(s, (s.Cursor+1)%n)
		}

	case JumpTo:
		if in.Index < 0 || in.Index >= len(s.Queue) {
			return s, nil
		}
		return playAt(s, in.Index)

	case SetShuffle:
		s.Shuffle = in.On
		return s, []Command{PersistCmd{s.Preferences()}}

	case CycleRepeat:
		s.Repeat = s.Repeat.Next()
		return s, []Command{PersistCmd{s.Preferences()}}

	case SetVolume:
		return setVolume(s, in.Value)

	case NudgeVolume:
		return setVolume(s, math.Round((s.Volume+in.Delta)*100)/100)

	case ToggleMute:
		s.Muted = !s.Muted
		return s, []Command{VolumeCmd{s.AudibleVolume()}}

	case Seek:
		if s.Duration <= 0 {
			return s, nil
		}
		s.Position = clampUnit(in.Fraction) * s.Duration
		return s, []Command{SeekCmd{s.Position}}

	case SeekBy:
		if s.Duration <= 0 {
			return s, nil
		}
		s.Position = math.Max(0, math.Min(s.Duration, s.Position+in.Seconds))
		return s, []Command{SeekCmd{s.Position}}

	case Stop:
		if s.Active == nil {
			return s, nil
		}
		s.Status = StatusStop
		s.Position = 0
		return s, []Command{PauseCmd{}, SeekCmd{0}}

	case BeginRequest:
		s.Token++
		return s, nil

	case Ready:
		if s.Active == nil {
			return s, nil
		}
		s.Duration = in.Duration
		s.Loaded = true
		return s, nil

	case Progress:
		s.Position = in.Position
		return s, nil

	case PlayStateChanged:
		s.IsPlaying = in.Playing
		if in.Playing {
			prev := s.Status
			s.Status = StatusPlay
			s.Loaded = true
			if prev == StatusLoading && s.Active != nil {
				return s, []Command{RecordCmd{*s.Active}}
			}
			return s, nil
		}
		if s.Status == StatusPlay {
			s.Status = StatusPause
		}
		return s, nil

	case Ended:
		return ended(s, pick)

	case Errored:
		s.Status = StatusStop
		s.IsPlaying = false
		s.Loaded = false
		s.Position = 0
		subject := ""
		if s.Active != nil {
			subject = s.Active.ID
		}
		cause := in.Err
		if cause == nil {
			cause = ErrPlaybackFailed
		}
		return s, []Command{ReportCmd{apperr.WithSubject(apperr.KindTransport, "play", subject, cause)}}
	}

	return s, nil
}

// playAt makes Queue[i] the active track and asks the transport to play it.
func playAt(s State, i int) (State, []Command) {
	t := s.Queue[i]
	s.Cursor = i
	s.Active = &t
	s.Status = StatusLoading
	s.Loaded = false
	s.Duration = 0
	s.Position = 0
	s.Token++
	return s, []Command{LoadCmd{t.StreamURL}, PlayCmd{}}
}

func setVolume(s State, v float64) (State, []Command) {
	s.Volume = clampUnit(v)
	s.Muted = false
	return s, []Command{VolumeCmd{s.Volume}, PersistCmd{s.Preferences()}}
}

func ended(s State, pick Picker) (State, []Command) {
	s.Status = StatusEnded
	s.IsPlaying = false

	n := len(s.Queue)
	switch {
	case s.Active == nil || n == 0:
		s.Status = StatusStop
		return s, nil
	case s.Repeat == RepeatOne:
		s.Status = StatusLoading
		s.Position = 0
		return s, []Command{SeekCmd{0}, PlayCmd{}}
	case s.Repeat == RepeatAll || s.Cursor < n-1:
		return Reduce(s, Advance{Direction: Next}, pick)
	default:
		s.Status = StatusStop
		s.Position = 0
		return s, nil
	}
}
