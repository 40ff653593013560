// Package player provides the playback session controller: queue, cursor,
// shuffle/repeat and transport lifecycle handling.
package player

import (
	"math"

	"github.com/edumarques81/stellar-offline-player/internal/domain/track"
)

// Status is the lifecycle state of the active track.
type Status string

// Status constants for the active track
const (
	StatusStop    Status = "stop"
	StatusLoading Status = "loading"
	StatusPlay    Status = "play"
	StatusPause   Status = "pause"
	StatusEnded   Status = "ended"
)

// RepeatMode controls what happens when a track ends.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatOne
)

// Next returns the mode after m in the cycle off -> all -> one -> off.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

func (m RepeatMode) String() string {
	switch m {
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "off"
	}
}

// ParseRepeatMode converts a persisted 0/1/2 value. Anything else is RepeatOff.
func ParseRepeatMode(v int) RepeatMode {
	switch RepeatMode(v) {
	case RepeatAll, RepeatOne:
		return RepeatMode(v)
	default:
		return RepeatOff
	}
}

// DefaultVolume is used when nothing has been persisted.
const DefaultVolume = 0.7

// Preferences are the persisted parts of the session.
type Preferences struct {
	Volume  float64
	Shuffle bool
	Repeat  RepeatMode
}

// DefaultPreferences returns the first-run preferences.
func DefaultPreferences() Preferences {
	return Preferences{Volume: DefaultVolume}
}

// State is the complete session state. It is a value: the reducer takes
// one and returns a new one, sharing no mutable slices with the input.
type State struct {
	Queue  []track.Track
	Cursor int // valid only while Queue is non-empty

	Active    *track.Track // equal to Queue[Cursor] when both are set
	Status    Status
	IsPlaying bool // last play/pause reported by the transport
	Loaded    bool // transport holds Active and can resume it

	Shuffle bool
	Repeat  RepeatMode
	Volume  float64 // retained level, kept while muted
	Muted   bool

	Duration float64 // seconds, 0 until the transport reports it
	Position float64 // seconds

	// Token increases on every play request so late resolutions can be
	// recognised and dropped.
	Token uint64
}

// NewState creates the startup state from restored preferences.
func NewState(p Preferences) State {
	return State{
		Status:  StatusStop,
		Shuffle: p.Shuffle,
		Repeat:  ParseRepeatMode(int(p.Repeat)),
		Volume:  clampUnit(p.Volume),
	}
}

// Preferences extracts the persisted fields.
func (s State) Preferences() Preferences {
	return Preferences{Volume: s.Volume, Shuffle: s.Shuffle, Repeat: s.Repeat}
}

// AudibleVolume is the level the transport should be playing at.
func (s State) AudibleVolume() float64 {
	if s.Muted {
		return 0
	}
	return s.Volume
}

// clone copies the queue so the returned state can be mutated freely.
func (s State) clone() State {
	if s.Queue != nil {
		q := make([]track.Track, len(s.Queue))
		copy(q, s.Queue)
		s.Queue = q
	}
	if s.Active != nil {
		a := *s.Active
		s.Active = &a
	}
	return s
}

// Snapshot is a read-only view of the session for listeners and clients.
type Snapshot struct {
	Active    *track.Track  `json:"track"`
	Status    Status        `json:"status"`
	IsPlaying bool          `json:"isPlaying"`
	Cursor    int           `json:"position"`
	QueueLen  int           `json:"queueLength"`
	Shuffle   bool          `json:"random"`
	Repeat    RepeatMode    `json:"repeatMode"`
	Volume    float64       `json:"volume"`
	Muted     bool          `json:"mute"`
	Duration  float64       `json:"duration"`
	Position  float64       `json:"seek"`
	Queue     []track.Track `json:"-"`
}

// Snapshot returns a deep copy of s.
func (s State) Snapshot() Snapshot {
	c := s.clone()
	cursor := c.Cursor
	if len(c.Queue) == 0 {
		cursor = -1
	}
	return Snapshot{
		Active:    c.Active,
		Status:    c.Status,
		IsPlaying: c.IsPlaying,
		Cursor:    cursor,
		QueueLen:  len(c.Queue),
		Shuffle:   c.Shuffle,
		Repeat:    c.Repeat,
		Volume:    c.Volume,
		Muted:     c.Muted,
		Duration:  c.Duration,
		Position:  c.Position,
		Queue:     c.Queue,
	}
}

// AudibleVolume is the level the transport is playing at.
func (s Snapshot) AudibleVolume() float64 {
	if s.Muted {
		return 0
	}
	return s.Volume
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
