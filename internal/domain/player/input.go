package player

import "github.com/edumarques81/stellar-offline-player/internal/domain/track"

// Input is anything the reducer reacts to: a user intent or a transport event.
type Input interface {
	input()
}

// Event is an Input originating from the Transport.
type Event interface {
	Input
	event()
}

// Direction for Advance.
type Direction int

const (
	Next Direction = iota
	Previous
)

// Intents.
type (
	// PlayTrack plays t. If t is already queued the cursor moves to it,
	// otherwise the queue becomes [t].
	PlayTrack struct{ Track track.Track }
	// PlayQueue replaces the queue and plays Tracks[Index].
	PlayQueue struct {
		Tracks []track.Track
		Index  int
	}
	TogglePlayPause struct{}
	Advance         struct{ Direction Direction }
	SetShuffle      struct{ On bool }
	CycleRepeat     struct{}
	SetVolume       struct{ Value float64 }
	NudgeVolume     struct{ Delta float64 }
	ToggleMute      struct{}
	// Seek moves to Fraction of the known duration.
	Seek struct{ Fraction float64 }
	// SeekBy moves Seconds relative to the current position.
	SeekBy struct{ Seconds float64 }
	JumpTo struct{ Index int }
	Stop   struct{}
	// BeginRequest supersedes any resolution still in flight.
	BeginRequest struct{}
)

// Transport events.
type (
	Ready            struct{ Duration float64 }
	Progress         struct{ Position float64 }
	Ended            struct{}
	Errored          struct{ Err error }
	PlayStateChanged struct{ Playing bool }
)

func (PlayTrack) input()       {}
func (PlayQueue) input()       {}
func (TogglePlayPause) input() {}
func (Advance) input()         {}
func (SetShuffle) input()      {}
func (CycleRepeat) input()     {}
func (SetVolume) input()       {}
func (NudgeVolume) input()     {}
func (ToggleMute) input()      {}
func (Seek) input()            {}
func (SeekBy) input()          {}
func (JumpTo) input()          {}
func (Stop) input()            {}
func (BeginRequest) input()    {}

func (Ready) input()            {}
func (Progress) input()         {}
func (Ended) input()            {}
func (Errored) input()          {}
func (PlayStateChanged) input() {}

func (Ready) event()            {}
func (Progress) event()         {}
func (Ended) event()            {}
func (Errored) event()          {}
func (PlayStateChanged) event() {}

// Command is an effect the session executes after a reduction.
type Command interface {
	command()
}

type (
	LoadCmd    struct{ URL string }
	PlayCmd    struct{}
	PauseCmd   struct{}
	SeekCmd    struct{ Seconds float64 }
	VolumeCmd  struct{ Value float64 }
	RecordCmd  struct{ Track track.Track }
	PersistCmd struct{ Preferences Preferences }
	ReportCmd  struct{ Err error }
)

func (LoadCmd) command()    {}
func (PlayCmd) command()    {}
func (PauseCmd) command()   {}
func (SeekCmd) command()    {}
func (VolumeCmd) command()  {}
func (RecordCmd) command()  {}
func (PersistCmd) command() {}
func (ReportCmd) command()  {}
