package socketio

import (
	"sync"

	"github.com/edumarques81/stellar-offline-player/internal/domain/player"
)

// stateKey is everything clients render from state except the playback
// position, which they interpolate locally.
type stateKey struct {
	activeID  string
	status    player.Status
	isPlaying bool
	cursor    int
	queueLen  int
	shuffle   bool
	repeat    player.RepeatMode
	volume    float64
	muted     bool
	duration  float64
}

func keyOf(snap player.Snapshot) stateKey {
	k := stateKey{
		status:    snap.Status,
		isPlaying: snap.IsPlaying,
		cursor:    snap.Cursor,
		queueLen:  snap.QueueLen,
		shuffle:   snap.Shuffle,
		repeat:    snap.Repeat,
		volume:    snap.Volume,
		muted:     snap.Muted,
		duration:  snap.Duration,
	}
	if snap.Active != nil {
		k.activeID = snap.Active.Key()
	}
	return k
}

// stateDiff remembers the last observed snapshot to decide what changed.
type stateDiff struct {
	mu      sync.Mutex
	seen    bool
	last    stateKey
	queue   []string
	playing string // id of the last track seen playing
}

// observe records snap and returns the aggregates that need pushing.
// Position-only changes return zero.
func (d *stateDiff) observe(snap player.Snapshot) Change {
	d.mu.Lock()
	defer d.mu.Unlock()

	var c Change
	key := keyOf(snap)
	if !d.seen || key != d.last {
		c |= ChangeState
	}

	ids := make([]string, len(snap.Queue))
	for i, t := range snap.Queue {
		ids[i] = t.Key()
	}
	if !d.seen || !equalIDs(ids, d.queue) {
		c |= ChangeQueue
	}

	if snap.Status == player.StatusPlay && key.activeID != "" && key.activeID != d.playing {
		d.playing = key.activeID
		c |= ChangeHistory
	}

	d.seen = true
	d.last = key
	d.queue = ids
	return c
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
