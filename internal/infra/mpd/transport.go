package mpd

import (
	"context"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/edumarques81/stellar-offline-player/internal/domain/player"
	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"
)

// DefaultProgressInterval between position reports while playing.
const DefaultProgressInterval = 500 * time.Millisecond

// Backend is the subset of Client the transport needs.
type Backend interface {
	Status() (mpd.Attrs, error)
	Load(uri string) error
	Play(pos int) error
	Pause(pause bool) error
	SeekCur(seconds float64) error
	SetVolume(vol int) error
	ClearError() error
	Watch(ctx context.Context, subsystems ...string) (<-chan string, error)
}

// Transport plays one stream at a time through MPD and translates MPD
// status changes into player events.
type Transport struct {
	backend  Backend
	interval time.Duration
	events   chan player.Event

	mu          sync.Mutex
	lastState   string
	awaitReady  bool
	loading     bool // stop caused by our own Load, not an ended song
	pendingSeek float64
	lastError   string
}

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithProgressInterval sets how often progress is polled while playing.
func WithProgressInterval(d time.Duration) TransportOption {
	return func(t *Transport) {
		if d > 0 {
			t.interval = d
		}
	}
}

// NewTransport creates a transport over backend.
func NewTransport(backend Backend, opts ...TransportOption) *Transport {
	t := &Transport{
		backend:   backend,
		interval:  DefaultProgressInterval,
		events:    make(chan player.Event, 32),
		lastState: "stop",
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Events implements player.Transport.
func (t *Transport) Events() <-chan player.Event {
	return t.events
}

// Load implements player.Transport.
func (t *Transport) Load(url string) error {
	t.mu.Lock()
	t.loading = true
	t.awaitReady = true
	t.pendingSeek = 0
	t.lastError = ""
	t.mu.Unlock()

	if err := t.backend.Load(url); err != nil {
		return err
	}
	log.Debug().Str("url", url).Msg("MPD loaded stream")
	return nil
}

// Play implements player.Transport. A stopped player starts the loaded
// song from the top, applying any seek requested while stopped.
func (t *Transport) Play() error {
	status, err := t.backend.Status()
	if err != nil {
		return err
	}

	if status["state"] != "stop" {
		return t.backend.Pause(false)
	}

	if err := t.backend.Play(0); err != nil {
		return err
	}

	t.mu.Lock()
	seek := t.pendingSeek
	t.pendingSeek = 0
	t.mu.Unlock()

	if seek > 0 {
		return t.backend.SeekCur(seek)
	}
	return nil
}

// Pause implements player.Transport.
func (t *Transport) Pause() error {
	return t.backend.Pause(true)
}

// Seek implements player.Transport. MPD cannot seek while stopped, so the
// position is held until the next Play.
func (t *Transport) Seek(seconds float64) error {
	status, err := t.backend.Status()
	if err != nil {
		return err
	}

	if status["state"] == "stop" {
		t.mu.Lock()
		t.pendingSeek = seconds
		t.mu.Unlock()
		return nil
	}
	return t.backend.SeekCur(seconds)
}

// SetVolume implements player.Transport, mapping 0..1 onto MPD's 0..100.
func (t *Transport) SetVolume(v float64) error {
	return t.backend.SetVolume(int(math.Round(v * 100)))
}

// Run watches MPD until ctx is done. Without a watcher it falls back to
// polling on the progress ticker.
func (t *Transport) Run(ctx context.Context) {
	changes, err := t.backend.Watch(ctx, "player")
	if err != nil {
		log.Warn().Err(err).Msg("MPD watcher unavailable, polling only")
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			t.Poll(ctx)
		case <-ticker.C:
			t.Poll(ctx)
		}
	}
}

// Poll reads MPD status once and emits the resulting events.
func (t *Transport) Poll(ctx context.Context) {
	status, err := t.backend.Status()
	if err != nil {
		log.Debug().Err(err).Msg("MPD status unavailable")
		return
	}

	for _, ev := range t.translate(status) {
		select {
		case t.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// translate diffs status against the previous observation.
func (t *Transport) translate(status mpd.Attrs) []player.Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []player.Event
	state := status["state"]

	if msg := status["error"]; msg != "" {
		if msg != t.lastError {
			t.lastError = msg
			t.awaitReady = false
			t.lastState = state
			if err := t.backend.ClearError(); err != nil {
				log.Debug().Err(err).Msg("MPD clearerror failed")
			}
			return append(out, player.Errored{Err: errors.New(msg)})
		}
	}

	if t.awaitReady && (state == "play" || state == "pause") {
		t.awaitReady = false
		out = append(out, player.Ready{Duration: attrFloat(status, "duration")})
	}

	prev := t.lastState
	t.lastState = state

	switch {
	case state == "play" && prev != "play":
		t.loading = false
		out = append(out, player.PlayStateChanged{Playing: true})
	case state == "stop" && prev == "play" && !t.loading:
		out = append(out, player.Ended{})
	case state != "play" && prev == "play":
		out = append(out, player.PlayStateChanged{Playing: false})
	}

	if state == "play" || state == "pause" {
		out = append(out, player.Progress{Position: attrFloat(status, "elapsed")})
	}
	return out
}

func attrFloat(attrs mpd.Attrs, key string) float64 {
	v, err := strconv.ParseFloat(attrs[key], 64)
	if err != nil {
		return 0
	}
	return v
}
