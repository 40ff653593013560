package mpd

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/edumarques81/stellar-offline-player/internal/domain/player"
	"github.com/fhs/gompd/v2/mpd"
)

// MockBackend records commands and serves a settable status.
type MockBackend struct {
	mu       sync.Mutex
	status   mpd.Attrs
	calls    []string
	volume   int
	seekedTo float64
	LoadErr  error
	watch    chan string
}

func newMockBackend() *MockBackend {
	return &MockBackend{status: mpd.Attrs{"state": "stop"}, watch: make(chan string, 4)}
}

func (m *MockBackend) set(attrs mpd.Attrs) {
	m.mu.Lock()
	m.status = attrs
	m.mu.Unlock()
}

func (m *MockBackend) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *MockBackend) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockBackend) Status() (mpd.Attrs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := mpd.Attrs{}
	for k, v := range m.status {
		out[k] = v
	}
	return out, nil
}

func (m *MockBackend) Load(uri string) error {
	m.record("load " + uri)
	if m.LoadErr != nil {
		return m.LoadErr
	}
	m.set(mpd.Attrs{"state": "stop"})
	return nil
}

func (m *MockBackend) Play(pos int) error {
	m.record("play")
	m.set(mpd.Attrs{"state": "play", "elapsed": "0.000", "duration": "180.000"})
	return nil
}

func (m *MockBackend) Pause(pause bool) error {
	if pause {
		m.record("pause")
	} else {
		m.record("resume")
	}
	return nil
}

func (m *MockBackend) SeekCur(seconds float64) error {
	m.record("seek")
	m.mu.Lock()
	m.seekedTo = seconds
	m.mu.Unlock()
	return nil
}

func (m *MockBackend) SetVolume(vol int) error {
	m.mu.Lock()
	m.volume = vol
	m.mu.Unlock()
	return nil
}

func (m *MockBackend) ClearError() error {
	m.record("clearerror")
	return nil
}

func (m *MockBackend) Watch(ctx context.Context, subsystems ...string) (<-chan string, error) {
	return m.watch, nil
}

func TestLoadThenPlayStartsFromTop(t *testing.T) {
	b := newMockBackend()
	tr := NewTransport(b)

	if err := tr.Load("http://media/a.m4a"); err != nil {
		t.Fatal(err)
	}
	if err := tr.Play(); err != nil {
		t.Fatal(err)
	}

	want := []string{"load http://media/a.m4a", "play"}
	if got := b.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestPlayResumesWhenPaused(t *testing.T) {
	b := newMockBackend()
	b.set(mpd.Attrs{"state": "pause"})
	tr := NewTransport(b)

	if err := tr.Play(); err != nil {
		t.Fatal(err)
	}
	if got := b.Calls(); !reflect.DeepEqual(got, []string{"resume"}) {
		t.Errorf("calls = %v, want [resume]", got)
	}
}

func TestSeekWhileStoppedAppliesOnPlay(t *testing.T) {
	b := newMockBackend()
	tr := NewTransport(b)

	if err := tr.Seek(42); err != nil {
		t.Fatal(err)
	}
	if len(b.Calls()) != 0 {
		t.Fatalf("seek while stopped should not reach MPD, got %v", b.Calls())
	}
	if err := tr.Play(); err != nil {
		t.Fatal(err)
	}
	if got := b.Calls(); !reflect.DeepEqual(got, []string{"play", "seek"}) {
		t.Errorf("calls = %v, want [play seek]", got)
	}
	if b.seekedTo != 42 {
		t.Errorf("seekedTo = %v, want 42", b.seekedTo)
	}
}

func TestLoadFailureReturnsError(t *testing.T) {
	b := newMockBackend()
	b.LoadErr = errors.New("No such file")
	tr := NewTransport(b)

	if err := tr.Load("http://media/missing"); err == nil {
		t.Error("expected load error")
	}
}

func TestSetVolumeScales(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{0.7, 70},
		{0.333, 33},
		{1, 100},
	}
	for _, tt := range tests {
		b := newMockBackend()
		if err := NewTransport(b).SetVolume(tt.in); err != nil {
			t.Fatal(err)
		}
		if b.volume != tt.want {
			t.Errorf("SetVolume(%v) -> %d, want %d", tt.in, b.volume, tt.want)
		}
	}
}

func TestTranslateLifecycle(t *testing.T) {
	b := newMockBackend()
	tr := NewTransport(b)
	if err := tr.Load("http://media/a.m4a"); err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		name   string
		status mpd.Attrs
		want   []player.Event
	}{
		{
			name:   "starts playing",
			status: mpd.Attrs{"state": "play", "elapsed": "0.5", "duration": "180.0"},
			want: []player.Event{
				player.Ready{Duration: 180},
				player.PlayStateChanged{Playing: true},
				player.Progress{Position: 0.5},
			},
		},
		{
			name:   "progress",
			status: mpd.Attrs{"state": "play", "elapsed": "12.25", "duration": "180.0"},
			want:   []player.Event{player.Progress{Position: 12.25}},
		},
		{
			name:   "paused",
			status: mpd.Attrs{"state": "pause", "elapsed": "12.25", "duration": "180.0"},
			want: []player.Event{
				player.PlayStateChanged{Playing: false},
				player.Progress{Position: 12.25},
			},
		},
		{
			name:   "resumed",
			status: mpd.Attrs{"state": "play", "elapsed": "13", "duration": "180.0"},
			want: []player.Event{
				player.PlayStateChanged{Playing: true},
				player.Progress{Position: 13},
			},
		},
		{
			name:   "song ends",
			status: mpd.Attrs{"state": "stop"},
			want:   []player.Event{player.Ended{}},
		},
		{
			name:   "still stopped",
			status: mpd.Attrs{"state": "stop"},
			want:   nil,
		},
	}

	for _, step := range steps {
		got := tr.translate(step.status)
		if !reflect.DeepEqual(got, step.want) {
			t.Errorf("%s: events = %#v, want %#v", step.name, got, step.want)
		}
	}
}

func TestLoadWhilePlayingIsNotAnEnd(t *testing.T) {
	b := newMockBackend()
	tr := NewTransport(b)
	tr.translate(mpd.Attrs{"state": "play", "elapsed": "30"})

	if err := tr.Load("http://media/b.m4a"); err != nil {
		t.Fatal(err)
	}
	for _, ev := range tr.translate(mpd.Attrs{"state": "stop"}) {
		if _, ok := ev.(player.Ended); ok {
			t.Fatal("stop caused by Load reported as Ended")
		}
	}
}

func TestTranslateErrorOnce(t *testing.T) {
	b := newMockBackend()
	tr := NewTransport(b)
	_ = tr.Load("http://media/bad")

	status := mpd.Attrs{"state": "stop", "error": "Failed to decode http://media/bad"}
	got := tr.translate(status)
	if len(got) != 1 {
		t.Fatalf("events = %#v, want one Errored", got)
	}
	ev, ok := got[0].(player.Errored)
	if !ok || ev.Err == nil || ev.Err.Error() != status["error"] {
		t.Errorf("event = %#v", got[0])
	}
	if again := tr.translate(status); len(again) != 0 {
		t.Errorf("same error reported twice: %#v", again)
	}

	calls := b.Calls()
	if calls[len(calls)-1] != "clearerror" {
		t.Errorf("error not cleared, calls = %v", calls)
	}
}

func TestRunPollsOnWatcherEvents(t *testing.T) {
	b := newMockBackend()
	tr := NewTransport(b, WithProgressInterval(time.Hour))
	_ = tr.Load("http://media/a.m4a")
	_ = tr.Play()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	b.watch <- "player"

	select {
	case ev := <-tr.Events():
		if _, ok := ev.(player.Ready); !ok {
			t.Errorf("first event = %#v, want Ready", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event after watcher notification")
	}
}

func TestTransportSatisfiesPlayerTransport(t *testing.T) {
	var _ player.Transport = NewTransport(newMockBackend())
	var _ Backend = (*Client)(nil)
}
