package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/edumarques81/stellar-offline-player/internal/apperr"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(WithBaseURL(srv.URL), WithSearchRateLimit(0))
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		status    int
		wantCount int
		wantErr   bool
	}{
		{
			name:      "results",
			body:      `{"results":[{"id":"abc","title":"Song","channel":"Band","duration":"3:45","thumbnail":"t.jpg","url":"https://x/abc"},{"id":"def","title":"Other","channel":"B","duration":"1:02:03"}],"total":2}`,
			status:    http.StatusOK,
			wantCount: 2,
		},
		{
			name:      "no results",
			body:      `{"results":[],"total":0}`,
			status:    http.StatusOK,
			wantCount: 0,
		},
		{
			name:      "absent results",
			body:      `{}`,
			status:    http.StatusOK,
			wantCount: 0,
		},
		{
			name:    "server error",
			body:    `{"detail":"boom"}`,
			status:  http.StatusInternalServerError,
			wantErr: true,
		},
		{
			name:    "garbage",
			body:    `not json`,
			status:  http.StatusOK,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/search" {
					t.Errorf("path = %q, want /search", r.URL.Path)
				}
				if got := r.URL.Query().Get("q"); got != "daft punk" {
					t.Errorf("q = %q, want %q", got, "daft punk")
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			hits, err := newTestClient(srv).Search(context.Background(), "  daft punk ")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Search() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, apperr.ErrResolution) {
					t.Errorf("error should be a resolution error, got %v", err)
				}
				return
			}
			if len(hits) != tt.wantCount {
				t.Fatalf("got %d hits, want %d", len(hits), tt.wantCount)
			}
		})
	}
}

func TestSearchEmptyQuerySkipsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	}))
	defer srv.Close()

	hits, err := newTestClient(srv).Search(context.Background(), "   ")
	if err != nil || hits != nil {
		t.Errorf("Search(blank) = %v, %v; want nil, nil", hits, err)
	}
}

func TestSearchHitTrack(t *testing.T) {
	hit := SearchHit{ID: "abc", Title: "Song", Channel: "Band", Duration: "3:45", Thumbnail: "t.jpg"}
	tr := hit.Track()

	if tr.ID != "abc" || tr.Artist != "Band" || tr.ThumbnailURL != "t.jpg" {
		t.Errorf("unexpected track %+v", tr)
	}
	if tr.DurationHint != 225 {
		t.Errorf("DurationHint = %v, want 225", tr.DurationHint)
	}
	if tr.StreamURL != "" {
		t.Errorf("unresolved hit should have no stream, got %q", tr.StreamURL)
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr bool
	}{
		{
			name:   "stream",
			status: http.StatusOK,
			body:   `{"stream_url":"https://cdn/abc.m4a","title":"Song","duration":"3:45"}`,
			want:   "https://cdn/abc.m4a",
		},
		{
			name:    "error body",
			status:  http.StatusOK,
			body:    `{"error":"unavailable","detail":"region locked","suggestions":["try later"]}`,
			wantErr: true,
		},
		{
			name:    "missing stream",
			status:  http.StatusOK,
			body:    `{"title":"Song"}`,
			wantErr: true,
		},
		{
			name:    "not found",
			status:  http.StatusNotFound,
			body:    `{"detail":"nope"}`,
			wantErr: true,
		},
		{
			name:    "service unavailable",
			status:  http.StatusServiceUnavailable,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/play/abc" {
					t.Errorf("path = %q, want /play/abc", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := newTestClient(srv).Resolve(context.Background(), "abc")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if apperr.KindOf(err) != apperr.KindResolution {
					t.Errorf("kind = %q, want resolution", apperr.KindOf(err))
				}
				return
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUpload(t *testing.T) {
	var gotName, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload" {
			t.Errorf("got %s %s, want POST /upload", r.Method, r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		b, _ := io.ReadAll(f)
		gotName, gotBody = hdr.Filename, string(b)
		w.Write([]byte(`{"filename":"1700000000_song.mp3","original_name":"song.mp3","size":5,"message":"ok"}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv).Upload(context.Background(), "song.mp3", strings.NewReader("audio"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if gotName != "song.mp3" || gotBody != "audio" {
		t.Errorf("server got %q/%q", gotName, gotBody)
	}
	if res.Filename != "1700000000_song.mp3" || res.OriginalName != "song.mp3" || res.Size != 5 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestUploadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"File type not allowed"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Upload(context.Background(), "notes.txt", strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, apperr.ErrUpload) {
		t.Errorf("error should be an upload error, got %v", err)
	}
	if errors.Is(err, apperr.ErrConnectivity) {
		t.Error("rejection must not look like a connectivity failure")
	}
}

type failingTransport struct{ err error }

func (f failingTransport) RoundTrip(*http.Request) (*http.Response, error) { return nil, f.err }

func TestUploadKeepsConnectivityKind(t *testing.T) {
	queued := apperr.New(apperr.KindConnectivity, "POST /upload", errors.New("queued"))
	c := NewClient(
		WithBaseURL("http://media.test"),
		WithHTTPClient(&http.Client{Transport: failingTransport{err: queued}}),
	)

	_, err := c.Upload(context.Background(), "song.mp3", strings.NewReader("x"))
	if !errors.Is(err, apperr.ErrConnectivity) {
		t.Fatalf("err = %v, want connectivity", err)
	}
	if errors.Is(err, apperr.ErrUpload) {
		t.Error("queued upload should not be reported as rejected")
	}
}

func TestLibrary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"songs":[{"id":"1_a.mp3","filename":"1_a.mp3","original_name":"a.mp3","size":10,"modified":1.5,"url":"/songs/1_a.mp3","source":"local"},{"filename":""}],"total":2}`))
	}))
	defer srv.Close()

	tracks, err := newTestClient(srv).Library(context.Background())
	if err != nil {
		t.Fatalf("Library() error = %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("got %d tracks, want 1", len(tracks))
	}
	if tracks[0].Title != "a" || tracks[0].StreamURL != srv.URL+"/songs/1_a.mp3" {
		t.Errorf("unexpected track %+v", tracks[0])
	}
}

func TestDeleteSong(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		if r.URL.Path == "/songs/missing.mp3" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv)
	if err := c.DeleteSong(context.Background(), "1_a.mp3"); err != nil {
		t.Fatalf("DeleteSong() error = %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/songs/1_a.mp3" {
		t.Errorf("got %s %s", gotMethod, gotPath)
	}
	if err := c.DeleteSong(context.Background(), "missing.mp3"); err == nil {
		t.Error("expected error for 404")
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"healthy","message":"ok","youtube_available":true,"ytdlp_available":true}`))
	}))
	defer srv.Close()

	h, err := newTestClient(srv).Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if h.Status != "healthy" || !h.YtdlpAvailable {
		t.Errorf("unexpected health %+v", h)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"3:45", 225},
		{"0:07", 7},
		{"1:02:03", 3723},
		{"42", 42},
		{"", 0},
		{"abc", 0},
		{"1:2:3:4", 0},
		{"-1:00", 0},
	}
	for _, tt := range tests {
		if got := ParseDuration(tt.in); got != tt.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRateLimiterWaitsBetweenRequests(t *testing.T) {
	rl := newRateLimiter(20)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 waits at 20rps took %v, want >= 100ms", elapsed)
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	rl := newRateLimiter(1)
	ctx, cancel := context.WithCancel(context.Background())
	if err := rl.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()
	if err := rl.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait after cancel = %v, want context.Canceled", err)
	}
}

func TestNilRateLimiter(t *testing.T) {
	var rl *rateLimiter
	if err := rl.Wait(context.Background()); err != nil {
		t.Errorf("nil limiter Wait = %v", err)
	}
}
