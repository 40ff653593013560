package offline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/edumarques81/stellar-offline-player/internal/apperr"
	"github.com/edumarques81/stellar-offline-player/internal/infra/cache"
)

// flakyTransport forwards to the real network unless switched offline.
type flakyTransport struct {
	mu      sync.Mutex
	offline bool
	calls   int
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.calls++
	offline := f.offline
	f.mu.Unlock()

	if offline {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, errors.New("dial tcp: connect: network is unreachable")
	}
	return http.DefaultTransport.RoundTrip(req)
}

func (f *flakyTransport) setOffline(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = v
}

func (f *flakyTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var appJS = []byte{0xde, 0xad, 0xbe, 0xef, '\n', 'c', 'o', 'n', 's', 'o', 'l', 'e'}

type appServer struct {
	*httptest.Server
	mu      sync.Mutex
	uploads [][]byte
	status  int
}

func newAppServer(t *testing.T) *appServer {
	s := &appServer{status: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/index.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>shell</html>"))
	})
	mux.HandleFunc("/app.js", func(w http.ResponseWriter, r *http.Request) {
		w.Write(appJS)
	})
	mux.HandleFunc("/style.css", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("body{}"))
	})
	mux.HandleFunc("/api/search", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.uploads = append(s.uploads, body)
		status := s.status
		s.mu.Unlock()
		w.WriteHeader(status)
		if status == http.StatusOK {
			w.Write([]byte(`{"filename":"stored.mp3"}`))
		}
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *appServer) Uploads() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}

func openStore(t *testing.T) *cache.DB {
	t.Helper()
	db := cache.NewDB(filepath.Join(t.TempDir(), "offline.db"))
	if err := db.Open(); err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestWorker(t *testing.T, db *cache.DB, srv *appServer, net *flakyTransport, name string) *Worker {
	t.Helper()
	return NewWorker(db, WorkerConfig{
		CacheName:    name,
		Capacity:     100,
		Precache:     []string{"/index.html", "/app.js"},
		AppOrigin:    srv.URL,
		RootDocument: "/index.html",
		Exclude:      []string{"/api/"},
	}, WithNetwork(net))
}

func get(t *testing.T, client *http.Client, url string, header http.Header) (*http.Response, []byte, error) {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, url, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	return resp, body, err
}

func TestInstall_ActivatesFirstVersion(t *testing.T) {
	srv := newAppServer(t)
	db := openStore(t)
	w := newTestWorker(t, db, srv, &flakyTransport{}, "app-v1")

	if err := w.Install(context.Background()); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if w.Lifecycle() != LifecycleActive {
		t.Errorf("lifecycle = %s, want active", w.Lifecycle())
	}
	if n, _ := db.Cache("app-v1", 0).Len(); n != 2 {
		t.Errorf("precached %d entries, want 2", n)
	}
}

func TestInterceptor_OfflineServesStoredBodyWithoutNetwork(t *testing.T) {
	srv := newAppServer(t)
	net := &flakyTransport{}
	w := newTestWorker(t, openStore(t), srv, net, "app-v1")
	if err := w.Install(context.Background()); err != nil {
		t.Fatal(err)
	}
	client := &http.Client{Transport: w.Transport()}

	net.setOffline(true)
	before := net.Calls()

	resp, body, err := get(t, client, srv.URL+"/app.js", nil)
	if err != nil {
		t.Fatalf("GET while offline: %v", err)
	}
	if !bytes.Equal(body, appJS) {
		t.Errorf("body = %v, want %v", body, appJS)
	}
	if resp.Header.Get(CacheHeader) != "hit" {
		t.Errorf("expected cache hit header, got %v", resp.Header)
	}
	if net.Calls() != before {
		t.Errorf("network called %d times for a cached asset", net.Calls()-before)
	}
}

func TestInterceptor_StoresSuccessfulFetch(t *testing.T) {
	srv := newAppServer(t)
	net := &flakyTransport{}
	w := newTestWorker(t, openStore(t), srv, net, "app-v1")
	w.Install(context.Background())
	client := &http.Client{Transport: w.Transport()}

	before := net.Calls()
	for i := 0; i < 3; i++ {
		if _, body, err := get(t, client, srv.URL+"/style.css", nil); err != nil || string(body) != "body{}" {
			t.Fatalf("GET %d = %q, %v", i, body, err)
		}
	}
	if got := net.Calls() - before; got != 1 {
		t.Errorf("network calls = %d, want 1", got)
	}
}

func TestInterceptor_DoesNotStoreFailures(t *testing.T) {
	srv := newAppServer(t)
	net := &flakyTransport{}
	w := newTestWorker(t, openStore(t), srv, net, "app-v1")
	w.Install(context.Background())
	client := &http.Client{Transport: w.Transport()}

	before := net.Calls()
	for i := 0; i < 2; i++ {
		resp, _, err := get(t, client, srv.URL+"/missing", nil)
		if err != nil || resp.StatusCode != http.StatusNotFound {
			t.Fatalf("GET missing = %v, %v", resp, err)
		}
	}
	if got := net.Calls() - before; got != 2 {
		t.Errorf("network calls = %d, want 2 (404 must not be cached)", got)
	}
}

func TestInterceptor_ExcludedAlwaysNetwork(t *testing.T) {
	srv := newAppServer(t)
	net := &flakyTransport{}
	w := newTestWorker(t, openStore(t), srv, net, "app-v1")
	w.Install(context.Background())
	client := &http.Client{Transport: w.Transport()}

	before := net.Calls()
	get(t, client, srv.URL+"/api/search?q=a", nil)
	get(t, client, srv.URL+"/api/search?q=a", nil)
	if got := net.Calls() - before; got != 2 {
		t.Errorf("network calls = %d, want 2", got)
	}

	net.setOffline(true)
	if _, _, err := get(t, client, srv.URL+"/api/search?q=a", nil); err == nil {
		t.Error("excluded request served while offline")
	}
}

func TestInterceptor_NavigationFallback(t *testing.T) {
	srv := newAppServer(t)
	net := &flakyTransport{}
	w := newTestWorker(t, openStore(t), srv, net, "app-v1")
	w.Install(context.Background())
	client := &http.Client{Transport: w.Transport()}
	net.setOffline(true)

	tests := []struct {
		name    string
		header  http.Header
		wantErr bool
	}{
		{"sec-fetch-dest document", http.Header{"Sec-Fetch-Dest": {"document"}}, false},
		{"accept html", http.Header{"Accept": {"text/html,application/xhtml+xml"}}, false},
		{"asset request", http.Header{"Accept": {"image/png"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, body, err := get(t, client, srv.URL+"/library/route", tt.header)
			if tt.wantErr {
				if err == nil {
					t.Error("expected the network error to propagate")
				}
				return
			}
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			if string(body) != "<html>shell</html>" {
				t.Errorf("body = %q, want root document", body)
			}
		})
	}
}

func postUpload(client *http.Client, url, payload string) error {
	resp, err := client.Post(url, "application/octet-stream", strings.NewReader(payload))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func TestRetry_OfflineUploadQueuedThenReplayed(t *testing.T) {
	srv := newAppServer(t)
	net := &flakyTransport{}
	db := openStore(t)
	w := newTestWorker(t, db, srv, net, "app-v1")
	w.Install(context.Background())
	client := &http.Client{Transport: w.Transport()}

	net.setOffline(true)
	err := postUpload(client, srv.URL+"/upload", "song-bytes")
	if !errors.Is(err, ErrQueued) {
		t.Fatalf("err = %v, want ErrQueued", err)
	}
	if !errors.Is(err, apperr.ErrConnectivity) {
		t.Errorf("err = %v, want connectivity kind", err)
	}
	if n, _ := db.RetryQueue().Len(); n != 1 {
		t.Fatalf("queue len = %d, want 1", n)
	}

	net.setOffline(false)
	res, err := w.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if res.Replayed != 1 || res.Remaining != 0 {
		t.Errorf("drain = %+v", res)
	}
	if n, _ := db.RetryQueue().Len(); n != 0 {
		t.Errorf("queue len after replay = %d, want 0", n)
	}
	if up := srv.Uploads(); len(up) != 1 || string(up[0]) != "song-bytes" {
		t.Errorf("server uploads = %q", up)
	}
}

func TestDrain_ReplayListenerGetsResponse(t *testing.T) {
	srv := newAppServer(t)
	net := &flakyTransport{}
	db := openStore(t)

	var got []string
	w := NewWorker(db, WorkerConfig{CacheName: "app-v1", Capacity: 10},
		WithNetwork(net),
		WithReplayListener(func(e *cache.RetryEntry, body []byte) {
			got = append(got, e.Method+" "+e.URL+" "+string(body))
		}),
	)
	client := &http.Client{Transport: w.Transport()}

	net.setOffline(true)
	if err := postUpload(client, srv.URL+"/upload", "song-bytes"); !errors.Is(err, ErrQueued) {
		t.Fatalf("err = %v, want ErrQueued", err)
	}

	// A failed replay is not reported.
	w.Drain(context.Background())
	if len(got) != 0 {
		t.Fatalf("listener called for failed replay: %v", got)
	}

	net.setOffline(false)
	w.Drain(context.Background())
	want := "POST " + srv.URL + `/upload {"filename":"stored.mp3"}`
	if len(got) != 1 || got[0] != want {
		t.Errorf("listener got %q, want [%q]", got, want)
	}
}

func TestRetry_RepeatedFailureKeepsSingleEntry(t *testing.T) {
	srv := newAppServer(t)
	net := &flakyTransport{}
	db := openStore(t)
	w := newTestWorker(t, db, srv, net, "app-v1")
	w.Install(context.Background())
	client := &http.Client{Transport: w.Transport()}

	net.setOffline(true)
	postUpload(client, srv.URL+"/upload", "payload")

	for i := 0; i < 2; i++ {
		res, err := w.Drain(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if res.Failed != 1 {
			t.Errorf("drain %d = %+v", i, res)
		}
	}

	pending, _ := db.RetryQueue().Pending()
	if len(pending) != 1 {
		t.Fatalf("queue len = %d, want exactly 1", len(pending))
	}
	if pending[0].Attempts != 2 {
		t.Errorf("attempts = %d, want 2", pending[0].Attempts)
	}
	if string(pending[0].Body) != "payload" {
		t.Errorf("body = %q", pending[0].Body)
	}
}

func TestRetry_ServerRejectionIsNotQueued(t *testing.T) {
	srv := newAppServer(t)
	srv.status = http.StatusInternalServerError
	db := openStore(t)
	w := newTestWorker(t, db, srv, &flakyTransport{}, "app-v1")
	client := &http.Client{Transport: w.Transport()}

	resp, err := client.Post(srv.URL+"/upload", "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if n, _ := db.RetryQueue().Len(); n != 0 {
		t.Errorf("server rejection queued %d entries", n)
	}
}

func TestDrain_Coalesces(t *testing.T) {
	w := newTestWorker(t, openStore(t), newAppServer(t), &flakyTransport{}, "app-v1")

	w.drainMu.Lock()
	res, err := w.Drain(context.Background())
	w.drainMu.Unlock()

	if err != nil || !res.Skipped {
		t.Errorf("concurrent drain = %+v, %v; want skipped", res, err)
	}
}

func TestVersionBump_WaitsThenPurges(t *testing.T) {
	srv := newAppServer(t)
	db := openStore(t)
	net := &flakyTransport{}

	v1 := newTestWorker(t, db, srv, net, "app-v1")
	v1.Install(context.Background())

	v2 := newTestWorker(t, db, srv, net, "app-v2")
	if err := v2.Install(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v2.Lifecycle() != LifecycleWaiting {
		t.Fatalf("lifecycle = %s, want waiting", v2.Lifecycle())
	}
	if active, _ := db.ActiveCache(); active != "app-v1" {
		t.Errorf("active = %s, want app-v1 while waiting", active)
	}

	v2.handle(context.Background(), MsgSkipWaiting)

	if v2.Lifecycle() != LifecycleActive {
		t.Errorf("lifecycle = %s, want active", v2.Lifecycle())
	}
	if n, _ := db.Cache("app-v1", 0).Len(); n != 0 {
		t.Errorf("old version still holds %d entries", n)
	}
	if n, _ := db.Cache("app-v2", 0).Len(); n != 2 {
		t.Errorf("new version holds %d entries, want 2", n)
	}
}

func TestWorker_OnlineMessageDrains(t *testing.T) {
	srv := newAppServer(t)
	net := &flakyTransport{}
	db := openStore(t)
	w := newTestWorker(t, db, srv, net, "app-v1")
	client := &http.Client{Transport: w.Transport()}

	net.setOffline(true)
	w.handle(context.Background(), MsgOffline)
	postUpload(client, srv.URL+"/upload", "later")
	if w.Online() {
		t.Error("worker still online after MsgOffline")
	}

	net.setOffline(false)
	w.handle(context.Background(), MsgOnline)

	if n, _ := db.RetryQueue().Len(); n != 0 {
		t.Errorf("queue len = %d after online drain", n)
	}
}
